package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"github.com/google/uuid"
)

// DocumentStore keeps collections in process memory
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]models.Document
	order       map[string][]string
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string]map[string]models.Document),
		order:       make(map[string][]string),
	}
}

var _ repositories.DocumentStore = (*DocumentStore)(nil)

func (s *DocumentStore) Create(ctx context.Context, collection string, data models.Document) (string, error) {
	doc, err := cloneDocument(data)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	doc["id"] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]models.Document)
	}
	s.collections[collection][id] = doc
	s.order[collection] = append(s.order[collection], id)

	return id, nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, data models.Document) error {
	doc, err := cloneDocument(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return repositories.ErrNotFound
	}
	for k, v := range doc {
		existing[k] = v
	}
	existing["id"] = id

	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.collections[collection], id)

	ids := s.order[collection]
	for i, existing := range ids {
		if existing == id {
			s.order[collection] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}

	return nil
}

func (s *DocumentStore) Find(ctx context.Context, collection string, query models.Document) ([]models.Document, error) {
	query, err := cloneDocument(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []models.Document
	for _, id := range s.order[collection] {
		doc := s.collections[collection][id]
		if !matches(doc, query) {
			continue
		}
		c, err := cloneDocument(doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, c)
	}

	return docs, nil
}

func (s *DocumentStore) FindByID(ctx context.Context, collection, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneDocument(doc)
}

// Count returns the number of documents in a collection
func (s *DocumentStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Collections lists the non-empty collections, sorted
func (s *DocumentStore) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name, docs := range s.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func matches(doc, query models.Document) bool {
	for k, want := range query {
		if !reflect.DeepEqual(doc[k], want) {
			return false
		}
	}
	return true
}

// cloneDocument round-trips through JSON so stored values have the same
// shapes a durable store would return.
func cloneDocument(doc models.Document) (models.Document, error) {
	if doc == nil {
		return models.Document{}, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var out models.Document
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}
