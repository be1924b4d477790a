package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStorePostgreSQL stores every collection in one table with a JSON data column
type DocumentStorePostgreSQL struct {
	db *gorm.DB
}

func NewDocumentStorePostgreSQL(db *gorm.DB) repositories.DocumentStore {
	return &DocumentStorePostgreSQL{db: db}
}

func (s *DocumentStorePostgreSQL) Create(ctx context.Context, collection string, data models.Document) (string, error) {
	id := uuid.NewString()

	payload, err := encodeDocument(id, data)
	if err != nil {
		return "", err
	}

	row := &models.StoredDocument{
		ID:         id,
		Collection: collection,
		Data:       payload,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", fmt.Errorf("failed to create %s document: %w", collection, err)
	}

	return id, nil
}

func (s *DocumentStorePostgreSQL) Update(ctx context.Context, collection, id string, data models.Document) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.StoredDocument
		if err := tx.Where("collection = ? AND id = ?", collection, id).First(&row).Error; err != nil {
			return translateError(err)
		}

		existing, err := decodeDocument(row.Data)
		if err != nil {
			return err
		}
		for k, v := range data {
			existing[k] = v
		}

		payload, err := encodeDocument(id, existing)
		if err != nil {
			return err
		}
		if err := tx.Model(&row).Update("data", payload).Error; err != nil {
			return fmt.Errorf("failed to update %s document %s: %w", collection, id, err)
		}
		return nil
	})
}

func (s *DocumentStorePostgreSQL) Delete(ctx context.Context, collection, id string) error {
	result := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&models.StoredDocument{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete %s document %s: %w", collection, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (s *DocumentStorePostgreSQL) Find(ctx context.Context, collection string, query models.Document) ([]models.Document, error) {
	db := s.db.WithContext(ctx).Where("collection = ?", collection)
	for key, value := range query {
		if key == "id" {
			db = db.Where("id = ?", value)
			continue
		}
		db = db.Where(datatypes.JSONQuery("data").Equals(value, key))
	}

	var rows []models.StoredDocument
	if err := db.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s documents: %w", collection, err)
	}

	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeDocument(row.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *DocumentStorePostgreSQL) FindByID(ctx context.Context, collection, id string) (models.Document, error) {
	var row models.StoredDocument
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if err != nil {
		return nil, translateError(err)
	}
	return decodeDocument(row.Data)
}

func encodeDocument(id string, data models.Document) (datatypes.JSON, error) {
	doc := make(models.Document, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc["id"] = id

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return datatypes.JSON(payload), nil
}

func decodeDocument(data datatypes.JSON) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
