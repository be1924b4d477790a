package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/cache"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/google/uuid"
)

const (
	categoryCacheKey        = "categories:all"
	DefaultCategoryCacheTTL = 5 * time.Minute

	textualThreshold = 0.5
	medicalThreshold = 0.6
	medicalBonus     = 0.3
	mapThreshold     = 0.8
	verifyThreshold  = 0.6
	clusterThreshold = 0.7
	createConfidence = 0.5
	maxSuggestions   = 5
)

// CategoryMatcher reconciles free-text category names with the canonical
// categories held in storage
type CategoryMatcher interface {
	Analyze(ctx context.Context, doc *models.ImportDocument, userID string) ([]models.CategoryAnalysis, error)
	ApplyMapping(ctx context.Context, userID string, mapping models.CategoryMapping) (*models.Category, error)
	CreateNewCategory(ctx context.Context, userID, name string) (*models.Category, error)
	// ResolveCategory finds or creates the category an item should be attached
	// to. created is true when this call stored a new category.
	ResolveCategory(ctx context.Context, userID, name string, mappings map[string]string, autoCreate bool) (category *models.Category, created bool, err error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetMappingStatistics(ctx context.Context, userID string) (*models.MappingStatistics, error)
}

type MatcherConfig struct {
	CacheTTL time.Duration
}

type categoryMatcher struct {
	store      repositories.DocumentStore
	history    repositories.MappingHistoryRepository
	cache      cache.CacheService
	dictionary *MedicalDictionary
	audit      AuditSink
	logger     *slog.Logger
	cacheTTL   time.Duration

	// serializes check-then-create so concurrent commits do not duplicate a category
	createMu sync.Mutex
}

func NewCategoryMatcher(
	store repositories.DocumentStore,
	history repositories.MappingHistoryRepository,
	cacheService cache.CacheService,
	dictionary *MedicalDictionary,
	audit AuditSink,
	logger *slog.Logger,
	config MatcherConfig,
) CategoryMatcher {
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCategoryCacheTTL
	}
	if cacheService == nil {
		cacheService = cache.NewMemoryCache()
	}
	if dictionary == nil {
		dictionary = MustDefaultMedicalDictionary()
	}
	if audit == nil {
		audit = noopAuditSink{}
	}
	return &categoryMatcher{
		store:      store,
		history:    history,
		cache:      cacheService,
		dictionary: dictionary,
		audit:      audit,
		logger:     logger,
		cacheTTL:   config.CacheTTL,
	}
}

// NameKey is the case-insensitive ledger key of a referenced category name
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ===== CATEGORY SNAPSHOT =====

func (m *categoryMatcher) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := m.cache.Get(ctx, categoryCacheKey, &categories)
	if err == nil {
		return categories, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		m.logger.Warn("Category cache read failed, falling back to storage", "error", err)
	}

	docs, err := m.store.Find(ctx, models.CollectionCategories, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	categories = make([]models.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, models.Category{
			ID:   doc.ID(),
			Name: doc.String("name"),
			Slug: doc.String("slug"),
		})
	}

	if err := m.cache.Set(ctx, categoryCacheKey, categories, m.cacheTTL); err != nil {
		m.logger.Warn("Failed to cache categories", "error", err)
	}
	return categories, nil
}

func (m *categoryMatcher) invalidateCache(ctx context.Context) {
	if err := m.cache.Delete(ctx, categoryCacheKey); err != nil {
		m.logger.Warn("Failed to invalidate category cache", "error", err)
	}
}

func findByNormalizedName(categories []models.Category, normalized string) *models.Category {
	for i := range categories {
		if utils.NormalizeName(categories[i].Name) == normalized {
			c := categories[i]
			return &c
		}
	}
	return nil
}

// ===== ANALYSIS =====

func (m *categoryMatcher) Analyze(ctx context.Context, doc *models.ImportDocument, userID string) ([]models.CategoryAnalysis, error) {
	names := doc.CategoryNames()
	if len(names) == 0 {
		return []models.CategoryAnalysis{}, nil
	}

	indexes := make(map[string][]int)
	for _, item := range doc.Items() {
		if name := item.CategoryName(); name != "" {
			indexes[name] = append(indexes[name], item.Index)
		}
	}

	categories, err := m.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	analyses := make([]models.CategoryAnalysis, 0, len(names))
	for _, name := range names {
		analysis := m.analyzeName(ctx, userID, name, categories)
		analysis.ItemIndexes = indexes[name]
		analyses = append(analyses, analysis)
	}

	m.detectClusters(analyses)

	m.logger.Debug("Category analysis completed",
		"user_id", userID,
		"categories", len(analyses),
		"existing", len(categories))

	return analyses, nil
}

func (m *categoryMatcher) analyzeName(ctx context.Context, userID, name string, categories []models.Category) models.CategoryAnalysis {
	normalized := utils.NormalizeName(name)
	analysis := models.CategoryAnalysis{
		OriginalName:   name,
		NormalizedName: normalized,
		Suggestions:    []models.CategorySuggestion{},
		Reasoning:      []string{},
	}

	if exact := findByNormalizedName(categories, normalized); exact != nil {
		analysis.Suggestions = append(analysis.Suggestions, models.CategorySuggestion{
			CategoryID:  exact.ID,
			Name:        exact.Name,
			Similarity:  1.0,
			Kind:        models.MatchExact,
			Recommended: true,
		})
		analysis.RecommendedAction = models.ActionMap
		analysis.Confidence = 1.0
		analysis.SuggestedName = exact.Name
		analysis.Reasoning = append(analysis.Reasoning,
			fmt.Sprintf("Correspondance exacte avec la catégorie existante %q", exact.Name))
		return analysis
	}

	suggestions := m.scoreCandidates(normalized, categories)

	if record := m.historicalMapping(ctx, userID, name); record != nil {
		historical := models.CategorySuggestion{
			CategoryID:  record.TargetCategoryID,
			Name:        record.TargetName,
			Similarity:  record.Confidence,
			Kind:        models.MatchHistorical,
			Recommended: true,
		}
		suggestions = dedupSuggestions(append([]models.CategorySuggestion{historical}, suggestions...))
		analysis.Reasoning = append(analysis.Reasoning,
			fmt.Sprintf("Mapping déjà utilisé précédemment vers %q", record.TargetName))
	}

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	analysis.Suggestions = suggestions

	m.decideAction(&analysis)
	return analysis
}

// scoreCandidates returns the textual and medical candidates above their
// thresholds, best first, one per category name
func (m *categoryMatcher) scoreCandidates(normalized string, categories []models.Category) []models.CategorySuggestion {
	domain := m.dictionary.Resolve(normalized)

	var candidates []models.CategorySuggestion
	for _, category := range categories {
		categoryNorm := utils.NormalizeName(category.Name)

		if score := utils.TextSimilarity(normalized, categoryNorm); score > textualThreshold {
			candidates = append(candidates, models.CategorySuggestion{
				CategoryID: category.ID,
				Name:       category.Name,
				Similarity: score,
				Kind:       models.MatchTextual,
			})
		}

		if domain != "" && m.dictionary.Resolve(categoryNorm) == domain {
			score := utils.LevenshteinSimilarity(normalized, categoryNorm) + medicalBonus
			if score > 1 {
				score = 1
			}
			if score > medicalThreshold {
				candidates = append(candidates, models.CategorySuggestion{
					CategoryID: category.ID,
					Name:       category.Name,
					Similarity: score,
					Kind:       models.MatchMedical,
					Domain:     domain,
				})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	return dedupSuggestions(candidates)
}

// dedupSuggestions keeps the first suggestion per target name
func dedupSuggestions(suggestions []models.CategorySuggestion) []models.CategorySuggestion {
	seen := make(map[string]bool)
	out := make([]models.CategorySuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		key := NameKey(s.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func (m *categoryMatcher) historicalMapping(ctx context.Context, userID, name string) *models.MappingRecord {
	if userID == "" || m.history == nil {
		return nil
	}
	record, err := m.history.FindLatest(ctx, userID, NameKey(name))
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			m.logger.Warn("Mapping history lookup failed", "user_id", userID, "name", name, "error", err)
		}
		return nil
	}
	return record
}

func (m *categoryMatcher) decideAction(analysis *models.CategoryAnalysis) {
	if len(analysis.Suggestions) == 0 {
		analysis.RecommendedAction = models.ActionCreate
		analysis.Confidence = createConfidence
		analysis.SuggestedName = strings.TrimSpace(analysis.OriginalName)
		analysis.Reasoning = append(analysis.Reasoning, "Aucune catégorie existante ne correspond, création recommandée")
		return
	}

	best := analysis.Suggestions[0]
	switch {
	case best.Kind == models.MatchHistorical:
		analysis.RecommendedAction = models.ActionMap
		analysis.Confidence = best.Similarity
		analysis.SuggestedName = best.Name
	case best.Similarity > mapThreshold:
		analysis.RecommendedAction = models.ActionMap
		analysis.Confidence = best.Similarity
		analysis.SuggestedName = best.Name
		analysis.Reasoning = append(analysis.Reasoning, describeMatch(best))
	case best.Similarity > verifyThreshold:
		analysis.RecommendedAction = models.ActionMap
		analysis.Confidence = best.Similarity
		analysis.SuggestedName = best.Name
		analysis.Reasoning = append(analysis.Reasoning, describeMatch(best),
			"Correspondance probable, à vérifier avant application")
	default:
		analysis.RecommendedAction = models.ActionCreate
		analysis.Confidence = createConfidence
		analysis.SuggestedName = strings.TrimSpace(analysis.OriginalName)
		analysis.Reasoning = append(analysis.Reasoning,
			fmt.Sprintf("Meilleure correspondance %q trop faible (%.2f), création recommandée", best.Name, best.Similarity))
	}
}

func describeMatch(s models.CategorySuggestion) string {
	if s.Kind == models.MatchMedical {
		return fmt.Sprintf("Même domaine médical (%s) que %q, similarité %.2f", s.Domain, s.Name, s.Similarity)
	}
	return fmt.Sprintf("Similarité textuelle %.2f avec %q", s.Similarity, s.Name)
}

// detectClusters groups referenced names whose Levenshtein similarity
// exceeds the cluster threshold and recommends merging them
func (m *categoryMatcher) detectClusters(analyses []models.CategoryAnalysis) {
	n := len(analyses)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if utils.LevenshteinSimilarity(analyses[i].NormalizedName, analyses[j].NormalizedName) > clusterThreshold {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := 0; i < n; i++ {
		root := find(i)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}

	for _, root := range roots {
		members := groups[root]
		if len(members) < 2 {
			continue
		}

		names := make([]string, len(members))
		for k, idx := range members {
			names[k] = analyses[idx].OriginalName
		}
		cluster := &models.CategoryCluster{
			Members:       names,
			CanonicalName: m.canonicalName(analyses, members),
		}

		for _, idx := range members {
			a := &analyses[idx]
			a.RecommendedAction = models.ActionMerge
			a.SuggestedName = cluster.CanonicalName
			a.Cluster = cluster
			a.Reasoning = append(a.Reasoning,
				fmt.Sprintf("Regroupement détecté: %s", strings.Join(names, ", ")),
				fmt.Sprintf("Nom canonique suggéré: %s", cluster.CanonicalName))
		}
	}
}

// canonicalName prefers the longest member that names a medical domain,
// otherwise the longest member
func (m *categoryMatcher) canonicalName(analyses []models.CategoryAnalysis, members []int) string {
	longest := func(filter func(models.CategoryAnalysis) bool) string {
		best := ""
		for _, idx := range members {
			a := analyses[idx]
			if filter(a) && len([]rune(a.OriginalName)) > len([]rune(best)) {
				best = a.OriginalName
			}
		}
		return best
	}

	if name := longest(func(a models.CategoryAnalysis) bool {
		return m.dictionary.Resolve(a.NormalizedName) != ""
	}); name != "" {
		return name
	}
	return longest(func(models.CategoryAnalysis) bool { return true })
}

// ===== MUTATIONS =====

func (m *categoryMatcher) ApplyMapping(ctx context.Context, userID string, mapping models.CategoryMapping) (*models.Category, error) {
	if strings.TrimSpace(mapping.OriginalName) == "" || !mapping.Action.IsValid() ||
		mapping.Confidence < 0 || mapping.Confidence > 1 {
		return nil, ErrInvalidMapping
	}

	target := strings.TrimSpace(mapping.SuggestedName)
	if target == "" {
		target = strings.TrimSpace(mapping.OriginalName)
	}

	var category *models.Category
	switch mapping.Action {
	case models.ActionMap:
		categories, err := m.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		category = findByNormalizedName(categories, utils.NormalizeName(target))
		if category == nil {
			return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, target)
		}
	default:
		// create and merge both converge on the target, creating it if needed
		created, _, err := m.findOrCreate(ctx, userID, target)
		if err != nil {
			return nil, err
		}
		category = created
	}

	if err := m.appendRecord(ctx, userID, mapping.OriginalName, category, mapping.Confidence, mapping.Action); err != nil {
		return nil, err
	}
	return category, nil
}

func (m *categoryMatcher) CreateNewCategory(ctx context.Context, userID, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if utils.NormalizeName(name) == "" {
		return nil, ErrCategoryNameEmpty
	}

	category, created, err := m.findOrCreate(ctx, userID, name)
	if err != nil {
		return nil, err
	}

	action, confidence := models.ActionCreate, 1.0
	if !created {
		action = models.ActionMap
	}
	if err := m.appendRecord(ctx, userID, name, category, confidence, action); err != nil {
		return nil, err
	}
	return category, nil
}

// findOrCreate returns the category with the same normalized name, creating
// it when absent. The bool reports whether a category was created.
func (m *categoryMatcher) findOrCreate(ctx context.Context, userID, name string) (*models.Category, bool, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	categories, err := m.ListCategories(ctx)
	if err != nil {
		return nil, false, err
	}
	if existing := findByNormalizedName(categories, utils.NormalizeName(name)); existing != nil {
		return existing, false, nil
	}

	slug := utils.Slugify(name)
	id, err := m.store.Create(ctx, models.CollectionCategories, models.Document{
		"name":      name,
		"slug":      slug,
		"createdBy": userID,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create category %q: %w", name, err)
	}
	m.invalidateCache(ctx)

	category := &models.Category{ID: id, Name: name, Slug: slug}
	m.logger.Info("Category created", "category_id", id, "name", name, "user_id", userID)
	m.audit.LogCategoryCreated(ctx, userID, category)

	return category, true, nil
}

func (m *categoryMatcher) appendRecord(ctx context.Context, userID, originalName string, category *models.Category, confidence float64, action models.MappingAction) error {
	if m.history == nil {
		return nil
	}

	record := &models.MappingRecord{
		ID:               uuid.NewString(),
		UserID:           userID,
		OriginalName:     strings.TrimSpace(originalName),
		NameKey:          NameKey(originalName),
		TargetCategoryID: category.ID,
		TargetName:       category.Name,
		Confidence:       confidence,
		Action:           action,
		CreatedAt:        time.Now().UTC(),
	}
	if err := m.history.Append(ctx, record); err != nil {
		return fmt.Errorf("failed to record category mapping: %w", err)
	}

	m.audit.LogCategoryMapped(ctx, record)
	return nil
}

func (m *categoryMatcher) ResolveCategory(ctx context.Context, userID, name string, mappings map[string]string, autoCreate bool) (*models.Category, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, nil
	}

	categories, err := m.ListCategories(ctx)
	if err != nil {
		return nil, false, err
	}

	if target, ok := lookupMapping(mappings, name); ok {
		if category := findByNormalizedName(categories, utils.NormalizeName(target)); category != nil {
			return category, false, nil
		}
		if !autoCreate {
			return nil, false, fmt.Errorf("%w: %s", ErrCategoryNotFound, target)
		}
		return m.findOrCreate(ctx, userID, target)
	}

	if category := findByNormalizedName(categories, utils.NormalizeName(name)); category != nil {
		return category, false, nil
	}

	if record := m.historicalMapping(ctx, userID, name); record != nil {
		if category := findByNormalizedName(categories, utils.NormalizeName(record.TargetName)); category != nil {
			return category, false, nil
		}
	}

	if !autoCreate {
		return nil, false, fmt.Errorf("%w: %s", ErrCategoryNotFound, name)
	}
	return m.findOrCreate(ctx, userID, name)
}

// lookupMapping matches explicit mappings case-insensitively
func lookupMapping(mappings map[string]string, name string) (string, bool) {
	if len(mappings) == 0 {
		return "", false
	}
	if target, ok := mappings[name]; ok && strings.TrimSpace(target) != "" {
		return target, true
	}
	key := NameKey(name)
	for original, target := range mappings {
		if NameKey(original) == key && strings.TrimSpace(target) != "" {
			return target, true
		}
	}
	return "", false
}

// ===== STATISTICS =====

func (m *categoryMatcher) GetMappingStatistics(ctx context.Context, userID string) (*models.MappingStatistics, error) {
	stats := &models.MappingStatistics{
		ByAction:         make(map[models.MappingAction]int),
		TopOriginalNames: []models.NameCount{},
	}
	if m.history == nil {
		return stats, nil
	}

	records, err := m.history.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list category mappings: %w", err)
	}

	counts := make(map[string]int)
	display := make(map[string]string)
	totalConfidence := 0.0
	for _, r := range records {
		stats.TotalMappings++
		stats.ByAction[r.Action]++
		totalConfidence += r.Confidence
		if r.Action == models.ActionCreate {
			stats.CreatedCategories++
		}
		counts[r.NameKey]++
		if _, ok := display[r.NameKey]; !ok {
			display[r.NameKey] = r.OriginalName
		}
	}

	if stats.TotalMappings > 0 {
		stats.AverageConfidence = totalConfidence / float64(stats.TotalMappings)
	}

	for key, count := range counts {
		stats.TopOriginalNames = append(stats.TopOriginalNames, models.NameCount{Name: display[key], Count: count})
	}
	sort.Slice(stats.TopOriginalNames, func(i, j int) bool {
		a, b := stats.TopOriginalNames[i], stats.TopOriginalNames[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	if len(stats.TopOriginalNames) > 10 {
		stats.TopOriginalNames = stats.TopOriginalNames[:10]
	}

	return stats, nil
}
