package models

import "time"

// Category is a canonical category as read from storage
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

type MappingAction string

const (
	ActionMap    MappingAction = "map"
	ActionCreate MappingAction = "create"
	ActionMerge  MappingAction = "merge"
)

func (a MappingAction) IsValid() bool {
	return a == ActionMap || a == ActionCreate || a == ActionMerge
}

// CategoryMapping is the decision for one referenced category name
type CategoryMapping struct {
	OriginalName  string        `json:"originalName"`
	SuggestedName string        `json:"suggestedName"`
	Confidence    float64       `json:"confidence"`
	Action        MappingAction `json:"action"`
}

type MatchKind string

const (
	MatchExact      MatchKind = "exact"
	MatchTextual    MatchKind = "textual"
	MatchMedical    MatchKind = "medical"
	MatchHistorical MatchKind = "historical"
)

type CategorySuggestion struct {
	CategoryID  string    `json:"categoryId,omitempty"`
	Name        string    `json:"name"`
	Similarity  float64   `json:"similarity"`
	Kind        MatchKind `json:"kind"`
	Domain      string    `json:"domain,omitempty"`
	Recommended bool      `json:"recommended"`
}

type CategoryCluster struct {
	Members       []string `json:"members"`
	CanonicalName string   `json:"canonicalName"`
}

// CategoryAnalysis is the matcher's verdict for one referenced category
type CategoryAnalysis struct {
	OriginalName      string               `json:"originalName"`
	NormalizedName    string               `json:"normalizedName"`
	ItemIndexes       []int                `json:"itemIndexes"`
	Suggestions       []CategorySuggestion `json:"suggestions"`
	RecommendedAction MappingAction        `json:"recommendedAction"`
	Confidence        float64              `json:"confidence"`
	SuggestedName     string               `json:"suggestedName"`
	Reasoning         []string             `json:"reasoning"`
	Cluster           *CategoryCluster     `json:"cluster,omitempty"`
}

// ToMapping turns the analysis into the mapping a caller may apply
func (a CategoryAnalysis) ToMapping() CategoryMapping {
	return CategoryMapping{
		OriginalName:  a.OriginalName,
		SuggestedName: a.SuggestedName,
		Confidence:    a.Confidence,
		Action:        a.RecommendedAction,
	}
}

// MappingRecord is an immutable entry of the mapping-history ledger
type MappingRecord struct {
	ID               string        `json:"id" gorm:"primaryKey;size:36"`
	UserID           string        `json:"user_id" gorm:"not null;index;size:255"`
	OriginalName     string        `json:"original_name" gorm:"not null;size:255"`
	NameKey          string        `json:"name_key" gorm:"not null;index;size:255"` // lower-cased, trimmed original name
	TargetCategoryID string        `json:"target_category_id" gorm:"size:36"`
	TargetName       string        `json:"target_name" gorm:"size:255"`
	Confidence       float64       `json:"confidence"`
	Action           MappingAction `json:"action" gorm:"size:20"`
	CreatedAt        time.Time     `json:"created_at" gorm:"index"`
}

type MappingStatistics struct {
	TotalMappings     int                   `json:"totalMappings"`
	ByAction          map[MappingAction]int `json:"byAction"`
	AverageConfidence float64               `json:"averageConfidence"`
	TopOriginalNames  []NameCount           `json:"topOriginalNames"`
	CreatedCategories int                   `json:"createdCategories"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
