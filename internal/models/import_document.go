package models

import "strings"

type ContentType string

const (
	ContentQuestions    ContentType = "questions"
	ContentFlashcards   ContentType = "flashcards"
	ContentLearningPath ContentType = "learning-path"
)

func (t ContentType) IsValid() bool {
	switch t {
	case ContentQuestions, ContentFlashcards, ContentLearningPath:
		return true
	}
	return false
}

// Collection returns the storage collection items of this content type are created in
func (t ContentType) Collection() string {
	switch t {
	case ContentFlashcards:
		return CollectionFlashcards
	case ContentLearningPath:
		return CollectionLearningPathQuestions
	default:
		return CollectionQuestions
	}
}

type ImportFormat string

const (
	FormatJSON ImportFormat = "json"
	FormatCSV  ImportFormat = "csv"
	FormatXLSX ImportFormat = "xlsx"
)

func (f ImportFormat) IsValid() bool {
	return f == FormatJSON || f == FormatCSV || f == FormatXLSX
}

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

func (d DifficultyLevel) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// StudyLevel is the curriculum a question targets
type StudyLevel string

const (
	LevelPASS StudyLevel = "PASS"
	LevelLAS  StudyLevel = "LAS"
	LevelBoth StudyLevel = "both"
)

func (l StudyLevel) IsValid() bool {
	switch l {
	case LevelPASS, LevelLAS, LevelBoth:
		return true
	}
	return false
}

// Storage collections touched by an import
const (
	CollectionCategories            = "categories"
	CollectionQuestions             = "questions"
	CollectionFlashcards            = "flashcards"
	CollectionLearningPathQuestions = "learning_path_questions"
)

// ImportDocument is a parsed import file. Exactly one of Questions, Cards or
// Path is populated, matching Type.
type ImportDocument struct {
	Version   string                 `json:"version,omitempty"`
	Type      ContentType            `json:"type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Questions []QuestionItem         `json:"questions,omitempty"`
	Cards     []FlashcardItem        `json:"cards,omitempty"`
	Path      *LearningPath          `json:"path,omitempty"`
}

type QuestionOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionItem struct {
	QuestionText string           `json:"questionText"`
	Options      []QuestionOption `json:"options"`
	Explanation  string           `json:"explanation,omitempty"`
	Category     string           `json:"category,omitempty"`
	Difficulty   DifficultyLevel  `json:"difficulty,omitempty"`
	Level        StudyLevel       `json:"level,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
}

// CorrectCount returns how many options are flagged correct
func (q QuestionItem) CorrectCount() int {
	count := 0
	for _, opt := range q.Options {
		if opt.IsCorrect {
			count++
		}
	}
	return count
}

type FlashcardItem struct {
	Front    string   `json:"front"`
	Back     string   `json:"back"`
	Hint     string   `json:"hint,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type LearningPath struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Steps       []LearningStep `json:"steps"`
}

type LearningStep struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Prerequisites    []string       `json:"prerequisites,omitempty"`
	EstimatedMinutes int            `json:"estimatedMinutes,omitempty"`
	Questions        []QuestionItem `json:"questions,omitempty"`
}

// ImportItem is one committable unit of a document, in source order
type ImportItem struct {
	Index     int            `json:"index"`
	Kind      ContentType    `json:"kind"`
	Question  *QuestionItem  `json:"question,omitempty"`
	Flashcard *FlashcardItem `json:"flashcard,omitempty"`
	Step      *StepRef       `json:"step,omitempty"`
}

// StepRef locates a learning-path question inside its step
type StepRef struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Index         int      `json:"index"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// CategoryName returns the free-text category the item references
func (i ImportItem) CategoryName() string {
	switch {
	case i.Question != nil:
		return strings.TrimSpace(i.Question.Category)
	case i.Flashcard != nil:
		return strings.TrimSpace(i.Flashcard.Category)
	}
	return ""
}

// ItemCount returns the number of committable items for the document type
func (d *ImportDocument) ItemCount() int {
	switch d.Type {
	case ContentQuestions:
		return len(d.Questions)
	case ContentFlashcards:
		return len(d.Cards)
	case ContentLearningPath:
		if d.Path == nil {
			return 0
		}
		total := 0
		for _, step := range d.Path.Steps {
			total += len(step.Questions)
		}
		return total
	}
	return 0
}

// Items flattens the document into its ordered committable items.
// Learning-path questions are flattened step by step.
func (d *ImportDocument) Items() []ImportItem {
	items := make([]ImportItem, 0, d.ItemCount())

	switch d.Type {
	case ContentQuestions:
		for i := range d.Questions {
			q := d.Questions[i]
			items = append(items, ImportItem{Index: len(items), Kind: d.Type, Question: &q})
		}
	case ContentFlashcards:
		for i := range d.Cards {
			c := d.Cards[i]
			items = append(items, ImportItem{Index: len(items), Kind: d.Type, Flashcard: &c})
		}
	case ContentLearningPath:
		if d.Path == nil {
			return items
		}
		for stepIndex, step := range d.Path.Steps {
			ref := &StepRef{
				ID:            step.ID,
				Title:         step.Title,
				Index:         stepIndex,
				Prerequisites: step.Prerequisites,
			}
			for i := range step.Questions {
				q := step.Questions[i]
				items = append(items, ImportItem{Index: len(items), Kind: d.Type, Question: &q, Step: ref})
			}
		}
	}

	return items
}

// CategoryNames returns the unique referenced category names in first-seen order.
// Extraction is case-sensitive.
func (d *ImportDocument) CategoryNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, item := range d.Items() {
		name := item.CategoryName()
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
