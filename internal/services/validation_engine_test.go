package services

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validQuestion(text, category string) models.QuestionItem {
	return models.QuestionItem{
		QuestionText: text,
		Options: []models.QuestionOption{
			{Text: "Oui", IsCorrect: true},
			{Text: "Non"},
		},
		Explanation: "Parce que",
		Category:    category,
		Difficulty:  models.DifficultyMedium,
		Level:       models.LevelPASS,
	}
}

func questionsDoc(questions ...models.QuestionItem) *models.ImportDocument {
	return &models.ImportDocument{Version: "1.0", Type: models.ContentQuestions, Questions: questions}
}

func findError(errs apperrors.ImportErrors, message string) *apperrors.ImportError {
	for i := range errs {
		if errs[i].Message == message {
			return &errs[i]
		}
	}
	return nil
}

func TestValidationEngine_QuestionRules(t *testing.T) {
	engine := NewValidationEngine()

	tests := []struct {
		name      string
		mutate    func(q *models.QuestionItem)
		wantValid bool
		severity  apperrors.Severity
		message   string
	}{
		{
			name:      "valid question",
			mutate:    func(q *models.QuestionItem) {},
			wantValid: true,
		},
		{
			name:      "missing question text is critical",
			mutate:    func(q *models.QuestionItem) { q.QuestionText = "  " },
			wantValid: false,
			severity:  apperrors.SeverityCritical,
			message:   "Le texte de la question est requis",
		},
		{
			name:      "absent options are critical",
			mutate:    func(q *models.QuestionItem) { q.Options = nil },
			wantValid: false,
			severity:  apperrors.SeverityCritical,
			message:   "Les options de réponse sont requises",
		},
		{
			name: "single option is major",
			mutate: func(q *models.QuestionItem) {
				q.Options = []models.QuestionOption{{Text: "Oui", IsCorrect: true}}
			},
			wantValid: true,
			severity:  apperrors.SeverityMajor,
			message:   "Au moins 2 options sont requises",
		},
		{
			name: "no correct answer is critical",
			mutate: func(q *models.QuestionItem) {
				q.Options[0].IsCorrect = false
			},
			wantValid: false,
			severity:  apperrors.SeverityCritical,
			message:   "Aucune bonne réponse définie",
		},
		{
			name: "several correct answers is major and invalid",
			mutate: func(q *models.QuestionItem) {
				q.Options[1].IsCorrect = true
			},
			wantValid: false,
			severity:  apperrors.SeverityMajor,
			message:   "Plusieurs bonnes réponses détectées",
		},
		{
			name:      "missing category is major but valid",
			mutate:    func(q *models.QuestionItem) { q.Category = "" },
			wantValid: true,
			severity:  apperrors.SeverityMajor,
			message:   "Catégorie manquante",
		},
		{
			name:      "unknown difficulty is minor and invalid",
			mutate:    func(q *models.QuestionItem) { q.Difficulty = "extreme" },
			wantValid: false,
			severity:  apperrors.SeverityMinor,
			message:   "Difficulté invalide: extreme",
		},
		{
			name:      "unknown level is minor and invalid",
			mutate:    func(q *models.QuestionItem) { q.Level = "L3" },
			wantValid: false,
			severity:  apperrors.SeverityMinor,
			message:   "Niveau invalide: L3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion("Le cœur a-t-il quatre cavités ?", "Cardiologie")
			tt.mutate(&q)

			result := engine.Validate(questionsDoc(q))

			assert.Equal(t, tt.wantValid, result.IsValid)
			if tt.message == "" {
				assert.Empty(t, result.Errors)
				return
			}
			found := findError(result.Errors, tt.message)
			require.NotNil(t, found, "expected error %q in %+v", tt.message, result.Errors)
			assert.Equal(t, tt.severity, found.Severity)
			require.NotNil(t, found.ItemIndex)
			assert.Equal(t, 0, *found.ItemIndex)
		})
	}
}

func TestValidationEngine_MultipleCorrectAnswers(t *testing.T) {
	doc := questionsDoc(models.QuestionItem{
		QuestionText: "Question",
		Options: []models.QuestionOption{
			{Text: "A", IsCorrect: true},
			{Text: "B", IsCorrect: true},
		},
		Category: "Anatomie",
	})

	result := NewValidationEngine().Validate(doc)

	assert.False(t, result.IsValid)
	found := findError(result.Errors, "Plusieurs bonnes réponses détectées")
	require.NotNil(t, found)
	assert.Equal(t, apperrors.SeverityMajor, found.Severity)
	assert.Equal(t, apperrors.TypeValidation, found.Type)
}

func TestValidationEngine_Warnings(t *testing.T) {
	q := validQuestion("Question", "Anatomie")
	q.Explanation = ""
	q.Options = append(q.Options, models.QuestionOption{Text: " oui "})

	result := NewValidationEngine().Validate(&models.ImportDocument{
		Type:      models.ContentQuestions,
		Questions: []models.QuestionItem{q},
	})

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Errors)
	assert.NotNil(t, findError(result.Warnings, "Version du format manquante"))
	assert.NotNil(t, findError(result.Warnings, "Explication manquante"))
	assert.NotNil(t, findError(result.Warnings, "Option en double: oui"))
}

func TestValidationEngine_DuplicateQuestions(t *testing.T) {
	doc := questionsDoc(
		validQuestion("Quelle est la capitale ?", "Géographie"),
		validQuestion("  quelle est la CAPITALE ?", "Géographie"),
		validQuestion("Autre question", "Géographie"),
		validQuestion("Quelle est la capitale ?", "Géographie"),
	)

	result := NewValidationEngine().Validate(doc)

	assert.True(t, result.IsValid)
	assert.Equal(t, 2, result.Summary.Duplicates)

	var flagged []int
	for _, w := range result.Warnings {
		if w.Code == codeDuplicateQuestion {
			flagged = append(flagged, *w.ItemIndex)
		}
	}
	assert.Equal(t, []int{1, 3}, flagged)
}

func TestValidationEngine_Summary(t *testing.T) {
	bad := validQuestion("", "Cardiologie")
	bad.Options[1].IsCorrect = true

	result := NewValidationEngine().Validate(questionsDoc(
		validQuestion("Q1", "Cardiologie"),
		bad,
		validQuestion("Q3", ""),
	))

	assert.Equal(t, 3, result.Summary.TotalItems)
	assert.Equal(t, 2, result.Summary.InvalidItems)
	assert.Equal(t, 1, result.Summary.ValidItems)
}

func TestValidationEngine_EmptyAndStructural(t *testing.T) {
	tests := []struct {
		name    string
		doc     *models.ImportDocument
		message string
	}{
		{
			name:    "nil document",
			doc:     nil,
			message: "Document vide ou illisible",
		},
		{
			name:    "missing type",
			doc:     &models.ImportDocument{Version: "1.0"},
			message: "Type de contenu manquant",
		},
		{
			name:    "unknown type",
			doc:     &models.ImportDocument{Version: "1.0", Type: "videos"},
			message: "Type de contenu invalide: videos",
		},
		{
			name:    "empty questions",
			doc:     questionsDoc(),
			message: "Aucune question à importer",
		},
		{
			name:    "empty flashcards",
			doc:     &models.ImportDocument{Version: "1.0", Type: models.ContentFlashcards},
			message: "Aucune carte à importer",
		},
		{
			name: "learning path without questions",
			doc: &models.ImportDocument{Version: "1.0", Type: models.ContentLearningPath, Path: &models.LearningPath{
				Steps: []models.LearningStep{{ID: "s1", Title: "Intro"}},
			}},
			message: "Aucune question dans le parcours",
		},
	}

	engine := NewValidationEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Validate(tt.doc)

			assert.False(t, result.IsValid)
			found := findError(result.Errors, tt.message)
			require.NotNil(t, found)
			assert.Equal(t, apperrors.SeverityCritical, found.Severity)
		})
	}
}

func TestValidationEngine_Flashcards(t *testing.T) {
	doc := &models.ImportDocument{
		Version: "1.0",
		Type:    models.ContentFlashcards,
		Cards: []models.FlashcardItem{
			{Front: "ECG", Back: "Électrocardiogramme"},
			{Front: "IRM", Back: ""},
		},
	}

	result := NewValidationEngine().Validate(doc)

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "back", result.Errors[0].Field)
	assert.Equal(t, 1, *result.Errors[0].ItemIndex)
	assert.Equal(t, 1, result.Summary.ValidItems)
}

func TestValidationEngine_LearningPath(t *testing.T) {
	path := &models.LearningPath{
		Title: "Cardio",
		Steps: []models.LearningStep{
			{ID: "s1", Title: "Bases", Questions: []models.QuestionItem{validQuestion("Q1", "Cardiologie")}},
			{ID: "s2", Title: "", Prerequisites: []string{"s1", "s3"}, Questions: []models.QuestionItem{validQuestion("Q2", "Cardiologie")}},
			{ID: "s3", Title: "Avancé", Prerequisites: []string{"s9"}},
			{ID: "s1", Title: "Doublon"},
		},
	}

	result := NewValidationEngine().Validate(&models.ImportDocument{Version: "1.0", Type: models.ContentLearningPath, Path: path})

	assert.False(t, result.IsValid)
	assert.Equal(t, 2, result.Summary.TotalItems)

	missing := findError(result.Errors, "Prérequis introuvable: s9")
	require.NotNil(t, missing)
	assert.Equal(t, apperrors.TypeReference, missing.Type)
	assert.Equal(t, apperrors.SeverityCritical, missing.Severity)
	assert.Equal(t, "path.steps[2].prerequisites", missing.Field)

	// forward references are allowed
	assert.Nil(t, findError(result.Errors, "Prérequis introuvable: s3"))

	title := findError(result.Errors, "Le titre de l'étape est requis")
	require.NotNil(t, title)
	assert.Equal(t, apperrors.SeverityMajor, title.Severity)

	dup := findError(result.Errors, "Identifiant d'étape en double: s1 (déjà utilisé à l'étape 1)")
	require.NotNil(t, dup)
	assert.Equal(t, apperrors.SeverityMajor, dup.Severity)
}

func TestValidationEngine_LearningPathSelfPrerequisite(t *testing.T) {
	path := &models.LearningPath{
		Title: "Neuro",
		Steps: []models.LearningStep{
			{ID: "s1", Title: "Bases", Questions: []models.QuestionItem{validQuestion("Q1", "Neurologie")}},
			{ID: "s2", Title: "Suite", Prerequisites: []string{"s1", "s2"}, Questions: []models.QuestionItem{validQuestion("Q2", "Neurologie")}},
		},
	}

	result := NewValidationEngine().Validate(&models.ImportDocument{Version: "1.0", Type: models.ContentLearningPath, Path: path})

	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	self := result.Errors[0]
	assert.Equal(t, "Une étape ne peut pas être son propre prérequis: s2", self.Message)
	assert.Equal(t, apperrors.TypeReference, self.Type)
	assert.Equal(t, apperrors.SeverityCritical, self.Severity)
	assert.Equal(t, "path.steps[1].prerequisites", self.Field)
}

func TestValidationResult_Add(t *testing.T) {
	result := NewValidationEngine().Validate(questionsDoc(validQuestion("Q1", "Neuro")))
	require.True(t, result.IsValid)

	result.Add(apperrors.NewImportError(apperrors.TypeMapping, apperrors.SeverityWarning, "Catégorie inconnue").
		WithCategory("Neuro"))

	assert.True(t, result.IsValid)
	assert.Equal(t, []string{"Neuro"}, result.Summary.MissingCategories)

	result.Add(apperrors.NewImportError(apperrors.TypeSystem, apperrors.SeverityCritical, "boom"))
	assert.False(t, result.IsValid)
}
