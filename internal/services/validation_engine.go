package services

import (
	"fmt"
	"strings"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
)

// ValidationEngine applies structural and semantic rules to a parsed
// document. It has no side effects and never touches storage.
type ValidationEngine interface {
	Validate(doc *models.ImportDocument) *ValidationResult
}

type ValidationSummary struct {
	TotalItems        int      `json:"totalItems"`
	ValidItems        int      `json:"validItems"`
	InvalidItems      int      `json:"invalidItems"`
	Duplicates        int      `json:"duplicates"`
	MissingCategories []string `json:"missingCategories"`
}

type ValidationResult struct {
	IsValid  bool                   `json:"isValid"`
	Errors   apperrors.ImportErrors `json:"errors"`
	Warnings apperrors.ImportErrors `json:"warnings"`
	Summary  ValidationSummary      `json:"summary"`
}

// Add records an error or warning produced outside the engine, such as a
// category analysis, and refreshes the summary.
func (r *ValidationResult) Add(e apperrors.ImportError) {
	if e.Severity == apperrors.SeverityWarning {
		r.Warnings = append(r.Warnings, e)
	} else {
		r.Errors = append(r.Errors, e)
	}
	if e.IsCritical() {
		r.IsValid = false
	}
	r.summarize()
}

func (r *ValidationResult) summarize() {
	invalid := make(map[int]bool)
	for _, e := range r.Errors {
		if e.ItemIndex != nil {
			invalid[*e.ItemIndex] = true
		}
	}
	r.Summary.InvalidItems = len(invalid)
	r.Summary.ValidItems = r.Summary.TotalItems - r.Summary.InvalidItems
	if r.Summary.ValidItems < 0 {
		r.Summary.ValidItems = 0
	}

	duplicates := 0
	seen := make(map[string]bool)
	missing := []string{}
	for _, list := range []apperrors.ImportErrors{r.Errors, r.Warnings} {
		for _, e := range list {
			if e.Code == codeDuplicateQuestion {
				duplicates++
			}
			if e.RelatedCategory != "" && !seen[e.RelatedCategory] {
				seen[e.RelatedCategory] = true
				missing = append(missing, e.RelatedCategory)
			}
		}
	}
	r.Summary.Duplicates = duplicates
	r.Summary.MissingCategories = missing
}

const (
	codeDuplicateQuestion = "duplicate_question"
	codeMissingCategory   = "missing_category"
	codeEmptyImport       = "empty_import"
	codeMalformedDocument = "malformed_document"
)

type validationEngine struct{}

func NewValidationEngine() ValidationEngine {
	return &validationEngine{}
}

// validationRun accumulates the outcome of one Validate call. fail marks the
// document invalid, flag only records.
type validationRun struct {
	result  *ValidationResult
	invalid bool
}

func (r *validationRun) fail(e apperrors.ImportError) {
	r.invalid = true
	r.flag(e)
}

func (r *validationRun) flag(e apperrors.ImportError) {
	if e.Severity == apperrors.SeverityWarning {
		r.result.Warnings = append(r.result.Warnings, e)
		return
	}
	r.result.Errors = append(r.result.Errors, e)
}

func (v *validationEngine) Validate(doc *models.ImportDocument) *ValidationResult {
	run := &validationRun{result: &ValidationResult{
		Errors:   apperrors.ImportErrors{},
		Warnings: apperrors.ImportErrors{},
	}}

	if doc == nil {
		run.fail(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical,
			"Document vide ou illisible").WithCode(codeMalformedDocument))
		return v.finish(run)
	}

	if strings.TrimSpace(doc.Version) == "" {
		run.flag(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityWarning,
			"Version du format manquante").OnField("version").WithSuggestion(`Ajoutez "version": "1.0"`))
	}

	run.result.Summary.TotalItems = doc.ItemCount()

	switch doc.Type {
	case models.ContentQuestions:
		v.validateQuestionSet(run, doc.Questions)
	case models.ContentFlashcards:
		v.validateFlashcards(run, doc.Cards)
	case models.ContentLearningPath:
		v.validateLearningPath(run, doc.Path)
	default:
		message := "Type de contenu manquant"
		if doc.Type != "" {
			message = fmt.Sprintf("Type de contenu invalide: %s", doc.Type)
		}
		run.fail(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical, message).
			OnField("type").
			WithSuggestion("Utilisez questions, flashcards ou learning-path"))
	}

	return v.finish(run)
}

func (v *validationEngine) finish(run *validationRun) *ValidationResult {
	result := run.result
	result.IsValid = !run.invalid && !result.Errors.HasCritical()
	result.summarize()
	return result
}

func emptyImportError(message, field string) apperrors.ImportError {
	return apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical, message).
		OnField(field).
		WithCode(codeEmptyImport)
}

// ===== QUESTIONS =====

func (v *validationEngine) validateQuestionSet(run *validationRun, questions []models.QuestionItem) {
	if len(questions) == 0 {
		run.fail(emptyImportError("Aucune question à importer", "questions"))
		return
	}

	firstSeen := make(map[string]int)
	for i := range questions {
		v.validateQuestion(run, i, &questions[i])

		key := strings.ToLower(strings.TrimSpace(questions[i].QuestionText))
		if key == "" {
			continue
		}
		if first, ok := firstSeen[key]; ok {
			run.flag(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityWarning,
				fmt.Sprintf("Question en double (identique à la question %d)", first+1)).
				AtItem(i).
				OnField("questionText").
				WithCode(codeDuplicateQuestion))
			continue
		}
		firstSeen[key] = i
	}
}

func (v *validationEngine) validateQuestion(run *validationRun, index int, q *models.QuestionItem) {
	newErr := func(severity apperrors.Severity, field, message string) apperrors.ImportError {
		return apperrors.NewImportError(apperrors.TypeValidation, severity, message).AtItem(index).OnField(field)
	}

	if strings.TrimSpace(q.QuestionText) == "" {
		run.fail(newErr(apperrors.SeverityCritical, "questionText", "Le texte de la question est requis"))
	}

	switch {
	case q.Options == nil:
		run.fail(newErr(apperrors.SeverityCritical, "options", "Les options de réponse sont requises"))
	case len(q.Options) < 2:
		run.flag(newErr(apperrors.SeverityMajor, "options", "Au moins 2 options sont requises").
			WithSuggestion("Ajoutez au moins une option supplémentaire"))
	}

	if q.Options != nil {
		switch correct := q.CorrectCount(); {
		case correct == 0:
			run.fail(newErr(apperrors.SeverityCritical, "options", "Aucune bonne réponse définie").
				WithSuggestion("Marquez exactement une option avec isCorrect: true"))
		case correct > 1:
			run.fail(newErr(apperrors.SeverityMajor, "options", "Plusieurs bonnes réponses détectées").
				WithSuggestion("Une seule option doit être correcte"))
		}

		seen := make(map[string]bool)
		for _, opt := range q.Options {
			key := strings.ToLower(strings.TrimSpace(opt.Text))
			if key == "" {
				continue
			}
			if seen[key] {
				run.flag(newErr(apperrors.SeverityWarning, "options",
					fmt.Sprintf("Option en double: %s", strings.TrimSpace(opt.Text))))
				continue
			}
			seen[key] = true
		}
	}

	if strings.TrimSpace(q.Explanation) == "" {
		run.flag(newErr(apperrors.SeverityWarning, "explanation", "Explication manquante"))
	}

	if strings.TrimSpace(q.Category) == "" {
		run.flag(newErr(apperrors.SeverityMajor, "category", "Catégorie manquante").
			WithCode(codeMissingCategory).
			WithSuggestion("Indiquez une catégorie existante ou à créer"))
	}

	if q.Difficulty != "" && !q.Difficulty.IsValid() {
		run.fail(newErr(apperrors.SeverityMinor, "difficulty",
			fmt.Sprintf("Difficulté invalide: %s", q.Difficulty)).
			WithSuggestion("Utilisez easy, medium ou hard"))
	}

	if q.Level != "" && !q.Level.IsValid() {
		run.fail(newErr(apperrors.SeverityMinor, "level",
			fmt.Sprintf("Niveau invalide: %s", q.Level)).
			WithSuggestion("Utilisez PASS, LAS ou both"))
	}
}

// ===== FLASHCARDS =====

func (v *validationEngine) validateFlashcards(run *validationRun, cards []models.FlashcardItem) {
	if len(cards) == 0 {
		run.fail(emptyImportError("Aucune carte à importer", "cards"))
		return
	}

	for i, card := range cards {
		if strings.TrimSpace(card.Front) == "" {
			run.fail(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical,
				"Le recto de la carte est requis").AtItem(i).OnField("front"))
		}
		if strings.TrimSpace(card.Back) == "" {
			run.fail(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical,
				"Le verso de la carte est requis").AtItem(i).OnField("back"))
		}
	}
}

// ===== LEARNING PATHS =====

func (v *validationEngine) validateLearningPath(run *validationRun, path *models.LearningPath) {
	if path == nil || path.Steps == nil {
		run.fail(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical,
			"Le parcours doit contenir une liste d'étapes").OnField("path.steps"))
		return
	}

	ids := make(map[string]int)
	for i, step := range path.Steps {
		field := fmt.Sprintf("path.steps[%d]", i)
		id := strings.TrimSpace(step.ID)

		if id == "" {
			run.fail(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical,
				"L'identifiant de l'étape est requis").OnField(field + ".id"))
		} else if first, ok := ids[id]; ok {
			run.flag(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityMajor,
				fmt.Sprintf("Identifiant d'étape en double: %s (déjà utilisé à l'étape %d)", id, first+1)).
				OnField(field + ".id"))
		} else {
			ids[id] = i
		}

		if strings.TrimSpace(step.Title) == "" {
			run.flag(apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityMajor,
				"Le titre de l'étape est requis").OnField(field + ".title"))
		}
	}

	// Prerequisites may point forward, so they are checked once every id is known
	for i, step := range path.Steps {
		for _, prereq := range step.Prerequisites {
			if strings.TrimSpace(prereq) == strings.TrimSpace(step.ID) {
				run.fail(apperrors.NewImportError(apperrors.TypeReference, apperrors.SeverityCritical,
					fmt.Sprintf("Une étape ne peut pas être son propre prérequis: %s", prereq)).
					OnField(fmt.Sprintf("path.steps[%d].prerequisites", i)).
					WithSuggestion("Référencez l'identifiant d'une autre étape du même parcours"))
				continue
			}
			if _, ok := ids[strings.TrimSpace(prereq)]; ok {
				continue
			}
			run.fail(apperrors.NewImportError(apperrors.TypeReference, apperrors.SeverityCritical,
				fmt.Sprintf("Prérequis introuvable: %s", prereq)).
				OnField(fmt.Sprintf("path.steps[%d].prerequisites", i)).
				WithSuggestion("Référencez l'identifiant d'une étape du même parcours"))
		}
	}

	items := (&models.ImportDocument{Type: models.ContentLearningPath, Path: path}).Items()
	if len(items) == 0 {
		run.fail(emptyImportError("Aucune question dans le parcours", "path.steps"))
		return
	}
	for _, item := range items {
		v.validateQuestion(run, item.Index, item.Question)
	}
}
