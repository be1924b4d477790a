package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	DefaultMaxImportItems = 1000

	parsedDocumentVersion = "1.0"
)

// ImportParser turns uploaded files into ImportDocuments. Failures are
// reported as a ValidationResult of critical errors, one per unreadable JSON
// item or a single one for the whole file; a nil result means the document
// was parsed.
type ImportParser interface {
	Parse(fileName string, data []byte, contentType models.ContentType) (*models.ImportDocument, *ValidationResult)
	ParseJSON(data []byte) (*models.ImportDocument, *ValidationResult)
	ParseCSV(r io.Reader, contentType models.ContentType) (*models.ImportDocument, *ValidationResult)
	ParseXLSX(r io.Reader, contentType models.ContentType) (*models.ImportDocument, *ValidationResult)
}

type ParserConfig struct {
	MaxBytes int64
	MaxItems int
}

type importParser struct {
	logger *slog.Logger
	config ParserConfig
}

func NewImportParser(logger *slog.Logger, config ParserConfig) ImportParser {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxUploadBytes
	}
	if config.MaxItems <= 0 {
		config.MaxItems = DefaultMaxImportItems
	}
	return &importParser{logger: logger, config: config}
}

// FormatFromFileName maps a file extension to an import format
func FormatFromFileName(fileName string) (models.ImportFormat, bool) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".json":
		return models.FormatJSON, true
	case ".csv", ".tsv", ".txt":
		return models.FormatCSV, true
	case ".xlsx":
		return models.FormatXLSX, true
	}
	return "", false
}

func parseFailure(message, suggestion string) *ValidationResult {
	e := apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical, message).
		WithCode(codeMalformedDocument)
	if suggestion != "" {
		e = e.WithSuggestion(suggestion)
	}
	result := &ValidationResult{
		Errors:   apperrors.ImportErrors{e},
		Warnings: apperrors.ImportErrors{},
	}
	result.summarize()
	return result
}

func (p *importParser) Parse(fileName string, data []byte, contentType models.ContentType) (*models.ImportDocument, *ValidationResult) {
	if int64(len(data)) > p.config.MaxBytes {
		return nil, parseFailure(
			fmt.Sprintf("Fichier trop volumineux: %d octets (maximum %d)", len(data), p.config.MaxBytes),
			"Découpez le fichier en plusieurs imports")
	}

	format, ok := FormatFromFileName(fileName)
	if !ok {
		return nil, parseFailure(
			fmt.Sprintf("Format de fichier non supporté: %s", filepath.Ext(fileName)),
			"Utilisez un fichier .json, .csv ou .xlsx")
	}

	p.logger.Debug("Parsing import file", "file_name", fileName, "format", format, "bytes", len(data))

	switch format {
	case models.FormatJSON:
		return p.ParseJSON(data)
	case models.FormatXLSX:
		return p.ParseXLSX(bytes.NewReader(data), contentType)
	default:
		return p.ParseCSV(bytes.NewReader(data), contentType)
	}
}

func (p *importParser) ParseJSON(data []byte) (*models.ImportDocument, *ValidationResult) {
	if int64(len(data)) > p.config.MaxBytes {
		return nil, parseFailure(
			fmt.Sprintf("Fichier trop volumineux: %d octets (maximum %d)", len(data), p.config.MaxBytes), "")
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		p.logger.Debug("Rejected malformed JSON import", "error", err)
		return nil, parseFailure(fmt.Sprintf("JSON invalide: %s", err.Error()),
			"Vérifiez la syntaxe et les types du document")
	}

	doc := &models.ImportDocument{
		Version:  raw.Version,
		Type:     raw.Type,
		Metadata: raw.Metadata,
		Path:     raw.Path,
	}
	var itemErrors apperrors.ImportErrors
	doc.Questions = decodeItems[models.QuestionItem](raw.Questions, &itemErrors)
	doc.Cards = decodeItems[models.FlashcardItem](raw.Cards, &itemErrors)

	if len(itemErrors) > 0 {
		p.logger.Debug("Rejected JSON import with malformed items", "count", len(itemErrors))
		result := &ValidationResult{
			Errors:   itemErrors,
			Warnings: apperrors.ImportErrors{},
			Summary:  ValidationSummary{TotalItems: len(raw.Questions) + len(raw.Cards)},
		}
		result.summarize()
		return nil, result
	}

	return p.checkLimits(doc)
}

// rawDocument defers item decoding so a badly typed item is reported at its index
type rawDocument struct {
	Version   string                 `json:"version,omitempty"`
	Type      models.ContentType     `json:"type"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Questions []json.RawMessage      `json:"questions,omitempty"`
	Cards     []json.RawMessage      `json:"cards,omitempty"`
	Path      *models.LearningPath   `json:"path,omitempty"`
}

func decodeItems[T any](raw []json.RawMessage, errs *apperrors.ImportErrors) []T {
	if raw == nil {
		return nil
	}
	items := make([]T, len(raw))
	for i, msg := range raw {
		if err := json.Unmarshal(msg, &items[i]); err != nil {
			e := apperrors.NewImportError(apperrors.TypeValidation, apperrors.SeverityCritical,
				fmt.Sprintf("Élément illisible: %s", err.Error())).
				WithCode(codeMalformedDocument).
				WithSuggestion("Vérifiez les types des champs de cet élément").
				AtItem(i)
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field != "" {
				e = e.OnField(typeErr.Field)
			}
			*errs = append(*errs, e)
		}
	}
	return items
}

func (p *importParser) checkLimits(doc *models.ImportDocument) (*models.ImportDocument, *ValidationResult) {
	if count := doc.ItemCount(); count > p.config.MaxItems {
		return nil, parseFailure(
			fmt.Sprintf("Trop d'éléments: %d (maximum %d)", count, p.config.MaxItems),
			"Découpez le fichier en plusieurs imports")
	}
	return doc, nil
}

func (p *importParser) ParseCSV(r io.Reader, contentType models.ContentType) (*models.ImportDocument, *ValidationResult) {
	data, err := io.ReadAll(io.LimitReader(r, p.config.MaxBytes+1))
	if err != nil {
		return nil, parseFailure(fmt.Sprintf("Lecture du fichier impossible: %s", err.Error()), "")
	}
	if int64(len(data)) > p.config.MaxBytes {
		return nil, parseFailure(fmt.Sprintf("Fichier trop volumineux (maximum %d octets)", p.config.MaxBytes), "")
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	csvReader := csv.NewReader(bytes.NewReader(data))
	csvReader.Comma = sniffDelimiter(data)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, parseFailure(fmt.Sprintf("CSV invalide: %s", err.Error()),
			"Vérifiez les guillemets et le séparateur")
	}

	return p.rowsToDocument(records, contentType)
}

func (p *importParser) ParseXLSX(r io.Reader, contentType models.ContentType) (*models.ImportDocument, *ValidationResult) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, parseFailure(fmt.Sprintf("Fichier Excel illisible: %s", err.Error()), "")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, parseFailure("Le fichier Excel ne contient aucune feuille", "")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, parseFailure(fmt.Sprintf("Lecture de la feuille impossible: %s", err.Error()), "")
	}

	return p.rowsToDocument(rows, contentType)
}

// ===== TABULAR MAPPING =====

// sniffDelimiter picks the most frequent of comma, semicolon and tab on the
// first line. Ties go to the comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, candidate := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

var columnAliases = map[string]string{
	"questiontext":  "questionText",
	"question":      "questionText",
	"enonce":        "questionText",
	"options":       "options",
	"choices":       "options",
	"optiona":       "optionA",
	"optionb":       "optionB",
	"optionc":       "optionC",
	"optiond":       "optionD",
	"optione":       "optionE",
	"optionf":       "optionF",
	"correctanswer": "correctAnswer",
	"answer":        "correctAnswer",
	"reponse":       "correctAnswer",
	"explanation":   "explanation",
	"explication":   "explanation",
	"category":      "category",
	"categorie":     "category",
	"difficulty":    "difficulty",
	"difficulte":    "difficulty",
	"level":         "level",
	"niveau":        "level",
	"tags":          "tags",
	"front":         "front",
	"recto":         "front",
	"back":          "back",
	"verso":         "back",
	"hint":          "hint",
	"indice":        "hint",
}

var positionalColumns = map[models.ContentType][]string{
	models.ContentQuestions: {
		"questionText", "optionA", "optionB", "optionC", "optionD", "correctAnswer",
		"explanation", "category", "difficulty", "level", "tags",
	},
	models.ContentFlashcards: {"front", "back", "category", "hint", "tags"},
}

var optionColumns = []string{"optionA", "optionB", "optionC", "optionD", "optionE", "optionF"}

func headerKey(cell string) string {
	return strings.ReplaceAll(utils.NormalizeName(cell), " ", "")
}

// detectHeader returns the column layout from a header row, or nil when the
// row is data
func detectHeader(row []string) map[string]int {
	layout := make(map[string]int)
	for i, cell := range row {
		if column, ok := columnAliases[headerKey(cell)]; ok {
			if _, dup := layout[column]; !dup {
				layout[column] = i
			}
		}
	}
	_, hasQuestion := layout["questionText"]
	_, hasFront := layout["front"]
	if !hasQuestion && !hasFront {
		return nil
	}
	return layout
}

func (p *importParser) rowsToDocument(rows [][]string, contentType models.ContentType) (*models.ImportDocument, *ValidationResult) {
	if contentType == models.ContentLearningPath {
		return nil, parseFailure("Les parcours d'apprentissage ne peuvent être importés qu'au format JSON", "")
	}
	if !contentType.IsValid() {
		return nil, parseFailure(fmt.Sprintf("Type de contenu invalide: %s", contentType),
			"Utilisez questions ou flashcards")
	}

	rows = dropEmptyRows(rows)
	if len(rows) == 0 {
		return nil, parseFailure("Le fichier ne contient aucune ligne", "")
	}

	layout := detectHeader(rows[0])
	if layout != nil {
		rows = rows[1:]
	} else {
		layout = make(map[string]int)
		for i, column := range positionalColumns[contentType] {
			layout[column] = i
		}
	}

	doc := &models.ImportDocument{Version: parsedDocumentVersion, Type: contentType}
	for _, row := range rows {
		get := func(column string) string {
			if i, ok := layout[column]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		if contentType == models.ContentFlashcards {
			doc.Cards = append(doc.Cards, models.FlashcardItem{
				Front:    get("front"),
				Back:     get("back"),
				Hint:     get("hint"),
				Category: get("category"),
				Tags:     splitList(get("tags")),
			})
			continue
		}

		doc.Questions = append(doc.Questions, rowToQuestion(get))
	}

	return p.checkLimits(doc)
}

func rowToQuestion(get func(string) string) models.QuestionItem {
	var texts []string
	if raw := get("options"); raw != "" {
		for _, opt := range strings.Split(raw, "|") {
			if opt = strings.TrimSpace(opt); opt != "" {
				texts = append(texts, opt)
			}
		}
	} else {
		for _, column := range optionColumns {
			if text := get(column); text != "" {
				texts = append(texts, text)
			}
		}
	}

	options := make([]models.QuestionOption, len(texts))
	for i, text := range texts {
		options[i] = models.QuestionOption{Text: text}
	}
	markCorrect(options, get("correctAnswer"))

	return models.QuestionItem{
		QuestionText: get("questionText"),
		Options:      options,
		Explanation:  get("explanation"),
		Category:     get("category"),
		Difficulty:   models.DifficultyLevel(strings.ToLower(get("difficulty"))),
		Level:        normalizeLevel(get("level")),
		Tags:         splitList(get("tags")),
	}
}

// markCorrect accepts letters (A-F), 1-based indexes or the option text,
// several answers separated by commas or pipes
func markCorrect(options []models.QuestionOption, answer string) {
	for _, part := range strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == '|' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		index := -1
		upper := strings.ToUpper(part)
		switch {
		case len(upper) == 1 && upper[0] >= 'A' && upper[0] <= 'F':
			index = int(upper[0] - 'A')
		default:
			if n, err := strconv.Atoi(part); err == nil {
				index = n - 1
			} else {
				for i, opt := range options {
					if strings.EqualFold(strings.TrimSpace(opt.Text), part) {
						index = i
						break
					}
				}
			}
		}

		if index >= 0 && index < len(options) {
			options[index].IsCorrect = true
		}
	}
}

func normalizeLevel(raw string) models.StudyLevel {
	switch strings.ToUpper(raw) {
	case "PASS":
		return models.LevelPASS
	case "LAS":
		return models.LevelLAS
	case "BOTH":
		return models.LevelBoth
	}
	return models.StudyLevel(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '|' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
