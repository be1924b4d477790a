package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/services"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/SAP-F-2025/content-import-service/internal/validator"
	"github.com/gin-gonic/gin"
)

// ImportRequest is the JSON-body form of an import submission. File uploads
// use multipart fields of the same names with the document in "file".
type ImportRequest struct {
	FileName    string          `json:"fileName"`
	ContentType string          `json:"contentType" validate:"omitempty,content_type"`
	Document    json.RawMessage `json:"document" validate:"required"`
	Options     json.RawMessage `json:"options,omitempty"`
}

// importInput is a parsed submission
type importInput struct {
	document *models.ImportDocument
	result   *services.ValidationResult
	fileName string
	format   models.ImportFormat
	options  models.BatchOptions
}

type ImportHandler struct {
	BaseHandler
	parser    services.ImportParser
	preview   services.PreviewService
	processor services.BatchProcessor
	reports   services.ReportService
	validator *validator.Validator
	maxBytes  int64
	chunkSize int
}

func NewImportHandler(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	maxBytes int64,
	chunkSize int,
) *ImportHandler {
	return &ImportHandler{
		BaseHandler: NewBaseHandler(logger),
		parser:      serviceManager.Parser(),
		preview:     serviceManager.Preview(),
		processor:   serviceManager.Processor(),
		reports:     serviceManager.Reports(),
		validator:   validator,
		maxBytes:    maxBytes,
		chunkSize:   chunkSize,
	}
}

// ValidateImport parses a submission and returns its preview without writing
// @Summary Validate import
// @Tags imports
// @Accept json,mpfd
// @Produce json
// @Success 200 {object} services.ImportPreview
// @Failure 400 {object} ErrorResponse
// @Router /imports/validate [post]
func (h *ImportHandler) ValidateImport(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	input, ok := h.readInput(c)
	if !ok {
		return
	}
	h.LogRequest(c, "Validating import", "file_name", input.fileName)

	if input.document == nil {
		c.JSON(http.StatusOK, services.ImportPreview{
			Validation: input.result,
			Categories: []models.CategoryAnalysis{},
		})
		return
	}

	chunkSize := input.options.ChunkSize
	if chunkSize == 0 {
		chunkSize = h.chunkSize
	}
	preview, err := h.preview.Preview(c.Request.Context(), input.document, userID, chunkSize)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// StartImport parses a submission and queues it for chunked processing
// @Summary Start import
// @Tags imports
// @Accept json,mpfd
// @Produce json
// @Success 202 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /imports [post]
func (h *ImportHandler) StartImport(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	input, ok := h.readInput(c)
	if !ok {
		return
	}
	if input.document == nil {
		h.handleServiceError(c, &services.PreflightError{Result: input.result})
		return
	}

	h.LogRequest(c, "Starting import", "file_name", input.fileName, "content_type", input.document.Type)

	jobID, err := h.processor.StartBatchProcessing(
		c.Request.Context(), input.document, userID, input.fileName, input.format, input.options)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":  jobID,
		"status": models.JobQueued,
	})
}

// @Router /imports [get]
func (h *ImportHandler) ListImports(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	jobs, err := h.processor.ListJobs(c.Request.Context(), userID, parseLimitQuery(c, 20, 100))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// @Router /imports/{id} [get]
func (h *ImportHandler) GetImport(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	jobID := ParseStringIDParam(c, "id")
	if jobID == "" {
		return
	}

	job, err := h.processor.GetJob(c.Request.Context(), jobID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, job.Summary())
}

func (h *ImportHandler) PauseImport(c *gin.Context) {
	h.transition(c, "pause", h.processor.PauseJob)
}

func (h *ImportHandler) ResumeImport(c *gin.Context) {
	h.transition(c, "resume", h.processor.ResumeJob)
}

func (h *ImportHandler) CancelImport(c *gin.Context) {
	h.transition(c, "cancel", h.processor.CancelJob)
}

type jobAction func(ctx context.Context, jobID, userID string) error

// transition applies a state change and answers with the fresh snapshot
func (h *ImportHandler) transition(c *gin.Context, action string, apply jobAction) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	jobID := ParseStringIDParam(c, "id")
	if jobID == "" {
		return
	}

	h.LogRequest(c, "Import state change requested", "job_id", jobID, "action", action)

	ctx := c.Request.Context()
	if err := apply(ctx, jobID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	job, err := h.processor.GetJob(ctx, jobID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, job.Summary())
}

// GetReport renders the job report as JSON, CSV or XLSX
// @Param format query string false "json, csv or xlsx"
// @Router /imports/{id}/report [get]
func (h *ImportHandler) GetReport(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	jobID := ParseStringIDParam(c, "id")
	if jobID == "" {
		return
	}

	job, err := h.processor.GetJob(c.Request.Context(), jobID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	report := h.reports.Generate(job)
	format := services.ReportFormat(strings.ToLower(c.DefaultQuery("format", string(services.ReportJSON))))
	if format == services.ReportJSON {
		c.JSON(http.StatusOK, report)
		return
	}

	data, err := h.reports.Export(report, format)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="import-%s.%s"`, job.ID, format))
	c.Data(http.StatusOK, format.ContentType(), data)
}

// @Router /imports/{id}/rollback [get]
func (h *ImportHandler) CheckRollback(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	jobID := ParseStringIDParam(c, "id")
	if jobID == "" {
		return
	}

	check, err := h.processor.ValidateRollback(c.Request.Context(), jobID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// RollbackImport reverts what a finished import wrote. The body is optional.
// @Param options body models.RollbackOptions false "Rollback options"
// @Router /imports/{id}/rollback [post]
func (h *ImportHandler) RollbackImport(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	jobID := ParseStringIDParam(c, "id")
	if jobID == "" {
		return
	}

	var options models.RollbackOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&options); err != nil && !errors.Is(err, io.EOF) {
			h.RespondWithError(c, http.StatusBadRequest, codeValidation, "Corps de requête invalide", err, err.Error())
			return
		}
	}

	h.LogRequest(c, "Rollback requested", "job_id", jobID, "dry_run", options.DryRun)

	result, err := h.processor.RollbackJob(c.Request.Context(), jobID, userID, options)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ===== INPUT DECODING =====

// readInput decodes a multipart upload or a JSON body into a document. A
// document that fails to parse comes back as a nil document with the parse
// result; transport-level problems are answered here and ok is false.
func (h *ImportHandler) readInput(c *gin.Context) (*importInput, bool) {
	return readImportInput(c, &h.BaseHandler, h.parser, h.validator, h.maxBytes)
}

func readImportInput(c *gin.Context, base *BaseHandler, parser services.ImportParser, v *validator.Validator, maxBytes int64) (*importInput, bool) {
	if maxBytes > 0 {
		// multipart framing needs some room over the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+64*1024)
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return readMultipartInput(c, base, parser, v)
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation, "Corps de requête invalide", err, err.Error())
		return nil, false
	}
	if err := v.Validate(&req); err != nil {
		base.handleServiceError(c, err)
		return nil, false
	}

	options, err := decodeOptions(req.Options)
	if err != nil {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation, "Options d'import invalides", err, err.Error())
		return nil, false
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = "import.json"
	}
	doc, result := parser.ParseJSON(req.Document)
	if doc != nil && req.ContentType != "" && doc.Type != models.ContentType(req.ContentType) {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation,
			fmt.Sprintf("Type de contenu incohérent: %s déclaré, %s reçu", req.ContentType, doc.Type), nil)
		return nil, false
	}

	return &importInput{
		document: doc,
		result:   result,
		fileName: fileName,
		format:   models.FormatJSON,
		options:  options,
	}, true
}

func readMultipartInput(c *gin.Context, base *BaseHandler, parser services.ImportParser, v *validator.Validator) (*importInput, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation, "Fichier manquant", err, err.Error())
		return nil, false
	}

	contentType := c.DefaultPostForm("contentType", string(models.ContentQuestions))
	if err := v.Engine().Var(contentType, "content_type"); err != nil {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation,
			fmt.Sprintf("Type de contenu inconnu: %s", contentType), err)
		return nil, false
	}

	options, err := decodeOptions(json.RawMessage(c.PostForm("options")))
	if err != nil {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation, "Options d'import invalides", err, err.Error())
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation, "Fichier illisible", err)
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		base.RespondWithError(c, http.StatusBadRequest, codeValidation, "Fichier illisible", err)
		return nil, false
	}

	format, _ := services.FormatFromFileName(header.Filename)
	doc, result := parser.Parse(header.Filename, data, models.ContentType(contentType))
	return &importInput{
		document: doc,
		result:   result,
		fileName: header.Filename,
		format:   format,
		options:  options,
	}, true
}

// decodeOptions overlays the caller's options on the defaults. Chunk size is
// left to the processor's configured default unless the caller sets one.
func decodeOptions(raw json.RawMessage) (models.BatchOptions, error) {
	options := models.DefaultBatchOptions()
	options.ChunkSize = 0
	if len(strings.TrimSpace(string(raw))) == 0 {
		return options, nil
	}
	if err := json.Unmarshal(raw, &options); err != nil {
		return options, fmt.Errorf("failed to decode options: %w", err)
	}
	return options, nil
}
