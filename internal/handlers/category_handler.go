package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/services"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/SAP-F-2025/content-import-service/internal/validator"
	"github.com/gin-gonic/gin"
)

type ApplyMappingRequest struct {
	OriginalName  string  `json:"originalName" validate:"required,max=255"`
	SuggestedName string  `json:"suggestedName" validate:"max=255"`
	Confidence    float64 `json:"confidence" validate:"gte=0,lte=1"`
	Action        string  `json:"action" validate:"required,category_action"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type CategoryHandler struct {
	BaseHandler
	matcher   services.CategoryMatcher
	parser    services.ImportParser
	validator *validator.Validator
	maxBytes  int64
}

func NewCategoryHandler(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	maxBytes int64,
) *CategoryHandler {
	return &CategoryHandler{
		BaseHandler: NewBaseHandler(logger),
		matcher:     serviceManager.Categories(),
		parser:      serviceManager.Parser(),
		validator:   validator,
		maxBytes:    maxBytes,
	}
}

// AnalyzeCategories returns the matcher's verdict for every category a
// document references
// @Router /categories/analyze [post]
func (h *CategoryHandler) AnalyzeCategories(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	input, ok := readImportInput(c, &h.BaseHandler, h.parser, h.validator, h.maxBytes)
	if !ok {
		return
	}
	if input.document == nil {
		h.handleServiceError(c, &services.PreflightError{Result: input.result})
		return
	}

	analyses, err := h.matcher.Analyze(c.Request.Context(), input.document, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": analyses, "total": len(analyses)})
}

// ApplyMapping records a mapping decision and returns the target category
// @Router /categories/mappings [post]
func (h *CategoryHandler) ApplyMapping(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ApplyMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, codeValidation, "Corps de requête invalide", err, err.Error())
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Applying category mapping", "original_name", req.OriginalName, "action", req.Action)

	category, err := h.matcher.ApplyMapping(c.Request.Context(), userID, models.CategoryMapping{
		OriginalName:  req.OriginalName,
		SuggestedName: req.SuggestedName,
		Confidence:    req.Confidence,
		Action:        models.MappingAction(req.Action),
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusOK, "Correspondance enregistrée", category)
}

// @Router /categories [post]
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, codeValidation, "Corps de requête invalide", err, err.Error())
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	category, err := h.matcher.CreateNewCategory(c.Request.Context(), userID, req.Name)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.RespondWithSuccess(c, http.StatusCreated, "Catégorie créée", category)
}

// @Router /categories [get]
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	categories, err := h.matcher.ListCategories(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories, "total": len(categories)})
}

// @Router /categories/mappings/stats [get]
func (h *CategoryHandler) GetMappingStatistics(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	stats, err := h.matcher.GetMappingStatistics(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
