package handlers

import (
	"errors"
	"net/http"

	apperrors "github.com/SAP-F-2025/content-import-service/internal/errors"
	"github.com/SAP-F-2025/content-import-service/internal/services"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	codeValidation   = "validation_failed"
	codePreflight    = "preflight_rejected"
	codeNotFound     = "not_found"
	codeForbidden    = "forbidden"
	codeConflict     = "conflict"
	codeBusinessRule = "business_rule"
	codeInternal     = "internal_error"
)

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides request-scoped logging and error mapping
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	return utils.GetLoggerFromContext(c, h.logger)
}

// LogRequest logs the start of an operation with the caller id
func (h *BaseHandler) LogRequest(c *gin.Context, message string, fields ...interface{}) {
	h.log(c).Info(message, append([]interface{}{"user_id", c.GetString(userIDKey)}, fields...)...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, fields ...interface{}) {
	h.log(c).LogError(err, message, append([]interface{}{"user_id", c.GetString(userIDKey)}, fields...)...)
}

// RespondWithError sends an ErrorResponse, logging server-side failures
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, code, message string, err error, details ...interface{}) {
	resp := ErrorResponse{Message: message, Code: code}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	if err != nil {
		_ = c.Error(err)
		if statusCode >= http.StatusInternalServerError {
			h.LogError(c, err, message, "status_code", statusCode)
		}
	}
	c.AbortWithStatusJSON(statusCode, resp)
}

func (h *BaseHandler) RespondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{Message: message, Data: data})
}

// handleServiceError maps service errors to HTTP responses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var preflight *services.PreflightError
	if errors.As(err, &preflight) {
		h.RespondWithError(c, http.StatusBadRequest, codePreflight,
			"L'import contient des erreurs bloquantes", err, preflight.Result)
		return
	}

	var validationErrors apperrors.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, codeValidation, "Données invalides", err, validationErrors)
		return
	}

	var businessRule *services.BusinessRuleError
	if errors.As(err, &businessRule) {
		h.RespondWithError(c, http.StatusUnprocessableEntity, codeBusinessRule, businessRule.Message, err, map[string]interface{}{
			"rule":    businessRule.Rule,
			"context": businessRule.Context,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrEmptyImport):
		h.RespondWithError(c, http.StatusBadRequest, codeValidation, "L'import ne contient aucun élément", err)
	case services.IsValidation(err):
		h.RespondWithError(c, http.StatusBadRequest, codeValidation, "Requête invalide", err, err.Error())
	case errors.Is(err, services.ErrJobNotFound):
		h.RespondWithError(c, http.StatusNotFound, codeNotFound, "Import introuvable", err)
	case errors.Is(err, services.ErrBackupNotFound):
		h.RespondWithError(c, http.StatusNotFound, codeNotFound, "Aucune sauvegarde pour cet import", err)
	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, codeNotFound, "Ressource introuvable", err)
	case services.IsUnauthorized(err):
		h.RespondWithError(c, http.StatusForbidden, codeForbidden, "Accès refusé", err)
	case errors.Is(err, services.ErrRollbackNotPossible):
		h.RespondWithError(c, http.StatusConflict, codeConflict, "Rollback impossible pour cet import", err)
	case errors.Is(err, services.ErrInvalidTransition):
		h.RespondWithError(c, http.StatusConflict, codeConflict, "Transition d'état impossible", err)
	case services.IsConflict(err):
		h.RespondWithError(c, http.StatusConflict, codeConflict, "Opération impossible dans l'état actuel", err)
	default:
		h.RespondWithError(c, http.StatusInternalServerError, codeInternal, "Erreur interne du serveur", err)
	}
}

// HealthCheck reports liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "content-import-service",
	})
}
