package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := strings.TrimSpace(c.Param(param))
	if idStr == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Message: "Paramètre invalide: " + param,
			Details: "ID cannot be empty",
			Code:    codeValidation,
		})
		return ""
	}
	return idStr
}

// parseLimitQuery reads ?limit=, clamped to [1, max]
func parseLimitQuery(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// currentUserID returns the authenticated caller, answering 401 when absent
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Utilisateur non authentifié",
			Code:    "unauthenticated",
		})
		return "", false
	}
	return userID, true
}
