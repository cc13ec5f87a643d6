package handlers

import (
	"errors"
	"log"
	"net/http"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/services"
	"contest-lifecycle/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusFor maps core errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case lifecycle.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrContestNotFound), errors.Is(err, lifecycle.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTemplateBusy),
		errors.Is(err, services.ErrNotScheduled),
		errors.Is(err, services.ErrTemplateCancelled),
		errors.Is(err, services.ErrStandingsRejected),
		errors.Is(err, settlement.ErrNoSnapshot):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrMalformedPayoutTable), errors.Is(err, settlement.ErrMalformedSnapshot):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(code, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	c.JSON(code, gin.H{"success": false, "error": err.Error()})
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// pathUUID parses a uuid path parameter, writing a 400 when it is malformed.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
