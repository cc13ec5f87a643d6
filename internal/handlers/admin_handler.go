package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contest-lifecycle/internal/lifecycle"
	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/repository"
	"contest-lifecycle/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OperatorHeader names the operator an admin request is attributed to.
// Authenticating it is left to the gateway in front of this service.
const OperatorHeader = "X-Operator"

type AdminHandler struct {
	admin     *services.AdminService
	templates *services.TemplateService
	clock     func() time.Time
}

func NewAdminHandler(admin *services.AdminService, templates *services.TemplateService) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		templates: templates,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// OperatorMiddleware requires an operator label on every admin request
func (h *AdminHandler) OperatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := strings.TrimSpace(c.GetHeader(OperatorHeader))
		if operator == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Operator header required"})
			c.Abort()
			return
		}
		c.Set("operator", operator)
		c.Next()
	}
}

type contestCommand func(ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error)

// runCommand wraps a single-contest admin command.
func (h *AdminHandler) runCommand(cmd contestCommand) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathUUID(c, "id")
		if !ok {
			return
		}

		res, err := cmd(c.Request.Context(), c.GetString("operator"), id, h.clock())
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, res)
	}
}

// ForceLock locks a contest early
func (h *AdminHandler) ForceLock(c *gin.Context) {
	h.runCommand(h.admin.ForceLock)(c)
}

// ForceLive starts a contest early
func (h *AdminHandler) ForceLive(c *gin.Context) {
	h.runCommand(h.admin.ForceLive)(c)
}

// CancelContest cancels a contest
func (h *AdminHandler) CancelContest(c *gin.Context) {
	h.runCommand(h.admin.Cancel)(c)
}

// SettleContest completes and settles a LIVE contest
func (h *AdminHandler) SettleContest(c *gin.Context) {
	h.runCommand(h.admin.Settle)(c)
}

// MarkError parks a contest in ERROR
func (h *AdminHandler) MarkError(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}

	h.runCommand(func(ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
		return h.admin.MarkError(ctx, operator, id, req.Reason, now)
	})(c)
}

// ResolveError moves a contest out of ERROR
func (h *AdminHandler) ResolveError(c *gin.Context) {
	var req struct {
		Target models.ContestStatus `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	h.runCommand(func(ctx context.Context, operator string, id uuid.UUID, now time.Time) (*lifecycle.Result, error) {
		return h.admin.ResolveError(ctx, operator, id, req.Target, now)
	})(c)
}

// CancelTemplate relays a provider cancellation for a template
func (h *AdminHandler) CancelTemplate(c *gin.Context) {
	h.runCommand(h.admin.CancelTemplate)(c)
}

// GetAdminLogs returns operator actions
func (h *AdminHandler) GetAdminLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, err := h.admin.GetAdminLogs(c.Request.Context(), c.Query("resource_id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, logs)
}

// CreateTemplate creates a contest template
func (h *AdminHandler) CreateTemplate(c *gin.Context) {
	var req services.CreateTemplateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	tmpl, err := h.templates.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": tmpl})
}

// ListTemplates lists contest templates
func (h *AdminHandler) ListTemplates(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	templates, err := h.templates.ListTemplates(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, templates)
}

// UpdateTemplate edits template metadata
func (h *AdminHandler) UpdateTemplate(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	tmpl, err := h.templates.UpdateTemplateMetadata(c.Request.Context(), id, req.Name, req.Description, h.clock())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, tmpl)
}

// CreateContest creates a contest instance from a template
func (h *AdminHandler) CreateContest(c *gin.Context) {
	var req services.CreateInstanceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	instance, err := h.templates.CreateInstance(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": instance})
}

// UpdateContestTimes reschedules a SCHEDULED contest
func (h *AdminHandler) UpdateContestTimes(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		LockTime            *time.Time `json:"lock_time"`
		TournamentStartTime *time.Time `json:"tournament_start_time"`
		TournamentEndTime   *time.Time `json:"tournament_end_time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	instance, err := h.templates.UpdateInstanceTimes(c.Request.Context(), id, repository.InstanceTimes{
		LockTime:            req.LockTime,
		TournamentStartTime: req.TournamentStartTime,
		TournamentEndTime:   req.TournamentEndTime,
	}, h.clock())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, instance)
}
