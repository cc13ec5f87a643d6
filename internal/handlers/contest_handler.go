package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"contest-lifecycle/internal/models"
	"contest-lifecycle/internal/repository"
	"contest-lifecycle/internal/services"
	"contest-lifecycle/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContestHandler serves the query surface and the two ingestion surfaces.
type ContestHandler struct {
	contests  *services.ContestService
	templates *services.TemplateService
	clock     func() time.Time
}

func NewContestHandler(contests *services.ContestService, templates *services.TemplateService) *ContestHandler {
	return &ContestHandler{
		contests:  contests,
		templates: templates,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// GetContestStatus returns status and schedule of a contest
func (h *ContestHandler) GetContestStatus(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.contests.GetStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, view)
}

// ListContests lists contests, optionally filtered by template and status
func (h *ContestHandler) ListContests(c *gin.Context) {
	filter := repository.InstanceFilter{
		Status: models.ContestStatus(c.Query("status")),
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if raw := c.Query("template_id"); raw != "" {
		templateID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid template_id"})
			return
		}
		filter.TemplateID = &templateID
	}

	instances, err := h.contests.ListInstances(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, instances)
}

// GetTransitions returns the transition log of a contest
func (h *ContestHandler) GetTransitions(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	entries, err := h.contests.GetTransitions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, entries)
}

// GetSettlements returns the payout records of a contest
func (h *ContestHandler) GetSettlements(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	records, err := h.contests.GetSettlements(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, records)
}

// GetStandings returns the latest standings delivered for a contest
func (h *ContestHandler) GetStandings(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	snap, err := h.contests.GetStandings(c.Request.Context(), id)
	if errors.Is(err, settlement.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, snap)
}

// GetTemplate returns a template with the count of its open contests
func (h *ContestHandler) GetTemplate(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	view, err := h.templates.GetTemplateView(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, view)
}

type ingestStandingsRequest struct {
	Entries models.StandingsEntries `json:"entries" binding:"required"`
}

// IngestStandings accepts final standings from the scoring collaborator
func (h *ContestHandler) IngestStandings(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req ingestStandingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	snap, created, err := h.contests.IngestStandings(c.Request.Context(), id, req.Entries, h.clock())
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	c.JSON(code, gin.H{
		"success": true,
		"data": gin.H{
			"hash":          snap.Hash,
			"entrant_count": snap.EntrantCount,
			"created":       created,
		},
	})
}

// TemplateCancelled accepts a provider cancellation for a template
func (h *ContestHandler) TemplateCancelled(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	res, err := h.contests.TemplateCancelled(c.Request.Context(), id, h.clock())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}
