package analytics

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/confera/backend/internal/conferences"
	"github.com/confera/backend/internal/middleware"
	"github.com/confera/backend/internal/models"
	"github.com/confera/backend/pkg/response"
)

// Handler handles analytics HTTP endpoints. All endpoints require the caller
// to be the conference host or a speaker.
type Handler struct {
	repo  *Repository
	confs *conferences.Repository
}

// NewHandler creates an analytics handler.
func NewHandler(repo *Repository, confs *conferences.Repository) *Handler {
	return &Handler{repo: repo, confs: confs}
}

// ListByConference handles GET /conferences/:id/analytics.
func (h *Handler) ListByConference(c *gin.Context) {
	conferenceID, ok := h.requireStaff(c, c.Param("id"))
	if !ok {
		return
	}
	list, err := h.repo.ListByConference(c.Request.Context(), conferenceID)
	if err != nil {
		response.Internal(c, "failed to load analytics")
		return
	}
	response.OK(c, list)
}

// Summary handles GET /conferences/:id/analytics/summary.
func (h *Handler) Summary(c *gin.Context) {
	conferenceID, ok := h.requireStaff(c, c.Param("id"))
	if !ok {
		return
	}
	s, err := h.repo.Summary(c.Request.Context(), conferenceID)
	if err != nil {
		response.Internal(c, "failed to load summary")
		return
	}
	response.OK(c, s)
}

// GetByQuestion handles GET /questions/:id/analytics.
func (h *Handler) GetByQuestion(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	a, err := h.repo.GetByQuestion(c.Request.Context(), questionID)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "no analytics for this question")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load analytics")
		return
	}
	if _, ok := h.requireStaff(c, a.ConferenceID.String()); !ok {
		return
	}
	response.OK(c, a)
}

func (h *Handler) requireStaff(c *gin.Context, idParam string) (uuid.UUID, bool) {
	conferenceID, err := uuid.Parse(idParam)
	if err != nil {
		response.BadRequest(c, "invalid conference id")
		return uuid.Nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, err := h.confs.IsHostOrSpeaker(c.Request.Context(), conferenceID, userID)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "conference not found")
		return uuid.Nil, false
	}
	if err != nil || !ok {
		response.Forbidden(c, "only the host or a speaker can view analytics")
		return uuid.Nil, false
	}
	return conferenceID, true
}
