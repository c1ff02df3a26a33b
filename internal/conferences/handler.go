package conferences

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/confera/backend/internal/groups"
	"github.com/confera/backend/internal/middleware"
	"github.com/confera/backend/internal/models"
	"github.com/confera/backend/internal/polling"
	"github.com/confera/backend/pkg/queue"
	"github.com/confera/backend/pkg/response"
)

// CreateRequest is the body for POST /conferences.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// UpdateRequest is the body for PUT /conferences/:id.
type UpdateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// AddSpeakerRequest is the body for POST /conferences/:id/speakers.
type AddSpeakerRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// Handler handles conference HTTP endpoints.
type Handler struct {
	repo     *Repository
	groups   *groups.Repository
	registry polling.Registry
	co       *polling.Coordinator
	queue    *queue.Queue // nil in single-process mode; groups are provisioned inline
	logger   *zap.Logger
}

// NewHandler creates a conference handler.
func NewHandler(repo *Repository, groupsRepo *groups.Repository, registry polling.Registry, co *polling.Coordinator, q *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, groups: groupsRepo, registry: registry, co: co, queue: q, logger: logger}
}

// Create handles POST /conferences. The creator becomes the immutable host;
// host_role records whether a platform host or a speaker created it.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	role := c.MustGet(middleware.ContextUserRole).(string)

	conf := &models.Conference{
		Title:       req.Title,
		Description: req.Description,
		HostID:      userID,
		HostRole:    models.Role(role),
	}
	if err := h.repo.Create(c.Request.Context(), conf); err != nil {
		h.logger.Error("conference create failed", zap.Error(err))
		response.Internal(c, "failed to create conference")
		return
	}
	response.Created(c, conf)
}

// List handles GET /conferences (the caller's own conferences).
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByHost(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list conferences")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /conferences/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid conference id")
		return
	}
	conf, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "conference not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load conference")
		return
	}
	response.OK(c, conf)
}

// GetByCode handles GET /conferences/code/:code, the audience entry point.
func (h *Handler) GetByCode(c *gin.Context) {
	conf, err := h.repo.GetByJoinCode(c.Request.Context(), c.Param("code"))
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "conference not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load conference")
		return
	}
	response.OK(c, conf)
}

// Update handles PUT /conferences/:id (host only, not after end).
func (h *Handler) Update(c *gin.Context) {
	conf, ok := h.requireHost(c)
	if !ok {
		return
	}
	if conf.Status == models.ConferenceEnded {
		response.Conflict(c, "conference has ended")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.repo.Update(c.Request.Context(), conf.ID, req.Title, req.Description); err != nil {
		response.Internal(c, "failed to update conference")
		return
	}
	conf.Title, conf.Description = req.Title, req.Description
	response.OK(c, conf)
}

// Delete handles DELETE /conferences/:id (host only, draft only).
func (h *Handler) Delete(c *gin.Context) {
	conf, ok := h.requireHost(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), conf.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Conflict(c, "only draft conferences can be deleted")
			return
		}
		response.Internal(c, "failed to delete conference")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

// Activate handles POST /conferences/:id/activate (draft -> active).
func (h *Handler) Activate(c *gin.Context) {
	conf, ok := h.requireHost(c)
	if !ok {
		return
	}
	moved, err := h.repo.TransitionStatus(c.Request.Context(), conf.ID, models.ConferenceDraft, models.ConferenceActive)
	if err != nil {
		response.Internal(c, "failed to activate conference")
		return
	}
	if !moved {
		response.Conflict(c, "conference is not in draft")
		return
	}
	if err := h.registry.SetStatus(c.Request.Context(), conf.ID, models.ConferenceActive); err != nil {
		h.logger.Warn("registry status update failed", zap.String("conference_id", conf.ID.String()), zap.Error(err))
	}
	conf.Status = models.ConferenceActive
	response.OK(c, conf)
}

// End handles POST /conferences/:id/end (active -> ended). Any live question
// is force-closed and the post-conference discussion group is provisioned.
func (h *Handler) End(c *gin.Context) {
	conf, ok := h.requireHost(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	moved, err := h.repo.TransitionStatus(ctx, conf.ID, models.ConferenceActive, models.ConferenceEnded)
	if err != nil {
		response.Internal(c, "failed to end conference")
		return
	}
	if !moved {
		response.Conflict(c, "conference is not active")
		return
	}

	h.co.ForceCloseLive(ctx, conf.ID, polling.ReasonManual)
	if err := h.registry.SetStatus(ctx, conf.ID, models.ConferenceEnded); err != nil {
		h.logger.Warn("registry status update failed", zap.String("conference_id", conf.ID.String()), zap.Error(err))
	}
	h.provisionGroup(conf)

	conf.Status = models.ConferenceEnded
	response.OK(c, conf)
}

// provisionGroup hands group creation to the worker when a queue is wired,
// and falls back to inline provisioning otherwise.
func (h *Handler) provisionGroup(conf *models.Conference) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if h.queue != nil {
		err := h.queue.EnqueueGroupProvision(ctx, queue.GroupProvisionPayload{ConferenceID: conf.ID, Title: conf.Title})
		if err == nil {
			return
		}
		h.logger.Warn("group provision enqueue failed, provisioning inline",
			zap.String("conference_id", conf.ID.String()), zap.Error(err))
	}
	g, err := h.groups.Provision(ctx, conf.ID, conf.Title+" discussion")
	if err != nil {
		h.logger.Error("group provision failed", zap.String("conference_id", conf.ID.String()), zap.Error(err))
		return
	}
	if err := h.repo.SetGroupID(ctx, conf.ID, g.ID); err != nil {
		h.logger.Error("group link failed", zap.String("conference_id", conf.ID.String()), zap.Error(err))
	}
}

// AddSpeaker handles POST /conferences/:id/speakers (host only).
func (h *Handler) AddSpeaker(c *gin.Context) {
	conf, ok := h.requireHost(c)
	if !ok {
		return
	}
	var req AddSpeakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	speakerID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.repo.AddSpeaker(c.Request.Context(), conf.ID, speakerID); err != nil {
		response.Internal(c, "failed to add speaker")
		return
	}
	response.Created(c, models.ConferenceSpeaker{ConferenceID: conf.ID, UserID: speakerID})
}

// ListSpeakers handles GET /conferences/:id/speakers.
func (h *Handler) ListSpeakers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid conference id")
		return
	}
	list, err := h.repo.ListSpeakers(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list speakers")
		return
	}
	response.OK(c, list)
}

// requireHost loads the conference from the :id param and enforces that the
// caller is its host. Writes the response on failure.
func (h *Handler) requireHost(c *gin.Context) (*models.Conference, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid conference id")
		return nil, false
	}
	conf, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "conference not found")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load conference")
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if conf.HostID != userID {
		response.Forbidden(c, "only the host can do this")
		return nil, false
	}
	return conf, true
}
