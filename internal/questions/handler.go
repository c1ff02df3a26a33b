package questions

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/confera/backend/internal/conferences"
	"github.com/confera/backend/internal/middleware"
	"github.com/confera/backend/internal/models"
	"github.com/confera/backend/pkg/response"
)

// QuestionRequest is the body for creating and updating questions.
type QuestionRequest struct {
	DisplayOrder  int                     `json:"display_order"`
	Text          string                  `json:"text" binding:"required"`
	Options       []models.QuestionOption `json:"options" binding:"required"`
	CorrectOption string                  `json:"correct_option" binding:"required"`
	SlideIndex    *int                    `json:"slide_index"`
}

// ValidateOptions checks the option set: at least two options, unique
// non-empty keys, and a correct option that is one of them.
func ValidateOptions(options []models.QuestionOption, correctOption string) error {
	if len(options) < 2 {
		return errors.New("at least two options required")
	}
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		if o.Key == "" {
			return errors.New("option key must not be empty")
		}
		if _, dup := seen[o.Key]; dup {
			return fmt.Errorf("duplicate option key %q", o.Key)
		}
		seen[o.Key] = struct{}{}
	}
	if _, ok := seen[correctOption]; !ok {
		return fmt.Errorf("correct_option %q is not an option key", correctOption)
	}
	return nil
}

// Handler handles question HTTP endpoints.
type Handler struct {
	repo   *Repository
	confs  *conferences.Repository
	logger *zap.Logger
}

// NewHandler creates a questions handler.
func NewHandler(repo *Repository, confs *conferences.Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, confs: confs, logger: logger}
}

// Create handles POST /conferences/:id/questions (host or speaker).
func (h *Handler) Create(c *gin.Context) {
	conferenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid conference id")
		return
	}
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := ValidateOptions(req.Options, req.CorrectOption); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	conf, err := h.confs.GetByID(c.Request.Context(), conferenceID)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "conference not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load conference")
		return
	}
	if conf.Status == models.ConferenceEnded {
		response.Conflict(c, "conference has ended")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, err := h.confs.IsHostOrSpeaker(c.Request.Context(), conferenceID, userID)
	if err != nil || !ok {
		response.Forbidden(c, "only the host or a speaker can add questions")
		return
	}

	role := c.MustGet(middleware.ContextUserRole).(string)
	q := &models.Question{
		ConferenceID:  conferenceID,
		DisplayOrder:  req.DisplayOrder,
		Text:          req.Text,
		Options:       req.Options,
		CorrectOption: req.CorrectOption,
		SlideIndex:    req.SlideIndex,
		CreatedBy:     userID,
		CreatorRole:   models.Role(role),
	}
	if err := h.repo.Create(c.Request.Context(), q); err != nil {
		h.logger.Error("question create failed", zap.Error(err))
		response.Internal(c, "failed to create question")
		return
	}
	response.Created(c, q)
}

// List handles GET /conferences/:id/questions (host or speaker; includes the
// correct option, so never exposed to the audience).
func (h *Handler) List(c *gin.Context) {
	conferenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid conference id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ok, err := h.confs.IsHostOrSpeaker(c.Request.Context(), conferenceID, userID)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "conference not found")
		return
	}
	if err != nil || !ok {
		response.Forbidden(c, "only the host or a speaker can list questions")
		return
	}
	list, err := h.repo.ListByConference(c.Request.Context(), conferenceID)
	if err != nil {
		response.Internal(c, "failed to list questions")
		return
	}
	response.OK(c, list)
}

// Update handles PUT /questions/:id. Hosts can edit any question in their
// conference; speakers only their own. Live questions are immutable.
func (h *Handler) Update(c *gin.Context) {
	q, ok := h.requireEditable(c)
	if !ok {
		return
	}
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := ValidateOptions(req.Options, req.CorrectOption); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q.DisplayOrder = req.DisplayOrder
	q.Text = req.Text
	q.Options = req.Options
	q.CorrectOption = req.CorrectOption
	q.SlideIndex = req.SlideIndex
	if err := h.repo.Update(c.Request.Context(), q); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Conflict(c, "question is live")
			return
		}
		response.Internal(c, "failed to update question")
		return
	}
	response.OK(c, q)
}

// Delete handles DELETE /questions/:id, same gating as Update.
func (h *Handler) Delete(c *gin.Context) {
	q, ok := h.requireEditable(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), q.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Conflict(c, "question is live")
			return
		}
		response.Internal(c, "failed to delete question")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

// requireEditable loads the question, checks authority (host: any question in
// the conference; speaker: own questions only) and rejects live questions and
// ended conferences. Writes the response on failure.
func (h *Handler) requireEditable(c *gin.Context) (*models.Question, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return nil, false
	}
	q, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "question not found")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load question")
		return nil, false
	}
	if q.IsLive {
		response.Conflict(c, "question is live")
		return nil, false
	}

	conf, err := h.confs.GetByID(c.Request.Context(), q.ConferenceID)
	if err != nil {
		response.Internal(c, "failed to load conference")
		return nil, false
	}
	if conf.Status == models.ConferenceEnded {
		response.Conflict(c, "conference has ended")
		return nil, false
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if conf.HostID == userID {
		return q, true
	}
	if q.CreatedBy == userID {
		ok, err := h.confs.IsHostOrSpeaker(c.Request.Context(), q.ConferenceID, userID)
		if err == nil && ok {
			return q, true
		}
	}
	response.Forbidden(c, "not allowed to edit this question")
	return nil, false
}
