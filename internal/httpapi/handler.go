package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/samtjhia/SamsStudyTracker/internal/admin"
	"github.com/samtjhia/SamsStudyTracker/internal/domain"
	"github.com/samtjhia/SamsStudyTracker/internal/store"
)

// Store is the storage the collaborator write paths use.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	UpdateSettings(ctx context.Context, u *domain.User) error
	AddSession(ctx context.Context, s *domain.Session) error
	AddRecipient(ctx context.Context, userID int64, email string) (*domain.Recipient, error)
	RemoveRecipient(ctx context.Context, userID int64, email string) error
}

type Handler struct {
	store Store
	admin *admin.Service
	log   *zap.Logger
}

func NewHandler(store Store, adminSvc *admin.Service, log *zap.Logger) *Handler {
	return &Handler{store: store, admin: adminSvc, log: log}
}

type userResponse struct {
	ID                   int64               `json:"id"`
	Email                string              `json:"email"`
	Username             string              `json:"username,omitempty"`
	DailyTargetMin       int                 `json:"dailyTargetMin"`
	DailyEmailTime       string              `json:"dailyEmailTime"`
	EmailServicePaused   bool                `json:"emailServicePaused"`
	AccountabilityEmails []recipientResponse `json:"accountabilityEmails,omitempty"`
}

type recipientResponse struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	LastSentDate *string `json:"lastSentDate"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Username:           u.Username,
		DailyTargetMin:     u.DailyTargetMin,
		DailyEmailTime:     u.DailyEmailTime,
		EmailServicePaused: u.EmailServicePaused,
	}
}

func toRecipientResponse(rc domain.Recipient) recipientResponse {
	return recipientResponse{ID: rc.ID, Email: rc.Email, LastSentDate: rc.LastSentDate}
}

// writeError maps store and validation errors to a status code.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidClock):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		h.log.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// --- admin ---

// ListUsers returns every user with their recipients.
// GET /api/admin/users
func (h *Handler) ListUsers(c *gin.Context) {
	rows, err := h.admin.Overview(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]userResponse, 0, len(rows))
	for _, row := range rows {
		u := toUserResponse(row.User)
		u.AccountabilityEmails = make([]recipientResponse, 0, len(row.Recipients))
		for _, rc := range row.Recipients {
			u.AccountabilityEmails = append(u.AccountabilityEmails, toRecipientResponse(rc))
		}
		out = append(out, u)
	}
	c.JSON(http.StatusOK, out)
}

// TriggerReport starts a report run and answers before it finishes.
// POST /api/admin/users/:id/trigger-report
func (h *Handler) TriggerReport(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	msg, err := h.admin.Trigger(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

// ResetRecipient clears a recipient's last-sent date.
// POST /api/admin/recipients/:id/reset
func (h *Handler) ResetRecipient(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.admin.ResetRecipient(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email status reset."})
}

// DeleteUser removes a user and everything they own.
// DELETE /api/admin/users/:id
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.admin.DeleteUser(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// --- collaborator write paths ---

type createUserRequest struct {
	Email          string `json:"email" binding:"required"`
	Username       string `json:"username"`
	DailyTargetMin *int   `json:"dailyTargetMin"`
	DailyEmailTime string `json:"dailyEmailTime"`
}

// CreateUser registers an account with default settings.
// POST /api/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email, err := domain.ValidateEmail(req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	u := &domain.User{
		Email:          email,
		Username:       req.Username,
		DailyTargetMin: domain.DefaultTargetMin,
		DailyEmailTime: domain.DefaultEmailTime,
	}
	if req.DailyTargetMin != nil {
		if *req.DailyTargetMin < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dailyTargetMin must not be negative"})
			return
		}
		u.DailyTargetMin = *req.DailyTargetMin
	}
	if req.DailyEmailTime != "" {
		if u.DailyEmailTime, err = domain.ParseClock(req.DailyEmailTime); err != nil {
			h.writeError(c, err)
			return
		}
	}
	if err := h.store.CreateUser(c.Request.Context(), u); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(*u))
}

type settingsRequest struct {
	Username           *string `json:"username"`
	DailyTargetMin     *int    `json:"dailyTargetMin"`
	DailyEmailTime     *string `json:"dailyEmailTime"`
	EmailServicePaused *bool   `json:"emailServicePaused"`
}

// UpdateSettings changes the fields present in the body.
// PUT /api/users/:id/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	u, err := h.store.GetUser(ctx, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if req.Username != nil {
		u.Username = *req.Username
	}
	if req.DailyTargetMin != nil {
		if *req.DailyTargetMin < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "dailyTargetMin must not be negative"})
			return
		}
		u.DailyTargetMin = *req.DailyTargetMin
	}
	if req.DailyEmailTime != nil {
		if u.DailyEmailTime, err = domain.ParseClock(*req.DailyEmailTime); err != nil {
			h.writeError(c, err)
			return
		}
	}
	if req.EmailServicePaused != nil {
		u.EmailServicePaused = *req.EmailServicePaused
	}
	if err := h.store.UpdateSettings(ctx, u); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(*u))
}

type sessionRequest struct {
	Start           int64  `json:"start" binding:"required"`
	End             int64  `json:"end" binding:"required"`
	DurationSeconds *int   `json:"durationSeconds"`
	TopicText       string `json:"topicText"`
	IsPrivate       bool   `json:"isPrivate"`
}

// AddSession records a finished study session. Times are epoch milliseconds.
// POST /api/users/:id/sessions
func (h *Handler) AddSession(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.End < req.Start {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must not be before start"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetUser(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}
	s := &domain.Session{
		UserID:          id,
		Start:           req.Start,
		End:             req.End,
		DurationSeconds: int((req.End - req.Start) / 1000),
		TopicText:       req.TopicText,
		IsPrivate:       req.IsPrivate,
	}
	if req.DurationSeconds != nil {
		if *req.DurationSeconds < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "durationSeconds must not be negative"})
			return
		}
		s.DurationSeconds = *req.DurationSeconds
	}
	if err := h.store.AddSession(ctx, s); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": s.ID, "durationSeconds": s.DurationSeconds})
}

type recipientRequest struct {
	Email string `json:"email" binding:"required"`
}

// AddRecipient registers an accountability address.
// POST /api/users/:id/recipients
func (h *Handler) AddRecipient(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req recipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email, err := domain.ValidateEmail(req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetUser(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}
	rc, err := h.store.AddRecipient(ctx, id, email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRecipientResponse(*rc))
}

// RemoveRecipient deletes an accountability address given as ?email=.
// DELETE /api/users/:id/recipients
func (h *Handler) RemoveRecipient(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	email, err := domain.ValidateEmail(c.Query("email"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.store.RemoveRecipient(c.Request.Context(), id, email); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Recipient removed."})
}
