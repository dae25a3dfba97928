package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"signal-notifier/internal/api/respond"
	"signal-notifier/internal/config"
	"signal-notifier/internal/model"
	notifsvc "signal-notifier/internal/service/notification"
	"signal-notifier/internal/storage"
)

// notificationService defines the interface that the Handler depends on.
//
// It abstracts the business logic for enqueueing notifications, querying
// their state and managing the queue.
type notificationService interface {
	Enqueue(context.Context, retry.Strategy, model.Notification) (uuid.UUID, error)
	GetStatus(context.Context, retry.Strategy, uuid.UUID) (string, error)
	GetByID(context.Context, uuid.UUID) (model.Notification, error)
	GetQueue(ctx context.Context, status string, limit int) ([]model.Notification, error)
	GetFailed(ctx context.Context, minRetryCount int) ([]model.Notification, error)
	Cancel(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error
	Retry(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error
	GetStats(ctx context.Context, from, to time.Time) (model.Stats, error)
	GetLogs(ctx context.Context, limit int) ([]model.DeliveryLog, error)
}

// Handler handles HTTP requests related to notifications.
type Handler struct {
	service   notificationService
	validator *validator.Validate
	cfg       *config.Config
}

// NewHandler creates a new Handler instance.
func NewHandler(
	s notificationService,
	v *validator.Validate,
	cfg *config.Config,
) *Handler {
	return &Handler{service: s, validator: v, cfg: cfg}
}

// CreateRequest represents the JSON body expected when enqueueing a
// notification. Exactly one of message and template_type is required;
// both together are allowed, the template wins.
type CreateRequest struct {
	UserID       string            `json:"user_id"`
	Channel      string            `json:"channel" validate:"required"`
	Recipient    string            `json:"recipient" validate:"required"`
	Subject      string            `json:"subject"`
	Message      string            `json:"message"`
	TemplateType string            `json:"template_type"`
	Variables    map[string]string `json:"variables"`
	Priority     int               `json:"priority" validate:"gte=0,lte=10"`
	ScheduledFor string            `json:"scheduled_for"` // RFC 3339, empty means now
	MaxRetries   *int              `json:"max_retries" validate:"omitempty,gte=0,lte=10"`
	Metadata     map[string]string `json:"metadata"`
}

// Create handles HTTP POST requests to enqueue a new notification.
//
// It validates the request body, parses the optional schedule time,
// enqueues the notification and returns its ID.
func (h *Handler) Create(c *ginext.Context) {
	var req CreateRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	var scheduledFor time.Time
	if req.ScheduledFor != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledFor)
		if err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to parse scheduled_for time")
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid scheduled_for format"))
			return
		}
		scheduledFor = parsed
	}

	var userID *uuid.UUID
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid user_id"))
			return
		}
		userID = &parsed
	}

	maxRetries := 3
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	notif := model.Notification{
		UserID:       userID,
		Channel:      req.Channel,
		Recipient:    req.Recipient,
		Subject:      req.Subject,
		Message:      req.Message,
		TemplateType: req.TemplateType,
		Variables:    req.Variables,
		Priority:     req.Priority,
		ScheduledFor: scheduledFor,
		MaxRetries:   maxRetries,
		Metadata:     req.Metadata,
	}

	id, err := h.service.Enqueue(c.Request.Context(), h.cfg.Retry, notif)
	if err != nil {
		if isValidationError(err) {
			zlog.Logger.Warn().Err(err).Msg("rejected notification")
			respond.Fail(c.Writer, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Error().Err(err).Str("channel", req.Channel).Msg("failed to enqueue notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c.Writer, id)
}

func isValidationError(err error) bool {
	return errors.Is(err, notifsvc.ErrUnknownChannel) ||
		errors.Is(err, notifsvc.ErrEmptyRecipient) ||
		errors.Is(err, notifsvc.ErrEmptyMessage) ||
		errors.Is(err, notifsvc.ErrInvalidPriority)
}

// Get handles HTTP GET requests for a single notification.
//
// It expects the notification ID as a URL parameter and returns the full
// item together with its cached status.
func (h *Handler) Get(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	notif, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, notif)
}

// GetStatus handles HTTP GET requests for a notification's status only.
//
// The status is served from the cache when present, falling back to
// storage on a miss.
func (h *Handler) GetStatus(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get notification status")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, status)
}

// GetQueue handles HTTP GET requests listing queued notifications.
//
// Optional query parameters: status (default pending) and limit.
func (h *Handler) GetQueue(c *ginext.Context) {
	limit := queryInt(c, "limit", 100)

	items, err := h.service.GetQueue(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to list notifications")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, items)
}

// GetFailed handles HTTP GET requests listing terminally failed
// notifications. Optional query parameter min_retries filters out items
// with fewer recorded attempts.
func (h *Handler) GetFailed(c *ginext.Context) {
	items, err := h.service.GetFailed(c.Request.Context(), queryInt(c, "min_retries", 0))
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to list failed notifications")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, items)
}

// GetStats handles HTTP GET requests for delivery statistics.
//
// Optional query parameters from and to bound the window (RFC 3339).
func (h *Handler) GetStats(c *ginext.Context) {
	var from, to time.Time
	var err error

	if s := c.Query("from"); s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid from format"))
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid to format"))
			return
		}
	}

	stats, err := h.service.GetStats(c.Request.Context(), from, to)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to get delivery stats")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, stats)
}

// GetLogs handles HTTP GET requests for the delivery attempt log.
func (h *Handler) GetLogs(c *ginext.Context) {
	logs, err := h.service.GetLogs(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to get delivery logs")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, logs)
}

// Cancel handles HTTP DELETE requests withdrawing a notification.
func (h *Handler) Cancel(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	err := h.service.Cancel(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		h.respondTransitionError(c, id, err, "failed to cancel notification")
		return
	}

	respond.OK(c.Writer, "notification cancelled")
}

// Retry handles HTTP POST requests re-queueing a failed notification.
func (h *Handler) Retry(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	err := h.service.Retry(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		h.respondTransitionError(c, id, err, "failed to retry notification")
		return
	}

	respond.OK(c.Writer, "notification queued for retry")
}

func (h *Handler) respondTransitionError(c *ginext.Context, id uuid.UUID, err error, logMsg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
	case errors.Is(err, storage.ErrInvalidState):
		respond.Fail(c.Writer, http.StatusConflict, fmt.Errorf("invalid notification state"))
	default:
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
	}
}

func (h *Handler) parseID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("idStr", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return uuid.Nil, false
	}

	if id == uuid.Nil {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return uuid.Nil, false
	}

	return id, true
}

func queryInt(c *ginext.Context, name string, def int) int {
	s := c.Query(name)
	if s == "" {
		return def
	}

	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}
