package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"signal-notifier/internal/api/respond"
	"signal-notifier/internal/model"
	notifsvc "signal-notifier/internal/service/notification"
	"signal-notifier/internal/storage"
)

// channelService defines the channel administration operations the
// Handler depends on.
type channelService interface {
	ListChannels(ctx context.Context) ([]model.Channel, error)
	CreateChannel(ctx context.Context, ch model.Channel) (uuid.UUID, error)
	UpdateChannel(ctx context.Context, ch model.Channel) error
	TestChannel(ctx context.Context, id uuid.UUID) error
}

// Handler handles HTTP requests administering delivery channels.
type Handler struct {
	service   channelService
	validator *validator.Validate
}

// NewHandler creates a new Handler instance.
func NewHandler(s channelService, v *validator.Validate) *Handler {
	return &Handler{service: s, validator: v}
}

// ChannelRequest represents the JSON body for creating or updating a
// channel.
type ChannelRequest struct {
	Name                string            `json:"name" validate:"required"`
	Type                string            `json:"type" validate:"required"`
	Provider            string            `json:"provider"`
	Config              map[string]string `json:"config"`
	IsEnabled           *bool             `json:"is_enabled"`
	HealthCheckInterval string            `json:"health_check_interval"` // Go duration string, e.g. "5m"
}

// List handles HTTP GET requests returning every configured channel.
func (h *Handler) List(c *ginext.Context) {
	channels, err := h.service.ListChannels(c.Request.Context())
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to list channels")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, channels)
}

// Create handles HTTP POST requests registering a channel.
func (h *Handler) Create(c *ginext.Context) {
	ch, ok := h.decode(c)
	if !ok {
		return
	}

	id, err := h.service.CreateChannel(c.Request.Context(), ch)
	if err != nil {
		if errors.Is(err, notifsvc.ErrUnknownChannel) {
			respond.Fail(c.Writer, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Error().Err(err).Str("name", ch.Name).Msg("failed to create channel")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c.Writer, id)
}

// Update handles HTTP PUT requests changing channel configuration.
func (h *Handler) Update(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	ch, ok := h.decode(c)
	if !ok {
		return
	}
	ch.ID = id

	if err := h.service.UpdateChannel(c.Request.Context(), ch); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("channel not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to update channel")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, "channel updated")
}

// Test handles HTTP POST requests probing a channel's transport on demand.
// The probe outcome is recorded and returned.
func (h *Handler) Test(c *ginext.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	err := h.service.TestChannel(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("channel not found"))
			return
		}

		// Probe failures are a result, not a server error.
		respond.OK(c.Writer, ginext.H{"healthy": false, "error": err.Error()})
		return
	}

	respond.OK(c.Writer, ginext.H{"healthy": true})
}

func (h *Handler) decode(c *ginext.Context) (model.Channel, bool) {
	var req ChannelRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return model.Channel{}, false
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return model.Channel{}, false
	}

	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}

	var interval time.Duration
	if req.HealthCheckInterval != "" {
		parsed, err := time.ParseDuration(req.HealthCheckInterval)
		if err != nil {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid health_check_interval"))
			return model.Channel{}, false
		}
		interval = parsed
	}

	return model.Channel{
		Name:                req.Name,
		Type:                req.Type,
		Provider:            req.Provider,
		Config:              req.Config,
		IsEnabled:           enabled,
		HealthCheckInterval: interval,
	}, true
}

func (h *Handler) parseID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("idStr", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return uuid.Nil, false
	}

	return id, true
}
