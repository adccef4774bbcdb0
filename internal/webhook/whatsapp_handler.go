package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"zapleads/internal/connection"
	"zapleads/internal/gateway"
	"zapleads/pkg/models"
)

// ConnectedEvent is the payload the gateway posts when a session changes state.
type ConnectedEvent struct {
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"` // connected, disconnected
}

// Resolver maps a gateway instance id onto the connection bound to it.
// Both lookups return nil without error when nothing matches.
type Resolver interface {
	GetInstanceByExternalID(ctx context.Context, externalID string) (*models.Instance, error)
	GetConnectionByInstanceID(ctx context.Context, instanceID uuid.UUID) (*models.Connection, error)
}

// Transitioner applies gateway-reported states to a connection.
type Transitioner interface {
	ApplyRemoteState(ctx context.Context, connectionID uuid.UUID, state string) error
}

// ResponseRecorder marks campaign leads answered by an inbound message.
// The lookup returns nil without error when the sender is not a lead.
type ResponseRecorder interface {
	FindSentCampaignLead(ctx context.Context, phone string) (*models.CampaignLead, error)
	MarkLeadResponded(ctx context.Context, leadID uuid.UUID) error
}

// MessageEvent is the payload the gateway posts for an inbound message.
type MessageEvent struct {
	InstanceID string `json:"instanceId"`
	From       string `json:"from"`
	Text       string `json:"text"`
}

// WhatsAppWebhookHandler handles connection lifecycle and inbound message
// callbacks from the gateway. It never mutates state for unknown instances.
type WhatsAppWebhookHandler struct {
	resolver  Resolver
	machine   Transitioner
	responses ResponseRecorder
}

func NewWhatsAppWebhookHandler(resolver Resolver, machine Transitioner, responses ResponseRecorder) *WhatsAppWebhookHandler {
	return &WhatsAppWebhookHandler{resolver: resolver, machine: machine, responses: responses}
}

// HandleConnected processes POST /webhooks/whatsapp/connected
// @Summary Gateway connection state callback
// @Tags webhooks
// @Accept json
// @Param event body ConnectedEvent true "Connection event"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /webhooks/whatsapp/connected [post]
func (h *WhatsAppWebhookHandler) HandleConnected(c echo.Context) error {
	var event ConnectedEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	var state string
	switch event.Status {
	case models.ConnectionStatusConnected:
		state = gateway.StateOpen
	case models.ConnectionStatusDisconnected:
		state = gateway.StateClose
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown status"})
	}

	ctx := c.Request().Context()

	instance, err := h.resolver.GetInstanceByExternalID(ctx, event.InstanceID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to resolve instance"})
	}
	if instance == nil {
		log.Warn().Str("instance_id", event.InstanceID).Msg("webhook for unknown instance")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown instance"})
	}

	conn, err := h.resolver.GetConnectionByInstanceID(ctx, instance.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to resolve connection"})
	}
	if conn == nil {
		log.Warn().Str("instance_id", event.InstanceID).Msg("webhook for unbound instance")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no connection bound to instance"})
	}

	if err := h.machine.ApplyRemoteState(ctx, conn.ID, state); err != nil {
		if errors.Is(err, connection.ErrInvalidTransition) {
			// A stale callback for a connection that already moved on.
			log.Debug().Err(err).Str("connection_id", conn.ID.String()).Msg("webhook ignored")
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}
		log.Error().Err(err).
			Str("connection_id", conn.ID.String()).
			Str("status", event.Status).
			Msg("failed to apply webhook state")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update connection"})
	}

	log.Info().
		Str("connection_id", conn.ID.String()).
		Str("instance_id", event.InstanceID).
		Str("status", event.Status).
		Msg("webhook applied")

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleMessage processes POST /webhooks/whatsapp/message
// @Summary Gateway inbound message callback
// @Description Marks the sender's most recent sent campaign lead as responded
// @Tags webhooks
// @Accept json
// @Param event body MessageEvent true "Message event"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /webhooks/whatsapp/message [post]
func (h *WhatsAppWebhookHandler) HandleMessage(c echo.Context) error {
	var event MessageEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if event.InstanceID == "" || event.From == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "instanceId and from are required"})
	}

	ctx := c.Request().Context()

	instance, err := h.resolver.GetInstanceByExternalID(ctx, event.InstanceID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to resolve instance"})
	}
	if instance == nil {
		log.Warn().Str("instance_id", event.InstanceID).Msg("message webhook for unknown instance")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown instance"})
	}

	lead, err := h.responses.FindSentCampaignLead(ctx, event.From)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to resolve sender"})
	}
	if lead == nil {
		// Inbound chatter from someone no campaign has messaged.
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	if err := h.responses.MarkLeadResponded(ctx, lead.ID); err != nil {
		log.Error().Err(err).Str("campaign_lead_id", lead.ID.String()).Msg("failed to record response")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to record response"})
	}

	log.Info().
		Str("campaign_lead_id", lead.ID.String()).
		Str("from", event.From).
		Msg("campaign lead responded")

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
