package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"zapleads/internal/gateway"
	"zapleads/pkg/models"
)

// DispatchStore is the campaign persistence the dispatcher drives.
type DispatchStore interface {
	GetByIDAndOwner(ctx context.Context, id, ownerUserID uuid.UUID) (*models.Campaign, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	NextPendingLeads(ctx context.Context, campaignID uuid.UUID, limit int) ([]models.CampaignLead, error)
	MarkLeadSent(ctx context.Context, lead *models.CampaignLead, sentMessage string, connectionID uuid.UUID) error
	MarkLeadFailed(ctx context.Context, lead *models.CampaignLead, cause string) error
	CompleteIfDrained(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

// ConnectionFinder locates the user's connected WhatsApp connection.
type ConnectionFinder interface {
	ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]models.Connection, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}

// Sender sends one message through the gateway.
type Sender interface {
	SendText(ctx context.Context, target gateway.Target, number, text string, delayMs int) (*gateway.SendTextResponse, error)
}

// Varier applies per-message humanization.
type Varier interface {
	VaryMessage(text string) string
	HumanDelayMs(text string) int
}

const dispatchBatchSize = 10

// CampaignDispatcher walks a campaign's pending leads and sends one
// humanized message per lead through the owner's connected instance. Sends
// are paced by a shared rate limiter; the per-message human delay is
// executed gateway-side while the typing presence is shown.
type CampaignDispatcher struct {
	store       DispatchStore
	connections ConnectionFinder
	sender      Sender
	varier      Varier
	limiter     *rate.Limiter
}

// NewCampaignDispatcher creates a new campaign dispatcher
func NewCampaignDispatcher(store DispatchStore, connections ConnectionFinder, sender Sender, varier Varier, limiter *rate.Limiter) *CampaignDispatcher {
	return &CampaignDispatcher{
		store:       store,
		connections: connections,
		sender:      sender,
		varier:      varier,
		limiter:     limiter,
	}
}

// Run drains the campaign's pending leads. It stops early when the campaign
// leaves the active status or the context is cancelled; leads that were not
// reached stay pending.
func (d *CampaignDispatcher) Run(ctx context.Context, campaignID, ownerUserID uuid.UUID) error {
	conn, err := d.connectedConnection(ctx, ownerUserID)
	if err != nil {
		return err
	}

	target := gateway.Target{
		Host:       conn.Instance.Host,
		APIKey:     conn.Instance.APIKey,
		InstanceID: conn.Instance.ExternalInstanceID,
	}

	for {
		campaign, err := d.store.GetByIDAndOwner(ctx, campaignID, ownerUserID)
		if err != nil {
			return err
		}
		if campaign.Status != models.CampaignStatusActive {
			log.Info().
				Str("campaign_id", campaignID.String()).
				Str("status", campaign.Status).
				Msg("campaign no longer active, stopping dispatch")
			return nil
		}

		leads, err := d.store.NextPendingLeads(ctx, campaignID, dispatchBatchSize)
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			break
		}

		for i := range leads {
			if err := d.dispatchOne(ctx, target, conn, &leads[i]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Err(err).
					Str("campaign_lead_id", leads[i].ID.String()).
					Msg("failed to record dispatch result")
			}
		}
	}

	completed, err := d.store.CompleteIfDrained(ctx, campaignID)
	if err != nil {
		return err
	}
	if completed {
		log.Info().Str("campaign_id", campaignID.String()).Msg("campaign completed")
	}
	return nil
}

func (d *CampaignDispatcher) dispatchOne(ctx context.Context, target gateway.Target, conn *models.Connection, lead *models.CampaignLead) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	if lead.Lead == nil || lead.Lead.Phone == "" {
		return d.store.MarkLeadFailed(ctx, lead, "lead has no phone number")
	}

	text := renderMessage(lead)
	if text == "" {
		return d.store.MarkLeadFailed(ctx, lead, "no message template assigned")
	}

	varied := d.varier.VaryMessage(text)
	delayMs := d.varier.HumanDelayMs(varied)

	if _, err := d.sender.SendText(ctx, target, lead.Lead.Phone, varied, delayMs); err != nil {
		log.Warn().Err(err).
			Str("campaign_lead_id", lead.ID.String()).
			Str("phone", lead.Lead.Phone).
			Msg("gateway send failed")
		return d.store.MarkLeadFailed(ctx, lead, err.Error())
	}

	if err := d.connections.TouchLastUsed(ctx, conn.ID); err != nil {
		log.Warn().Err(err).Str("connection_id", conn.ID.String()).Msg("failed to stamp connection usage")
	}
	return d.store.MarkLeadSent(ctx, lead, varied, conn.ID)
}

// connectedConnection picks the owner's connected connection with a bound
// instance. Dispatch refuses to start without one.
func (d *CampaignDispatcher) connectedConnection(ctx context.Context, ownerUserID uuid.UUID) (*models.Connection, error) {
	conns, err := d.connections.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	for i := range conns {
		if conns[i].Status == models.ConnectionStatusConnected && conns[i].Instance != nil {
			return &conns[i], nil
		}
	}
	return nil, fmt.Errorf("user %s has no connected WhatsApp connection", ownerUserID)
}

// renderMessage fills the lead's template placeholders with lead data.
func renderMessage(lead *models.CampaignLead) string {
	if lead.MessageTemplate == nil {
		return ""
	}
	name := ""
	company := ""
	if lead.Lead != nil {
		name = lead.Lead.Name
		if lead.Lead.Company != nil {
			company = lead.Lead.Company.Name
		}
	}
	replacer := strings.NewReplacer(
		"{{name}}", name,
		"{{company}}", company,
	)
	return strings.TrimSpace(replacer.Replace(lead.MessageTemplate.Content))
}
