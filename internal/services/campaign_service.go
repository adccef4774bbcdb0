package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"zapleads/pkg/models"
)

// ErrCampaignNotStartable indicates the campaign is not in a startable status.
var ErrCampaignNotStartable = errors.New("campaign cannot be started from its current status")

// CampaignService owns the campaign lifecycle. Starting a campaign flips it
// to active and hands it to the dispatcher on a detached goroutine; pausing
// flips the status, which the dispatcher observes between batches.
type CampaignService struct {
	store      DispatchStore
	dispatcher *CampaignDispatcher
}

// NewCampaignService creates a new campaign service
func NewCampaignService(store DispatchStore, dispatcher *CampaignDispatcher) *CampaignService {
	return &CampaignService{store: store, dispatcher: dispatcher}
}

// Start activates the campaign and begins dispatching its pending leads.
func (s *CampaignService) Start(ctx context.Context, campaignID, ownerUserID uuid.UUID) error {
	campaign, err := s.store.GetByIDAndOwner(ctx, campaignID, ownerUserID)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusPaused {
		return fmt.Errorf("%w: %s", ErrCampaignNotStartable, campaign.Status)
	}

	if err := s.store.UpdateStatus(ctx, campaignID, models.CampaignStatusActive); err != nil {
		return err
	}

	// The dispatch run outlives the HTTP request that started it.
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 12*time.Hour)
		defer cancel()
		if err := s.dispatcher.Run(runCtx, campaignID, ownerUserID); err != nil {
			log.Error().Err(err).Str("campaign_id", campaignID.String()).Msg("campaign dispatch stopped with error")
		}
	}()

	log.Info().Str("campaign_id", campaignID.String()).Msg("campaign started")
	return nil
}

// Dispatch kicks a run for a campaign that is already active, for example
// after more leads were added once the first run drained.
func (s *CampaignService) Dispatch(ctx context.Context, campaignID, ownerUserID uuid.UUID) error {
	campaign, err := s.store.GetByIDAndOwner(ctx, campaignID, ownerUserID)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignStatusActive {
		return fmt.Errorf("campaign %s is not active", campaignID)
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 12*time.Hour)
		defer cancel()
		if err := s.dispatcher.Run(runCtx, campaignID, ownerUserID); err != nil {
			log.Error().Err(err).Str("campaign_id", campaignID.String()).Msg("campaign dispatch stopped with error")
		}
	}()
	return nil
}

// Pause stops dispatching after the current batch. Leads already handed to
// the gateway are not recalled.
func (s *CampaignService) Pause(ctx context.Context, campaignID, ownerUserID uuid.UUID) error {
	campaign, err := s.store.GetByIDAndOwner(ctx, campaignID, ownerUserID)
	if err != nil {
		return err
	}
	if campaign.Status != models.CampaignStatusActive {
		return fmt.Errorf("campaign %s is not active", campaignID)
	}
	if err := s.store.UpdateStatus(ctx, campaignID, models.CampaignStatusPaused); err != nil {
		return err
	}
	log.Info().Str("campaign_id", campaignID.String()).Msg("campaign paused")
	return nil
}
