package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zapleads/pkg/models"
)

// CampaignRepository handles campaign and campaign-lead data access. It also
// backs the release guard, which only needs the two in-flight counts.
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// CountActiveCampaigns counts the user's campaigns with status active
func (r *CampaignRepository) CountActiveCampaigns(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("owner_user_id = ? AND status = ?", userID, models.CampaignStatusActive).
		Count(&count).Error
	return count, err
}

// CountPendingCampaignLeads counts pending dispatch units across all of the
// user's campaigns
func (r *CampaignRepository) CountPendingCampaignLeads(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CampaignLead{}).
		Joins("JOIN campaigns ON campaigns.id = campaign_leads.campaign_id").
		Where("campaigns.owner_user_id = ? AND campaign_leads.status = ?", userID, models.CampaignLeadStatusPending).
		Count(&count).Error
	return count, err
}

// Create creates a new campaign
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

// GetByIDAndOwner gets a campaign scoped to its owner
func (r *CampaignRepository) GetByIDAndOwner(ctx context.Context, id, ownerUserID uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// ListByOwner lists a user's campaigns with pagination
func (r *CampaignRepository) ListByOwner(ctx context.Context, ownerUserID uuid.UUID, limit, offset int) ([]models.Campaign, int64, error) {
	var campaigns []models.Campaign
	var total int64

	base := r.db.WithContext(ctx).Model(&models.Campaign{}).Where("owner_user_id = ?", ownerUserID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := base.Order("created_at DESC").Limit(limit).Offset(offset).Find(&campaigns).Error
	return campaigns, total, err
}

// Update updates a campaign
func (r *CampaignRepository) Update(ctx context.Context, campaign *models.Campaign) error {
	return r.db.WithContext(ctx).Save(campaign).Error
}

// UpdateStatus moves a campaign between statuses
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// AddLeads attaches dispatch units to a campaign and bumps its total
func (r *CampaignRepository) AddLeads(ctx context.Context, campaignID uuid.UUID, leads []models.CampaignLead) error {
	if len(leads) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&leads).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", campaignID).
			Update("total_leads", gorm.Expr("total_leads + ?", len(leads))).Error
	})
}

// NextPendingLeads returns up to limit pending dispatch units for the
// campaign, oldest first, with lead and template loaded
func (r *CampaignRepository) NextPendingLeads(ctx context.Context, campaignID uuid.UUID, limit int) ([]models.CampaignLead, error) {
	var leads []models.CampaignLead
	err := r.db.WithContext(ctx).
		Preload("Lead").
		Preload("Lead.Company").
		Preload("MessageTemplate").
		Where("campaign_id = ? AND status = ?", campaignID, models.CampaignLeadStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&leads).Error
	return leads, err
}

// MarkLeadSent records a successful dispatch and bumps the campaign counters
func (r *CampaignRepository) MarkLeadSent(ctx context.Context, lead *models.CampaignLead, sentMessage string, connectionID uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.CampaignLead{}).
			Where("id = ?", lead.ID).
			Updates(map[string]interface{}{
				"status":                 models.CampaignLeadStatusSent,
				"sent_message":           sentMessage,
				"sent_at":                now,
				"error_message":          "",
				"whatsapp_connection_id": connectionID,
			}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", lead.CampaignID).
			Updates(map[string]interface{}{
				"sent_count":    gorm.Expr("sent_count + 1"),
				"success_count": gorm.Expr("success_count + 1"),
			}).Error
	})
}

// MarkLeadFailed records a failed dispatch and bumps the campaign counters
func (r *CampaignRepository) MarkLeadFailed(ctx context.Context, lead *models.CampaignLead, cause string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.CampaignLead{}).
			Where("id = ?", lead.ID).
			Updates(map[string]interface{}{
				"status":        models.CampaignLeadStatusFailed,
				"error_message": cause,
			}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", lead.CampaignID).
			Updates(map[string]interface{}{
				"sent_count":   gorm.Expr("sent_count + 1"),
				"failed_count": gorm.Expr("failed_count + 1"),
			}).Error
	})
}

// MarkLeadResponded flags a lead that answered and bumps the response count
func (r *CampaignRepository) MarkLeadResponded(ctx context.Context, leadID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lead models.CampaignLead
		if err := tx.Where("id = ?", leadID).First(&lead).Error; err != nil {
			return err
		}
		if lead.Status == models.CampaignLeadStatusResponded {
			return nil
		}
		err := tx.Model(&models.CampaignLead{}).
			Where("id = ?", leadID).
			Update("status", models.CampaignLeadStatusResponded).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).
			Where("id = ?", lead.CampaignID).
			Update("response_count", gorm.Expr("response_count + 1")).Error
	})
}

// FindSentCampaignLead returns the most recently sent dispatch unit whose
// lead phone matches, or nil when the sender is not a campaign lead.
func (r *CampaignRepository) FindSentCampaignLead(ctx context.Context, phone string) (*models.CampaignLead, error) {
	var lead models.CampaignLead
	err := r.db.WithContext(ctx).
		Joins("JOIN leads ON leads.id = campaign_leads.lead_id").
		Where("leads.phone = ? AND campaign_leads.status = ?", phone, models.CampaignLeadStatusSent).
		Order("campaign_leads.sent_at DESC").
		First(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// CompleteIfDrained marks the campaign completed when nothing is pending.
// It reports whether the transition happened.
func (r *CampaignRepository) CompleteIfDrained(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	var pending int64
	err := r.db.WithContext(ctx).Model(&models.CampaignLead{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.CampaignLeadStatusPending).
		Count(&pending).Error
	if err != nil {
		return false, err
	}
	if pending > 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignStatusActive).
		Update("status", models.CampaignStatusCompleted)
	return res.RowsAffected > 0, res.Error
}
