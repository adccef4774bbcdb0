package models

import (
	"time"

	"github.com/google/uuid"
)

// Connection statuses
const (
	ConnectionStatusDisconnected = "disconnected"
	ConnectionStatusConnecting   = "connecting"
	ConnectionStatusConnected    = "connected"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// CampaignLead statuses
const (
	CampaignLeadStatusPending   = "pending"
	CampaignLeadStatusSent      = "sent"
	CampaignLeadStatusFailed    = "failed"
	CampaignLeadStatusResponded = "responded"
)

// Instance represents one externally hosted WhatsApp session slot shared
// among free-tier users. The capacity counter is the authoritative
// allocation state; CurrentUserID only records the most recent assignment.
type Instance struct {
	BaseModel
	Name               string     `gorm:"not null" json:"name" validate:"required"`
	ExternalInstanceID string     `gorm:"uniqueIndex;not null" json:"external_instance_id" validate:"required"`
	APIKey             string     `gorm:"not null" json:"-" validate:"required"`
	Host               string     `gorm:"not null" json:"host" validate:"required"`
	IsAvailable        bool       `gorm:"default:true" json:"is_available"`
	CurrentUserID      *uuid.UUID `gorm:"type:uuid" json:"current_user_id"`
	MaxFreeUsers       int        `gorm:"default:5" json:"max_free_users"`
	CurrentFreeUsers   int        `gorm:"default:0" json:"current_free_users"`
}

// HasSlack reports whether the instance can take one more assignment.
func (i *Instance) HasSlack() bool {
	return i.IsAvailable && i.CurrentFreeUsers < i.MaxFreeUsers
}

// InstanceAssignment binds a user to the instance slot they hold.
// The unique index on user_id makes duplicate allocations a storage-level
// conflict instead of a read-then-write race.
type InstanceAssignment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InstanceID uuid.UUID `gorm:"type:uuid;not null;index" json:"instance_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`

	Instance *Instance `gorm:"foreignKey:InstanceID" json:"instance,omitempty"`
}

// Connection represents a user-facing binding to at most one Instance
type Connection struct {
	BaseModel
	OwnerUserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name            string     `gorm:"not null" json:"name" validate:"required"`
	Status          string     `gorm:"default:'disconnected'" json:"status"` // disconnected, connecting, connected
	BoundInstanceID *uuid.UUID `gorm:"type:uuid;index" json:"bound_instance_id"`
	ConnectedAt     *time.Time `json:"connected_at"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	ErrorMessage    string     `json:"error_message"`

	Instance *Instance `gorm:"foreignKey:BoundInstanceID" json:"instance,omitempty"`
}

// Campaign represents an outreach send job owned by a user
type Campaign struct {
	BaseModel
	OwnerUserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name              string     `gorm:"not null" json:"name" validate:"required"`
	Description       string     `gorm:"type:text" json:"description"`
	Status            string     `gorm:"default:'draft'" json:"status"` // draft, active, paused, completed
	MessageTemplateID *uuid.UUID `gorm:"type:uuid" json:"message_template_id"`
	TotalLeads        int        `gorm:"default:0" json:"total_leads"`
	SentCount         int        `gorm:"default:0" json:"sent_count"`
	SuccessCount      int        `gorm:"default:0" json:"success_count"`
	FailedCount       int        `gorm:"default:0" json:"failed_count"`
	ResponseCount     int        `gorm:"default:0" json:"response_count"`
}

// CampaignLead is one (campaign, lead) dispatch unit
type CampaignLead struct {
	BaseModel
	CampaignID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"campaign_id"`
	LeadID               uuid.UUID  `gorm:"type:uuid;not null" json:"lead_id"`
	MessageTemplateID    *uuid.UUID `gorm:"type:uuid" json:"message_template_id"`
	Status               string     `gorm:"default:'pending';index" json:"status"` // pending, sent, failed, responded
	SentMessage          string     `gorm:"type:text" json:"sent_message"`
	SentAt               *time.Time `json:"sent_at"`
	ErrorMessage         string     `json:"error_message"`
	WhatsAppConnectionID *uuid.UUID `gorm:"type:uuid" json:"whatsapp_connection_id"`

	Campaign        *Campaign        `gorm:"foreignKey:CampaignID" json:"campaign,omitempty"`
	Lead            *Lead            `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
	MessageTemplate *MessageTemplate `gorm:"foreignKey:MessageTemplateID" json:"message_template,omitempty"`
}
