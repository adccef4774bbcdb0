package models

import (
	"github.com/google/uuid"
)

// Company represents one entry of the prospect database
type Company struct {
	BaseModel
	Name    string `gorm:"not null;index" json:"name" validate:"required"`
	Segment string `gorm:"index" json:"segment"`
	City    string `gorm:"index" json:"city"`
	State   string `gorm:"size:2;index" json:"state"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
	Email   string `json:"email"`
}

// Lead is a prospect saved by a user, pointing at a company
type Lead struct {
	BaseModel
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null" json:"company_id"`
	Phone       string    `gorm:"not null" json:"phone" validate:"required"`
	Name        string    `json:"name"`
	Notes       string    `gorm:"type:text" json:"notes"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

// MessageTemplate represents a user's personal message template with variables
type MessageTemplate struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title       string    `gorm:"not null" json:"title" validate:"required"`
	Content     string    `gorm:"not null;type:text" json:"content" validate:"required"`
	Variables   string    `gorm:"type:text" json:"variables"` // JSON array of variable names
	Category    string    `json:"category"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	UsageCount  int       `gorm:"default:0" json:"usage_count"`
	Description string    `json:"description"`
}
