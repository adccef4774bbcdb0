package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zapleads/pkg/models"
)

// MessageTemplateRepository handles message template data access
type MessageTemplateRepository struct {
	db *gorm.DB
}

// NewMessageTemplateRepository creates a new message template repository
func NewMessageTemplateRepository(db *gorm.DB) *MessageTemplateRepository {
	return &MessageTemplateRepository{db: db}
}

// Create creates a new message template
func (r *MessageTemplateRepository) Create(ctx context.Context, template *models.MessageTemplate) error {
	return r.db.WithContext(ctx).Create(template).Error
}

// GetByIDAndUser gets a message template by ID and user ID
func (r *MessageTemplateRepository) GetByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.MessageTemplate, error) {
	var template models.MessageTemplate
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// ListByUser lists active message templates for a user, most used first
func (r *MessageTemplateRepository) ListByUser(ctx context.Context, userID uuid.UUID, category string, limit, offset int) ([]models.MessageTemplate, error) {
	var templates []models.MessageTemplate
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("usage_count DESC, title ASC")

	if category != "" {
		query = query.Where("category = ?", category)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&templates).Error
	return templates, err
}

// Update updates a message template
func (r *MessageTemplateRepository) Update(ctx context.Context, template *models.MessageTemplate) error {
	return r.db.WithContext(ctx).Save(template).Error
}

// Delete deactivates a message template
func (r *MessageTemplateRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.MessageTemplate{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_active", false).Error
}

// IncrementUsageCount bumps the usage count after a campaign uses the template
func (r *MessageTemplateRepository) IncrementUsageCount(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.MessageTemplate{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}

// Categories lists the distinct categories of a user's templates
func (r *MessageTemplateRepository) Categories(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).Model(&models.MessageTemplate{}).
		Distinct("category").
		Where("user_id = ? AND is_active = ? AND category != ''", userID, true).
		Order("category ASC").
		Pluck("category", &categories).Error
	return categories, err
}
