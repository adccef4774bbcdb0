package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zapleads/internal/pool"
	"zapleads/pkg/models"
)

// InstanceRepository handles instance and assignment data access. It is the
// storage backend of the allocation service, so the capacity counter is only
// ever mutated here, with conditional updates.
type InstanceRepository struct {
	db *gorm.DB
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// FindAssignment returns the instance the user currently holds, or nil.
func (r *InstanceRepository) FindAssignment(ctx context.Context, userID uuid.UUID) (*models.Instance, error) {
	var assignment models.InstanceAssignment
	err := r.db.WithContext(ctx).
		Preload("Instance").
		Where("user_id = ?", userID).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return assignment.Instance, nil
}

// ListAllocatable returns available instances with slack, least loaded first.
func (r *InstanceRepository) ListAllocatable(ctx context.Context) ([]models.Instance, error) {
	var instances []models.Instance
	err := r.db.WithContext(ctx).
		Where("is_available = ? AND current_free_users < max_free_users", true).
		Order("current_free_users ASC").
		Find(&instances).Error
	return instances, err
}

// TryAcquire atomically takes one slot on the instance for the user. The
// capacity check and the increment are a single conditional UPDATE, and the
// unique index on instance_assignments.user_id turns a duplicate allocation
// into a storage conflict instead of a silent double-count.
func (r *InstanceRepository) TryAcquire(ctx context.Context, instanceID, userID uuid.UUID) (bool, error) {
	acquired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Instance{}).
			Where("id = ? AND is_available = ? AND current_free_users < max_free_users", instanceID, true).
			Updates(map[string]interface{}{
				"current_free_users": gorm.Expr("current_free_users + 1"),
				"current_user_id":    userID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		assignment := models.InstanceAssignment{
			ID:         uuid.New(),
			InstanceID: instanceID,
			UserID:     userID,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			if isUniqueViolation(err) {
				return pool.ErrAlreadyAssigned
			}
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// ReleaseAssignment removes the user's assignment and gives the slot back.
// The decrement is floored at zero so drift can never push the counter
// negative.
func (r *InstanceRepository) ReleaseAssignment(ctx context.Context, userID uuid.UUID) (bool, error) {
	released := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment models.InstanceAssignment
		err := tx.Where("user_id = ?", userID).First(&assignment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Delete(&models.InstanceAssignment{}, "id = ?", assignment.ID).Error; err != nil {
			return err
		}

		err = tx.Model(&models.Instance{}).
			Where("id = ?", assignment.InstanceID).
			Updates(map[string]interface{}{
				"current_free_users": gorm.Expr("GREATEST(current_free_users - 1, 0)"),
				"current_user_id":    gorm.Expr("CASE WHEN current_user_id = ? THEN NULL ELSE current_user_id END", userID),
			}).Error
		if err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// GetInstance gets an instance by ID
func (r *InstanceRepository) GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error) {
	var instance models.Instance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// GetInstanceByExternalID resolves a gateway instance id, or nil.
func (r *InstanceRepository) GetInstanceByExternalID(ctx context.Context, externalID string) (*models.Instance, error) {
	var instance models.Instance
	err := r.db.WithContext(ctx).Where("external_instance_id = ?", externalID).First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// Create creates a new instance
func (r *InstanceRepository) Create(ctx context.Context, instance *models.Instance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

// Update updates an instance
func (r *InstanceRepository) Update(ctx context.Context, instance *models.Instance) error {
	return r.db.WithContext(ctx).Save(instance).Error
}

// List lists instances with pagination
func (r *InstanceRepository) List(ctx context.Context, limit, offset int) ([]models.Instance, int64, error) {
	var instances []models.Instance
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Instance{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&instances).Error
	return instances, total, err
}

// Delete removes an instance. It refuses while any assignment still points
// at it; those must be force-released first.
func (r *InstanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held int64
		if err := tx.Model(&models.InstanceAssignment{}).Where("instance_id = ?", id).Count(&held).Error; err != nil {
			return err
		}
		if held > 0 {
			return fmt.Errorf("instance %s still has %d active assignments", id, held)
		}
		return tx.Delete(&models.Instance{}, "id = ?", id).Error
	})
}

// CountAssignments returns how many users currently hold the instance.
func (r *InstanceRepository) CountAssignments(ctx context.Context, instanceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InstanceAssignment{}).
		Where("instance_id = ?", instanceID).
		Count(&count).Error
	return count, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
