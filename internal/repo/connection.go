package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"zapleads/pkg/models"
)

// ConnectionRepository handles connection data access
type ConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetConnection gets a connection by ID with its bound instance loaded
func (r *ConnectionRepository) GetConnection(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.WithContext(ctx).Preload("Instance").Where("id = ?", id).First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetByIDAndOwner gets a connection scoped to its owner
func (r *ConnectionRepository) GetByIDAndOwner(ctx context.Context, id, ownerUserID uuid.UUID) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.WithContext(ctx).
		Preload("Instance").
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		First(&conn).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetConnectionByInstanceID returns the connection bound to the instance,
// or nil when the instance is unbound.
func (r *ConnectionRepository) GetConnectionByInstanceID(ctx context.Context, instanceID uuid.UUID) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.WithContext(ctx).Where("bound_instance_id = ?", instanceID).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// UpdateConnection persists a connection
func (r *ConnectionRepository) UpdateConnection(ctx context.Context, conn *models.Connection) error {
	return r.db.WithContext(ctx).Save(conn).Error
}

// Create creates a new connection
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	return r.db.WithContext(ctx).Create(conn).Error
}

// ListByOwner lists a user's connections, newest first
func (r *ConnectionRepository) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Preload("Instance").
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&conns).Error
	return conns, err
}

// ListActive returns connections that are connecting or connected, with
// their instances loaded. The monitor walks this list.
func (r *ConnectionRepository) ListActive(ctx context.Context) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Preload("Instance").
		Where("status IN ?", []string{models.ConnectionStatusConnecting, models.ConnectionStatusConnected}).
		Find(&conns).Error
	return conns, err
}

// TouchLastUsed stamps the connection after a successful send
func (r *ConnectionRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ?", id).
		Update("last_used_at", time.Now()).Error
}

// Delete removes a connection. Only disconnected connections can go.
func (r *ConnectionRepository) Delete(ctx context.Context, id, ownerUserID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND owner_user_id = ? AND status = ?", id, ownerUserID, models.ConnectionStatusDisconnected).
		Delete(&models.Connection{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("connection %s not found or not disconnected", id)
	}
	return nil
}
