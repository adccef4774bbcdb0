package pool

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"zapleads/pkg/models"
)

// Store is the storage contract the allocation service runs on. The
// check-then-act step lives inside TryAcquire so that allocation races are
// settled at the storage layer, never in this package.
type Store interface {
	// FindAssignment returns the instance the user currently holds, or nil.
	FindAssignment(ctx context.Context, userID uuid.UUID) (*models.Instance, error)
	// ListAllocatable returns available instances with slack, least loaded first.
	ListAllocatable(ctx context.Context) ([]models.Instance, error)
	// TryAcquire atomically increments the instance counter and records the
	// assignment, but only while current_free_users < max_free_users. It
	// returns false when the instance has no slack, and ErrAlreadyAssigned
	// when the user raced themselves into an existing assignment.
	TryAcquire(ctx context.Context, instanceID, userID uuid.UUID) (bool, error)
	// ReleaseAssignment removes the user's assignment and decrements the
	// counter (floored at zero). It reports whether a slot was actually held.
	ReleaseAssignment(ctx context.Context, userID uuid.UUID) (bool, error)
	// GetInstance reloads an instance row.
	GetInstance(ctx context.Context, id uuid.UUID) (*models.Instance, error)
}

// AllocationService hands out and reclaims shared instance slots. It holds no
// state of its own; every mutation is a single atomic storage operation.
type AllocationService struct {
	store Store
}

// NewAllocationService creates a new allocation service
func NewAllocationService(store Store) *AllocationService {
	return &AllocationService{store: store}
}

// Allocate returns the instance slot held by the user, acquiring one if
// needed. Re-allocating is idempotent: a user who already holds a slot gets
// the same instance back.
func (s *AllocationService) Allocate(ctx context.Context, userID uuid.UUID) (*models.Instance, error) {
	existing, err := s.store.FindAssignment(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Debug().
			Str("user_id", userID.String()).
			Str("instance_id", existing.ID.String()).
			Msg("User already holds an instance slot")
		return existing, nil
	}

	candidates, err := s.store.ListAllocatable(ctx)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		acquired, err := s.store.TryAcquire(ctx, candidate.ID, userID)
		if errors.Is(err, ErrAlreadyAssigned) {
			// Lost a race against our own concurrent allocate; the winner's
			// assignment is the answer.
			return s.store.FindAssignment(ctx, userID)
		}
		if err != nil {
			return nil, err
		}
		if !acquired {
			// Another user took the last slot between list and acquire.
			continue
		}

		instance, err := s.store.GetInstance(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("user_id", userID.String()).
			Str("instance_id", instance.ID.String()).
			Int("current_free_users", instance.CurrentFreeUsers).
			Int("max_free_users", instance.MaxFreeUsers).
			Msg("Instance slot allocated")
		return instance, nil
	}

	return nil, ErrCapacityExhausted
}

// Release frees the user's slot. Releasing a user who holds nothing is a
// no-op, never an error.
func (s *AllocationService) Release(ctx context.Context, userID uuid.UUID) error {
	released, err := s.store.ReleaseAssignment(ctx, userID)
	if err != nil {
		return err
	}
	if released {
		log.Info().Str("user_id", userID.String()).Msg("Instance slot released")
	}
	return nil
}

// FindByUser returns the instance currently assigned to the user, or nil.
func (s *AllocationService) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Instance, error) {
	return s.store.FindAssignment(ctx, userID)
}
