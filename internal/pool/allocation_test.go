package pool

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"zapleads/pkg/models"
)

// memoryStore mimics the storage layer's atomic acquire/release semantics
// with a single mutex, so the service can be exercised under real goroutine
// concurrency.
type memoryStore struct {
	mu          sync.Mutex
	instances   map[uuid.UUID]*models.Instance
	assignments map[uuid.UUID]uuid.UUID // userID -> instanceID
}

func newMemoryStore(instances ...*models.Instance) *memoryStore {
	s := &memoryStore{
		instances:   make(map[uuid.UUID]*models.Instance),
		assignments: make(map[uuid.UUID]uuid.UUID),
	}
	for _, inst := range instances {
		s.instances[inst.ID] = inst
	}
	return s
}

func (s *memoryStore) FindAssignment(_ context.Context, userID uuid.UUID) (*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instID, ok := s.assignments[userID]
	if !ok {
		return nil, nil
	}
	copy := *s.instances[instID]
	return &copy, nil
}

func (s *memoryStore) ListAllocatable(_ context.Context) ([]models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Instance
	for _, inst := range s.instances {
		if inst.HasSlack() {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentFreeUsers < out[j].CurrentFreeUsers })
	return out, nil
}

func (s *memoryStore) TryAcquire(_ context.Context, instanceID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[userID]; ok {
		return false, ErrAlreadyAssigned
	}
	inst, ok := s.instances[instanceID]
	if !ok || !inst.HasSlack() {
		return false, nil
	}
	inst.CurrentFreeUsers++
	uid := userID
	inst.CurrentUserID = &uid
	s.assignments[userID] = instanceID
	return true, nil
}

func (s *memoryStore) ReleaseAssignment(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instID, ok := s.assignments[userID]
	if !ok {
		return false, nil
	}
	delete(s.assignments, userID)
	inst := s.instances[instID]
	if inst.CurrentFreeUsers > 0 {
		inst.CurrentFreeUsers--
	}
	if inst.CurrentUserID != nil && *inst.CurrentUserID == userID {
		inst.CurrentUserID = nil
	}
	return true, nil
}

func (s *memoryStore) GetInstance(_ context.Context, id uuid.UUID) (*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *s.instances[id]
	return &copy, nil
}

func newInstance(name string, maxUsers, currentUsers int) *models.Instance {
	inst := &models.Instance{
		Name:             name,
		IsAvailable:      true,
		MaxFreeUsers:     maxUsers,
		CurrentFreeUsers: currentUsers,
	}
	inst.ID = uuid.New()
	return inst
}

func TestAllocateIdempotent(t *testing.T) {
	store := newMemoryStore(newInstance("a", 3, 0))
	svc := NewAllocationService(store)
	userID := uuid.New()

	first, err := svc.Allocate(context.Background(), userID)
	if err != nil {
		t.Fatalf("first allocate failed: %v", err)
	}
	second, err := svc.Allocate(context.Background(), userID)
	if err != nil {
		t.Fatalf("second allocate failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same instance, got %s and %s", first.ID, second.ID)
	}
	if got := second.CurrentFreeUsers; got != 1 {
		t.Errorf("expected counter 1 after repeated allocate, got %d", got)
	}
}

func TestAllocatePicksLeastLoaded(t *testing.T) {
	busy := newInstance("busy", 5, 4)
	quiet := newInstance("quiet", 5, 1)
	store := newMemoryStore(busy, quiet)
	svc := NewAllocationService(store)

	inst, err := svc.Allocate(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if inst.ID != quiet.ID {
		t.Errorf("expected least-loaded instance %s, got %s", quiet.ID, inst.ID)
	}
}

func TestAllocateCapacityExhausted(t *testing.T) {
	store := newMemoryStore(newInstance("full", 1, 1))
	svc := NewAllocationService(store)

	_, err := svc.Allocate(context.Background(), uuid.New())
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
}

func TestConcurrentAllocateRespectsSlack(t *testing.T) {
	// Total slack is 3: two instances, capacities 2 and 1.
	store := newMemoryStore(newInstance("a", 2, 0), newInstance("b", 1, 0))
	svc := NewAllocationService(store)

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Allocate(context.Background(), uuid.New())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, exhausted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrCapacityExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 3 {
		t.Errorf("expected exactly 3 successful allocations, got %d", ok)
	}
	if exhausted != callers-3 {
		t.Errorf("expected %d exhausted callers, got %d", callers-3, exhausted)
	}
	for _, inst := range store.instances {
		if inst.CurrentFreeUsers < 0 || inst.CurrentFreeUsers > inst.MaxFreeUsers {
			t.Errorf("instance %s counter out of bounds: %d/%d", inst.Name, inst.CurrentFreeUsers, inst.MaxFreeUsers)
		}
	}
}

func TestReleaseIdempotent(t *testing.T) {
	inst := newInstance("a", 2, 0)
	store := newMemoryStore(inst)
	svc := NewAllocationService(store)
	userID := uuid.New()

	if _, err := svc.Allocate(context.Background(), userID); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if err := svc.Release(context.Background(), userID); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if err := svc.Release(context.Background(), userID); err != nil {
		t.Fatalf("second release failed: %v", err)
	}
	if got := store.instances[inst.ID].CurrentFreeUsers; got != 0 {
		t.Errorf("expected counter 0 after double release, got %d", got)
	}
}

func TestReleaseUnknownUserIsNoop(t *testing.T) {
	store := newMemoryStore(newInstance("a", 2, 1))
	svc := NewAllocationService(store)

	if err := svc.Release(context.Background(), uuid.New()); err != nil {
		t.Fatalf("release of unknown user should be a no-op, got %v", err)
	}
}

func TestSingleSlotHandoff(t *testing.T) {
	inst := newInstance("single", 1, 0)
	store := newMemoryStore(inst)
	svc := NewAllocationService(store)

	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	type result struct {
		inst *models.Instance
		err  error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, user := range []uuid.UUID{alice, bob} {
		wg.Add(1)
		go func(u uuid.UUID) {
			defer wg.Done()
			inst, err := svc.Allocate(context.Background(), u)
			results <- result{inst, err}
		}(user)
	}
	wg.Wait()
	close(results)

	var winner *models.Instance
	var losses int
	for r := range results {
		if r.err == nil {
			winner = r.inst
		} else if errors.Is(r.err, ErrCapacityExhausted) {
			losses++
		} else {
			t.Fatalf("unexpected error: %v", r.err)
		}
	}
	if winner == nil || losses != 1 {
		t.Fatalf("expected exactly one winner and one exhausted caller, got winner=%v losses=%d", winner, losses)
	}

	// Winner releases; a third user must now succeed.
	winnerUser := alice
	if _, held := store.assignments[alice]; !held {
		winnerUser = bob
	}
	if err := svc.Release(context.Background(), winnerUser); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := svc.Allocate(context.Background(), carol); err != nil {
		t.Fatalf("allocate after release failed: %v", err)
	}
}
