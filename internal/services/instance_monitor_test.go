package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"zapleads/internal/gateway"
	"zapleads/pkg/models"
)

type fakeLister struct {
	conns []models.Connection
}

func (f *fakeLister) ListActive(context.Context) ([]models.Connection, error) {
	return f.conns, nil
}

type fakeApplier struct {
	mu      sync.Mutex
	applied map[uuid.UUID]string
}

func (f *fakeApplier) ApplyRemoteState(_ context.Context, id uuid.UUID, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applied == nil {
		f.applied = make(map[uuid.UUID]string)
	}
	f.applied[id] = state
	return nil
}

func (f *fakeApplier) get(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[id]
}

type fakeChecker struct {
	mu     sync.Mutex
	states map[string]string
	errs   map[string]error
	calls  int
}

func (f *fakeChecker) ConnectionState(_ context.Context, target gateway.Target) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[target.InstanceID]; ok {
		return "", err
	}
	return f.states[target.InstanceID], nil
}

func monitorConn(status, externalID string) models.Connection {
	inst := &models.Instance{Host: "http://gw", APIKey: "k", ExternalInstanceID: externalID}
	inst.ID = uuid.New()
	conn := models.Connection{Status: status, BoundInstanceID: &inst.ID, Instance: inst}
	conn.ID = uuid.New()
	return conn
}

func TestCheckAllAppliesGatewayStates(t *testing.T) {
	connecting := monitorConn(models.ConnectionStatusConnecting, "ext-a")
	connected := monitorConn(models.ConnectionStatusConnected, "ext-b")
	lister := &fakeLister{conns: []models.Connection{connecting, connected}}
	applier := &fakeApplier{}
	checker := &fakeChecker{states: map[string]string{
		"ext-a": gateway.StateOpen,
		"ext-b": gateway.StateClose,
	}}

	m := NewInstanceMonitorService(lister, applier, checker, time.Minute)
	m.checkAll(context.Background())

	if applier.get(connecting.ID) != gateway.StateOpen {
		t.Fatalf("connecting conn got %q", applier.get(connecting.ID))
	}
	if applier.get(connected.ID) != gateway.StateClose {
		t.Fatalf("connected conn got %q", applier.get(connected.ID))
	}
}

func TestCheckFailureLeavesStateAlone(t *testing.T) {
	conn := monitorConn(models.ConnectionStatusConnected, "ext-a")
	lister := &fakeLister{conns: []models.Connection{conn}}
	applier := &fakeApplier{}
	checker := &fakeChecker{errs: map[string]error{"ext-a": errors.New("gateway down")}}

	m := NewInstanceMonitorService(lister, applier, checker, time.Minute)
	m.checkAll(context.Background())

	if len(applier.applied) != 0 {
		t.Fatalf("no transition expected, got %v", applier.applied)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	conn := monitorConn(models.ConnectionStatusConnected, "ext-a")
	lister := &fakeLister{conns: []models.Connection{conn}}
	applier := &fakeApplier{}
	checker := &fakeChecker{errs: map[string]error{"ext-a": errors.New("gateway down")}}

	m := NewInstanceMonitorService(lister, applier, checker, time.Minute)
	for i := 0; i < 5; i++ {
		m.checkAll(context.Background())
	}

	// Three failures trip the breaker; later sweeps are short-circuited.
	if checker.calls != 3 {
		t.Fatalf("gateway calls = %d, want 3", checker.calls)
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	m := NewInstanceMonitorService(&fakeLister{}, &fakeApplier{}, &fakeChecker{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	m.Start(ctx)
	m.Stop()
	m.Stop()
}
