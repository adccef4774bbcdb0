package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"zapleads/internal/gateway"
	"zapleads/pkg/models"
)

// ActiveConnectionLister returns connections worth reconciling.
type ActiveConnectionLister interface {
	ListActive(ctx context.Context) ([]models.Connection, error)
}

// RemoteStateApplier applies a gateway-reported state to a connection.
type RemoteStateApplier interface {
	ApplyRemoteState(ctx context.Context, connectionID uuid.UUID, state string) error
}

// StateChecker queries the gateway for an instance's session state.
type StateChecker interface {
	ConnectionState(ctx context.Context, target gateway.Target) (string, error)
}

// InstanceMonitorService periodically polls the gateway for every connecting
// or connected connection and reconciles local state with what the gateway
// reports. It is the polling fallback for lost webhooks and the repair
// process for drift left behind by best-effort disconnects.
type InstanceMonitorService struct {
	connections ActiveConnectionLister
	machine     RemoteStateApplier
	checker     StateChecker

	checkInterval time.Duration
	mutex         sync.Mutex
	isRunning     bool
	stopChan      chan struct{}

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
}

// NewInstanceMonitorService creates a new instance monitor
func NewInstanceMonitorService(connections ActiveConnectionLister, machine RemoteStateApplier, checker StateChecker, checkInterval time.Duration) *InstanceMonitorService {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &InstanceMonitorService{
		connections:   connections,
		machine:       machine,
		checker:       checker,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		breakers:      make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Start begins the reconciliation loop
func (s *InstanceMonitorService) Start(ctx context.Context) {
	s.mutex.Lock()
	if s.isRunning {
		s.mutex.Unlock()
		return
	}
	s.isRunning = true
	s.mutex.Unlock()

	log.Info().Dur("interval", s.checkInterval).Msg("starting instance monitor")

	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		s.checkAll(ctx)

		for {
			select {
			case <-ticker.C:
				s.checkAll(ctx)
			case <-s.stopChan:
				log.Info().Msg("instance monitor stopped")
				return
			case <-ctx.Done():
				log.Info().Msg("instance monitor context cancelled")
				return
			}
		}
	}()
}

// Stop stops the reconciliation loop
func (s *InstanceMonitorService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
}

func (s *InstanceMonitorService) checkAll(ctx context.Context) {
	conns, err := s.connections.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active connections")
		return
	}

	for i := range conns {
		conn := &conns[i]
		if conn.Instance == nil {
			continue
		}
		s.checkOne(ctx, conn)
	}
}

func (s *InstanceMonitorService) checkOne(ctx context.Context, conn *models.Connection) {
	target := gateway.Target{
		Host:       conn.Instance.Host,
		APIKey:     conn.Instance.APIKey,
		InstanceID: conn.Instance.ExternalInstanceID,
	}

	breaker := s.breakerFor(conn.Instance.ExternalInstanceID)
	result, err := breaker.Execute(func() (interface{}, error) {
		checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		return s.checker.ConnectionState(checkCtx, target)
	})
	if err != nil {
		// Open breaker or gateway failure. Local state is left alone; a
		// wrong answer is worse than a stale one.
		log.Warn().Err(err).
			Str("instance_id", conn.Instance.ExternalInstanceID).
			Msg("instance state check failed")
		return
	}

	state := result.(string)
	if err := s.machine.ApplyRemoteState(ctx, conn.ID, state); err != nil {
		log.Error().Err(err).
			Str("connection_id", conn.ID.String()).
			Str("state", state).
			Msg("failed to reconcile connection state")
	}
}

// breakerFor returns the per-instance circuit breaker, creating it on first
// use. A flapping gateway host only silences checks for its own instance.
func (s *InstanceMonitorService) breakerFor(instanceID string) *gobreaker.CircuitBreaker {
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()

	if b, ok := s.breakers[instanceID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway-state-" + instanceID,
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("gateway breaker state changed")
		},
	})
	s.breakers[instanceID] = b
	return b
}
