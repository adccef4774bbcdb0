package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"zapleads/internal/gateway"
	"zapleads/pkg/models"
)

var (
	// ErrInvalidTransition indicates the requested transition is not valid
	// from the connection's current status.
	ErrInvalidTransition = errors.New("invalid connection transition")
	// ErrConnectionNotFound indicates the connection does not exist.
	ErrConnectionNotFound = errors.New("connection not found")
)

// Store persists connections.
type Store interface {
	GetConnection(ctx context.Context, id uuid.UUID) (*models.Connection, error)
	UpdateConnection(ctx context.Context, conn *models.Connection) error
}

// Allocator acquires and releases shared instance slots for a user.
type Allocator interface {
	Allocate(ctx context.Context, userID uuid.UUID) (*models.Instance, error)
	Release(ctx context.Context, userID uuid.UUID) error
}

// Guard decides whether a user may release their instance slot.
type Guard interface {
	Check(ctx context.Context, userID uuid.UUID) error
}

// Gateway is the subset of the gateway client the state machine drives.
type Gateway interface {
	RequestQRCode(ctx context.Context, target gateway.Target) (string, error)
	RequestPairingCode(ctx context.Context, target gateway.Target, number string) (string, error)
	Logout(ctx context.Context, target gateway.Target) error
	RegisterWebhook(ctx context.Context, target gateway.Target, callbackURL string, events []string) error
}

// Notifier pushes connection status changes to connected dashboard clients.
type Notifier interface {
	ConnectionStatusChanged(userID, connectionID uuid.UUID, status string)
}

// ConnectResult is returned from Initiate and carries whatever credential
// the user needs to finish the handshake on their phone.
type ConnectResult struct {
	Status      string `json:"status"`
	QRCode      string `json:"qr_code,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
}

// Config holds the tunables of the state machine.
type Config struct {
	// ConnectTimeout bounds how long a connection may stay in connecting
	// before it is cancelled. Zero means the 60s default.
	ConnectTimeout time.Duration
	// WebhookBaseURL is our public base URL, used when registering the
	// gateway callback. Empty disables webhook registration.
	WebhookBaseURL string
}

const defaultConnectTimeout = 60 * time.Second

// attempt tracks one in-flight handshake so concurrent initiates for the
// same connection collapse into a single gateway call.
type attempt struct {
	done   chan struct{}
	result *ConnectResult
	err    error
	timer  *time.Timer
}

// StateMachine orchestrates the disconnected/connecting/connected lifecycle
// of user connections. All pool mutation goes through the Allocator; the
// in-flight map only guards the handshake step, never the pool.
type StateMachine struct {
	store    Store
	alloc    Allocator
	guard    Guard
	gw       Gateway
	notifier Notifier
	cfg      Config

	mu       sync.Mutex
	inflight map[uuid.UUID]*attempt
}

func NewStateMachine(store Store, alloc Allocator, guard Guard, gw Gateway, notifier Notifier, cfg Config) *StateMachine {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &StateMachine{
		store:    store,
		alloc:    alloc,
		guard:    guard,
		gw:       gw,
		notifier: notifier,
		cfg:      cfg,
		inflight: make(map[uuid.UUID]*attempt),
	}
}

// SetNotifier installs the status fanout hook. Called once during startup,
// before the machine handles any request.
func (sm *StateMachine) SetNotifier(n Notifier) {
	sm.notifier = n
}

// Initiate starts the handshake for a connection. When phone is non-empty a
// pairing code is requested instead of a QR code. A second Initiate while
// one is in flight waits for and returns the first attempt's result.
func (sm *StateMachine) Initiate(ctx context.Context, connectionID uuid.UUID, phone string) (*ConnectResult, error) {
	sm.mu.Lock()
	if att, ok := sm.inflight[connectionID]; ok {
		sm.mu.Unlock()
		select {
		case <-att.done:
			return att.result, att.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	att := &attempt{done: make(chan struct{})}
	sm.inflight[connectionID] = att
	sm.mu.Unlock()

	result, err := sm.runHandshake(ctx, connectionID, phone, att)
	att.result = result
	att.err = err
	close(att.done)

	if err != nil {
		sm.mu.Lock()
		delete(sm.inflight, connectionID)
		sm.mu.Unlock()
	}
	return result, err
}

func (sm *StateMachine) runHandshake(ctx context.Context, connectionID uuid.UUID, phone string, att *attempt) (*ConnectResult, error) {
	conn, err := sm.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status == models.ConnectionStatusConnected {
		return nil, fmt.Errorf("%w: already connected", ErrInvalidTransition)
	}

	instance, err := sm.alloc.Allocate(ctx, conn.OwnerUserID)
	if err != nil {
		return nil, err
	}

	conn.Status = models.ConnectionStatusConnecting
	conn.BoundInstanceID = &instance.ID
	conn.ErrorMessage = ""
	if err := sm.store.UpdateConnection(ctx, conn); err != nil {
		return nil, err
	}

	target := gateway.Target{
		Host:       instance.Host,
		APIKey:     instance.APIKey,
		InstanceID: instance.ExternalInstanceID,
	}

	if sm.cfg.WebhookBaseURL != "" {
		callbackURL := sm.cfg.WebhookBaseURL + "/webhooks/whatsapp/connected"
		if err := sm.gw.RegisterWebhook(ctx, target, callbackURL, []string{"CONNECTION_UPDATE"}); err != nil {
			log.Warn().Err(err).Str("connection_id", connectionID.String()).Msg("failed to register gateway webhook")
		}
	}

	result := &ConnectResult{Status: models.ConnectionStatusConnecting}
	if phone != "" {
		code, err := sm.gw.RequestPairingCode(ctx, target, phone)
		if err != nil {
			sm.abortHandshake(ctx, conn, err)
			return nil, err
		}
		result.PairingCode = code
	} else {
		qr, err := sm.gw.RequestQRCode(ctx, target)
		if err != nil {
			sm.abortHandshake(ctx, conn, err)
			return nil, err
		}
		result.QRCode = qr
	}

	att.timer = time.AfterFunc(sm.cfg.ConnectTimeout, func() {
		sm.expire(connectionID)
	})

	sm.notify(conn.OwnerUserID, connectionID, models.ConnectionStatusConnecting)

	log.Info().
		Str("connection_id", connectionID.String()).
		Str("instance_id", instance.ExternalInstanceID).
		Bool("pairing", phone != "").
		Msg("connection handshake started")

	return result, nil
}

// abortHandshake undoes a failed initiate: the slot goes back to the pool
// and the connection returns to disconnected with the error recorded.
func (sm *StateMachine) abortHandshake(ctx context.Context, conn *models.Connection, cause error) {
	if err := sm.alloc.Release(ctx, conn.OwnerUserID); err != nil {
		log.Error().Err(err).Str("user_id", conn.OwnerUserID.String()).Msg("failed to release slot after handshake failure")
	}
	conn.Status = models.ConnectionStatusDisconnected
	conn.BoundInstanceID = nil
	conn.ErrorMessage = cause.Error()
	if err := sm.store.UpdateConnection(ctx, conn); err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID.String()).Msg("failed to persist handshake failure")
	}
}

// Confirm applies a successful handshake reported by the gateway, either
// via webhook or via the polling monitor. It is idempotent: confirming an
// already connected connection is a no-op.
func (sm *StateMachine) Confirm(ctx context.Context, connectionID uuid.UUID) error {
	conn, err := sm.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.Status == models.ConnectionStatusConnected {
		return nil
	}
	if conn.Status != models.ConnectionStatusConnecting {
		return fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, conn.Status)
	}

	now := time.Now()
	conn.Status = models.ConnectionStatusConnected
	conn.ConnectedAt = &now
	conn.ErrorMessage = ""
	if err := sm.store.UpdateConnection(ctx, conn); err != nil {
		return err
	}

	sm.clearInflight(connectionID)
	sm.notify(conn.OwnerUserID, connectionID, models.ConnectionStatusConnected)

	log.Info().Str("connection_id", connectionID.String()).Msg("connection confirmed")
	return nil
}

// Cancel aborts a pending handshake. The pool slot is released locally and
// immediately; the gateway side is left to webhook or monitor reconciliation.
func (sm *StateMachine) Cancel(ctx context.Context, connectionID uuid.UUID) error {
	conn, err := sm.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.Status != models.ConnectionStatusConnecting {
		return nil
	}

	if err := sm.alloc.Release(ctx, conn.OwnerUserID); err != nil {
		log.Error().Err(err).Str("user_id", conn.OwnerUserID.String()).Msg("failed to release slot on cancel")
	}

	conn.Status = models.ConnectionStatusDisconnected
	conn.BoundInstanceID = nil
	conn.ConnectedAt = nil
	if err := sm.store.UpdateConnection(ctx, conn); err != nil {
		return err
	}

	sm.clearInflight(connectionID)
	sm.notify(conn.OwnerUserID, connectionID, models.ConnectionStatusDisconnected)

	log.Info().Str("connection_id", connectionID.String()).Msg("connection handshake cancelled")
	return nil
}

// Disconnect tears down a connected session. The release guard may block it
// while the owner still has campaigns or pending messages; in that case the
// connection stays connected and the guard error is returned.
func (sm *StateMachine) Disconnect(ctx context.Context, connectionID uuid.UUID) error {
	return sm.disconnect(ctx, connectionID, false)
}

// ForceDisconnect bypasses the release guard. Administrative repair path
// for desynchronized connections.
func (sm *StateMachine) ForceDisconnect(ctx context.Context, connectionID uuid.UUID) error {
	return sm.disconnect(ctx, connectionID, true)
}

func (sm *StateMachine) disconnect(ctx context.Context, connectionID uuid.UUID, force bool) error {
	conn, err := sm.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.Status == models.ConnectionStatusDisconnected {
		return nil
	}
	if conn.Status == models.ConnectionStatusConnecting && !force {
		return sm.Cancel(ctx, connectionID)
	}

	if !force {
		if err := sm.guard.Check(ctx, conn.OwnerUserID); err != nil {
			return err
		}
	}

	// Gateway logout is best-effort: local consistency wins, the monitor
	// repairs remote drift.
	if conn.Instance != nil {
		target := gateway.Target{
			Host:       conn.Instance.Host,
			APIKey:     conn.Instance.APIKey,
			InstanceID: conn.Instance.ExternalInstanceID,
		}
		if err := sm.gw.Logout(ctx, target); err != nil {
			log.Warn().Err(err).Str("connection_id", connectionID.String()).Msg("gateway logout failed, releasing locally anyway")
		}
	}

	if err := sm.alloc.Release(ctx, conn.OwnerUserID); err != nil {
		log.Error().Err(err).Str("user_id", conn.OwnerUserID.String()).Msg("failed to release slot on disconnect")
	}

	conn.Status = models.ConnectionStatusDisconnected
	conn.BoundInstanceID = nil
	conn.ConnectedAt = nil
	if err := sm.store.UpdateConnection(ctx, conn); err != nil {
		return err
	}

	sm.clearInflight(connectionID)
	sm.notify(conn.OwnerUserID, connectionID, models.ConnectionStatusDisconnected)

	log.Info().Str("connection_id", connectionID.String()).Bool("forced", force).Msg("connection disconnected")
	return nil
}

// ApplyRemoteState reconciles a gateway-reported state onto the connection.
// Both the inbound webhook and the polling monitor funnel through here so
// there is a single transition path.
func (sm *StateMachine) ApplyRemoteState(ctx context.Context, connectionID uuid.UUID, state string) error {
	switch state {
	case gateway.StateOpen:
		return sm.Confirm(ctx, connectionID)
	case gateway.StateClose:
		return sm.markRemoteDisconnected(ctx, connectionID)
	default:
		return nil
	}
}

// markRemoteDisconnected records that the gateway dropped the session. The
// pool slot is kept; the user decides whether to reconnect or disconnect.
func (sm *StateMachine) markRemoteDisconnected(ctx context.Context, connectionID uuid.UUID) error {
	conn, err := sm.store.GetConnection(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.Status == models.ConnectionStatusDisconnected {
		return nil
	}

	conn.Status = models.ConnectionStatusDisconnected
	conn.ConnectedAt = nil
	if err := sm.store.UpdateConnection(ctx, conn); err != nil {
		return err
	}

	sm.clearInflight(connectionID)
	sm.notify(conn.OwnerUserID, connectionID, models.ConnectionStatusDisconnected)

	log.Warn().Str("connection_id", connectionID.String()).Msg("gateway reported session closed")
	return nil
}

// expire runs when a handshake outlives the connect timeout.
func (sm *StateMachine) expire(connectionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := sm.store.GetConnection(ctx, connectionID)
	if err != nil {
		log.Error().Err(err).Str("connection_id", connectionID.String()).Msg("failed to load connection on timeout")
		return
	}
	if conn.Status != models.ConnectionStatusConnecting {
		return
	}

	log.Warn().
		Str("connection_id", connectionID.String()).
		Dur("timeout", sm.cfg.ConnectTimeout).
		Msg("connection handshake timed out")

	if err := sm.Cancel(ctx, connectionID); err != nil {
		log.Error().Err(err).Str("connection_id", connectionID.String()).Msg("failed to cancel timed out handshake")
	}
}

func (sm *StateMachine) clearInflight(connectionID uuid.UUID) {
	sm.mu.Lock()
	if att, ok := sm.inflight[connectionID]; ok {
		if att.timer != nil {
			att.timer.Stop()
		}
		delete(sm.inflight, connectionID)
	}
	sm.mu.Unlock()
}

func (sm *StateMachine) notify(userID, connectionID uuid.UUID, status string) {
	if sm.notifier != nil {
		sm.notifier.ConnectionStatusChanged(userID, connectionID, status)
	}
}
