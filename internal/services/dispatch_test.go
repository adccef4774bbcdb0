package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"zapleads/internal/gateway"
	"zapleads/pkg/models"
)

type fakeDispatchStore struct {
	mu       sync.Mutex
	campaign *models.Campaign
	pending  []models.CampaignLead
	sent     []string
	failed   map[uuid.UUID]string
	statuses []string
}

func (s *fakeDispatchStore) GetByIDAndOwner(_ context.Context, _, _ uuid.UUID) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.campaign
	return &cp, nil
}

func (s *fakeDispatchStore) UpdateStatus(_ context.Context, _ uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaign.Status = status
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeDispatchStore) NextPendingLeads(_ context.Context, _ uuid.UUID, limit int) ([]models.CampaignLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := make([]models.CampaignLead, n)
	copy(batch, s.pending[:n])
	return batch, nil
}

func (s *fakeDispatchStore) MarkLeadSent(_ context.Context, lead *models.CampaignLead, sentMessage string, _ uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage)
	s.dropLocked(lead.ID)
	return nil
}

func (s *fakeDispatchStore) MarkLeadFailed(_ context.Context, lead *models.CampaignLead, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = make(map[uuid.UUID]string)
	}
	s.failed[lead.ID] = cause
	s.dropLocked(lead.ID)
	return nil
}

func (s *fakeDispatchStore) CompleteIfDrained(_ context.Context, _ uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > 0 {
		return false, nil
	}
	s.campaign.Status = models.CampaignStatusCompleted
	return true, nil
}

func (s *fakeDispatchStore) dropLocked(id uuid.UUID) {
	for i := range s.pending {
		if s.pending[i].ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

type fakeConnections struct {
	conns   []models.Connection
	touched int
}

func (f *fakeConnections) ListByOwner(context.Context, uuid.UUID) ([]models.Connection, error) {
	return f.conns, nil
}

func (f *fakeConnections) TouchLastUsed(context.Context, uuid.UUID) error {
	f.touched++
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	delays []int
	err    error
}

func (f *fakeSender) SendText(_ context.Context, _ gateway.Target, _ string, text string, delayMs int) (*gateway.SendTextResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, text)
	f.delays = append(f.delays, delayMs)
	return &gateway.SendTextResponse{Status: "PENDING"}, nil
}

type passthroughVarier struct{}

func (passthroughVarier) VaryMessage(text string) string { return text }
func (passthroughVarier) HumanDelayMs(text string) int   { return 1234 }

func connectedConn() models.Connection {
	inst := &models.Instance{Host: "http://gw", APIKey: "k", ExternalInstanceID: "ext-1"}
	inst.ID = uuid.New()
	conn := models.Connection{
		Status:          models.ConnectionStatusConnected,
		BoundInstanceID: &inst.ID,
		Instance:        inst,
	}
	conn.ID = uuid.New()
	return conn
}

func pendingLead(campaignID uuid.UUID, phone, templateContent string) models.CampaignLead {
	templateID := uuid.New()
	lead := models.CampaignLead{
		CampaignID:        campaignID,
		LeadID:            uuid.New(),
		MessageTemplateID: &templateID,
		Status:            models.CampaignLeadStatusPending,
		Lead: &models.Lead{
			Phone: phone,
			Name:  "Ana",
			Company: &models.Company{
				Name: "Padaria Central",
			},
		},
		MessageTemplate: &models.MessageTemplate{Content: templateContent},
	}
	lead.ID = uuid.New()
	return lead
}

func activeCampaign() *models.Campaign {
	c := &models.Campaign{
		OwnerUserID: uuid.New(),
		Status:      models.CampaignStatusActive,
	}
	c.ID = uuid.New()
	return c
}

func newTestDispatcher(store DispatchStore, conns ConnectionFinder, sender Sender) *CampaignDispatcher {
	return NewCampaignDispatcher(store, conns, sender, passthroughVarier{}, rate.NewLimiter(rate.Inf, 1))
}

func TestRunSendsAllPendingLeads(t *testing.T) {
	campaign := activeCampaign()
	store := &fakeDispatchStore{campaign: campaign}
	for i := 0; i < 3; i++ {
		store.pending = append(store.pending, pendingLead(campaign.ID, "551199999000"+string(rune('0'+i)), "hello {{name}} from {{company}}"))
	}
	sender := &fakeSender{}
	d := newTestDispatcher(store, &fakeConnections{conns: []models.Connection{connectedConn()}}, sender)

	if err := d.Run(context.Background(), campaign.ID, campaign.OwnerUserID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 3 || len(store.sent) != 3 {
		t.Fatalf("sent via gateway = %d, recorded = %d", len(sender.sent), len(store.sent))
	}
	if sender.sent[0] != "hello Ana from Padaria Central" {
		t.Fatalf("rendered = %q", sender.sent[0])
	}
	if sender.delays[0] != 1234 {
		t.Fatalf("delay = %d", sender.delays[0])
	}
	if store.campaign.Status != models.CampaignStatusCompleted {
		t.Fatalf("campaign status = %s", store.campaign.Status)
	}
}

func TestRunStopsWhenCampaignPaused(t *testing.T) {
	campaign := activeCampaign()
	campaign.Status = models.CampaignStatusPaused
	store := &fakeDispatchStore{campaign: campaign}
	store.pending = append(store.pending, pendingLead(campaign.ID, "5511999990001", "hi"))
	sender := &fakeSender{}
	d := newTestDispatcher(store, &fakeConnections{conns: []models.Connection{connectedConn()}}, sender)

	if err := d.Run(context.Background(), campaign.ID, campaign.OwnerUserID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("paused campaign must not send")
	}
	if len(store.pending) != 1 {
		t.Fatal("leads must stay pending")
	}
}

func TestRunRequiresConnectedConnection(t *testing.T) {
	campaign := activeCampaign()
	store := &fakeDispatchStore{campaign: campaign}
	disconnected := connectedConn()
	disconnected.Status = models.ConnectionStatusDisconnected
	d := newTestDispatcher(store, &fakeConnections{conns: []models.Connection{disconnected}}, &fakeSender{})

	if err := d.Run(context.Background(), campaign.ID, campaign.OwnerUserID); err == nil {
		t.Fatal("want error without a connected connection")
	}
}

func TestGatewayFailureMarksLeadFailed(t *testing.T) {
	campaign := activeCampaign()
	store := &fakeDispatchStore{campaign: campaign}
	lead := pendingLead(campaign.ID, "5511999990001", "hi")
	store.pending = append(store.pending, lead)
	sender := &fakeSender{err: errors.New("boom")}
	d := newTestDispatcher(store, &fakeConnections{conns: []models.Connection{connectedConn()}}, sender)

	if err := d.Run(context.Background(), campaign.ID, campaign.OwnerUserID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.failed[lead.ID] != "boom" {
		t.Fatalf("failed = %v", store.failed)
	}
	if store.campaign.Status != models.CampaignStatusCompleted {
		t.Fatalf("campaign status = %s, want completed after drain", store.campaign.Status)
	}
}

func TestLeadWithoutPhoneFailsWithoutSending(t *testing.T) {
	campaign := activeCampaign()
	store := &fakeDispatchStore{campaign: campaign}
	lead := pendingLead(campaign.ID, "", "hi")
	store.pending = append(store.pending, lead)
	sender := &fakeSender{}
	d := newTestDispatcher(store, &fakeConnections{conns: []models.Connection{connectedConn()}}, sender)

	if err := d.Run(context.Background(), campaign.ID, campaign.OwnerUserID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("lead without phone must not reach the gateway")
	}
	if store.failed[lead.ID] == "" {
		t.Fatal("lead should be marked failed")
	}
}

func TestCampaignServiceStartRejectsCompleted(t *testing.T) {
	campaign := activeCampaign()
	campaign.Status = models.CampaignStatusCompleted
	store := &fakeDispatchStore{campaign: campaign}
	svc := NewCampaignService(store, newTestDispatcher(store, &fakeConnections{}, &fakeSender{}))

	err := svc.Start(context.Background(), campaign.ID, campaign.OwnerUserID)
	if !errors.Is(err, ErrCampaignNotStartable) {
		t.Fatalf("err = %v", err)
	}
}

func TestCampaignServicePause(t *testing.T) {
	campaign := activeCampaign()
	store := &fakeDispatchStore{campaign: campaign}
	svc := NewCampaignService(store, newTestDispatcher(store, &fakeConnections{}, &fakeSender{}))

	if err := svc.Pause(context.Background(), campaign.ID, campaign.OwnerUserID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if store.campaign.Status != models.CampaignStatusPaused {
		t.Fatalf("status = %s", store.campaign.Status)
	}
}
