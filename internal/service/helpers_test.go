package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/config"
	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/notify"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	"github.com/spec-kit/servicedesk-sla/internal/repository/memstore"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendWarning(ctx context.Context, ticket notify.TicketRef, recipient notify.Recipient, due time.Time) error {
	return m.Called(ctx, ticket, recipient, due).Error(0)
}

func (m *mockNotifier) SendBreach(ctx context.Context, ticket notify.TicketRef, recipient notify.Recipient, due time.Time) error {
	return m.Called(ctx, ticket, recipient, due).Error(0)
}

func (m *mockNotifier) SendStatusChanged(ctx context.Context, ticket notify.TicketRef, recipient notify.Recipient, data map[string]string) error {
	return m.Called(ctx, ticket, recipient, data).Error(0)
}

func acceptingNotifier() *mockNotifier {
	n := &mockNotifier{}
	n.On("SendWarning", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	n.On("SendBreach", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return n
}

type harness struct {
	t          *testing.T
	clock      *clock.FakeClock
	store      *memstore.Store
	notifier   *mockNotifier
	dispatcher events.Dispatcher
	sla        *SLAService
	tickets    *TicketService
	actor      *domain.Principal
}

type harnessOption func(*harnessSettings)

type harnessSettings struct {
	cfg      config.SLAConfig
	notifier *mockNotifier
	txm      func(*memstore.Store) repository.TxManager
}

func withConfig(fn func(*config.SLAConfig)) harnessOption {
	return func(s *harnessSettings) { fn(&s.cfg) }
}

func withNotifier(n *mockNotifier) harnessOption {
	return func(s *harnessSettings) { s.notifier = n }
}

func withTxManager(fn func(*memstore.Store) repository.TxManager) harnessOption {
	return func(s *harnessSettings) { s.txm = fn }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	settings := harnessSettings{
		cfg: config.SLAConfig{
			SweepWorkers:       2,
			SweepRetries:       3,
			SweepBackoff:       time.Millisecond,
			SweepTimerTimeout:  time.Second,
			WarningRatio:       0.75,
			ReportTimezone:     "Asia/Kolkata",
			MarkTicketBreached: true,
		},
		notifier: acceptingNotifier(),
		txm:      func(s *memstore.Store) repository.TxManager { return s },
	}
	for _, opt := range opts {
		opt(&settings)
	}

	clk := clock.Fake(t0)
	store := memstore.New(clk.Now)
	dispatcher := events.NewInMemoryDispatcher(nil)
	txm := settings.txm(store)

	slaService, err := NewSLAService(SLADependencies{
		Store:      txm,
		Notifier:   settings.notifier,
		Dispatcher: dispatcher,
		Clock:      clk,
		Config:     settings.cfg,
	})
	require.NoError(t, err)

	h := &harness{
		t:          t,
		clock:      clk,
		store:      store,
		notifier:   settings.notifier,
		dispatcher: dispatcher,
		sla:        slaService,
		tickets: NewTicketService(TicketDependencies{
			Store:      txm,
			SLA:        slaService,
			Dispatcher: dispatcher,
			Clock:      clk,
		}),
		actor: &domain.Principal{
			EmployeeID:     "emp-1",
			OrganisationID: "org-1",
			Roles:          []domain.Role{domain.RoleAgent, domain.RoleManager, domain.RoleAdmin},
		},
	}
	h.employee("emp-1", "agent@example.com")
	return h
}

func (h *harness) employee(id, email string) {
	h.t.Helper()
	require.NoError(h.t, h.store.Employees().Upsert(context.Background(), &domain.Employee{
		ID:             id,
		OrganisationID: "org-1",
		Name:           id,
		Email:          email,
		IsActive:       true,
	}))
}

func (h *harness) priority(target time.Duration) *int64 {
	h.t.Helper()
	p := &domain.Priority{OrganisationID: "org-1", UrgencyName: target.String(), ResponseTarget: target, IsActive: true}
	require.NoError(h.t, h.store.Priorities().Create(context.Background(), p))
	return &p.ID
}

func (h *harness) ticket(priorityID *int64) *domain.Ticket {
	h.t.Helper()
	ticket, _, err := h.tickets.CreateTicket(context.Background(), h.actor, TicketCreateInput{
		Summary:    "VPN drops every hour",
		PriorityID: priorityID,
	})
	require.NoError(h.t, err)
	return ticket
}

func (h *harness) move(ticketID string, status domain.TicketStatus) *domain.Ticket {
	h.t.Helper()
	ticket, err := h.tickets.UpdateStatus(context.Background(), h.actor, ticketID, status, "")
	require.NoError(h.t, err)
	return ticket
}

func (h *harness) timer(ticketID string) *domain.SLATimer {
	h.t.Helper()
	timer, err := h.store.Timers().GetByTicket(context.Background(), ticketID)
	require.NoError(h.t, err)
	return timer
}

func (h *harness) sweep() SweepResult {
	h.t.Helper()
	result, err := h.sla.RunSweep(context.Background(), h.clock.Now())
	require.NoError(h.t, err)
	return result
}

// flaky makes GetByTicketForUpdate fail with ErrConcurrentUpdate while
// failures stays positive, optionally only for one ticket.
type flaky struct {
	failures atomic.Int32
	ticketID string
}

type flakyStore struct {
	*memstore.Store
	control *flaky
}

func (f flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		return fn(ctx, flakyTx{Store: store, control: f.control})
	})
}

type flakyTx struct {
	repository.Store
	control *flaky
}

func (f flakyTx) Timers() repository.TimerRepository {
	return flakyTimers{TimerRepository: f.Store.Timers(), control: f.control}
}

type flakyTimers struct {
	repository.TimerRepository
	control *flaky
}

func (f flakyTimers) GetByTicketForUpdate(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	if f.control.ticketID == "" || f.control.ticketID == ticketID {
		if f.control.failures.Add(-1) >= 0 {
			return nil, domain.ErrConcurrentUpdate
		}
	}
	return f.TimerRepository.GetByTicketForUpdate(ctx, ticketID)
}

func withFlaky(control *flaky) harnessOption {
	return withTxManager(func(s *memstore.Store) repository.TxManager {
		return flakyStore{Store: s, control: control}
	})
}

// keyRecorder captures the ExternalKey of every ticket as it reaches the
// repository.
type keyRecorder struct {
	*memstore.Store
	keys *[]string
}

func (k keyRecorder) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	return k.Store.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		return fn(ctx, keyRecorderTx{Store: store, keys: k.keys})
	})
}

type keyRecorderTx struct {
	repository.Store
	keys *[]string
}

func (k keyRecorderTx) Tickets() repository.TicketRepository {
	return keyRecorderTickets{TicketRepository: k.Store.Tickets(), keys: k.keys}
}

type keyRecorderTickets struct {
	repository.TicketRepository
	keys *[]string
}

func (k keyRecorderTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	*k.keys = append(*k.keys, ticket.ExternalKey)
	return k.TicketRepository.Create(ctx, ticket)
}

// timerCalls counts timer repository reads made outside transactions.
type timerCalls struct {
	perTicket      atomic.Int32
	perTimerPauses atomic.Int32
	orgPauses      atomic.Int32
}

type countingStore struct {
	*memstore.Store
	calls *timerCalls
}

func (c countingStore) Timers() repository.TimerRepository {
	return countingTimers{TimerRepository: c.Store.Timers(), calls: c.calls}
}

type countingTimers struct {
	repository.TimerRepository
	calls *timerCalls
}

func (c countingTimers) GetByTicket(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	c.calls.perTicket.Add(1)
	return c.TimerRepository.GetByTicket(ctx, ticketID)
}

func (c countingTimers) ListPauses(ctx context.Context, timerID int64) ([]domain.PauseInterval, error) {
	c.calls.perTimerPauses.Add(1)
	return c.TimerRepository.ListPauses(ctx, timerID)
}

func (c countingTimers) ListPausesByOrganisation(ctx context.Context, organisationID string) ([]domain.PauseInterval, error) {
	c.calls.orgPauses.Add(1)
	return c.TimerRepository.ListPausesByOrganisation(ctx, organisationID)
}
