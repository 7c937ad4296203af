// Package memstore is an in-memory repository.TxManager. Transactions are
// serialised and roll back by restoring a snapshot, which makes it suitable
// for tests and for running the service without Postgres.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
)

type data struct {
	tickets    map[string]domain.Ticket
	priorities map[int64]domain.Priority
	employees  map[string]domain.Employee
	timers     map[int64]domain.SLATimer
	byTicket   map[string]int64
	pauses     map[int64][]domain.PauseInterval
	history    map[string][]domain.TicketHistory

	nextPriority int64
	nextTimer    int64
	nextPause    int64
}

func newData() *data {
	return &data{
		tickets:    map[string]domain.Ticket{},
		priorities: map[int64]domain.Priority{},
		employees:  map[string]domain.Employee{},
		timers:     map[int64]domain.SLATimer{},
		byTicket:   map[string]int64{},
		pauses:     map[int64][]domain.PauseInterval{},
		history:    map[string][]domain.TicketHistory{},
	}
}

func (d *data) clone() *data {
	c := *d
	c.tickets = cloneMap(d.tickets)
	c.priorities = cloneMap(d.priorities)
	c.employees = cloneMap(d.employees)
	c.timers = cloneMap(d.timers)
	c.byTicket = cloneMap(d.byTicket)
	c.pauses = make(map[int64][]domain.PauseInterval, len(d.pauses))
	for k, v := range d.pauses {
		c.pauses[k] = append([]domain.PauseInterval(nil), v...)
	}
	c.history = make(map[string][]domain.TicketHistory, len(d.history))
	for k, v := range d.history {
		c.history[k] = append([]domain.TicketHistory(nil), v...)
	}
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is the in-memory TxManager.
type Store struct {
	mu   sync.Mutex
	d    *data
	now  func() time.Time
	view *view
}

// New returns an empty store. now stamps created/updated columns; nil means
// time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{d: newData(), now: func() time.Time { return now().UTC() }}
	s.view = &view{store: s, locking: true}
	return s
}

var _ repository.TxManager = (*Store)(nil)

func (s *Store) Tickets() repository.TicketRepository { return s.view.Tickets() }
func (s *Store) Priorities() repository.PriorityRepository { return s.view.Priorities() }
func (s *Store) Employees() repository.EmployeeRepository { return s.view.Employees() }
func (s *Store) Timers() repository.TimerRepository { return s.view.Timers() }
func (s *Store) History() repository.TicketHistoryRepository { return s.view.History() }

// WithinTx runs fn holding the store lock, so transactions are serialised
// across all tickets, not per ticket. A non-nil error restores the state
// from before fn ran.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.d.clone()
	if err := fn(ctx, &view{store: s}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// view routes repository calls to the data. Outside a transaction every
// call takes the store lock itself.
type view struct {
	store   *Store
	locking bool
}

func (v *view) acquire() func() {
	if !v.locking {
		return func() {}
	}
	v.store.mu.Lock()
	return v.store.mu.Unlock
}

func (v *view) Tickets() repository.TicketRepository { return tickets{v} }
func (v *view) Priorities() repository.PriorityRepository { return priorities{v} }
func (v *view) Employees() repository.EmployeeRepository { return employees{v} }
func (v *view) Timers() repository.TimerRepository { return timers{v} }
func (v *view) History() repository.TicketHistoryRepository { return history{v} }

type tickets struct{ v *view }

func (r tickets) Create(_ context.Context, ticket *domain.Ticket) error {
	defer r.v.acquire()()
	d := r.v.store.d
	for _, existing := range d.tickets {
		if existing.ExternalKey == ticket.ExternalKey {
			return fmt.Errorf("%w: external_key %q", domain.ErrDuplicate, ticket.ExternalKey)
		}
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := r.v.store.now()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	d.tickets[ticket.ID] = *ticket
	return nil
}

func (r tickets) Update(_ context.Context, ticket *domain.Ticket) error {
	defer r.v.acquire()()
	d := r.v.store.d
	stored, ok := d.tickets[ticket.ID]
	if !ok {
		return domain.ErrNotFound
	}
	ticket.CreatedAt = stored.CreatedAt
	ticket.UpdatedAt = r.v.store.now()
	d.tickets[ticket.ID] = *ticket
	return nil
}

func (r tickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	defer r.v.acquire()()
	ticket, ok := r.v.store.d.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ticket, nil
}

func (r tickets) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r tickets) ListByOrganisation(_ context.Context, organisationID string) ([]domain.Ticket, error) {
	defer r.v.acquire()()
	var out []domain.Ticket
	for _, ticket := range r.v.store.d.tickets {
		if ticket.OrganisationID == organisationID {
			out = append(out, ticket)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type priorities struct{ v *view }

func (r priorities) Create(_ context.Context, priority *domain.Priority) error {
	defer r.v.acquire()()
	d := r.v.store.d
	d.nextPriority++
	priority.ID = d.nextPriority
	now := r.v.store.now()
	priority.CreatedAt, priority.UpdatedAt = now, now
	d.priorities[priority.ID] = *priority
	return nil
}

func (r priorities) GetByID(_ context.Context, id int64) (*domain.Priority, error) {
	defer r.v.acquire()()
	priority, ok := r.v.store.d.priorities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &priority, nil
}

func (r priorities) FindByNameAndTarget(_ context.Context, organisationID, urgencyName string, target time.Duration) (*domain.Priority, error) {
	defer r.v.acquire()()
	var found *domain.Priority
	for _, p := range r.v.store.d.priorities {
		if p.OrganisationID != organisationID || p.UrgencyName != urgencyName || p.ResponseTarget != target {
			continue
		}
		if found == nil || p.ID < found.ID {
			p := p
			found = &p
		}
	}
	if found == nil {
		return nil, domain.ErrNotFound
	}
	return found, nil
}

func (r priorities) ListByOrganisation(_ context.Context, organisationID string) ([]domain.Priority, error) {
	defer r.v.acquire()()
	var out []domain.Priority
	for _, p := range r.v.store.d.priorities {
		if p.OrganisationID == organisationID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type employees struct{ v *view }

func (r employees) GetByID(_ context.Context, id string) (*domain.Employee, error) {
	defer r.v.acquire()()
	employee, ok := r.v.store.d.employees[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &employee, nil
}

func (r employees) Upsert(_ context.Context, employee *domain.Employee) error {
	defer r.v.acquire()()
	r.v.store.d.employees[employee.ID] = *employee
	return nil
}

type timers struct{ v *view }

func (r timers) Create(_ context.Context, timer *domain.SLATimer) error {
	defer r.v.acquire()()
	d := r.v.store.d
	if _, exists := d.byTicket[timer.TicketID]; exists {
		return domain.ErrConcurrentUpdate
	}
	d.nextTimer++
	timer.ID = d.nextTimer
	timer.Version = 1
	now := r.v.store.now()
	timer.CreatedAt, timer.ModifiedAt = now, now
	d.timers[timer.ID] = copyTimer(*timer)
	d.byTicket[timer.TicketID] = timer.ID
	return nil
}

func (r timers) Update(_ context.Context, timer *domain.SLATimer) error {
	defer r.v.acquire()()
	d := r.v.store.d
	stored, ok := d.timers[timer.ID]
	if !ok || stored.Version != timer.Version {
		return domain.ErrConcurrentUpdate
	}
	timer.Version++
	timer.ModifiedAt = r.v.store.now()
	d.timers[timer.ID] = copyTimer(*timer)
	return nil
}

func (r timers) GetByTicket(_ context.Context, ticketID string) (*domain.SLATimer, error) {
	defer r.v.acquire()()
	d := r.v.store.d
	id, ok := d.byTicket[ticketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	timer := copyTimer(d.timers[id])
	return &timer, nil
}

func (r timers) GetByTicketForUpdate(ctx context.Context, ticketID string) (*domain.SLATimer, error) {
	return r.GetByTicket(ctx, ticketID)
}

func (r timers) ListActiveTicketIDs(_ context.Context) ([]string, error) {
	defer r.v.acquire()()
	var active []domain.SLATimer
	for _, timer := range r.v.store.d.timers {
		if timer.Status == domain.SLAStatusActive {
			active = append(active, timer)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	ids := make([]string, len(active))
	for i, timer := range active {
		ids[i] = timer.TicketID
	}
	return ids, nil
}

func (r timers) ListByOrganisation(_ context.Context, organisationID string) ([]domain.SLATimer, error) {
	defer r.v.acquire()()
	d := r.v.store.d
	var out []domain.SLATimer
	for _, timer := range d.timers {
		if d.tickets[timer.TicketID].OrganisationID == organisationID {
			out = append(out, copyTimer(timer))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r timers) ListPauses(_ context.Context, timerID int64) ([]domain.PauseInterval, error) {
	defer r.v.acquire()()
	return append([]domain.PauseInterval(nil), r.v.store.d.pauses[timerID]...), nil
}

func (r timers) ListPausesByOrganisation(_ context.Context, organisationID string) ([]domain.PauseInterval, error) {
	defer r.v.acquire()()
	d := r.v.store.d
	var out []domain.PauseInterval
	for timerID, rows := range d.pauses {
		timer, ok := d.timers[timerID]
		if ok && d.tickets[timer.TicketID].OrganisationID == organisationID {
			out = append(out, rows...)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimerID != out[j].TimerID {
			return out[i].TimerID < out[j].TimerID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r timers) InsertPause(_ context.Context, interval *domain.PauseInterval) error {
	defer r.v.acquire()()
	d := r.v.store.d
	d.nextPause++
	interval.ID = d.nextPause
	d.pauses[interval.TimerID] = append(d.pauses[interval.TimerID], *interval)
	return nil
}

func (r timers) ClosePause(_ context.Context, interval domain.PauseInterval) error {
	defer r.v.acquire()()
	rows := r.v.store.d.pauses[interval.TimerID]
	for i := range rows {
		if rows[i].ID == interval.ID {
			rows[i].ResumedAt = interval.ResumedAt
			rows[i].Duration = interval.Duration
			return nil
		}
	}
	return domain.ErrNotFound
}

type history struct{ v *view }

func (r history) Create(_ context.Context, entry *domain.TicketHistory) error {
	defer r.v.acquire()()
	entry.ID = uuid.NewString()
	entry.CreatedAt = r.v.store.now()
	r.v.store.d.history[entry.TicketID] = append(r.v.store.d.history[entry.TicketID], *entry)
	return nil
}

func (r history) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	defer r.v.acquire()()
	return append([]domain.TicketHistory(nil), r.v.store.d.history[ticketID]...), nil
}

// copyTimer detaches the timestamp pointers so callers cannot mutate
// stored state.
func copyTimer(t domain.SLATimer) domain.SLATimer {
	t.StartTime = copyTime(t.StartTime)
	t.PausedTime = copyTime(t.PausedTime)
	t.ResumedTime = copyTime(t.ResumedTime)
	t.EndTime = copyTime(t.EndTime)
	t.SLADueDate = copyTime(t.SLADueDate)
	return t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
