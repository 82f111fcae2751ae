package appointment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/directory"
	"github.com/hackgods/clinic-appointment-scheduling/internal/events"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
	"github.com/hackgods/clinic-appointment-scheduling/internal/schedule"
)

// memRepo is an in-memory Repository. Transactions run concurrently: each
// buffers its writes until commit and holds provider row locks until it ends,
// the way the Postgres repository behaves under READ COMMITTED.
type memRepo struct {
	mu     sync.Mutex
	avail  map[uuid.UUID]schedule.Availability
	appts  map[uuid.UUID]Appointment
	events []events.Event
	rows   map[uuid.UUID]*sync.Mutex
	locked []uuid.UUID

	// onTxCount runs after a count inside a transaction, before the result is
	// returned. Tests use it to line up concurrent transactions.
	onTxCount func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		avail: map[uuid.UUID]schedule.Availability{},
		appts: map[uuid.UUID]Appointment{},
		rows:  map[uuid.UUID]*sync.Mutex{},
	}
}

func (m *memRepo) WithinTx(_ context.Context, fn func(tx Repository) error) error {
	tx := &memTx{repo: m, writes: map[uuid.UUID]Appointment{}, held: map[uuid.UUID]*sync.Mutex{}}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range tx.writes {
		m.appts[id] = a
	}
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *memRepo) rowLock(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked = append(m.locked, id)
	row, ok := m.rows[id]
	if !ok {
		row = &sync.Mutex{}
		m.rows[id] = row
	}
	return row
}

func (m *memRepo) lockedRows() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.locked...)
}

func (m *memRepo) snapshot() map[uuid.UUID]Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]Appointment, len(m.appts))
	for k, v := range m.appts {
		out[k] = v
	}
	return out
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) ListByProvider(_ context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.list(func(a Appointment) bool { return a.ProviderID == providerID }, limit, offset), nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.list(func(a Appointment) bool { return a.PatientID == patientID }, limit, offset), nil
}

func (m *memRepo) list(keep func(Appointment) bool, limit, offset int) []Appointment {
	out := []Appointment{}
	for _, a := range m.snapshot() {
		if keep(a) {
			out = append(out, a)
		}
	}
	if offset >= len(out) {
		return []Appointment{}
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memRepo) LoadAvailability(_ context.Context, providerID uuid.UUID) (schedule.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.avail[providerID], nil
}

// LockProvider outside a transaction is released as soon as it is taken.
func (m *memRepo) LockProvider(_ context.Context, providerID uuid.UUID) error {
	row := m.rowLock(providerID)
	row.Lock()
	row.Unlock()
	return nil
}

func (m *memRepo) CountActiveInWindow(_ context.Context, providerID uuid.UUID, from, until time.Time, exclude uuid.UUID) (int, error) {
	return countActive(m.snapshot(), providerID, from, until, exclude), nil
}

func (m *memRepo) InsertAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = *a
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := withStatus(m.appts, id, from, to)
	if err != nil {
		return nil, err
	}
	m.appts[id] = *a
	return a, nil
}

func (m *memRepo) Reschedule(_ context.Context, id uuid.UUID, from Status, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := moved(m.appts, id, from, at)
	if err != nil {
		return nil, err
	}
	m.appts[id] = *a
	return a, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// memTx is one transaction of a memRepo.
type memTx struct {
	repo   *memRepo
	writes map[uuid.UUID]Appointment
	events []events.Event
	held   map[uuid.UUID]*sync.Mutex
}

func (t *memTx) release() {
	for _, row := range t.held {
		row.Unlock()
	}
}

// view is what a statement in the transaction sees: committed rows plus the
// transaction's own writes.
func (t *memTx) view() map[uuid.UUID]Appointment {
	out := t.repo.snapshot()
	for k, v := range t.writes {
		out[k] = v
	}
	return out
}

func (t *memTx) WithinTx(_ context.Context, fn func(tx Repository) error) error {
	return fn(t)
}

func (t *memTx) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.view()[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return t.repo.ListByProvider(ctx, providerID, limit, offset)
}

func (t *memTx) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return t.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (t *memTx) LoadAvailability(ctx context.Context, providerID uuid.UUID) (schedule.Availability, error) {
	return t.repo.LoadAvailability(ctx, providerID)
}

func (t *memTx) LockProvider(_ context.Context, providerID uuid.UUID) error {
	if _, ok := t.held[providerID]; ok {
		return nil
	}
	row := t.repo.rowLock(providerID)
	row.Lock()
	t.held[providerID] = row
	return nil
}

func (t *memTx) CountActiveInWindow(_ context.Context, providerID uuid.UUID, from, until time.Time, exclude uuid.UUID) (int, error) {
	n := countActive(t.view(), providerID, from, until, exclude)
	if t.repo.onTxCount != nil {
		t.repo.onTxCount()
	}
	return n, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *Appointment) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	t.writes[a.ID] = *a
	return nil
}

func (t *memTx) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, err := withStatus(t.view(), id, from, to)
	if err != nil {
		return nil, err
	}
	t.writes[id] = *a
	return a, nil
}

func (t *memTx) Reschedule(_ context.Context, id uuid.UUID, from Status, at time.Time) (*Appointment, error) {
	a, err := moved(t.view(), id, from, at)
	if err != nil {
		return nil, err
	}
	t.writes[id] = *a
	return a, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev events.Event) error {
	t.events = append(t.events, ev)
	return nil
}

func countActive(appts map[uuid.UUID]Appointment, providerID uuid.UUID, from, until time.Time, exclude uuid.UUID) int {
	n := 0
	for _, a := range appts {
		if a.ProviderID != providerID || a.ID == exclude || a.Status == StatusCanceled {
			continue
		}
		if !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(until) {
			n++
		}
	}
	return n
}

func withStatus(appts map[uuid.UUID]Appointment, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, ok := appts[id]
	if !ok || a.Status != from {
		return nil, ErrStatusChanged
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return &a, nil
}

func moved(appts map[uuid.UUID]Appointment, id uuid.UUID, from Status, at time.Time) (*Appointment, error) {
	a, ok := appts[id]
	if !ok || a.Status != from {
		return nil, ErrStatusChanged
	}
	a.Status = StatusRescheduled
	a.ScheduledAt = at
	a.UpdatedAt = time.Now()
	return &a, nil
}

func (m *memRepo) eventTypes() []events.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Type, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

// setStatus forces a status, as external billing would for PAID.
func (m *memRepo) setStatus(id uuid.UUID, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.appts[id]
	a.Status = st
	m.appts[id] = a
}

type stubDirectory struct {
	mu        sync.Mutex
	providers map[uuid.UUID]directory.Provider
	patients  map[uuid.UUID]directory.Patient
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		providers: map[uuid.UUID]directory.Provider{},
		patients:  map[uuid.UUID]directory.Patient{},
	}
}

func (d *stubDirectory) addProvider(pricing int64) (directory.Provider, auth.Actor) {
	p := directory.Provider{ID: uuid.New(), UserID: uuid.New(), Name: "Dr. Ada", PricingCents: pricing}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.ID] = p
	return p, auth.Actor{UserID: p.UserID, Role: auth.RoleDoctor}
}

func (d *stubDirectory) addPatient() (directory.Patient, auth.Actor) {
	p := directory.Patient{ID: uuid.New(), UserID: uuid.New(), Name: "Pat"}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.ID] = p
	return p, auth.Actor{UserID: p.UserID, Role: auth.RolePatient}
}

func (d *stubDirectory) GetProviderByID(_ context.Context, id uuid.UUID) (*directory.Provider, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.providers[id]
	if !ok {
		return nil, directory.ErrProviderNotFound
	}
	return &p, nil
}

func (d *stubDirectory) GetPatientByID(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, directory.ErrPatientNotFound
	}
	return &p, nil
}

type passLocker struct{}

func (passLocker) WithProviderLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithProviderLock(context.Context, uuid.UUID, time.Time, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// downLocker fails the way the Redis locker does when the server is gone.
type downLocker struct{}

func (downLocker) WithProviderLock(context.Context, uuid.UUID, time.Time, func(ctx context.Context) error) error {
	return fmt.Errorf("%w: dial tcp: connection refused", redisclient.ErrLockUnavailable)
}

// mondaySchedule gives provider a single Monday window.
func mondaySchedule(providerID uuid.UUID, start, end string, capacity int) schedule.Availability {
	slot := schedule.TimeSlot{
		ID:         uuid.New(),
		ProviderID: providerID,
		Start:      schedule.MustClock(start),
		End:        schedule.MustClock(end),
		Capacity:   capacity,
	}
	return schedule.Availability{
		ProviderID: providerID,
		Entries: []schedule.Entry{{
			ID:         uuid.New(),
			ProviderID: providerID,
			Day:        schedule.Monday,
			Slots:      []schedule.TimeSlot{slot},
		}},
	}
}
