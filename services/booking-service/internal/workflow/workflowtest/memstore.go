// Package workflowtest provides an in-memory workflow.Store for tests.
package workflowtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
)

// Store is an in-memory workflow.Store with snapshot rollback. It records
// the order of deletes so cascade ordering can be asserted.
type Store struct {
	mu sync.Mutex

	seq           int
	appointments  map[string]model.Appointment
	pets          map[string]model.Pet
	proposals     map[string]model.TimeProposal
	reports       map[string]model.ClinicalReport
	notifications map[string]model.Notification
	events        []outbox.Event
	deletes       []string

	// FailEnqueue makes every outbox write fail.
	FailEnqueue bool
}

func New() *Store {
	return &Store{
		appointments:  map[string]model.Appointment{},
		pets:          map[string]model.Pet{},
		proposals:     map[string]model.TimeProposal{},
		reports:       map[string]model.ClinicalReport{},
		notifications: map[string]model.Notification{},
	}
}

// nextID mints uuid-shaped ids that sort in creation order.
func (m *Store) nextID() string {
	m.seq++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", m.seq)
}

// checkID mirrors Postgres casting a malformed id to a uuid column.
func checkID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return &pgconn.PgError{Code: "22P02", Message: fmt.Sprintf("invalid input syntax for type uuid: %q", id)}
	}
	return nil
}

type snapshot struct {
	seq           int
	appointments  map[string]model.Appointment
	pets          map[string]model.Pet
	proposals     map[string]model.TimeProposal
	reports       map[string]model.ClinicalReport
	notifications map[string]model.Notification
	events        []outbox.Event
	deletes       []string
}

func cloneMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Store) snap() snapshot {
	return snapshot{
		seq:           m.seq,
		appointments:  cloneMap(m.appointments),
		pets:          cloneMap(m.pets),
		proposals:     cloneMap(m.proposals),
		reports:       cloneMap(m.reports),
		notifications: cloneMap(m.notifications),
		events:        append([]outbox.Event(nil), m.events...),
		deletes:       append([]string(nil), m.deletes...),
	}
}

func (m *Store) restore(s snapshot) {
	m.seq = s.seq
	m.appointments = s.appointments
	m.pets = s.pets
	m.proposals = s.proposals
	m.reports = s.reports
	m.notifications = s.notifications
	m.events = s.events
	m.deletes = s.deletes
}

func (m *Store) InTx(_ context.Context, fn func(workflow.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.snap()
	if err := fn(memTx{m}); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAppointment(id)
}

func (m *Store) getAppointment(id string) (model.Appointment, error) {
	if err := checkID(id); err != nil {
		return model.Appointment{}, err
	}
	a, ok := m.appointments[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (m *Store) ListAppointments(_ context.Context, q workflow.ListQuery) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appointments {
		if q.OwnerID != "" && a.OwnerID != q.OwnerID {
			continue
		}
		if q.VetID != "" && a.VetID != q.VetID && !(q.IncludeOpen && a.VetID == "" && a.Status.OpenRequest()) {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) ListProposals(_ context.Context, appointmentID string) ([]model.TimeProposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TimeProposal
	for _, p := range m.proposals {
		if p.AppointmentID == appointmentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetClinicalReport(_ context.Context, appointmentID string) (model.ClinicalReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.AppointmentID == appointmentID {
			return r, nil
		}
	}
	return model.ClinicalReport{}, pgx.ErrNoRows
}

func (m *Store) BookedSlots(_ context.Context, vetID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.appointments {
		if a.VetID == vetID && a.Date == date && (a.Status == model.StatusConfirmed || a.Status == model.StatusInProgress) {
			out = append(out, a.TimeSlot)
		}
	}
	return out, nil
}

func (m *Store) CreatePet(_ context.Context, p model.Pet) (model.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID()
	m.pets[p.ID] = p
	return p, nil
}

func (m *Store) ListPets(_ context.Context, ownerID string) ([]model.Pet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Pet
	for _, p := range m.pets {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Store) ListNotifications(_ context.Context, userID string, unreadOnly bool, now time.Time, _ int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.notifications {
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) || !n.ExpiresAt.After(now) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) MarkNotificationRead(_ context.Context, userID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkID(id); err != nil {
		return err
	}
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return pgx.ErrNoRows
	}
	if n.ReadAt == nil {
		n.ReadAt = &at
	}
	m.notifications[id] = n
	return nil
}

func (m *Store) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for id, n := range m.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &at
			m.notifications[id] = n
			count++
		}
	}
	return count, nil
}

// EventTypes returns the enqueued event types in order.
func (m *Store) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

// memTx runs with Store.mu already held by InTx.
type memTx struct{ m *Store }

func (t memTx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	return t.m.getAppointment(id)
}

func (t memTx) UpsertDraft(_ context.Context, ownerID, currency string) (model.Appointment, error) {
	for _, a := range t.m.appointments {
		if a.OwnerID == ownerID && a.Status == model.StatusPending {
			return a, nil
		}
	}
	a := model.Appointment{
		ID:            t.m.nextID(),
		OwnerID:       ownerID,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentUnpaid,
		Currency:      currency,
		Version:       1,
	}
	t.m.appointments[a.ID] = a
	return a, nil
}

func (t memTx) UpdateAppointment(_ context.Context, a *model.Appointment) error {
	cur, ok := t.m.appointments[a.ID]
	if !ok || cur.Version != a.Version {
		return model.ErrVersionConflict
	}
	a.Version++
	t.m.appointments[a.ID] = *a
	return nil
}

func (t memTx) DeleteAppointment(_ context.Context, id string, version int64) error {
	cur, ok := t.m.appointments[id]
	if !ok || cur.Version != version {
		return model.ErrVersionConflict
	}
	for _, p := range t.m.proposals {
		if p.AppointmentID == id {
			return fmt.Errorf("foreign key violation: time_proposals references %s", id)
		}
	}
	for _, n := range t.m.notifications {
		if n.AppointmentID == id {
			return fmt.Errorf("foreign key violation: notifications references %s", id)
		}
	}
	for _, r := range t.m.reports {
		if r.AppointmentID == id {
			return fmt.Errorf("foreign key violation: clinical_reports references %s", id)
		}
	}
	delete(t.m.appointments, id)
	t.m.deletes = append(t.m.deletes, "appointments")
	return nil
}

func (t memTx) GetPet(_ context.Context, id string) (model.Pet, error) {
	if err := checkID(id); err != nil {
		return model.Pet{}, err
	}
	p, ok := t.m.pets[id]
	if !ok {
		return model.Pet{}, pgx.ErrNoRows
	}
	return p, nil
}

func (t memTx) UpsertProposal(_ context.Context, p model.TimeProposal) (model.TimeProposal, error) {
	for id, cur := range t.m.proposals {
		if cur.AppointmentID == p.AppointmentID && cur.VetID == p.VetID {
			if cur.Status != model.ProposalPending {
				return cur, nil
			}
			cur.Date, cur.TimeSlot, cur.Message = p.Date, p.TimeSlot, p.Message
			t.m.proposals[id] = cur
			return cur, nil
		}
	}
	p.ID = t.m.nextID()
	t.m.proposals[p.ID] = p
	return p, nil
}

func (t memTx) GetPendingProposal(_ context.Context, appointmentID, proposalID, vetID string) (model.TimeProposal, error) {
	if proposalID != "" {
		if err := checkID(proposalID); err != nil {
			return model.TimeProposal{}, err
		}
	}
	for _, p := range t.m.proposals {
		if p.AppointmentID != appointmentID || p.Status != model.ProposalPending {
			continue
		}
		if (proposalID != "" && p.ID == proposalID) || (proposalID == "" && p.VetID == vetID) {
			return p, nil
		}
	}
	return model.TimeProposal{}, pgx.ErrNoRows
}

func (t memTx) SetProposalStatus(_ context.Context, id string, status model.ProposalStatus) error {
	p, ok := t.m.proposals[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Status = status
	t.m.proposals[id] = p
	return nil
}

func (t memTx) DeclinePendingProposals(_ context.Context, appointmentID, exceptID string) (int64, error) {
	var n int64
	for id, p := range t.m.proposals {
		if p.AppointmentID == appointmentID && p.ID != exceptID && p.Status == model.ProposalPending {
			p.Status = model.ProposalDeclined
			t.m.proposals[id] = p
			n++
		}
	}
	return n, nil
}

func (t memTx) DeleteProposals(_ context.Context, appointmentID string) error {
	for id, p := range t.m.proposals {
		if p.AppointmentID == appointmentID {
			delete(t.m.proposals, id)
		}
	}
	t.m.deletes = append(t.m.deletes, "time_proposals")
	return nil
}

func (t memTx) InsertClinicalReport(_ context.Context, r model.ClinicalReport) (model.ClinicalReport, error) {
	r.ID = t.m.nextID()
	t.m.reports[r.ID] = r
	return r, nil
}

func (t memTx) DeleteClinicalReports(_ context.Context, appointmentID string) error {
	for id, r := range t.m.reports {
		if r.AppointmentID == appointmentID {
			delete(t.m.reports, id)
		}
	}
	t.m.deletes = append(t.m.deletes, "clinical_reports")
	return nil
}

func (t memTx) InsertNotification(_ context.Context, n model.Notification) (model.Notification, error) {
	n.ID = t.m.nextID()
	t.m.notifications[n.ID] = n
	return n, nil
}

func (t memTx) DeleteNotifications(_ context.Context, appointmentID string) error {
	for id, n := range t.m.notifications {
		if n.AppointmentID == appointmentID {
			delete(t.m.notifications, id)
		}
	}
	t.m.deletes = append(t.m.deletes, "notifications")
	return nil
}

func (t memTx) Enqueue(_ context.Context, evt outbox.Event) error {
	if t.m.FailEnqueue {
		return fmt.Errorf("outbox unavailable")
	}
	t.m.events = append(t.m.events, evt)
	return nil
}

// Events returns a copy of the enqueued outbox events.
func (m *Store) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

// Deletes returns the tables deleted from, in order.
func (m *Store) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// AllNotifications returns every stored notification regardless of owner,
// expiry or read state.
func (m *Store) AllNotifications() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, n)
	}
	return out
}

// PutNotification stores n as is.
func (m *Store) PutNotification(n model.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
}

var _ workflow.Store = (*Store)(nil)
