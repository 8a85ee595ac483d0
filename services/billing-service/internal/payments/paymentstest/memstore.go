// Package paymentstest provides an in-memory payments.Store for tests.
package paymentstest

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/billing-service/internal/payments"
)

type Store struct {
	// FailWrites makes every transaction fail before it runs.
	FailWrites bool

	mu       sync.Mutex
	payments map[string]payments.Payment
	sessions map[string]payments.CheckoutSession
	provider map[string]bool
	audits   []payments.AuditEvent
	events   []outbox.Event
}

func New() *Store {
	return &Store{
		payments: map[string]payments.Payment{},
		sessions: map[string]payments.CheckoutSession{},
		provider: map[string]bool{},
	}
}

func (m *Store) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func (m *Store) AuditTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.EventType)
	}
	return out
}

// Events returns the outbox events committed so far.
func (m *Store) Events() []outbox.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Event(nil), m.events...)
}

func (m *Store) Audits() []payments.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payments.AuditEvent(nil), m.audits...)
}

func (m *Store) Payment(id string) payments.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *Store) Put(p payments.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.AppointmentID] = p
}

// InTx applies writes to a copy and swaps it in when fn succeeds.
func (m *Store) InTx(ctx context.Context, fn func(payments.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errors.New("database unavailable")
	}
	tx := &memTx{
		payments: maps.Clone(m.payments),
		sessions: maps.Clone(m.sessions),
		provider: maps.Clone(m.provider),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.payments, m.sessions, m.provider = tx.payments, tx.sessions, tx.provider
	m.audits = append(m.audits, tx.audits...)
	m.events = append(m.events, tx.events...)
	return nil
}

// checkID mirrors Postgres casting a malformed id to a uuid column.
func checkID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid: " + id}
	}
	return nil
}

func (m *Store) GetPayment(_ context.Context, id string) (payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkID(id); err != nil {
		return payments.Payment{}, err
	}
	p, ok := m.payments[id]
	if !ok {
		return payments.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *Store) GetCheckoutSession(_ context.Context, id string) (payments.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return payments.CheckoutSession{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *Store) MarkCaptureRequested(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if ok && p.CaptureRequestedAt == nil {
		p.CaptureRequestedAt = &at
		m.payments[id] = p
	}
	return nil
}

func (m *Store) ListCaptureCandidates(_ context.Context, before time.Time, limit int) ([]payments.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payments.Payment
	for _, p := range m.payments {
		if p.Status == payments.StatusAuthorized && p.CaptureRequestedAt != nil && !p.CaptureRequestedAt.After(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaptureRequestedAt.Before(*out[j].CaptureRequestedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	payments map[string]payments.Payment
	sessions map[string]payments.CheckoutSession
	provider map[string]bool
	audits   []payments.AuditEvent
	events   []outbox.Event
}

func (t *memTx) GetPaymentForUpdate(_ context.Context, id string) (payments.Payment, error) {
	if err := checkID(id); err != nil {
		return payments.Payment{}, err
	}
	p, ok := t.payments[id]
	if !ok {
		return payments.Payment{}, pgx.ErrNoRows
	}
	return p, nil
}

func (t *memTx) UpsertPayment(_ context.Context, p payments.Payment) (bool, error) {
	if cur, ok := t.payments[p.AppointmentID]; ok {
		if cur.Status != payments.StatusCheckoutOpen && cur.Status != payments.StatusExpired {
			return false, nil
		}
		p.CreatedAt = cur.CreatedAt
	}
	p.PaymentIntentID = ""
	t.payments[p.AppointmentID] = p
	return true, nil
}

func (t *memTx) TransitionPayment(_ context.Context, id string, from []payments.Status, to payments.Status, intentID string, at time.Time) (bool, error) {
	p, ok := t.payments[id]
	if !ok || !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = to
	if intentID != "" {
		p.PaymentIntentID = intentID
	}
	switch to {
	case payments.StatusAuthorized:
		p.AuthorizedAt = &at
	case payments.StatusCaptured, payments.StatusPaid:
		p.CapturedAt = &at
	case payments.StatusReleased:
		p.ReleasedAt = &at
	}
	t.payments[id] = p
	return true, nil
}

func (t *memTx) UpsertCheckoutSession(_ context.Context, s payments.CheckoutSession) error {
	if cur, ok := t.sessions[s.StripeSessionID]; ok {
		cur.Status, cur.URL = s.Status, s.URL
		t.sessions[s.StripeSessionID] = cur
		return nil
	}
	t.sessions[s.StripeSessionID] = s
	return nil
}

func (t *memTx) MarkCheckoutSessionCompleted(_ context.Context, id string, at time.Time) error {
	if s, ok := t.sessions[id]; ok {
		s.Status, s.CompletedAt = "completed", &at
		t.sessions[id] = s
	}
	return nil
}

func (t *memTx) MarkCheckoutSessionExpired(_ context.Context, id string, at time.Time) error {
	if s, ok := t.sessions[id]; ok && s.Status != "completed" {
		s.Status, s.ExpiredAt = "expired", &at
		t.sessions[id] = s
	}
	return nil
}

func (t *memTx) AckCheckoutReturn(_ context.Context, id, token, result string, at time.Time) (bool, error) {
	s, ok := t.sessions[id]
	if !ok || s.ReturnToken != token {
		return false, nil
	}
	s.ReturnSeenAt = &at
	if result == "cancel" && s.Status != "completed" {
		s.Status = "canceled"
		if s.CanceledAt == nil {
			s.CanceledAt = &at
		}
	}
	t.sessions[id] = s
	return true, nil
}

func (t *memTx) InsertProviderEvent(_ context.Context, evt payments.ProviderEvent) error {
	key := evt.Provider + "/" + evt.ProviderEventID
	if t.provider[key] {
		return payments.ErrDuplicateProviderEvent
	}
	t.provider[key] = true
	return nil
}

func (t *memTx) InsertAuditEvent(_ context.Context, evt payments.AuditEvent) error {
	t.audits = append(t.audits, evt)
	return nil
}

func (t *memTx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

var _ payments.Store = (*Store)(nil)
