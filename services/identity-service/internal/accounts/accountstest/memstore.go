// Package accountstest provides an in-memory accounts.Store for tests.
package accountstest

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/vetcall/libs/outbox"
	"github.com/md-rashed-zaman/vetcall/services/identity-service/internal/accounts"
)

type Store struct {
	FailWrites bool

	mu       sync.Mutex
	users    map[string]accounts.User
	tokens   map[string]accounts.RefreshToken
	waitlist map[string]accounts.WaitlistEntry
	audits   []accounts.AuditEvent
	events   []outbox.Event
}

func New() *Store {
	return &Store{
		users:    map[string]accounts.User{},
		tokens:   map[string]accounts.RefreshToken{},
		waitlist: map[string]accounts.WaitlistEntry{},
	}
}

func (m *Store) PutUser(u accounts.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Store) User(id string) accounts.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *Store) Entry(id string) accounts.WaitlistEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitlist[id]
}

// LiveTokens counts the unrevoked refresh tokens of a user.
func (m *Store) LiveTokens(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			n++
		}
	}
	return n
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

func (m *Store) InTx(_ context.Context, fn func(accounts.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errors.New("database unavailable")
	}
	tx := &memTx{
		users:    maps.Clone(m.users),
		tokens:   maps.Clone(m.tokens),
		waitlist: maps.Clone(m.waitlist),
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.users, m.tokens, m.waitlist = tx.users, tx.tokens, tx.waitlist
	for i := range tx.audits {
		tx.audits[i].ID = int64(len(m.audits) + 1)
		m.audits = append(m.audits, tx.audits[i])
	}
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *Store) GetUserByID(_ context.Context, id string) (accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return accounts.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *Store) GetUserByEmail(_ context.Context, email string) (accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return userByEmail(m.users, email)
}

func userByEmail(users map[string]accounts.User, email string) (accounts.User, error) {
	for _, u := range users {
		if u.Email == email {
			return u, nil
		}
	}
	return accounts.User{}, pgx.ErrNoRows
}

func (m *Store) ListUsers(_ context.Context, q accounts.UserQuery) ([]accounts.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []accounts.User
	for _, u := range m.users {
		if q.Role != "" && u.Role != q.Role {
			continue
		}
		if q.Email != "" && u.Email != q.Email {
			continue
		}
		if q.Disabled != nil && u.Disabled != *q.Disabled {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Store) ListWaitlist(_ context.Context, status accounts.WaitlistStatus, limit int) ([]accounts.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []accounts.WaitlistEntry
	for _, e := range m.waitlist {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) ListAudit(_ context.Context, limit int) ([]accounts.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]accounts.AuditEvent, 0, limit)
	for i := len(m.audits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audits[i])
	}
	return out, nil
}

type memTx struct {
	users    map[string]accounts.User
	tokens   map[string]accounts.RefreshToken
	waitlist map[string]accounts.WaitlistEntry
	audits   []accounts.AuditEvent
	events   []outbox.Event
}

func (t *memTx) CreateUser(_ context.Context, u accounts.User) error {
	if _, err := userByEmail(t.users, u.Email); err == nil {
		return accounts.ErrEmailTaken
	}
	t.users[u.ID] = u
	return nil
}

func (t *memTx) GetUserByEmail(_ context.Context, email string) (accounts.User, error) {
	return userByEmail(t.users, email)
}

// checkID mirrors Postgres casting a malformed id to a uuid column.
func checkID(id string) error {
	if err := uuid.Validate(id); err != nil {
		return &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid: " + id}
	}
	return nil
}

func (t *memTx) GetUserForUpdate(_ context.Context, id string) (accounts.User, error) {
	if err := checkID(id); err != nil {
		return accounts.User{}, err
	}
	u, ok := t.users[id]
	if !ok {
		return accounts.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (t *memTx) UpdateUser(_ context.Context, u accounts.User) error {
	if _, ok := t.users[u.ID]; !ok {
		return pgx.ErrNoRows
	}
	t.users[u.ID] = u
	return nil
}

func (t *memTx) CreateRefreshToken(_ context.Context, rt accounts.RefreshToken) error {
	t.tokens[rt.Hash] = rt
	return nil
}

func (t *memTx) GetRefreshTokenForUpdate(_ context.Context, hash string) (accounts.RefreshToken, error) {
	rt, ok := t.tokens[hash]
	if !ok {
		return accounts.RefreshToken{}, pgx.ErrNoRows
	}
	return rt, nil
}

func (t *memTx) RevokeRefreshToken(_ context.Context, id string) error {
	for hash, rt := range t.tokens {
		if rt.ID == id && rt.RevokedAt == nil {
			now := rt.CreatedAt
			rt.RevokedAt = &now
			t.tokens[hash] = rt
		}
	}
	return nil
}

func (t *memTx) RevokeUserRefreshTokens(_ context.Context, userID string) (int64, error) {
	var n int64
	for hash, rt := range t.tokens {
		if rt.UserID == userID && rt.RevokedAt == nil {
			now := rt.CreatedAt
			rt.RevokedAt = &now
			t.tokens[hash] = rt
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertWaitlistEntry(_ context.Context, e accounts.WaitlistEntry) error {
	for _, cur := range t.waitlist {
		if cur.Email == e.Email {
			return accounts.ErrEmailTaken
		}
	}
	t.waitlist[e.ID] = e
	return nil
}

func (t *memTx) GetWaitlistEntryForUpdate(_ context.Context, id string) (accounts.WaitlistEntry, error) {
	if err := checkID(id); err != nil {
		return accounts.WaitlistEntry{}, err
	}
	e, ok := t.waitlist[id]
	if !ok {
		return accounts.WaitlistEntry{}, pgx.ErrNoRows
	}
	return e, nil
}

func (t *memTx) GetApprovedWaitlistEntry(_ context.Context, email string) (accounts.WaitlistEntry, error) {
	for _, e := range t.waitlist {
		if e.Email == email && e.Status == accounts.WaitlistApproved && e.UserID == "" {
			return e, nil
		}
	}
	return accounts.WaitlistEntry{}, pgx.ErrNoRows
}

func (t *memTx) UpdateWaitlistEntry(_ context.Context, e accounts.WaitlistEntry) error {
	if _, ok := t.waitlist[e.ID]; !ok {
		return pgx.ErrNoRows
	}
	t.waitlist[e.ID] = e
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, e accounts.AuditEvent) error {
	t.audits = append(t.audits, e)
	return nil
}

func (t *memTx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

var _ accounts.Store = (*Store)(nil)
