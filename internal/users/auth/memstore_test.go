// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/bazaar/internal/platform/apperr"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/internal/users/auth"
)

// memData is one consistent snapshot of every table.
type memData struct {
	users    map[string]auth.User
	sessions map[string]auth.Session
	codes    map[string]auth.VerificationCode
	stores   map[string][]auth.StoreRef
}

func newMemData() *memData {
	return &memData{
		users:    map[string]auth.User{},
		sessions: map[string]auth.Session{},
		codes:    map[string]auth.VerificationCode{},
		stores:   map[string][]auth.StoreRef{},
	}
}

func (d *memData) clone() *memData {
	out := newMemData()
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.sessions {
		out.sessions[k] = v
	}
	for k, v := range d.codes {
		out.codes[k] = v
	}
	for k, v := range d.stores {
		out.stores[k] = append([]auth.StoreRef(nil), v...)
	}
	return out
}

// memRoot is shared by the root store and every transaction opened from it.
type memRoot struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *memData
	fail map[string]error
}

// memStore is an in-memory [auth.Store]. Transactions work on a private
// snapshot that replaces the shared data on commit, so a failed transaction
// leaves no trace.
type memStore struct {
	root *memRoot
	tx   *memData
}

func newMemStore() *memStore {
	return &memStore{root: &memRoot{data: newMemData(), fail: map[string]error{}}}
}

// failOn makes the named operation (e.g. "sessions.DeleteByUser") return err.
func (s *memStore) failOn(op string, err error) {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.fail[op] = err
}

// with runs fn against the snapshot this store sees.
func (s *memStore) with(op string, fn func(d *memData) error) error {
	s.root.mu.Lock()
	failure := s.root.fail[op]
	if s.tx == nil {
		defer s.root.mu.Unlock()
	} else {
		s.root.mu.Unlock()
	}

	if failure != nil {
		return failure
	}
	if s.tx != nil {
		return fn(s.tx)
	}
	return fn(s.root.data)
}

func (s *memStore) Users() auth.UserRepository       { return memUsers{s} }
func (s *memStore) Sessions() auth.SessionRepository { return memSessions{s} }
func (s *memStore) Codes() auth.CodeRepository       { return memCodes{s} }

func (s *memStore) InTx(ctx context.Context, fn func(tx auth.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	s.root.txMu.Lock()
	defer s.root.txMu.Unlock()

	s.root.mu.Lock()
	snapshot := s.root.data.clone()
	s.root.mu.Unlock()

	if err := fn(&memStore{root: s.root, tx: snapshot}); err != nil {
		return err
	}

	s.root.mu.Lock()
	s.root.data = snapshot
	s.root.mu.Unlock()
	return nil
}

// # Test Accessors

func (s *memStore) user(id string) (auth.User, bool) {
	var user auth.User
	var ok bool
	_ = s.with("", func(d *memData) error { user, ok = d.users[id]; return nil })
	return user, ok
}

func (s *memStore) session(id string) (auth.Session, bool) {
	var session auth.Session
	var ok bool
	_ = s.with("", func(d *memData) error { session, ok = d.sessions[id]; return nil })
	return session, ok
}

func (s *memStore) countSessions(userID string) int {
	count := 0
	_ = s.with("", func(d *memData) error {
		for _, session := range d.sessions {
			if session.UserID == userID {
				count++
			}
		}
		return nil
	})
	return count
}

func (s *memStore) codesOf(userID string, codeType auth.CodeType) []auth.VerificationCode {
	var out []auth.VerificationCode
	_ = s.with("", func(d *memData) error {
		for _, code := range d.codes {
			if code.UserID == userID && code.Type == codeType {
				out = append(out, code)
			}
		}
		return nil
	})
	return out
}

func (s *memStore) addStore(userID string, store auth.StoreRef) {
	_ = s.with("", func(d *memData) error {
		d.stores[userID] = append(d.stores[userID], store)
		return nil
	})
}

func (s *memStore) putUser(user auth.User) {
	_ = s.with("", func(d *memData) error { d.users[user.ID] = user; return nil })
}

// # Users

type memUsers struct{ s *memStore }

func (r memUsers) FindByID(ctx context.Context, id string) (*auth.User, error) {
	var out *auth.User
	err := r.s.with("users.FindByID", func(d *memData) error {
		user, ok := d.users[id]
		if !ok {
			return apperr.NotFound("User")
		}
		out = &user
		return nil
	})
	return out, err
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var out *auth.User
	err := r.s.with("users.FindByEmail", func(d *memData) error {
		for _, user := range d.users {
			if strings.EqualFold(user.Email, email) {
				user := user
				out = &user
				return nil
			}
		}
		return apperr.NotFound("User")
	})
	return out, err
}

func (r memUsers) LockByID(ctx context.Context, id string) error {
	return r.s.with("users.LockByID", func(d *memData) error {
		if _, ok := d.users[id]; !ok {
			return apperr.NotFound("User")
		}
		return nil
	})
}

func (r memUsers) Create(ctx context.Context, user *auth.User) error {
	return r.s.with("users.Create", func(d *memData) error {
		for _, existing := range d.users {
			if strings.EqualFold(existing.Email, user.Email) {
				return apperr.Conflict("Email already exists")
			}
		}
		d.users[user.ID] = *user
		return nil
	})
}

func (r memUsers) update(op, id string, mutate func(user *auth.User)) (*auth.User, error) {
	var out *auth.User
	err := r.s.with(op, func(d *memData) error {
		user, ok := d.users[id]
		if !ok {
			return apperr.NotFound("User")
		}
		mutate(&user)
		d.users[id] = user
		out = &user
		return nil
	})
	return out, err
}

func (r memUsers) UpdateName(ctx context.Context, id, name string) (*auth.User, error) {
	return r.update("users.UpdateName", id, func(user *auth.User) { user.Name = name })
}

func (r memUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.update("users.UpdatePassword", id, func(user *auth.User) { user.PasswordHash = &passwordHash })
	return err
}

func (r memUsers) MarkVerified(ctx context.Context, id string) error {
	_, err := r.update("users.MarkVerified", id, func(user *auth.User) { user.Verified = true })
	return err
}

func (r memUsers) ListStores(ctx context.Context, userID string) ([]auth.StoreRef, error) {
	var out []auth.StoreRef
	err := r.s.with("users.ListStores", func(d *memData) error {
		out = append(out, d.stores[userID]...)
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

// # Sessions

type memSessions struct{ s *memStore }

func (r memSessions) Create(ctx context.Context, session *auth.Session) error {
	return r.s.with("sessions.Create", func(d *memData) error {
		d.sessions[session.ID] = *session
		return nil
	})
}

func (r memSessions) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	var out *auth.Session
	err := r.s.with("sessions.FindByID", func(d *memData) error {
		session, ok := d.sessions[id]
		if !ok {
			return apperr.NotFound("Session")
		}
		out = &session
		return nil
	})
	return out, err
}

func (r memSessions) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	return r.s.with("sessions.UpdateExpiry", func(d *memData) error {
		session, ok := d.sessions[id]
		if !ok {
			return apperr.NotFound("Session")
		}
		session.ExpiresAt = expiresAt
		d.sessions[id] = session
		return nil
	})
}

func (r memSessions) Delete(ctx context.Context, id string) error {
	return r.s.with("sessions.Delete", func(d *memData) error {
		delete(d.sessions, id)
		return nil
	})
}

func (r memSessions) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	var removed int64
	err := r.s.with("sessions.DeleteByUser", func(d *memData) error {
		for id, session := range d.sessions {
			if session.UserID == userID {
				delete(d.sessions, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (r memSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.s.with("sessions.DeleteExpired", func(d *memData) error {
		for id, session := range d.sessions {
			if !session.ExpiresAt.After(now) {
				delete(d.sessions, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// # Codes

type memCodes struct{ s *memStore }

func (r memCodes) Create(ctx context.Context, code *auth.VerificationCode) error {
	return r.s.with("codes.Create", func(d *memData) error {
		d.codes[code.ID] = *code
		return nil
	})
}

func (r memCodes) Consume(ctx context.Context, tokenHash string, codeType auth.CodeType, now time.Time) (*auth.VerificationCode, error) {
	var out *auth.VerificationCode
	err := r.s.with("codes.Consume", func(d *memData) error {
		for id, code := range d.codes {
			if sec.EqualTokenHash(code.TokenHash, tokenHash) && code.Type == codeType && code.ExpiresAt.After(now) {
				delete(d.codes, id)
				out = &code
				return nil
			}
		}
		return apperr.NotFound("Verification code")
	})
	return out, err
}

func (r memCodes) DeleteByUser(ctx context.Context, userID string, codeType auth.CodeType) error {
	return r.s.with("codes.DeleteByUser", func(d *memData) error {
		for id, code := range d.codes {
			if code.UserID == userID && code.Type == codeType {
				delete(d.codes, id)
			}
		}
		return nil
	})
}

func (r memCodes) CountSince(ctx context.Context, userID string, codeType auth.CodeType, since time.Time) (int, error) {
	count := 0
	err := r.s.with("codes.CountSince", func(d *memData) error {
		for _, code := range d.codes {
			if code.UserID == userID && code.Type == codeType && code.CreatedAt.After(since) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r memCodes) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := r.s.with("codes.DeleteExpired", func(d *memData) error {
		for id, code := range d.codes {
			if !code.ExpiresAt.After(now) {
				delete(d.codes, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}
