// Package memstore provides an in-memory implementation of alert.Store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"safepulse/internal/alert"
	"safepulse/internal/models"
)

// Store holds alerts in memory. Suitable for dev/testing.
type Store struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]*models.Alert
	active map[string]uuid.UUID // user id -> non-terminal alert id
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		alerts: make(map[uuid.UUID]*models.Alert),
		active: make(map[string]uuid.UUID),
	}
}

// CreateAlert stores a copy of the alert and installs the per-user active
// index entry atomically. A user with an active alert gets ActiveAlertError.
func (s *Store) CreateAlert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.active[a.UserID]; ok {
		return &alert.ActiveAlertError{ID: id}
	}
	cp := clone(a)
	cp.Version = 1
	s.alerts[a.ID] = cp
	if !a.State.Terminal() {
		s.active[a.UserID] = a.ID
	}
	a.Version = cp.Version
	return nil
}

// GetAlert returns a copy of the alert.
func (s *Store) GetAlert(_ context.Context, id uuid.UUID) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	return clone(a), nil
}

// ActiveAlertID returns the user's non-terminal alert id, if any.
func (s *Store) ActiveAlertID(_ context.Context, userID string) (uuid.UUID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[userID]
	return id, ok, nil
}

// UpdateAlert compare-and-swaps on Version, bumping it on success. A terminal
// state drops the alert from the active index.
func (s *Store) UpdateAlert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.alerts[a.ID]
	if !ok {
		return alert.ErrNotFound
	}
	if cur.Version != a.Version {
		return alert.ErrConflict
	}
	cp := clone(a)
	cp.Version = cur.Version + 1
	s.alerts[a.ID] = cp
	if a.State.Terminal() {
		if s.active[a.UserID] == a.ID {
			delete(s.active, a.UserID)
		}
	}
	a.Version = cp.Version
	return nil
}

// ListActiveBefore returns non-terminal alerts created at or before cutoff.
func (s *Store) ListActiveBefore(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for _, id := range s.active {
		if a, ok := s.alerts[id]; ok && !a.CreatedAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func clone(a *models.Alert) *models.Alert {
	cp := *a
	cp.Recipients = make([]models.DispatchRecord, len(a.Recipients))
	copy(cp.Recipients, a.Recipients)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
