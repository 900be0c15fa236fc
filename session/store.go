package session

import (
	"sync"
	"time"
)

// DefaultTTL applies when a store is constructed with a non-positive TTL.
const DefaultTTL = 30 * time.Minute

// Store is an in-memory keyed store of in-flight submissions.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	records map[int64]*Record

	now func() time.Time
}

// NewStore constructs an empty store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		records: make(map[int64]*Record),
		now:     time.Now,
	}
}

// Begin creates a submission record for the user. It returns
// ErrAlreadyActive if an unexpired record already exists; an expired
// one is evicted first and never blocks a new submission.
func (s *Store) Begin(userID int64, mediaRef, displayName, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictExpiredLocked(userID, now)

	if _, ok := s.records[userID]; ok {
		return ErrAlreadyActive
	}

	s.records[userID] = &Record{
		UserID:      userID,
		MediaRef:    mediaRef,
		DisplayName: displayName,
		Handle:      handle,
		CreatedAt:   now,
	}
	return nil
}

// Complete attaches the description to the user's active record and
// returns a snapshot of it. The record stays in the store; the caller
// removes it with Abandon once the snapshot is handed off.
func (s *Store) Complete(userID int64, description string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked(userID, s.now())

	rec, ok := s.records[userID]
	if !ok {
		return Record{}, ErrNoActiveSession
	}

	rec.Description = description
	return *rec, nil
}

// Abandon removes any record for the user, expired or not.
func (s *Store) Abandon(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
}

// Sweep evicts every record older than the TTL relative to now and
// returns how many were removed. Safe to call repeatedly; a second
// sweep with the same now evicts nothing.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, rec := range s.records {
		if now.Sub(rec.CreatedAt) > s.ttl {
			delete(s.records, userID)
			evicted++
		}
	}
	return evicted
}

// Active reports whether the user has an unexpired record. It does not
// evict; expired records are removed by the mutating calls or by Sweep.
func (s *Store) Active(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	return ok && s.now().Sub(rec.CreatedAt) <= s.ttl
}

// Len reports the current number of records, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// TTL reports the configured record lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) evictExpiredLocked(userID int64, now time.Time) {
	if rec, ok := s.records[userID]; ok && now.Sub(rec.CreatedAt) > s.ttl {
		delete(s.records, userID)
	}
}
