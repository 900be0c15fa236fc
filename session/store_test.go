package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(ttl time.Duration, at time.Time) (*Store, *time.Time) {
	s := NewStore(ttl)
	current := at
	s.now = func() time.Time { return current }
	return s, &current
}

func TestBeginCreatesRecord(t *testing.T) {
	s, _ := newTestStore(30*time.Minute, time.Unix(1000, 0))

	require.NoError(t, s.Begin(1, "file-abc", "Ann", "ann99"))
	assert.Equal(t, 1, s.Len())

	rec, err := s.Complete(1, "fridge won't cool")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.UserID)
	assert.Equal(t, "file-abc", rec.MediaRef)
	assert.Equal(t, "Ann", rec.DisplayName)
	assert.Equal(t, "ann99", rec.Handle)
	assert.Equal(t, "fridge won't cool", rec.Description)
}

func TestBeginRejectsSecondSubmission(t *testing.T) {
	s, _ := newTestStore(30*time.Minute, time.Unix(1000, 0))

	require.NoError(t, s.Begin(2, "file-1", "Bob", "bob"))
	err := s.Begin(2, "file-2", "Bob", "bob")
	assert.ErrorIs(t, err, ErrAlreadyActive)

	// The original record is untouched.
	rec, err := s.Complete(2, "desc")
	require.NoError(t, err)
	assert.Equal(t, "file-1", rec.MediaRef)
}

func TestCompleteWithoutBegin(t *testing.T) {
	s, _ := newTestStore(30*time.Minute, time.Unix(1000, 0))

	_, err := s.Complete(3, "orphan text")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestCompleteAfterTTL(t *testing.T) {
	s, now := newTestStore(30*time.Minute, time.Unix(0, 0))

	require.NoError(t, s.Begin(3, "file-x", "Cid", "cid"))

	*now = now.Add(31 * time.Minute)
	_, err := s.Complete(3, "too late")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Equal(t, 0, s.Len())
}

func TestBeginEvictsExpiredRecord(t *testing.T) {
	s, now := newTestStore(30*time.Minute, time.Unix(0, 0))

	require.NoError(t, s.Begin(4, "old-file", "Dee", "dee"))

	*now = now.Add(31 * time.Minute)
	require.NoError(t, s.Begin(4, "new-file", "Dee", "dee"))

	rec, err := s.Complete(4, "desc")
	require.NoError(t, err)
	assert.Equal(t, "new-file", rec.MediaRef)
}

func TestAbandon(t *testing.T) {
	s, _ := newTestStore(30*time.Minute, time.Unix(1000, 0))

	require.NoError(t, s.Begin(5, "file", "Eve", "eve"))
	s.Abandon(5)
	assert.Equal(t, 0, s.Len())

	_, err := s.Complete(5, "desc")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// Abandoning an absent user is a no-op.
	s.Abandon(5)
}

func TestSweepIsIdempotent(t *testing.T) {
	s, now := newTestStore(10*time.Minute, time.Unix(0, 0))

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, s.Begin(i, "file", "User", "user"))
	}
	*now = now.Add(5 * time.Minute)
	require.NoError(t, s.Begin(6, "file", "Late", "late"))

	deadline := now.Add(6 * time.Minute)
	assert.Equal(t, 5, s.Sweep(deadline))
	assert.Equal(t, 0, s.Sweep(deadline))
	assert.Equal(t, 1, s.Len())
}

func TestCompleteReturnsSnapshot(t *testing.T) {
	s, _ := newTestStore(30*time.Minute, time.Unix(1000, 0))

	require.NoError(t, s.Begin(7, "file", "Fay", "fay"))
	rec, err := s.Complete(7, "first")
	require.NoError(t, err)

	s.Abandon(7)
	assert.Equal(t, "first", rec.Description)
	assert.Equal(t, "file", rec.MediaRef)
}

func TestConcurrentDistinctUsers(t *testing.T) {
	s := NewStore(30 * time.Minute)

	const users = 64
	var wg sync.WaitGroup
	errs := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := int64(i + 1)
			if err := s.Begin(userID, fmt.Sprintf("file-%d", i), "User", "user"); err != nil {
				errs[i] = err
				return
			}
			if _, err := s.Complete(userID, "desc"); err != nil {
				errs[i] = err
				return
			}
			s.Abandon(userID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "user %d", i+1)
	}
	assert.Equal(t, 0, s.Len())
}

func TestConcurrentSameUser(t *testing.T) {
	s := NewStore(30 * time.Minute)

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Begin(42, "file", "User", "user"); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, s.Len())
}

func TestActive(t *testing.T) {
	s, now := newTestStore(30*time.Minute, time.Unix(0, 0))

	assert.False(t, s.Active(8))
	require.NoError(t, s.Begin(8, "file", "Gil", "gil"))
	assert.True(t, s.Active(8))

	*now = now.Add(31 * time.Minute)
	assert.False(t, s.Active(8))
}

func TestDefaultTTL(t *testing.T) {
	s := NewStore(0)
	assert.Equal(t, DefaultTTL, s.TTL())
}
