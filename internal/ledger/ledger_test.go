package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classops/registrar/internal/repository"
)

// fakeStore is an in-memory Store with optional injected CAS conflicts.
type fakeStore struct {
	mu        sync.Mutex
	remaining int
	purchased int
	capacity  int
	// conflicts makes the next N CAS calls fail as lost races.
	conflicts int
	casCalls  int
}

func (s *fakeStore) SeatCounts(ctx context.Context, classID string) (int, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if classID == "missing" {
		return 0, 0, 0, repository.ErrNotFound
	}
	return s.remaining, s.purchased, s.capacity, nil
}

func (s *fakeStore) CompareAndSwapSeats(ctx context.Context, classID string, expectRemaining, newRemaining, newPurchased int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casCalls++
	if s.conflicts > 0 {
		s.conflicts--
		return false, nil
	}
	if s.remaining != expectRemaining {
		return false, nil
	}
	s.remaining = newRemaining
	s.purchased = newPurchased
	return true, nil
}

func newFakeStore(capacity int) *fakeStore {
	return &fakeStore{remaining: capacity, capacity: capacity}
}

func (s *fakeStore) invariantsHold(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.GreaterOrEqual(t, s.remaining, 0, "seats_remaining must never go negative")
	assert.LessOrEqual(t, s.remaining, s.capacity, "seats_remaining must never exceed capacity")
	assert.Equal(t, s.capacity, s.remaining+s.purchased, "remaining + purchased must equal capacity")
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	l := New(newFakeStore(10))

	require.ErrorIs(t, l.Reserve(context.Background(), "c1", 0), ErrInvalidQuantity)
	require.ErrorIs(t, l.Reserve(context.Background(), "c1", -3), ErrInvalidQuantity)
	require.ErrorIs(t, l.Release(context.Background(), "c1", 0), ErrInvalidQuantity)
}

func TestReserveDecrementsAndMaintainsInvariants(t *testing.T) {
	store := newFakeStore(10)
	l := New(store)

	require.NoError(t, l.Reserve(context.Background(), "c1", 3))
	assert.Equal(t, 7, store.remaining)
	assert.Equal(t, 3, store.purchased)
	store.invariantsHold(t)
}

func TestReserveInsufficientCapacityMutatesNothing(t *testing.T) {
	store := newFakeStore(2)
	l := New(store)

	err := l.Reserve(context.Background(), "c1", 5)
	require.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, 2, store.remaining, "failed reserve must not mutate")
	assert.Zero(t, store.casCalls, "failed reserve must not even attempt a write")
	store.invariantsHold(t)
}

func TestReserveRetriesOnConflictThenSucceeds(t *testing.T) {
	store := newFakeStore(10)
	store.conflicts = 2
	l := New(store)

	require.NoError(t, l.Reserve(context.Background(), "c1", 4))
	assert.Equal(t, 6, store.remaining)
	assert.Equal(t, 3, store.casCalls)
}

func TestReserveSurfacesConflictAfterBoundedRetries(t *testing.T) {
	store := newFakeStore(10)
	store.conflicts = 100
	l := New(store)

	require.ErrorIs(t, l.Reserve(context.Background(), "c1", 1), ErrConflict)
	assert.Equal(t, maxAttempts, store.casCalls, "retry must be bounded")
	assert.Equal(t, 10, store.remaining)
}

func TestReleaseRestoresSeats(t *testing.T) {
	store := newFakeStore(10)
	l := New(store)

	require.NoError(t, l.Reserve(context.Background(), "c1", 3))
	require.NoError(t, l.Release(context.Background(), "c1", 3))
	assert.Equal(t, 10, store.remaining)
	assert.Equal(t, 0, store.purchased)
	store.invariantsHold(t)
}

func TestReleaseClampsAtCapacity(t *testing.T) {
	store := newFakeStore(10)
	l := New(store)

	// Release without a paired reserve: safe, clamped.
	require.NoError(t, l.Release(context.Background(), "c1", 4))
	assert.Equal(t, 10, store.remaining)
	store.invariantsHold(t)
}

func TestReserveNotFoundPassesThrough(t *testing.T) {
	l := New(newFakeStore(10))
	require.ErrorIs(t, l.Reserve(context.Background(), "missing", 1), repository.ErrNotFound)
}

func TestSequencesNeverBreakInvariants(t *testing.T) {
	store := newFakeStore(5)
	l := New(store)
	ctx := context.Background()

	ops := []struct {
		reserve bool
		seats   int
	}{
		{true, 2}, {true, 2}, {true, 2}, // third exceeds capacity
		{false, 2}, {true, 3}, {false, 2}, {false, 3}, {false, 1}, // extra release clamps
	}
	for _, op := range ops {
		if op.reserve {
			_ = l.Reserve(ctx, "c1", op.seats)
		} else {
			_ = l.Release(ctx, "c1", op.seats)
		}
		store.invariantsHold(t)
	}
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	store := newFakeStore(10)
	l := New(store)

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve(context.Background(), "c1", 1); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	wins := 0
	for range succeeded {
		wins++
	}
	assert.LessOrEqual(t, wins, 10, "capacity must never be oversold")
	assert.Equal(t, 10-wins, store.remaining)
	store.invariantsHold(t)
}

func TestSeatsRemaining(t *testing.T) {
	store := newFakeStore(8)
	l := New(store)

	n, err := l.SeatsRemaining(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}
