// Package ledger owns the authoritative seat-count invariants for classes.
//
// It is the only component permitted to mutate a class's seat fields. All
// mutation goes through the Record Store's conditional update: each write
// applies only if seats_remaining is still the value just read, and a lost
// race triggers a fresh read and a bounded retry. Two invariants hold for
// every successful write:
//
//	0 <= seats_remaining <= capacity
//	seats_remaining + total_purchased == capacity
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/metrics"
)

// ErrInvalidQuantity is returned for a non-positive seat count.
var ErrInvalidQuantity = errors.New("seat quantity must be a positive integer")

// ErrInsufficientCapacity is returned when a reserve asks for more seats
// than remain. No mutation is performed.
var ErrInsufficientCapacity = errors.New("insufficient seat capacity")

// ErrConflict is returned when the bounded retry loses every attempt to a
// concurrent writer.
var ErrConflict = errors.New("concurrent seat-count update conflict")

// maxAttempts bounds the optimistic-concurrency retry; after this the
// conflict surfaces to the caller instead of looping.
const maxAttempts = 3

// Store is the slice of the Record Store the ledger needs: a seat-count
// read and a compare-and-swap write.
type Store interface {
	SeatCounts(ctx context.Context, classID string) (remaining, purchased, capacity int, err error)
	CompareAndSwapSeats(ctx context.Context, classID string, expectRemaining, newRemaining, newPurchased int) (bool, error)
}

// Ledger applies seat reservations and releases against a Store.
type Ledger struct {
	store Store
}

// New constructs a Ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Reserve atomically takes seats from a class. It fails with
// ErrInsufficientCapacity (and performs no mutation) when fewer than seats
// remain, and with ErrConflict when concurrent writers exhaust the retry
// budget.
func (l *Ledger) Reserve(ctx context.Context, classID string, seats int) error {
	if seats <= 0 {
		return ErrInvalidQuantity
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		remaining, _, capacity, err := l.store.SeatCounts(ctx, classID)
		if err != nil {
			return fmt.Errorf("read seat counts: %w", err)
		}
		if remaining < seats {
			return ErrInsufficientCapacity
		}

		newRemaining := remaining - seats
		ok, err := l.store.CompareAndSwapSeats(ctx, classID, remaining, newRemaining, capacity-newRemaining)
		if err != nil {
			return fmt.Errorf("reserve seats: %w", err)
		}
		if ok {
			log.WithClassID(classID).Debug().
				Int("seats", seats).Int("remaining", newRemaining).
				Msg("seats reserved")
			return nil
		}

		metrics.SeatCASConflictsTotal.Inc()
	}
	return ErrConflict
}

// Release returns seats to a class on cancellation or refund. It is safe
// to call even when the paired reserve is not perfectly recalled: the
// result is clamped so seats_remaining never exceeds capacity. Idempotency
// of the overall cancellation is enforced one layer up, by the booking
// state machine's terminal guard, not here.
func (l *Ledger) Release(ctx context.Context, classID string, seats int) error {
	if seats <= 0 {
		return ErrInvalidQuantity
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		remaining, _, capacity, err := l.store.SeatCounts(ctx, classID)
		if err != nil {
			return fmt.Errorf("read seat counts: %w", err)
		}

		newRemaining := remaining + seats
		if newRemaining > capacity {
			newRemaining = capacity
		}

		ok, err := l.store.CompareAndSwapSeats(ctx, classID, remaining, newRemaining, capacity-newRemaining)
		if err != nil {
			return fmt.Errorf("release seats: %w", err)
		}
		if ok {
			log.WithClassID(classID).Debug().
				Int("seats", seats).Int("remaining", newRemaining).
				Msg("seats released")
			return nil
		}

		metrics.SeatCASConflictsTotal.Inc()
	}
	return ErrConflict
}

// SeatsRemaining reads the current remaining-seat count for a class. The
// waitlist notifier and the registration submission check share this read.
func (l *Ledger) SeatsRemaining(ctx context.Context, classID string) (int, error) {
	remaining, _, _, err := l.store.SeatCounts(ctx, classID)
	if err != nil {
		return 0, fmt.Errorf("read seat counts: %w", err)
	}
	return remaining, nil
}
