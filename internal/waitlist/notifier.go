// Package waitlist scans for waitlist entries whose class regained
// capacity and notifies them.
package waitlist

import (
	"context"
	"fmt"

	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/metrics"
	"github.com/classops/registrar/internal/model"
	"github.com/classops/registrar/internal/notify"
)

// Store is the slice of the Record Store the notifier needs.
type Store interface {
	ListPending(ctx context.Context) ([]model.WaitlistEntry, error)
	MarkNotified(ctx context.Context, id string) error
}

// CapacityReader reads a class's remaining seats. The seat ledger
// satisfies this; the notifier shares its capacity-read contract with the
// rest of the system.
type CapacityReader interface {
	SeatsRemaining(ctx context.Context, classID string) (int, error)
}

// Notifier runs the periodic waitlist cycle.
type Notifier struct {
	store  Store
	seats  CapacityReader
	sender notify.Sender
}

// NewNotifier constructs a Notifier.
func NewNotifier(store Store, seats CapacityReader, sender notify.Sender) *Notifier {
	return &Notifier{store: store, seats: seats, sender: sender}
}

// RunCycle notifies every Yet-to-Notify entry whose class currently has
// seats remaining. The capacity read is cached per cycle per class so
// entries sharing a class cost one read. The Notified transition is
// one-way and not retried within the cycle: a failed send leaves the
// entry pending for the next cycle, accepting at-least-once delivery.
func (n *Notifier) RunCycle(ctx context.Context) error {
	entries, err := n.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending waitlist entries: %w", err)
	}

	logger := log.WithComponent("waitlist")
	seatsCache := make(map[string]int)
	notified := 0

	for _, entry := range entries {
		remaining, ok := seatsCache[entry.ClassID]
		if !ok {
			remaining, err = n.seats.SeatsRemaining(ctx, entry.ClassID)
			if err != nil {
				logger.Error().Err(err).Str("class_id", entry.ClassID).Msg("capacity read failed, skipping class this cycle")
				seatsCache[entry.ClassID] = 0
				continue
			}
			seatsCache[entry.ClassID] = remaining
		}
		if remaining <= 0 {
			continue
		}

		msg := notify.Message{
			To:       entry.Email,
			Template: "waitlist-seat-available",
			ClassID:  entry.ClassID,
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			metrics.WaitlistNotificationsTotal.WithLabelValues("send_failed").Inc()
			logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("notification send failed, entry stays pending")
			continue
		}

		if err := n.store.MarkNotified(ctx, entry.ID); err != nil {
			// The send went out; a duplicate on the next cycle is accepted.
			metrics.WaitlistNotificationsTotal.WithLabelValues("mark_failed").Inc()
			logger.Error().Err(err).Str("entry_id", entry.ID).Msg("could not mark entry notified, duplicate send possible")
			continue
		}

		metrics.WaitlistNotificationsTotal.WithLabelValues("sent").Inc()
		notified++
	}

	logger.Info().Int("pending", len(entries)).Int("notified", notified).Msg("waitlist cycle complete")
	return nil
}
