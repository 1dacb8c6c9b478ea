// Package payments consumes payment-processor events and maps them to
// booking state-machine transitions, and carries the outbound refund call.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/classops/registrar/internal/booking"
	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/metrics"
	"github.com/classops/registrar/internal/model"
	"github.com/classops/registrar/internal/repository"
)

// EventType discriminates inbound payment events.
type EventType string

const (
	EventConfirmation EventType = "payment.confirmed"
	EventRefund       EventType = "payment.refunded"
)

// Event is an inbound payment event. ReferenceID is the booking id the
// payment was created against (the client reference passed to the
// processor at checkout); IntentID is the processor's payment-intent id.
type Event struct {
	Type        EventType `json:"type"`
	ReferenceID string    `json:"reference_id"`
	IntentID    string    `json:"payment_intent_id"`
	AmountCents int64     `json:"amount_cents"`
}

// Outcome reports how an event was handled. Ignored outcomes carry the
// reason; they are expected under webhook redelivery and are not errors.
type Outcome struct {
	Applied bool
	Reason  string
}

func applied() Outcome         { return Outcome{Applied: true} }
func ignored(r string) Outcome { return Outcome{Reason: r} }

// BookingReader looks up the booking an event references.
type BookingReader interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
}

// Processor handles payment events idempotently. Events may be redelivered
// and may arrive out of order per booking; the sole idempotency guard is
// the booking's current status, checked before any transition runs.
type Processor struct {
	bookings BookingReader
	machine  *booking.Machine

	// locks serializes events per booking: arrival order within one
	// booking is honored, with no cross-booking ordering.
	locks sync.Map // reference id -> *sync.Mutex
}

// NewProcessor constructs a Processor.
func NewProcessor(bookings BookingReader, machine *booking.Machine) *Processor {
	return &Processor{bookings: bookings, machine: machine}
}

func (p *Processor) lockFor(referenceID string) *sync.Mutex {
	mu, _ := p.locks.LoadOrStore(referenceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// HandleEvent routes an event by type. Events sharing a reference id run
// one at a time so the status check and the transition it guards cannot
// interleave between two deliveries of the same event.
func (p *Processor) HandleEvent(ctx context.Context, ev Event) (Outcome, error) {
	mu := p.lockFor(ev.ReferenceID)
	mu.Lock()
	defer mu.Unlock()
	switch ev.Type {
	case EventConfirmation:
		return p.handleConfirmation(ctx, ev)
	case EventRefund:
		return p.handleRefund(ctx, ev)
	default:
		metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "ignored").Inc()
		return ignored("unknown-event-type"), nil
	}
}

// handleConfirmation applies a confirmed payment to its booking. A booking
// already Paid or terminal means the event was processed before; it is
// ignored rather than re-running side effects.
func (p *Processor) handleConfirmation(ctx context.Context, ev Event) (Outcome, error) {
	logger := log.WithComponent("payments")

	b, err := p.bookings.GetByID(ctx, ev.ReferenceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info().Str("reference_id", ev.ReferenceID).Msg("confirmation for unknown booking, ignored")
			metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "ignored").Inc()
			return ignored("unknown-booking"), nil
		}
		return Outcome{}, fmt.Errorf("look up booking %s: %w", ev.ReferenceID, err)
	}

	if b.Status == model.BookingPaid || b.Status.IsTerminal() {
		logger.Info().Str("booking_id", b.ID).Str("status", string(b.Status)).
			Msg("confirmation redelivered for processed booking, ignored")
		metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "ignored").Inc()
		return ignored("already-processed"), nil
	}
	if b.Status == model.BookingROIIFree {
		logger.Warn().Str("booking_id", b.ID).Msg("confirmation for comped booking, ignored")
		metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "ignored").Inc()
		return ignored("comped-booking"), nil
	}

	if err := p.machine.ConfirmPayment(ctx, b.ID, ev.IntentID, ev.AmountCents); err != nil {
		switch {
		case errors.Is(err, booking.ErrAlreadyTerminal):
			// Lost a race with another delivery of the same event.
			metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "ignored").Inc()
			return ignored("already-processed"), nil
		case errors.Is(err, booking.ErrCapacityExceeded):
			// Never oversold: the event is not retried, the booking stays
			// Pending and is already flagged for the operator.
			metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "capacity_exceeded").Inc()
			return Outcome{}, err
		}
		metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "error").Inc()
		return Outcome{}, err
	}

	metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "applied").Inc()
	return applied(), nil
}

// handleRefund records a refund the processor already settled. The
// terminal guard makes redelivery a no-op.
func (p *Processor) handleRefund(ctx context.Context, ev Event) (Outcome, error) {
	logger := log.WithComponent("payments")

	b, err := p.bookings.GetByID(ctx, ev.ReferenceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info().Str("reference_id", ev.ReferenceID).Msg("refund for unknown booking, ignored")
			metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "ignored").Inc()
			return ignored("unknown-booking"), nil
		}
		return Outcome{}, fmt.Errorf("look up booking %s: %w", ev.ReferenceID, err)
	}

	if err := p.machine.Cancel(ctx, b.ID, booking.CancelRecordRefund); err != nil {
		if errors.Is(err, booking.ErrAlreadyTerminal) {
			metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "ignored").Inc()
			return ignored("already-processed"), nil
		}
		metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "error").Inc()
		return Outcome{}, err
	}

	metrics.PaymentEventsTotal.WithLabelValues(string(ev.Type), "applied").Inc()
	return applied(), nil
}
