// Package booking drives the per-booking payment-status lifecycle and the
// side effects each transition requires.
//
// States:
//
//	Pending  -> Paid | (ROIIFree only at creation)
//	Paid     -> Refunded | CancelledNoRefund
//	ROIIFree -> ROIICancelled
//
// Refunded, CancelledNoRefund and ROIICancelled are terminal; any further
// transition attempt is rejected with ErrAlreadyTerminal and leaves the
// booking untouched, which makes re-delivered cancellation requests safe.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/classops/registrar/internal/ledger"
	"github.com/classops/registrar/internal/log"
	"github.com/classops/registrar/internal/metrics"
	"github.com/classops/registrar/internal/model"
	"github.com/classops/registrar/internal/repository"
)

// ErrAlreadyTerminal is returned when a transition is requested from a
// terminal state. The booking is left unchanged.
var ErrAlreadyTerminal = errors.New("booking is in a terminal state")

// ErrCapacityExceeded is returned when a confirmed payment asks for more
// seats than the class has remaining. The booking stays Pending, flagged
// for manual resolution; it is never partially applied.
var ErrCapacityExceeded = errors.New("confirmed payment exceeds remaining capacity")

// ErrInvalidTransition is returned for transitions the lifecycle does not
// define, such as cancelling a booking that was never confirmed.
var ErrInvalidTransition = errors.New("transition not allowed from current status")

// CancelIntent is the caller-supplied refund intent for a cancellation.
// Nothing is inferred from the booking's current status.
type CancelIntent string

const (
	// CancelRefund requests a refund from the payment processor and
	// transitions Paid -> Refunded.
	CancelRefund CancelIntent = "refund"
	// CancelRecordRefund records a refund the processor already settled
	// (refund webhook path); Paid -> Refunded without an outbound call.
	CancelRecordRefund CancelIntent = "record_refund"
	// CancelNoRefund is the manual no-refund path, Paid -> CancelledNoRefund.
	CancelNoRefund CancelIntent = "no_refund"
)

// Store is the slice of the Record Store the state machine needs. MarkPaid
// and MarkCancelled are conditional on the status the machine read and
// return repository.ErrStaleStatus when a concurrent writer got there
// first.
type Store interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	MarkPaid(ctx context.Context, id, intentID string, amountCents int64) error
	MarkCancelled(ctx context.Context, id string, status, from model.BookingStatus) error
	FlagForReview(ctx context.Context, id string) error
	UpdateParticipantStatus(ctx context.Context, bookingID string, status model.BookingStatus) error
	ListByBatch(ctx context.Context, batchID string) ([]model.Booking, error)
}

// Refunder requests a refund from the payment processor for a captured
// payment intent.
type Refunder interface {
	RequestRefund(ctx context.Context, paymentIntentID string, amountCents int64) error
}

// Machine executes booking state transitions and their side effects.
// Transitions for the same booking are serialized in-process so the
// status read and its side effects (refund call, seat release) cannot
// interleave; the conditional store updates back this up across
// processes.
type Machine struct {
	store   Store
	seats   *ledger.Ledger
	refunds Refunder
	locks   sync.Map // booking id -> *sync.Mutex
}

// NewMachine constructs a Machine.
func NewMachine(store Store, seats *ledger.Ledger, refunds Refunder) *Machine {
	return &Machine{store: store, seats: seats, refunds: refunds}
}

func (m *Machine) lockFor(bookingID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(bookingID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ConfirmPayment applies Pending -> Paid for a confirmed payment event.
//
// Ordering: the seat-ledger reserve runs before the booking row moves, so
// a capacity refusal leaves the booking Pending and nothing partially
// applied. The participant/batch fan-out runs last; a fan-out failure
// never rolls back the ledger mutation, it is retried once per item and
// then logged for operator follow-up.
func (m *Machine) ConfirmPayment(ctx context.Context, bookingID, paymentIntentID string, amountCents int64) error {
	mu := m.lockFor(bookingID)
	mu.Lock()
	defer mu.Unlock()

	b, err := m.store.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if b.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if b.Status != model.BookingPending {
		return fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, b.Status)
	}

	logger := log.WithBookingID(b.ID)

	// Reserve before anything becomes visible: a booking must never show
	// Paid while its seats were refused.
	if err := m.seats.Reserve(ctx, b.ClassID, b.Seats); err != nil {
		if errors.Is(err, ledger.ErrInsufficientCapacity) {
			metrics.CapacityConflictsTotal.Inc()
			if flagErr := m.store.FlagForReview(ctx, b.ID); flagErr != nil {
				logger.Error().Err(flagErr).Msg("could not flag booking for review")
			}
			logger.Error().
				Str("class_id", b.ClassID).Int("seats", b.Seats).
				Msg("confirmed payment exceeds remaining capacity, booking needs manual resolution")
			return ErrCapacityExceeded
		}
		return fmt.Errorf("reserve seats for booking %s: %w", b.ID, err)
	}

	if err := m.store.MarkPaid(ctx, b.ID, paymentIntentID, amountCents); err != nil {
		// Seats are reserved but the booking row did not move; release the
		// reservation so inventory is not leaked.
		if relErr := m.seats.Release(ctx, b.ClassID, b.Seats); relErr != nil {
			logger.Error().Err(relErr).Msg("could not release seats after failed paid update")
		}
		if errors.Is(err, repository.ErrStaleStatus) {
			return ErrAlreadyTerminal
		}
		return fmt.Errorf("mark booking paid: %w", err)
	}

	m.fanOut(ctx, b, model.BookingPaid)

	logger.Info().
		Str("payment_intent_id", paymentIntentID).
		Int("seats", b.Seats).
		Msg("booking paid")
	return nil
}

// Cancel applies a terminal transition with its compensating actions.
//
// The target state follows the caller's intent: a Paid booking moves to
// Refunded (CancelRefund, CancelRecordRefund) or CancelledNoRefund
// (CancelNoRefund); a ROIIFree booking always moves to ROIICancelled and
// never triggers a refund. The displayed seats-purchased count is zeroed
// while the compensating release uses the original reserved seat count.
func (m *Machine) Cancel(ctx context.Context, bookingID string, intent CancelIntent) error {
	mu := m.lockFor(bookingID)
	mu.Lock()
	defer mu.Unlock()

	b, err := m.store.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}

	if b.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	var target model.BookingStatus
	requestRefund := false
	switch b.Status {
	case model.BookingROIIFree:
		target = model.BookingROIICancelled
	case model.BookingPaid:
		switch intent {
		case CancelRefund:
			target = model.BookingRefunded
			requestRefund = true
		case CancelRecordRefund:
			target = model.BookingRefunded
		case CancelNoRefund:
			target = model.BookingCancelledNoRefund
		default:
			return fmt.Errorf("%w: unknown cancel intent %q", ErrInvalidTransition, intent)
		}
	default:
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, b.Status)
	}

	logger := log.WithBookingID(b.ID)

	// The outbound refund runs first so a processor failure leaves the
	// booking fully unchanged.
	if requestRefund {
		if err := m.refunds.RequestRefund(ctx, b.PaymentIntentID, b.AmountCents); err != nil {
			metrics.RefundRequestsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("request refund for booking %s: %w", b.ID, err)
		}
		metrics.RefundRequestsTotal.WithLabelValues("ok").Inc()
	}

	if err := m.store.MarkCancelled(ctx, b.ID, target, b.Status); err != nil {
		// A concurrent writer already moved the booking; the seats it
		// released stay released, nothing more to compensate here.
		if errors.Is(err, repository.ErrStaleStatus) {
			return ErrAlreadyTerminal
		}
		return fmt.Errorf("mark booking cancelled: %w", err)
	}

	// Release the original reserved count, not the zeroed display value.
	// ROIIFree reserved at creation, Paid reserved at confirmation.
	if err := m.seats.Release(ctx, b.ClassID, b.Seats); err != nil {
		logger.Error().Err(err).
			Str("class_id", b.ClassID).Int("seats", b.Seats).
			Msg("seat release failed after cancellation, inventory needs operator attention")
	}

	m.fanOut(ctx, b, target)

	logger.Info().
		Str("status", string(target)).
		Str("intent", string(intent)).
		Msg("booking cancelled")
	return nil
}

// fanOut mirrors the new status onto the booking's participant sub-records
// and onto the participants of every booking sharing its registration
// batch. Each item is retried once; persistent failures are logged and
// accepted as eventual-consistency drift for operator follow-up.
func (m *Machine) fanOut(ctx context.Context, b *model.Booking, status model.BookingStatus) {
	ids := []string{b.ID}
	if b.BatchID != "" {
		siblings, err := m.store.ListByBatch(ctx, b.BatchID)
		if err != nil {
			log.WithBookingID(b.ID).Error().Err(err).Msg("could not list batch siblings for status fan-out")
		}
		for _, s := range siblings {
			if s.ID != b.ID {
				ids = append(ids, s.ID)
			}
		}
	}

	for _, id := range ids {
		err := m.store.UpdateParticipantStatus(ctx, id, status)
		if err != nil {
			err = m.store.UpdateParticipantStatus(ctx, id, status)
		}
		if err != nil {
			log.WithBookingID(id).Error().Err(err).
				Str("status", string(status)).
				Msg("participant status fan-out failed, display state lags booking")
		}
	}
}
