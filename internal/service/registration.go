// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the core components.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/classops/registrar/internal/booking"
	"github.com/classops/registrar/internal/ledger"
	"github.com/classops/registrar/internal/model"
	"github.com/classops/registrar/internal/repository"
)

// ErrClassFull is returned when a registration is submitted for a class
// without enough remaining seats. This is the synchronous, user-visible
// capacity failure; capacity conflicts discovered later at payment
// confirmation surface only to operators.
var ErrClassFull = errors.New("class does not have enough seats remaining")

// RegistrationService orchestrates registration, cancellation, and
// waitlist signup.
type RegistrationService struct {
	classes  *repository.ClassRepository
	bookings *repository.BookingRepository
	waitlist *repository.WaitlistRepository
	seats    *ledger.Ledger
	machine  *booking.Machine
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	classes *repository.ClassRepository,
	bookings *repository.BookingRepository,
	waitlist *repository.WaitlistRepository,
	seats *ledger.Ledger,
	machine *booking.Machine,
) *RegistrationService {
	return &RegistrationService{
		classes:  classes,
		bookings: bookings,
		waitlist: waitlist,
		seats:    seats,
		machine:  machine,
	}
}

// Register validates a submission and creates the booking for it.
//
// Paid bookings start Pending; their seats are reserved later, by the
// payment confirmation. ROII (comped) bookings skip payment entirely:
// they reserve immediately and start ROIIFree. Admin bookings are created
// Pending and confirmed on the spot through the ordinary Pending -> Paid
// transition with a synthetic zero-amount confirmation, so seat
// accounting has exactly one code path.
func (s *RegistrationService) Register(ctx context.Context, classID string, req model.RegisterRequest) (*model.Booking, error) {
	if classID == "" {
		return nil, fmt.Errorf("class id is required")
	}
	if req.Seats <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}
	if len(req.Participants) != req.Seats {
		return nil, fmt.Errorf("expected %d participants, got %d", req.Seats, len(req.Participants))
	}
	switch req.Type {
	case model.TypePaid, model.TypeROII, model.TypeAdmin:
	case "":
		req.Type = model.TypePaid
	default:
		return nil, fmt.Errorf("unknown booking type %q", req.Type)
	}

	participants := make([]model.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		email := strings.TrimSpace(strings.ToLower(p.Email))
		if !isValidEmail(email) {
			return nil, fmt.Errorf("participant email %q is not a valid email address", p.Email)
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("participant name is required")
		}
		participants = append(participants, model.Participant{
			Name:  name,
			Email: email,
			Phone: strings.TrimSpace(p.Phone),
		})
	}

	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		return nil, err
	}

	// Synchronous capacity check at submission time. Not a reservation:
	// the seats are taken when payment confirms. This is the user's only
	// capacity error; afterwards they are told "pending".
	if class.SeatsRemaining < req.Seats {
		return nil, ErrClassFull
	}

	b := &model.Booking{
		ID:           uuid.New().String(),
		ClassID:      class.ID,
		BatchID:      uuid.New().String(),
		Seats:        req.Seats,
		Status:       model.BookingPending,
		Type:         req.Type,
		AmountCents:  req.AmountCents,
		Participants: participants,
	}

	switch req.Type {
	case model.TypeROII:
		// Comped bookings reserve up front; there is no later
		// confirmation event to do it.
		if err := s.seats.Reserve(ctx, class.ID, req.Seats); err != nil {
			if errors.Is(err, ledger.ErrInsufficientCapacity) {
				return nil, ErrClassFull
			}
			return nil, err
		}
		b.Status = model.BookingROIIFree
		b.SeatsPurchased = req.Seats
		b.AmountCents = 0
		if err := s.bookings.Create(ctx, b); err != nil {
			// Creation failed after the reserve; give the seats back.
			_ = s.seats.Release(ctx, class.ID, req.Seats)
			return nil, err
		}
		return b, nil

	case model.TypeAdmin:
		if err := s.bookings.Create(ctx, b); err != nil {
			return nil, err
		}
		if err := s.machine.ConfirmPayment(ctx, b.ID, "admin-"+b.ID, 0); err != nil {
			if errors.Is(err, booking.ErrCapacityExceeded) {
				return nil, ErrClassFull
			}
			return nil, err
		}
		return s.bookings.GetByID(ctx, b.ID)

	default:
		if err := s.bookings.Create(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Cancel maps a caller-facing cancellation request to a state-machine
// intent. The refund-vs-no-refund branch is an explicit caller decision,
// never inferred from the booking's current status.
func (s *RegistrationService) Cancel(ctx context.Context, bookingID string, req model.CancelRequest) error {
	if bookingID == "" {
		return fmt.Errorf("booking id is required")
	}

	var intent booking.CancelIntent
	switch req.Intent {
	case "refund":
		intent = booking.CancelRefund
	case "no_refund":
		intent = booking.CancelNoRefund
	default:
		return fmt.Errorf("intent must be \"refund\" or \"no_refund\"")
	}

	return s.machine.Cancel(ctx, bookingID, intent)
}

// JoinWaitlist validates and records a waitlist signup.
func (s *RegistrationService) JoinWaitlist(ctx context.Context, classID string, req model.WaitlistRequest) (*model.WaitlistEntry, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if !isValidEmail(email) {
		return nil, fmt.Errorf("email is not a valid email address")
	}
	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		return nil, err
	}
	return s.waitlist.Create(ctx, classID, email)
}

// GetClass returns a single class by ID.
func (s *RegistrationService) GetClass(ctx context.Context, id string) (*model.Class, error) {
	if id == "" {
		return nil, fmt.Errorf("class id is required")
	}
	return s.classes.GetByID(ctx, id)
}

// ListClasses returns all classes.
func (s *RegistrationService) ListClasses(ctx context.Context) ([]model.Class, error) {
	return s.classes.List(ctx)
}

// GetBooking returns a booking with its participants.
func (s *RegistrationService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("booking id is required")
	}
	return s.bookings.GetWithParticipants(ctx, id)
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
