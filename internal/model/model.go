// Package model defines the core domain types for the class-registration system.
package model

import "time"

// ClassStatus tracks a class's publish lifecycle in the Record Store.
type ClassStatus string

const (
	ClassDraft     ClassStatus = "draft"
	ClassPublish   ClassStatus = "publish"
	ClassPublished ClassStatus = "published"
	ClassUpdated   ClassStatus = "updated"
	ClassDelete    ClassStatus = "delete"
)

// Class represents a schedulable offering with finite seat capacity.
//
// ID is the storage-internal identifier; ExternalID is the stable key
// cross-referenced by Published Listings and payment events. Seat fields
// are mutated only through the seat ledger and always satisfy
// 0 <= SeatsRemaining <= Capacity and SeatsRemaining + TotalPurchased == Capacity.
type Class struct {
	ID             string      `json:"id"`
	ExternalID     string      `json:"external_id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Capacity       int         `json:"capacity"`
	SeatsRemaining int         `json:"seats_remaining"`
	TotalPurchased int         `json:"total_purchased"`
	Status         ClassStatus `json:"status"`

	// Pricing in cents, one price per audience segment.
	MemberPriceCents    int64 `json:"member_price_cents"`
	NonMemberPriceCents int64 `json:"non_member_price_cents"`

	Location   string `json:"location,omitempty"`
	Instructor string `json:"instructor,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	StartTime  string `json:"start_time,omitempty"`
	EndTime    string `json:"end_time,omitempty"`

	// PaymentLink is the hosted checkout URL buyers use to pay for this
	// class; InstructorPic is a public image URL. Both publish verbatim
	// onto the listing.
	PaymentLink   string `json:"payment_link,omitempty"`
	InstructorPic string `json:"instructor_pic,omitempty"`

	// PublishItemID is the Content Publishing System's id for this class's
	// listing, written back after the listing is first created.
	PublishItemID string `json:"publish_item_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookingStatus is the payment-status state of a booking.
type BookingStatus string

const (
	BookingPending           BookingStatus = "pending"
	BookingPaid              BookingStatus = "paid"
	BookingROIIFree          BookingStatus = "roii_free"
	BookingRefunded          BookingStatus = "refunded"
	BookingCancelledNoRefund BookingStatus = "cancelled_no_refund"
	BookingROIICancelled     BookingStatus = "roii_cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingRefunded, BookingCancelledNoRefund, BookingROIICancelled:
		return true
	}
	return false
}

// BookingType tags how a booking entered the system.
type BookingType string

const (
	TypePaid  BookingType = "paid"
	TypeROII  BookingType = "roii"
	TypeAdmin BookingType = "admin"
)

// Booking represents a registration against a class covering 1..N seats.
//
// Seats is immutable after creation and records how many seats the ledger
// reserves on payment confirmation. SeatsPurchased is the displayed count:
// it equals Seats while the booking is live and is zeroed on cancellation,
// while the compensating release always uses Seats.
type Booking struct {
	ID      string `json:"id"`
	ClassID string `json:"class_id"`
	// BatchID groups bookings submitted together; status fan-out covers
	// every booking in the batch.
	BatchID         string        `json:"batch_id"`
	Seats           int           `json:"seats"`
	SeatsPurchased  int           `json:"seats_purchased"`
	Status          BookingStatus `json:"status"`
	Type            BookingType   `json:"type"`
	RefundConfirmed bool          `json:"refund_confirmed"`
	// NeedsReview is set when a confirmed payment could not be fulfilled
	// against remaining capacity and an operator has to resolve it.
	NeedsReview     bool          `json:"needs_review"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	AmountCents     int64         `json:"amount_cents"`
	Participants    []Participant `json:"participants,omitempty"`
	PublishItemID   string        `json:"publish_item_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Participant is a per-seat sub-record. Status mirrors the parent booking's
// payment status and exists purely for display and export.
type Participant struct {
	ID        string        `json:"id"`
	BookingID string        `json:"booking_id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone,omitempty"`
	Status    BookingStatus `json:"status"`
}

// WaitlistState is the notification state of a waitlist entry.
type WaitlistState string

const (
	WaitlistPending  WaitlistState = "yet_to_notify"
	WaitlistNotified WaitlistState = "notified"
)

// WaitlistEntry records interest in a full class. It is mutated exactly
// once, when the notifier marks it notified.
type WaitlistEntry struct {
	ID         string        `json:"id"`
	ClassID    string        `json:"class_id"`
	Email      string        `json:"email"`
	State      WaitlistState `json:"state"`
	CreatedAt  time.Time     `json:"created_at"`
	NotifiedAt *time.Time    `json:"notified_at,omitempty"`
}

// RegisterRequest is the payload for submitting a registration.
type RegisterRequest struct {
	Type         BookingType          `json:"type"`
	Seats        int                  `json:"seats"`
	AmountCents  int64                `json:"amount_cents"`
	Participants []ParticipantRequest `json:"participants"`
}

// ParticipantRequest is one seat's participant details on submission.
type ParticipantRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// CancelRequest carries the caller's explicit refund intent; the system
// never infers refund-vs-no-refund from the booking's current status.
type CancelRequest struct {
	Intent string `json:"intent"` // "refund" or "no_refund"
}

// WaitlistRequest is the payload for a waitlist signup.
type WaitlistRequest struct {
	Email string `json:"email"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
