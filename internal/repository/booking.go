package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classops/registrar/internal/model"
)

// ErrStaleStatus is returned when a conditional status update finds the
// booking no longer in the status the caller read. A concurrent writer
// won; the caller re-evaluates instead of overwriting.
var ErrStaleStatus = errors.New("booking status changed concurrently")

const bookingColumns = `id, class_id, batch_id, seats, seats_purchased, status, type,
	refund_confirmed, needs_review, payment_intent_id, amount_cents,
	publish_item_id, created_at, updated_at`

// BookingRepository handles persistence for bookings and their participant
// sub-records.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a booking and its participants in one transaction.
// The booking's seat count is immutable from this point on.
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, class_id, batch_id, seats, seats_purchased, status,
		   type, refund_confirmed, needs_review, payment_intent_id, amount_cents,
		   publish_item_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.ClassID, b.BatchID, b.Seats, b.SeatsPurchased, b.Status,
		b.Type, b.RefundConfirmed, b.NeedsReview, b.PaymentIntentID,
		b.AmountCents, b.PublishItemID, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	for i := range b.Participants {
		p := &b.Participants[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.BookingID = b.ID
		p.Status = b.Status
		_, err = tx.Exec(ctx,
			`INSERT INTO participants (id, booking_id, name, email, phone, status)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, p.BookingID, p.Name, p.Email, p.Phone, p.Status,
		)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.ClassID, &b.BatchID, &b.Seats, &b.SeatsPurchased,
		&b.Status, &b.Type, &b.RefundConfirmed, &b.NeedsReview,
		&b.PaymentIntentID, &b.AmountCents, &b.PublishItemID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return &b, nil
}

// GetByID returns a single booking (without participants) or ErrNotFound.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

// GetWithParticipants returns a booking with its participant sub-records.
func (r *BookingRepository) GetWithParticipants(ctx context.Context, id string) (*model.Booking, error) {
	b, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, booking_id, name, email, phone, status
		 FROM participants WHERE booking_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Name, &p.Email, &p.Phone, &p.Status); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		b.Participants = append(b.Participants, p)
	}
	return b, rows.Err()
}

// ListByBatch returns every booking sharing a registration batch.
func (r *BookingRepository) ListByBatch(ctx context.Context, batchID string) ([]model.Booking, error) {
	return r.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE batch_id = $1 ORDER BY created_at ASC`,
		batchID)
}

// ListPublishable returns purchases eligible for the publishing sync:
// status past Pending, and for refunded purchases only once the refund
// confirmation has been recorded.
func (r *BookingRepository) ListPublishable(ctx context.Context) ([]model.Booking, error) {
	return r.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE status <> 'pending'
		   AND (status <> 'refunded' OR refund_confirmed)
		 ORDER BY created_at ASC`)
}

func (r *BookingRepository) queryBookings(ctx context.Context, sql string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// MarkPaid records a confirmed payment: status, displayed seat count, and
// the payment-intent reference in one update. The update is conditional on
// the booking still being Pending; ErrStaleStatus means a concurrent
// writer already moved it.
func (r *BookingRepository) MarkPaid(ctx context.Context, id, intentID string, amountCents int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE bookings
		 SET status = $2, seats_purchased = seats, payment_intent_id = $3,
		     amount_cents = $4, updated_at = $5
		 WHERE id = $1 AND status = $6`,
		id, model.BookingPaid, intentID, amountCents, time.Now().UTC(), model.BookingPending,
	)
	if err != nil {
		return fmt.Errorf("mark booking paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

// MarkCancelled records a terminal transition: the displayed seat count is
// zeroed and the refund-confirmation flag set, while the immutable seats
// column keeps the originally reserved count. The update is conditional on
// the status the caller read, so two racing cancellations cannot both
// apply; the loser gets ErrStaleStatus.
func (r *BookingRepository) MarkCancelled(ctx context.Context, id string, status, from model.BookingStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE bookings
		 SET status = $2, seats_purchased = 0, refund_confirmed = TRUE, updated_at = $3
		 WHERE id = $1 AND status = $4`,
		id, status, time.Now().UTC(), from,
	)
	if err != nil {
		return fmt.Errorf("mark booking cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

// FlagForReview marks a booking for manual operator resolution.
func (r *BookingRepository) FlagForReview(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE bookings SET needs_review = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("flag booking for review: %w", err)
	}
	return nil
}

// SetPublishItemID stamps the booking with its purchase listing's
// publish-side item id.
func (r *BookingRepository) SetPublishItemID(ctx context.Context, bookingID, itemID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE bookings SET publish_item_id = $2, updated_at = $3 WHERE id = $1`,
		bookingID, itemID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set publish item id: %w", err)
	}
	return nil
}

// UpdateParticipantStatus mirrors a booking status onto all of the
// booking's participant sub-records.
func (r *BookingRepository) UpdateParticipantStatus(ctx context.Context, bookingID string, status model.BookingStatus) error {
	_, err := r.db.Exec(ctx,
		`UPDATE participants SET status = $2 WHERE booking_id = $1`,
		bookingID, status,
	)
	if err != nil {
		return fmt.Errorf("update participant status: %w", err)
	}
	return nil
}
