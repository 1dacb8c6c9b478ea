// Package repository implements all database queries for the registrar.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classops/registrar/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

const classColumns = `id, external_id, name, description, capacity, seats_remaining,
	total_purchased, status, member_price_cents, non_member_price_cents,
	location, instructor, start_date, end_date, start_time, end_time,
	payment_link, instructor_pic, publish_item_id, created_at, updated_at`

// ClassRepository handles persistence for classes.
type ClassRepository struct {
	db *pgxpool.Pool
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{db: db}
}

func scanClass(row pgx.Row) (*model.Class, error) {
	var c model.Class
	err := row.Scan(
		&c.ID, &c.ExternalID, &c.Name, &c.Description, &c.Capacity,
		&c.SeatsRemaining, &c.TotalPurchased, &c.Status,
		&c.MemberPriceCents, &c.NonMemberPriceCents,
		&c.Location, &c.Instructor, &c.StartDate, &c.EndDate,
		&c.StartTime, &c.EndTime, &c.PaymentLink, &c.InstructorPic,
		&c.PublishItemID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan class: %w", err)
	}
	return &c, nil
}

// GetByID returns a single class or ErrNotFound.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*model.Class, error) {
	return scanClass(r.db.QueryRow(ctx,
		`SELECT `+classColumns+` FROM classes WHERE id = $1`, id))
}

// List returns all classes ordered by creation time descending.
func (r *ClassRepository) List(ctx context.Context) ([]model.Class, error) {
	return r.queryClasses(ctx,
		`SELECT `+classColumns+` FROM classes ORDER BY created_at DESC`)
}

// ListPublishable returns classes eligible for the publishing sync:
// everything past Draft, including Delete (which syncs as an archival).
func (r *ClassRepository) ListPublishable(ctx context.Context) ([]model.Class, error) {
	return r.queryClasses(ctx,
		`SELECT `+classColumns+` FROM classes
		 WHERE status <> 'draft'
		 ORDER BY created_at ASC`)
}

func (r *ClassRepository) queryClasses(ctx context.Context, sql string, args ...any) ([]model.Class, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, *c)
	}
	return classes, rows.Err()
}

// SeatCounts returns the current seat state for a class.
func (r *ClassRepository) SeatCounts(ctx context.Context, classID string) (remaining, purchased, capacity int, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT seats_remaining, total_purchased, capacity FROM classes WHERE id = $1`,
		classID,
	).Scan(&remaining, &purchased, &capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, 0, ErrNotFound
		}
		return 0, 0, 0, fmt.Errorf("read seat counts: %w", err)
	}
	return remaining, purchased, capacity, nil
}

// CompareAndSwapSeats conditionally writes the seat counters: the update
// applies only if seats_remaining still equals expectRemaining. It returns
// false when a concurrent writer got there first, which is the optimistic-
// concurrency primitive the seat ledger retries on.
func (r *ClassRepository) CompareAndSwapSeats(ctx context.Context, classID string, expectRemaining, newRemaining, newPurchased int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes
		 SET seats_remaining = $2, total_purchased = $3, updated_at = $4
		 WHERE id = $1 AND seats_remaining = $5`,
		classID, newRemaining, newPurchased, time.Now().UTC(), expectRemaining,
	)
	if err != nil {
		return false, fmt.Errorf("cas seat counts: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetPublishItemID stamps the class with the Content Publishing System's
// item id after its listing is first created.
func (r *ClassRepository) SetPublishItemID(ctx context.Context, classID, itemID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE classes SET publish_item_id = $2, updated_at = $3 WHERE id = $1`,
		classID, itemID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set publish item id: %w", err)
	}
	return nil
}

// SetStatus moves a class through its publish lifecycle.
func (r *ClassRepository) SetStatus(ctx context.Context, classID string, status model.ClassStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE classes SET status = $2, updated_at = $3 WHERE id = $1`,
		classID, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set class status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
