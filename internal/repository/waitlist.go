package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classops/registrar/internal/model"
)

// WaitlistRepository handles persistence for waitlist entries.
type WaitlistRepository struct {
	db *pgxpool.Pool
}

// NewWaitlistRepository constructs a WaitlistRepository.
func NewWaitlistRepository(db *pgxpool.Pool) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

// Create inserts a new waitlist entry in the Yet-to-Notify state.
func (r *WaitlistRepository) Create(ctx context.Context, classID, email string) (*model.WaitlistEntry, error) {
	entry := &model.WaitlistEntry{
		ID:        uuid.New().String(),
		ClassID:   classID,
		Email:     email,
		State:     model.WaitlistPending,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO waitlist_entries (id, class_id, email, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.ClassID, entry.Email, entry.State, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}
	return entry, nil
}

// ListPending returns all entries still waiting to be notified, oldest first.
func (r *WaitlistRepository) ListPending(ctx context.Context) ([]model.WaitlistEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, class_id, email, state, created_at, notified_at
		 FROM waitlist_entries
		 WHERE state = $1
		 ORDER BY created_at ASC`,
		model.WaitlistPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.ClassID, &e.Email, &e.State, &e.CreatedAt, &e.NotifiedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkNotified performs the entry's single one-way mutation.
func (r *WaitlistRepository) MarkNotified(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx,
		`UPDATE waitlist_entries SET state = $2, notified_at = $3 WHERE id = $1`,
		id, model.WaitlistNotified, now,
	)
	if err != nil {
		return fmt.Errorf("mark waitlist entry notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
