package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hostedid/sendout/internal/database"
	"github.com/hostedid/sendout/internal/model"
)

// SendoutRepository handles sendout history persistence
type SendoutRepository struct {
	db *database.Postgres
}

// NewSendoutRepository creates a new SendoutRepository
func NewSendoutRepository(db *database.Postgres) *SendoutRepository {
	return &SendoutRepository{db: db}
}

// Create inserts a new sendout
func (r *SendoutRepository) Create(ctx context.Context, s *model.Sendout) error {
	query := `
		INSERT INTO sendouts (id, account_fingerprint, subject, recipient_count,
		    state, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.AccountFingerprint,
		s.Subject,
		s.RecipientCount,
		s.State,
		s.Error,
		s.StartedAt,
		s.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sendout: %w", err)
	}
	return nil
}

// AddDelivery appends one delivery record to a sendout
func (r *SendoutRepository) AddDelivery(ctx context.Context, sendoutID string, position int, rec model.DeliveryRecord) error {
	query := `
		INSERT INTO sendout_deliveries (sendout_id, position, address, status, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, sendoutID, position, rec.Address, rec.Status, rec.SentAt)
	if err != nil {
		return fmt.Errorf("failed to add delivery: %w", err)
	}
	return nil
}

// Finish stores the final state of a sendout
func (r *SendoutRepository) Finish(ctx context.Context, s *model.Sendout) error {
	query := `
		UPDATE sendouts SET state = $2, error = $3, finished_at = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, s.ID, s.State, s.Error, s.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish sendout: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish sendout: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns one sendout
func (r *SendoutRepository) GetByID(ctx context.Context, id string) (*model.Sendout, error) {
	query := `
		SELECT id, account_fingerprint, subject, recipient_count, state, error,
		       started_at, finished_at
		FROM sendouts
		WHERE id = $1
	`
	var s model.Sendout
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.AccountFingerprint,
		&s.Subject,
		&s.RecipientCount,
		&s.State,
		&s.Error,
		&s.StartedAt,
		&s.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sendout: %w", err)
	}
	return &s, nil
}

// ListRecent returns the latest sendouts, newest first
func (r *SendoutRepository) ListRecent(ctx context.Context, limit int) ([]model.Sendout, error) {
	if limit <= 0 {
		return nil, ErrInvalidInput
	}

	query := `
		SELECT id, account_fingerprint, subject, recipient_count, state, error,
		       started_at, finished_at
		FROM sendouts
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sendouts: %w", err)
	}
	defer rows.Close()

	var sendouts []model.Sendout
	for rows.Next() {
		var s model.Sendout
		err := rows.Scan(
			&s.ID,
			&s.AccountFingerprint,
			&s.Subject,
			&s.RecipientCount,
			&s.State,
			&s.Error,
			&s.StartedAt,
			&s.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sendout row: %w", err)
		}
		sendouts = append(sendouts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sendout rows: %w", err)
	}
	return sendouts, nil
}

// GetDeliveries returns the delivery records of a sendout in recipient order
func (r *SendoutRepository) GetDeliveries(ctx context.Context, sendoutID string) ([]model.StoredDelivery, error) {
	query := `
		SELECT position, address, status, sent_at
		FROM sendout_deliveries
		WHERE sendout_id = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, sendoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []model.StoredDelivery
	for rows.Next() {
		d := model.StoredDelivery{SendoutID: sendoutID}
		var sentAt sql.NullTime
		if err := rows.Scan(&d.Position, &d.Record.Address, &d.Record.Status, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		if sentAt.Valid {
			t := sentAt.Time.In(time.Local)
			d.Record.SentAt = &t
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery rows: %w", err)
	}
	return deliveries, nil
}
