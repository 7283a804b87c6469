package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// SeatRepository handles seat_ledger database operations. One row holds the
// remaining seats of one leg of one run.
type SeatRepository struct {
	db sqlx.ExtContext
}

// NewSeatRepository creates a new SeatRepository
func NewSeatRepository(db sqlx.ExtContext) *SeatRepository {
	return &SeatRepository{db: db}
}

// CreateRuns inserts a full-capacity row for every leg of every run date in
// the train's sale window
func (r *SeatRepository) CreateRuns(ctx context.Context, train *models.Train) error {
	query := `
		INSERT INTO seat_ledger (train_id, run_date, leg, remaining)
		SELECT $1, d::date, l, $4
		FROM generate_series($2::date, $3::date, INTERVAL '1 day') AS d,
		     generate_series(0, $5 - 1) AS l
	`

	result, err := r.db.ExecContext(ctx, query,
		train.ID,
		train.SaleStart,
		train.SaleEnd,
		train.SeatCapacity,
		train.LegCount(),
	)
	if err != nil {
		return fmt.Errorf("failed to create seat rows: %w", err)
	}

	days := int64(train.SaleEnd-train.SaleStart) + 1
	return expectRows(result, days*int64(train.LegCount()), "seat rows of "+train.ID)
}

// Adjust adds delta to the legs [from, to) of one run. Every leg must exist
// and stay non-negative, otherwise nothing is changed.
func (r *SeatRepository) Adjust(ctx context.Context, trainID string, runDate models.Date, from, to, delta int) error {
	query := `
		UPDATE seat_ledger
		SET remaining = remaining + $5
		WHERE train_id = $1 AND run_date = $2 AND leg >= $3 AND leg < $4
		  AND remaining + $5 >= 0
	`

	result, err := r.db.ExecContext(ctx, query, trainID, runDate, from, to, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust seats: %w", err)
	}
	return expectRows(result, int64(to-from), fmt.Sprintf("seat legs of %s on %s", trainID, runDate))
}

// List returns every seat row
func (r *SeatRepository) List(ctx context.Context) ([]models.SeatRow, error) {
	var rows []models.SeatRow
	query := `
		SELECT train_id, run_date, leg, remaining
		FROM seat_ledger
		ORDER BY train_id, run_date, leg
	`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list seat rows: %w", err)
	}
	return rows, nil
}
