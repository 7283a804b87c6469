package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// TrainRepository handles trains database operations
type TrainRepository struct {
	db sqlx.ExtContext
}

// NewTrainRepository creates a new TrainRepository
func NewTrainRepository(db sqlx.ExtContext) *TrainRepository {
	return &TrainRepository{db: db}
}

// Create inserts an unreleased train
func (r *TrainRepository) Create(ctx context.Context, train *models.Train) error {
	query := `
		INSERT INTO trains (
			id, train_type, stations, seat_capacity, prices, start_time,
			arrive_offsets, depart_offsets, sale_start, sale_end, released, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		train.ID,
		train.Type,
		train.Stations,
		train.SeatCapacity,
		train.Prices,
		train.StartTime,
		train.ArriveOffsets,
		train.DepartOffsets,
		train.SaleStart,
		train.SaleEnd,
		train.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create train: %w", err)
	}

	return nil
}

// Delete removes an unreleased train
func (r *TrainRepository) Delete(ctx context.Context, trainID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trains WHERE id = $1 AND NOT released`, trainID)
	if err != nil {
		return fmt.Errorf("failed to delete train: %w", err)
	}
	return expectRows(result, 1, "unreleased train "+trainID)
}

// MarkReleased flips the released flag of an unreleased train
func (r *TrainRepository) MarkReleased(ctx context.Context, trainID string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE trains SET released = TRUE WHERE id = $1 AND NOT released`, trainID)
	if err != nil {
		return fmt.Errorf("failed to release train: %w", err)
	}
	return expectRows(result, 1, "unreleased train "+trainID)
}

// List returns every train, released or not
func (r *TrainRepository) List(ctx context.Context) ([]models.Train, error) {
	var trains []models.Train
	query := `
		SELECT id, train_type, stations, seat_capacity, prices, start_time,
		       arrive_offsets, depart_offsets, sale_start, sale_end, released, created_at
		FROM trains
		ORDER BY id
	`
	if err := sqlx.SelectContext(ctx, r.db, &trains, query); err != nil {
		return nil, fmt.Errorf("failed to list trains: %w", err)
	}
	return trains, nil
}
