package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// OrderRepository handles orders database operations
type OrderRepository struct {
	db sqlx.ExtContext
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db sqlx.ExtContext) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			id, seq, username, train_id, run_date, from_station, to_station,
			from_index, to_index, departure_at, arrival_at, seats,
			unit_price, total_price, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.Seq,
		order.Username,
		order.TrainID,
		order.RunDate,
		order.From,
		order.To,
		order.FromIndex,
		order.ToIndex,
		order.Departure,
		order.Arrival,
		order.Seats,
		order.UnitPrice,
		order.Price,
		order.Status,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// Transition moves an order from one status to another. It fails if the
// stored status is not from.
func (r *OrderRepository) Transition(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return expectRows(result, 1, fmt.Sprintf("%s order %s", from, id))
}

// List returns every order by sequence
func (r *OrderRepository) List(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	query := `
		SELECT id, seq, username, train_id, run_date, from_station, to_station,
		       from_index, to_index, departure_at, arrival_at, seats,
		       unit_price, total_price, status, created_at
		FROM orders
		ORDER BY seq
	`
	if err := sqlx.SelectContext(ctx, r.db, &orders, query); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}
