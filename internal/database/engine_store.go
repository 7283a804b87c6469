package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// ErrRowMismatch means a write touched a different number of rows than the
// engine's in-memory state implied
var ErrRowMismatch = errors.New("affected rows mismatch")

func expectRows(result sql.Result, want int64, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != want {
		return fmt.Errorf("%w: %s: expected %d, got %d", ErrRowMismatch, what, want, n)
	}
	return nil
}

// EngineStore persists engine state in PostgreSQL. Every write is one
// transaction.
type EngineStore struct {
	db     DB
	logger *logrus.Logger
}

// NewEngineStore creates a new EngineStore
func NewEngineStore(db DB, logger *logrus.Logger) *EngineStore {
	return &EngineStore{db: db, logger: logger}
}

func (s *EngineStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads a consistent snapshot of every table
func (s *EngineStore) Load(ctx context.Context) (*models.Snapshot, error) {
	snap := &models.Snapshot{}
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := s.withTx(ctx, opts, func(tx *sqlx.Tx) error {
		var err error
		if snap.Users, err = NewUserRepository(tx).List(ctx); err != nil {
			return err
		}
		if snap.Trains, err = NewTrainRepository(tx).List(ctx); err != nil {
			return err
		}
		if snap.Seats, err = NewSeatRepository(tx).List(ctx); err != nil {
			return err
		}
		snap.Orders, err = NewOrderRepository(tx).List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"users":  len(snap.Users),
		"trains": len(snap.Trains),
		"seats":  len(snap.Seats),
		"orders": len(snap.Orders),
	}).Info("Loaded engine snapshot")
	return snap, nil
}

// CreateUser inserts a user
func (s *EngineStore) CreateUser(ctx context.Context, u *models.User) error {
	return NewUserRepository(s.db).Create(ctx, u)
}

// UpdateUser writes a modified profile
func (s *EngineStore) UpdateUser(ctx context.Context, u *models.User) error {
	return NewUserRepository(s.db).Update(ctx, u)
}

// CreateTrain inserts an unreleased train
func (s *EngineStore) CreateTrain(ctx context.Context, t *models.Train) error {
	return NewTrainRepository(s.db).Create(ctx, t)
}

// DeleteTrain removes an unreleased train
func (s *EngineStore) DeleteTrain(ctx context.Context, trainID string) error {
	return NewTrainRepository(s.db).Delete(ctx, trainID)
}

// ReleaseTrain marks the train released and seeds its seat ledger
func (s *EngineStore) ReleaseTrain(ctx context.Context, t *models.Train) error {
	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if err := NewTrainRepository(tx).MarkReleased(ctx, t.ID); err != nil {
			return err
		}
		return NewSeatRepository(tx).CreateRuns(ctx, t)
	})
}

// SavePurchase inserts the order and, when it succeeded, takes its seats
func (s *EngineStore) SavePurchase(ctx context.Context, o *models.Order) error {
	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if err := NewOrderRepository(tx).Create(ctx, o); err != nil {
			return err
		}
		if o.Status != models.OrderStatusSuccess {
			return nil
		}
		return NewSeatRepository(tx).Adjust(ctx, o.TrainID, o.RunDate, o.FromIndex, o.ToIndex, -o.Seats)
	})
}

// SaveRefund returns the refunded seats and fills the promoted orders
func (s *EngineStore) SaveRefund(ctx context.Context, refunded *models.Order, promoted []models.Order) error {
	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		orders := NewOrderRepository(tx)
		seats := NewSeatRepository(tx)

		if err := orders.Transition(ctx, refunded.ID, models.OrderStatusSuccess, models.OrderStatusRefunded); err != nil {
			return err
		}
		if err := seats.Adjust(ctx, refunded.TrainID, refunded.RunDate, refunded.FromIndex, refunded.ToIndex, refunded.Seats); err != nil {
			return err
		}

		for i := range promoted {
			p := &promoted[i]
			if err := orders.Transition(ctx, p.ID, models.OrderStatusPending, models.OrderStatusSuccess); err != nil {
				return err
			}
			if err := seats.Adjust(ctx, p.TrainID, p.RunDate, p.FromIndex, p.ToIndex, -p.Seats); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveWithdrawal marks a pending order withdrawn
func (s *EngineStore) SaveWithdrawal(ctx context.Context, o *models.Order) error {
	return NewOrderRepository(s.db).Transition(ctx, o.ID, models.OrderStatusPending, models.OrderStatusWithdrawn)
}

// Truncate empties every engine table
func (s *EngineStore) Truncate(ctx context.Context) error {
	return TruncateAll(ctx, s.db)
}

// TruncateAll empties every engine table in one statement
func TruncateAll(ctx context.Context, db sqlx.ExecerContext) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(Tables, ", "))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}

// CountRows returns the row count of every engine table
func CountRows(ctx context.Context, db sqlx.QueryerContext) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		if err := sqlx.GetContext(ctx, db, &n, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
