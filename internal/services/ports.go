package services

import (
	"context"

	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// Store persists engine state. Each method is one atomic write: the engine
// calls it while holding the locks of the affected entity and only applies
// the change in memory after it returns nil.
type Store interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	CreateTrain(ctx context.Context, t *models.Train) error
	DeleteTrain(ctx context.Context, trainID string) error
	// ReleaseTrain marks the train released and creates a full-capacity
	// seat row for every leg of every run in the sale window.
	ReleaseTrain(ctx context.Context, t *models.Train) error
	// SavePurchase inserts the order. Successful orders also consume seats.
	SavePurchase(ctx context.Context, o *models.Order) error
	// SaveRefund returns the refunded order's seats and fills the promoted
	// orders, all in one transaction.
	SaveRefund(ctx context.Context, refunded *models.Order, promoted []models.Order) error
	SaveWithdrawal(ctx context.Context, o *models.Order) error
	Truncate(ctx context.Context) error
}

// NopStore keeps everything in memory only
type NopStore struct{}

func (NopStore) Load(context.Context) (*models.Snapshot, error)                  { return &models.Snapshot{}, nil }
func (NopStore) CreateUser(context.Context, *models.User) error                  { return nil }
func (NopStore) UpdateUser(context.Context, *models.User) error                  { return nil }
func (NopStore) CreateTrain(context.Context, *models.Train) error                { return nil }
func (NopStore) DeleteTrain(context.Context, string) error                       { return nil }
func (NopStore) ReleaseTrain(context.Context, *models.Train) error               { return nil }
func (NopStore) SavePurchase(context.Context, *models.Order) error               { return nil }
func (NopStore) SaveWithdrawal(context.Context, *models.Order) error             { return nil }
func (NopStore) Truncate(context.Context) error                                  { return nil }
func (NopStore) SaveRefund(context.Context, *models.Order, []models.Order) error { return nil }

// SessionTable tracks which users are logged in
type SessionTable interface {
	// Begin returns false if the user already has a session
	Begin(ctx context.Context, username string) (bool, error)
	// End returns false if the user had no session
	End(ctx context.Context, username string) (bool, error)
	Active(ctx context.Context, username string) (bool, error)
	Reset(ctx context.Context) error
}

// Notifier receives order events after they are committed. Implementations
// must not block.
type Notifier interface {
	Notify(event models.OrderEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(models.OrderEvent) {}
