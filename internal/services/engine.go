package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
	"github.com/smarttransit/rail-ticket-engine/pkg/sessions"
)

// EngineConfig holds engine wiring and policy
type EngineConfig struct {
	Store    Store
	Sessions SessionTable
	Notifier Notifier
	Accounts AccountConfig
	Transfer TransferPolicy
	Clock    func() time.Time
}

// DefaultEngineConfig returns an in-memory configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Store:    NopStore{},
		Sessions: sessions.NewMemory(),
		Notifier: nopNotifier{},
		Accounts: DefaultAccountConfig(),
		Transfer: DefaultTransferPolicy(),
		Clock:    time.Now,
	}
}

// Engine is the reservation engine. Every operation holds the gate shared;
// Clean and Restore hold it exclusively so no operation observes a
// half-reset state.
type Engine struct {
	gate     sync.RWMutex
	accounts *AccountDirectory
	catalog  *TrainCatalog
	ledger   *SeatLedger
	orders   *OrderBook
	queries  *QueryEngine
	bookings *BookingService
	store    Store
	sessions SessionTable
	logger   *logrus.Logger
}

// NewEngine builds an empty engine. Zero fields of config fall back to the
// defaults.
func NewEngine(config EngineConfig, logger *logrus.Logger) *Engine {
	defaults := DefaultEngineConfig()
	if config.Store == nil {
		config.Store = defaults.Store
	}
	if config.Sessions == nil {
		config.Sessions = defaults.Sessions
	}
	if config.Notifier == nil {
		config.Notifier = defaults.Notifier
	}
	if config.Accounts.BcryptCost == 0 {
		config.Accounts.BcryptCost = defaults.Accounts.BcryptCost
	}
	if config.Accounts.BootstrapPrivilege == 0 {
		config.Accounts.BootstrapPrivilege = defaults.Accounts.BootstrapPrivilege
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if logger == nil {
		logger = logrus.New()
	}

	ledger := NewSeatLedger()
	orders := NewOrderBook()
	accounts := NewAccountDirectory(config.Sessions, config.Store, config.Accounts, logger)
	accounts.now = config.Clock
	catalog := NewTrainCatalog(ledger, config.Store, logger)
	bookings := NewBookingService(accounts, catalog, ledger, orders, config.Store, config.Notifier, logger)
	bookings.now = config.Clock

	return &Engine{
		accounts: accounts,
		catalog:  catalog,
		ledger:   ledger,
		orders:   orders,
		queries:  NewQueryEngine(catalog, ledger, config.Transfer, logger),
		bookings: bookings,
		store:    config.Store,
		sessions: config.Sessions,
		logger:   logger,
	}
}

// AddUser registers an account on behalf of req.Caller
func (e *Engine) AddUser(ctx context.Context, req models.NewUserRequest) (*models.Profile, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.accounts.AddUser(ctx, req)
}

// Login opens a session
func (e *Engine) Login(ctx context.Context, username, password string) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.accounts.Login(ctx, username, password)
}

// Logout closes a session
func (e *Engine) Logout(ctx context.Context, username string) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.accounts.Logout(ctx, username)
}

// QueryProfile reads a profile on behalf of caller
func (e *Engine) QueryProfile(ctx context.Context, caller, username string) (*models.Profile, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.accounts.QueryProfile(ctx, caller, username)
}

// ModifyProfile updates a profile on behalf of caller
func (e *Engine) ModifyProfile(ctx context.Context, caller, username string, update models.ProfileUpdate) (*models.Profile, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.accounts.ModifyProfile(ctx, caller, username, update)
}

// AddTrain stores a new unreleased train
func (e *Engine) AddTrain(ctx context.Context, t *models.Train) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.catalog.AddTrain(ctx, t)
}

// ReleaseTrain opens a train for sale
func (e *Engine) ReleaseTrain(ctx context.Context, trainID string) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.catalog.ReleaseTrain(ctx, trainID)
}

// DeleteTrain removes an unreleased train
func (e *Engine) DeleteTrain(ctx context.Context, trainID string) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.catalog.DeleteTrain(ctx, trainID)
}

// QueryTrain returns the timetable of one run
func (e *Engine) QueryTrain(ctx context.Context, trainID string, runDate models.Date) (*models.TrainSchedule, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.queries.QueryTrain(ctx, trainID, runDate)
}

// QueryTicket lists direct itineraries
func (e *Engine) QueryTicket(ctx context.Context, from, to string, date models.Date, sortKey models.SortKey) ([]models.TicketResult, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.queries.QueryTicket(ctx, from, to, date, sortKey)
}

// QueryTransfer lists one-change itineraries
func (e *Engine) QueryTransfer(ctx context.Context, from, to string, date models.Date, sortKey models.SortKey) ([]models.TransferResult, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.queries.QueryTransfer(ctx, from, to, date, sortKey)
}

// BuyTicket purchases or queues seats
func (e *Engine) BuyTicket(ctx context.Context, req models.BuyRequest) (*BuyResult, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.bookings.Buy(ctx, req)
}

// RefundTicket refunds the user's n-th most recent order
func (e *Engine) RefundTicket(ctx context.Context, username string, n int) (*models.Order, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.bookings.Refund(ctx, username, n)
}

// WithdrawOrder cancels the user's n-th most recent order while it is pending
func (e *Engine) WithdrawOrder(ctx context.Context, username string, n int) (*models.Order, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.bookings.Withdraw(ctx, username, n)
}

// QueryOrder lists the user's orders newest first
func (e *Engine) QueryOrder(ctx context.Context, username string) ([]models.Order, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.bookings.Orders(ctx, username)
}

// Clean erases all users, sessions, trains, seats and orders
func (e *Engine) Clean(ctx context.Context) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	if err := e.store.Truncate(ctx); err != nil {
		return storageFailure("truncate", err)
	}
	if err := e.sessions.Reset(ctx); err != nil {
		return storageFailure("reset sessions", err)
	}
	e.reset()

	e.logger.Warn("Engine state cleaned")
	return nil
}

func (e *Engine) reset() {
	e.accounts.reset()
	e.catalog.reset()
	e.ledger.reset()
	e.orders.reset()
}

// Restore replaces in-memory state with the store's contents. Sessions are
// not part of the snapshot; the session table is reset.
func (e *Engine) Restore(ctx context.Context) error {
	e.gate.Lock()
	defer e.gate.Unlock()

	snap, err := e.store.Load(ctx)
	if err != nil {
		return storageFailure("load snapshot", err)
	}
	if err := e.sessions.Reset(ctx); err != nil {
		return storageFailure("reset sessions", err)
	}

	e.reset()
	e.accounts.restore(snap.Users)
	e.catalog.restore(snap.Trains)
	stale := 0
	for _, row := range snap.Seats {
		if !e.ledger.restoreSeats(row) {
			stale++
		}
	}
	recs := e.orders.restore(snap.Orders)
	pending := e.bookings.restorePending(recs)

	fields := logrus.Fields{
		"users":   len(snap.Users),
		"trains":  len(snap.Trains),
		"orders":  len(snap.Orders),
		"pending": pending,
	}
	if stale > 0 {
		fields["stale_seat_rows"] = stale
		e.logger.WithFields(fields).Warn("Engine state restored with unmatched seat rows")
		return nil
	}
	e.logger.WithFields(fields).Info("Engine state restored")
	return nil
}

// Stats reports entity counts for health checks
func (e *Engine) Stats() map[string]int {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return map[string]int{
		"users":  e.accounts.count(),
		"trains": e.catalog.count(),
	}
}
