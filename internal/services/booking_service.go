package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// BuyOutcome tells a filled purchase from a queued one
type BuyOutcome string

const (
	BuyPurchased BuyOutcome = "purchased"
	BuyQueued    BuyOutcome = "queued"
)

// BuyResult is returned by a successful buy_ticket call
type BuyResult struct {
	Outcome BuyOutcome   `json:"outcome"`
	Order   models.Order `json:"order"`
	// Price is charged only for a purchase; a queued order carries its
	// prospective amount on Order.Price
	Price int64 `json:"price"`
}

// BookingService moves seats between the ledger and user orders
type BookingService struct {
	accounts *AccountDirectory
	catalog  *TrainCatalog
	ledger   *SeatLedger
	orders   *OrderBook
	store    Store
	notifier Notifier
	now      func() time.Time
	logger   *logrus.Logger
}

// NewBookingService wires the booking flow
func NewBookingService(
	accounts *AccountDirectory,
	catalog *TrainCatalog,
	ledger *SeatLedger,
	orders *OrderBook,
	store Store,
	notifier Notifier,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		accounts: accounts,
		catalog:  catalog,
		ledger:   ledger,
		orders:   orders,
		store:    store,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *BookingService) emit(kind models.OrderEventType, orders ...models.Order) {
	at := s.now().UTC()
	for _, o := range orders {
		s.notifier.Notify(models.OrderEvent{Type: kind, Order: o, OccurredAt: at})
	}
}

// Buy reserves seats on the run that reaches req.From on req.Date. When
// seats are short it fails with ErrSoldOut, or queues the order if asked to.
func (s *BookingService) Buy(ctx context.Context, req models.BuyRequest) (*BuyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, invalidArgument(err)
	}
	if _, err := s.accounts.RequireSession(ctx, req.Username); err != nil {
		return nil, err
	}

	e, ok := s.catalog.get(req.TrainID)
	if !ok {
		return nil, fmt.Errorf("%w: train %s", ErrNotFound, req.TrainID)
	}
	if !e.released.Load() {
		return nil, fmt.Errorf("%w: train %s is not released", ErrInvalidState, req.TrainID)
	}
	from, okFrom := e.stationAt[req.From]
	to, okTo := e.stationAt[req.To]
	if !okFrom || !okTo || from >= to {
		return nil, fmt.Errorf("%w: %s does not run from %s to %s", ErrNotFound, req.TrainID, req.From, req.To)
	}
	if req.Seats > e.train.SeatCapacity {
		return nil, fmt.Errorf("%w: %d seats exceeds capacity %d", ErrInvalidArgument, req.Seats, e.train.SeatCapacity)
	}

	runDate := e.runDateFor(req.Date, from)
	r, ok := s.ledger.run(req.TrainID, runDate)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no run boarding %s on %s", ErrNotFound, req.TrainID, req.From, req.Date)
	}

	unit := e.fare(from, to)
	order := models.Order{
		ID:        uuid.New(),
		Username:  req.Username,
		TrainID:   req.TrainID,
		RunDate:   runDate,
		From:      req.From,
		To:        req.To,
		FromIndex: from,
		ToIndex:   to,
		Departure: runDate.At(e.departMinute(from)),
		Arrival:   runDate.At(e.arriveMinute(to)),
		Seats:     req.Seats,
		UnitPrice: unit,
		Price:     unit * int64(req.Seats),
		CreatedAt: s.now().UTC(),
	}

	r.mu.Lock()
	switch {
	case r.available(from, to) >= req.Seats:
		order.Status = models.OrderStatusSuccess
	case req.Queue:
		order.Status = models.OrderStatusPending
	default:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s on %s has fewer than %d seats from %s to %s",
			ErrSoldOut, req.TrainID, runDate, req.Seats, req.From, req.To)
	}
	order.Seq = s.orders.nextSeq()

	if err := s.store.SavePurchase(ctx, &order); err != nil {
		r.mu.Unlock()
		return nil, storageFailure("save purchase", err)
	}

	rec := newOrderRecord(order)
	if order.Status == models.OrderStatusSuccess {
		adjustSeats(r.seats, from, to, -req.Seats)
	} else {
		r.queue.push(rec)
	}
	s.orders.append(rec)
	r.mu.Unlock()

	result := &BuyResult{Order: order}
	event := models.OrderEventPurchased
	if order.Status == models.OrderStatusSuccess {
		result.Outcome = BuyPurchased
		result.Price = order.Price
	} else {
		result.Outcome = BuyQueued
		event = models.OrderEventQueued
	}
	s.emit(event, order)

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID.String(),
		"username": order.Username,
		"train_id": order.TrainID,
		"run_date": order.RunDate.String(),
		"seats":    order.Seats,
		"outcome":  result.Outcome,
	}).Info("Ticket bought")

	return result, nil
}

// Refund returns the seats of the user's n-th most recent order (1-based)
// and fills whichever pending orders on the same run now fit.
func (s *BookingService) Refund(ctx context.Context, username string, n int) (*models.Order, error) {
	if _, err := s.accounts.RequireSession(ctx, username); err != nil {
		return nil, err
	}
	rec, err := s.orders.nthRecent(username, n)
	if err != nil {
		return nil, err
	}
	r, ok := s.ledger.run(rec.order.TrainID, rec.order.RunDate)
	if !ok {
		return nil, fmt.Errorf("%w: run of order %s", ErrNotFound, rec.order.ID)
	}

	r.mu.Lock()
	switch rec.Status() {
	case models.OrderStatusSuccess:
	case models.OrderStatusPending:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: order %s is pending, withdraw it instead", ErrInvalidState, rec.order.ID)
	default:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: order %s is already %s", ErrInvalidState, rec.order.ID, rec.Status())
	}

	seats := append([]int(nil), r.seats...)
	adjustSeats(seats, rec.order.FromIndex, rec.order.ToIndex, rec.order.Seats)
	filled := r.queue.replay(seats)

	refunded := rec.withStatus(models.OrderStatusRefunded)
	promoted := make([]models.Order, len(filled))
	for i, p := range filled {
		promoted[i] = p.withStatus(models.OrderStatusSuccess)
	}
	if err := s.store.SaveRefund(ctx, &refunded, promoted); err != nil {
		r.mu.Unlock()
		return nil, storageFailure("save refund", err)
	}

	r.seats = seats
	rec.setStatus(models.OrderStatusRefunded)
	for _, p := range filled {
		p.setStatus(models.OrderStatusSuccess)
	}
	r.queue.remove(filled...)
	r.mu.Unlock()

	s.emit(models.OrderEventRefunded, refunded)
	s.emit(models.OrderEventPromoted, promoted...)

	s.logger.WithFields(logrus.Fields{
		"order_id": refunded.ID.String(),
		"username": username,
		"train_id": refunded.TrainID,
		"promoted": len(promoted),
	}).Info("Ticket refunded")

	return &refunded, nil
}

// Withdraw takes the user's n-th most recent order out of the pending queue
func (s *BookingService) Withdraw(ctx context.Context, username string, n int) (*models.Order, error) {
	if _, err := s.accounts.RequireSession(ctx, username); err != nil {
		return nil, err
	}
	rec, err := s.orders.nthRecent(username, n)
	if err != nil {
		return nil, err
	}
	r, ok := s.ledger.run(rec.order.TrainID, rec.order.RunDate)
	if !ok {
		return nil, fmt.Errorf("%w: run of order %s", ErrNotFound, rec.order.ID)
	}

	r.mu.Lock()
	if status := rec.Status(); status != models.OrderStatusPending {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: order %s is %s, only pending orders can be withdrawn", ErrInvalidState, rec.order.ID, status)
	}
	withdrawn := rec.withStatus(models.OrderStatusWithdrawn)
	if err := s.store.SaveWithdrawal(ctx, &withdrawn); err != nil {
		r.mu.Unlock()
		return nil, storageFailure("save withdrawal", err)
	}
	rec.setStatus(models.OrderStatusWithdrawn)
	r.queue.remove(rec)
	r.mu.Unlock()

	s.emit(models.OrderEventWithdrawn, withdrawn)
	s.logger.WithFields(logrus.Fields{
		"order_id": withdrawn.ID.String(),
		"username": username,
	}).Info("Pending order withdrawn")

	return &withdrawn, nil
}

// Orders lists the user's orders newest first
func (s *BookingService) Orders(ctx context.Context, username string) ([]models.Order, error) {
	if _, err := s.accounts.RequireSession(ctx, username); err != nil {
		return nil, err
	}
	return s.orders.list(username), nil
}

// restorePending puts persisted pending orders back into their run queues.
// recs must be in seq order.
func (s *BookingService) restorePending(recs []*orderRecord) int {
	restored := 0
	for _, rec := range recs {
		if rec.Status() != models.OrderStatusPending {
			continue
		}
		r, ok := s.ledger.run(rec.order.TrainID, rec.order.RunDate)
		if !ok {
			s.logger.WithField("order_id", rec.order.ID.String()).Warn("Pending order refers to a missing run")
			continue
		}
		r.queue.push(rec)
		restored++
	}
	return restored
}
