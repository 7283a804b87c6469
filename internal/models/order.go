package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusSuccess   OrderStatus = "success"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusWithdrawn OrderStatus = "withdrawn"
)

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusRefunded || s == OrderStatusWithdrawn
}

// Order is a purchase attempt by one user on one run of a train.
// Seq orders all purchases engine-wide and drives pending-queue order.
type Order struct {
	ID        uuid.UUID   `json:"order_id" db:"id"`
	Seq       int64       `json:"-" db:"seq"`
	Username  string      `json:"username" db:"username"`
	TrainID   string      `json:"train_id" db:"train_id"`
	RunDate   Date        `json:"run_date" db:"run_date"`
	From      string      `json:"from" db:"from_station"`
	To        string      `json:"to" db:"to_station"`
	FromIndex int         `json:"-" db:"from_index"`
	ToIndex   int         `json:"-" db:"to_index"`
	Departure time.Time   `json:"departure" db:"departure_at"`
	Arrival   time.Time   `json:"arrival" db:"arrival_at"`
	Seats     int         `json:"seats" db:"seats"`
	UnitPrice int64       `json:"unit_price" db:"unit_price"`
	Price     int64       `json:"price" db:"total_price"`
	Status    OrderStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// BuyRequest is the payload of buy_ticket. Date is the day the passenger
// boards at From.
type BuyRequest struct {
	Username string `json:"username"`
	TrainID  string `json:"train_id" binding:"required"`
	Date     Date   `json:"date" binding:"required"`
	From     string `json:"from" binding:"required"`
	To       string `json:"to" binding:"required"`
	Seats    int    `json:"seats" binding:"required"`
	Queue    bool   `json:"queue"`
}

// Validate checks shape only; capacity is checked against the train
func (r *BuyRequest) Validate() error {
	if r.Seats < 1 {
		return errors.New("seats must be at least 1")
	}
	return nil
}

// OrderEventType names a ledger transition
type OrderEventType string

const (
	OrderEventPurchased OrderEventType = "order.purchased"
	OrderEventQueued    OrderEventType = "order.queued"
	OrderEventRefunded  OrderEventType = "order.refunded"
	OrderEventPromoted  OrderEventType = "order.promoted"
	OrderEventWithdrawn OrderEventType = "order.withdrawn"
)

// OrderEvent is emitted after a transition has been committed
type OrderEvent struct {
	Type       OrderEventType `json:"type"`
	Order      Order          `json:"order"`
	OccurredAt time.Time      `json:"occurred_at"`
}
