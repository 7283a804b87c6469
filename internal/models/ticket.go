package models

import (
	"fmt"
	"strings"
	"time"
)

// SortKey selects the ordering of query results
type SortKey string

const (
	SortByTime SortKey = "time"
	SortByCost SortKey = "cost"
)

// ParseSortKey accepts time/cost and their synonyms duration/price.
// An empty value defaults to time.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "time", "duration":
		return SortByTime, nil
	case "cost", "price":
		return SortByCost, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// TicketResult is one direct itinerary
type TicketResult struct {
	TrainID         string    `json:"train_id"`
	RunDate         Date      `json:"run_date"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Departure       time.Time `json:"departure"`
	Arrival         time.Time `json:"arrival"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           int64     `json:"price"`
	Seats           int       `json:"seats"`
}

// TransferResult is a two-train itinerary changing at Interchange
type TransferResult struct {
	First        TicketResult `json:"first"`
	Second       TicketResult `json:"second"`
	Interchange  string       `json:"interchange"`
	TotalPrice   int64        `json:"total_price"`
	TotalMinutes int          `json:"total_minutes"`
}

// SeatRow is the persisted remaining count of one leg of one run
type SeatRow struct {
	TrainID   string `db:"train_id"`
	RunDate   Date   `db:"run_date"`
	Leg       int    `db:"leg"`
	Remaining int    `db:"remaining"`
}

// Snapshot is the full persisted engine state
type Snapshot struct {
	Users  []User
	Trains []Train
	Seats  []SeatRow
	Orders []Order
}
