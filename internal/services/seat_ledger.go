package services

import (
	"sync"

	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

type runKey struct {
	trainID string
	date    models.Date
}

// run is one train on one departure date. mu guards seats and queue; every
// buy, refund and withdrawal on the run holds it for the whole transition.
type run struct {
	mu    sync.Mutex
	seats []int
	queue pendingQueue
}

func newRun(legs, capacity int) *run {
	seats := make([]int, legs)
	for i := range seats {
		seats[i] = capacity
	}
	return &run{seats: seats}
}

// available is the seat count purchasable across legs [from, to). Callers
// hold r.mu.
func (r *run) available(from, to int) int {
	return minSeats(r.seats, from, to)
}

// remaining copies the per-leg counts under the run lock
func (r *run) remaining() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.seats...)
}

func minSeats(seats []int, from, to int) int {
	m := seats[from]
	for i := from + 1; i < to; i++ {
		if seats[i] < m {
			m = seats[i]
		}
	}
	return m
}

func adjustSeats(seats []int, from, to, delta int) {
	for i := from; i < to; i++ {
		seats[i] += delta
	}
}

// SeatLedger holds the remaining seats of every released run
type SeatLedger struct {
	mu   sync.RWMutex
	runs map[runKey]*run
}

// NewSeatLedger creates an empty ledger
func NewSeatLedger() *SeatLedger {
	return &SeatLedger{runs: make(map[runKey]*run)}
}

// Materialize creates a full-capacity run for each date in the sale window
func (l *SeatLedger) Materialize(t *models.Train) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for d := t.SaleStart; d <= t.SaleEnd; d++ {
		l.runs[runKey{t.ID, d}] = newRun(t.LegCount(), t.SeatCapacity)
	}
}

func (l *SeatLedger) run(trainID string, date models.Date) (*run, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.runs[runKey{trainID, date}]
	return r, ok
}

// Available returns the purchasable count across [from, to) of a run
func (l *SeatLedger) Available(trainID string, date models.Date, from, to int) (int, bool) {
	r, ok := l.run(trainID, date)
	if !ok {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available(from, to), true
}

// Remaining returns a copy of the per-leg counts of a run
func (l *SeatLedger) Remaining(trainID string, date models.Date) ([]int, bool) {
	r, ok := l.run(trainID, date)
	if !ok {
		return nil, false
	}
	return r.remaining(), true
}

// restoreSeats overwrites one leg count from persisted state
func (l *SeatLedger) restoreSeats(row models.SeatRow) bool {
	r, ok := l.run(row.TrainID, row.RunDate)
	if !ok || row.Leg < 0 || row.Leg >= len(r.seats) {
		return false
	}
	r.seats[row.Leg] = row.Remaining
	return true
}

func (l *SeatLedger) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = make(map[runKey]*run)
}
