package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// TransferPolicy shapes query_transfer results
type TransferPolicy struct {
	// OnePerInterchange keeps only the best pair through each station
	OnePerInterchange bool
	// Limit caps the result count; zero means no cap
	Limit int
}

// DefaultTransferPolicy returns one best option per interchange, uncapped
func DefaultTransferPolicy() TransferPolicy {
	return TransferPolicy{OnePerInterchange: true}
}

// QueryEngine answers read-only timetable and availability questions
type QueryEngine struct {
	catalog *TrainCatalog
	ledger  *SeatLedger
	policy  TransferPolicy
	logger  *logrus.Logger
}

// NewQueryEngine creates a query engine over the catalog and ledger
func NewQueryEngine(catalog *TrainCatalog, ledger *SeatLedger, policy TransferPolicy, logger *logrus.Logger) *QueryEngine {
	return &QueryEngine{
		catalog: catalog,
		ledger:  ledger,
		policy:  policy,
		logger:  logger,
	}
}

// QueryTrain returns the timetable of the run leaving its origin on runDate.
// Unreleased trains report full capacity on every leg.
func (q *QueryEngine) QueryTrain(_ context.Context, trainID string, runDate models.Date) (*models.TrainSchedule, error) {
	e, ok := q.catalog.get(trainID)
	if !ok {
		return nil, fmt.Errorf("%w: train %s", ErrNotFound, trainID)
	}
	t := e.train
	if !t.OnSale(runDate) {
		return nil, fmt.Errorf("%w: %s does not run on %s", ErrNotFound, trainID, runDate)
	}

	released := e.released.Load()
	var seats []int
	if released {
		seats, ok = q.ledger.Remaining(trainID, runDate)
		if !ok {
			return nil, fmt.Errorf("%w: run %s on %s", ErrNotFound, trainID, runDate)
		}
	}

	last := len(t.Stations) - 1
	stops := make([]models.TrainStop, len(t.Stations))
	for i, station := range t.Stations {
		stop := models.TrainStop{Station: station, Price: e.fareUpTo[i]}
		if i > 0 {
			at := runDate.At(e.arriveMinute(i))
			stop.Arrival = &at
		}
		if i < last {
			at := runDate.At(e.departMinute(i))
			stop.Departure = &at
			n := t.SeatCapacity
			if released {
				n = seats[i]
			}
			stop.Seats = &n
		}
		stops[i] = stop
	}

	return &models.TrainSchedule{
		TrainID:  t.ID,
		Type:     t.Type,
		RunDate:  runDate,
		Released: released,
		Stops:    stops,
	}, nil
}

// ticket describes one leg range of one run before seats are looked up
type ticket struct {
	entry   *trainEntry
	runDate models.Date
	from    int
	to      int
}

func (tk ticket) departAt() int64 {
	return tk.runDate.Minutes() + int64(tk.entry.departMinute(tk.from))
}

func (tk ticket) arriveAt() int64 {
	return tk.runDate.Minutes() + int64(tk.entry.arriveMinute(tk.to))
}

func (tk ticket) price() int64 {
	return tk.entry.fare(tk.from, tk.to)
}

func (tk ticket) trainID() string {
	return tk.entry.train.ID
}

func (q *QueryEngine) result(tk ticket) models.TicketResult {
	seats, _ := q.ledger.Available(tk.trainID(), tk.runDate, tk.from, tk.to)
	return models.TicketResult{
		TrainID:         tk.trainID(),
		RunDate:         tk.runDate,
		From:            tk.entry.train.Stations[tk.from],
		To:              tk.entry.train.Stations[tk.to],
		Departure:       tk.runDate.At(tk.entry.departMinute(tk.from)),
		Arrival:         tk.runDate.At(tk.entry.arriveMinute(tk.to)),
		DurationMinutes: int(tk.arriveAt() - tk.departAt()),
		Price:           tk.price(),
		Seats:           seats,
	}
}

// directTickets lists released runs boarding at from on the given day and
// later calling at to
func (q *QueryEngine) directTickets(from, to string, date models.Date) []ticket {
	var out []ticket
	for _, stop := range q.catalog.stopsAt(from) {
		e := stop.entry
		toIdx, ok := e.stationAt[to]
		if !ok || toIdx <= stop.index {
			continue
		}
		runDate := e.runDateFor(date, stop.index)
		if !e.train.OnSale(runDate) {
			continue
		}
		out = append(out, ticket{entry: e, runDate: runDate, from: stop.index, to: toIdx})
	}
	return out
}

// QueryTicket lists direct itineraries boarding at from on date. No train
// runs from a station to itself, so from == to yields no results.
func (q *QueryEngine) QueryTicket(_ context.Context, from, to string, date models.Date, sortKey models.SortKey) ([]models.TicketResult, error) {
	tickets := q.directTickets(from, to, date)
	sort.Slice(tickets, func(i, j int) bool {
		return lessTicket(tickets[i], tickets[j], sortKey)
	})

	results := make([]models.TicketResult, len(tickets))
	for i, tk := range tickets {
		results[i] = q.result(tk)
	}

	q.logger.WithFields(logrus.Fields{
		"from":    from,
		"to":      to,
		"date":    date.String(),
		"results": len(results),
	}).Debug("Ticket query")
	return results, nil
}

func lessTicket(a, b ticket, key models.SortKey) bool {
	da, db := a.arriveAt()-a.departAt(), b.arriveAt()-b.departAt()
	pa, pb := a.price(), b.price()
	if key == models.SortByCost {
		if pa != pb {
			return pa < pb
		}
	} else if da != db {
		return da < db
	}
	return a.trainID() < b.trainID()
}

type transfer struct {
	first       ticket
	second      ticket
	interchange string
}

func (t transfer) minutes() int64 {
	return t.second.arriveAt() - t.first.departAt()
}

func (t transfer) price() int64 {
	return t.first.price() + t.second.price()
}

func lessTransfer(a, b transfer, key models.SortKey) bool {
	ma, mb := a.minutes(), b.minutes()
	pa, pb := a.price(), b.price()
	if key == models.SortByCost {
		if pa != pb {
			return pa < pb
		}
		if ma != mb {
			return ma < mb
		}
	} else {
		if ma != mb {
			return ma < mb
		}
		if pa != pb {
			return pa < pb
		}
	}
	if a.first.trainID() != b.first.trainID() {
		return a.first.trainID() < b.first.trainID()
	}
	if a.second.trainID() != b.second.trainID() {
		return a.second.trainID() < b.second.trainID()
	}
	return a.interchange < b.interchange
}

type feeder struct {
	entry *trainEntry
	from  int // interchange position on the second train
	to    int
}

// QueryTransfer finds two-train itineraries from -> X -> to. The first
// train boards at from on date; the second is the earliest run of a
// different train leaving X no earlier than the first one arrives.
func (q *QueryEngine) QueryTransfer(_ context.Context, from, to string, date models.Date, sortKey models.SortKey) ([]models.TransferResult, error) {
	if from == to {
		return []models.TransferResult{}, nil
	}

	feeders := make(map[string][]feeder)
	for _, stop := range q.catalog.stopsAt(to) {
		for k := 0; k < stop.index; k++ {
			name := stop.entry.train.Stations[k]
			feeders[name] = append(feeders[name], feeder{entry: stop.entry, from: k, to: stop.index})
		}
	}

	best := make(map[string]transfer)
	var all []transfer
	consider := func(t transfer) {
		if !q.policy.OnePerInterchange {
			all = append(all, t)
			return
		}
		if cur, ok := best[t.interchange]; !ok || lessTransfer(t, cur, sortKey) {
			best[t.interchange] = t
		}
	}

	for _, stop := range q.catalog.stopsAt(from) {
		a := stop.entry
		runA := a.runDateFor(date, stop.index)
		if !a.train.OnSale(runA) {
			continue
		}
		for j := stop.index + 1; j < len(a.train.Stations); j++ {
			x := a.train.Stations[j]
			for _, f := range feeders[x] {
				if f.entry == a {
					continue
				}
				first := ticket{entry: a, runDate: runA, from: stop.index, to: j}
				runB, ok := earliestRun(f.entry, f.from, first.arriveAt())
				if !ok {
					continue
				}
				consider(transfer{
					first:       first,
					second:      ticket{entry: f.entry, runDate: runB, from: f.from, to: f.to},
					interchange: x,
				})
			}
		}
	}

	if q.policy.OnePerInterchange {
		for _, t := range best {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return lessTransfer(all[i], all[j], sortKey) })
	if q.policy.Limit > 0 && len(all) > q.policy.Limit {
		all = all[:q.policy.Limit]
	}

	results := make([]models.TransferResult, len(all))
	for i, t := range all {
		results[i] = models.TransferResult{
			First:        q.result(t.first),
			Second:       q.result(t.second),
			Interchange:  t.interchange,
			TotalPrice:   t.price(),
			TotalMinutes: int(t.minutes()),
		}
	}

	q.logger.WithFields(logrus.Fields{
		"from":    from,
		"to":      to,
		"date":    date.String(),
		"results": len(results),
	}).Debug("Transfer query")
	return results, nil
}

// earliestRun picks the first run of e whose departure from station i is
// at or after the absolute minute notBefore
func earliestRun(e *trainEntry, i int, notBefore int64) (models.Date, bool) {
	offset := int64(e.departMinute(i))
	need := notBefore - offset
	// ceiling division; Go truncates toward zero, which already rounds
	// negative quotients up
	day := need / models.MinutesPerDay
	if need%models.MinutesPerDay > 0 {
		day++
	}
	d := models.Date(day)
	if d < e.train.SaleStart {
		d = e.train.SaleStart
	}
	if d > e.train.SaleEnd {
		return 0, false
	}
	return d, true
}
