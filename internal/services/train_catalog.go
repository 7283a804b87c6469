package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// trainEntry is a catalog record plus lookup tables derived from it. The
// train itself never changes after add_train.
type trainEntry struct {
	train     *models.Train
	released  atomic.Bool
	stationAt map[string]int
	fareUpTo  []int64 // fareUpTo[i] is the fare from the origin to station i
}

func newTrainEntry(t *models.Train) *trainEntry {
	e := &trainEntry{
		train:     t,
		stationAt: make(map[string]int, len(t.Stations)),
		fareUpTo:  make([]int64, len(t.Stations)),
	}
	for i, s := range t.Stations {
		e.stationAt[s] = i
		if i > 0 {
			e.fareUpTo[i] = e.fareUpTo[i-1] + t.Prices[i-1]
		}
	}
	e.released.Store(t.Released)
	return e
}

func (e *trainEntry) fare(from, to int) int64 {
	return e.fareUpTo[to] - e.fareUpTo[from]
}

// departMinute is the departure from station i counted from the start of
// the run date. arriveMinute likewise for arrivals.
func (e *trainEntry) departMinute(i int) int {
	return int(e.train.StartTime) + e.train.DepartOffsets[i]
}

func (e *trainEntry) arriveMinute(i int) int {
	return int(e.train.StartTime) + e.train.ArriveOffsets[i]
}

// runDateFor maps the day a passenger boards at station i to the day the
// train left its origin.
func (e *trainEntry) runDateFor(boarding models.Date, i int) models.Date {
	return boarding.AddDays(-(e.departMinute(i) / models.MinutesPerDay))
}

// snapshot returns a copy of the train with its current release flag
func (e *trainEntry) snapshot() models.Train {
	t := *e.train
	t.Released = e.released.Load()
	return t
}

type stationStop struct {
	entry *trainEntry
	index int
}

// TrainCatalog owns train records and the station index of released trains
type TrainCatalog struct {
	mu        sync.RWMutex
	trains    map[string]*trainEntry
	byStation map[string][]stationStop
	locks     keyedMutex
	ledger    *SeatLedger
	store     Store
	logger    *logrus.Logger
}

// NewTrainCatalog creates an empty catalog
func NewTrainCatalog(ledger *SeatLedger, store Store, logger *logrus.Logger) *TrainCatalog {
	return &TrainCatalog{
		trains:    make(map[string]*trainEntry),
		byStation: make(map[string][]stationStop),
		ledger:    ledger,
		store:     store,
		logger:    logger,
	}
}

func (c *TrainCatalog) get(trainID string) (*trainEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.trains[trainID]
	return e, ok
}

// stopsAt lists released trains calling at a station
func (c *TrainCatalog) stopsAt(station string) []stationStop {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]stationStop(nil), c.byStation[station]...)
}

// AddTrain stores an unreleased train
func (c *TrainCatalog) AddTrain(ctx context.Context, t *models.Train) error {
	if err := t.Validate(); err != nil {
		return invalidArgument(err)
	}

	unlock := c.locks.Lock(t.ID)
	defer unlock()

	if _, exists := c.get(t.ID); exists {
		return fmt.Errorf("%w: train %s", ErrDuplicate, t.ID)
	}

	record := *t
	record.Released = false
	if err := c.store.CreateTrain(ctx, &record); err != nil {
		return storageFailure("create train", err)
	}

	c.mu.Lock()
	c.trains[record.ID] = newTrainEntry(&record)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"train_id":   record.ID,
		"stations":   len(record.Stations),
		"sale_start": record.SaleStart.String(),
		"sale_end":   record.SaleEnd.String(),
	}).Info("Train added")
	return nil
}

// ReleaseTrain opens a train for sale and search
func (c *TrainCatalog) ReleaseTrain(ctx context.Context, trainID string) error {
	unlock := c.locks.Lock(trainID)
	defer unlock()

	e, ok := c.get(trainID)
	if !ok {
		return fmt.Errorf("%w: train %s", ErrNotFound, trainID)
	}
	if e.released.Load() {
		return fmt.Errorf("%w: %s", ErrAlreadyReleased, trainID)
	}

	if err := c.store.ReleaseTrain(ctx, e.train); err != nil {
		return storageFailure("release train", err)
	}

	c.ledger.Materialize(e.train)
	c.mu.Lock()
	e.released.Store(true)
	c.index(e)
	c.mu.Unlock()

	c.logger.WithField("train_id", trainID).Info("Train released")
	return nil
}

// DeleteTrain removes an unreleased train
func (c *TrainCatalog) DeleteTrain(ctx context.Context, trainID string) error {
	unlock := c.locks.Lock(trainID)
	defer unlock()

	e, ok := c.get(trainID)
	if !ok {
		return fmt.Errorf("%w: train %s", ErrNotFound, trainID)
	}
	if e.released.Load() {
		return fmt.Errorf("%w: %s cannot be deleted", ErrAlreadyReleased, trainID)
	}

	if err := c.store.DeleteTrain(ctx, trainID); err != nil {
		return storageFailure("delete train", err)
	}

	c.mu.Lock()
	delete(c.trains, trainID)
	c.mu.Unlock()

	c.logger.WithField("train_id", trainID).Info("Train deleted")
	return nil
}

// index adds a released train to the station index. Callers hold c.mu.
func (c *TrainCatalog) index(e *trainEntry) {
	for i, s := range e.train.Stations {
		stops := append(c.byStation[s], stationStop{entry: e, index: i})
		sort.Slice(stops, func(a, b int) bool { return stops[a].entry.train.ID < stops[b].entry.train.ID })
		c.byStation[s] = stops
	}
}

// restore rebuilds the catalog and materializes runs of released trains
func (c *TrainCatalog) restore(trains []models.Train) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trains = make(map[string]*trainEntry, len(trains))
	c.byStation = make(map[string][]stationStop)
	for i := range trains {
		t := trains[i]
		e := newTrainEntry(&t)
		c.trains[t.ID] = e
		if t.Released {
			c.ledger.Materialize(&t)
			c.index(e)
		}
	}
}

func (c *TrainCatalog) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trains = make(map[string]*trainEntry)
	c.byStation = make(map[string][]stationStop)
}

func (c *TrainCatalog) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.trains)
}
