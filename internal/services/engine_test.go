package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(t *testing.T, opts ...func(*EngineConfig)) *Engine {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.Accounts.BcryptCost = bcrypt.MinCost
	cfg.Clock = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewEngine(cfg, testLogger())
}

func withStore(s Store) func(*EngineConfig) {
	return func(c *EngineConfig) { c.Store = s }
}

func addUser(t *testing.T, e *Engine, caller, username string, privilege int) {
	t.Helper()
	_, err := e.AddUser(context.Background(), models.NewUserRequest{
		Caller:    caller,
		Username:  username,
		Password:  username + "-pw",
		Name:      username,
		Mail:      username + "@example.com",
		Privilege: privilege,
	})
	require.NoError(t, err)
}

func login(t *testing.T, e *Engine, username string) {
	t.Helper()
	require.NoError(t, e.Login(context.Background(), username, username+"-pw"))
}

// t1Train is A -> B -> C with two seats per leg, 08:00 departure,
// on sale 2024-01-01 to 2024-01-03.
func t1Train() *models.Train {
	return &models.Train{
		ID:            "T1",
		Type:          "G",
		Stations:      models.StringArray{"A", "B", "C"},
		SeatCapacity:  2,
		Prices:        models.Int64Array{10, 20},
		StartTime:     8 * 60,
		ArriveOffsets: models.IntArray{0, 60, 150},
		DepartOffsets: models.IntArray{0, 70, 0},
		SaleStart:     models.MustParseDate("2024-01-01"),
		SaleEnd:       models.MustParseDate("2024-01-03"),
	}
}

func addReleased(t *testing.T, e *Engine, train *models.Train) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.AddTrain(ctx, train))
	require.NoError(t, e.ReleaseTrain(ctx, train.ID))
}

// setupT1 registers root plus the given users, logs everyone in and
// releases T1
func setupT1(t *testing.T, users ...string) *Engine {
	t.Helper()
	e := newTestEngine(t)
	addUser(t, e, "", "root", 10)
	login(t, e, "root")
	for _, u := range users {
		addUser(t, e, "root", u, 1)
		login(t, e, u)
	}
	addReleased(t, e, t1Train())
	return e
}

func seatsOf(t *testing.T, e *Engine, trainID, date string) []int {
	t.Helper()
	seats, ok := e.ledger.Remaining(trainID, models.MustParseDate(date))
	require.True(t, ok)
	return seats
}

func TestEngine_CleanWipesEverything(t *testing.T) {
	ctx := context.Background()
	e := setupT1(t, "u1")
	_, err := e.BuyTicket(ctx, models.BuyRequest{Username: "u1", TrainID: "T1", Date: models.MustParseDate("2024-01-01"), From: "A", To: "C", Seats: 1})
	require.NoError(t, err)

	require.NoError(t, e.Clean(ctx))

	assert.Equal(t, map[string]int{"users": 0, "trains": 0}, e.Stats())
	_, err = e.QueryTrain(ctx, "T1", models.MustParseDate("2024-01-01"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.QueryOrder(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	// directory is empty again, so the next account bootstraps
	profile, err := e.AddUser(ctx, models.NewUserRequest{Username: "fresh", Password: "pw", Name: "F", Mail: "f@example.com", Privilege: 2})
	require.NoError(t, err)
	assert.Equal(t, 10, profile.Privilege)
}

func TestEngine_CleanStorageFailure(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, withStore(store))
	addUser(t, e, "", "root", 10)

	store.fail = errors.New("disk full")
	err := e.Clean(context.Background())
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 1, e.Stats()["users"])
}

func TestEngine_RestoreRebuildsState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	day := models.MustParseDate("2024-01-01")

	first := newTestEngine(t, withStore(store))
	addUser(t, first, "", "root", 10)
	login(t, first, "root")
	for _, u := range []string{"u1", "u2"} {
		addUser(t, first, "root", u, 1)
		login(t, first, u)
	}
	addReleased(t, first, t1Train())
	unreleased := t1Train()
	unreleased.ID = "T9"
	require.NoError(t, first.AddTrain(ctx, unreleased))

	_, err := first.BuyTicket(ctx, models.BuyRequest{Username: "u1", TrainID: "T1", Date: day, From: "A", To: "C", Seats: 2})
	require.NoError(t, err)
	queued, err := first.BuyTicket(ctx, models.BuyRequest{Username: "u2", TrainID: "T1", Date: day, From: "A", To: "B", Seats: 1, Queue: true})
	require.NoError(t, err)
	require.Equal(t, BuyQueued, queued.Outcome)

	second := newTestEngine(t, withStore(store))
	require.NoError(t, second.Restore(ctx))

	assert.Equal(t, map[string]int{"users": 3, "trains": 2}, second.Stats())
	assert.Equal(t, []int{0, 0}, seatsOf(t, second, "T1", "2024-01-01"))
	assert.Equal(t, []int{2, 2}, seatsOf(t, second, "T1", "2024-01-02"))

	// sessions are not restored
	_, err = second.QueryOrder(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	login(t, second, "u1")
	login(t, second, "u2")

	// the pending order survived and is promoted by a refund after restart
	_, err = second.RefundTicket(ctx, "u1", 1)
	require.NoError(t, err)
	orders, err := second.QueryOrder(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, queued.Order.ID, orders[0].ID)
	assert.Equal(t, models.OrderStatusSuccess, orders[0].Status)
	assert.Equal(t, []int{1, 2}, seatsOf(t, second, "T1", "2024-01-01"))

	// new orders continue the sequence
	res, err := second.BuyTicket(ctx, models.BuyRequest{Username: "u1", TrainID: "T1", Date: day, From: "B", To: "C", Seats: 1})
	require.NoError(t, err)
	assert.Greater(t, res.Order.Seq, queued.Order.Seq)

	// the store agrees with memory
	assert.Equal(t, []int{1, 1}, store.seatCounts("T1", day))
}

func TestEngine_StorageFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := newTestEngine(t, withStore(store))
	addUser(t, e, "", "root", 10)
	login(t, e, "root")
	addReleased(t, e, t1Train())

	store.fail = errors.New("connection reset")
	_, err := e.BuyTicket(ctx, models.BuyRequest{Username: "root", TrainID: "T1", Date: models.MustParseDate("2024-01-01"), From: "A", To: "C", Seats: 1})
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "STORAGE_FAILURE", ErrorCode(err))
	assert.Equal(t, []int{2, 2}, seatsOf(t, e, "T1", "2024-01-01"))

	orders, err := e.QueryOrder(ctx, "root")
	require.NoError(t, err)
	assert.Empty(t, orders)

	err = e.AddTrain(ctx, func() *models.Train { tr := t1Train(); tr.ID = "T2"; return tr }())
	assert.ErrorIs(t, err, ErrStorage)
	_, err = e.QueryTrain(ctx, "T2", models.MustParseDate("2024-01-01"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "SOLD_OUT", ErrorCode(ErrSoldOut))
	assert.Equal(t, "NOT_FOUND", ErrorCode(joinedWith(ErrNotFound)))
	assert.Equal(t, "INTERNAL_ERROR", ErrorCode(errors.New("boom")))
}

func joinedWith(err error) error {
	return errors.Join(errors.New("context"), err)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	var k keyedMutex
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())
}

// memStore is an in-memory Store that mirrors what the SQL store persists
type memStore struct {
	mu     sync.Mutex
	users  map[string]models.User
	trains map[string]models.Train
	seats  map[runKey][]int
	orders map[string]models.Order
	fail   error
}

func newMemStore() *memStore {
	s := &memStore{}
	s.clear()
	return s
}

func (s *memStore) clear() {
	s.users = make(map[string]models.User)
	s.trains = make(map[string]models.Train)
	s.seats = make(map[runKey][]int)
	s.orders = make(map[string]models.Order)
}

func (s *memStore) seatCounts(trainID string, date models.Date) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.seats[runKey{trainID, date}]...)
}

func (s *memStore) Load(context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	snap := &models.Snapshot{}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	for _, tr := range s.trains {
		snap.Trains = append(snap.Trains, tr)
	}
	for k, legs := range s.seats {
		for i, n := range legs {
			snap.Seats = append(snap.Seats, models.SeatRow{TrainID: k.trainID, RunDate: k.date, Leg: i, Remaining: n})
		}
	}
	for _, o := range s.orders {
		snap.Orders = append(snap.Orders, o)
	}
	// map iteration is random; restore must not depend on input order
	sort.Slice(snap.Orders, func(i, j int) bool { return snap.Orders[i].Seq > snap.Orders[j].Seq })
	return snap, nil
}

func (s *memStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.users[u.Username] = *u
	return nil
}

func (s *memStore) UpdateUser(ctx context.Context, u *models.User) error {
	return s.CreateUser(ctx, u)
}

func (s *memStore) CreateTrain(_ context.Context, t *models.Train) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.trains[t.ID] = *t
	return nil
}

func (s *memStore) DeleteTrain(_ context.Context, trainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.trains, trainID)
	return nil
}

func (s *memStore) ReleaseTrain(_ context.Context, t *models.Train) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	tr := s.trains[t.ID]
	tr.Released = true
	s.trains[t.ID] = tr
	for d := t.SaleStart; d <= t.SaleEnd; d++ {
		legs := make([]int, t.LegCount())
		for i := range legs {
			legs[i] = t.SeatCapacity
		}
		s.seats[runKey{t.ID, d}] = legs
	}
	return nil
}

func (s *memStore) consume(o models.Order, delta int) {
	legs := s.seats[runKey{o.TrainID, o.RunDate}]
	for i := o.FromIndex; i < o.ToIndex; i++ {
		legs[i] += delta
	}
}

func (s *memStore) SavePurchase(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.orders[o.ID.String()] = *o
	if o.Status == models.OrderStatusSuccess {
		s.consume(*o, -o.Seats)
	}
	return nil
}

func (s *memStore) SaveRefund(_ context.Context, refunded *models.Order, promoted []models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.orders[refunded.ID.String()] = *refunded
	s.consume(*refunded, refunded.Seats)
	for _, p := range promoted {
		s.orders[p.ID.String()] = p
		s.consume(p, -p.Seats)
	}
	return nil
}

func (s *memStore) SaveWithdrawal(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.orders[o.ID.String()] = *o
	return nil
}

func (s *memStore) Truncate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.clear()
	return nil
}
