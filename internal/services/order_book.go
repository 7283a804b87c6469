package services

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/smarttransit/rail-ticket-engine/internal/models"
)

// orderRecord is the shared in-memory order. Everything except the status
// is fixed at creation; status changes only under the owning run's lock and
// is read without it.
type orderRecord struct {
	order  models.Order
	status atomic.Value
}

func newOrderRecord(o models.Order) *orderRecord {
	rec := &orderRecord{order: o}
	rec.status.Store(o.Status)
	return rec
}

func (o *orderRecord) Status() models.OrderStatus {
	return o.status.Load().(models.OrderStatus)
}

func (o *orderRecord) setStatus(s models.OrderStatus) {
	o.status.Store(s)
}

// view returns a copy carrying the current status
func (o *orderRecord) view() models.Order {
	out := o.order
	out.Status = o.Status()
	return out
}

// withStatus returns a copy carrying a prospective status
func (o *orderRecord) withStatus(s models.OrderStatus) models.Order {
	out := o.order
	out.Status = s
	return out
}

// OrderBook indexes orders per user, oldest first
type OrderBook struct {
	mu     sync.RWMutex
	byUser map[string][]*orderRecord
	seq    atomic.Int64
}

// NewOrderBook creates an empty book
func NewOrderBook() *OrderBook {
	return &OrderBook{byUser: make(map[string][]*orderRecord)}
}

func (b *OrderBook) nextSeq() int64 {
	return b.seq.Add(1)
}

// append inserts the record keeping each user's list sorted by seq. Two
// buys by the same user on different runs can reach here out of order.
func (b *OrderBook) append(o *orderRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.byUser[o.order.Username]
	i := len(list)
	for i > 0 && list[i-1].order.Seq > o.order.Seq {
		i--
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = o
	b.byUser[o.order.Username] = list
}

// nthRecent resolves a 1-based index counted from the newest order
func (b *OrderBook) nthRecent(username string, n int) (*orderRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.byUser[username]
	if n < 1 || n > len(list) {
		return nil, fmt.Errorf("%w: order #%d of %s (has %d)", ErrNotFound, n, username, len(list))
	}
	return list[len(list)-n], nil
}

// list returns the user's orders newest first
func (b *OrderBook) list(username string) []models.Order {
	b.mu.RLock()
	recs := append([]*orderRecord(nil), b.byUser[username]...)
	b.mu.RUnlock()

	out := make([]models.Order, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i].view())
	}
	return out
}

// restore loads persisted orders sorted by seq and returns the records
func (b *OrderBook) restore(orders []models.Order) []*orderRecord {
	sorted := append([]models.Order(nil), orders...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	b.mu.Lock()
	defer b.mu.Unlock()
	b.byUser = make(map[string][]*orderRecord)
	recs := make([]*orderRecord, 0, len(sorted))
	var maxSeq int64
	for _, o := range sorted {
		rec := newOrderRecord(o)
		b.byUser[o.Username] = append(b.byUser[o.Username], rec)
		recs = append(recs, rec)
		maxSeq = max(maxSeq, o.Seq)
	}
	b.seq.Store(maxSeq)
	return recs
}

func (b *OrderBook) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byUser = make(map[string][]*orderRecord)
	b.seq.Store(0)
}
