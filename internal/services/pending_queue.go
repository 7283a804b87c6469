package services

// pendingQueue holds the waiting orders of one run in arrival order
type pendingQueue struct {
	entries []*orderRecord
}

func (q *pendingQueue) push(o *orderRecord) {
	q.entries = append(q.entries, o)
}

func (q *pendingQueue) len() int {
	return len(q.entries)
}

// remove drops the given records, keeping the order of the rest
func (q *pendingQueue) remove(drop ...*orderRecord) {
	if len(drop) == 0 {
		return
	}
	gone := make(map[*orderRecord]struct{}, len(drop))
	for _, o := range drop {
		gone[o] = struct{}{}
	}
	kept := q.entries[:0]
	for _, o := range q.entries {
		if _, ok := gone[o]; !ok {
			kept = append(kept, o)
		}
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
}

// replay walks the queue in arrival order against a working copy of the
// seat counts and returns every entry that can now be filled in full.
// Entries that do not fit are skipped, later ones may still be served.
func (q *pendingQueue) replay(seats []int) []*orderRecord {
	var filled []*orderRecord
	for _, o := range q.entries {
		from, to, n := o.order.FromIndex, o.order.ToIndex, o.order.Seats
		if minSeats(seats, from, to) >= n {
			adjustSeats(seats, from, to, -n)
			filled = append(filled, o)
		}
	}
	return filled
}
