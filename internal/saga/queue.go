package saga

import (
	"cmp"
	"sort"
)

// queue is the pending set: unique keys, popped smallest-first so
// dispatch order is deterministic.
type queue[W any, K cmp.Ordered] struct {
	items   []item[W, K] // sorted ascending by key
	present map[K]struct{}
}

func newQueue[W any, K cmp.Ordered]() *queue[W, K] {
	return &queue[W, K]{present: make(map[K]struct{})}
}

func (q *queue[W, K]) len() int { return len(q.items) }

// push inserts in key order; an item whose key is already queued is
// dropped, except that a retry re-entering the queue keeps its
// incremented retry count by replacing the stale entry.
func (q *queue[W, K]) push(it item[W, K]) {
	i := sort.Search(len(q.items), func(i int) bool { return q.items[i].key >= it.key })
	if _, ok := q.present[it.key]; ok {
		if i < len(q.items) && q.items[i].key == it.key && it.retries > q.items[i].retries {
			q.items[i] = it
		}
		return
	}
	q.present[it.key] = struct{}{}
	q.items = append(q.items, item[W, K]{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = it
}

func (q *queue[W, K]) popSmallest() (item[W, K], bool) {
	if len(q.items) == 0 {
		var zero item[W, K]
		return zero, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	delete(q.present, it.key)
	return it, true
}
