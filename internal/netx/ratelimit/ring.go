package ratelimit

// ring is a fixed-capacity circular buffer that overwrites its oldest
// element once full.
type ring[T any] struct {
	data []T
	cap  int
	end  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{data: make([]T, 0, capacity), cap: capacity}
}

func (r *ring[T]) push(v T) {
	if len(r.data) == r.cap {
		r.data[r.end] = v
		r.end = (r.end + 1) % r.cap
		return
	}
	r.data = append(r.data, v)
}

func (r *ring[T]) lastIndex() (int, bool) {
	if len(r.data) == 0 {
		return 0, false
	}
	return (len(r.data) + r.end - 1) % r.cap, true
}

func (r *ring[T]) last() (T, bool) {
	i, ok := r.lastIndex()
	if !ok {
		var zero T
		return zero, false
	}
	return r.data[i], true
}

func (r *ring[T]) setLast(v T) {
	if i, ok := r.lastIndex(); ok {
		r.data[i] = v
	}
}

// newestFirst visits elements from newest to oldest until fn returns false.
func (r *ring[T]) newestFirst(fn func(T) bool) {
	last, ok := r.lastIndex()
	if !ok {
		return
	}
	for i := 0; i < len(r.data); i++ {
		idx := (last - i + r.cap) % r.cap
		if !fn(r.data[idx]) {
			return
		}
	}
}
