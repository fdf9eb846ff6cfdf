package history

// ring 固定容量的环形缓冲区，满了以后覆盖最旧的元素
// 不加锁，由 Recorder 统一加锁
type ring[T any] struct {
	data  []T
	head  int // 最旧元素
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{data: make([]T, capacity)}
}

func (r *ring[T]) push(item T) {
	tail := (r.head + r.count) % len(r.data)
	r.data[tail] = item
	if r.count < len(r.data) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.data)
	}
}

// last 最后 n 个元素，从旧到新
func (r *ring[T]) last(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	out := make([]T, n)
	start := r.head + r.count - n
	for i := range out {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

func (r *ring[T]) len() int {
	return r.count
}
