package queues

// Queue is a FIFO. The zero value is empty and ready to use.
type Queue[T any] []T

func NewQueue[T any]() *Queue[T] {
	q := Queue[T]{}
	return &q
}

func (q *Queue[T]) Push(xs ...T) {
	*q = append(*q, xs...)
}

// Peek returns the head without removing it. ok is false on an empty queue.
func (q *Queue[T]) Peek() (x T, ok bool) {
	if q.IsEmpty() {
		return x, false
	}
	return (*q)[0], true
}

// Pop removes and returns the head. ok is false on an empty queue.
func (q *Queue[T]) Pop() (x T, ok bool) {
	if q.IsEmpty() {
		return x, false
	}
	x = (*q)[0]
	var zero T
	(*q)[0] = zero
	*q = (*q)[1:]
	return x, true
}

func (q *Queue[T]) Len() int {
	return len(*q)
}

func (q *Queue[T]) IsEmpty() bool {
	return len(*q) == 0
}
