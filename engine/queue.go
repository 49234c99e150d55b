package engine

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned when scheduling on a closed engine.
var ErrQueueClosed = errors.New("task queue closed")

// queue is a lock-free single consumer ring of task batches. Producers are
// serialized by mu; the audio thread drains without locking. A batch becomes
// visible to the consumer as a whole.
type queue struct {
	mu          sync.Mutex
	batches     [][]Task
	read, write *uint32
	closed      atomic.Bool
}

func newQueue(size int) *queue {
	if size <= 0 || size&(size-1) != 0 {
		panic("task queue size must be a power of 2")
	}
	return &queue{
		batches: make([][]Task, size),
		read:    new(uint32),
		write:   new(uint32),
	}
}

// push blocks while the ring is full.
func (q *queue) push(batch []Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for atomic.LoadUint32(q.write)-atomic.LoadUint32(q.read) == uint32(len(q.batches)) {
		if q.closed.Load() {
			return ErrQueueClosed
		}
		runtime.Gosched()
	}
	write := atomic.LoadUint32(q.write)
	q.batches[write%uint32(len(q.batches))] = batch
	atomic.StoreUint32(q.write, write+1)
	return nil
}

// drain calls f for every batch pushed so far, in push order.
func (q *queue) drain(f func([]Task)) {
	read := atomic.LoadUint32(q.read)
	write := atomic.LoadUint32(q.write)
	for read != write {
		i := read % uint32(len(q.batches))
		batch := q.batches[i]
		q.batches[i] = nil
		f(batch)
		read++
	}
	atomic.StoreUint32(q.read, read)
}

func (q *queue) close() {
	q.closed.Store(true)
}
