package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/bpgergo/kmirror/internal/mirror"
)

// node is one in-flight record in an order's resolution list.
type node[T any] struct {
	pos        int64
	payload    T
	prev, next *node[T]
}

// order tracks items in the sequence they were submitted and resolves
// them out of order as acknowledgements arrive, reporting pending count
// as the distance between the furthest submission and the furthest
// contiguous resolution.
type order[T any] struct {
	resolvedPos int64
	resolvedPay *T
	start, end  *node[T]
}

func newOrder[T any]() *order[T] { return &order[T]{} }

func (o *order[T]) Track(p T) func() *T {
	n := &node[T]{payload: p, pos: 1}
	if o.start == nil {
		o.start = n
	}
	if o.end != nil {
		n.prev = o.end
		n.pos += o.end.pos
		o.end.next = n
	} else {
		n.pos += o.resolvedPos
	}
	o.end = n
	return func() *T {
		if n.prev != nil {
			n.prev.pos = n.pos
			n.prev.payload = n.payload
			n.prev.next = n.next
		} else {
			tmp := n.payload
			o.resolvedPay, o.resolvedPos = &tmp, n.pos
			o.start = n.next
		}
		if n.next != nil {
			n.next.prev = n.prev
		} else {
			o.end = n.prev
		}
		return o.resolvedPay
	}
}

func (o *order[T]) Pending() int64 {
	if o.end == nil {
		return 0
	}
	return o.end.pos - o.resolvedPos
}

// inFlightLimiter bounds how many forwarded records a flow may have sent
// to the target producer without yet seeing an ack. Without it a stalled
// or slow target cluster would let the source consumer run arbitrarily
// far ahead, growing the producer's internal buffer without limit.
type inFlightLimiter struct {
	o    *order[*mirror.ForwardedRecord]
	cap  int64
	cond *sync.Cond
}

func newInFlightLimiter(capacity int64) *inFlightLimiter {
	return &inFlightLimiter{o: newOrder[*mirror.ForwardedRecord](), cap: capacity, cond: sync.NewCond(&sync.Mutex{})}
}

// Track blocks until there is room for one more in-flight record, then
// registers rec and returns a function to call once the target has
// acknowledged (or failed) it.
func (l *inFlightLimiter) Track(ctx context.Context, rec *mirror.ForwardedRecord) (func(), error) {
	l.cond.L.Lock()
	defer l.cond.L.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.cond.L.Lock()
			l.cond.Broadcast()
			l.cond.L.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	for l.o.Pending() >= l.cap {
		l.cond.Wait()
		if ctx.Err() != nil {
			return nil, errors.New("engine: in-flight limiter: context cancelled while waiting for capacity")
		}
	}

	resolve := l.o.Track(rec)
	return func() {
		l.cond.L.Lock()
		resolve()
		l.cond.Broadcast()
		l.cond.L.Unlock()
	}, nil
}
