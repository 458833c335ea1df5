// Package notifytest provides an in-memory Notifier for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/oggyb/cunhao-core/internal/service/notify"
)

// Delivery is one recorded Emit call.
type Delivery struct {
	Event notify.Event
	To    []notify.Addressee
}

// Recorder remembers every event it is asked to emit. Setting Err makes
// every Emit fail after recording the attempt.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	attempts   int
	Err        error
}

func (r *Recorder) Emit(_ context.Context, ev notify.Event, to []notify.Addressee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++
	if r.Err != nil {
		return r.Err
	}
	r.deliveries = append(r.deliveries, Delivery{Event: ev, To: to})
	return nil
}

func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}

// Deliveries returns a copy of the successful deliveries.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// OfType returns the successful deliveries of type t.
func (r *Recorder) OfType(t notify.EventType) []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries() {
		if d.Event.Type == t {
			out = append(out, d)
		}
	}
	return out
}

func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// MemoryOutbox is a slice-backed notify.Outbox.
type MemoryOutbox struct {
	mu    sync.Mutex
	items [][]byte
}

func (o *MemoryOutbox) Push(_ context.Context, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, payload)
	return nil
}

func (o *MemoryOutbox) Pop(_ context.Context) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return nil, nil
	}
	p := o.items[0]
	o.items = o.items[1:]
	return p, nil
}

func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
