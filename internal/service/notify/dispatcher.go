package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Outbox stores undelivered envelopes for later retry. Implemented by
// cache.RedisCache.
type Outbox interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context) ([]byte, error)
}

// DefaultMaxAttempts bounds redelivery of a single envelope.
const DefaultMaxAttempts = 10

// Dispatcher is the Notifier facade used by the services. Emit never fails:
// the canonical state has already been committed when it is called, so a
// failed delivery is logged and parked in the outbox for RetryPending.
type Dispatcher struct {
	next        Notifier
	outbox      Outbox
	log         *slog.Logger
	timeout     time.Duration
	maxAttempts int
	now         func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithTimeout bounds a single delivery. Non-positive values keep the default.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

func WithMaxAttempts(n int) DispatcherOption {
	return func(x *Dispatcher) { x.maxAttempts = n }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(x *Dispatcher) { x.now = now }
}

// NewDispatcher wraps next. outbox may be nil, in which case failed
// deliveries are only logged.
func NewDispatcher(next Notifier, outbox Outbox, log *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		next:        next,
		outbox:      outbox,
		log:         log,
		timeout:     10 * time.Second,
		maxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Emit delivers ev to every addressee. Cancellation of ctx does not abort the
// delivery of an already committed change.
func (d *Dispatcher) Emit(ctx context.Context, ev Event, to ...Addressee) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now()
	}
	env := Envelope{Event: ev, To: to}
	if !d.deliver(ctx, &env) {
		d.park(ctx, env)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env *Envelope) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	err := d.next.Emit(ctx, env.Event, env.To)
	env.Attempts++
	if err == nil {
		d.log.Debug("notification delivered", "type", env.Event.Type, "proposal_id", env.Event.ProposalID, "attempts", env.Attempts)
		return true
	}
	d.log.Warn("notification delivery failed", "type", env.Event.Type, "proposal_id", env.Event.ProposalID, "attempts", env.Attempts, "err", err)
	return false
}

func (d *Dispatcher) park(ctx context.Context, env Envelope) {
	if d.outbox == nil {
		return
	}
	if env.Attempts >= d.maxAttempts {
		d.log.Error("notification dropped after max attempts", "type", env.Event.Type, "proposal_id", env.Event.ProposalID, "attempts", env.Attempts)
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		d.log.Error("marshal notification envelope", "err", err)
		return
	}
	if err := d.outbox.Push(context.WithoutCancel(ctx), payload); err != nil {
		d.log.Error("failed to park notification in outbox", "type", env.Event.Type, "err", err)
	}
}

// RetryPending drains the outbox once, redelivering up to limit envelopes.
// Envelopes that fail again are parked after the pass so one run never
// retries the same envelope twice.
func (d *Dispatcher) RetryPending(ctx context.Context, limit int) (delivered int, err error) {
	if d.outbox == nil {
		return 0, nil
	}

	var failed []Envelope
	defer func() {
		for _, env := range failed {
			d.park(ctx, env)
		}
	}()

	for range limit {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		payload, err := d.outbox.Pop(ctx)
		if err != nil {
			return delivered, err
		}
		if payload == nil {
			return delivered, nil
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			d.log.Error("dropping malformed outbox entry", "err", err)
			continue
		}
		if d.deliver(ctx, &env) {
			delivered++
		} else {
			failed = append(failed, env)
		}
	}
	return delivered, nil
}
