package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// LogNotifier only logs events. Used when no broker is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Emit(_ context.Context, ev Event, to []Addressee) error {
	addrs := make([]string, 0, len(to))
	for _, a := range to {
		addrs = append(addrs, a.String())
	}
	n.Log.Info("notification", "type", ev.Type, "proposal_id", ev.ProposalID, "to", addrs)
	return nil
}

// AMQPNotifier publishes every envelope as a persistent JSON message on a
// durable queue. Transport adapters consume the queue and deliver.
//
// The connection is opened lazily and dropped on any failure, so the next
// Emit redials.
type AMQPNotifier struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPNotifier(url, queue string) *AMQPNotifier {
	return &AMQPNotifier{url: url, queue: queue}
}

func (n *AMQPNotifier) Emit(ctx context.Context, ev Event, to []Addressee) error {
	body, err := json.Marshal(Envelope{Event: ev, To: to})
	if err != nil {
		return fmt.Errorf("amqp: marshal event: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ch, err := n.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Type),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		n.reset()
		return fmt.Errorf("amqp: publish: %w", err)
	}
	return nil
}

// channel returns an open channel, dialing and declaring the queue on first use.
// Callers hold n.mu.
func (n *AMQPNotifier) channel() (*amqp.Channel, error) {
	if n.ch != nil && !n.ch.IsClosed() {
		return n.ch, nil
	}
	n.reset()

	conn, err := amqp.Dial(n.url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		n.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declare queue: %w", err)
	}

	n.conn, n.ch = conn, ch
	return ch, nil
}

func (n *AMQPNotifier) reset() {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.conn, n.ch = nil, nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset()
	return nil
}

// Multi fans an event out to several notifiers. All of them are tried; the
// joined error of the failing ones is returned.
type Multi []Notifier

func (m Multi) Emit(ctx context.Context, ev Event, to []Addressee) error {
	var errs []error
	for _, n := range m {
		if err := n.Emit(ctx, ev, to); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
