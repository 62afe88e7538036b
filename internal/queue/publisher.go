package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers events.  Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.  Used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

var (
	ErrPublisherClosed = errors.New("publisher closed")
	ErrPublisherFull   = errors.New("publish buffer full")

	errBrokerDown = errors.New("broker unavailable")
)

const (
	publishBuffer  = 256
	publishTimeout = 5 * time.Second
	dialTimeout    = 2 * time.Second
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
)

type outgoing struct {
	typ  string
	body []byte
}

// AMQPPublisher publishes events as persistent JSON messages to a durable
// queue on the default exchange.  Publish only enqueues; a single goroutine
// owns the connection and delivers in order.  When the buffer is full the
// event is dropped.  After a failed dial the broker is not retried until a
// backoff of 1s, doubling to 30s, has passed.
type AMQPPublisher struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)

	events chan outgoing
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	// owned by run
	conn      *amqp.Connection
	ch        *amqp.Channel
	downUntil time.Time
	backoff   time.Duration
}

func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	p := newAMQPPublisher(url, queue, publishBuffer)
	go p.run()
	return p
}

func newAMQPPublisher(url, queue string, buffer int) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{
		url:    url,
		queue:  queue,
		dial:   dialBroker,
		events: make(chan outgoing, buffer),
		done:   make(chan struct{}),
	}
}

func dialBroker(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
}

// Publish queues ev for delivery and never waits on the broker.
func (p *AMQPPublisher) Publish(_ context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.events <- outgoing{typ: ev.Type, body: body}:
		return nil
	default:
		return fmt.Errorf("drop %s: %w", ev.Type, ErrPublisherFull)
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	defer p.reset()
	for msg := range p.events {
		if err := p.deliver(msg); err != nil && !errors.Is(err, errBrokerDown) {
			slog.Warn("event dropped", "type", msg.typ, "err", err)
		}
	}
}

func (p *AMQPPublisher) deliver(msg outgoing) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Type:         msg.typ,
		Body:         msg.body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", msg.typ, err)
	}
	return nil
}

// channel returns an open channel, dialing if needed.  Called from run only.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if time.Now().Before(p.downUntil) {
		return nil, errBrokerDown
	}
	ch, err := p.open()
	if err != nil {
		if p.backoff == 0 {
			p.backoff = minBackoff
		} else {
			p.backoff = min(2*p.backoff, maxBackoff)
		}
		p.downUntil = time.Now().Add(p.backoff)
		slog.Warn("event broker unavailable", "retry_in", p.backoff, "err", err)
		return nil, err
	}
	p.backoff, p.downUntil = 0, time.Time{}
	return ch, nil
}

func (p *AMQPPublisher) open() (*amqp.Channel, error) {
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops the current connection.  Called from run only.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close stops accepting events, delivers what is already queued and
// releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	<-p.done
	return nil
}
