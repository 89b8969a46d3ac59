// Package amqp carries fetch requests and completion events over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrPermanent marks a handler failure that must not be redelivered.
var ErrPermanent = errors.New("permanent failure")

// Client publishes to and consumes from durable queues bound to a direct
// exchange, each with a routing key equal to the queue name.
type Client struct {
	url            string
	exchangeName   string
	requestQueue   string
	completedQueue string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, requestQueue, completedQueue string) (*Client, error) {
	c := &Client{
		url:            url,
		exchangeName:   exchangeName,
		requestQueue:   requestQueue,
		completedQueue: completedQueue,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.requestQueue, c.completedQueue); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}
	c.conn, c.channel = conn, channel
	return nil
}

func setup(ch *amqp091.Channel, exchange string, queues ...string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil
	}
	return c.channel
}

// PublishFetchRequest queues a fetch for a worker.
func (c *Client) PublishFetchRequest(ctx context.Context, msg *FetchRequestMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.requestQueue, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published fetch request", "sender", msg.Sender, "queue", c.requestQueue)
	return nil
}

// PublishFetchCompleted announces a finished run.
func (c *Client) PublishFetchCompleted(ctx context.Context, msg *FetchCompletedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.completedQueue, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published fetch completion",
		"run_id", msg.RunID, "sender", msg.Sender, "queue", c.completedQueue)
	return nil
}

func (c *Client) publish(ctx context.Context, queue string, body []byte) error {
	if c.isCircuitOpen() {
		return errors.New("publish: circuit breaker is open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.currentChannel()
	if ch == nil {
		if err := c.connect(); err != nil {
			c.recordFailure()
			return err
		}
		ch = c.currentChannel()
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		queue,          // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// ConsumeFetchRequests delivers fetch requests to handler until ctx is done.
func (c *Client) ConsumeFetchRequests(ctx context.Context, handler func(context.Context, *FetchRequestMessage) error) error {
	return c.consume(ctx, c.requestQueue, func(ctx context.Context, body []byte) error {
		msg, err := FetchRequestMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: decode fetch request: %v", ErrPermanent, err)
		}
		return handler(ctx, msg)
	})
}

// ConsumeFetchCompleted delivers completion events to handler until ctx is done.
func (c *Client) ConsumeFetchCompleted(ctx context.Context, handler func(context.Context, *FetchCompletedMessage) error) error {
	return c.consume(ctx, c.completedQueue, func(ctx context.Context, body []byte) error {
		msg, err := FetchCompletedMessageFromJSON(body)
		if err != nil {
			return fmt.Errorf("%w: decode fetch completion: %v", ErrPermanent, err)
		}
		return handler(ctx, msg)
	})
}

// consume runs the delivery loop and reconnects with backoff when the
// broker connection drops.
func (c *Client) consume(ctx context.Context, queue string, handle func(context.Context, []byte) error) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, queue, handle)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting",
			"queue", queue, "error", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed", "error", err)
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, queue string, handle func(context.Context, []byte) error) error {
	ch := c.currentChannel()
	if ch == nil {
		return errors.New("connection closed")
	}
	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming messages", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			if err := handle(ctx, delivery.Body); err != nil {
				requeue := !errors.Is(err, ErrPermanent)
				slog.ErrorContext(ctx, "Failed to handle message",
					"queue", queue, "error", err, "requeue", requeue)
				delivery.Nack(false, requeue)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	return min(d, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
