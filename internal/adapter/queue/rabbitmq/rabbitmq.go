// Package rabbitmq implements the work and result queues on an
// AMQP-0.9.1-compatible broker.
//
// The adapter keeps a fixed-size pool of blocking connections; each operation
// borrows one connection, opens a channel, and returns the connection to the
// pool. Queues are declared durable at startup and all publishes use
// persistent delivery. Consumers run with prefetch=1 and manual settlement.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/puzzler-io/puzzler/internal/adapter/observability"
	"github.com/puzzler-io/puzzler/internal/domain"
)

// Client is the broker adapter shared by the coordinator and the workers.
type Client struct {
	url         string
	workQueue   string
	resultQueue string
	pool        chan *amqp.Connection
	poolSize    int
}

// Dial connects the pool and declares both queues durable.
func Dial(url, workQueue, resultQueue string, poolSize int) (*Client, error) {
	if poolSize < 1 {
		poolSize = 1
	}
	c := &Client{
		url:         url,
		workQueue:   workQueue,
		resultQueue: resultQueue,
		pool:        make(chan *amqp.Connection, poolSize),
		poolSize:    poolSize,
	}

	// Declare on a throwaway connection so a broken topology fails startup.
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: open channel: %v", domain.ErrQueue, err)
	}
	for _, q := range []string{workQueue, resultQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: declare %s: %v", domain.ErrQueue, q, err)
		}
	}
	_ = ch.Close()
	_ = conn.Close()

	for i := 0; i < poolSize; i++ {
		conn, err := c.connect()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.pool <- conn
	}
	slog.Info("rabbitmq connected",
		slog.String("work_queue", workQueue),
		slog.String("result_queue", resultQueue),
		slog.Int("pool_size", poolSize))
	return c, nil
}

// connect dials with exponential backoff; transient broker restarts during
// startup should not fail the process.
func (c *Client) connect() (*amqp.Connection, error) {
	var conn *amqp.Connection
	op := func() error {
		var err error
		conn, err = amqp.Dial(c.url)
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrQueue, c.url, err)
	}
	return conn, nil
}

// acquire borrows a live connection, blocking when the pool is exhausted.
// Connections found closed are replaced transparently.
func (c *Client) acquire(ctx context.Context) (*amqp.Connection, error) {
	select {
	case conn := <-c.pool:
		if conn.IsClosed() {
			fresh, err := c.connect()
			if err != nil {
				// Return a slot so the pool does not shrink permanently.
				c.pool <- conn
				return nil, err
			}
			return fresh, nil
		}
		return conn, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: acquire connection: %v", domain.ErrQueue, ctx.Err())
	}
}

func (c *Client) release(conn *amqp.Connection) { c.pool <- conn }

// Ping verifies broker connectivity for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.release(conn)
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrQueue, err)
	}
	return ch.Close()
}

func (c *Client) publish(ctx context.Context, queue string, contentType string, body []byte) error {
	conn, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer c.release(conn)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", domain.ErrQueue, err)
	}
	defer func() { _ = ch.Close() }()

	err = ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, false,
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrQueue, queue, err)
	}
	observability.QueuePublishesTotal.WithLabelValues(queue).Inc()
	return nil
}

// PublishProblem puts a serialized Problem on the work queue.
func (c *Client) PublishProblem(ctx domain.Context, body []byte) error {
	return c.publish(ctx, c.workQueue, "application/msgpack", body)
}

// PublishResult puts a result message on the result queue. Both the current
// problem_id field and the legacy puzzle_id field are emitted during the
// naming migration.
func (c *Client) PublishResult(ctx domain.Context, msg domain.ResultMessage) error {
	if msg.LegacyID == "" {
		msg.LegacyID = msg.ProblemID
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal result: %v", domain.ErrQueue, err)
	}
	return c.publish(ctx, c.resultQueue, "application/json", body)
}

// ConsumeWork opens a prefetch=1 consumer on the work queue. The returned
// channel closes when ctx is cancelled or the broker channel dies; each
// delivery must be settled exactly once via Ack or Nack.
func (c *Client) ConsumeWork(ctx domain.Context) (<-chan domain.Delivery, error) {
	return c.consume(ctx, c.workQueue)
}

// ConsumeResults opens a prefetch=1 consumer on the result queue.
func (c *Client) ConsumeResults(ctx domain.Context) (<-chan domain.Delivery, error) {
	return c.consume(ctx, c.resultQueue)
}

func (c *Client) consume(ctx context.Context, queue string) (<-chan domain.Delivery, error) {
	conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		c.release(conn)
		return nil, fmt.Errorf("%w: open channel: %v", domain.ErrQueue, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		c.release(conn)
		return nil, fmt.Errorf("%w: qos: %v", domain.ErrQueue, err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		c.release(conn)
		return nil, fmt.Errorf("%w: consume %s: %v", domain.ErrQueue, queue, err)
	}

	out := make(chan domain.Delivery)
	go func() {
		defer close(out)
		defer c.release(conn)
		defer func() { _ = ch.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				dd := d
				wrapped := domain.Delivery{
					Body: dd.Body,
					Ack: func() error {
						observability.QueueAcksTotal.WithLabelValues(queue, "ack").Inc()
						return dd.Ack(false)
					},
					Nack: func(requeue bool) error {
						observability.QueueAcksTotal.WithLabelValues(queue, "nack").Inc()
						return dd.Nack(false, requeue)
					},
				}
				select {
				case out <- wrapped:
				case <-ctx.Done():
					// Unsettled delivery returns to the queue when the
					// channel closes.
					return
				}
			}
		}
	}()
	return out, nil
}

// Close drains and closes every pooled connection.
func (c *Client) Close() {
	for {
		select {
		case conn := <-c.pool:
			if conn != nil && !conn.IsClosed() {
				_ = conn.Close()
			}
		default:
			return
		}
	}
}
