// Package queue moves corpus reindex work off the request path over
// RabbitMQ: the daemon publishes ReindexJobs, `socratic worker` runs them
// and publishes a ReindexResult back.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ReindexQueueName = "socratic.reindex"
	ResultQueueName  = "socratic.reindex.results"
)

// Job statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// DefaultJobTimeout bounds a single reindex run.
const DefaultJobTimeout = 5 * time.Minute

// ReindexJob asks a worker to re-embed the snippet corpus.
type ReindexJob struct {
	ID          uuid.UUID `json:"id"`
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by,omitempty"`
	// TimeoutSeconds overrides DefaultJobTimeout when positive.
	TimeoutSeconds int       `json:"timeout_seconds,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Timeout returns the job's execution deadline.
func (j *ReindexJob) Timeout() time.Duration {
	if j.TimeoutSeconds > 0 {
		return time.Duration(j.TimeoutSeconds) * time.Second
	}
	return DefaultJobTimeout
}

// ReindexResult reports how a reindex job ended.
type ReindexResult struct {
	JobID       uuid.UUID     `json:"job_id"`
	Status      string        `json:"status"`
	Embedder    string        `json:"embedder,omitempty"`
	Snippets    int           `json:"snippets"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Both queues are durable. A queued reindex goes stale after 15 minutes;
// nobody reads a result older than a minute.
var declared = []struct {
	name string
	ttl  time.Duration
}{
	{ReindexQueueName, 15 * time.Minute},
	{ResultQueueName, time.Minute},
}

const maxReconnects = 10

// Connection is a RabbitMQ connection plus one channel, re-dialled with
// capped exponential backoff when the broker drops it.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
	done    chan struct{}
}

// NewConnection dials url and declares the reindex queues.
func NewConnection(url string) (*Connection, error) {
	c := &Connection{url: url, logger: slog.Default(), done: make(chan struct{})}
	if err := c.dial(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	for _, q := range declared {
		args := amqp.Table{"x-message-ttl": int32(q.ttl / time.Millisecond)}
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, args); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare %s: %w", q.name, err)
		}
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()

	go c.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	c.logger.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

// watch re-dials after an unexpected close. A nil error means the
// connection was closed on purpose.
func (c *Connection) watch(closed <-chan *amqp.Error) {
	reason, ok := <-closed
	if !ok || reason == nil {
		return
	}
	c.logger.Warn("RabbitMQ connection lost", "error", reason)

	for attempt := 1; attempt <= maxReconnects; attempt++ {
		backoff := min(time.Duration(1<<(attempt-1))*time.Second, 30*time.Second)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}
		if err := c.dial(); err != nil {
			c.logger.Error("RabbitMQ reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		c.logger.Info("RabbitMQ reconnected", "attempt", attempt)
		return
	}
	c.logger.Error("giving up on RabbitMQ", "attempts", maxReconnects)
}

// Channel returns the current channel.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// IsConnected reports whether the underlying connection is open.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close shuts the channel and connection and stops reconnecting.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// PublishJSON sends data as a persistent JSON message on the default
// exchange, routed to queue.
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}
	return c.Channel().PublishWithContext(ctx, "", queue, false, false, msg)
}

// sanitizeURL masks the password of an AMQP URL for logging. Unparseable
// URLs are truncated instead.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if len(raw) > 20 {
			return raw[:20] + "..."
		}
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
