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

	"github.com/felixgeelhaar/socratic/internal/metrics"
	"github.com/felixgeelhaar/socratic/internal/retriever"
)

// StatusSkipped marks a job made redundant by a newer completed index run.
const StatusSkipped = "skipped"

// JobHandler runs one reindex job.
type JobHandler func(ctx context.Context, job *ReindexJob) (*ReindexResult, error)

// Indexer rebuilds the embedding matrix.
type Indexer interface {
	Index(ctx context.Context) (*retriever.IndexResult, error)
}

// IndexHandler runs jobs against an Indexer.
func IndexHandler(idx Indexer) JobHandler {
	return func(ctx context.Context, _ *ReindexJob) (*ReindexResult, error) {
		res, err := idx.Index(ctx)
		if err != nil {
			return nil, err
		}
		return &ReindexResult{Status: StatusCompleted, Embedder: res.Embedder, Snippets: res.Snippets}, nil
	}
}

// ConsumerConfig sizes the worker pool.
type ConsumerConfig struct {
	Workers  int
	Prefetch int
}

// DefaultConsumerConfig runs two workers taking one job at a time.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{Workers: 2, Prefetch: 1}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	d := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = d.Prefetch
	}
	return cfg
}

// Consumer is the `socratic worker` side: a pool of goroutines taking
// reindex jobs off the queue and publishing one result per job.
//
// Reindexing is idempotent, so a job queued before the start of the
// latest successful run is acknowledged as skipped instead of repeated.
type Consumer struct {
	conn     *Connection
	handler  JobHandler
	producer *Producer
	workers  int
	prefetch int

	mu         sync.Mutex
	freshSince time.Time

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewConsumer wires a handler to conn. With a nil conn only run is usable,
// which is how the tests drive it.
func NewConsumer(conn *Connection, handler JobHandler, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	c := &Consumer{conn: conn, handler: handler, workers: cfg.Workers, prefetch: cfg.Prefetch}
	if conn != nil {
		c.producer = NewProducer(conn)
	}
	return c
}

// Start subscribes to the reindex queue with manual acks and launches the
// workers. It returns once they are running.
func (c *Consumer) Start(ctx context.Context) error {
	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(ReindexQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ReindexQueueName, err)
	}

	ctx, c.cancelFunc = context.WithCancel(ctx)
	slog.Info("reindex worker pool started", "workers", c.workers, "prefetch", c.prefetch)
	for id := range c.workers {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.loop(ctx, id, deliveries)
		}()
	}
	return nil
}

func (c *Consumer) loop(ctx context.Context, worker int, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				slog.Warn("reindex delivery channel closed", "worker", worker)
				return
			}
			c.handle(ctx, worker, d)
		}
	}
}

// handle decodes, runs and acknowledges one delivery. Undecodable
// messages are dropped; everything else is acked after its result is out.
func (c *Consumer) handle(ctx context.Context, worker int, d amqp.Delivery) {
	var job ReindexJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		slog.Error("dropping malformed reindex job", "worker", worker, "error", err)
		metrics.QueueJobs.WithLabelValues("reindex", "malformed").Inc()
		_ = d.Reject(false)
		return
	}

	res := c.run(ctx, worker, &job)
	if c.producer != nil {
		if err := c.producer.PublishResult(ctx, res); err != nil {
			slog.Error("publish reindex result", "job_id", job.ID, "error", err)
		}
	}
	if err := d.Ack(false); err != nil {
		slog.Error("ack reindex job", "job_id", job.ID, "error", err)
	}
}

// run executes job under its deadline and always produces a result.
func (c *Consumer) run(ctx context.Context, worker int, job *ReindexJob) *ReindexResult {
	started := time.Now()
	log := slog.With("worker", worker, "job_id", job.ID)

	var res *ReindexResult
	if c.superseded(job) {
		log.Info("reindex job superseded by a newer run", "queued_at", job.CreatedAt)
		res = &ReindexResult{Status: StatusSkipped}
	} else {
		log.Info("reindexing corpus", "reason", job.Reason, "requested_by", job.RequestedBy)
		res = c.execute(ctx, job)
		if res.Status == StatusCompleted {
			c.markFresh(started)
		}
		log.Info("reindex finished", "status", res.Status, "snippets", res.Snippets, "duration", time.Since(started))
	}

	res.JobID = job.ID
	res.Duration = time.Since(started)
	res.CompletedAt = time.Now()
	metrics.QueueJobs.WithLabelValues("reindex", res.Status).Inc()
	return res
}

func (c *Consumer) execute(ctx context.Context, job *ReindexJob) *ReindexResult {
	jobCtx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	res, err := c.handler(jobCtx, job)
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(jobCtx.Err(), context.DeadlineExceeded)):
		return &ReindexResult{Status: StatusTimeout, Error: "reindex timed out"}
	case err != nil:
		return &ReindexResult{Status: StatusFailed, Error: err.Error()}
	case res == nil:
		return &ReindexResult{Status: StatusCompleted}
	}
	if res.Status == "" {
		res.Status = StatusCompleted
	}
	return res
}

func (c *Consumer) superseded(job *ReindexJob) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !job.CreatedAt.IsZero() && job.CreatedAt.Before(c.freshSince)
}

func (c *Consumer) markFresh(started time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if started.After(c.freshSince) {
		c.freshSince = started
	}
}

// Stop cancels the workers and waits for in-flight jobs.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("reindex worker pool stopped")
}
