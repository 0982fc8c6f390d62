package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/socratic/internal/metrics"
)

// Producer is the publishing half used by both the daemon (jobs) and the
// worker (results).
type Producer struct {
	conn *Connection
}

func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// NewReindexJob stamps a job with an id and the current time.
func NewReindexJob(reason, requestedBy string) *ReindexJob {
	return &ReindexJob{ID: uuid.New(), Reason: reason, RequestedBy: requestedBy, CreatedAt: time.Now()}
}

// PublishReindex queues job, filling in a missing id or creation time.
// CreatedAt matters: workers skip jobs older than their last completed run.
func (p *Producer) PublishReindex(ctx context.Context, job *ReindexJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	outcome := "published"
	err := p.conn.PublishJSON(ctx, ReindexQueueName, job)
	if err != nil {
		outcome = "publish_failed"
	}
	metrics.QueueJobs.WithLabelValues("reindex", outcome).Inc()
	if err != nil {
		return fmt.Errorf("publish reindex job %s: %w", job.ID, err)
	}
	slog.Info("reindex queued", "job_id", job.ID, "reason", job.Reason, "requested_by", job.RequestedBy)
	return nil
}

// PublishResult reports a finished job back to the daemon.
func (p *Producer) PublishResult(ctx context.Context, res *ReindexResult) error {
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now()
	}
	if err := p.conn.PublishJSON(ctx, ResultQueueName, res); err != nil {
		return fmt.Errorf("publish result for %s: %w", res.JobID, err)
	}
	slog.Debug("reindex result sent", "job_id", res.JobID, "status", res.Status)
	return nil
}
