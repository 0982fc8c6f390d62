package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ResultHandler receives a finished job's result.
type ResultHandler func(result *ReindexResult)

// ResultConsumer runs in the daemon and fans worker results out to
// callbacks, so the in-memory embedding matrix can be dropped once a
// worker has rebuilt it.
type ResultConsumer struct {
	conn *Connection

	mu   sync.RWMutex
	subs map[string]ResultHandler
	all  []ResultHandler

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewResultConsumer returns a consumer that is idle until Start.
func NewResultConsumer(conn *Connection) *ResultConsumer {
	return &ResultConsumer{conn: conn, subs: make(map[string]ResultHandler)}
}

// Subscribe calls h for the result of one job.
func (rc *ResultConsumer) Subscribe(jobID string, h ResultHandler) {
	rc.mu.Lock()
	rc.subs[jobID] = h
	rc.mu.Unlock()
}

// Unsubscribe drops the handler for jobID.
func (rc *ResultConsumer) Unsubscribe(jobID string) {
	rc.mu.Lock()
	delete(rc.subs, jobID)
	rc.mu.Unlock()
}

// OnAny calls h for every result.
func (rc *ResultConsumer) OnAny(h ResultHandler) {
	rc.mu.Lock()
	rc.all = append(rc.all, h)
	rc.mu.Unlock()
}

// Start consumes the result queue with auto-ack; a lost result only
// delays a matrix reload until the next query misses.
func (rc *ResultConsumer) Start(ctx context.Context) error {
	deliveries, err := rc.conn.Channel().Consume(ResultQueueName, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ResultQueueName, err)
	}
	ctx, rc.cancelFunc = context.WithCancel(ctx)
	rc.wg.Add(1)
	go rc.receive(ctx, deliveries)
	return nil
}

func (rc *ResultConsumer) receive(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer rc.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var res ReindexResult
			if err := json.Unmarshal(d.Body, &res); err != nil {
				slog.Error("undecodable reindex result", "error", err)
				continue
			}
			rc.dispatch(&res)
		}
	}
}

func (rc *ResultConsumer) dispatch(res *ReindexResult) {
	rc.mu.RLock()
	sub := rc.subs[res.JobID.String()]
	all := append([]ResultHandler(nil), rc.all...)
	rc.mu.RUnlock()

	if sub != nil {
		sub(res)
	}
	for _, h := range all {
		h(res)
	}
}

// Stop ends consumption and waits for the receive loop.
func (rc *ResultConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}
