package main

import (
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/socratic/internal/queue"
)

// cmdWorker consumes reindex jobs until interrupted
func cmdWorker() error {
	ctx, cancel := signalContext()
	defer cancel()

	a, cfg, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conn := a.QueueConnection()
	if conn == nil {
		conn, err = queue.NewConnection(cfg.Queue.URL)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()
	}

	consumer := queue.NewConsumer(conn, queue.IndexHandler(a.Retriever), queue.ConsumerConfig{
		Workers: cfg.Queue.Workers,
	})
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	slog.Warn("reindex worker running", "embedder", a.EmbedderName(), "workers", cfg.Queue.Workers)
	fmt.Println("Worker running; press Ctrl+C to stop")

	<-ctx.Done()
	consumer.Stop()
	return nil
}
