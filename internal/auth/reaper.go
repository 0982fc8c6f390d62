package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReapSchedule purges expired tokens hourly.
const DefaultReapSchedule = "@every 1h"

// Reaper periodically deletes expired sessions.
type Reaper struct {
	svc    *Service
	cron   *cron.Cron
	logger *slog.Logger
}

// NewReaper schedules CleanupExpiredSessions on the given cron spec.
func NewReaper(svc *Service, schedule string, logger *slog.Logger) (*Reaper, error) {
	if schedule == "" {
		schedule = DefaultReapSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{svc: svc, cron: cron.New(), logger: logger}
	if _, err := r.cron.AddFunc(schedule, r.reap); err != nil {
		return nil, err
	}
	return r, nil
}

// Start runs the schedule in the background.
func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running purge.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reaper) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := r.svc.CleanupExpiredSessions(ctx)
	if err != nil {
		r.logger.Error("purge expired sessions", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("purged expired sessions", "count", n)
	}
}
