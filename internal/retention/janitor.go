// Package retention prunes old conversation history on a schedule.
package retention

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"
)

// Janitor deletes turns older than the retention window.
type Janitor struct {
	store    domain.MessageStore
	days     int
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

func New(store domain.MessageStore, days int, schedule string, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:    store,
		days:     days,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers the schedule and begins running. The first prune also
// runs immediately so a long-stopped instance catches up on boot.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return err
	}
	go j.RunOnce(ctx)
	j.cron.Start()
	j.logger.Info("retention janitor started", "schedule", j.schedule, "days", j.days)
	return nil
}

// RunOnce executes a single prune pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	removed, err := j.store.PruneOlderThan(ctx, j.days)
	if err != nil {
		j.logger.Error("history prune failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("history pruned", "removed", removed, "days", j.days)
	}
}

// Stop halts the schedule and waits for a running job to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
