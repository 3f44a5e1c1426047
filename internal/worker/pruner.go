package worker

import (
	"context"
	"fmt"
	"time"

	"booksync/internal/config"
	"booksync/internal/logging"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PruneStore deletes aged queue rows.
type PruneStore interface {
	PruneSyncTasks(ctx context.Context, before time.Time) (int64, error)
	PruneWakeHints(ctx context.Context, processedBefore, before time.Time) (int64, error)
}

type PruneResult struct {
	Tasks int64 `json:"tasks"`
	Hints int64 `json:"hints"`
}

// Pruner applies the retention policy: finished tasks and all hints older
// than MaxAge go, processed hints go after ProcessedAge.
type Pruner struct {
	store  PruneStore
	cfg    config.RetentionConfig
	now    func() time.Time
	logger *zerolog.Logger
}

func NewPruner(store PruneStore, cfg config.RetentionConfig, logger *zerolog.Logger) *Pruner {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 6 * 24 * time.Hour
	}
	if cfg.ProcessedAge <= 0 {
		cfg.ProcessedAge = 24 * time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	return &Pruner{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logging.Component(logger, "pruner"),
	}
}

func (p *Pruner) Prune(ctx context.Context) (PruneResult, error) {
	var res PruneResult
	now := p.now()
	cutoff := now.Add(-p.cfg.MaxAge)

	tasks, err := p.store.PruneSyncTasks(ctx, cutoff)
	if err != nil {
		return res, err
	}
	res.Tasks = tasks

	hints, err := p.store.PruneWakeHints(ctx, now.Add(-p.cfg.ProcessedAge), cutoff)
	if err != nil {
		return res, err
	}
	res.Hints = hints

	p.logger.Info().Int64("tasks", res.Tasks).Int64("hints", res.Hints).Msg("Pruned calendar queue")
	return res, nil
}

// Start schedules Prune on the configured cron spec and stops the scheduler
// when ctx is done.
func (p *Pruner) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(p.cfg.Schedule, func() {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error().Err(err).Msg("Retention run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", p.cfg.Schedule, err)
	}

	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
