package sched

import (
    "context"
    "fmt"
    "time"

    "github.com/robfig/cron/v3"
    "go.uber.org/zap"
)

// Janitor runs periodic maintenance on a cron schedule, currently just
// the resolver-cache sweep. Specs use the six-field form with seconds,
// e.g. "0 0 4 * * *" for 04:00 daily.
type Janitor struct {
    cron    *cron.Cron
    logger  *zap.Logger
    timeout time.Duration
}

func NewJanitor(logger *zap.Logger) *Janitor {
    if logger == nil { logger = zap.NewNop() }
    return &Janitor{
        cron:    cron.New(cron.WithSeconds()),
        logger:  logger,
        timeout: 30 * time.Second,
    }
}

// RegisterCacheSweep schedules refresh on the given cron spec.
func (j *Janitor) RegisterCacheSweep(spec string, refresh func(ctx context.Context) error) error {
    if _, err := j.cron.AddFunc(spec, func() {
        ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
        defer cancel()
        if err := refresh(ctx); err != nil {
            j.logger.Error("cache sweep failed", zap.Error(err))
            return
        }
        j.logger.Info("cache sweep completed")
    }); err != nil {
        return fmt.Errorf("register cache sweep: %w", err)
    }
    return nil
}

// Start starts the scheduler in its own goroutine.
func (j *Janitor) Start() {
    j.cron.Start()
    j.logger.Info("janitor started")
}

// Stop stops scheduling and waits for a running job to finish.
func (j *Janitor) Stop() {
    ctx := j.cron.Stop()
    <-ctx.Done()
    j.logger.Info("janitor stopped")
}
