package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wb-go/wbf/zlog"

	"signal-notifier/internal/storage"
)

// Janitor runs background queue maintenance: it purges old terminal
// notifications on a cron schedule and requeues processing items that a
// dead worker left behind.
type Janitor struct {
	queue      storage.Queue
	schedule   string        // cron spec for the purge
	retention  time.Duration // terminal items younger than this survive
	staleAfter time.Duration // processing items older than this are requeued
	cron       *cron.Cron
}

// NewJanitor builds a janitor. Schedule is a standard 5-field cron spec.
// A staleAfter of zero disables the stale-processing sweep.
func NewJanitor(queue storage.Queue, schedule string, retention, staleAfter time.Duration) *Janitor {
	return &Janitor{
		queue:      queue,
		schedule:   schedule,
		retention:  retention,
		staleAfter: staleAfter,
	}
}

// Start registers the maintenance jobs and starts the scheduler.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron = cron.New()

	_, err := j.cron.AddFunc(j.schedule, func() { j.purge(ctx) })
	if err != nil {
		return err
	}

	if j.staleAfter > 0 {
		_, err := j.cron.AddFunc("@every 1m", func() { j.reclaim(ctx) })
		if err != nil {
			return err
		}
	}

	j.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

func (j *Janitor) purge(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention)

	removed, err := j.queue.PurgeTerminal(ctx, cutoff)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to purge terminal notifications")
		return
	}

	zlog.Logger.Info().
		Int("removed", removed).
		Time("cutoff", cutoff).
		Msg("purged terminal notifications")
}

// reclaim requeues items stuck in processing past the staleness cutoff so
// a worker crash never strands them.
func (j *Janitor) reclaim(ctx context.Context) {
	cutoff := time.Now().Add(-j.staleAfter)

	requeued, err := j.queue.ReleaseStale(ctx, cutoff)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to release stale notifications")
		return
	}

	if requeued > 0 {
		zlog.Logger.Warn().
			Int("requeued", requeued).
			Time("cutoff", cutoff).
			Msg("released stale processing notifications")
	}
}
