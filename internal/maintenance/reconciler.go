// Package maintenance runs the nightly reconciliation pass: streaks decay
// after a missed day, and completion totals are recounted because the
// interactive path writes task status and aggregates without a transaction.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Store interface {
	ResetStaleStreaks(ctx context.Context, cutoff time.Time) (int64, error)
	RecountCompletedTasks(ctx context.Context) (int64, error)
}

type Reconciler struct {
	store Store
	log   *slog.Logger
	cron  *cron.Cron
}

func NewReconciler(store Store, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store: store,
		log:   log,
		cron:  cron.New(),
	}
}

// Start registers the nightly job (00:05) and starts the scheduler.
func (r *Reconciler) Start() error {
	if _, err := r.cron.AddFunc("5 0 * * *", r.RunOnce); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// RunOnce is exported so deploy tooling can trigger a pass out of schedule.
func (r *Reconciler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// A streak survives until a full calendar day passes with no activity.
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	reset, err := r.store.ResetStaleStreaks(ctx, cutoff)
	if err != nil {
		r.log.Error("reconcile: streak reset failed", "err", err)
	} else if reset > 0 {
		r.log.Info("reconcile: streaks reset", "count", reset)
	}

	healed, err := r.store.RecountCompletedTasks(ctx)
	if err != nil {
		r.log.Error("reconcile: completion recount failed", "err", err)
	} else if healed > 0 {
		r.log.Info("reconcile: completion totals healed", "count", healed)
	}
}
