package reviewable

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reconciler periodically re-derives aggregate scores from the ledger for
// recently touched items. The live path keeps the invariant transactionally;
// this sweep catches drift from operator surgery or partial restores.
type Reconciler struct {
	store     Store
	log       *zap.Logger
	cron      *cron.Cron
	lookback  time.Duration
	batchSize int
}

// NewReconciler creates a reconciler sweeping items touched in the last 24h.
func NewReconciler(store Store, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		log:       log.With(zap.String("component", "review_reconciler")),
		cron:      cron.New(),
		lookback:  24 * time.Hour,
		batchSize: 500,
	}
}

// Start schedules the sweep with the given cron expression and begins running.
func (r *Reconciler) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep recounts every recently touched item once. Individual failures are
// logged and skipped; the sweep itself never aborts.
func (r *Reconciler) Sweep(ctx context.Context) {
	since := time.Now().Add(-r.lookback)
	ids, err := r.store.RecentIDs(ctx, since, r.batchSize)
	if err != nil {
		r.log.Error("failed to list items for reconciliation", zap.Error(err))
		return
	}
	var fixed int
	for _, id := range ids {
		if _, err := r.store.Recount(ctx, id); err != nil {
			r.log.Warn("failed to recount item", zap.String("reviewable_id", id.String()), zap.Error(err))
			continue
		}
		fixed++
	}
	r.log.Info("score reconciliation sweep complete",
		zap.Int("candidates", len(ids)),
		zap.Int("recounted", fixed),
	)
}
