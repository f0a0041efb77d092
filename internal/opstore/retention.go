package opstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionSweep periodically purges soft-deleted entities whose deleted_at
// is older than MaxAge, freeing the rows the soft-delete left behind:
// a cron.Cron wrapped in a start/stop lifecycle tied to a context,
// running exactly one sweep on a fixed spec.
type RetentionSweep struct {
	store *Store
	c     *cron.Cron
	log   *slog.Logger
	MaxAge time.Duration
}

// NewRetentionSweep builds a sweep that hard-deletes entities soft-deleted
// more than maxAge ago, running on the given cron spec (e.g. "0 3 * * *"
// for daily at 03:00).
func NewRetentionSweep(store *Store, spec string, maxAge time.Duration, log *slog.Logger) (*RetentionSweep, error) {
	if log == nil {
		log = slog.Default()
	}
	rs := &RetentionSweep{store: store, c: cron.New(), log: log, MaxAge: maxAge}
	if _, err := rs.c.AddFunc(spec, rs.sweep); err != nil {
		return nil, err
	}
	return rs, nil
}

// Start runs the cron scheduler until ctx is cancelled.
func (rs *RetentionSweep) Start(ctx context.Context) {
	rs.c.Start()
	rs.log.Info("retention sweep started")
	<-ctx.Done()
	rs.c.Stop()
	rs.log.Info("retention sweep stopped")
}

func (rs *RetentionSweep) sweep() {
	cutoff := time.Now().UTC().Add(-rs.MaxAge)
	n, err := rs.purgeBefore(cutoff)
	if err != nil {
		rs.log.Error("retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		rs.log.Info("retention sweep purged entities", "count", n)
	}
}

func (rs *RetentionSweep) purgeBefore(cutoff time.Time) (int, error) {
	rs.store.mu.Lock()
	defer rs.store.mu.Unlock()

	res, err := rs.store.db.Exec(
		`DELETE FROM entities WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
