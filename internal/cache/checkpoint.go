package cache

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Checkpointer snapshots a cache on a cron schedule so a crash loses at most
// one interval of index changes.
type Checkpointer struct {
	cron  *cron.Cron
	cache *Cache
	path  string
	log   zerolog.Logger
}

// NewCheckpointer validates schedule (standard cron or "@every 5m") and
// prepares the job. Call Start to run it.
func NewCheckpointer(c *Cache, path, schedule string, log zerolog.Logger) (*Checkpointer, error) {
	cp := &Checkpointer{cron: cron.New(), cache: c, path: path, log: log}
	if _, err := cp.cron.AddFunc(schedule, cp.run); err != nil {
		return nil, fmt.Errorf("checkpoint schedule %q: %w", schedule, err)
	}
	return cp, nil
}

func (cp *Checkpointer) Start() { cp.cron.Start() }

// Stop halts the schedule and waits for a running snapshot to finish.
func (cp *Checkpointer) Stop() {
	<-cp.cron.Stop().Done()
}

func (cp *Checkpointer) run() {
	if err := cp.cache.Snapshot(cp.path); err != nil {
		cp.log.Warn().Err(err).Str("event", "checkpoint").Msg("cache checkpoint failed")
	}
}
