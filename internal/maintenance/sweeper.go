package maintenance

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pkoukos/stockroom/internal/scheduler"
	"github.com/pkoukos/stockroom/internal/storage"
)

// DefaultSchedule runs the sweep hourly.
const DefaultSchedule = "@hourly"

// Sweeper periodically purges expired entries from backends without
// native TTL support and prunes execution-history indexes whose records
// have expired.
type Sweeper struct {
	adapter storage.Adapter
	history *scheduler.HistoryRegistry
	cron    *cron.Cron
	log     zerolog.Logger
}

// NewSweeper creates a maintenance sweeper.
func NewSweeper(adapter storage.Adapter, history *scheduler.HistoryRegistry, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		adapter: adapter,
		history: history,
		cron:    cron.New(),
		log:     log.With().Str("component", "maintenance").Logger(),
	}
}

// Start registers the sweep on the given cron schedule and starts the
// cron runner. An empty schedule uses DefaultSchedule.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Msg("Maintenance sweeper started")
	return nil
}

// Stop stops the cron runner and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Maintenance sweeper stopped")
}

// Sweep runs one maintenance pass. Errors are logged, never fatal; the
// next pass retries.
func (s *Sweeper) Sweep() {
	start := time.Now()

	if purger, ok := s.adapter.(storage.Purger); ok {
		purged, err := purger.PurgeExpired(time.Now().UTC())
		if err != nil {
			s.log.Error().Err(err).Msg("Expired-key purge failed")
		} else if purged > 0 {
			s.log.Info().Int("purged", purged).Msg("Expired keys purged")
		}
	}

	pruned, err := s.pruneHistoryIndexes()
	if err != nil {
		s.log.Error().Err(err).Msg("History index prune failed")
	} else if pruned > 0 {
		s.log.Info().Int("pruned", pruned).Msg("Dangling history entries pruned")
	}

	s.log.Debug().Dur("elapsed", time.Since(start)).Msg("Maintenance sweep finished")
}

// pruneHistoryIndexes drops index entries pointing at expired execution
// records, one index per job.
func (s *Sweeper) pruneHistoryIndexes() (int, error) {
	keys, err := s.adapter.Keys(scheduler.JobHistoryIndexPrefix + "*")
	if err != nil {
		return 0, err
	}

	total := 0
	for _, key := range keys {
		jobID := strings.TrimPrefix(key, scheduler.JobHistoryIndexPrefix)
		if jobID == key || jobID == "" {
			continue
		}
		dropped, err := s.history.PruneIndex(jobID)
		if err != nil {
			return total, err
		}
		total += dropped
	}
	return total, nil
}
