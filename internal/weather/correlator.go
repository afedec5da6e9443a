package weather

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/repository"
)

// Correlator ensures every newly-ingested measurement's 5-minute block has
// a fresh weather sample. Fetch failures skip the block and never propagate
// to the import job.
type Correlator struct {
	repo    *repository.WeatherRepository
	source  Source
	limiter *limiter
	clock   clockwork.Clock

	staleness time.Duration
	log       *logger.Logger
}

// CorrelatorConfig holds correlator tuning.
type CorrelatorConfig struct {
	// Staleness is the age of a stored sample (by created_at) beyond which
	// it is refetched. Defaults to 10 minutes.
	Staleness time.Duration
	// MaxConcurrent caps in-flight source fetches. Defaults to 5.
	MaxConcurrent int
	// Clock overrides the time source; nil uses the real clock.
	Clock clockwork.Clock
}

// NewCorrelator creates a Correlator.
// Parameters:
//   - repo: weather sample repository.
//   - source: weather provider.
//   - log: base logger.
//   - cfg: tuning; nil uses defaults.
// Returns:
//   - *Correlator: initialized correlator.
func NewCorrelator(repo *repository.WeatherRepository, source Source, log *logger.Logger, cfg *CorrelatorConfig) *Correlator {
	c := &Correlator{
		repo:      repo,
		source:    source,
		clock:     clockwork.NewRealClock(),
		staleness: 10 * time.Minute,
		log:       log.WithComponent("correlator"),
	}
	maxConcurrent := 5
	if cfg != nil {
		if cfg.Staleness > 0 {
			c.staleness = cfg.Staleness
		}
		if cfg.MaxConcurrent > 0 {
			maxConcurrent = cfg.MaxConcurrent
		}
		if cfg.Clock != nil {
			c.clock = cfg.Clock
		}
	}
	c.limiter = newLimiter(maxConcurrent)
	return c
}

// EnsureBlocks checks every distinct (station, block) pair and fetches
// fresh weather where the stored sample is absent or stale. Fetches run
// concurrently under the limiter.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - station: station name.
//   - blocks: measurement block times (already quantized or not; they are
//     quantized again here).
// Returns:
//   - int: number of samples written.
func (c *Correlator) EnsureBlocks(ctx context.Context, station string, blocks []time.Time) int {
	distinct := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		distinct[domain.BlockKey(b)] = struct{}{}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	written := 0

	for key := range distinct {
		existing, err := c.repo.GetByBlock(ctx, station, key)
		if err != nil {
			c.log.WithError(err).WithField("block", key).Warn("Block lookup failed")
			continue
		}
		if existing != nil && !existing.IsStale(c.clock.Now(), c.staleness) {
			continue
		}

		wg.Add(1)
		go func(blockKey string) {
			defer wg.Done()
			if err := c.limiter.Acquire(ctx); err != nil {
				return
			}
			defer c.limiter.Release()

			if c.fetchBlock(ctx, station, blockKey) {
				mu.Lock()
				written++
				mu.Unlock()
			}
		}(key)
	}
	wg.Wait()

	return written
}

// fetchBlock fetches one reading and upserts it for the block. Returns
// true when a sample was written.
func (c *Correlator) fetchBlock(ctx context.Context, station, blockKey string) bool {
	reading, err := c.source.Fetch(ctx)
	if err != nil {
		// Stale or absent data is left as-is; the job is unaffected.
		c.log.WithError(err).WithFields(logger.Fields{
			"station": station,
			"block":   blockKey,
		}).Warn("Weather fetch failed, skipping block")
		return false
	}

	sample := &domain.WeatherSample{
		Station:     station,
		Time:        blockKey,
		WindSpeed:   reading.WindSpeed,
		WindDir:     reading.WindDir,
		RelHumidity: reading.RelHumidity,
		Temperature: reading.Temperature,
		CreatedAt:   c.clock.Now(),
	}
	if err := c.repo.Upsert(ctx, sample); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{
			"station": station,
			"block":   blockKey,
		}).Warn("Weather upsert failed")
		return false
	}
	return true
}
