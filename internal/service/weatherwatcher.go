package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/timmy/noisewatch/internal/config"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/observability"
	"github.com/timmy/noisewatch/internal/repository"
	"github.com/timmy/noisewatch/internal/weather"
)

// WeatherWatcherStats is the operational summary of the weather poller.
type WeatherWatcherStats struct {
	IsActive            bool      `json:"isActive"`
	SuccessfulUpdates   int64     `json:"successfulUpdates"`
	FailedUpdates       int64     `json:"failedUpdates"`
	AverageResponseTime float64   `json:"averageResponseTime"` // exponentially averaged ms
	LastUpdateAt        time.Time `json:"lastUpdateAt"`
	LastError           string    `json:"lastError,omitempty"`
	StartedAt           time.Time `json:"startedAt"`
}

// WeatherWatcherStatus extends the stats with configuration detail,
// mirroring the file watcher for operational symmetry.
type WeatherWatcherStatus struct {
	WeatherWatcherStats
	Interval time.Duration `json:"interval"`
	Stations []string      `json:"stations"`
}

// WeatherWatcher keeps the "current" weather fresh independent of import
// activity: on a fixed interval it fetches one reading and upserts a
// sample for the current block of every configured station.
type WeatherWatcher struct {
	source    weather.Source
	repo      *repository.WeatherRepository
	cache     TagInvalidator
	metrics   *observability.Metrics
	stations  config.StationsConfig
	interval  time.Duration
	scheduler *gocron.Scheduler
	log       *logger.Logger

	mu    sync.Mutex
	stats WeatherWatcherStats
}

// NewWeatherWatcher creates a WeatherWatcher.
// Parameters:
//   - source: weather provider.
//   - repo: weather sample repository.
//   - cache: cache invalidator; may be nil.
//   - metrics: prometheus metrics; may be nil.
//   - stations: stations a current sample is written for.
//   - interval: polling interval; values below one minute are clamped.
//   - log: base logger.
// Returns:
//   - *WeatherWatcher: initialized watcher; call Start to begin polling.
func NewWeatherWatcher(
	source weather.Source,
	repo *repository.WeatherRepository,
	cache TagInvalidator,
	metrics *observability.Metrics,
	stations config.StationsConfig,
	interval time.Duration,
	log *logger.Logger,
) *WeatherWatcher {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &WeatherWatcher{
		source:   source,
		repo:     repo,
		cache:    cache,
		metrics:  metrics,
		stations: stations,
		interval: interval,
		log:      log.WithComponent("weatherwatcher"),
	}
}

// Start schedules the periodic update.
// Returns:
//   - error: non-nil if the job cannot be scheduled.
func (w *WeatherWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return nil
	}

	s := gocron.NewScheduler(time.Local)
	if _, err := s.Every(w.interval).Do(w.update); err != nil {
		return err
	}
	s.StartAsync()

	w.scheduler = s
	w.stats.IsActive = true
	w.stats.StartedAt = time.Now()
	w.log.WithField("interval", w.interval.String()).Info("Weather watcher started")
	return nil
}

// Stop cancels the schedule. Safe to call more than once.
func (w *WeatherWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler == nil {
		return
	}
	w.scheduler.Stop()
	w.scheduler = nil
	w.stats.IsActive = false
	w.log.Info("Weather watcher stopped")
}

// ManualUpdate performs one fetch immediately, bypassing the schedule.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *domain.WeatherSample: the stored sample for the first configured
//     station's current block.
//   - error: the fetch or store error, propagated unwrapped.
func (w *WeatherWatcher) ManualUpdate(ctx context.Context) (*domain.WeatherSample, error) {
	return w.refresh(ctx)
}

// update is the scheduled entry point.
func (w *WeatherWatcher) update() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := w.refresh(ctx); err != nil {
		w.log.WithError(err).Warn("Scheduled weather update failed")
	}
}

func (w *WeatherWatcher) refresh(ctx context.Context) (*domain.WeatherSample, error) {
	start := time.Now()
	reading, err := w.source.Fetch(ctx)
	elapsed := time.Since(start)

	w.mu.Lock()
	ms := float64(elapsed.Milliseconds())
	if w.stats.AverageResponseTime == 0 {
		w.stats.AverageResponseTime = ms
	} else {
		w.stats.AverageResponseTime = (1-avgAlpha)*w.stats.AverageResponseTime + avgAlpha*ms
	}
	if err != nil {
		w.stats.FailedUpdates++
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		if w.metrics != nil {
			w.metrics.WeatherFetches.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	now := time.Now()
	blockKey := domain.BlockKey(now)
	var first *domain.WeatherSample
	for _, station := range w.stations.Names {
		sample := &domain.WeatherSample{
			Station:     station,
			Time:        blockKey,
			WindSpeed:   reading.WindSpeed,
			WindDir:     reading.WindDir,
			RelHumidity: reading.RelHumidity,
			Temperature: reading.Temperature,
			CreatedAt:   now,
		}
		if err := w.repo.Upsert(ctx, sample); err != nil {
			w.mu.Lock()
			w.stats.FailedUpdates++
			w.stats.LastError = err.Error()
			w.mu.Unlock()
			return nil, err
		}
		if first == nil {
			first = sample
		}
	}

	w.mu.Lock()
	w.stats.SuccessfulUpdates++
	w.stats.LastUpdateAt = now
	w.stats.LastError = ""
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.WeatherFetches.WithLabelValues("success").Inc()
	}
	if w.cache != nil {
		w.cache.InvalidateByTags([]string{"weather"})
	}

	w.log.WithFields(logger.Fields{
		"block":       blockKey,
		"temperature": reading.Temperature,
		"wind_speed":  reading.WindSpeed,
	}).Debug("Current weather refreshed")

	return first, nil
}

// GetStats returns the watcher's operational summary.
func (w *WeatherWatcher) GetStats() WeatherWatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// GetDetailedStatus returns stats plus configuration detail.
func (w *WeatherWatcher) GetDetailedStatus() WeatherWatcherStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WeatherWatcherStatus{
		WeatherWatcherStats: w.stats,
		Interval:            w.interval,
		Stations:            w.stations.Names,
	}
}
