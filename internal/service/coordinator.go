package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/noisewatch/internal/config"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/observability"
)

// FileProcessor is the coordinator's view of the CSV processor.
type FileProcessor interface {
	ProcessFile(ctx context.Context, station, path string) (*ProcessResult, error)
	EligibleFiles(dir string) ([]string, error)
}

// BlockCorrelator ensures weather samples exist for the given blocks and
// returns the number of samples written.
type BlockCorrelator interface {
	EnsureBlocks(ctx context.Context, station string, blocks []time.Time) int
}

// TagInvalidator is the coordinator's view of the cache.
type TagInvalidator interface {
	InvalidateByTags(tags []string) int
}

// Stats aggregates coordinator throughput numbers.
type Stats struct {
	TotalJobs         int     `json:"totalJobs"`
	CompletedJobs     int     `json:"completedJobs"`
	FailedJobs        int     `json:"failedJobs"`
	TotalProcessed    int     `json:"totalProcessed"`
	TotalErrors       int     `json:"totalErrors"`
	AvgProcessingTime float64 `json:"avgProcessingTime"` // exponentially averaged ms per job
}

// Status is a consistent snapshot of the coordinator's state.
type Status struct {
	Paused          bool          `json:"paused"`
	ActiveJobs      []*domain.Job `json:"activeJobs"`
	QueuedJobs      []*domain.Job `json:"queuedJobs"`
	RecentCompleted []*domain.Job `json:"recentCompleted"`
	Stats           Stats         `json:"stats"`
}

// BulkResult reports a bulk import submission.
type BulkResult struct {
	JobIDs            []string      `json:"jobIds"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
}

// avgAlpha is the EMA weight of the newest job duration.
const avgAlpha = 0.2

// Coordinator is the single authority for scheduling and executing import
// jobs. Three FIFO priority lanes feed a fixed-size worker pool; one mutex
// owns all queue and job state. A (station, filePath) pair has at most one
// non-terminal job at any time.
type Coordinator struct {
	mu   sync.Mutex
	cond *sync.Cond

	lanes  [3][]*domain.Job
	byKey  map[string]*domain.Job // non-terminal job per (station, filePath)
	active map[string]*domain.Job

	recent    []*domain.Job // ring, newest first
	recentCap int

	paused  bool
	stopped bool
	stats   Stats

	workers    int
	processor  FileProcessor
	correlator BlockCorrelator
	cache      TagInvalidator
	metrics    *observability.Metrics
	stations   config.StationsConfig

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	log       *logger.Logger
}

// CoordinatorConfig holds coordinator tuning.
type CoordinatorConfig struct {
	Workers    int
	RecentJobs int
}

// NewCoordinator creates a Coordinator. Call Start to launch the worker
// pool and Shutdown to drain it.
// Parameters:
//   - processor: file processor.
//   - correlator: weather correlator; may be nil to skip correlation.
//   - cache: cache invalidator; may be nil.
//   - metrics: prometheus metrics; may be nil.
//   - stations: station layout for bulk imports.
//   - log: base logger.
//   - cfg: worker count and recent ring size.
// Returns:
//   - *Coordinator: initialized coordinator.
func NewCoordinator(
	processor FileProcessor,
	correlator BlockCorrelator,
	cache TagInvalidator,
	metrics *observability.Metrics,
	stations config.StationsConfig,
	log *logger.Logger,
	cfg *CoordinatorConfig,
) *Coordinator {
	workers := 3
	recentCap := 50
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.RecentJobs > 0 {
			recentCap = cfg.RecentJobs
		}
	}
	c := &Coordinator{
		byKey:      make(map[string]*domain.Job),
		active:     make(map[string]*domain.Job),
		recentCap:  recentCap,
		workers:    workers,
		processor:  processor,
		correlator: correlator,
		cache:      cache,
		metrics:    metrics,
		stations:   stations,
		log:        log.WithComponent("coordinator"),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start launches the worker pool.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx != nil {
		return
	}
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	c.log.WithField("workers", c.workers).Info("Coordinator started")
}

// Shutdown stops dequeuing and waits for active jobs to finish, up to the
// context deadline.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	c.cond.Broadcast()
	cancel := c.runCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func jobKey(station, filePath string) string {
	return station + "\x00" + filePath
}

// AddImportJob enqueues one file import. An existing non-terminal job for
// the same (station, filePath) wins: its id is returned and nothing new is
// created.
// Parameters:
//   - station: station name; required.
//   - filePath: file to import; required.
//   - priority: scheduling lane.
// Returns:
//   - string: job id (new or existing).
//   - error: wraps domain.ErrInvalidArgument on missing inputs.
func (c *Coordinator) AddImportJob(station, filePath string, priority domain.Priority) (string, error) {
	if station == "" {
		return "", domain.InvalidArgumentf("station is required")
	}
	if filePath == "" {
		return "", domain.InvalidArgumentf("filePath is required")
	}
	if priority == "" {
		priority = domain.PriorityNormal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := jobKey(station, filePath)
	if existing, ok := c.byKey[key]; ok {
		return existing.ID, nil
	}

	job := &domain.Job{
		ID:         uuid.New().String(),
		Station:    station,
		FilePath:   filePath,
		Priority:   priority,
		Status:     domain.JobStatusQueued,
		EnqueuedAt: time.Now(),
	}
	lane := priority.Lane()
	c.lanes[lane] = append(c.lanes[lane], job)
	c.byKey[key] = job
	c.stats.TotalJobs++
	if c.metrics != nil {
		c.metrics.QueueDepth.Inc()
	}
	c.cond.Signal()

	c.log.WithFields(logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldStation: station,
		"file":              filePath,
		"priority":          priority,
	}).Info("Job enqueued")

	return job.ID, nil
}

// AddDirectoryImport enqueues a job for every eligible file in a
// directory, in discovery order.
// Parameters:
//   - station: station name; required.
//   - dirPath: directory to enumerate; required.
//   - priority: scheduling lane for all jobs.
// Returns:
//   - []string: job ids in discovery order.
//   - error: wraps domain.ErrInvalidArgument on missing inputs or an
//     unreadable directory.
func (c *Coordinator) AddDirectoryImport(station, dirPath string, priority domain.Priority) ([]string, error) {
	if station == "" {
		return nil, domain.InvalidArgumentf("station is required")
	}
	if dirPath == "" {
		return nil, domain.InvalidArgumentf("dirPath is required")
	}

	files, err := c.processor.EligibleFiles(dirPath)
	if err != nil {
		return nil, domain.InvalidArgumentf("cannot read directory %s: %v", dirPath, err)
	}

	ids := make([]string, 0, len(files))
	for _, path := range files {
		id, err := c.AddImportJob(station, path, priority)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// StartBulkImport enqueues directory imports for every configured station.
// The duration estimate is the historical average per-job time multiplied
// by the number of jobs enqueued; zero without history.
// Returns:
//   - *BulkResult: job ids and the estimate.
//   - error: non-nil if a station directory cannot be read.
func (c *Coordinator) StartBulkImport() (*BulkResult, error) {
	var all []string
	for _, station := range c.stations.Names {
		ids, err := c.AddDirectoryImport(station, c.stations.Dir(station), domain.PriorityNormal)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				// missing drop directory: nothing to import for this station
				c.log.WithError(err).WithField(logger.FieldStation, station).Warn("Skipping station in bulk import")
				continue
			}
			return nil, err
		}
		all = append(all, ids...)
	}

	c.mu.Lock()
	avg := c.stats.AvgProcessingTime
	c.mu.Unlock()

	return &BulkResult{
		JobIDs:            all,
		EstimatedDuration: time.Duration(avg*float64(len(all))) * time.Millisecond,
	}, nil
}

// GetStatus returns a snapshot of active, queued, and recently completed
// jobs plus aggregate stats. The returned jobs are clones.
func (c *Coordinator) GetStatus() *Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &Status{Paused: c.paused, Stats: c.stats}
	for _, job := range c.active {
		st.ActiveJobs = append(st.ActiveJobs, job.Clone())
	}
	for _, lane := range c.lanes {
		for _, job := range lane {
			st.QueuedJobs = append(st.QueuedJobs, job.Clone())
		}
	}
	for _, job := range c.recent {
		st.RecentCompleted = append(st.RecentCompleted, job.Clone())
	}
	return st
}

// CancelJob removes a queued job before it runs. Active and terminal jobs
// are not cancellable: partial file processing cannot be safely unwound.
// Parameters:
//   - jobID: id returned from a scheduling call.
// Returns:
//   - bool: true if the job was queued and is now cancelled.
func (c *Coordinator) CancelJob(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for lane := range c.lanes {
		for i, job := range c.lanes[lane] {
			if job.ID != jobID {
				continue
			}
			c.lanes[lane] = append(c.lanes[lane][:i], c.lanes[lane][i+1:]...)
			now := time.Now()
			job.Status = domain.JobStatusCancelled
			job.CompletedAt = &now
			delete(c.byKey, jobKey(job.Station, job.FilePath))
			c.pushRecentLocked(job)
			if c.metrics != nil {
				c.metrics.QueueDepth.Dec()
				c.metrics.JobsCancelled.Inc()
			}
			c.log.WithField(logger.FieldJobID, jobID).Info("Job cancelled")
			return true
		}
	}
	return false
}

// Pause stops workers from starting new jobs. Active jobs run to
// completion.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	c.log.Info("Coordinator paused")
}

// Resume restarts dequeuing.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	c.paused = false
	c.cond.Broadcast()
	c.mu.Unlock()
	c.log.Info("Coordinator resumed")
}

func (c *Coordinator) queuedLocked() int {
	n := 0
	for _, lane := range c.lanes {
		n += len(lane)
	}
	return n
}

// popLocked removes the head of the highest-priority non-empty lane.
func (c *Coordinator) popLocked() *domain.Job {
	for lane := range c.lanes {
		if len(c.lanes[lane]) > 0 {
			job := c.lanes[lane][0]
			c.lanes[lane] = c.lanes[lane][1:]
			return job
		}
	}
	return nil
}

func (c *Coordinator) pushRecentLocked(job *domain.Job) {
	c.recent = append([]*domain.Job{job}, c.recent...)
	if len(c.recent) > c.recentCap {
		c.recent = c.recent[:c.recentCap]
	}
}

func (c *Coordinator) worker() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		for !c.stopped && (c.paused || c.queuedLocked() == 0) {
			c.cond.Wait()
		}
		if c.stopped {
			c.mu.Unlock()
			return
		}
		job := c.popLocked()
		now := time.Now()
		job.Status = domain.JobStatusActive
		job.StartedAt = &now
		c.active[job.ID] = job
		if c.metrics != nil {
			c.metrics.QueueDepth.Dec()
			c.metrics.ActiveJobs.Inc()
		}
		c.mu.Unlock()

		c.execute(job)
	}
}

// execute runs one job end to end: parse, correlate weather, invalidate
// cache tags, record the outcome. A file-level error fails only this job.
func (c *Coordinator) execute(job *domain.Job) {
	ctx := logger.WithFields(c.runCtx, logger.Fields{
		logger.FieldJobID:   job.ID,
		logger.FieldStation: job.Station,
	})

	var weatherWritten int
	result, err := c.processor.ProcessFile(ctx, job.Station, job.FilePath)
	if err == nil && c.correlator != nil && len(result.Blocks) > 0 {
		weatherWritten = c.correlator.EnsureBlocks(ctx, job.Station, result.Blocks)
	}

	now := time.Now()
	duration := now.Sub(*job.StartedAt)

	c.mu.Lock()
	job.CompletedAt = &now
	if err != nil {
		job.Status = domain.JobStatusFailed
		job.Errors = append(job.Errors, err.Error())
		c.stats.FailedJobs++
	} else {
		job.Status = domain.JobStatusCompleted
		job.RowsInserted = result.Inserted
		job.RowErrors = result.RowErrors
		c.stats.CompletedJobs++
		c.stats.TotalProcessed += result.Inserted
		c.stats.TotalErrors += result.RowErrors
	}
	ms := float64(duration.Milliseconds())
	if c.stats.AvgProcessingTime == 0 {
		c.stats.AvgProcessingTime = ms
	} else {
		c.stats.AvgProcessingTime = (1-avgAlpha)*c.stats.AvgProcessingTime + avgAlpha*ms
	}
	delete(c.active, job.ID)
	delete(c.byKey, jobKey(job.Station, job.FilePath))
	c.pushRecentLocked(job)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveJobs.Dec()
		c.metrics.JobDuration.Observe(duration.Seconds())
		if err != nil {
			c.metrics.JobsFailed.Inc()
		} else {
			c.metrics.JobsCompleted.Inc()
			c.metrics.RowsInserted.Add(float64(result.Inserted))
			c.metrics.RowErrors.Add(float64(result.RowErrors))
		}
	}

	if c.cache != nil {
		tags := []string{"station_" + job.Station, "table_data"}
		if weatherWritten > 0 {
			tags = append(tags, "weather")
		}
		c.cache.InvalidateByTags(tags)
	}

	entry := logger.FromContext(ctx).WithFields(logger.Fields{
		"status":      job.Status,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("Job failed")
	} else {
		entry.WithFields(logger.Fields{
			"inserted":        job.RowsInserted,
			"row_errors":      job.RowErrors,
			"weather_written": weatherWritten,
		}).Info("Job completed")
	}
}
