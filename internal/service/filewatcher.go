package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/timmy/noisewatch/internal/config"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/logger"
)

// JobEnqueuer is the watcher's view of the coordinator. The coordinator's
// own dedup rule makes repeated enqueues of the same file harmless.
type JobEnqueuer interface {
	AddImportJob(station, filePath string, priority domain.Priority) (string, error)
}

// FileWatcherStats is the operational summary of the watcher.
type FileWatcherStats struct {
	IsActive      bool      `json:"isActive"`
	EventsSeen    int64     `json:"eventsSeen"`
	JobsEnqueued  int64     `json:"jobsEnqueued"`
	LastScanAt    time.Time `json:"lastScanAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	StartedAt     time.Time `json:"startedAt"`
}

// FileWatcherStatus extends the stats with per-station directory detail.
type FileWatcherStatus struct {
	FileWatcherStats
	Directories map[string]string `json:"directories"`
	Heartbeat   string            `json:"heartbeatFile"`
}

// FileWatcher observes the per-station drop directories and enqueues an
// import job for every new or changed eligible file. It combines fsnotify
// events with a periodic rescan so nothing is missed across restarts, and
// publishes a heartbeat timestamp file for external liveness checks.
type FileWatcher struct {
	enqueuer JobEnqueuer
	stations config.StationsConfig
	imports  config.ImportConfig
	cfg      config.WatcherConfig
	log      *logger.Logger

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	stop   chan struct{}
	wg     sync.WaitGroup
	stats  FileWatcherStats
	active bool
}

// NewFileWatcher creates a FileWatcher.
// Parameters:
//   - enqueuer: job sink, normally the coordinator.
//   - stations: station directory layout.
//   - imports: file eligibility rules.
//   - cfg: rescan/heartbeat tuning.
//   - log: base logger.
// Returns:
//   - *FileWatcher: initialized watcher; call Start to begin observing.
func NewFileWatcher(enqueuer JobEnqueuer, stations config.StationsConfig, imports config.ImportConfig, cfg config.WatcherConfig, log *logger.Logger) *FileWatcher {
	return &FileWatcher{
		enqueuer: enqueuer,
		stations: stations,
		imports:  imports,
		cfg:      cfg,
		log:      log.WithComponent("filewatcher"),
	}
}

// Start begins observing all station directories, creating them if needed.
// Returns:
//   - error: non-nil if the filesystem watcher cannot be set up.
func (w *FileWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	for _, station := range w.stations.Names {
		dir := w.stations.Dir(station)
		if err := os.MkdirAll(dir, 0755); err != nil {
			fsw.Close()
			return fmt.Errorf("creating station directory %s: %w", dir, err)
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	w.fsw = fsw
	w.stop = make(chan struct{})
	w.active = true
	w.stats = FileWatcherStats{IsActive: true, StartedAt: time.Now()}

	w.wg.Add(1)
	go w.run()

	w.log.WithField("stations", w.stations.Names).Info("File watcher started")
	return nil
}

// Stop terminates observation. Safe to call more than once.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return
	}
	w.active = false
	w.stats.IsActive = false
	close(w.stop)
	fsw := w.fsw
	w.mu.Unlock()

	fsw.Close()
	w.wg.Wait()
	w.log.Info("File watcher stopped")
}

// GetStats returns the watcher's operational summary.
func (w *FileWatcher) GetStats() FileWatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// GetDetailedStatus returns stats plus the watched directory map.
func (w *FileWatcher) GetDetailedStatus() FileWatcherStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := FileWatcherStatus{
		FileWatcherStats: w.stats,
		Directories:      make(map[string]string, len(w.stations.Names)),
		Heartbeat:        w.cfg.HeartbeatFile,
	}
	for _, station := range w.stations.Names {
		status.Directories[station] = w.stations.Dir(station)
	}
	return status
}

func (w *FileWatcher) run() {
	defer w.wg.Done()

	rescan := time.NewTicker(w.cfg.RescanInterval)
	defer rescan.Stop()
	heartbeat := time.NewTicker(w.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	// initial pass picks up files dropped while we were down
	w.ScanOnce()
	w.writeHeartbeat()

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.mu.Lock()
			w.stats.EventsSeen++
			w.mu.Unlock()
			w.handleFile(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("Filesystem watcher error")
		case <-rescan.C:
			w.ScanOnce()
		case <-heartbeat.C:
			w.writeHeartbeat()
		}
	}
}

// ScanOnce walks every station directory and enqueues all eligible files.
// The coordinator's dedup rule turns repeats into no-ops.
func (w *FileWatcher) ScanOnce() {
	for _, station := range w.stations.Names {
		dir := w.stations.Dir(station)
		entries, err := os.ReadDir(dir)
		if err != nil {
			w.log.WithError(err).WithField(logger.FieldStation, station).Warn("Cannot read station directory")
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if !EligibleFileName(e.Name(), w.imports.FileExtension, w.imports.IgnorePrefix) {
				continue
			}
			w.enqueue(station, filepath.Join(dir, e.Name()))
		}
	}
	w.mu.Lock()
	w.stats.LastScanAt = time.Now()
	w.mu.Unlock()
}

// handleFile maps an event path back to its station and enqueues it.
func (w *FileWatcher) handleFile(path string) {
	if !EligibleFileName(filepath.Base(path), w.imports.FileExtension, w.imports.IgnorePrefix) {
		return
	}
	station := w.stationFor(path)
	if station == "" {
		return
	}
	w.enqueue(station, path)
}

func (w *FileWatcher) stationFor(path string) string {
	dir := filepath.Dir(path)
	for _, station := range w.stations.Names {
		if filepath.Clean(w.stations.Dir(station)) == filepath.Clean(dir) {
			return station
		}
	}
	return ""
}

func (w *FileWatcher) enqueue(station, path string) {
	if _, err := w.enqueuer.AddImportJob(station, path, domain.PriorityNormal); err != nil {
		w.log.WithError(err).WithField("file", path).Warn("Enqueue failed")
		return
	}
	w.mu.Lock()
	w.stats.JobsEnqueued++
	w.mu.Unlock()
}

// writeHeartbeat records the current timestamp at the configured path so
// external health checks can detect a stalled watcher.
func (w *FileWatcher) writeHeartbeat() {
	if w.cfg.HeartbeatFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(w.cfg.HeartbeatFile), 0755); err != nil {
		w.log.WithError(err).Warn("Heartbeat directory unavailable")
		return
	}
	now := time.Now()
	if err := os.WriteFile(w.cfg.HeartbeatFile, []byte(now.Format(time.RFC3339)+"\n"), 0644); err != nil {
		w.log.WithError(err).Warn("Heartbeat write failed")
		return
	}
	w.mu.Lock()
	w.stats.LastHeartbeat = now
	w.mu.Unlock()
}
