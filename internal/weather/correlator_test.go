package weather

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *repository.WeatherRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.WeatherSample{}))
	return repository.NewWeatherRepository(db)
}

// fakeSource counts fetches and tracks peak concurrency.
type fakeSource struct {
	mu       sync.Mutex
	calls    int
	inFlight int64
	peak     int64
	delay    time.Duration
	err      error
	reading  domain.WeatherReading
}

func (s *fakeSource) Fetch(ctx context.Context) (domain.WeatherReading, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	n := atomic.AddInt64(&s.inFlight, 1)
	for {
		p := atomic.LoadInt64(&s.peak)
		if n <= p || atomic.CompareAndSwapInt64(&s.peak, p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	atomic.AddInt64(&s.inFlight, -1)

	if s.err != nil {
		return domain.WeatherReading{}, s.err
	}
	return s.reading, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text"})
}

func TestEnsureBlocksFetchesMissing(t *testing.T) {
	repo := newTestRepo(t)
	source := &fakeSource{reading: domain.WeatherReading{Temperature: 21.5, WindSpeed: 3.2}}
	c := NewCorrelator(repo, source, testLogger(), nil)

	block := time.Date(2026, 7, 31, 12, 7, 0, 0, time.Local)
	written := c.EnsureBlocks(context.Background(), "ort", []time.Time{block})

	assert.Equal(t, 1, written)
	assert.Equal(t, 1, source.callCount())

	sample, err := repo.GetByBlock(context.Background(), "ort", domain.BlockKey(block))
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, 21.5, sample.Temperature)
	assert.Equal(t, "2026-07-31 12:05", sample.Time)
}

func TestEnsureBlocksStaleness(t *testing.T) {
	testCases := []struct {
		name      string
		age       time.Duration
		wantFetch bool
	}{
		{name: "11 minutes old is refetched", age: 11 * time.Minute, wantFetch: true},
		{name: "9 minutes old is reused", age: 9 * time.Minute, wantFetch: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newTestRepo(t)
			fc := clockwork.NewFakeClockAt(time.Date(2026, 7, 31, 12, 30, 0, 0, time.Local))
			source := &fakeSource{reading: domain.WeatherReading{Temperature: 18}}
			c := NewCorrelator(repo, source, testLogger(), &CorrelatorConfig{Clock: fc})

			block := time.Date(2026, 7, 31, 12, 7, 0, 0, time.Local)
			require.NoError(t, repo.Upsert(context.Background(), &domain.WeatherSample{
				Station:   "ort",
				Time:      domain.BlockKey(block),
				CreatedAt: fc.Now().Add(-tc.age),
			}))

			c.EnsureBlocks(context.Background(), "ort", []time.Time{block})

			if tc.wantFetch {
				assert.Equal(t, 1, source.callCount())
			} else {
				assert.Equal(t, 0, source.callCount())
			}
		})
	}
}

func TestEnsureBlocksBoundedConcurrency(t *testing.T) {
	repo := newTestRepo(t)
	source := &fakeSource{delay: 20 * time.Millisecond, reading: domain.WeatherReading{Temperature: 20}}
	c := NewCorrelator(repo, source, testLogger(), &CorrelatorConfig{MaxConcurrent: 5})

	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local)
	blocks := make([]time.Time, 20)
	for i := range blocks {
		blocks[i] = base.Add(time.Duration(i) * 5 * time.Minute)
	}

	written := c.EnsureBlocks(context.Background(), "techno", blocks)

	assert.Equal(t, 20, written)
	assert.Equal(t, 20, source.callCount())
	assert.LessOrEqual(t, atomic.LoadInt64(&source.peak), int64(5))
}

func TestEnsureBlocksFetchFailureSkipsBlock(t *testing.T) {
	repo := newTestRepo(t)
	source := &fakeSource{err: assert.AnError}
	c := NewCorrelator(repo, source, testLogger(), nil)

	block := time.Date(2026, 7, 31, 12, 7, 0, 0, time.Local)
	written := c.EnsureBlocks(context.Background(), "ort", []time.Time{block})

	assert.Equal(t, 0, written)

	// absent data is left absent
	sample, err := repo.GetByBlock(context.Background(), "ort", domain.BlockKey(block))
	require.NoError(t, err)
	assert.Nil(t, sample)
}

func TestEnsureBlocksDeduplicatesSameBlock(t *testing.T) {
	repo := newTestRepo(t)
	source := &fakeSource{reading: domain.WeatherReading{Temperature: 20}}
	c := NewCorrelator(repo, source, testLogger(), nil)

	// three timestamps inside one 5-minute block
	base := time.Date(2026, 7, 31, 12, 6, 0, 0, time.Local)
	blocks := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}

	written := c.EnsureBlocks(context.Background(), "ort", blocks)

	assert.Equal(t, 1, written)
	assert.Equal(t, 1, source.callCount())
}
