package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/noisewatch/internal/cache"
	"github.com/timmy/noisewatch/internal/domain"
	"github.com/timmy/noisewatch/internal/observability"
	"github.com/timmy/noisewatch/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newDataRouter(t *testing.T) (*gin.Engine, *repository.MeasurementRepository, *cache.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Measurement{}, &domain.WeatherSample{}))

	measurements := repository.NewMeasurementRepository(db)
	c := cache.New(nil)
	t.Cleanup(c.Stop)

	h := NewDataHandler(measurements, repository.NewWeatherRepository(db), c, observability.NewMetricsForTesting(), time.Minute)
	r := gin.New()
	r.GET("/stations/:station/measurements", h.Measurements)
	r.GET("/stations/:station/weather", h.Weather)
	return r, measurements, c
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestMeasurementsCacheFirst(t *testing.T) {
	r, measurements, c := newDataRouter(t)

	dt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local)
	_, err := measurements.Insert(context.Background(), &domain.Measurement{
		Station:  "ort",
		Time:     "2026-07-31 12:00:00",
		Level:    55.8,
		Datetime: dt,
	})
	require.NoError(t, err)

	w := get(r, "/stations/ort/measurements")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	// second request is served from the cache
	w = get(r, "/stations/ort/measurements")
	assert.Equal(t, http.StatusOK, w.Code)
	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestMeasurementsInvalidatedByStationTag(t *testing.T) {
	r, measurements, c := newDataRouter(t)

	w := get(r, "/stations/ort/measurements")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	_, err := measurements.Insert(context.Background(), &domain.Measurement{
		Station:  "ort",
		Time:     "2026-07-31 12:00:00",
		Level:    55.8,
		Datetime: time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local),
	})
	require.NoError(t, err)

	// what the coordinator does after an import for this station
	c.InvalidateByTags([]string{"station_ort", "table_data"})

	w = get(r, "/stations/ort/measurements")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestMeasurementsLimitKeyedSeparately(t *testing.T) {
	r, _, c := newDataRouter(t)

	get(r, "/stations/ort/measurements?limit=10")
	get(r, "/stations/ort/measurements?limit=20")
	get(r, "/stations/ort/measurements?limit=bogus") // falls back to the default

	assert.Equal(t, 3, c.GetStats().Size)
}

func TestWeatherEndpoint(t *testing.T) {
	r, _, _ := newDataRouter(t)

	w := get(r, "/stations/techno/weather")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"station":"techno"`)
	assert.Contains(t, w.Body.String(), `"count":0`)
}
