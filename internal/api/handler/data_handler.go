package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/noisewatch/internal/cache"
	"github.com/timmy/noisewatch/internal/logger"
	"github.com/timmy/noisewatch/internal/observability"
	"github.com/timmy/noisewatch/internal/repository"
)

// DataHandler serves measurement and weather views through the cache.
// Entries are tagged so the coordinator's invalidation after each import
// keeps them coherent with the store.
type DataHandler struct {
	measurements *repository.MeasurementRepository
	weather      *repository.WeatherRepository
	cache        *cache.Cache
	metrics      *observability.Metrics
	ttl          time.Duration
}

// NewDataHandler creates a new data handler.
// Parameters:
//   - measurements: measurement repository.
//   - weather: weather repository.
//   - c: shared cache.
//   - metrics: prometheus metrics; may be nil.
//   - ttl: cache TTL for computed views.
// Returns:
//   - *DataHandler: initialized handler.
func NewDataHandler(measurements *repository.MeasurementRepository, weather *repository.WeatherRepository, c *cache.Cache, metrics *observability.Metrics, ttl time.Duration) *DataHandler {
	return &DataHandler{
		measurements: measurements,
		weather:      weather,
		cache:        c,
		metrics:      metrics,
		ttl:          ttl,
	}
}

// lookup wraps a cache read with hit/miss accounting.
func (h *DataHandler) lookup(key string) (interface{}, bool) {
	cached, ok := h.cache.Get(key)
	if h.metrics != nil {
		if ok {
			h.metrics.CacheOps.WithLabelValues("hit").Inc()
		} else {
			h.metrics.CacheOps.WithLabelValues("miss").Inc()
		}
	}
	return cached, ok
}

// Measurements returns the newest rows for a station, cache-first.
func (h *DataHandler) Measurements(c *gin.Context) {
	station := c.Param("station")
	limit := queryInt(c, "limit", 100)

	key := fmt.Sprintf("measurements:%s:%d", station, limit)
	if cached, ok := h.lookup(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	rows, err := h.measurements.ListRecent(c.Request.Context(), station, limit)
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Measurement query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	payload := gin.H{"station": station, "measurements": rows, "count": len(rows)}
	h.cache.Set(key, payload, h.ttl, []string{"table_data", "station_" + station})
	c.JSON(http.StatusOK, payload)
}

// Weather returns the newest weather samples for a station, cache-first.
func (h *DataHandler) Weather(c *gin.Context) {
	station := c.Param("station")
	limit := queryInt(c, "limit", 24)

	key := fmt.Sprintf("weather:%s:%d", station, limit)
	if cached, ok := h.lookup(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	rows, err := h.weather.ListRecent(c.Request.Context(), station, limit)
	if err != nil {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Weather query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	payload := gin.H{"station": station, "weather": rows, "count": len(rows)}
	h.cache.Set(key, payload, h.ttl, []string{"weather", "station_" + station})
	c.JSON(http.StatusOK, payload)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
