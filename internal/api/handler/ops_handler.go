package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/noisewatch/internal/cache"
	"github.com/timmy/noisewatch/internal/service"
)

// OpsHandler exposes cache statistics and watcher status for operators.
type OpsHandler struct {
	cache          *cache.Cache
	fileWatcher    *service.FileWatcher
	weatherWatcher *service.WeatherWatcher
}

// NewOpsHandler creates a new operations handler. Watchers may be nil when
// running the API without background ingestion.
func NewOpsHandler(c *cache.Cache, fw *service.FileWatcher, ww *service.WeatherWatcher) *OpsHandler {
	return &OpsHandler{cache: c, fileWatcher: fw, weatherWatcher: ww}
}

// CacheStats returns lifetime cache counters and current contents.
func (h *OpsHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.GetStats())
}

// CacheClear removes every cache entry. Lifetime counters survive.
func (h *OpsHandler) CacheClear(c *gin.Context) {
	h.cache.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// WatcherStatus returns the detailed status of both watchers.
func (h *OpsHandler) WatcherStatus(c *gin.Context) {
	resp := gin.H{}
	if h.fileWatcher != nil {
		resp["files"] = h.fileWatcher.GetDetailedStatus()
	}
	if h.weatherWatcher != nil {
		resp["weather"] = h.weatherWatcher.GetDetailedStatus()
	}
	c.JSON(http.StatusOK, resp)
}

// WeatherUpdate triggers one immediate weather fetch, bypassing the
// schedule.
func (h *OpsHandler) WeatherUpdate(c *gin.Context) {
	if h.weatherWatcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather watcher not running"})
		return
	}
	sample, err := h.weatherWatcher.ManualUpdate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sample)
}
