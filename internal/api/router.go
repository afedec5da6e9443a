package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/noisewatch/internal/api/handler"
	"github.com/timmy/noisewatch/internal/api/middleware"
	"github.com/timmy/noisewatch/internal/logger"
	"gorm.io/gorm"
)

// RouterConfig bundles the handlers and middleware settings for the
// control API.
type RouterConfig struct {
	Mode    string
	CORS    middleware.CORSConfig
	Logger  *logger.Logger
	DB      *gorm.DB
	Import  *handler.ImportHandler
	Data    *handler.DataHandler
	Ops     *handler.OpsHandler
	Metrics bool
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(cfg *RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.DB)
	r.GET("/health", healthHandler.Health)
	if cfg.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		imports := v1.Group("/import")
		{
			imports.POST("/job", cfg.Import.AddJob)
			imports.POST("/directory", cfg.Import.AddDirectory)
			imports.POST("/bulk", cfg.Import.Bulk)
			imports.GET("/status", cfg.Import.Status)
			imports.POST("/cancel/:id", cfg.Import.Cancel)
			imports.POST("/pause", cfg.Import.Pause)
			imports.POST("/resume", cfg.Import.Resume)
		}

		if cfg.Data != nil {
			v1.GET("/stations/:station/measurements", cfg.Data.Measurements)
			v1.GET("/stations/:station/weather", cfg.Data.Weather)
		}

		if cfg.Ops != nil {
			v1.GET("/cache/stats", cfg.Ops.CacheStats)
			v1.POST("/cache/clear", cfg.Ops.CacheClear)
			v1.GET("/watchers/status", cfg.Ops.WatcherStatus)
			v1.POST("/weather/update", cfg.Ops.WeatherUpdate)
		}
	}

	return r
}
