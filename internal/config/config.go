package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Stations StationsConfig `mapstructure:"stations"`
	Import   ImportConfig   `mapstructure:"import"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StationsConfig describes the per-station drop directories. Each station
// name is also the directory name under DataDir.
type StationsConfig struct {
	DataDir string   `mapstructure:"data_dir"`
	Names   []string `mapstructure:"names"`
}

// Dir returns the drop directory for a station.
func (s StationsConfig) Dir(station string) string {
	return filepath.Join(s.DataDir, station)
}

type ImportConfig struct {
	Workers       int    `mapstructure:"workers"`
	RecentJobs    int    `mapstructure:"recent_jobs"`
	FileExtension string `mapstructure:"file_extension"`
	Delimiter     string `mapstructure:"delimiter"`
	IgnorePrefix  string `mapstructure:"ignore_prefix"`
}

type WeatherConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	Staleness      time.Duration `mapstructure:"staleness"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
}

type CacheConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type WatcherConfig struct {
	RescanInterval    time.Duration `mapstructure:"rescan_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatFile     string        `mapstructure:"heartbeat_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from the given YAML file (or ./configs/config.yaml
// when empty), applies defaults, and allows environment variable overrides.
// Parameters:
//   - configPath: explicit config file path, may be empty.
// Returns:
//   - *Config: populated configuration.
//   - error: non-nil if the file exists but cannot be read or decoded.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("weather.base_url", "WEATHER_BASE_URL")
	v.BindEnv("weather.api_key", "WEATHER_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/noisewatch.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("stations.data_dir", "./data/stations")
	v.SetDefault("stations.names", []string{"ort", "techno", "heuballern", "band"})

	v.SetDefault("import.workers", 3)
	v.SetDefault("import.recent_jobs", 50)
	v.SetDefault("import.file_extension", ".csv")
	v.SetDefault("import.delimiter", ";")
	v.SetDefault("import.ignore_prefix", "_gsdata_")

	v.SetDefault("weather.base_url", "http://localhost:9090/current")
	v.SetDefault("weather.timeout", 15*time.Second)
	v.SetDefault("weather.update_interval", 5*time.Minute)
	v.SetDefault("weather.staleness", 10*time.Minute)
	v.SetDefault("weather.max_concurrent", 5)

	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.sweep_interval", time.Minute)

	v.SetDefault("watcher.rescan_interval", 30*time.Second)
	v.SetDefault("watcher.heartbeat_interval", 15*time.Second)
	v.SetDefault("watcher.heartbeat_file", "./data/.watcher_heartbeat")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}
