package domain

import "time"

// WeatherReading is one observation returned by the weather source. All
// fields are best-effort; the source may omit any of them.
type WeatherReading struct {
	WindSpeed   float64 `json:"windSpeed"`
	WindDir     string  `json:"windDir"`
	RelHumidity float64 `json:"relHumidity"`
	Temperature float64 `json:"temperature"`
}

// WeatherSample is a weather observation bound to a station and a 5-minute
// time block. (station, time) is unique; time is always a block boundary
// produced by BlockOf. Staleness is measured against CreatedAt, not the
// block itself.
type WeatherSample struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Station     string    `gorm:"type:text;not null;index:idx_weather_station_time,unique" json:"station"`
	Time        string    `gorm:"type:text;not null;index:idx_weather_station_time,unique" json:"time"`
	WindSpeed   float64   `gorm:"column:wind_speed" json:"windSpeed"`
	WindDir     string    `gorm:"column:wind_dir" json:"windDir"`
	RelHumidity float64   `gorm:"column:rel_humidity" json:"relHumidity"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName returns the database table name for WeatherSample.
func (WeatherSample) TableName() string {
	return "weather"
}

// IsStale reports whether the sample's CreatedAt is older than threshold
// relative to now.
func (s *WeatherSample) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(s.CreatedAt) > threshold
}
