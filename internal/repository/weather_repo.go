package repository

import (
	"context"
	"errors"

	"github.com/timmy/noisewatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WeatherRepository handles weather sample persistence keyed by
// (station, block time).
type WeatherRepository struct {
	db *gorm.DB
}

// NewWeatherRepository creates a new WeatherRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *WeatherRepository: repository instance bound to db.
func NewWeatherRepository(db *gorm.DB) *WeatherRepository {
	return &WeatherRepository{db: db}
}

// GetByBlock retrieves the sample for a station and block key. A missing
// sample returns (nil, nil).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - station: station name.
//   - blockKey: block boundary key produced by domain.BlockKey.
// Returns:
//   - *domain.WeatherSample: sample if present, nil when absent.
//   - error: non-nil if the lookup fails.
func (r *WeatherRepository) GetByBlock(ctx context.Context, station, blockKey string) (*domain.WeatherSample, error) {
	var sample domain.WeatherSample
	err := r.db.WithContext(ctx).
		First(&sample, "station = ? AND time = ?", station, blockKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

// Upsert creates or refreshes the sample for its (station, time) key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sample: sample to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *WeatherRepository) Upsert(ctx context.Context, sample *domain.WeatherSample) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station"}, {Name: "time"}},
		UpdateAll: true,
	}).Create(sample).Error
}

// ListRecent returns the newest samples for a station ordered by creation
// time descending.
func (r *WeatherRepository) ListRecent(ctx context.Context, station string, limit int) ([]domain.WeatherSample, error) {
	var rows []domain.WeatherSample
	err := r.db.WithContext(ctx).
		Where("station = ?", station).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
