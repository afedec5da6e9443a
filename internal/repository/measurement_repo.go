package repository

import (
	"context"

	"github.com/timmy/noisewatch/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MeasurementRepository handles measurement persistence. The (station, time)
// uniqueness constraint is the only row-level dedup mechanism; concurrent
// workers rely on it instead of locking.
type MeasurementRepository struct {
	db *gorm.DB
}

// NewMeasurementRepository creates a new MeasurementRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *MeasurementRepository: repository instance bound to db.
func NewMeasurementRepository(db *gorm.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

// Insert persists one measurement. A conflict on (station, time) is a
// silent no-op, not an error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - m: measurement to persist.
// Returns:
//   - bool: true if a new row was written, false on duplicate.
//   - error: non-nil if the insert fails for any other reason.
func (r *MeasurementRepository) Insert(ctx context.Context, m *domain.Measurement) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station"}, {Name: "time"}},
		DoNothing: true,
	}).Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListRecent returns the newest measurements for a station ordered by
// datetime descending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - station: station name.
//   - limit: maximum rows to return.
// Returns:
//   - []domain.Measurement: matching rows, newest first.
//   - error: non-nil if the query fails.
func (r *MeasurementRepository) ListRecent(ctx context.Context, station string, limit int) ([]domain.Measurement, error) {
	var rows []domain.Measurement
	err := r.db.WithContext(ctx).
		Where("station = ?", station).
		Order("datetime DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountByStation returns the number of stored measurements for a station.
func (r *MeasurementRepository) CountByStation(ctx context.Context, station string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.Measurement{}).
		Where("station = ?", station).
		Count(&n).Error
	return n, err
}
