package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/noisewatch/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Measurement{}, &domain.WeatherSample{}))
	return db
}

func TestMeasurementInsertDeduplicates(t *testing.T) {
	repo := NewMeasurementRepository(newTestDB(t))
	ctx := context.Background()

	m := &domain.Measurement{
		Station:  "ort",
		Time:     "2026-07-31 12:00:00",
		Level:    55.8,
		Datetime: time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local),
		RawFields: domain.RawFields{
			"Zeit":  "2026-07-31 12:00:00",
			"Pegel": "55,8",
		},
	}
	inserted, err := repo.Insert(ctx, m)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &domain.Measurement{
		Station:  "ort",
		Time:     "2026-07-31 12:00:00",
		Level:    99.9, // conflicting payload loses, the first row stands
		Datetime: time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local),
	}
	inserted, err = repo.Insert(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	// same time at a different station is distinct
	other := &domain.Measurement{
		Station:  "techno",
		Time:     "2026-07-31 12:00:00",
		Level:    70.1,
		Datetime: time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local),
	}
	inserted, err = repo.Insert(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	n, err := repo.CountByStation(ctx, "ort")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := repo.ListRecent(ctx, "ort", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 55.8, rows[0].Level)
	assert.Equal(t, "55,8", rows[0].RawFields["Pegel"])
}

func TestMeasurementListRecentOrder(t *testing.T) {
	repo := NewMeasurementRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		dt := base.Add(time.Duration(i) * time.Minute)
		_, err := repo.Insert(ctx, &domain.Measurement{
			Station:  "ort",
			Time:     dt.Format("2006-01-02 15:04:05"),
			Level:    float64(50 + i),
			Datetime: dt,
		})
		require.NoError(t, err)
	}

	rows, err := repo.ListRecent(ctx, "ort", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 52.0, rows[0].Level) // newest first
	assert.Equal(t, 51.0, rows[1].Level)
}

func TestWeatherUpsertRefreshes(t *testing.T) {
	db := newTestDB(t)
	repo := NewWeatherRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.WeatherSample{
		Station:     "ort",
		Time:        "2026-07-31 12:05",
		Temperature: 18.5,
		CreatedAt:   time.Now().Add(-time.Hour),
	}))
	require.NoError(t, repo.Upsert(ctx, &domain.WeatherSample{
		Station:     "ort",
		Time:        "2026-07-31 12:05",
		Temperature: 21.0,
		WindSpeed:   2.4,
		CreatedAt:   time.Now(),
	}))

	sample, err := repo.GetByBlock(ctx, "ort", "2026-07-31 12:05")
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, 21.0, sample.Temperature)
	assert.Equal(t, 2.4, sample.WindSpeed)

	var n int64
	require.NoError(t, db.Model(&domain.WeatherSample{}).Count(&n).Error)
	assert.Equal(t, int64(1), n) // refreshed in place, not duplicated
}

func TestWeatherGetByBlockMissing(t *testing.T) {
	repo := NewWeatherRepository(newTestDB(t))

	sample, err := repo.GetByBlock(context.Background(), "ort", "2026-07-31 00:00")
	require.NoError(t, err)
	assert.Nil(t, sample)
}
