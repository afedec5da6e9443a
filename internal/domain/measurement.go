package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RawFields is a custom type for storing the untouched CSV columns of a row
// as JSON in the database.
type RawFields map[string]string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded representation of the map.
//   - error: non-nil if marshaling fails.
func (f RawFields) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (f *RawFields) Scan(value interface{}) error {
	if value == nil {
		*f = RawFields{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan RawFields")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, f)
}

// Measurement represents one parsed sound-level reading from a station's
// drop directory. A (station, time) pair is unique; re-ingesting an
// already-seen row is a no-op insert.
type Measurement struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Station    string    `gorm:"type:text;not null;index:idx_measurements_station_time,unique" json:"station"`
	Time       string    `gorm:"type:text;not null;index:idx_measurements_station_time,unique" json:"time"`
	Level      float64   `json:"level"`
	SourceFile string    `gorm:"column:source_file" json:"source_file"`
	Datetime   time.Time `gorm:"index:idx_measurements_datetime" json:"datetime"`
	RawFields  RawFields `gorm:"type:text" json:"raw_fields,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Measurement.
func (Measurement) TableName() string {
	return "measurements"
}
