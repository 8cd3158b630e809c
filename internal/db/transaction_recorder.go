// Package db persists the engine's event stream durably via GORM,
// recording arbengine.Event (spreads, executions, state changes,
// errors) as rows queryable after the fact.
package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vantablack-labs/arbengine"
)

// EventRecord is the database model for one arbengine.Event.
type EventRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Kind        string    `gorm:"index;not null"`
	Timestamp   time.Time `gorm:"index;not null"`
	Height      uint64    `gorm:"index"`
	Fingerprint string    `gorm:"index;type:varchar(255)"`
	GrossUSD    float64
	NetUSD      float64
	TxHash      string `gorm:"type:varchar(66)"`
	Message     string `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (EventRecord) TableName() string {
	return "events"
}

// EventRecorder persists arbengine.Event values via GORM, implementing
// sink.Sink so it can be wired directly into the fanout.
type EventRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder opens a MySQL-backed EventRecorder. dsn format:
// "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local".
func NewMySQLRecorder(dsn string) (*EventRecorder, error) {
	database, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to mysql: %w", err)
	}
	return newRecorderWithDB(database)
}

// NewSQLiteRecorder opens a SQLite-backed EventRecorder, the
// low-friction default for local runs and integration tests where a
// MySQL instance isn't available.
func NewSQLiteRecorder(path string) (*EventRecorder, error) {
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to sqlite: %w", err)
	}
	return newRecorderWithDB(database)
}

// OpenFromDSN picks MySQL or SQLite based on the shape of dsn, matching
// SQL_DSN's documented default of sqlite-unless-it-looks-like-MySQL: a
// MySQL DSN always contains the "@tcp(" address form, a DSN that
// doesn't is treated as a SQLite file path, defaulting to a local
// arbengine.db when dsn is empty.
func OpenFromDSN(dsn string) (*EventRecorder, error) {
	if dsn == "" {
		return NewSQLiteRecorder("arbengine.db")
	}
	if strings.Contains(dsn, "@tcp(") {
		return NewMySQLRecorder(dsn)
	}
	return NewSQLiteRecorder(dsn)
}

// NewRecorderWithDB wraps an already-open GORM handle, migrating the
// events table if needed. Exposed for tests that build their own
// sqlmock-backed *gorm.DB.
func NewRecorderWithDB(database *gorm.DB) (*EventRecorder, error) {
	return newRecorderWithDB(database)
}

func newRecorderWithDB(database *gorm.DB) (*EventRecorder, error) {
	if err := database.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("db: migrate schema: %w", err)
	}
	return &EventRecorder{db: database}, nil
}

// Record implements sink.Sink: it writes evt as one EventRecord row.
// Errors are logged through GORM's own logger rather than returned,
// since Sink.Record must never block or propagate failure to the
// hunter/executor that produced the event.
func (r *EventRecorder) Record(evt arbengine.Event) {
	record := EventRecord{
		Kind:        string(evt.Kind),
		Timestamp:   evt.Timestamp,
		Height:      evt.Height,
		Fingerprint: evt.Fingerprint,
		GrossUSD:    evt.GrossUSD,
		NetUSD:      evt.NetUSD,
		TxHash:      evt.TxHash.Hex(),
		Message:     evt.Message,
	}
	r.db.Create(&record)
}

// GetDB returns the underlying GORM handle for advanced queries.
func (r *EventRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the underlying database connection.
func (r *EventRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("db: get underlying connection: %w", err)
	}
	return sqlDB.Close()
}

// EventsByHeightRange retrieves every recorded event within [start, end].
func (r *EventRecorder) EventsByHeightRange(start, end uint64) ([]EventRecord, error) {
	var records []EventRecord
	result := r.db.Where("height BETWEEN ? AND ?", start, end).
		Order("height ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("db: query events by height range: %w", result.Error)
	}
	return records, nil
}

// CountByKind returns the total number of recorded events of kind.
func (r *EventRecorder) CountByKind(kind arbengine.EventKind) (int64, error) {
	var count int64
	result := r.db.Model(&EventRecord{}).Where("kind = ?", string(kind)).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("db: count events by kind: %w", result.Error)
	}
	return count, nil
}
