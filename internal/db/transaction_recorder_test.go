package db

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/vantablack-labs/arbengine"
)

func TestEventRecorder_Record_InsertsRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to create gorm DB: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `events`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recorder := &EventRecorder{db: gormDB}

	evt := arbengine.Event{
		Kind:        arbengine.EventExecution,
		Timestamp:   time.Now(),
		Height:      12345,
		Fingerprint: "USDC-WETH/DexA-DexB",
		GrossUSD:    42.5,
		NetUSD:      38.1,
		TxHash:      common.HexToHash("0xabc"),
		Message:     "executed",
	}

	recorder.Record(evt)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEventRecord_TableName(t *testing.T) {
	record := EventRecord{}
	expected := "events"
	if record.TableName() != expected {
		t.Errorf("TableName() = %v, want %v", record.TableName(), expected)
	}
}
