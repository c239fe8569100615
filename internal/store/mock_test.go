package store

// Driver-failure paths are exercised against a mocked driver; DuckDB is
// too well-behaved to produce them on demand.

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"fleetmon/internal/errors"
	"fleetmon/internal/telemetry"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("new sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return newWithDB(db, Config{QueryTimeout: time.Second}), mock
}

func TestStore_Append_DriverError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO samples").WillReturnError(fmt.Errorf("disk full"))

	err := st.Append(context.Background(), telemetry.Sample{SourceID: "web-01"})
	if !errors.IsStoreUnavailable(err) {
		t.Errorf("expected store unavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_Transaction_BeginError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(fmt.Errorf("too many connections"))

	err := st.TransactionContext(context.Background(), func(tx *sql.Tx) error {
		t.Error("transaction body must not run")
		return nil
	})
	if !errors.IsStoreUnavailable(err) {
		t.Errorf("expected store unavailable, got %v", err)
	}
}

func TestStore_Transaction_CommitError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(fmt.Errorf("io error"))

	err := st.TransactionContext(context.Background(), func(tx *sql.Tx) error {
		return nil
	})
	if !errors.IsStoreUnavailable(err) {
		t.Errorf("expected store unavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_Transaction_RollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := fmt.Errorf("boom")
	err := st.TransactionContext(context.Background(), func(tx *sql.Tx) error {
		return boom
	})
	if err != boom {
		t.Errorf("expected the body's error back, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("rollback not issued: %v", err)
	}
}

func TestStore_Health_PingError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectPing().WillReturnError(fmt.Errorf("connection refused"))

	err := st.Health(context.Background())
	if !errors.IsStoreUnavailable(err) {
		t.Errorf("expected store unavailable, got %v", err)
	}
}
