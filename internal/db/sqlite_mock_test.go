package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockSQLite(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SQLite) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewSQLite(db)
}

func TestSQLiteMock_ResolveTenantStorageError(t *testing.T) {
	db, mock, store := setupMockSQLite(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, name, api_key, created_at FROM tenants`).
		WithArgs("some-key").
		WillReturnError(errors.New("database is locked"))

	_, err := store.ResolveTenant(context.Background(), "some-key")

	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrTenantNotFound)
	assert.Contains(t, err.Error(), "database is locked")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteMock_ResolveTenantNoRows(t *testing.T) {
	db, mock, store := setupMockSQLite(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, name, api_key, created_at FROM tenants`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.ResolveTenant(context.Background(), "missing")

	assert.ErrorIs(t, err, models.ErrTenantNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteMock_EmptyKeySkipsQuery(t *testing.T) {
	db, mock, store := setupMockSQLite(t)
	defer db.Close()

	_, err := store.ResolveTenant(context.Background(), "")

	assert.ErrorIs(t, err, models.ErrTenantNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteMock_CountUsageError(t *testing.T) {
	db, mock, store := setupMockSQLite(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM usage_logs`).
		WithArgs(int64(7)).
		WillReturnError(errors.New("disk I/O error"))

	_, err := store.CountUsage(context.Background(), 7)

	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteMock_AppendUsageError(t *testing.T) {
	db, mock, store := setupMockSQLite(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO usage_logs`).
		WillReturnError(errors.New("FOREIGN KEY constraint failed"))

	event := &models.UsageEvent{TenantID: 1, Endpoint: "/api/v1/users", StatusCode: 200}
	err := store.AppendUsage(context.Background(), event)

	assert.Error(t, err)
	assert.Zero(t, event.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteMock_ResetRollsBackOnFailure(t *testing.T) {
	db, mock, store := setupMockSQLite(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM usage_logs`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM quota_counters`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := store.Reset(context.Background(), []models.SeedTenant{{Name: "Acme Corp", APIKey: "k"}})

	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
