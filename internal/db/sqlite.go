package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/HanTheDev/quota-gateway/internal/models"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as unix milliseconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tenants (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    api_key    TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    username  TEXT NOT NULL,
    tenant_id INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS usage_logs (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp        INTEGER NOT NULL,
    endpoint         TEXT NOT NULL,
    response_time_ms INTEGER NOT NULL DEFAULT 0 CHECK (response_time_ms >= 0),
    status_code      INTEGER NOT NULL DEFAULT 200,
    tenant_id        INTEGER NOT NULL REFERENCES tenants(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_usage_logs_tenant_id ON usage_logs(tenant_id);

CREATE TABLE IF NOT EXISTS quota_counters (
    tenant_id INTEGER PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
    used      INTEGER NOT NULL
);
`

// SQLite is the embedded single-node backend. AUTOINCREMENT keeps tenant
// ids from being reused after a reset.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return NewSQLite(db), nil
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ResolveTenant(ctx context.Context, apiKey string) (*models.Tenant, error) {
	if apiKey == "" {
		return nil, models.ErrTenantNotFound
	}

	var (
		tenant    models.Tenant
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at FROM tenants WHERE api_key = ?`, apiKey,
	).Scan(&tenant.ID, &tenant.Name, &tenant.APIKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	tenant.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &tenant, nil
}

func (s *SQLite) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, api_key, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]models.Tenant, 0)
	for rows.Next() {
		var (
			t         models.Tenant
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.APIKey, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.CreatedAt = time.UnixMilli(createdAt).UTC()
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

func (s *SQLite) ListUsersByTenant(ctx context.Context, tenantID int64) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, tenant_id FROM users WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.TenantID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (s *SQLite) CountUsage(ctx context.Context, tenantID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_logs WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return count, nil
}

func (s *SQLite) UsageCounts(ctx context.Context) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_id, COUNT(*) FROM usage_logs GROUP BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("usage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var tenantID, count int64
		if err := rows.Scan(&tenantID, &count); err != nil {
			return nil, fmt.Errorf("scan usage count: %w", err)
		}
		counts[tenantID] = count
	}

	return counts, rows.Err()
}

func (s *SQLite) AppendUsage(ctx context.Context, event *models.UsageEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_logs (tenant_id, endpoint, response_time_ms, status_code, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		event.TenantID,
		event.Endpoint,
		event.ResponseTimeMs,
		event.StatusCode,
		event.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append usage: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append usage: %w", err)
	}
	event.ID = id
	return nil
}

func (s *SQLite) Reserve(ctx context.Context, tenantID, limit int64) (int64, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}

	var used int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_counters (tenant_id, used)
		SELECT ?1, COUNT(*) + 1 FROM usage_logs
		WHERE tenant_id = ?1
		HAVING COUNT(*) < ?2
		ON CONFLICT (tenant_id) DO UPDATE
		SET used = used + 1
		WHERE used < ?2
		RETURNING used`,
		tenantID, limit,
	).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(
			(SELECT used FROM quota_counters WHERE tenant_id = ?1),
			(SELECT COUNT(*) FROM usage_logs WHERE tenant_id = ?1)
		)`, tenantID,
	).Scan(&used)
	if err != nil {
		return 0, false, fmt.Errorf("read quota: %w", err)
	}
	return used, false, nil
}

func (s *SQLite) Reset(ctx context.Context, seeds []models.SeedTenant) ([]models.Tenant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"usage_logs", "quota_counters", "users", "tenants"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return nil, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	now := time.Now().UTC()
	tenants := make([]models.Tenant, 0, len(seeds))
	for _, seed := range seeds {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tenants (name, api_key, created_at) VALUES (?, ?, ?)`,
			seed.Name, seed.APIKey, now.UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("create tenant %q: %w", seed.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("create tenant %q: %w", seed.Name, err)
		}

		for _, username := range seed.Users {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (username, tenant_id) VALUES (?, ?)`, username, id,
			); err != nil {
				return nil, fmt.Errorf("create user %q: %w", username, err)
			}
		}

		tenants = append(tenants, models.Tenant{
			ID:        id,
			Name:      seed.Name,
			APIKey:    seed.APIKey,
			CreatedAt: time.UnixMilli(now.UnixMilli()).UTC(),
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reset: %w", err)
	}
	return tenants, nil
}
