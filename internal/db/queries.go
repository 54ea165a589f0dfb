package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/jackc/pgx/v5"
)

func (p *Postgres) ResolveTenant(ctx context.Context, apiKey string) (*models.Tenant, error) {
	if apiKey == "" {
		return nil, models.ErrTenantNotFound
	}

	query := `
        SELECT id, name, api_key, created_at
        FROM tenants
        WHERE api_key = $1
    `

	var tenant models.Tenant
	err := p.Pool.QueryRow(ctx, query, apiKey).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.APIKey,
		&tenant.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	return &tenant, nil
}

func (p *Postgres) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	query := `
        SELECT id, name, api_key, created_at
        FROM tenants
        ORDER BY id
    `

	rows, err := p.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]models.Tenant, 0)
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}

	return tenants, rows.Err()
}

func (p *Postgres) ListUsersByTenant(ctx context.Context, tenantID int64) ([]models.User, error) {
	query := `
        SELECT id, username, tenant_id
        FROM users
        WHERE tenant_id = $1
        ORDER BY id
    `

	rows, err := p.Pool.Query(ctx, query, tenantID)
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

func (p *Postgres) CountUsage(ctx context.Context, tenantID int64) (int64, error) {
	var count int64
	err := p.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM usage_logs WHERE tenant_id = $1`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return count, nil
}

func (p *Postgres) UsageCounts(ctx context.Context) (map[int64]int64, error) {
	rows, err := p.Pool.Query(ctx, `SELECT tenant_id, COUNT(*) FROM usage_logs GROUP BY tenant_id`)
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

func (p *Postgres) AppendUsage(ctx context.Context, event *models.UsageEvent) error {
	query := `
        INSERT INTO usage_logs (tenant_id, endpoint, response_time_ms, status_code)
        VALUES ($1, $2, $3, $4)
        RETURNING id, timestamp
    `

	err := p.Pool.QueryRow(ctx, query,
		event.TenantID,
		event.Endpoint,
		event.ResponseTimeMs,
		event.StatusCode,
	).Scan(&event.ID, &event.Timestamp)
	if err != nil {
		return fmt.Errorf("append usage: %w", err)
	}

	return nil
}

func (p *Postgres) Reserve(ctx context.Context, tenantID, limit int64) (int64, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}

	// First use seeds the counter from the ledger. The conditional update
	// is a single statement, so concurrent reservations serialize on the
	// counter row and never pass the limit.
	query := `
        INSERT INTO quota_counters (tenant_id, used)
        SELECT $1::bigint, COUNT(*) + 1 FROM usage_logs
        WHERE tenant_id = $1::bigint
        HAVING COUNT(*) < $2::bigint
        ON CONFLICT (tenant_id) DO UPDATE
        SET used = quota_counters.used + 1
        WHERE quota_counters.used < $2::bigint
        RETURNING used
    `

	var used int64
	err := p.Pool.QueryRow(ctx, query, tenantID, limit).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}

	current := `
        SELECT COALESCE(
            (SELECT used FROM quota_counters WHERE tenant_id = $1),
            (SELECT COUNT(*) FROM usage_logs WHERE tenant_id = $1)
        )
    `
	if err := p.Pool.QueryRow(ctx, current, tenantID).Scan(&used); err != nil {
		return 0, false, fmt.Errorf("read quota: %w", err)
	}
	return used, false, nil
}

func (p *Postgres) Reset(ctx context.Context, seeds []models.SeedTenant) ([]models.Tenant, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"usage_logs", "quota_counters", "users", "tenants"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return nil, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	tenants := make([]models.Tenant, 0, len(seeds))
	for _, seed := range seeds {
		t := models.Tenant{Name: seed.Name, APIKey: seed.APIKey}
		err := tx.QueryRow(ctx,
			`INSERT INTO tenants (name, api_key) VALUES ($1, $2) RETURNING id, created_at`,
			t.Name, t.APIKey,
		).Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("create tenant %q: %w", seed.Name, err)
		}

		for _, username := range seed.Users {
			if _, err := tx.Exec(ctx,
				`INSERT INTO users (username, tenant_id) VALUES ($1, $2)`,
				username, t.ID,
			); err != nil {
				return nil, fmt.Errorf("create user %q: %w", username, err)
			}
		}
		tenants = append(tenants, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reset: %w", err)
	}
	return tenants, nil
}
