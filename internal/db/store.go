package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/HanTheDev/quota-gateway/internal/models"
)

// Store is the tenant directory, usage ledger and quota counter backed by
// one datastore. Each method runs in its own unit of work.
type Store interface {
	ResolveTenant(ctx context.Context, apiKey string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	ListUsersByTenant(ctx context.Context, tenantID int64) ([]models.User, error)

	CountUsage(ctx context.Context, tenantID int64) (int64, error)
	UsageCounts(ctx context.Context) (map[int64]int64, error)
	AppendUsage(ctx context.Context, event *models.UsageEvent) error

	// Reserve atomically takes one admission slot for the tenant if fewer
	// than limit have been taken since the last reset. It returns the usage
	// after the reservation, or the current usage when denied.
	Reserve(ctx context.Context, tenantID, limit int64) (int64, bool, error)

	Reset(ctx context.Context, seeds []models.SeedTenant) ([]models.Tenant, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend from the URL scheme: postgres:// and postgresql://
// use pgx, sqlite://<path> uses the embedded SQLite driver.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		pg, err := NewPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		lite, err := OpenSQLite(strings.TrimPrefix(databaseURL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}
