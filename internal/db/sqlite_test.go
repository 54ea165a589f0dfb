package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedTenants(t *testing.T, store Store) []models.Tenant {
	t.Helper()

	tenants, err := store.Reset(context.Background(), []models.SeedTenant{
		{Name: "Acme Corp", APIKey: "acme-key", Users: []string{"alice@acme.com"}},
		{Name: "Wayne Ent", APIKey: "wayne-key"},
	})
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	return tenants
}

func TestSQLite_ResolveTenant(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)
	ctx := context.Background()

	tenant, err := store.ResolveTenant(ctx, "acme-key")
	require.NoError(t, err)
	assert.Equal(t, tenants[0].ID, tenant.ID)
	assert.Equal(t, "Acme Corp", tenant.Name)

	for _, key := range []string{"", "unknown", "ACME-KEY", "acme-key "} {
		_, err := store.ResolveTenant(ctx, key)
		assert.ErrorIs(t, err, models.ErrTenantNotFound, "key=%q", key)
	}
}

func TestSQLite_AppendAndCount(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)
	ctx := context.Background()
	acme, wayne := tenants[0].ID, tenants[1].ID

	for i := 0; i < 3; i++ {
		event := &models.UsageEvent{TenantID: acme, Endpoint: "/api/v1/users", ResponseTimeMs: 12, StatusCode: 200}
		require.NoError(t, store.AppendUsage(ctx, event))
		assert.NotZero(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())

		count, err := store.CountUsage(ctx, acme)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), count)
	}

	count, err := store.CountUsage(ctx, wayne)
	require.NoError(t, err)
	assert.Zero(t, count)

	counts, err := store.UsageCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{acme: 3}, counts)
}

func TestSQLite_AppendUnknownTenantFails(t *testing.T) {
	store := newTestSQLite(t)
	seedTenants(t, store)

	err := store.AppendUsage(context.Background(), &models.UsageEvent{TenantID: 9999, Endpoint: "/x", StatusCode: 200})
	assert.Error(t, err)
}

func TestSQLite_ListUsersByTenant(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)
	ctx := context.Background()

	users, err := store.ListUsersByTenant(ctx, tenants[0].ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice@acme.com", users[0].Username)
	assert.Equal(t, tenants[0].ID, users[0].TenantID)

	users, err = store.ListUsersByTenant(ctx, tenants[1].ID)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestSQLite_ResetReplacesEverything(t *testing.T) {
	store := newTestSQLite(t)
	old := seedTenants(t, store)
	ctx := context.Background()

	require.NoError(t, store.AppendUsage(ctx, &models.UsageEvent{TenantID: old[0].ID, Endpoint: "/x", StatusCode: 200}))

	fresh, err := store.Reset(ctx, []models.SeedTenant{{Name: "Acme Corp", APIKey: "new-key"}})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Greater(t, fresh[0].ID, old[1].ID, "tenant ids are not reused")

	_, err = store.ResolveTenant(ctx, "acme-key")
	assert.ErrorIs(t, err, models.ErrTenantNotFound)

	counts, err := store.UsageCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "new-key", tenants[0].APIKey)
}

func TestSQLite_ListTenantsEmpty(t *testing.T) {
	store := newTestSQLite(t)

	tenants, err := store.ListTenants(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tenants)
	assert.Empty(t, tenants)
}

func TestSQLite_ReserveStopsAtLimit(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)
	ctx := context.Background()
	acme := tenants[0].ID

	for i := int64(1); i <= 3; i++ {
		used, ok, err := store.Reserve(ctx, acme, 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, i, used)
	}

	used, ok, err := store.Reserve(ctx, acme, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), used)
}

func TestSQLite_ReserveSeedsFromLedger(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)
	ctx := context.Background()
	acme := tenants[0].ID

	for i := 0; i < 2; i++ {
		require.NoError(t, store.AppendUsage(ctx, &models.UsageEvent{TenantID: acme, Endpoint: "/x", StatusCode: 200}))
	}

	used, ok, err := store.Reserve(ctx, acme, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), used)

	used, ok, err = store.Reserve(ctx, acme, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(3), used)
}

func TestSQLite_ReserveLedgerAlreadyFull(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)
	ctx := context.Background()
	acme := tenants[0].ID

	for i := 0; i < 2; i++ {
		require.NoError(t, store.AppendUsage(ctx, &models.UsageEvent{TenantID: acme, Endpoint: "/x", StatusCode: 200}))
	}

	used, ok, err := store.Reserve(ctx, acme, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), used)
}

func TestSQLite_ReserveZeroLimit(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)

	_, ok, err := store.Reserve(context.Background(), tenants[0].ID, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_ReserveConcurrent(t *testing.T) {
	store := newTestSQLite(t)
	tenants := seedTenants(t, store)
	ctx := context.Background()

	const limit, workers = 5, 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.Reserve(ctx, tenants[0].ID, limit)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			admitted++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, admitted)
}
