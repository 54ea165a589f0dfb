package report

import (
	"context"
	"errors"
	"testing"

	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/HanTheDev/quota-gateway/internal/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	tenants []models.Tenant
	counts  map[int64]int64
	err     error
}

func (f *fakeSource) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	return f.tenants, f.err
}

func (f *fakeSource) UsageCounts(ctx context.Context) (map[int64]int64, error) {
	return f.counts, f.err
}

func newSource() *fakeSource {
	return &fakeSource{
		tenants: []models.Tenant{
			{ID: 1, Name: "Acme Corp", APIKey: "a"},
			{ID: 2, Name: "Wayne Ent", APIKey: "w"},
			{ID: 3, Name: "Stark Ind", APIKey: "s"},
		},
		counts: map[int64]int64{1: 10, 2: 9},
	}
}

func TestDashboard(t *testing.T) {
	view := NewView(newSource(), quota.NewPolicy(10))

	rows, err := view.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []DashboardRow{
		{Name: "Acme Corp", APIKey: "a", UsageCount: 10, Limit: 10},
		{Name: "Wayne Ent", APIKey: "w", UsageCount: 9, Limit: 10},
		{Name: "Stark Ind", APIKey: "s", UsageCount: 0, Limit: 10},
	}, rows)
}

func TestLiveStatus(t *testing.T) {
	view := NewView(newSource(), quota.NewPolicy(10))

	rows, err := view.LiveStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, LiveStatusRow{APIKey: "a", UsageCount: 10, Status: "BLOCKED", StatusClass: "bg-red-600 text-white font-bold"}, rows[0])
	assert.Equal(t, LiveStatusRow{APIKey: "w", UsageCount: 9, Status: "Warning", StatusClass: "bg-yellow-200 text-yellow-800"}, rows[1])
	assert.Equal(t, LiveStatusRow{APIKey: "s", UsageCount: 0, Status: "Normal", StatusClass: "bg-green-200 text-green-800"}, rows[2])
}

func TestLiveStatus_Idempotent(t *testing.T) {
	view := NewView(newSource(), quota.NewPolicy(10))
	ctx := context.Background()

	first, err := view.LiveStatus(ctx)
	require.NoError(t, err)
	second, err := view.LiveStatus(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNoTenants(t *testing.T) {
	view := NewView(&fakeSource{counts: map[int64]int64{}}, quota.NewPolicy(5))
	ctx := context.Background()

	dash, err := view.Dashboard(ctx)
	require.NoError(t, err)
	assert.NotNil(t, dash)
	assert.Empty(t, dash)

	live, err := view.LiveStatus(ctx)
	require.NoError(t, err)
	assert.NotNil(t, live)
	assert.Empty(t, live)
}

func TestSourceError(t *testing.T) {
	view := NewView(&fakeSource{err: errors.New("db down")}, quota.NewPolicy(5))

	_, err := view.LiveStatus(context.Background())
	assert.Error(t, err)
}
