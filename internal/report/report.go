// Package report builds the read-only dashboard projections over the
// tenant directory and the usage ledger.
package report

import (
	"context"
	"fmt"

	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/HanTheDev/quota-gateway/internal/quota"
)

type Source interface {
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	UsageCounts(ctx context.Context) (map[int64]int64, error)
}

type DashboardRow struct {
	Name       string `json:"name"`
	APIKey     string `json:"api_key"`
	UsageCount int64  `json:"usage_count"`
	Limit      int64  `json:"limit"`
}

type LiveStatusRow struct {
	APIKey      string `json:"api_key"`
	UsageCount  int64  `json:"usage_count"`
	Status      string `json:"status"`
	StatusClass string `json:"status_class"`
}

type View struct {
	source Source
	policy quota.Policy
}

func NewView(source Source, policy quota.Policy) *View {
	return &View{source: source, policy: policy}
}

func (v *View) Limit() int64 {
	return v.policy.Limit
}

// snapshot reads tenants and their counts. The two reads are separate, so
// a concurrent reset can make a tenant show zero usage; that is accepted.
func (v *View) snapshot(ctx context.Context) ([]models.Tenant, map[int64]int64, error) {
	tenants, err := v.source.ListTenants(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tenants: %w", err)
	}
	counts, err := v.source.UsageCounts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("usage counts: %w", err)
	}
	return tenants, counts, nil
}

func (v *View) Dashboard(ctx context.Context) ([]DashboardRow, error) {
	tenants, counts, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]DashboardRow, 0, len(tenants))
	for _, t := range tenants {
		rows = append(rows, DashboardRow{
			Name:       t.Name,
			APIKey:     t.APIKey,
			UsageCount: counts[t.ID],
			Limit:      v.policy.Limit,
		})
	}
	return rows, nil
}

func (v *View) LiveStatus(ctx context.Context) ([]LiveStatusRow, error) {
	tenants, counts, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]LiveStatusRow, 0, len(tenants))
	for _, t := range tenants {
		status := v.policy.Classify(counts[t.ID])
		rows = append(rows, LiveStatusRow{
			APIKey:      t.APIKey,
			UsageCount:  counts[t.ID],
			Status:      status.String(),
			StatusClass: status.Class(),
		})
	}
	return rows, nil
}
