// Package seed defines the tenant set that a reset recreates and runs the
// reset itself.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Spec struct {
	Name  string   `yaml:"name"`
	Users []string `yaml:"users"`
}

type file struct {
	Tenants []Spec `yaml:"tenants"`
}

// Defaults is the seed set used when no seed file is configured.
func Defaults() []Spec {
	return []Spec{
		{Name: "Acme Corp", Users: []string{"alice@acme.com"}},
		{Name: "Wayne Ent"},
	}
}

// LoadFile reads a YAML seed file of the form
//
//	tenants:
//	  - name: Acme Corp
//	    users: [alice@acme.com]
func LoadFile(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, t := range f.Tenants {
		if t.Name == "" {
			return nil, fmt.Errorf("seed file: tenant %d has no name", i)
		}
	}
	return f.Tenants, nil
}

// Build assigns every tenant a fresh API key, so keys issued before a
// reset never resolve after it.
func Build(specs []Spec) []models.SeedTenant {
	seeds := make([]models.SeedTenant, 0, len(specs))
	for _, s := range specs {
		seeds = append(seeds, models.SeedTenant{
			Name:   s.Name,
			APIKey: uuid.New().String(),
			Users:  append([]string(nil), s.Users...),
		})
	}
	return seeds
}

type Resetter interface {
	Reset(ctx context.Context, seeds []models.SeedTenant) ([]models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
}

// CounterResetter clears quota counters kept outside the main datastore.
type CounterResetter interface {
	Reset(ctx context.Context) error
}

type Reseeder struct {
	store    Resetter
	counters CounterResetter
	specs    []Spec
	logger   *zap.Logger
}

// NewReseeder wires a reset. counters may be nil.
func NewReseeder(store Resetter, counters CounterResetter, specs []Spec, logger *zap.Logger) *Reseeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reseeder{store: store, counters: counters, specs: specs, logger: logger}
}

// Reset clears every usage event, user and tenant, then recreates the seed
// set with new API keys.
func (r *Reseeder) Reset(ctx context.Context) ([]models.Tenant, error) {
	tenants, err := r.store.Reset(ctx, Build(r.specs))
	if err != nil {
		return nil, err
	}
	if r.counters != nil {
		if err := r.counters.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset quota counters: %w", err)
		}
	}

	r.logger.Info("data reset", zap.Int("tenants", len(tenants)))
	return tenants, nil
}

// SeedIfEmpty resets only when no tenant exists yet.
func (r *Reseeder) SeedIfEmpty(ctx context.Context) (bool, error) {
	tenants, err := r.store.ListTenants(ctx)
	if err != nil {
		return false, err
	}
	if len(tenants) > 0 {
		return false, nil
	}
	if _, err := r.Reset(ctx); err != nil {
		return false, err
	}
	return true, nil
}
