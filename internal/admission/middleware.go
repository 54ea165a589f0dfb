// Package admission authenticates API callers by key, applies the tenant
// quota and records one usage event for every admitted request.
//
// Two admission modes exist. Without a Reserver the middleware counts the
// ledger and then decides. Concurrent requests from one tenant can then all
// read a count below the limit and all be admitted, overshooting by up to
// concurrency-1. With a Reserver each admission is an atomic
// compare-and-increment and at most Limit requests are admitted per tenant
// between resets.
package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HanTheDev/quota-gateway/internal/metrics"
	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/HanTheDev/quota-gateway/internal/quota"
	"go.uber.org/zap"
)

const (
	// APIKeyHeader carries the caller's tenant API key.
	APIKeyHeader = "X-API-KEY"

	// UsageRecordedHeader is set to "false" when the ledger write for an
	// admitted request failed.
	UsageRecordedHeader = "X-Usage-Recorded"

	defaultAppendTimeout = 5 * time.Second
)

// Directory resolves an API key to its tenant.
type Directory interface {
	ResolveTenant(ctx context.Context, apiKey string) (*models.Tenant, error)
}

// Ledger counts and appends usage events.
type Ledger interface {
	CountUsage(ctx context.Context, tenantID int64) (int64, error)
	AppendUsage(ctx context.Context, event *models.UsageEvent) error
}

// Reserver takes one admission slot atomically. It returns the usage after
// the reservation, or the current usage when denied.
type Reserver interface {
	Reserve(ctx context.Context, tenantID, limit int64) (int64, bool, error)
}

// Options configures a Middleware. Zero values get defaults.
type Options struct {
	Policy quota.Policy
	// Reserver switches on strict admission. Nil keeps count-then-decide.
	Reserver      Reserver
	AppendTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

type Middleware struct {
	directory     Directory
	ledger        Ledger
	reserver      Reserver
	policy        quota.Policy
	appendTimeout time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// NewMiddleware builds a Middleware over the directory and ledger.
func NewMiddleware(directory Directory, ledger Ledger, opts Options) *Middleware {
	m := &Middleware{
		directory:     directory,
		ledger:        ledger,
		reserver:      opts.Reserver,
		policy:        opts.Policy,
		appendTimeout: opts.AppendTimeout,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
	if m.appendTimeout <= 0 {
		m.appendTimeout = defaultAppendTimeout
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	return m
}

// Strict reports whether admissions go through the atomic reserver.
func (m *Middleware) Strict() bool {
	return m.reserver != nil
}

// Admit wraps next with key lookup, the quota check and usage recording.
func (m *Middleware) Admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		apiKey := r.Header.Get(APIKeyHeader)
		if apiKey == "" {
			m.metrics.RecordAdmission(metrics.ResultUnauthorized)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized: Missing API Key",
			})
			return
		}

		tenant, err := m.directory.ResolveTenant(ctx, apiKey)
		if err != nil {
			if !errors.Is(err, models.ErrTenantNotFound) {
				// Fail closed: a directory we cannot reach admits nobody.
				m.logger.Error("tenant lookup failed", zap.String("path", r.URL.Path), zap.Error(err))
				m.metrics.RecordLedgerFailure("resolve")
			}
			m.metrics.RecordAdmission(metrics.ResultUnauthorized)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized: Invalid API Key",
			})
			return
		}

		usage, allowed, err := m.check(ctx, tenant.ID)
		if err != nil {
			m.logger.Error("quota check failed",
				zap.Int64("tenant_id", tenant.ID),
				zap.Bool("strict", m.Strict()),
				zap.Error(err),
			)
			op := "count"
			if m.Strict() {
				op = "reserve"
			}
			m.metrics.RecordLedgerFailure(op)
			m.metrics.RecordAdmission(metrics.ResultUnavailable)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Service Unavailable",
			})
			return
		}

		if !allowed {
			m.logger.Info("quota exceeded",
				zap.Int64("tenant_id", tenant.ID),
				zap.Int64("usage", usage),
				zap.Int64("limit", m.policy.Limit),
			)
			m.metrics.RecordAdmission(metrics.ResultQuotaExceeded)
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":   "Plan Limit Exceeded",
				"message": fmt.Sprintf("Usage: %d/%d. Access Blocked.", usage, m.policy.Limit),
				"usage":   usage,
				"limit":   m.policy.Limit,
			})
			return
		}

		m.metrics.RecordAdmission(metrics.ResultAdmitted)

		recorder := newResponseRecorder()
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(WithTenant(ctx, tenant)))
		elapsed := time.Since(start)
		m.metrics.ObserveHandler(elapsed)

		event := &models.UsageEvent{
			TenantID:       tenant.ID,
			Endpoint:       r.URL.Path,
			ResponseTimeMs: elapsed.Milliseconds(),
			StatusCode:     recorder.status(),
		}
		if err := m.record(ctx, event); err != nil {
			m.logger.Error("usage event not recorded",
				zap.Int64("tenant_id", tenant.ID),
				zap.String("path", event.Endpoint),
				zap.Int("status", event.StatusCode),
				zap.Error(err),
			)
			m.metrics.RecordLedgerFailure("append")
			recorder.Header().Set(UsageRecordedHeader, "false")
		}

		if err := recorder.flush(w); err != nil {
			m.logger.Debug("client went away before the response was written", zap.Error(err))
		}
	})
}

// check returns the tenant's usage and whether the request may proceed.
func (m *Middleware) check(ctx context.Context, tenantID int64) (int64, bool, error) {
	if m.reserver != nil {
		return m.reserver.Reserve(ctx, tenantID, m.policy.Limit)
	}

	count, err := m.ledger.CountUsage(ctx, tenantID)
	if err != nil {
		return 0, false, err
	}
	return count, m.policy.Decide(count) == quota.Allow, nil
}

// record appends the event even if the client has disconnected, so the
// ledger never misses an admitted request because of a cancelled context.
func (m *Middleware) record(ctx context.Context, event *models.UsageEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.appendTimeout)
	defer cancel()
	return m.ledger.AppendUsage(ctx, event)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
