package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/HanTheDev/quota-gateway/internal/admin"
	"github.com/HanTheDev/quota-gateway/internal/admission"
	"github.com/HanTheDev/quota-gateway/internal/api"
	"github.com/HanTheDev/quota-gateway/internal/db"
	"github.com/HanTheDev/quota-gateway/internal/metrics"
	"github.com/HanTheDev/quota-gateway/internal/quota"
	"github.com/HanTheDev/quota-gateway/internal/report"
	"github.com/HanTheDev/quota-gateway/internal/seed"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const Version = "1.0.0"

type Options struct {
	Limit int64
	// Reserver enables strict admission; nil keeps count-then-decide.
	Reserver admission.Reserver
	// Counters is reset together with the store when quota counters live
	// outside it.
	Counters      seed.CounterResetter
	Seeds         []seed.Spec
	AppendTimeout time.Duration
	Logger        *zap.Logger
}

type Server struct {
	store    db.Store
	router   *mux.Router
	reseeder *seed.Reseeder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func New(store db.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	seeds := opts.Seeds
	if seeds == nil {
		seeds = seed.Defaults()
	}

	s := &Server{
		store:    store,
		router:   mux.NewRouter(),
		reseeder: seed.NewReseeder(store, opts.Counters, seeds, logger),
		metrics:  metrics.New(),
		logger:   logger,
	}

	policy := quota.NewPolicy(opts.Limit)
	admit := admission.NewMiddleware(store, store, admission.Options{
		Policy:        policy,
		Reserver:      opts.Reserver,
		AppendTimeout: opts.AppendTimeout,
		Logger:        logger.Named("admission"),
		Metrics:       s.metrics,
	})

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	admin.NewAdminHandler(report.NewView(store, policy), s.reseeder, logger.Named("admin")).RegisterRoutes(s.router)
	api.NewHandler(store, logger.Named("api")).RegisterRoutes(s.router, admit)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Reseeder() *seed.Reseeder {
	return s.reseeder
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  status,
		"version": Version,
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
