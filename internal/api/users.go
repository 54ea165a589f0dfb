package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/HanTheDev/quota-gateway/internal/admission"
	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type UserLister interface {
	ListUsersByTenant(ctx context.Context, tenantID int64) ([]models.User, error)
}

// Handler serves the metered API. Every route sits behind admission.
type Handler struct {
	users  UserLister
	logger *zap.Logger
}

func NewHandler(users UserLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, logger: logger}
}

func (h *Handler) RegisterRoutes(router *mux.Router, admit *admission.Middleware) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(admit.Admit)
	v1.HandleFunc("/users", h.ListUsers).Methods("GET")
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	tenant, ok := admission.TenantFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	users, err := h.users.ListUsersByTenant(r.Context(), tenant.ID)
	if err != nil {
		h.logger.Error("list users failed", zap.Int64("tenant_id", tenant.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list users"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
