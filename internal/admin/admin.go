package admin

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/HanTheDev/quota-gateway/internal/models"
	"github.com/HanTheDev/quota-gateway/internal/report"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Reporter interface {
	Dashboard(ctx context.Context) ([]report.DashboardRow, error)
	LiveStatus(ctx context.Context) ([]report.LiveStatusRow, error)
}

type Resetter interface {
	Reset(ctx context.Context) ([]models.Tenant, error)
}

// AdminHandler serves the unauthenticated dashboard and the data reset.
type AdminHandler struct {
	reporter Reporter
	resetter Resetter
	logger   *zap.Logger
}

func NewAdminHandler(reporter Reporter, resetter Resetter, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{reporter: reporter, resetter: resetter, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Dashboard).Methods("GET")
	router.HandleFunc("/api/dashboard-data", h.DashboardData).Methods("GET")
	router.HandleFunc("/setup", h.Setup).Methods("GET")
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reporter.Dashboard(r.Context())
	if err != nil {
		h.logger.Error("dashboard failed", zap.Error(err))
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, rows); err != nil {
		h.logger.Error("render dashboard", zap.Error(err))
	}
}

func (h *AdminHandler) DashboardData(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reporter.LiveStatus(r.Context())
	if err != nil {
		h.logger.Error("dashboard data failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to load dashboard data"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (h *AdminHandler) Setup(w http.ResponseWriter, r *http.Request) {
	if _, err := h.resetter.Reset(r.Context()); err != nil {
		h.logger.Error("setup failed", zap.Error(err))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Error: " + err.Error()))
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Tenant Usage</title>
<script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100 p-8">
<div class="flex items-center justify-between mb-6">
  <h1 class="text-2xl font-bold">Tenant Usage</h1>
  <a href="/setup" class="bg-gray-800 text-white px-4 py-2 rounded">Reset data</a>
</div>
<table class="min-w-full bg-white shadow rounded">
  <thead>
    <tr class="text-left border-b">
      <th class="p-3">Tenant</th><th class="p-3">API Key</th><th class="p-3">Usage</th><th class="p-3">Status</th>
    </tr>
  </thead>
  <tbody>
  {{- range .}}
    <tr class="border-b" data-key="{{.APIKey}}">
      <td class="p-3">{{.Name}}</td>
      <td class="p-3 font-mono text-sm">{{.APIKey}}</td>
      <td class="p-3"><span class="usage">{{.UsageCount}}</span> / {{.Limit}}</td>
      <td class="p-3"><span class="status px-2 py-1 rounded">-</span></td>
    </tr>
  {{- else}}
    <tr><td class="p-3" colspan="4">No tenants. Use "Reset data" to create the demo tenants.</td></tr>
  {{- end}}
  </tbody>
</table>
<script>
async function refresh() {
  const res = await fetch('/api/dashboard-data');
  if (!res.ok) return;
  for (const row of await res.json()) {
    const tr = document.querySelector('tr[data-key="' + row.api_key + '"]');
    if (!tr) continue;
    tr.querySelector('.usage').textContent = row.usage_count;
    const badge = tr.querySelector('.status');
    badge.textContent = row.status;
    badge.className = 'status px-2 py-1 rounded ' + row.status_class;
  }
}
refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`))
