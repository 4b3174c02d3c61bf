package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"fixwell.io/internal/audit"
	"fixwell.io/internal/auth"
	"fixwell.io/internal/directory"
	"fixwell.io/internal/obs"
	"fixwell.io/internal/settings"
	"fixwell.io/internal/store/pg"
	"fixwell.io/internal/stream"
	"fixwell.io/internal/tenant"
)

// ReadyProbe reports whether the service's dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// AuditReader lists persisted audit entries under a tenant scope.
type AuditReader interface {
	List(ctx context.Context, scope tenant.Scope, q pg.ListQuery) ([]audit.Entry, error)
}

// Config wires the HTTP layer to its collaborators.
type Config struct {
	Version    string
	ReadyProbe ReadyProbe
	Auth       *auth.Service
	Directory  *directory.Service
	Settings   *settings.Service
	AuditLog   AuditReader
	Stream     *stream.Stream
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	auth       *auth.Service
	dir        *directory.Service
	settings   *settings.Service
	auditLog   AuditReader
	stream     *stream.Stream
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		auth:       cfg.Auth,
		dir:        cfg.Directory,
		settings:   cfg.Settings,
		auditLog:   cfg.AuditLog,
		stream:     cfg.Stream,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	// directory
	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationScoped)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// settings
	a.mux.HandleFunc("/v1/settings", a.handleSettings)

	// audit
	a.mux.HandleFunc("/v1/audit", a.handleAuditList)
	a.mux.HandleFunc("/v1/audit/stream", a.handleAuditStream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented, authenticated handler chain.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fixwell-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "fixwell-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
