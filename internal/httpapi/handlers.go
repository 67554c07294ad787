package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/graphql-go/graphql"
	goredis "github.com/redis/go-redis/v9"

	"orgdesk.org/internal/auth"
	"orgdesk.org/internal/obs"
	"orgdesk.org/internal/org"
)

const serviceName = "orgdesk-api"

// Readiness reports whether backing services are reachable.
type Readiness interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings the database and, when configured, Redis.
type ReadyProbe struct {
	DB    *sql.DB
	Redis goredis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Auth  *auth.Service
	Guard *auth.Guard
	Org   *org.Service
	Ready Readiness

	Version        string
	ThrottleLimit  int
	ThrottleWindow time.Duration
	CORSOrigins    []string
	TrustedProxies []netip.Prefix
}

// API is the HTTP layer.
type API struct {
	router  chi.Router
	auth    *auth.Service
	guard   *auth.Guard
	org     *org.Service
	ready   Readiness
	version string
	schema  graphql.Schema
}

func New(d Deps) (*API, error) {
	if d.Auth == nil || d.Guard == nil || d.Org == nil {
		return nil, errors.New("httpapi: auth service, guard and org service are required")
	}
	if d.Ready == nil {
		d.Ready = ReadyProbe{}
	}
	a := &API{
		auth:    d.Auth,
		guard:   d.Guard,
		org:     d.Org,
		ready:   d.Ready,
		version: d.Version,
	}
	schema, err := a.buildSchema()
	if err != nil {
		return nil, err
	}
	a.schema = schema
	a.router = a.routes(d)
	return a, nil
}

func (a *API) routes(d Deps) chi.Router {
	throttle := RateLimit(d.ThrottleLimit, d.ThrottleWindow)

	r := chi.NewRouter()
	r.Use(RequestID, RealIP(d.TrustedProxies), Recoverer, Logging, SecurityHeaders, CORS(d.CORSOrigins...), MaxBodyBytes(maxBodyBytes))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "Cannot "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/healthz", a.Healthz)
		r.Get("/readyz", a.Ready)
		r.Get("/v1/info", a.Info)
		r.Method(http.MethodGet, "/metrics", obs.Handler())

		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Post("/auth/register", a.register)
			r.Post("/auth/login", a.login)
			r.Post("/auth/logout", a.logout)
		})
		r.Get("/auth/me", a.me)

		r.Get("/departments", ownerHandler(a.listDepartments))
		r.Post("/departments", ownerHandler(a.createDepartment))
		r.Get("/departments/{id}", ownerHandler(a.getDepartment))
		r.Put("/departments/{id}", ownerHandler(a.updateDepartment))
		r.Delete("/departments/{id}", ownerHandler(a.deleteDepartment))

		r.Get("/sub-departments", ownerHandler(a.listSubDepartments))
		r.Post("/sub-departments", ownerHandler(a.createSubDepartment))
		r.Get("/sub-departments/{id}", ownerHandler(a.getSubDepartment))
		r.Put("/sub-departments/{id}", ownerHandler(a.updateSubDepartment))
		r.Delete("/sub-departments/{id}", ownerHandler(a.deleteSubDepartment))
	})

	// resolvers run the guard per field
	r.With(throttle).Post("/graphql", a.graphqlHandler)
	return r
}

// Handler returns the router wrapped with HTTP metrics.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
