package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/graphql-go/graphql"

	"orgdesk.org/internal/auth"
)

const authHeader = "Authorization"

// Operations that skip the guard. REST operations are "METHOD /route-pattern",
// GraphQL ones are "<operation type>.<field>".
var publicOperations = []string{
	"GET /healthz",
	"GET /readyz",
	"GET /v1/info",
	"GET /metrics",
	"POST /auth/register",
	"POST /auth/login",
	// logout checks the signature itself so expired or revoked tokens still succeed
	"POST /auth/logout",
	"mutation.register",
	"mutation.login",
}

// PublicOperations returns the guard allow-list used by the API.
func PublicOperations() []string {
	out := make([]string, len(publicOperations))
	copy(out, publicOperations)
	return out
}

// requestExtractor turns a transport-specific request into what the guard reads.
type requestExtractor[T any] interface {
	extract(ctx context.Context, src T) auth.Request
}

type restExtractor struct{}

func (restExtractor) extract(ctx context.Context, r *http.Request) auth.Request {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			pattern = p
		}
	}
	return auth.Request{
		Operation:     r.Method + " " + pattern,
		Authorization: r.Header.Get(authHeader),
	}
}

type httpRequestKey struct{}

func contextWithHTTPRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, httpRequestKey{}, r)
}

func httpRequestFromContext(ctx context.Context) (*http.Request, bool) {
	r, ok := ctx.Value(httpRequestKey{}).(*http.Request)
	return r, ok
}

type graphqlExtractor struct{}

func (graphqlExtractor) extract(ctx context.Context, p graphql.ResolveParams) auth.Request {
	req := auth.Request{Operation: "query." + p.Info.FieldName}
	if p.Info.ParentType != nil {
		req.Operation = strings.ToLower(p.Info.ParentType.Name()) + "." + p.Info.FieldName
	}
	if r, ok := httpRequestFromContext(ctx); ok {
		req.Authorization = r.Header.Get(authHeader)
	}
	return req
}

func authenticate[T any](ctx context.Context, g *auth.Guard, ex requestExtractor[T], src T) (context.Context, error) {
	return g.Authenticate(ctx, ex.extract(ctx, src))
}

// requireAuth runs the guard for chi routes. It must be mounted with Group or With
// so the route pattern is resolved when it runs.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		ctx, err := authenticate[*http.Request](r.Context(), a.guard, restExtractor{}, r)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
