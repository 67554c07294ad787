package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"orgdesk.org/internal/apperr"
	"orgdesk.org/internal/obs"
)

const bearerPrefix = "Bearer "

// Request is what the guard needs from any transport.
type Request struct {
	// Operation names the called endpoint, e.g. "POST /auth/login" or "mutation.login".
	Operation     string
	Authorization string
}

// TokenVerifier verifies access tokens.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// Guard authenticates requests before they reach handlers or resolvers.
type Guard struct {
	verifier    TokenVerifier
	revocations RevocationStore
	users       UserStore
	public      map[string]struct{}
	log         *zerolog.Logger
}

// GuardOption configures Guard.
type GuardOption func(*Guard)

// WithPublicOperations marks operations that skip authentication.
func WithPublicOperations(ops ...string) GuardOption {
	return func(g *Guard) {
		for _, op := range ops {
			if op = strings.TrimSpace(op); op != "" {
				g.public[op] = struct{}{}
			}
		}
	}
}

func NewGuard(verifier TokenVerifier, revocations RevocationStore, users UserStore, opts ...GuardOption) *Guard {
	g := &Guard{
		verifier:    verifier,
		revocations: revocations,
		users:       users,
		public:      make(map[string]struct{}),
		log:         obs.Component("guard"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsPublic reports whether op bypasses authentication.
func (g *Guard) IsPublic(op string) bool {
	_, ok := g.public[op]
	return ok
}

// Authenticate runs extract, verify, revocation check and user lookup, in that order.
// On success the returned context carries the user, claims and raw token.
func (g *Guard) Authenticate(ctx context.Context, req Request) (context.Context, error) {
	if g.IsPublic(req.Operation) {
		return ctx, nil
	}

	token, err := ExtractBearerToken(req.Authorization)
	if err != nil {
		return ctx, g.reject("missing_token", apperr.Unauthorized(msgNoToken))
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return ctx, g.reject("expired", apperr.Unauthorized("Token has expired"))
		}
		return ctx, g.reject("invalid", apperr.Unauthorized(msgInvalidToken))
	}

	revoked, err := g.revocations.IsRevoked(ctx, token)
	if err != nil {
		g.log.Error().Err(err).Msg("revocation lookup failed")
		return ctx, apperr.Internal(err)
	}
	if revoked {
		return ctx, g.reject("revoked", apperr.Unauthorized("Token has been revoked"))
	}

	userID, err := claims.UserID()
	if err != nil {
		return ctx, g.reject("invalid", apperr.Unauthorized(msgInvalidToken))
	}
	user, err := g.users.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ctx, g.reject("unknown_user", apperr.Unauthorized(""))
		}
		return ctx, apperr.Internal(err)
	}

	ctx = ContextWithUser(ctx, *user)
	ctx = ContextWithClaims(ctx, claims)
	ctx = ContextWithToken(ctx, token)
	return ctx, nil
}

func (g *Guard) reject(reason string, err *apperr.Error) error {
	obs.GuardRejections.WithLabelValues(reason).Inc()
	g.log.Debug().Str("reason", reason).Msg("request rejected")
	return err
}

// ExtractBearerToken reads the token from an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
