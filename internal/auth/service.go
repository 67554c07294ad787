package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"orgdesk.org/internal/apperr"
	"orgdesk.org/internal/audit"
	"orgdesk.org/internal/obs"
	"orgdesk.org/internal/validation"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	passwordMinLen = 6

	msgInvalidCredentials = "Invalid credentials"
	msgUsernameTaken      = "User with this username already exists"
	msgNoToken            = "No token provided"
	msgInvalidToken       = "Invalid token"
)

// Service handles registration, login and logout.
type Service struct {
	users       UserStore
	revocations RevocationStore
	codec       *TokenCodec
	hasher      Hasher
	log         *zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithHasher overrides the password hasher.
func WithHasher(h Hasher) ServiceOption {
	return func(s *Service) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// WithLogger overrides the service logger.
func WithLogger(l *zerolog.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, revocations RevocationStore, codec *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if users == nil || revocations == nil || codec == nil {
		return nil, errors.New("auth: users, revocations and codec are required")
	}
	svc := &Service{
		users:       users,
		revocations: revocations,
		codec:       codec,
		hasher:      NewArgon2Hasher(),
		log:         obs.Component("auth"),
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Register creates an account and signs a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	v := validation.New()
	v.Required("username", in.Username).
		MinLength("username", in.Username, usernameMinLen).
		MaxLength("username", in.Username, usernameMaxLen)
	v.Required("password", in.Password).
		MinLength("password", in.Password, passwordMinLen)
	if err := v.Err(); err != nil {
		obs.AuthRegistrations.WithLabelValues("invalid").Inc()
		return AuthResult{}, err
	}

	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		obs.AuthRegistrations.WithLabelValues("conflict").Inc()
		return AuthResult{}, apperr.Conflict(msgUsernameTaken)
	} else if !errors.Is(err, ErrNotFound) {
		return AuthResult{}, apperr.Internal(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	user := &User{Username: in.Username, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			obs.AuthRegistrations.WithLabelValues("conflict").Inc()
			return AuthResult{}, apperr.Conflict(msgUsernameTaken)
		}
		return AuthResult{}, apperr.Internal(err)
	}

	res, err := s.issue(*user)
	if err != nil {
		return AuthResult{}, err
	}
	obs.AuthRegistrations.WithLabelValues("ok").Inc()
	_ = audit.LogEvent(ctx, "auth.register", map[string]any{"user_id": user.ID, "username": user.Username})
	return res, nil
}

// Login checks credentials. Unknown users and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	v := validation.New()
	v.Required("username", in.Username)
	v.Required("password", in.Password)
	if err := v.Err(); err != nil {
		obs.AuthLogins.WithLabelValues("invalid").Inc()
		return AuthResult{}, err
	}

	user, err := s.users.FindByUsername(ctx, in.Username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return AuthResult{}, apperr.Internal(err)
		}
		// keep timing close to the wrong-password path
		s.hasher.Verify(s.dummy(), in.Password)
		obs.AuthLogins.WithLabelValues("denied").Inc()
		return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		obs.AuthLogins.WithLabelValues("denied").Inc()
		return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}

	res, err := s.issue(*user)
	if err != nil {
		return AuthResult{}, err
	}
	obs.AuthLogins.WithLabelValues("ok").Inc()
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"user_id": user.ID})
	return res, nil
}

// Logout blacklists token. Expired and already revoked tokens succeed; tokens
// this service did not sign are rejected and never stored. Blacklist failures
// are logged, never returned.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Unauthorized(msgNoToken)
	}
	if _, err := s.codec.VerifyAllowExpired(token); err != nil {
		obs.GuardRejections.WithLabelValues("logout_invalid").Inc()
		return apperr.Unauthorized(msgInvalidToken)
	}
	if err := s.revocations.Add(ctx, token); err != nil {
		s.log.Error().Err(err).Msg("blacklist token")
	}
	obs.AuthLogouts.Inc()
	_ = audit.LogEvent(ctx, "auth.logout", nil)
	return nil
}

func (s *Service) issue(user User) (AuthResult, error) {
	token, _, err := s.codec.Sign(user.ID, user.Username)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{AccessToken: token, User: user.Redacted()}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("orgdesk-timing-equaliser")
	})
	return s.dummyHash
}
