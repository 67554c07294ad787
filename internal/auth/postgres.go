package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"orgdesk.org/internal/obs"
)

const pgUniqueViolation = "23505"

var (
	_ UserStore       = (*PGUserStore)(nil)
	_ RevocationStore = (*PGRevocationStore)(nil)
)

// User store ---------------------------------------------------------------

// PGUserStore implements UserStore using PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

func (s *PGUserStore) Create(ctx context.Context, u *User) error {
	row := s.db.QueryRowContext(ctx,
		`insert into users(username, password_hash) values($1,$2) returning id, created_at, updated_at`,
		u.Username, u.PasswordHash,
	)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PGUserStore) Find(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, password_hash, created_at, updated_at from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, password_hash, created_at, updated_at from users where username=$1`, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Revocation store ---------------------------------------------------------

// PGRevocationStore keeps the token blacklist in the token_blacklist table.
type PGRevocationStore struct {
	db      *sql.DB
	decoder TokenDecoder
	now     func() time.Time
	log     *zerolog.Logger
}

// RevocationOption configures revocation stores.
type RevocationOption func(*revocationConfig)

type revocationConfig struct {
	now func() time.Time
}

// WithRevocationClock overrides the time source (useful for tests).
func WithRevocationClock(fn func() time.Time) RevocationOption {
	return func(c *revocationConfig) {
		if fn != nil {
			c.now = fn
		}
	}
}

func newRevocationConfig(opts []RevocationOption) revocationConfig {
	cfg := revocationConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func NewPGRevocationStore(db *sql.DB, decoder TokenDecoder, opts ...RevocationOption) *PGRevocationStore {
	cfg := newRevocationConfig(opts)
	return &PGRevocationStore{
		db:      db,
		decoder: decoder,
		now:     cfg.now,
		log:     obs.Component("revocation"),
	}
}

func (s *PGRevocationStore) Add(ctx context.Context, token string) error {
	expiresAt, ok := expiryOf(s.decoder, token, s.now())
	if !ok {
		s.log.Debug().Msg("token expiry unreadable, not blacklisted")
		obs.RevocationsSkipped.Inc()
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`insert into token_blacklist(token, expires_at) values($1,$2) on conflict (token) do nothing`,
		token, expiresAt.UTC(),
	)
	return err
}

func (s *PGRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where token=$1)`, token,
	).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *PGRevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from token_blacklist where expires_at < $1`, s.now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// expiryOf reads the token's exp, capped at now plus the codec TTL so a token
// cannot keep its blacklist entry alive past any lifetime the codec issues.
func expiryOf(decoder TokenDecoder, token string, now time.Time) (time.Time, bool) {
	if token == "" || decoder == nil {
		return time.Time{}, false
	}
	claims, ok := decoder.DecodeUnsafe(token)
	if !ok || claims == nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	exp := claims.ExpiresAt.Time
	if ttl := decoder.TTL(); ttl > 0 {
		if limit := now.Add(ttl); exp.After(limit) {
			exp = limit
		}
	}
	return exp, true
}
