package auth

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"orgdesk.org/internal/obs"
)

const redisRevokedPrefix = "orgdesk:revoked:"

var _ RevocationStore = (*RedisRevocationStore)(nil)

// RedisRevocationStore keeps the blacklist in Redis with a TTL matching token expiry.
type RedisRevocationStore struct {
	rdb     goredis.UniversalClient
	decoder TokenDecoder
	now     func() time.Time
	log     *zerolog.Logger
}

func NewRedisRevocationStore(rdb goredis.UniversalClient, decoder TokenDecoder, opts ...RevocationOption) *RedisRevocationStore {
	cfg := newRevocationConfig(opts)
	return &RedisRevocationStore{
		rdb:     rdb,
		decoder: decoder,
		now:     cfg.now,
		log:     obs.Component("revocation"),
	}
}

func (s *RedisRevocationStore) Add(ctx context.Context, token string) error {
	now := s.now()
	expiresAt, ok := expiryOf(s.decoder, token, now)
	if !ok {
		s.log.Debug().Msg("token expiry unreadable, not blacklisted")
		obs.RevocationsSkipped.Inc()
		return nil
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		// already expired; verification rejects it on its own
		return nil
	}
	return s.rdb.SetNX(ctx, redisRevokedPrefix+token, expiresAt.Unix(), ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, redisRevokedPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired is a no-op: Redis evicts entries when their TTL runs out.
func (s *RedisRevocationStore) PurgeExpired(context.Context) (int64, error) {
	return 0, nil
}
