package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
)

const lockKeyPrefix = "callsched:lock:"

// RedisLockManager implements JobLockManager across processes sharing a Redis.
// Each lock holds a random token so a holder only ever releases or extends its
// own lock. A lock expires after ttl unless its holder extends it.
type RedisLockManager struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewRedisLockManager creates a Redis-backed lock manager
func NewRedisLockManager(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLockManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLockManager{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (r *RedisLockManager) AcquireLock(ctx context.Context, jobKey string) (string, bool, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, lockKeyPrefix+jobKey, token, r.ttl).Result()
	if err != nil {
		r.logger.Error().
			Err(err).
			Str("job_key", jobKey).
			Str("action", "acquire_lock_failed").
			Msg("Failed to acquire distributed lock")
		return "", false, errors.Wrapf(err, "acquire lock for job %s", jobKey)
	}
	if !ok {
		r.logger.Debug().
			Str("job_key", jobKey).
			Str("action", "lock_already_held").
			Msg("Lock already held by another execution")
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisLockManager) ReleaseLock(ctx context.Context, jobKey, token string) error {
	released, err := releaseScript.Run(ctx, r.client, []string{lockKeyPrefix + jobKey}, token).Int()
	if err != nil {
		return errors.Wrapf(err, "release lock for job %s", jobKey)
	}
	if released == 0 {
		r.logger.Warn().
			Str("job_key", jobKey).
			Str("action", "lock_expired").
			Msg("Lock expired before release")
	}
	return nil
}

func (r *RedisLockManager) ExtendLock(ctx context.Context, jobKey, token string) (bool, error) {
	extended, err := extendScript.Run(ctx, r.client, []string{lockKeyPrefix + jobKey}, token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, errors.Wrapf(err, "extend lock for job %s", jobKey)
	}
	return extended == 1, nil
}

// RefreshInterval renews three times per ttl
func (r *RedisLockManager) RefreshInterval() time.Duration {
	return r.ttl / 3
}

func (r *RedisLockManager) IsLocked(ctx context.Context, jobKey string) (bool, error) {
	n, err := r.client.Exists(ctx, lockKeyPrefix+jobKey).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check lock status for job %s", jobKey)
	}
	return n > 0, nil
}

func (r *RedisLockManager) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
