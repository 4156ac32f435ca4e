package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/brightsprouts/daycare-hub/internal/domain/shared"
)

// JobLock is a best-effort single-runner lease for scheduled jobs. When two
// worker instances wake for the same pass, only the lease holder runs it; the
// durable cursor remains the idempotency guard of record, the lease just
// avoids duplicate notifications from a concurrent pass.
type JobLock struct {
	cache *Cache
	ttl   time.Duration
	token string
}

// NewJobLock creates a JobLock with the default lease TTL.
func NewJobLock(cache *Cache) *JobLock {
	return &JobLock{
		cache: cache,
		ttl:   TTLJobLease,
		token: uuid.NewString(),
	}
}

// Acquire takes the lease for a job name. Returns shared.ErrLockNotAcquired
// when another holder has it.
func (l *JobLock) Acquire(ctx context.Context, jobName string) error {
	ok, err := l.cache.SetNX(ctx, LockKey(jobName), l.token, l.ttl)
	if err != nil {
		return fmt.Errorf("job lock: %w", err)
	}
	if !ok {
		return shared.ErrLockNotAcquired
	}
	return nil
}

// releaseScript deletes the lease only if this instance still holds it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release gives the lease back. A lease that expired and was re-acquired by
// another instance is left alone.
func (l *JobLock) Release(ctx context.Context, jobName string) error {
	return releaseScript.Run(ctx, l.cache.Client(), []string{LockKey(jobName)}, l.token).Err()
}
