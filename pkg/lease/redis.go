package lease

import (
	"context"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces lease keys in the shared Redis keyspace.
const keyPrefix = "aob:lease:"

// renewScript extends a lease's TTL only if fencingToken still matches the
// value stored at key, making renewal a compare-and-swap rather than a
// blind EXPIRE that could extend a lease someone else now holds.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// releaseScript deletes a lease only if fencingToken still matches.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// RedisManager implements Manager on top of a shared go-redis client.
type RedisManager struct {
	client *redis.Client
}

// NewRedisManager wraps an existing Redis client.
func NewRedisManager(client *redis.Client) *RedisManager {
	return &RedisManager{client: client}
}

func (m *RedisManager) key(correlationID string) string {
	return keyPrefix + correlationID
}

// Acquire implements Manager using SET NX PX, the standard go-redis
// distributed-lock idiom.
func (m *RedisManager) Acquire(ctx context.Context, correlationID string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := m.client.SetNX(ctx, m.key(correlationID), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", aoberrors.ErrLeaseBusy
	}
	return token, nil
}

// Renew implements Manager.
func (m *RedisManager) Renew(ctx context.Context, correlationID, fencingToken string, ttl time.Duration) error {
	res, err := renewScript.Run(ctx, m.client, []string{m.key(correlationID)}, fencingToken, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return aoberrors.ErrLeaseLost
	}
	return nil
}

// Release implements Manager.
func (m *RedisManager) Release(ctx context.Context, correlationID, fencingToken string) error {
	_, err := releaseScript.Run(ctx, m.client, []string{m.key(correlationID)}, fencingToken).Int()
	return err
}
