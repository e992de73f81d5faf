package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/pkg/composables"
)

const DefaultReferenceTTL = 10 * time.Minute

// redisKV is the part of *redis.Client the cache uses.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedReferenceRepository serves reference lookups from redis and falls
// back to next on a miss. Misses for unknown ids are not cached. Redis
// failures are logged and the lookup goes to next.
type CachedReferenceRepository struct {
	next   reference.Repository
	redis  redisKV
	prefix string
	ttl    time.Duration
	logger *logrus.Entry
}

func NewCachedReferenceRepository(next reference.Repository, client redisKV, ttl time.Duration, logger *logrus.Entry) *CachedReferenceRepository {
	if ttl <= 0 {
		ttl = DefaultReferenceTTL
	}
	return &CachedReferenceRepository{
		next:   next,
		redis:  client,
		prefix: "talent:references:v1",
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedReferenceRepository) key(kind reference.Kind, id int64) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, kind, id)
}

func cached[T any](ctx context.Context, c *CachedReferenceRepository, kind reference.Kind, id int64, load func(context.Context, int64) (T, error)) (T, error) {
	key := c.key(kind, id)
	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		jsonErr := json.Unmarshal(raw, &v)
		if jsonErr == nil {
			return v, nil
		}
		c.warn(ctx, "talent.reference_cache.decode_failed", key, jsonErr)
	case err != redis.Nil:
		c.warn(ctx, "talent.reference_cache.get_failed", key, err)
	}

	v, err := load(ctx, id)
	if err != nil {
		return v, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.warn(ctx, "talent.reference_cache.set_failed", key, err)
	}
	return v, nil
}

func (c *CachedReferenceRepository) warn(ctx context.Context, event, key string, err error) {
	composables.UseLogger(ctx, c.logger).WithFields(logrus.Fields{
		"key":   key,
		"error": err,
	}).Warn(event)
}

func (c *CachedReferenceRepository) Subject(ctx context.Context, id int64) (reference.Subject, error) {
	return cached(ctx, c, reference.KindSubject, id, c.next.Subject)
}

func (c *CachedReferenceRepository) Position(ctx context.Context, id int64) (reference.Position, error) {
	return cached(ctx, c, reference.KindPosition, id, c.next.Position)
}

func (c *CachedReferenceRepository) Assignment(ctx context.Context, id int64) (reference.Assignment, error) {
	return cached(ctx, c, reference.KindAssignment, id, c.next.Assignment)
}

func (c *CachedReferenceRepository) Ability(ctx context.Context, id int64) (reference.Ability, error) {
	return cached(ctx, c, reference.KindAbility, id, c.next.Ability)
}

func (c *CachedReferenceRepository) Aspiration(ctx context.Context, id int64) (reference.Aspiration, error) {
	return cached(ctx, c, reference.KindAspiration, id, c.next.Aspiration)
}
