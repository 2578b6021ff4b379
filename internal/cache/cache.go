/*
 * @module internal/cache
 * @description Feature Cache Contract (C1): a typed façade over Redis
 *   giving every other component a narrow, purpose-built view instead of a
 *   raw client: top-K sorted sets, product meta hashes, bandit posterior
 *   hashes, session trail lists and the canonical events queue. Adapted
 *   from the source's generic RedisConnector down to exactly the typed
 *   operations the contract needs.
 * @architecture Cache layer
 * @dependencies github.com/go-redis/redis/v8
 */
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"feedranker/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	sessionTrailMaxLen = 50
	sessionTrailTTL    = 24 * time.Hour
	eventsQueueKey     = "events"
	eventsPopTimeout   = 1 * time.Second
	productMetaKey     = "product:meta"
)

// Cache is the Feature Cache Contract façade. All key shapes are private to
// this package; callers only see typed methods.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

func Dial(url string) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return New(redis.NewClient(opt)), nil
}

func topKKey(namespace, id string) string { return fmt.Sprintf("topk:%s:%s", namespace, id) }
func banditKey(namespace, id string) string {
	return fmt.Sprintf("bandit:%s:%s", namespace, id)
}
func sessionTrailKey(sessionID string) string { return fmt.Sprintf("trail:%s", sessionID) }

// ReplaceUserTopK atomically swaps a user's personalized candidate set: a
// fresh sorted set is built under a temp key then renamed over the live
// one, so readers never observe a partially-populated set (spec §4.1).
func (c *Cache) ReplaceUserTopK(ctx context.Context, userID string, scored []models.ScoredID) error {
	return c.replaceTopK(ctx, topKKey("user", userID), scored)
}

// ReplaceGlobalTopK is the popularity aggregator's equivalent for the
// unpersonalized global ranking.
func (c *Cache) ReplaceGlobalTopK(ctx context.Context, scored []models.ScoredID) error {
	return c.replaceTopK(ctx, topKKey("global", "all"), scored)
}

func (c *Cache) replaceTopK(ctx context.Context, key string, scored []models.ScoredID) error {
	tmpKey := key + ":staging"

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, tmpKey)
	if len(scored) > 0 {
		members := make([]*redis.Z, 0, len(scored))
		for _, s := range scored {
			members = append(members, &redis.Z{Score: s.Score, Member: s.ID})
		}
		pipe.ZAdd(ctx, tmpKey, members...)
		pipe.Rename(ctx, tmpKey, key)
	} else {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing top-k %s: %w", key, err)
	}
	return nil
}

// UserTopK returns up to limit (id, score) pairs for a user, highest score
// first. A miss (no such key) returns an empty, non-error result so callers
// fall through to the next candidate phase.
func (c *Cache) UserTopK(ctx context.Context, userID string, limit int) ([]models.ScoredID, error) {
	return c.topK(ctx, topKKey("user", userID), limit)
}

// GlobalTopK is the popularity-backfill read path.
func (c *Cache) GlobalTopK(ctx context.Context, limit int) ([]models.ScoredID, error) {
	return c.topK(ctx, topKKey("global", "all"), limit)
}

func (c *Cache) topK(ctx context.Context, key string, limit int) ([]models.ScoredID, error) {
	res, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, int64(limit)-1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading top-k %s: %w", key, err)
	}

	out := make([]models.ScoredID, 0, len(res))
	for _, z := range res {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, models.ScoredID{ID: id, Score: z.Score})
	}
	return out, nil
}

// SetProductMeta mirrors a product's cacheable fields into the single
// product:meta hash, keyed by product id, so the ranker's hydration step
// doesn't round-trip to the relational store on every hit.
func (c *Cache) SetProductMeta(ctx context.Context, p models.Product) error {
	meta := p.Meta()
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling product meta: %w", err)
	}
	if err := c.rdb.HSet(ctx, productMetaKey, p.ID, blob).Err(); err != nil {
		return fmt.Errorf("writing product meta %s: %w", p.ID, err)
	}
	return nil
}

// ProductMeta fetches cached meta for many products in one hash-multi-get
// round trip, returning only the ids that hit.
func (c *Cache) ProductMeta(ctx context.Context, ids []string) (map[string]models.ProductMeta, error) {
	if len(ids) == 0 {
		return map[string]models.ProductMeta{}, nil
	}

	vals, err := c.rdb.HMGet(ctx, productMetaKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading product meta batch: %w", err)
	}

	out := make(map[string]models.ProductMeta, len(ids))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var meta models.ProductMeta
		if err := json.Unmarshal([]byte(s), &meta); err != nil {
			continue
		}
		out[ids[i]] = meta
	}
	return out, nil
}

// IncrBanditOutcome increments the alpha (success) or beta (failure)
// counter for a merchant/category's Beta posterior.
func (c *Cache) IncrBanditOutcome(ctx context.Context, namespace, id string, success bool) error {
	field := "beta"
	if success {
		field = "alpha"
	}
	if err := c.rdb.HIncrBy(ctx, banditKey(namespace, id), field, 1).Err(); err != nil {
		return fmt.Errorf("incrementing bandit outcome %s/%s: %w", namespace, id, err)
	}
	return nil
}

// BanditPosterior returns the current (alpha, beta) pair for an id, with
// the Beta(1,1) uniform prior when nothing has been recorded yet.
func (c *Cache) BanditPosterior(ctx context.Context, namespace, id string) (alpha, beta float64, err error) {
	res, err := c.rdb.HGetAll(ctx, banditKey(namespace, id)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading bandit posterior %s/%s: %w", namespace, id, err)
	}

	alpha, beta = 1, 1
	if v, ok := res["alpha"]; ok {
		var a float64
		if _, scanErr := fmt.Sscanf(v, "%f", &a); scanErr == nil {
			alpha += a
		}
	}
	if v, ok := res["beta"]; ok {
		var b float64
		if _, scanErr := fmt.Sscanf(v, "%f", &b); scanErr == nil {
			beta += b
		}
	}
	return alpha, beta, nil
}

// PushSessionTrail appends a product id to a session's recently-seen
// trail, capped at the last sessionTrailMaxLen entries with a sliding TTL.
func (c *Cache) PushSessionTrail(ctx context.Context, sessionID, productID string) error {
	key := sessionTrailKey(sessionID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, productID)
	pipe.LTrim(ctx, key, 0, sessionTrailMaxLen-1)
	pipe.Expire(ctx, key, sessionTrailTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pushing session trail %s: %w", sessionID, err)
	}
	return nil
}

// SessionTrail returns the full recently-seen trail for a session, most
// recent first.
func (c *Cache) SessionTrail(ctx context.Context, sessionID string) ([]string, error) {
	res, err := c.rdb.LRange(ctx, sessionTrailKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading session trail %s: %w", sessionID, err)
	}
	return res, nil
}

// PushEvent enqueues a raw event onto the canonical events queue (LPUSH
// producer side of the C1 contract).
func (c *Cache) PushEvent(ctx context.Context, evt models.Event) error {
	blob, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := c.rdb.LPush(ctx, eventsQueueKey, blob).Err(); err != nil {
		return fmt.Errorf("pushing event: %w", err)
	}
	return nil
}

// PopEvent blocks up to eventsPopTimeout for one event (BRPop consumer
// side). Returns (nil, false, nil) on timeout, the caller's idle path,
// not an error.
func (c *Cache) PopEvent(ctx context.Context) (*models.Event, bool, error) {
	res, err := c.rdb.BRPop(ctx, eventsPopTimeout, eventsQueueKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("popping event: %w", err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("unexpected BRPop reply shape: %v", res)
	}

	var evt models.Event
	if err := json.Unmarshal([]byte(res[1]), &evt); err != nil {
		return nil, false, fmt.Errorf("unmarshaling event: %w", err)
	}
	return &evt, true, nil
}

func (c *Cache) Close() error { return c.rdb.Close() }
