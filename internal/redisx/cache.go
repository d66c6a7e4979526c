package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Cache of a serialized order by id: order:{order_id}
	KeyOrder = "order:%s"
)

var TTLOrderCache = 5 * time.Minute

func New(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}

// OrderCache is a read-through cache for order payloads. A cache built over a
// nil client is a no-op, so callers never branch on availability. Redis errors
// are swallowed: the database stays the source of truth.
type OrderCache struct{ rdb *redis.Client }

func NewOrderCache(rdb *redis.Client) *OrderCache { return &OrderCache{rdb: rdb} }

func (c *OrderCache) Get(ctx context.Context, orderID string) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrder, orderID)).Bytes()
	if err != nil || len(b) == 0 {
		return nil, false
	}
	return b, true
}

func (c *OrderCache) Set(ctx context.Context, orderID string, payload []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Set(ctx, fmt.Sprintf(KeyOrder, orderID), payload, TTLOrderCache).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, orderID string) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, fmt.Sprintf(KeyOrder, orderID)).Err()
}
