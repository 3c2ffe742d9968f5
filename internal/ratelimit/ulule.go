package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// DefaultPrefix namespaces limiter keys in the shared store.
const DefaultPrefix = "discount:ratelimit"

// Ulule adapts a ulule limiter to Limiter.
type Ulule struct {
	L *limiter.Limiter
}

// New builds a limiter for a formatted rate such as "300-M". Counters live in Redis when rdb
// is set and in process memory otherwise. An empty rate or "off" disables limiting and returns nil.
func New(rate string, rdb *redis.Client, prefix string) (*Ulule, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" || strings.EqualFold(rate, "off") {
		return nil, nil
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}

	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, opts)
		if err != nil {
			return nil, fmt.Errorf("limiter redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return &Ulule{L: limiter.New(store, parsed)}, nil
}

// Allow implements Limiter.
func (u *Ulule) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := u.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     res.Limit,
		Remaining: res.Remaining,
		Reset:     time.Unix(res.Reset, 0),
	}, nil
}
