package discount

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// RulesGenerationKey counts rule writes. Every write bumps it.
	RulesGenerationKey = "discount:rules:gen"
	allRulesKeyPrefix  = "discount:rules:all:"
)

// AllRulesCacheKey holds the JSON list of every rule as of generation gen. A list loaded
// before a write lands under the previous generation, which readers no longer consult.
func AllRulesCacheKey(gen int64) string {
	return allRulesKeyPrefix + strconv.FormatInt(gen, 10)
}

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client or non-positive ttl disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.enabled() || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if !c.enabled() || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Generation returns the counter stored at key, zero when unset.
func (c *Cache) Generation(ctx context.Context, key string) (int64, error) {
	if !c.enabled() || key == "" {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Bump increments the counter at key.
func (c *Cache) Bump(ctx context.Context, key string) error {
	if !c.enabled() || key == "" {
		return nil
	}
	return c.client.Incr(ctx, key).Err()
}

// CachedStore serves FindAll from Redis and invalidates on writes by bumping the rules
// generation. Cache failures fall back to the inner store.
type CachedStore struct {
	Inner  Store
	Cache  *Cache
	Logger zerolog.Logger
}

func (s *CachedStore) FindAll(ctx context.Context) ([]Rule, error) {
	// The generation must be read before the inner store so a concurrent write always
	// moves readers off the key this load is written to.
	gen, err := s.Cache.Generation(ctx, RulesGenerationKey)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("read rule cache generation")
		return s.Inner.FindAll(ctx)
	}
	key := AllRulesCacheKey(gen)

	var cached []RuleDTO
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("read rule cache")
	}
	if hit {
		rules, err := rulesFromDTOs(cached)
		if err == nil {
			return rules, nil
		}
		s.Logger.Warn().Err(err).Msg("decode cached rules")
	}
	rules, err := s.Inner.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, key, ToDTOs(rules)); err != nil {
		s.Logger.Warn().Err(err).Msg("write rule cache")
	}
	return rules, nil
}

func (s *CachedStore) FindByID(ctx context.Context, id string) (Rule, error) {
	return s.Inner.FindByID(ctx, id)
}

func (s *CachedStore) Save(ctx context.Context, rule Rule) (Rule, error) {
	saved, err := s.Inner.Save(ctx, rule)
	if err != nil {
		return Rule{}, err
	}
	s.invalidate(ctx)
	return saved, nil
}

func (s *CachedStore) DeleteByID(ctx context.Context, id string) error {
	if err := s.Inner.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if err := s.Cache.Bump(ctx, RulesGenerationKey); err != nil {
		s.Logger.Warn().Err(err).Msg("invalidate rule cache")
	}
}

func rulesFromDTOs(dtos []RuleDTO) ([]Rule, error) {
	rules := make([]Rule, 0, len(dtos))
	for _, dto := range dtos {
		rule, err := RuleFromDTO(dto)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
