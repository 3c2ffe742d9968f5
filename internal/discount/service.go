package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/discount-calculator/internal/obs"
	"github.com/noah-isme/discount-calculator/internal/pricing"
)

// Locker serialises work on a key. lock.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// LocalLocker is a process-local Locker used when no Redis is configured.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is dropped from LocalLocker once no caller holds or waits on it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// WithLock runs fn while holding the mutex for key. ttl is ignored.
func (l *LocalLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	k := l.acquire(key)
	defer l.release(key, k)

	k.mu.Lock()
	defer k.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (l *LocalLocker) acquire(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*keyLock)
	}
	k, ok := l.locks[key]
	if !ok {
		k = &keyLock{}
		l.locks[key] = k
	}
	k.refs++
	return k
}

func (l *LocalLocker) release(key string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, key)
	}
}

// CreateLockKey is the lock guarding the existence check for a rule id.
func CreateLockKey(id string) string {
	return "discount:create:" + id
}

// Service orchestrates rule management and evaluation.
type Service struct {
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

var errNotConfigured = errors.New("discount service not configured")

// Create stores a new rule. ErrAlreadyExists is returned when the id is taken.
func (s *Service) Create(ctx context.Context, rule Rule) (Rule, error) {
	if s == nil || s.Store == nil {
		return Rule{}, errNotConfigured
	}
	if err := rule.Validate(); err != nil {
		obs.ObserveRuleMutation("create", "invalid")
		return Rule{}, err
	}
	var saved Rule
	err := s.locker().WithLock(ctx, CreateLockKey(rule.ID), s.lockTTL(), func(ctx context.Context) error {
		_, err := s.Store.FindByID(ctx, rule.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrAlreadyExists, rule.ID)
		case !errors.Is(err, ErrNotFound):
			return err
		}
		saved, err = s.Store.Save(ctx, rule)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			obs.ObserveRuleMutation("create", "conflict")
		} else {
			obs.ObserveRuleMutation("create", "error")
			s.Logger.Error().Err(err).Str("rule_id", rule.ID).Msg("create discount rule")
		}
		return Rule{}, err
	}
	obs.ObserveRuleMutation("create", "ok")
	s.Logger.Info().Str("rule_id", saved.ID).Str("kind", string(saved.Kind())).Time("at", s.now()).Msg("discount rule created")
	return saved, nil
}

// Delete removes a rule. Deleting an unknown id succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s == nil || s.Store == nil {
		return errNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if err := s.Store.DeleteByID(ctx, id); err != nil {
		obs.ObserveRuleMutation("delete", "error")
		return err
	}
	obs.ObserveRuleMutation("delete", "ok")
	s.Logger.Info().Str("rule_id", id).Time("at", s.now()).Msg("discount rule deleted")
	return nil
}

// List returns every rule in store order.
func (s *Service) List(ctx context.Context) ([]Rule, error) {
	if s == nil || s.Store == nil {
		return nil, errNotConfigured
	}
	return s.Store.FindAll(ctx)
}

// Get returns the rule for id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (Rule, error) {
	if s == nil || s.Store == nil {
		return Rule{}, errNotConfigured
	}
	return s.Store.FindByID(ctx, strings.TrimSpace(id))
}

// BestFor evaluates cart against every stored rule.
func (s *Service) BestFor(ctx context.Context, cart pricing.Cart) (Outcome, error) {
	if s == nil || s.Store == nil {
		return Outcome{}, errNotConfigured
	}
	ctx, span := otel.Tracer("discount").Start(ctx, "discount.best")
	defer span.End()
	span.SetAttributes(attribute.Int("cart.lines", len(cart.Lines)))

	if err := cart.Validate(); err != nil {
		obs.ObserveEvaluation("invalid", -1)
		span.SetStatus(codes.Error, "invalid cart")
		return Outcome{}, err
	}
	rules, err := s.Store.FindAll(ctx)
	if err != nil {
		obs.ObserveEvaluation("error", -1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load rules")
		return Outcome{}, err
	}
	outcome, err := Evaluate(cart, rules)
	if err != nil {
		obs.ObserveEvaluation("error", len(rules))
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate")
		s.Logger.Error().Err(err).Int("rules", len(rules)).Msg("evaluate discounts")
		return Outcome{}, err
	}
	result := "no_discount"
	if outcome.Applied() {
		result = "applied"
	}
	obs.ObserveEvaluation(result, len(rules))
	span.SetAttributes(
		attribute.Int("discount.rules", len(rules)),
		attribute.String("discount.id", outcome.RuleID),
		attribute.String("discount.total", outcome.Total.String()),
	)
	s.Logger.Debug().Str("discount_id", outcome.RuleID).Str("total", outcome.Total.String()).Int("rules", len(rules)).Msg("best discount selected")
	return outcome, nil
}

var defaultLocker = &LocalLocker{}

func (s *Service) locker() Locker {
	if s.Locker != nil {
		return s.Locker
	}
	return defaultLocker
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 5 * time.Second
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
