package discount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/discount-calculator/internal/lock"
	"github.com/noah-isme/discount-calculator/internal/obs"
	"github.com/noah-isme/discount-calculator/internal/pricing"
)

type failingStore struct {
	Store
	err error
}

func (f failingStore) FindAll(context.Context) ([]Rule, error) { return nil, f.err }

func TestServiceCreateRejectsDuplicates(t *testing.T) {
	svc := &Service{Store: NewMemoryStore()}
	ctx := context.Background()

	saved, err := svc.Create(ctx, ruleABC)
	require.NoError(t, err)
	require.Equal(t, "ABC", saved.ID)

	_, err = svc.Create(ctx, ruleABC)
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = svc.Create(ctx, Rule{ID: "bad", Percentage: dec("150"), Criteria: ruleABC.Criteria})
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestServiceConcurrentCreateWithRedisLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := &Service{
		Store:   NewMemoryStore(),
		Locker:  lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond},
		LockTTL: time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, conflicts int
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, ruleCDE)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrAlreadyExists):
				conflicts++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Equal(t, 7, conflicts)
	require.False(t, mr.Exists(CreateLockKey("CDE")), "lock released")
}

func TestServiceDeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore(ruleABC, ruleCDE)
	svc := &Service{Store: store}
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "ABC"))
	require.NoError(t, svc.Delete(ctx, "ABC"))
	require.NoError(t, svc.Delete(ctx, "missing"))
	require.ErrorIs(t, svc.Delete(ctx, " "), ErrInvalidRule)

	rules, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "CDE", rules[0].ID)

	_, err = svc.Get(ctx, "ABC")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceBestFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("test", reg)

	svc := &Service{Store: NewMemoryStore(ruleABC, ruleCDE, ruleFGH)}
	ctx := context.Background()
	before := testutil.ToFloat64(obs.DiscountEvaluationsTotal.WithLabelValues("applied"))

	got, err := svc.BestFor(ctx, cartOf(line(5, "123", pricing.CategoryClothes, "50")))
	require.NoError(t, err)
	requireOutcome(t, got, "FGH", "200")
	require.Equal(t, before+1, testutil.ToFloat64(obs.DiscountEvaluationsTotal.WithLabelValues("applied")))

	_, err = svc.BestFor(ctx, pricing.Cart{})
	require.ErrorIs(t, err, pricing.ErrInvalidCart)

	boom := errors.New("store down")
	broken := &Service{Store: failingStore{Store: NewMemoryStore(), err: boom}}
	_, err = broken.BestFor(ctx, cartOf(line(1, "1", pricing.CategoryToys, "1")))
	require.ErrorIs(t, err, boom)
}

func TestServiceNotConfigured(t *testing.T) {
	var svc *Service
	_, err := svc.List(context.Background())
	require.Error(t, err)
	_, err = (&Service{}).BestFor(context.Background(), cartOf(line(1, "1", pricing.CategoryToys, "1")))
	require.Error(t, err)
}

func TestLocalLockerSerialises(t *testing.T) {
	var l LocalLocker
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), "k", 0, func(context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxActive)
	require.Empty(t, l.locks)
}

func TestLocalLockerForgetsReleasedKeys(t *testing.T) {
	var l LocalLocker
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.WithLock(ctx, CreateLockKey(fmt.Sprintf("rule-%d", i)), 0, func(context.Context) error { return nil }))
	}
	require.Empty(t, l.locks)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, l.WithLock(cancelled, "k", 0, func(context.Context) error { return nil }), context.Canceled)
	require.Empty(t, l.locks)
}
