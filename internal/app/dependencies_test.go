package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/discount-calculator/internal/config"
	"github.com/noah-isme/discount-calculator/internal/discount"
	"github.com/noah-isme/discount-calculator/internal/lock"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver:       config.StoreMemory,
		RuleCacheTTL:      30 * time.Second,
		LockTTL:           time.Second,
		LockRetryBackoff:  5 * time.Millisecond,
		EvaluateRateLimit: "2-M",
	}
}

func TestBuildMemoryWithoutRedis(t *testing.T) {
	deps, err := Build(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	require.IsType(t, &discount.MemoryStore{}, deps.Store)
	require.IsType(t, &discount.LocalLocker{}, deps.Locker)
	require.NotNil(t, deps.Limiter)
	require.Nil(t, deps.Admin)
	require.Len(t, deps.Health, 1)
	require.NoError(t, deps.Health[0].Check(context.Background()))
}

func TestBuildMemoryWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.AdminJWTSecret = "s3cret"

	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	require.IsType(t, &discount.CachedStore{}, deps.Store)
	require.IsType(t, lock.Locker{}, deps.Locker)
	require.NotNil(t, deps.Admin)
	require.Len(t, deps.Health, 2)
	for _, p := range deps.Health {
		require.NoError(t, p.Check(context.Background()), p.Name)
	}
}

func TestBuildRejectsBadRate(t *testing.T) {
	cfg := memoryConfig()
	cfg.EvaluateRateLimit = "often"
	_, err := Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestBuildDisabledRate(t *testing.T) {
	cfg := memoryConfig()
	cfg.EvaluateRateLimit = ""
	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, deps.Limiter)
	require.Nil(t, deps.Handler(cfg, zerolog.Nop()).EvaluateLimit)
}

func TestHandlerThrottlesEvaluation(t *testing.T) {
	cfg := memoryConfig()
	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/api/v1/discounts", deps.Handler(cfg, zerolog.Nop()).Routes())

	body := `{"cartItems":[{"quantity":1,"item":{"id":"1","itemType":"CLOTHES","cost":"50"}}]}`
	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/discounts/best", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.10:5555"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRunMigrationsRequiresURL(t *testing.T) {
	require.Error(t, RunMigrations(""))
}
