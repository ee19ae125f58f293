package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, window time.Duration, max int) (*FixedWindow, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFixedWindow(client, window, max), mr
}

func TestFixedWindow_EnforcesMax(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, time.Minute, 3)
	key := Key("itinerary", "user-1")

	for i := 1; i <= 3; i++ {
		res, err := limiter.Allow(ctx, key)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Used != i {
			t.Fatalf("request %d: used = %d", i, res.Used)
		}
		if res.Remaining != 3-i {
			t.Fatalf("request %d: remaining = %d", i, res.Remaining)
		}
	}

	res, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("allow over quota: %v", err)
	}
	if res.Allowed {
		t.Fatal("fourth request should be rejected")
	}
	if res.Used != 3 {
		t.Fatalf("rejection must not inflate the counter, used = %d", res.Used)
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
}

func TestFixedWindow_ConcurrentCallersNeverExceedMax(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newTestLimiter(t, time.Minute, 5)
	key := Key("itinerary", "user-2")

	var wg sync.WaitGroup
	allowed := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(ctx, key)
			if err != nil {
				t.Errorf("allow: %v", err)
				return
			}
			allowed <- res.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 5 {
		t.Fatalf("allowed %d requests, want exactly 5", count)
	}
}

func TestFixedWindow_CounterResetsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, time.Minute, 1)
	key := Key("itinerary", "user-3")

	if res, err := limiter.Allow(ctx, key); err != nil || !res.Allowed {
		t.Fatalf("first request: allowed=%v err=%v", res.Allowed, err)
	}
	if res, err := limiter.Allow(ctx, key); err != nil || res.Allowed {
		t.Fatalf("second request should be rejected, allowed=%v err=%v", res.Allowed, err)
	}

	mr.FastForward(2 * time.Minute)

	res, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("allow after expiry: %v", err)
	}
	if !res.Allowed {
		t.Fatal("counter should reset once the window expires")
	}
	if res.Used != 1 {
		t.Fatalf("used = %d after reset, want 1", res.Used)
	}
}

func TestFixedWindow_KeyAlwaysCarriesExpiry(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, time.Minute, 10)
	key := Key("itinerary", "user-4")

	res, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	ttl := mr.TTL(key)
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("key ttl = %s, want bounded by window", ttl)
	}
	wait := time.Until(res.ResetAt)
	if wait <= 0 || wait > time.Minute+time.Second {
		t.Fatalf("reset time %s not derived from ttl", wait)
	}
}

func TestFixedWindow_StoreUnreachableIsExplicit(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newTestLimiter(t, time.Minute, 1)
	mr.Close()

	if _, err := limiter.Allow(ctx, Key("itinerary", "user-5")); err == nil {
		t.Fatal("expected an error when the backing store is unreachable")
	}
}
