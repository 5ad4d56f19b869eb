package pace

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testController returns a Controller with a fake clock and a sleep
// that advances it instead of blocking.
func testController(cfg Config) (*Controller, *time.Time, *[]time.Duration) {
	now := time.Unix(1_700_000_000, 0)
	var sleeps []time.Duration
	c := NewController(cfg)
	c.now = func() time.Time { return now }
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		now = now.Add(d)
		return ctx.Err()
	}
	return c, &now, &sleeps
}

func TestWaitFirstVisitNoSleep(t *testing.T) {
	c, _, sleeps := testController(Config{})
	if err := c.Wait(context.Background(), "Booking.com"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(*sleeps) != 0 {
		t.Errorf("first visit should not sleep, got %v", *sleeps)
	}
}

func TestWaitEnforcesSiteInterval(t *testing.T) {
	cfg := Config{Delays: map[string]SiteDelay{
		"Booking.com": {Min: 3 * time.Second, Max: 8 * time.Second},
	}}
	c, now, sleeps := testController(cfg)
	ctx := context.Background()

	c.Wait(ctx, "Booking.com")
	*now = now.Add(time.Second) // only 1s elapsed, min is 3s
	c.Wait(ctx, "Booking.com")

	if len(*sleeps) != 1 {
		t.Fatalf("sleeps: got %v", *sleeps)
	}
	got := (*sleeps)[0]
	if got < 2*time.Second || got > 7*time.Second {
		t.Errorf("sleep %v outside [min-elapsed, max-elapsed]", got)
	}
}

func TestWaitDifferentSitesIndependent(t *testing.T) {
	c, _, sleeps := testController(Config{})
	ctx := context.Background()

	c.Wait(ctx, "Booking.com")
	c.Wait(ctx, "Agoda")
	if len(*sleeps) != 0 {
		t.Errorf("distinct sites should not pace each other, got %v", *sleeps)
	}
}

func TestGlobalCeiling(t *testing.T) {
	// WHAT: the 3rd call within a minute sleeps when the ceiling is 2.
	cfg := Config{RequestsPerMinute: 2, Default: SiteDelay{Min: time.Nanosecond, Max: 2 * time.Nanosecond}}
	c, _, sleeps := testController(cfg)
	ctx := context.Background()

	c.Wait(ctx, "a")
	c.Wait(ctx, "b")
	c.Wait(ctx, "c")

	found := false
	for _, d := range *sleeps {
		if d > 30*time.Second {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a near-minute global wait, got %v", *sleeps)
	}
}

func TestProxyRingRotation(t *testing.T) {
	r := NewProxyRing([]string{"p1", "p2", "p3"}, nil)
	got := []string{r.Next(), r.Next(), r.Next(), r.Next()}
	want := []string{"p1", "p2", "p3", "p1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation: got %v, want %v", got, want)
		}
	}
}

func TestProxyRingSkipsQuarantined(t *testing.T) {
	r := NewProxyRing([]string{"p1", "p2"}, nil)
	r.MarkFailed("p1")
	for i := 0; i < 4; i++ {
		if p := r.Next(); p != "p2" {
			t.Fatalf("expected p2, got %s", p)
		}
	}
}

func TestProxyRingFailOpenReset(t *testing.T) {
	// WHY: with every proxy quarantined the alternative to resetting
	// is never scraping again.
	r := NewProxyRing([]string{"p1", "p2"}, nil)
	r.MarkFailed("p1")
	r.MarkFailed("p2")
	if p := r.Next(); p == "" {
		t.Error("fail-open reset should yield a proxy")
	}
}

func TestProxyRingEmptyPool(t *testing.T) {
	r := NewProxyRing(nil, nil)
	if p := r.Next(); p != "" {
		t.Errorf("empty pool: got %q", p)
	}
	r.MarkFailed("") // no-op, no panic
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(WithBreakerThreshold(3))
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("breaker opened early at failure %d", i)
		}
		b.RecordFailure()
	}
	if b.Allow() {
		t.Error("breaker should be open after threshold failures")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(
		WithBreakerThreshold(1),
		WithBreakerResetTimeout(time.Minute),
		WithBreakerClock(func() time.Time { return now }),
	)

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatal("expected open")
	}

	now = now.Add(2 * time.Minute)
	if b.State() != BreakerHalfOpen {
		t.Fatal("expected half-open after reset timeout")
	}

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Error("expected closed after half-open successes")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(
		WithBreakerThreshold(1),
		WithBreakerResetTimeout(time.Minute),
		WithBreakerClock(func() time.Time { return now }),
	)
	b.RecordFailure()
	now = now.Add(2 * time.Minute)
	_ = b.State() // transition to half-open
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Error("half-open failure should reopen")
	}
}

func TestBreakerSetPerSite(t *testing.T) {
	s := NewBreakerSet(WithBreakerThreshold(1))
	s.For("Booking.com").RecordFailure()

	if s.For("Booking.com").Allow() {
		t.Error("Booking.com breaker should be open")
	}
	if !s.For("Agoda").Allow() {
		t.Error("Agoda breaker must be independent")
	}
}

func TestControllerConcurrentUse(t *testing.T) {
	c := NewController(Config{Default: SiteDelay{Min: time.Nanosecond, Max: 2 * time.Nanosecond}})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Wait(context.Background(), "site")
			}
		}()
	}
	wg.Wait()
}
