package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, cfg), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestEvidenceBudgetPerParticipant(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxEvidence: 3, EvidenceWindow: time.Minute})
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.AllowEvidence(ctx, "room-1", "s1", "alice"); err != nil {
			t.Fatalf("submission %d: unexpected %v", i, err)
		}
	}
	if err := l.AllowEvidence(ctx, "room-1", "s1", "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.AllowEvidence(ctx, "room-1", "s1", "bob"); err != nil {
		t.Fatalf("other participant must have own budget: %v", err)
	}
	if err := l.AllowEvidence(ctx, "room-2", "s1", "alice"); err != nil {
		t.Fatalf("other anchor must have own budget: %v", err)
	}
}

func TestWindowResetsAfterTTL(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{MaxProofs: 1, ProofWindow: 10 * time.Second})
	defer done()
	ctx := context.Background()

	if err := l.AllowProof(ctx, "room-1", "s1", "alice"); err != nil {
		t.Fatalf("first proof: %v", err)
	}
	if err := l.AllowProof(ctx, "room-1", "s1", "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	mr.FastForward(11 * time.Second)
	if err := l.AllowProof(ctx, "room-1", "s1", "alice"); err != nil {
		t.Fatalf("expected new window, got %v", err)
	}
}

func TestDisabledBudgetsNeverTouchRedis(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{})
	defer done()
	mr.Close()

	if err := l.AllowEvidence(context.Background(), "room-1", "s1", "alice"); err != nil {
		t.Fatalf("disabled throttle returned %v", err)
	}
	if err := l.AllowProof(context.Background(), "room-1", "s1", "alice"); err != nil {
		t.Fatalf("disabled throttle returned %v", err)
	}
}

func TestCountAndReset(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{KeyPrefix: "t:", MaxEvidence: 5, EvidenceWindow: time.Minute})
	defer done()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.AllowEvidence(ctx, "room-1", "s1", "alice"); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	n, err := l.EvidenceCount(ctx, "room-1", "s1", "alice")
	if err != nil || n != 2 {
		t.Fatalf("expected count 2, got %d (%v)", n, err)
	}
	if err := l.Reset(ctx, "room-1", "s1", "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.EvidenceCount(ctx, "room-1", "s1", "alice"); n != 0 {
		t.Fatalf("expected count 0 after reset, got %d", n)
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	l, mr, done := newLimiterTest(t, Config{MaxEvidence: 1, EvidenceWindow: time.Minute})
	defer done()
	mr.Close()

	if err := l.AllowEvidence(context.Background(), "room-1", "s1", "alice"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestBudgetsAreScopedToSession(t *testing.T) {
	l, _, done := newLimiterTest(t, Config{MaxEvidence: 1, EvidenceWindow: time.Minute, MaxProofs: 1, ProofWindow: time.Minute})
	defer done()
	ctx := context.Background()

	if err := l.AllowEvidence(ctx, "room-1", "s1", "alice"); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if err := l.AllowProof(ctx, "room-1", "s1", "alice"); err != nil {
		t.Fatalf("first proof: %v", err)
	}
	if err := l.AllowEvidence(ctx, "room-1", "s1", "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if err := l.AllowEvidence(ctx, "room-1", "s2", "alice"); err != nil {
		t.Fatalf("new session must start with a fresh evidence budget: %v", err)
	}
	if err := l.AllowProof(ctx, "room-1", "s2", "alice"); err != nil {
		t.Fatalf("new session must start with a fresh proof budget: %v", err)
	}
	if n, _ := l.EvidenceCount(ctx, "room-1", "s1", "alice"); n != 2 {
		t.Fatalf("old session counter must be untouched, got %d", n)
	}
}
