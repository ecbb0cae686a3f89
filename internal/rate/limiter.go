package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters. A zero budget disables that throttle.
type Config struct {
	KeyPrefix      string
	MaxEvidence    int
	EvidenceWindow time.Duration
	MaxProofs      int
	ProofWindow    time.Duration
}

// Limiter enforces per-participant submission budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowEvidence counts one evidence submission and returns [ErrRateLimited]
// once the participant exceeds MaxEvidence in the current window of the
// session.
func (l *Limiter) AllowEvidence(ctx context.Context, anchorID, sessionID, participantID string) error {
	if l.config.MaxEvidence <= 0 {
		return nil
	}
	return l.allow(ctx, evidenceKey(l.config.KeyPrefix, anchorID, sessionID, participantID), l.config.MaxEvidence, l.config.EvidenceWindow)
}

// AllowProof counts one liveness proof attempt.
func (l *Limiter) AllowProof(ctx context.Context, anchorID, sessionID, participantID string) error {
	if l.config.MaxProofs <= 0 {
		return nil
	}
	return l.allow(ctx, proofKey(l.config.KeyPrefix, anchorID, sessionID, participantID), l.config.MaxProofs, l.config.ProofWindow)
}

// EvidenceCount returns the evidence counter for the current window.
func (l *Limiter) EvidenceCount(ctx context.Context, anchorID, sessionID, participantID string) (int, error) {
	count, err := l.redis.Get(ctx, evidenceKey(l.config.KeyPrefix, anchorID, sessionID, participantID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears both counters for the participant.
func (l *Limiter) Reset(ctx context.Context, anchorID, sessionID, participantID string) error {
	keys := []string{
		evidenceKey(l.config.KeyPrefix, anchorID, sessionID, participantID),
		proofKey(l.config.KeyPrefix, anchorID, sessionID, participantID),
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) allow(ctx context.Context, key string, budget int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(budget) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the first hit starts the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
