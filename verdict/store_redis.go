package verdict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists batches as [Encode] blobs under "<prefix>:b:<batchID>"
// and indexes them per anchor in a sorted set "<prefix>:a:<anchorID>" scored
// by finalization time.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption configures a [RedisStore].
type RedisOption func(*RedisStore)

// WithRedisClock sets the clock used to prune the per-anchor index and to
// stamp overrides that carry no time.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = func() time.Time { return now().UTC() }
		}
	}
}

// NewRedisStore creates a [RedisStore]. ttl <= 0 keeps batches forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "pv"
	}
	s := &RedisStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) batchKey(batchID string) string {
	return s.prefix + ":b:" + batchID
}

func (s *RedisStore) anchorKey(anchorID string) string {
	return s.prefix + ":a:" + anchorID
}

// SaveVerdicts writes the blob and its index entry in one MULTI/EXEC.
// Index entries older than the ttl are pruned on the way.
func (s *RedisStore) SaveVerdicts(ctx context.Context, b *Batch) error {
	if err := validateBatch(b); err != nil {
		return err
	}
	data, err := Encode(b)
	if err != nil {
		return err
	}

	batchKey := s.batchKey(b.ID)
	anchorKey := s.anchorKey(b.AnchorID)
	score := float64(b.FinalizedAt.UnixMilli())

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, batchKey, data, s.ttl)
		pipe.ZAdd(ctx, anchorKey, redis.Z{Score: score, Member: b.ID})
		if s.ttl > 0 {
			cutoff := s.now().Add(-s.ttl).UnixMilli()
			pipe.ZRemRangeByScore(ctx, anchorKey, "-inf", fmt.Sprintf("(%d", cutoff))
			pipe.Expire(ctx, anchorKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads and decodes one batch.
func (s *RedisStore) Get(ctx context.Context, batchID string) (*Batch, error) {
	data, err := s.redis.Get(ctx, s.batchKey(batchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	b, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBatch, err)
	}
	return b, nil
}

// ListByAnchor returns batch ids for the anchor, newest first. limit <= 0 means all.
func (s *RedisStore) ListByAnchor(ctx context.Context, anchorID string, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.redis.ZRevRange(ctx, s.anchorKey(anchorID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Override records a reviewer decision on one record. The blob is rewritten
// under WATCH so concurrent overrides on the same batch do not lose updates;
// the remaining TTL is kept.
func (s *RedisStore) Override(ctx context.Context, batchID, participantID string, o Override) error {
	o, err := normalizeOverride(o, s.now())
	if err != nil {
		return err
	}
	key := s.batchKey(batchID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrBatchNotFound
			}
			return err
		}
		b, err := Decode(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptBatch, err)
		}
		r, ok := b.Record(participantID)
		if !ok {
			return ErrRecordNotFound
		}
		r.Override = &o
		updated, err := Encode(b)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.redis.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrBatchNotFound),
		errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrCorruptBatch):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}
