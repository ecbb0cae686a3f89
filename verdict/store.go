package verdict

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sink accepts finalized batches. A batch is either fully stored or the call
// returns an error; the engine keeps the session open for a retry on error.
type Sink interface {
	SaveVerdicts(ctx context.Context, b *Batch) error
}

// Store is a [Sink] that can also read batches back and record reviewer overrides.
type Store interface {
	Sink
	Get(ctx context.Context, batchID string) (*Batch, error)
	ListByAnchor(ctx context.Context, anchorID string, limit int) ([]string, error)
	Override(ctx context.Context, batchID, participantID string, o Override) error
}

func validateBatch(b *Batch) error {
	if b == nil || strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.AnchorID) == "" {
		return ErrInvalidBatch
	}
	for i := range b.Records {
		if !b.Records[i].Status.Valid() {
			return ErrInvalidBatch
		}
	}
	return nil
}

func normalizeOverride(o Override, now time.Time) (Override, error) {
	if !o.Status.Valid() || strings.TrimSpace(o.Reviewer) == "" {
		return Override{}, ErrInvalidOverride
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func cloneBatch(b *Batch) *Batch {
	out := *b
	out.Records = make([]Record, len(b.Records))
	for i, r := range b.Records {
		if r.Flags != nil {
			r.Flags = append([]string(nil), r.Flags...)
		}
		if r.Override != nil {
			o := *r.Override
			r.Override = &o
		}
		out.Records[i] = r
	}
	return &out
}

// MemoryStore keeps batches in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	batches  map[string]*Batch
	byAnchor map[string][]string
	now      func() time.Time
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:  make(map[string]*Batch),
		byAnchor: make(map[string][]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SaveVerdicts stores a copy of b. Saving the same id twice replaces the batch.
func (m *MemoryStore) SaveVerdicts(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateBatch(b); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.batches[b.ID]; !exists {
		m.byAnchor[b.AnchorID] = append(m.byAnchor[b.AnchorID], b.ID)
	}
	m.batches[b.ID] = cloneBatch(b)
	return nil
}

// Get returns a copy of the batch.
func (m *MemoryStore) Get(ctx context.Context, batchID string) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

// ListByAnchor returns batch ids for the anchor, newest first. limit <= 0 means all.
func (m *MemoryStore) ListByAnchor(ctx context.Context, anchorID string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	ids := append([]string(nil), m.byAnchor[anchorID]...)
	m.mu.RUnlock()

	// ULIDs sort by time.
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Override records a reviewer decision on one record.
func (m *MemoryStore) Override(ctx context.Context, batchID, participantID string, o Override) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o, err := normalizeOverride(o, m.now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	r, ok := b.Record(participantID)
	if !ok {
		return ErrRecordNotFound
	}
	r.Override = &o
	return nil
}
