package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goPresence/signal"
	"github.com/google/uuid"
)

// Options configures a Registry.
type Options struct {
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
	// MaxLifetime bounds how long a session stays live. Zero means unbounded.
	MaxLifetime time.Duration
	// MaxParticipants caps distinct participants per session. Zero means unbounded.
	MaxParticipants int
}

// Registry maps anchor ids to their single live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	now             func() time.Time
	maxLifetime     time.Duration
	maxParticipants int
}

// Match is a discovery hit.
type Match struct {
	Session *Session
	Score   float64
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions:        make(map[string]*Session),
		now:             now,
		maxLifetime:     opts.MaxLifetime,
		maxParticipants: opts.MaxParticipants,
	}
}

// Now returns the registry clock reading.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Open creates a session for anchorID, atomically replacing any existing one.
// The replaced session, if any, is returned already closed.
func (r *Registry) Open(anchorID string, seed signal.Fingerprint, settings signal.Settings) (*Session, *Session) {
	now := r.now()
	s := &Session{
		anchorID:        anchorID,
		id:              uuid.NewString(),
		seed:            seed.Clone(),
		settings:        settings,
		createdAt:       now,
		maxParticipants: r.maxParticipants,
		evidence:        make(map[string]*EvidenceRecord),
	}
	if r.maxLifetime > 0 {
		s.expiresAt = now.Add(r.maxLifetime)
	}

	r.mu.Lock()
	old := r.sessions[anchorID]
	r.sessions[anchorID] = s
	r.mu.Unlock()

	if old != nil {
		old.markClosed()
	}
	return s, old
}

// Lookup returns the live session for anchorID. A session past its lifetime is
// removed and reported as not found.
func (r *Registry) Lookup(anchorID string) (*Session, error) {
	r.mu.RLock()
	s := r.sessions[anchorID]
	r.mu.RUnlock()

	if s == nil {
		return nil, ErrSessionNotFound
	}
	if s.expired(r.now()) {
		r.Release(s)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Release removes s from the registry if it is still the live session for its
// anchor, and marks it closed either way. It reports whether s was removed.
func (r *Registry) Release(s *Session) bool {
	if s == nil {
		return false
	}
	r.mu.Lock()
	removed := false
	if cur, ok := r.sessions[s.anchorID]; ok && cur == s {
		delete(r.sessions, s.anchorID)
		removed = true
	}
	r.mu.Unlock()

	s.markClosed()
	return removed
}

// Close removes the session for anchorID. It reports whether one existed.
func (r *Registry) Close(anchorID string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[anchorID]
	if ok {
		delete(r.sessions, anchorID)
	}
	r.mu.Unlock()

	if ok {
		s.markClosed()
	}
	return s, ok
}

// SubmitEvidence appends evidence to the live session of anchorID and reports
// whether its liveness window is open.
func (r *Registry) SubmitEvidence(anchorID, participantID string, fp signal.Fingerprint, motion ...float64) (bool, error) {
	s, err := r.Lookup(anchorID)
	if err != nil {
		return false, err
	}
	return s.AppendEvidence(r.now(), participantID, fp, motion)
}

// Discover returns the session whose seed best matches candidate with a score at
// or above that session's threshold. Sessions with a threshold <= 0 use
// fallback instead.
//
// Anchors are visited in ascending lexical order and only a strictly higher
// score replaces the current best, so on an exact tie the lexically smallest
// anchor id wins.
func (r *Registry) Discover(candidate signal.Fingerprint, fallback float64) (Match, error) {
	now := r.now()

	r.mu.RLock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool { return live[i].anchorID < live[j].anchorID })

	var best Match
	found := false
	for _, s := range live {
		if s.Closed() || s.Finalizing() || s.expired(now) {
			continue
		}
		threshold := s.settings.SimilarityThreshold
		if threshold <= 0 {
			threshold = fallback
		}
		score := signal.Similarity(candidate, s.seed)
		if score < threshold {
			continue
		}
		if !found || score > best.Score {
			best = Match{Session: s, Score: score}
			found = true
		}
	}
	if !found {
		return Match{}, ErrNoCandidate
	}
	return best, nil
}

// Sweep removes every session past its lifetime and returns them.
func (r *Registry) Sweep() []*Session {
	now := r.now()

	r.mu.Lock()
	var reaped []*Session
	for anchorID, s := range r.sessions {
		if s.expired(now) {
			delete(r.sessions, anchorID)
			reaped = append(reaped, s)
		}
	}
	r.mu.Unlock()

	for _, s := range reaped {
		s.markClosed()
	}
	sort.Slice(reaped, func(i, j int) bool { return reaped[i].anchorID < reaped[j].anchorID })
	return reaped
}

// Len returns the number of sessions currently held, expired or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
