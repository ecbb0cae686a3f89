package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goPresence/internal/liveness"
	"github.com/MrEthical07/goPresence/signal"
)

// EvidenceRecord is everything one participant submitted during a session.
// Histories are append-only; LivenessConfirmed only ever moves false -> true.
type EvidenceRecord struct {
	ParticipantID     string
	Fingerprints      []signal.Fingerprint
	Motion            []float64
	LivenessConfirmed bool
	FirstSeen         time.Time
	LastSeen          time.Time
}

// Latest returns the most recent fingerprint, or nil.
func (r *EvidenceRecord) Latest() signal.Fingerprint {
	if r == nil || len(r.Fingerprints) == 0 {
		return nil
	}
	return r.Fingerprints[len(r.Fingerprints)-1]
}

func (r *EvidenceRecord) clone() EvidenceRecord {
	out := *r
	out.Fingerprints = make([]signal.Fingerprint, len(r.Fingerprints))
	copy(out.Fingerprints, r.Fingerprints)
	out.Motion = make([]float64, len(r.Motion))
	copy(out.Motion, r.Motion)
	return out
}

// Session is one anchor's live presence session. Identity fields are immutable
// after Open; everything else is guarded by mu.
type Session struct {
	anchorID        string
	id              string
	seed            signal.Fingerprint
	settings        signal.Settings
	createdAt       time.Time
	expiresAt       time.Time
	maxParticipants int

	closed     atomic.Bool
	finalizing atomic.Bool

	mu       sync.Mutex
	evidence map[string]*EvidenceRecord
	window   liveness.Window
}

// Snapshot is an immutable copy of a session taken when finalization begins.
type Snapshot struct {
	AnchorID  string
	SessionID string
	Seed      signal.Fingerprint
	Settings  signal.Settings
	CreatedAt time.Time
	Evidence  map[string]EvidenceRecord
}

// Info is a point-in-time description of a session.
type Info struct {
	AnchorID          string
	SessionID         string
	Settings          signal.Settings
	CreatedAt         time.Time
	ExpiresAt         time.Time
	Participants      int
	LivenessConfirmed int
	WindowState       liveness.State
	WindowExpiresAt   time.Time
	WindowSequence    uint64
	Finalizing        bool
}

// AnchorID returns the anchor that owns the session.
func (s *Session) AnchorID() string { return s.anchorID }

// ID returns the unique id assigned when the session was opened.
func (s *Session) ID() string { return s.id }

// Seed returns the anchor fingerprint. Callers must not mutate it.
func (s *Session) Seed() signal.Fingerprint { return s.seed }

// Settings returns the immutable calibration values.
func (s *Session) Settings() signal.Settings { return s.settings }

// CreatedAt returns the open time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// ExpiresAt returns the lifetime deadline, or the zero time when unbounded.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Closed reports whether the session was closed or replaced.
func (s *Session) Closed() bool { return s.closed.Load() }

// Finalizing reports whether finalization has begun.
func (s *Session) Finalizing() bool { return s.finalizing.Load() }

func (s *Session) expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

// usable reports the error a mutating operation must fail with. Callers hold mu.
func (s *Session) usable() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.finalizing.Load() {
		return ErrSessionFinalizing
	}
	return nil
}

// AppendEvidence records a fingerprint and/or motion samples for participant,
// creating the record on first submission. It reports whether the liveness
// window is open at now. An empty fingerprint is not appended.
func (s *Session) AppendEvidence(now time.Time, participantID string, fp signal.Fingerprint, motion []float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return false, err
	}

	rec, ok := s.evidence[participantID]
	if !ok {
		if s.maxParticipants > 0 && len(s.evidence) >= s.maxParticipants {
			return false, ErrSessionFull
		}
		rec = &EvidenceRecord{ParticipantID: participantID, FirstSeen: now}
		s.evidence[participantID] = rec
	}
	if len(fp) > 0 {
		rec.Fingerprints = append(rec.Fingerprints, fp.Clone())
	}
	if len(motion) > 0 {
		rec.Motion = append(rec.Motion, motion...)
	}
	rec.LastSeen = now

	return s.window.IsOpen(now), nil
}

// TriggerLiveness opens (or re-opens) the window for d and returns the window
// sequence number and deadline.
func (s *Session) TriggerLiveness(now time.Time, d time.Duration) (uint64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return 0, time.Time{}, err
	}
	seq, err := s.window.Trigger(now, d)
	if err != nil {
		return 0, time.Time{}, err
	}
	return seq, s.window.ExpiresAt(), nil
}

// WindowSequence returns the current window sequence and whether it is open at now.
func (s *Session) WindowSequence(now time.Time) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Sequence(), s.window.IsOpen(now)
}

// ConfirmLiveness marks participant as live. It succeeds only while the window
// is open and the participant has evidence; confirming twice is a no-op and
// reports already=true. When seq is non-zero it must match the open window.
func (s *Session) ConfirmLiveness(now time.Time, participantID string, seq uint64) (already bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return false, err
	}
	if !s.window.IsOpen(now) {
		return false, ErrWindowClosed
	}
	if seq != 0 && seq != s.window.Sequence() {
		return false, ErrWindowClosed
	}
	rec, ok := s.evidence[participantID]
	if !ok {
		return false, ErrParticipantUnknown
	}
	if rec.LivenessConfirmed {
		return true, nil
	}
	rec.LivenessConfirmed = true
	rec.LastSeen = now
	return false, nil
}

// BeginFinalize flags the session as finalizing and returns a deep copy of its
// evidence. From this point every mutation fails with ErrSessionFinalizing.
func (s *Session) BeginFinalize() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usable(); err != nil {
		return Snapshot{}, err
	}
	s.finalizing.Store(true)

	evidence := make(map[string]EvidenceRecord, len(s.evidence))
	for id, rec := range s.evidence {
		evidence[id] = rec.clone()
	}
	return Snapshot{
		AnchorID:  s.anchorID,
		SessionID: s.id,
		Seed:      s.seed.Clone(),
		Settings:  s.settings,
		CreatedAt: s.createdAt,
		Evidence:  evidence,
	}, nil
}

// AbortFinalize clears the finalizing flag so the session accepts evidence again.
func (s *Session) AbortFinalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizing.Store(false)
}

// Info describes the session as seen at now.
func (s *Session) Info(now time.Time) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	confirmed := 0
	for _, rec := range s.evidence {
		if rec.LivenessConfirmed {
			confirmed++
		}
	}
	return Info{
		AnchorID:          s.anchorID,
		SessionID:         s.id,
		Settings:          s.settings,
		CreatedAt:         s.createdAt,
		ExpiresAt:         s.expiresAt,
		Participants:      len(s.evidence),
		LivenessConfirmed: confirmed,
		WindowState:       s.window.State(now),
		WindowExpiresAt:   s.window.ExpiresAt(),
		WindowSequence:    s.window.Sequence(),
		Finalizing:        s.finalizing.Load(),
	}
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed.Store(true)
	s.mu.Unlock()
}
