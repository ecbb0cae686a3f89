package goPresence

import (
	"context"
	"time"

	"github.com/MrEthical07/goPresence/signal"
	"github.com/MrEthical07/goPresence/verdict"
)

// Fingerprint is an access point id to signal strength map.
type Fingerprint = signal.Fingerprint

// Settings are the per-session calibration values.
type Settings = signal.Settings

// EnrollmentProvider lists the participants expected at an anchor. It is
// consulted by FinalizeSession when the request names no participants.
type EnrollmentProvider interface {
	EnrolledParticipants(ctx context.Context, anchorID string) ([]string, error)
}

// EnrollmentFunc adapts a function to [EnrollmentProvider].
type EnrollmentFunc func(ctx context.Context, anchorID string) ([]string, error)

// EnrolledParticipants calls f.
func (f EnrollmentFunc) EnrolledParticipants(ctx context.Context, anchorID string) ([]string, error) {
	return f(ctx, anchorID)
}

// ScheduleGate decides whether an anchor may open a session at a given time.
// An error is treated as a denial.
type ScheduleGate interface {
	AllowSession(ctx context.Context, anchorID string, at time.Time) (bool, error)
}

// ScheduleFunc adapts a function to [ScheduleGate].
type ScheduleFunc func(ctx context.Context, anchorID string, at time.Time) (bool, error)

// AllowSession calls f.
func (f ScheduleFunc) AllowSession(ctx context.Context, anchorID string, at time.Time) (bool, error) {
	return f(ctx, anchorID, at)
}

// VerdictSink receives finalized verdict batches.
type VerdictSink = verdict.Sink

// VerdictStore is a sink that can also serve reads and overrides.
type VerdictStore = verdict.Store

// OpenSessionRequest opens (or replaces) the session of an anchor.
type OpenSessionRequest struct {
	AnchorID string
	Seed     Fingerprint
	// Settings overrides Config.Defaults when non-nil.
	Settings *Settings
}

// SessionHandle describes a freshly opened session.
type SessionHandle struct {
	AnchorID  string
	SessionID string
	Settings  Settings
	CreatedAt time.Time
	// ExpiresAt is zero when sessions have no maximum lifetime.
	ExpiresAt time.Time
	// Replaced reports whether a previous session for the anchor was discarded.
	Replaced bool
}

// TriggerLivenessRequest opens a liveness window. A zero Window uses
// Config.Liveness.DefaultWindow.
type TriggerLivenessRequest struct {
	AnchorID string
	Window   time.Duration
}

// LivenessAck is returned by TriggerLiveness.
type LivenessAck struct {
	AnchorID  string
	SessionID string
	Sequence  uint64
	ExpiresAt time.Time
	// Challenge is a signed token for this window, empty unless challenge
	// tokens are enabled.
	Challenge string
}

// EvidenceRequest carries one telemetry submission. At least one of
// Fingerprint and Motion must be set.
type EvidenceRequest struct {
	AnchorID      string
	ParticipantID string
	Fingerprint   Fingerprint
	Motion        []float64
}

// EvidenceAck is returned by SubmitEvidence.
type EvidenceAck struct {
	LivenessWindowOpen bool
}

// LivenessProofRequest confirms liveness inside an open window.
type LivenessProofRequest struct {
	AnchorID      string
	ParticipantID string
	// Challenge is the token from LivenessAck. Required only when
	// Config.Liveness.RequireChallengeToken is set.
	Challenge string
}

// ProofAck is returned by SubmitLivenessProof.
type ProofAck struct {
	// AlreadyConfirmed is true when the participant had confirmed before.
	AlreadyConfirmed bool
}

// DiscoverRequest looks up the session whose seed best matches Fingerprint.
type DiscoverRequest struct {
	Fingerprint Fingerprint
}

// DiscoverResult is a discovery hit.
type DiscoverResult struct {
	AnchorID  string
	SessionID string
	Score     float64
}

// FinalizeRequest closes a session and produces verdicts. When Participants
// is empty the EnrollmentProvider is consulted; without one, every
// participant that submitted evidence is evaluated.
type FinalizeRequest struct {
	AnchorID     string
	Participants []string
}

// FinalizeResult carries the verdict batch of a finalized session.
type FinalizeResult struct {
	Batch verdict.Batch
	// Persisted is false when no verdict sink is configured.
	Persisted bool
	// Faults lists participants whose evaluation failed and were marked ABSENT.
	Faults []string
}

// SessionInfo is a point-in-time description of a live session.
type SessionInfo struct {
	AnchorID          string
	SessionID         string
	Settings          Settings
	CreatedAt         time.Time
	ExpiresAt         time.Time
	Age               time.Duration
	Participants      int
	LivenessConfirmed int
	WindowOpen        bool
	WindowExpiresAt   time.Time
	WindowSequence    uint64
	Finalizing        bool
}

// OverrideRequest records a reviewer decision on a stored verdict.
type OverrideRequest struct {
	BatchID       string
	ParticipantID string
	Status        verdict.Status
	Reviewer      string
	Note          string
}
