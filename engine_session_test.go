package goPresence

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrEthical07/goPresence/verdict"
)

func TestOpenSessionReplacesExisting(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	first := mustOpen(t, engine, "room-1", seedFP)
	mustSubmit(t, engine, "room-1", "alice", nearFP, 0.2)

	second := mustOpen(t, engine, "room-1", seedFP)
	if !second.Replaced {
		t.Fatal("expected second open to report a replacement")
	}
	if second.SessionID == first.SessionID {
		t.Fatal("replacement must get a new session id")
	}
	if engine.ActiveSessions() != 1 {
		t.Fatalf("expected one session per anchor, got %d", engine.ActiveSessions())
	}

	info, err := engine.DescribeSession(ctx, "room-1")
	if err != nil {
		t.Fatalf("DescribeSession failed: %v", err)
	}
	if info.SessionID != second.SessionID || info.Participants != 0 {
		t.Fatalf("replaced session must start empty: %+v", info)
	}

	res, err := engine.FinalizeSession(ctx, FinalizeRequest{AnchorID: "room-1"})
	if err != nil {
		t.Fatalf("FinalizeSession failed: %v", err)
	}
	if len(res.Batch.Records) != 0 {
		t.Fatalf("evidence of the replaced session leaked: %+v", res.Batch.Records)
	}

	if got := engine.MetricsSnapshot().Counters[MetricSessionReplaced]; got != 1 {
		t.Fatalf("expected 1 replacement, got %d", got)
	}
}

func TestOpenSessionValidation(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  OpenSessionRequest
		want error
	}{
		{
			name: "missing anchor",
			req:  OpenSessionRequest{Seed: seedFP},
			want: ErrInvalidAnchorID,
		},
		{
			name: "empty seed",
			req:  OpenSessionRequest{AnchorID: "a"},
			want: ErrInvalidFingerprint,
		},
		{
			name: "nan reading",
			req:  OpenSessionRequest{AnchorID: "a", Seed: Fingerprint{"ap": math.NaN()}},
			want: ErrInvalidFingerprint,
		},
		{
			name: "empty access point id",
			req:  OpenSessionRequest{AnchorID: "a", Seed: Fingerprint{"": -40}},
			want: ErrInvalidFingerprint,
		},
		{
			name: "threshold above 100",
			req: OpenSessionRequest{AnchorID: "a", Seed: seedFP, Settings: &Settings{
				SimilarityThreshold: 120,
			}},
			want: ErrInvalidSettings,
		},
		{
			name: "negative radius",
			req: OpenSessionRequest{AnchorID: "a", Seed: seedFP, Settings: &Settings{
				SimilarityThreshold:   70,
				MaxDisplacementRadius: -1,
			}},
			want: ErrInvalidSettings,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.OpenSession(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrInput) {
				t.Fatalf("expected input category, got %v", err)
			}
		})
	}
	if engine.ActiveSessions() != 0 {
		t.Fatal("rejected opens must not create sessions")
	}
}

func TestOpenSessionUsesExplicitSettings(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(), nil)

	settings := Settings{SimilarityThreshold: 60, MaxDisplacementRadius: 12, PhysicsShieldEnabled: false}
	h, err := engine.OpenSession(context.Background(), OpenSessionRequest{
		AnchorID: "room",
		Seed:     seedFP,
		Settings: &settings,
	})
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	if h.Settings != settings {
		t.Fatalf("expected %+v, got %+v", settings, h.Settings)
	}

	settings.SimilarityThreshold = 99
	info, _ := engine.DescribeSession(context.Background(), "room")
	if info.Settings.SimilarityThreshold != 60 {
		t.Fatal("settings must be fixed at open")
	}
}

func TestOpenSessionScheduleGate(t *testing.T) {
	var seen time.Time
	decision := true
	var gateErr error
	gate := ScheduleFunc(func(_ context.Context, anchorID string, at time.Time) (bool, error) {
		seen = at
		return decision, gateErr
	})

	engine, clock := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithScheduleGate(gate)
	})
	ctx := context.Background()

	mustOpen(t, engine, "room", seedFP)
	if !seen.Equal(clock.Now()) {
		t.Fatalf("gate must see the engine clock, got %v", seen)
	}

	decision = false
	if _, err := engine.OpenSession(ctx, OpenSessionRequest{AnchorID: "other", Seed: seedFP}); !errors.Is(err, ErrScheduleDenied) {
		t.Fatalf("expected ErrScheduleDenied, got %v", err)
	}

	decision = true
	gateErr = errors.New("calendar offline")
	if _, err := engine.OpenSession(ctx, OpenSessionRequest{AnchorID: "other", Seed: seedFP}); !errors.Is(err, ErrScheduleDenied) {
		t.Fatalf("gate errors must deny, got %v", err)
	}

	if engine.ActiveSessions() != 1 {
		t.Fatalf("denied opens must not create sessions, have %d", engine.ActiveSessions())
	}
	if got := engine.MetricsSnapshot().Counters[MetricScheduleDenied]; got != 2 {
		t.Fatalf("expected 2 denials, got %d", got)
	}
}

func TestCloseSessionIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	mustOpen(t, engine, "room", seedFP)
	mustSubmit(t, engine, "room", "alice", nearFP)

	if err := engine.CloseSession(ctx, "room"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if err := engine.CloseSession(ctx, "room"); err != nil {
		t.Fatalf("second CloseSession must succeed, got %v", err)
	}
	if err := engine.CloseSession(ctx, ""); !errors.Is(err, ErrInvalidAnchorID) {
		t.Fatalf("expected ErrInvalidAnchorID, got %v", err)
	}

	_, err := engine.SubmitEvidence(ctx, EvidenceRequest{AnchorID: "room", ParticipantID: "alice", Fingerprint: nearFP})
	if !errors.Is(err, ErrNoActiveSession) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if _, err := engine.TriggerLiveness(ctx, TriggerLivenessRequest{AnchorID: "room"}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if _, err := engine.FinalizeSession(ctx, FinalizeRequest{AnchorID: "room"}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricSessionClosed]; got != 1 {
		t.Fatalf("expected 1 close, got %d", got)
	}
}

func TestDiscoverSession(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	labFP := Fingerprint{"ap-x": -40, "ap-y": -50, "ap-z": -60}
	roomA := mustOpen(t, engine, "room-a", seedFP)
	mustOpen(t, engine, "lab", labFP)

	hit, err := engine.DiscoverSession(ctx, DiscoverRequest{Fingerprint: nearFP})
	if err != nil {
		t.Fatalf("DiscoverSession failed: %v", err)
	}
	if hit.AnchorID != "room-a" || hit.SessionID != roomA.SessionID {
		t.Fatalf("expected room-a, got %+v", hit)
	}
	if hit.Score < 99 || hit.Score > 100 {
		t.Fatalf("unexpected score %v", hit.Score)
	}

	hit, err = engine.DiscoverSession(ctx, DiscoverRequest{Fingerprint: Fingerprint{"ap-x": -41, "ap-y": -50, "ap-z": -61}})
	if err != nil || hit.AnchorID != "lab" {
		t.Fatalf("expected lab, got %+v, %v", hit, err)
	}

	_, err = engine.DiscoverSession(ctx, DiscoverRequest{Fingerprint: Fingerprint{"ap-q": -30}})
	if !errors.Is(err, ErrSessionNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := engine.DiscoverSession(ctx, DiscoverRequest{}); !errors.Is(err, ErrInvalidFingerprint) {
		t.Fatalf("expected ErrInvalidFingerprint, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricDiscoverHit] != 2 || snap.Counters[MetricDiscoverMiss] != 1 {
		t.Fatalf("unexpected discover counters: %+v", snap.Counters)
	}
}

func TestDiscoverSessionTieBreaksLexically(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(), nil)

	mustOpen(t, engine, "room-b", seedFP)
	mustOpen(t, engine, "room-c", seedFP)
	mustOpen(t, engine, "room-a", seedFP)

	for i := 0; i < 20; i++ {
		hit, err := engine.DiscoverSession(context.Background(), DiscoverRequest{Fingerprint: seedFP})
		if err != nil {
			t.Fatalf("DiscoverSession failed: %v", err)
		}
		if hit.AnchorID != "room-a" {
			t.Fatalf("iteration %d: expected room-a, got %s", i, hit.AnchorID)
		}
	}
}

func TestDiscoverSessionFallbackThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.FallbackThreshold = 95
	engine, _ := newTestEngine(t, cfg, nil)
	ctx := context.Background()

	zero := Settings{SimilarityThreshold: 0, MaxDisplacementRadius: 30, PhysicsShieldEnabled: true}
	if _, err := engine.OpenSession(ctx, OpenSessionRequest{AnchorID: "room", Seed: seedFP, Settings: &zero}); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	// wallFP scores about 92.7 against the seed.
	if _, err := engine.DiscoverSession(ctx, DiscoverRequest{Fingerprint: wallFP}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected miss under fallback 95, got %v", err)
	}
	if hit, err := engine.DiscoverSession(ctx, DiscoverRequest{Fingerprint: nearFP}); err != nil || hit.AnchorID != "room" {
		t.Fatalf("expected hit above fallback, got %+v, %v", hit, err)
	}
}

func TestSessionMaxLifetime(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxLifetime = time.Hour
	engine, clock := newTestEngine(t, cfg, nil)
	ctx := context.Background()

	h := mustOpen(t, engine, "room", seedFP)
	if !h.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", h.ExpiresAt)
	}
	mustSubmit(t, engine, "room", "alice", nearFP)

	clock.Advance(time.Hour)
	if _, err := engine.SubmitEvidence(ctx, EvidenceRequest{AnchorID: "room", ParticipantID: "alice", Fingerprint: nearFP}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	if _, err := engine.DiscoverSession(ctx, DiscoverRequest{Fingerprint: seedFP}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired sessions must not be discoverable, got %v", err)
	}
	if engine.ActiveSessions() != 0 {
		t.Fatalf("lazy expiry must drop the session, have %d", engine.ActiveSessions())
	}
}

func TestSweepExpired(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxLifetime = time.Hour
	sink := NewChannelSink(16)
	cfg.Audit.Enabled = true
	engine, clock := newTestEngine(t, cfg, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	ctx := context.Background()

	mustOpen(t, engine, "room-b", seedFP)
	mustOpen(t, engine, "room-a", seedFP)
	clock.Advance(30 * time.Minute)
	mustOpen(t, engine, "room-c", seedFP)
	clock.Advance(45 * time.Minute)

	got := engine.SweepExpired(ctx)
	if len(got) != 2 || got[0] != "room-a" || got[1] != "room-b" {
		t.Fatalf("expected [room-a room-b], got %v", got)
	}
	if engine.ActiveSessions() != 1 {
		t.Fatalf("expected room-c to survive, have %d sessions", engine.ActiveSessions())
	}
	if again := engine.SweepExpired(ctx); again != nil {
		t.Fatalf("second sweep must be empty, got %v", again)
	}
	if n := engine.MetricsSnapshot().Counters[MetricSessionExpired]; n != 2 {
		t.Fatalf("expected 2 expired, got %d", n)
	}

	engine.Close()
	expired := 0
	for len(sink.Events()) > 0 {
		if ev := <-sink.Events(); ev.EventType == auditEventSessionExpired {
			expired++
		}
	}
	if expired != 2 {
		t.Fatalf("expected 2 session_expired audit events, got %d", expired)
	}
}

func TestSessionParticipantCap(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxParticipants = 2
	engine, _ := newTestEngine(t, cfg, nil)
	ctx := context.Background()

	mustOpen(t, engine, "room", seedFP)
	mustSubmit(t, engine, "room", "alice", nearFP)
	mustSubmit(t, engine, "room", "bob", nearFP)

	_, err := engine.SubmitEvidence(ctx, EvidenceRequest{AnchorID: "room", ParticipantID: "carol", Fingerprint: nearFP})
	if !errors.Is(err, ErrSessionFull) || !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrSessionFull, got %v", err)
	}
	mustSubmit(t, engine, "room", "alice", nearFP, 0.1)

	res, err := engine.FinalizeSession(ctx, FinalizeRequest{AnchorID: "room", Participants: []string{"alice", "bob", "carol"}})
	if err != nil {
		t.Fatalf("FinalizeSession failed: %v", err)
	}
	if got := recordFor(t, res.Batch, "carol"); got.Status != verdict.StatusAbsent || !got.HasFlag(verdict.FlagNoEvidence) {
		t.Fatalf("carol should be absent without evidence: %+v", got)
	}
}

func TestDescribeSession(t *testing.T) {
	engine, clock := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	h := mustOpen(t, engine, "room", seedFP)
	mustSubmit(t, engine, "room", "alice", nearFP)
	mustSubmit(t, engine, "room", "bob", nearFP)
	ack, err := engine.TriggerLiveness(ctx, TriggerLivenessRequest{AnchorID: "room", Window: time.Minute})
	if err != nil {
		t.Fatalf("TriggerLiveness failed: %v", err)
	}
	mustProve(t, engine, "room", "bob")
	clock.Advance(20 * time.Second)

	info, err := engine.DescribeSession(ctx, "room")
	if err != nil {
		t.Fatalf("DescribeSession failed: %v", err)
	}
	if info.SessionID != h.SessionID || info.Participants != 2 || info.LivenessConfirmed != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if !info.WindowOpen || !info.WindowExpiresAt.Equal(ack.ExpiresAt) || info.WindowSequence != 1 {
		t.Fatalf("unexpected window info: %+v", info)
	}
	if info.Age != 20*time.Second {
		t.Fatalf("expected age 20s, got %v", info.Age)
	}

	clock.Advance(time.Minute)
	info, _ = engine.DescribeSession(ctx, "room")
	if info.WindowOpen {
		t.Fatal("window must read closed after its deadline")
	}

	if _, err := engine.DescribeSession(ctx, "missing"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}
