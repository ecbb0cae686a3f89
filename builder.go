package goPresence

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goPresence/challenge"
	internalaudit "github.com/MrEthical07/goPresence/internal/audit"
	"github.com/MrEthical07/goPresence/internal/cluster"
	"github.com/MrEthical07/goPresence/internal/decision"
	"github.com/MrEthical07/goPresence/internal/rate"
	"github.com/MrEthical07/goPresence/internal/registry"
	"github.com/MrEthical07/goPresence/verdict"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/goPresence"

// Builder assembles an [Engine]. A Builder is single use: the second call to
// Build fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	verdictSink  VerdictSink
	enrollment   EnrollmentProvider
	scheduleGate ScheduleGate
	auditSink    AuditSink

	logger         *slog.Logger
	now            func() time.Time
	tracerProvider trace.TracerProvider

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The builder keeps a copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used by the submission throttle and, when
// no explicit sink is given, by the default verdict store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithVerdictSink sets where finalized batches go. Sinks that also implement
// [VerdictStore] enable Engine.Verdicts, Engine.ListVerdicts and
// Engine.OverrideVerdict.
func (b *Builder) WithVerdictSink(sink VerdictSink) *Builder {
	b.verdictSink = sink
	return b
}

// WithEnrollmentProvider sets the roster source used by FinalizeSession.
func (b *Builder) WithEnrollmentProvider(p EnrollmentProvider) *Builder {
	b.enrollment = p
	return b
}

// WithScheduleGate sets the gate consulted by OpenSession.
func (b *Builder) WithScheduleGate(g ScheduleGate) *Builder {
	b.scheduleGate = g
	return b
}

// WithAuditSink sets the audit sink. Audit must also be enabled in config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine clock. Window expiry, session lifetime and
// verdict timestamps all read it.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the finalize latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Enabled && b.redis == nil {
		return nil, errors.New("RateLimit requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	var challenges *challenge.Manager
	if cfg.Liveness.Challenge.Enabled {
		ch := cfg.Liveness.Challenge
		m, err := challenge.NewManager(challenge.Config{
			SigningMethod: ch.SigningMethod,
			PrivateKey:    ch.PrivateKey,
			PublicKey:     ch.PublicKey,
			VerifyKeys:    ch.VerifyKeys,
			KeyID:         ch.KeyID,
			Issuer:        ch.Issuer,
			Leeway:        ch.Leeway,
			Now:           now,
		})
		if err != nil {
			return nil, fmt.Errorf("challenge: %w", err)
		}
		challenges = m
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled {
		limiter = rate.New(b.redis, rate.Config{
			KeyPrefix:      cfg.RateLimit.KeyPrefix,
			MaxEvidence:    cfg.RateLimit.MaxEvidence,
			EvidenceWindow: cfg.RateLimit.EvidenceWindow,
			MaxProofs:      cfg.RateLimit.MaxProofs,
			ProofWindow:    cfg.RateLimit.ProofWindow,
		})
	}

	sink := b.verdictSink
	if sink == nil && b.redis != nil {
		sink = verdict.NewRedisStore(b.redis, cfg.Verdict.RedisPrefix, cfg.Verdict.TTL, verdict.WithRedisClock(now))
	}

	e := &Engine{
		config: cfg,
		registry: registry.New(registry.Options{
			Now:             now,
			MaxLifetime:     cfg.Session.MaxLifetime,
			MaxParticipants: cfg.Session.MaxParticipants,
		}),
		policy: decision.Policy{
			OverlapMinRatio: cfg.Policy.OverlapMinRatio,
			Cluster: cluster.Config{
				NearIdentical: cfg.Policy.NearIdenticalScore,
				StaticMotion:  cfg.Policy.StaticMotionThreshold,
			},
		},
		limiter:    limiter,
		challenges: challenges,
		sink:       sink,
		enrollment: b.enrollment,
		schedule:   b.scheduleGate,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Retained:   retainedAuditEvents,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		tracer:  tp.Tracer(tracerName),
		now:     now,
	}

	b.built = true
	return e, nil
}
