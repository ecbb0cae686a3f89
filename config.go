package goPresence

import (
	"errors"
	"math"
	"time"

	"github.com/MrEthical07/goPresence/challenge"
	"github.com/MrEthical07/goPresence/signal"
)

// Config is the complete engine configuration. Obtain a baseline with
// [DefaultConfig] or [ConfigFromEnv], adjust it, and hand it to
// [Builder.WithConfig]. The Engine keeps its own copy.
type Config struct {
	Defaults  DefaultsConfig  `envPrefix:"DEFAULTS_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Liveness  LivenessConfig  `envPrefix:"LIVENESS_"`
	Policy    PolicyConfig    `envPrefix:"POLICY_"`
	Discovery DiscoveryConfig `envPrefix:"DISCOVERY_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
	Verdict   VerdictConfig   `envPrefix:"VERDICT_"`
}

// DefaultsConfig holds the settings applied to sessions opened without
// explicit settings.
type DefaultsConfig struct {
	SimilarityThreshold   float64 `env:"SIMILARITY_THRESHOLD"`
	MaxDisplacementRadius float64 `env:"MAX_DISPLACEMENT_RADIUS"`
	PhysicsShieldEnabled  bool    `env:"PHYSICS_SHIELD_ENABLED"`
}

// Settings converts the defaults into per-session settings.
func (d DefaultsConfig) Settings() signal.Settings {
	return signal.Settings{
		SimilarityThreshold:   d.SimilarityThreshold,
		MaxDisplacementRadius: d.MaxDisplacementRadius,
		PhysicsShieldEnabled:  d.PhysicsShieldEnabled,
	}
}

// SessionConfig bounds session lifetime and size. Zero disables a bound.
type SessionConfig struct {
	MaxLifetime     time.Duration `env:"MAX_LIFETIME"`
	MaxParticipants int           `env:"MAX_PARTICIPANTS"`
}

// LivenessConfig controls challenge windows.
type LivenessConfig struct {
	// DefaultWindow is used when TriggerLiveness is called without a duration.
	DefaultWindow time.Duration `env:"DEFAULT_WINDOW"`
	// MaxWindow rejects longer windows with ErrInvalidWindow.
	MaxWindow time.Duration `env:"MAX_WINDOW"`
	// RequireChallengeToken makes every proof carry the token returned by
	// TriggerLiveness. Requires Challenge.Enabled.
	RequireChallengeToken bool            `env:"REQUIRE_CHALLENGE_TOKEN"`
	Challenge             ChallengeConfig `envPrefix:"CHALLENGE_"`
}

// ChallengeConfig configures signed challenge tokens. Keys are supplied in
// code; they are never read from the environment.
type ChallengeConfig struct {
	Enabled       bool                    `env:"ENABLED"`
	SigningMethod challenge.SigningMethod `env:"SIGNING_METHOD"`
	PrivateKey    []byte
	PublicKey     []byte
	VerifyKeys    map[string][]byte
	KeyID         string        `env:"KEY_ID"`
	Issuer        string        `env:"ISSUER"`
	Leeway        time.Duration `env:"LEEWAY"`
}

// PolicyConfig holds decision thresholds shared by all sessions.
type PolicyConfig struct {
	// OverlapMinRatio is the Jaccard key overlap below which a participant is
	// flagged environment-mismatch.
	OverlapMinRatio float64 `env:"OVERLAP_MIN_RATIO"`
	// NearIdenticalScore is the pairwise similarity above which two
	// participants are considered co-located devices.
	NearIdenticalScore float64 `env:"NEAR_IDENTICAL_SCORE"`
	// StaticMotionThreshold is the mean absolute motion below which a
	// participant is considered stationary.
	StaticMotionThreshold float64 `env:"STATIC_MOTION_THRESHOLD"`
}

// DiscoveryConfig controls anchor-less session lookup.
type DiscoveryConfig struct {
	// FallbackThreshold applies to sessions whose own threshold is not positive.
	FallbackThreshold float64 `env:"FALLBACK_THRESHOLD"`
}

// RateLimitConfig throttles submissions per (anchor, participant). Requires Redis.
type RateLimitConfig struct {
	Enabled        bool          `env:"ENABLED"`
	KeyPrefix      string        `env:"KEY_PREFIX"`
	MaxEvidence    int           `env:"MAX_EVIDENCE"`
	EvidenceWindow time.Duration `env:"EVIDENCE_WINDOW"`
	MaxProofs      int           `env:"MAX_PROOFS"`
	ProofWindow    time.Duration `env:"PROOF_WINDOW"`
	// FailClosed rejects submissions when Redis is unreachable. The default
	// admits them and logs a warning.
	FailClosed bool `env:"FAIL_CLOSED"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

// VerdictConfig configures verdict persistence.
type VerdictConfig struct {
	// RedisPrefix and TTL apply to the Redis store created when the builder has
	// a Redis client but no explicit sink.
	RedisPrefix string        `env:"REDIS_PREFIX"`
	TTL         time.Duration `env:"TTL"`
	// PersistTimeout bounds a single SaveVerdicts call. Zero uses the caller's context as is.
	PersistTimeout time.Duration `env:"PERSIST_TIMEOUT"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			SimilarityThreshold:   75,
			MaxDisplacementRadius: 30,
			PhysicsShieldEnabled:  true,
		},
		Session: SessionConfig{
			MaxLifetime:     4 * time.Hour,
			MaxParticipants: 500,
		},
		Liveness: LivenessConfig{
			DefaultWindow: 30 * time.Second,
			MaxWindow:     10 * time.Minute,
			Challenge: ChallengeConfig{
				SigningMethod: challenge.MethodEd25519,
				Issuer:        "goPresence",
			},
		},
		Policy: PolicyConfig{
			OverlapMinRatio:       0.3,
			NearIdenticalScore:    98,
			StaticMotionThreshold: 0.01,
		},
		Discovery: DiscoveryConfig{
			FallbackThreshold: 75,
		},
		RateLimit: RateLimitConfig{
			KeyPrefix:      "prl",
			MaxEvidence:    120,
			EvidenceWindow: time.Minute,
			MaxProofs:      10,
			ProofWindow:    time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Verdict: VerdictConfig{
			RedisPrefix:    "pv",
			TTL:            30 * 24 * time.Hour,
			PersistTimeout: 5 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Liveness.Challenge.PrivateKey = cloneBytes(cfg.Liveness.Challenge.PrivateKey)
	out.Liveness.Challenge.PublicKey = cloneBytes(cfg.Liveness.Challenge.PublicKey)
	if cfg.Liveness.Challenge.VerifyKeys != nil {
		out.Liveness.Challenge.VerifyKeys = make(map[string][]byte, len(cfg.Liveness.Challenge.VerifyKeys))
		for kid, key := range cfg.Liveness.Challenge.VerifyKeys {
			out.Liveness.Challenge.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := validateSettings(c.Defaults.Settings()); err != nil {
		return errors.New("Defaults are out of range: " + err.Error())
	}

	if c.Session.MaxLifetime < 0 {
		return errors.New("Session MaxLifetime must be >= 0")
	}
	if c.Session.MaxParticipants < 0 {
		return errors.New("Session MaxParticipants must be >= 0")
	}

	if c.Liveness.DefaultWindow <= 0 {
		return errors.New("Liveness DefaultWindow must be > 0")
	}
	if c.Liveness.MaxWindow < c.Liveness.DefaultWindow {
		return errors.New("Liveness MaxWindow must be >= DefaultWindow")
	}
	if c.Liveness.RequireChallengeToken && !c.Liveness.Challenge.Enabled {
		return errors.New("Liveness RequireChallengeToken requires Challenge Enabled")
	}
	if c.Liveness.Challenge.Enabled {
		ch := c.Liveness.Challenge
		switch ch.SigningMethod {
		case challenge.MethodEd25519:
			if len(ch.PrivateKey) == 0 {
				return errors.New("Challenge ed25519 requires PrivateKey")
			}
			if len(ch.PublicKey) == 0 && len(ch.VerifyKeys) == 0 {
				return errors.New("Challenge ed25519 requires PublicKey")
			}
		case challenge.MethodHS256:
			if len(ch.PrivateKey) == 0 {
				return errors.New("Challenge hs256 requires PrivateKey")
			}
		default:
			return errors.New("unsupported Challenge signing method")
		}
	}

	if c.Policy.OverlapMinRatio < 0 || c.Policy.OverlapMinRatio > 1 || math.IsNaN(c.Policy.OverlapMinRatio) {
		return errors.New("Policy OverlapMinRatio must be between 0 and 1")
	}
	if !(c.Policy.NearIdenticalScore > 0 && c.Policy.NearIdenticalScore <= 100) {
		return errors.New("Policy NearIdenticalScore must be in (0, 100]")
	}
	if !(c.Policy.StaticMotionThreshold > 0) || math.IsInf(c.Policy.StaticMotionThreshold, 0) {
		return errors.New("Policy StaticMotionThreshold must be > 0")
	}

	if !(c.Discovery.FallbackThreshold > 0 && c.Discovery.FallbackThreshold <= 100) {
		return errors.New("Discovery FallbackThreshold must be in (0, 100]")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxEvidence < 0 || c.RateLimit.MaxProofs < 0 {
			return errors.New("RateLimit budgets must be >= 0")
		}
		if c.RateLimit.MaxEvidence > 0 && c.RateLimit.EvidenceWindow <= 0 {
			return errors.New("RateLimit EvidenceWindow must be > 0")
		}
		if c.RateLimit.MaxProofs > 0 && c.RateLimit.ProofWindow <= 0 {
			return errors.New("RateLimit ProofWindow must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Verdict.TTL < 0 {
		return errors.New("Verdict TTL must be >= 0")
	}
	if c.Verdict.PersistTimeout < 0 {
		return errors.New("Verdict PersistTimeout must be >= 0")
	}

	return nil
}

// validateSettings rejects settings the math cannot use. A threshold of zero
// is allowed; discovery then falls back to Discovery.FallbackThreshold.
func validateSettings(s signal.Settings) error {
	if math.IsNaN(s.SimilarityThreshold) || s.SimilarityThreshold < 0 || s.SimilarityThreshold > 100 {
		return errors.New("similarity threshold must be between 0 and 100")
	}
	if math.IsNaN(s.MaxDisplacementRadius) || math.IsInf(s.MaxDisplacementRadius, 0) || s.MaxDisplacementRadius < 0 {
		return errors.New("max displacement radius must be a finite value >= 0")
	}
	return nil
}
