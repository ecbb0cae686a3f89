package goPresence_test

import (
	"context"
	"fmt"

	goPresence "github.com/MrEthical07/goPresence"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := goPresence.DefaultConfig()
	cfg.RateLimit.Enabled = true

	engine, _ := goPresence.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(goPresence.NewJSONLogger("warn")).
		Build()
	_ = engine
}

// ExampleEngine_FinalizeSession walks one session from open to verdicts.
func ExampleEngine_FinalizeSession() {
	engine, err := goPresence.New().Build()
	if err != nil {
		panic(err)
	}
	defer engine.Close()
	ctx := context.Background()

	seed := goPresence.Fingerprint{"ap-a": -40, "ap-b": -50, "ap-c": -60, "ap-d": -70}
	nearby := goPresence.Fingerprint{"ap-a": -42, "ap-b": -51, "ap-c": -61, "ap-d": -69}

	_, _ = engine.OpenSession(ctx, goPresence.OpenSessionRequest{AnchorID: "room-101", Seed: seed})
	for _, id := range []string{"alice", "bob"} {
		_, _ = engine.SubmitEvidence(ctx, goPresence.EvidenceRequest{
			AnchorID:      "room-101",
			ParticipantID: id,
			Fingerprint:   nearby,
			Motion:        []float64{0.3},
		})
	}
	_, _ = engine.TriggerLiveness(ctx, goPresence.TriggerLivenessRequest{AnchorID: "room-101"})
	_, _ = engine.SubmitLivenessProof(ctx, goPresence.LivenessProofRequest{AnchorID: "room-101", ParticipantID: "alice"})

	res, err := engine.FinalizeSession(ctx, goPresence.FinalizeRequest{AnchorID: "room-101"})
	if err != nil {
		panic(err)
	}
	for _, rec := range res.Batch.Records {
		fmt.Println(rec.ParticipantID, rec.Status)
	}
	// Output:
	// alice PRESENT
	// bob PARTIAL
}

// ExampleEngine_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleEngine_MetricsSnapshot() {
	var engine *goPresence.Engine
	snapshot := engine.MetricsSnapshot()
	_ = snapshot.Counters[goPresence.MetricSessionOpened]
}
