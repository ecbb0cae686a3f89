package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goPresence "github.com/MrEthical07/goPresence"
	promexport "github.com/MrEthical07/goPresence/metrics/export/prometheus"
	"github.com/MrEthical07/goPresence/verdict"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		anchors      = flag.Int("anchors", 200, "number of concurrent sessions")
		participants = flag.Int("participants", 60, "participants per session")
		rounds       = flag.Int("rounds", 5, "evidence submissions per participant")
		concurrency  = flag.Int("concurrency", 256, "number of concurrent workers")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		metricsAddr  = flag.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
		logLevel     = flag.String("log-level", "warn", "engine log level")
	)
	flag.Parse()

	if *anchors <= 0 || *participants <= 0 || *rounds <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "anchors, participants, rounds, and concurrency must be > 0")
		os.Exit(2)
	}

	cfg, err := goPresence.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Session.MaxParticipants = 0

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := goPresence.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(goPresence.NewJSONLogger(*logLevel)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promexport.NewExporter(engine).Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer func() { _ = srv.Close() }()
		fmt.Printf("serving metrics on %s\n", *metricsAddr)
	}

	ctx := context.Background()
	seeds := make([]goPresence.Fingerprint, *anchors)
	for i := range seeds {
		seeds[i] = seedFor(i)
		if _, err := engine.OpenSession(ctx, goPresence.OpenSessionRequest{
			AnchorID: anchorID(i),
			Seed:     seeds[i],
		}); err != nil {
			fmt.Fprintf(os.Stderr, "open session: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("opened %d sessions\n", *anchors)

	evidenceStats := runEvidencePhase(ctx, engine, seeds, *participants, *rounds, *concurrency)
	livenessStats := runLivenessPhase(ctx, engine, len(seeds), *participants, *concurrency)
	finalizeStats, present := runFinalizePhase(ctx, engine, len(seeds), *concurrency)

	fmt.Println("---- results ----")
	printStats("evidence", evidenceStats)
	printStats("liveness", livenessStats)
	printStats("finalize", finalizeStats)
	fmt.Printf("present=%d of %d participants\n", present, (*anchors)*(*participants))
}

func runEvidencePhase(ctx context.Context, engine *goPresence.Engine, seeds []goPresence.Fingerprint, participants, rounds, concurrency int) phaseStats {
	ops := len(seeds) * participants * rounds
	return runPhase(ops, concurrency, func(r *rand.Rand, i int) error {
		anchor := i % len(seeds)
		participant := (i / len(seeds)) % participants
		_, err := engine.SubmitEvidence(ctx, goPresence.EvidenceRequest{
			AnchorID:      anchorID(anchor),
			ParticipantID: participantID(participant),
			Fingerprint:   jitter(r, seeds[anchor]),
			Motion:        []float64{0.05 + r.Float64()},
		})
		return err
	})
}

func runLivenessPhase(ctx context.Context, engine *goPresence.Engine, anchors, participants, concurrency int) phaseStats {
	for i := 0; i < anchors; i++ {
		if _, err := engine.TriggerLiveness(ctx, goPresence.TriggerLivenessRequest{AnchorID: anchorID(i)}); err != nil {
			fmt.Fprintf(os.Stderr, "trigger liveness: %v\n", err)
		}
	}
	return runPhase(anchors*participants, concurrency, func(_ *rand.Rand, i int) error {
		_, err := engine.SubmitLivenessProof(ctx, goPresence.LivenessProofRequest{
			AnchorID:      anchorID(i % anchors),
			ParticipantID: participantID(i / anchors),
		})
		return err
	})
}

func runFinalizePhase(ctx context.Context, engine *goPresence.Engine, anchors, concurrency int) (phaseStats, int64) {
	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, anchors)
		failures  int64
		present   int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for i := 0; i < anchors; i++ {
		g.Go(func() error {
			t0 := time.Now()
			res, err := engine.FinalizeSession(gctx, goPresence.FinalizeRequest{AnchorID: anchorID(i)})
			d := time.Since(t0)
			if err != nil {
				atomic.AddInt64(&failures, 1)
			} else {
				atomic.AddInt64(&present, int64(res.Batch.Counts()[verdict.StatusPresent]))
			}
			mu.Lock()
			latencies = append(latencies, d)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures), present
}

// runPhase spreads ops calls of fn over concurrency workers.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func anchorID(i int) string      { return fmt.Sprintf("anchor-%d", i) }
func participantID(i int) string { return fmt.Sprintf("p-%d", i) }

// seedFor builds a distinct eight-source environment per anchor.
func seedFor(i int) goPresence.Fingerprint {
	fp := make(goPresence.Fingerprint, 8)
	for j := 0; j < 8; j++ {
		fp[fmt.Sprintf("ap-%d-%d", i, j)] = -35 - float64((i*7+j*11)%50)
	}
	return fp
}

// jitter perturbs every reading by up to 3 dB.
func jitter(r *rand.Rand, seed goPresence.Fingerprint) goPresence.Fingerprint {
	out := make(goPresence.Fingerprint, len(seed))
	for k, v := range seed {
		out[k] = v + (r.Float64()*6 - 3)
	}
	return out
}
