package main

import (
	"strings"
	"testing"
)

const baseOutput = `goos: linux
goarch: amd64
pkg: github.com/MrEthical07/goPresence
BenchmarkSubmitEvidence-8    	 1000000	      1000 ns/op	     120 B/op	       2 allocs/op
BenchmarkSubmitEvidence-8    	 1000000	      1100 ns/op	     120 B/op	       2 allocs/op
BenchmarkSubmitEvidence-8    	 1000000	       900 ns/op	     120 B/op	       2 allocs/op
BenchmarkUntracked-8         	 1000000	        10 ns/op
PASS
`

func TestParseCollectsTrackedSamples(t *testing.T) {
	tracked := map[string][]string{"BenchmarkSubmitEvidence": {"ns/op"}}

	got, err := parse(strings.NewReader(baseOutput), tracked)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if n := len(got["BenchmarkSubmitEvidence"]["ns/op"]); n != 3 {
		t.Fatalf("expected 3 ns/op samples, got %d", n)
	}
	if n := len(got["BenchmarkSubmitEvidence"]["allocs/op"]); n != 3 {
		t.Fatalf("expected 3 allocs/op samples, got %d", n)
	}
	if _, ok := got["BenchmarkUntracked"]; ok {
		t.Fatal("untracked benchmark must be skipped")
	}
}

func TestCompare(t *testing.T) {
	tracked := map[string][]string{"BenchmarkSubmitEvidence": {"ns/op", "allocs/op"}}
	base, _ := parse(strings.NewReader(baseOutput), tracked)

	tests := []struct {
		name      string
		candidate string
		failures  int
	}{
		{
			name:      "within threshold",
			candidate: "BenchmarkSubmitEvidence-8 1 1200 ns/op 2 allocs/op\n",
		},
		{
			name:      "latency regression",
			candidate: "BenchmarkSubmitEvidence-8 1 1500 ns/op 2 allocs/op\n",
			failures:  1,
		},
		{
			name:      "missing benchmark",
			candidate: "BenchmarkOther-8 1 1 ns/op\n",
			failures:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand, err := parse(strings.NewReader(tt.candidate), tracked)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			_, failures := compare(tracked, base, cand, 0.30)
			if len(failures) != tt.failures {
				t.Fatalf("expected %d failures, got %v", tt.failures, failures)
			}
		})
	}
}

func TestParseTrack(t *testing.T) {
	got, err := parseTrack("BenchmarkA:allocs/op, BenchmarkB")
	if err != nil {
		t.Fatalf("parseTrack failed: %v", err)
	}
	if got["BenchmarkA"][0] != "allocs/op" || got["BenchmarkB"][0] != "ns/op" {
		t.Fatalf("unexpected tracking: %v", got)
	}
	if _, err := parseTrack("Submit"); err == nil {
		t.Fatal("expected error for non-benchmark name")
	}
}

func TestNormalizeName(t *testing.T) {
	if got := normalizeName("BenchmarkFinalizeSession-16"); got != "BenchmarkFinalizeSession" {
		t.Fatalf("normalizeName = %q", got)
	}
	if got := normalizeName("BenchmarkFoo-bar"); got != "BenchmarkFoo-bar" {
		t.Fatalf("normalizeName = %q", got)
	}
}
