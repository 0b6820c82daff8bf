// Package harness runs the fallback checks that prove both storage paths
// keep working under the simulated connectivity and power conditions.
package harness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/logger"
	"github.com/hsdfat8/fieldops/internal/observability"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

// Check names, in run order
const (
	CheckBackendAvailability = "SQLite Availability"
	CheckDocumentRoundTrip   = "JSON Fallback"
	CheckDataConsistency     = "Data Consistency"
	CheckPerformance         = "Performance Test"
)

const (
	artifactName      = "test_fallback.json"
	maxPerfOperations = 100
	perfOperationCost = time.Millisecond
)

var ErrNoStructuredBackend = errors.New("structured backend not configured")

// Conditions is the part of the simulator the harness needs
type Conditions interface {
	State() simulator.State
	SimulateDelay(ctx context.Context) error
	SimulatePowerConsumption(op simulator.Operation, dataSize int) float64
}

// Prober performs a structured backend round trip
type Prober interface {
	Probe(ctx context.Context) error
}

// TestResult is the outcome of one check
type TestResult struct {
	Name          string         `json:"name"`
	Success       bool           `json:"success"`
	Duration      float64        `json:"duration"` // seconds
	PowerConsumed float64        `json:"power_consumed"`
	Error         string         `json:"error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// TestRun groups the results of one invocation under a single
// connectivity snapshot
type TestRun struct {
	ID               string              `json:"id"`
	Timestamp        time.Time           `json:"timestamp"`
	ConnectivityMode simulator.Mode      `json:"connectivity_mode"`
	PowerMode        simulator.PowerMode `json:"power_mode"`
	BatchSize        int                 `json:"batch_size"`
	Results          []TestResult        `json:"tests"`
}

// Passed reports whether every check in the run succeeded
func (r TestRun) Passed() bool {
	for _, t := range r.Results {
		if !t.Success {
			return false
		}
	}
	return true
}

// Summary is derived from the retained runs on demand
type Summary struct {
	TotalRuns             int                `json:"total_test_runs"`
	SuccessfulRuns        int                `json:"successful_test_runs"`
	OverallSuccessRate    float64            `json:"overall_success_rate"`
	IndividualSuccessRate float64            `json:"individual_test_success_rate"`
	CheckSuccessRates     map[string]float64 `json:"check_success_rates"`
	Latest                *TestRun           `json:"latest_test,omitempty"`
}

// Option customizes a Harness
type Option func(*Harness)

// WithSleep replaces the wait used to pace the performance check
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(h *Harness) { h.sleep = fn }
}

// Harness runs the four fallback checks and keeps every run in memory
type Harness struct {
	structured Prober
	artifacts  ports.ArtifactStore
	conditions Conditions

	mu   sync.Mutex
	runs []TestRun

	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	logger observability.Logger
}

// New creates a harness. structured may be nil, in which case the
// availability check fails.
func New(structured Prober, artifacts ports.ArtifactStore, conditions Conditions, opts ...Option) *Harness {
	h := &Harness{
		structured: structured,
		artifacts:  artifacts,
		conditions: conditions,
		sleep:      sleepContext,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     observability.New("harness", ""),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes all four checks against batch and records the run. A failing
// check never stops the remaining ones.
func (h *Harness) Run(ctx context.Context, batch []TestRecord) TestRun {
	state := h.conditions.State()
	run := TestRun{
		ID:               uuid.NewString(),
		Timestamp:        h.now(),
		ConnectivityMode: state.Mode,
		PowerMode:        state.PowerMode,
		BatchSize:        len(batch),
	}

	checks := []struct {
		name string
		fn   func(context.Context, []TestRecord) (float64, map[string]any, error)
	}{
		{CheckBackendAvailability, h.checkBackend},
		{CheckDocumentRoundTrip, h.checkDocumentRoundTrip},
		{CheckDataConsistency, h.checkConsistency},
		{CheckPerformance, h.checkPerformance},
	}

	for _, c := range checks {
		start := time.Now()
		power, details, err := c.fn(ctx, batch)
		result := TestResult{
			Name:          c.name,
			Success:       err == nil,
			Duration:      time.Since(start).Seconds(),
			PowerConsumed: power,
			Details:       details,
		}
		outcome := "pass"
		if err != nil {
			result.Error = err.Error()
			outcome = "fail"
			h.logger.Warnw("Fallback check failed", "run_id", run.ID, "check", c.name, "error", err)
		}
		logger.HarnessCheckTotal.WithLabelValues(c.name, outcome).Inc()
		run.Results = append(run.Results, result)
	}

	h.mu.Lock()
	h.runs = append(h.runs, run)
	h.mu.Unlock()

	h.logger.Infow("Fallback run complete",
		"run_id", run.ID,
		"connectivity_mode", run.ConnectivityMode,
		"power_mode", run.PowerMode,
		"passed", run.Passed(),
	)
	return run
}

func (h *Harness) checkBackend(ctx context.Context, _ []TestRecord) (float64, map[string]any, error) {
	if h.structured == nil {
		return 0, nil, ErrNoStructuredBackend
	}
	if err := h.structured.Probe(ctx); err != nil {
		return 0, nil, err
	}
	return h.conditions.SimulatePowerConsumption(simulator.OpDatabaseTest, 1024), nil, nil
}

type artifact struct {
	TestData  []TestRecord `json:"test_data"`
	Timestamp time.Time    `json:"timestamp"`
}

func (h *Harness) checkDocumentRoundTrip(_ context.Context, batch []TestRecord) (float64, map[string]any, error) {
	defer func() {
		if rmErr := h.artifacts.RemoveArtifact(artifactName); rmErr != nil {
			h.logger.Warnw("Failed to remove fallback artifact", "artifact", artifactName, "error", rmErr)
		}
	}()

	if err := h.artifacts.WriteArtifact(artifactName, artifact{TestData: batch, Timestamp: h.now()}); err != nil {
		return 0, nil, fmt.Errorf("write artifact: %w", err)
	}
	var loaded artifact
	if err := h.artifacts.ReadArtifact(artifactName, &loaded); err != nil {
		return 0, nil, fmt.Errorf("read artifact: %w", err)
	}
	if diff := cmp.Diff(batch, loaded.TestData, cmpopts.EquateEmpty()); diff != "" {
		return 0, nil, fmt.Errorf("read-back differs from written batch (-want +got):\n%s", diff)
	}

	size := 0
	if b, err := json.Marshal(batch); err == nil {
		size = len(b)
	}
	return h.conditions.SimulatePowerConsumption(simulator.OpFileIO, size), nil, nil
}

// contentHash hashes records independent of their order
func contentHash(records []TestRecord) (string, error) {
	sorted := append([]TestRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	b, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (h *Harness) checkConsistency(_ context.Context, batch []TestRecord) (float64, map[string]any, error) {
	before, err := contentHash(batch)
	if err != nil {
		return 0, nil, err
	}

	modified := append(make([]TestRecord, 0, len(batch)+1), batch...)
	if len(modified) > 0 {
		modified[0].TestFlag = true
	}
	modified = append(modified, TestRecord{ID: "CONSISTENCY-MARKER", Name: "consistency marker", TestFlag: true})

	after, err := contentHash(batch)
	if err != nil {
		return 0, nil, err
	}

	countOK := len(modified) == len(batch)+1
	hashOK := before == after
	details := map[string]any{
		"count_consistent": countOK,
		"hash_consistent":  hashOK,
	}
	power := h.conditions.SimulatePowerConsumption(simulator.OpDataConsistency, len(batch)*100)

	switch {
	case !countOK:
		return power, details, fmt.Errorf("modified copy has %d records, want %d", len(modified), len(batch)+1)
	case !hashOK:
		return power, details, errors.New("original batch changed while its copy was modified")
	}
	return power, details, nil
}

func (h *Harness) checkPerformance(ctx context.Context, batch []TestRecord) (float64, map[string]any, error) {
	start := time.Now()
	if err := h.conditions.SimulateDelay(ctx); err != nil {
		return 0, nil, err
	}

	throttle := h.conditions.State().CPUThrottle
	if throttle <= 0 {
		throttle = 1
	}
	step := time.Duration(float64(perfOperationCost) / throttle)

	ops := min(maxPerfOperations, len(batch))
	for i := 0; i < ops; i++ {
		if err := h.sleep(ctx, step); err != nil {
			return 0, nil, err
		}
	}

	elapsed := time.Since(start)
	opsPerSecond := 0.0
	if elapsed > 0 {
		opsPerSecond = float64(ops) / elapsed.Seconds()
	}
	power := h.conditions.SimulatePowerConsumption(simulator.OpPerformanceTest, ops*50)
	return power, map[string]any{
		"operations":            ops,
		"operations_per_second": opsPerSecond,
	}, nil
}

// Runs returns a copy of every retained run, oldest first
func (h *Harness) Runs() []TestRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TestRun(nil), h.runs...)
}

// Summary derives success rates from the retained runs. Rates are
// percentages; an empty log yields a zero Summary.
func (h *Harness) Summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Summary{TotalRuns: len(h.runs), CheckSuccessRates: map[string]float64{}}
	if len(h.runs) == 0 {
		return s
	}

	var checks, passed int
	perCheck := map[string][2]int{}
	for _, r := range h.runs {
		if r.Passed() {
			s.SuccessfulRuns++
		}
		for _, t := range r.Results {
			c := perCheck[t.Name]
			c[1]++
			checks++
			if t.Success {
				c[0]++
				passed++
			}
			perCheck[t.Name] = c
		}
	}

	s.OverallSuccessRate = percent(s.SuccessfulRuns, s.TotalRuns)
	s.IndividualSuccessRate = percent(passed, checks)
	for name, c := range perCheck {
		s.CheckSuccessRates[name] = percent(c[0], c[1])
	}
	latest := h.runs[len(h.runs)-1]
	s.Latest = &latest
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
