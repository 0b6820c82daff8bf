package simulator

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hsdfat8/fieldops/internal/logger"
	"github.com/hsdfat8/fieldops/internal/observability"
)

var (
	ErrUnknownMode      = errors.New("unknown connectivity mode")
	ErrUnknownPowerMode = errors.New("unknown power mode")
	ErrAlreadyRunning   = errors.New("sampler already running")
)

const (
	DefaultSampleInterval = 30 * time.Second
	DefaultJoinTimeout    = 5 * time.Second

	bandwidthDelay     = 100 * time.Millisecond
	throttleUnit       = 10 * time.Millisecond
	perturbProbability = 0.1
	perturbStep        = 0.2
	minStability       = 0.1
	maxStability       = 0.9
)

// ModeListener is notified synchronously, in registration order, each time
// the connectivity mode actually changes
type ModeListener interface {
	OnModeChange(mode Mode, power PowerMode)
}

// ModeListenerFunc adapts a function to ModeListener
type ModeListenerFunc func(mode Mode, power PowerMode)

func (f ModeListenerFunc) OnModeChange(mode Mode, power PowerMode) { f(mode, power) }

// PowerListener is notified synchronously, in registration order, each time
// the power mode actually changes
type PowerListener interface {
	OnPowerModeChange(mode Mode, power PowerMode)
}

// PowerListenerFunc adapts a function to PowerListener
type PowerListenerFunc func(mode Mode, power PowerMode)

func (f PowerListenerFunc) OnPowerModeChange(mode Mode, power PowerMode) { f(mode, power) }

// PowerSample is one simulated power draw
type PowerSample struct {
	Timestamp   time.Time `json:"timestamp"`
	Operation   Operation `json:"operation"`
	DataSize    int       `json:"data_size"`
	Consumption float64   `json:"consumption"`
	Mode        Mode      `json:"connectivity_mode"`
	PowerMode   PowerMode `json:"power_mode"`
}

// ConnectionSample is one background sampler observation
type ConnectionSample struct {
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode"`
	Connected bool      `json:"connected"`
	Stability float64   `json:"stability"`
	Bandwidth Bandwidth `json:"bandwidth"`
	LatencyMs int       `json:"latency_ms"`
}

// State is a consistent snapshot of both axes
type State struct {
	Mode      Mode      `json:"connectivity_mode"`
	PowerMode PowerMode `json:"power_mode"`
	ModeParams
	PowerParams
}

// Config holds simulator settings
type Config struct {
	InitialMode    Mode
	InitialPower   PowerMode
	SampleInterval time.Duration
	JoinTimeout    time.Duration
}

// Option customizes a Simulator
type Option func(*Simulator)

// WithRand sets the random source used for connectivity draws
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// WithSleep replaces the blocking wait used for delays and throttling
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Simulator) { s.sleep = fn }
}

// WithClock replaces the time source for history entries
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// Simulator models connectivity and power conditions. All state is guarded
// by a single mutex; listeners run outside it.
type Simulator struct {
	mu sync.Mutex

	mode        Mode
	power       PowerMode
	modeParams  ModeParams
	powerParams PowerParams
	stability   float64

	powerHistory   []PowerSample
	connHistory    []ConnectionSample
	listeners      []ModeListener
	powerListeners []PowerListener

	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	interval    time.Duration
	joinTimeout time.Duration
	cancel      context.CancelFunc
	done        chan struct{}
	startedAt   time.Time

	logger observability.Logger
}

// New creates a simulator. Unknown initial modes fall back to online/normal.
func New(cfg Config, opts ...Option) *Simulator {
	s := &Simulator{
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
		sleep:       sleepContext,
		now:         func() time.Time { return time.Now().UTC() },
		interval:    cfg.SampleInterval,
		joinTimeout: cfg.JoinTimeout,
		logger:      observability.New("simulator", ""),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultSampleInterval
	}
	if s.joinTimeout <= 0 {
		s.joinTimeout = DefaultJoinTimeout
	}

	mode, power := cfg.InitialMode, cfg.InitialPower
	if _, err := mode.Params(); err != nil {
		mode = ModeOnline
	}
	if _, err := power.Params(); err != nil {
		power = PowerNormal
	}
	s.applyMode(mode)
	s.applyPower(power)
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) applyMode(m Mode) {
	params, _ := m.Params()
	s.mode = m
	s.modeParams = params
	s.stability = params.Stability
	modes := make([]string, 0, len(modeTable))
	for _, mm := range Modes() {
		modes = append(modes, string(mm))
	}
	logger.SetActiveMode(logger.ConnectivityMode, string(m), modes)
}

func (s *Simulator) applyPower(p PowerMode) {
	params, _ := p.Params()
	s.power = p
	s.powerParams = params
	modes := make([]string, 0, len(powerTable))
	for _, pm := range PowerModes() {
		modes = append(modes, string(pm))
	}
	logger.SetActiveMode(logger.PowerMode, string(p), modes)
}

// AddListener registers l for mode changes
func (s *Simulator) AddListener(l ModeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// AddPowerListener registers l for power mode changes
func (s *Simulator) AddPowerListener(l PowerListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerListeners = append(s.powerListeners, l)
}

// SetMode switches the connectivity mode. Listeners fire only when the mode
// actually changes. No history entry is written.
func (s *Simulator) SetMode(m Mode) error {
	if _, err := m.Params(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.mode == m {
		s.mu.Unlock()
		return nil
	}
	previous := s.mode
	s.applyMode(m)
	power := s.power
	listeners := append([]ModeListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Infow("Connectivity mode changed", "from", previous, "to", m)
	for _, l := range listeners {
		l.OnModeChange(m, power)
	}
	return nil
}

// SetPowerMode switches the power profile. Power listeners fire only when
// the power mode actually changes.
func (s *Simulator) SetPowerMode(p PowerMode) error {
	if _, err := p.Params(); err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.power
	s.applyPower(p)
	if previous == p {
		s.mu.Unlock()
		return nil
	}
	mode := s.mode
	listeners := append([]PowerListener(nil), s.powerListeners...)
	s.mu.Unlock()

	s.logger.Infow("Power mode changed", "from", previous, "to", p)
	for _, l := range listeners {
		l.OnPowerModeChange(mode, p)
	}
	return nil
}

// Mode returns the current connectivity mode
func (s *Simulator) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// PowerMode returns the current power mode
func (s *Simulator) PowerMode() PowerMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// State returns a consistent snapshot of both axes
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	params := s.modeParams
	params.Stability = s.stability
	return State{Mode: s.mode, PowerMode: s.power, ModeParams: params, PowerParams: s.powerParams}
}

// StorageAccessible reports whether local storage backends may be used.
// Only offline mode denies access.
func (s *Simulator) StorageAccessible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode != ModeOffline
}

// IsConnected draws a connectivity check. Offline is always false,
// intermittent succeeds with probability equal to the current stability.
func (s *Simulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isConnectedLocked()
}

func (s *Simulator) isConnectedLocked() bool {
	switch s.mode {
	case ModeOffline:
		return false
	case ModeIntermittent:
		return s.rng.Float64() < s.stability
	default:
		return true
	}
}

// Delay returns how long SimulateDelay blocks under the current mode
func (s *Simulator) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := time.Duration(s.modeParams.LatencyMs) * time.Millisecond
	if !s.modeParams.Bandwidth.Unlimited() {
		d += bandwidthDelay
	}
	return d
}

// SimulateDelay blocks for the current latency plus a fixed extra delay
// whenever bandwidth is finite
func (s *Simulator) SimulateDelay(ctx context.Context) error {
	return s.sleep(ctx, s.Delay())
}

// SimulatePowerConsumption records one power draw and returns its cost.
// It sleeps briefly in proportion to the current CPU throttle.
func (s *Simulator) SimulatePowerConsumption(op Operation, dataSize int) float64 {
	s.mu.Lock()
	consumption := PowerCost(op, dataSize, s.powerParams.Multiplier)
	s.powerHistory = append(s.powerHistory, PowerSample{
		Timestamp:   s.now(),
		Operation:   op,
		DataSize:    dataSize,
		Consumption: consumption,
		Mode:        s.mode,
		PowerMode:   s.power,
	})
	throttle := s.powerParams.CPUThrottle
	s.mu.Unlock()

	logger.PowerConsumedTotal.WithLabelValues(string(op)).Add(consumption)

	if throttle < 1 {
		_ = s.sleep(context.Background(), time.Duration(float64(throttleUnit)*(1-throttle)))
	}
	return consumption
}

// Start launches the background sampler. A non-positive duration samples
// until Stop is called.
func (s *Simulator) Start(duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return ErrAlreadyRunning
	}

	if s.cancel != nil {
		s.cancel()
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if duration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), duration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.startedAt = s.now()

	go s.run(ctx, done)
	s.logger.Infow("Connectivity sampler started", "interval", s.interval, "duration", duration)
	return nil
}

func (s *Simulator) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Running reports whether the sampler goroutine is active
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// sample appends one connection history entry, perturbing stability first
// when the mode is intermittent
func (s *Simulator) sample() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeIntermittent && s.rng.Float64() < perturbProbability {
		delta := (s.rng.Float64()*2 - 1) * perturbStep
		s.stability = min(maxStability, max(minStability, s.stability+delta))
	}

	s.connHistory = append(s.connHistory, ConnectionSample{
		Timestamp: s.now(),
		Mode:      s.mode,
		Connected: s.isConnectedLocked(),
		Stability: s.stability,
		Bandwidth: s.modeParams.Bandwidth,
		LatencyMs: s.modeParams.LatencyMs,
	})
}

// Stop halts the sampler and waits for it to exit. It is safe to call
// repeatedly; waiting past the join timeout is logged.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(s.joinTimeout):
		s.logger.Warnw("Sampler did not exit within join timeout", "timeout", s.joinTimeout)
		// run returns once cancelled; sample holds the mutex only for one append
		<-done
	}
	s.logger.Infow("Connectivity sampler stopped")
}

// Close stops the sampler
func (s *Simulator) Close() error {
	s.Stop()
	return nil
}

// Stats summarizes both histories
type Stats struct {
	State              State                 `json:"current_state"`
	TotalOperations    int                   `json:"total_operations"`
	TotalConsumption   float64               `json:"total_consumption"`
	AverageConsumption float64               `json:"average_consumption"`
	ByOperation        map[Operation]float64 `json:"consumption_by_operation"`
	ConnectionSamples  int                   `json:"connection_samples"`
	UptimePercentage   float64               `json:"uptime_percentage"`
	SamplerRunning     bool                  `json:"sampler_running"`
}

// Stats returns aggregate figures derived from the histories
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := s.modeParams
	params.Stability = s.stability
	st := Stats{
		State:             State{Mode: s.mode, PowerMode: s.power, ModeParams: params, PowerParams: s.powerParams},
		TotalOperations:   len(s.powerHistory),
		ByOperation:       make(map[Operation]float64),
		ConnectionSamples: len(s.connHistory),
		SamplerRunning:    s.runningLocked(),
	}
	for _, p := range s.powerHistory {
		st.TotalConsumption += p.Consumption
		st.ByOperation[p.Operation] += p.Consumption
	}
	if st.TotalOperations > 0 {
		st.AverageConsumption = st.TotalConsumption / float64(st.TotalOperations)
	}

	connected := 0
	for _, c := range s.connHistory {
		if c.Connected {
			connected++
		}
	}
	if len(s.connHistory) > 0 {
		st.UptimePercentage = float64(connected) / float64(len(s.connHistory)) * 100
	}
	return st
}

// Histories holds copies of both history lists
type Histories struct {
	Power      []PowerSample      `json:"power_history"`
	Connection []ConnectionSample `json:"connection_history"`
}

// Snapshot copies both histories
func (s *Simulator) Snapshot() Histories {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Histories{
		Power:      append([]PowerSample(nil), s.powerHistory...),
		Connection: append([]ConnectionSample(nil), s.connHistory...),
	}
}

// PowerHistory returns the most recent n samples for op. An empty op
// matches every operation and a non-positive n returns all matches.
func (s *Simulator) PowerHistory(op Operation, n int) []PowerSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PowerSample
	for _, p := range s.powerHistory {
		if op == "" || p.Operation == op {
			out = append(out, p)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return append([]PowerSample(nil), out...)
}
