package simulator

import (
	"encoding/json"
	"fmt"
	"math"
)

// Mode is a connectivity mode
type Mode string

const (
	ModeOnline       Mode = "online"
	ModeIntermittent Mode = "intermittent"
	ModeLowBandwidth Mode = "low_bandwidth"
	ModeOffline      Mode = "offline"
	ModeEmergency    Mode = "emergency"
)

// PowerMode is a device power profile, independent of connectivity
type PowerMode string

const (
	PowerNormal   PowerMode = "normal"
	PowerSave     PowerMode = "power_save"
	PowerMinimal  PowerMode = "minimal"
	PowerCritical PowerMode = "critical"
)

// Operation tags a simulated power draw
type Operation string

const (
	OpDatabaseRead    Operation = "database_read"
	OpDatabaseWrite   Operation = "database_write"
	OpGeolocation     Operation = "geolocation"
	OpFileIO          Operation = "file_io"
	OpDatabaseTest    Operation = "database_test"
	OpDataConsistency Operation = "data_consistency"
	OpPerformanceTest Operation = "performance_test"
)

const (
	kilobyte = 1024
	megabyte = 1024 * kilobyte
)

// Bandwidth is a throughput limit in bytes per second; +Inf means unlimited
type Bandwidth float64

// Unlimited reports whether the bandwidth has no limit
func (b Bandwidth) Unlimited() bool {
	return math.IsInf(float64(b), 1)
}

// MarshalJSON encodes an unlimited bandwidth as the string "unlimited"
func (b Bandwidth) MarshalJSON() ([]byte, error) {
	if b.Unlimited() {
		return json.Marshal("unlimited")
	}
	return json.Marshal(float64(b))
}

// ModeParams are derived deterministically from a Mode
type ModeParams struct {
	Stability float64   `json:"stability"`
	Bandwidth Bandwidth `json:"bandwidth"`
	LatencyMs int       `json:"latency_ms"`
}

// PowerParams are derived deterministically from a PowerMode
type PowerParams struct {
	Multiplier    float64 `json:"power_multiplier"`
	CPUThrottle   float64 `json:"cpu_throttle"`
	MemoryLimitMB int     `json:"memory_limit_mb,omitempty"` // 0 means no limit
}

var modeTable = map[Mode]ModeParams{
	ModeOnline:       {Stability: 1.0, Bandwidth: Bandwidth(math.Inf(1)), LatencyMs: 0},
	ModeIntermittent: {Stability: 0.7, Bandwidth: megabyte, LatencyMs: 100},
	ModeLowBandwidth: {Stability: 0.9, Bandwidth: 64 * kilobyte, LatencyMs: 500},
	ModeOffline:      {Stability: 0.0, Bandwidth: 0, LatencyMs: 0},
	ModeEmergency:    {Stability: 0.1, Bandwidth: 16 * kilobyte, LatencyMs: 1000},
}

var powerTable = map[PowerMode]PowerParams{
	PowerNormal:   {Multiplier: 1.0, CPUThrottle: 1.0},
	PowerSave:     {Multiplier: 0.7, CPUThrottle: 0.8, MemoryLimitMB: 512},
	PowerMinimal:  {Multiplier: 0.4, CPUThrottle: 0.5, MemoryLimitMB: 256},
	PowerCritical: {Multiplier: 0.2, CPUThrottle: 0.3, MemoryLimitMB: 128},
}

var baseCosts = map[Operation]float64{
	OpDatabaseRead:  0.5,
	OpDatabaseWrite: 1.2,
	OpGeolocation:   0.8,
	OpFileIO:        0.6,
}

const defaultBaseCost = 1.0

// Params returns the derived parameters for m
func (m Mode) Params() (ModeParams, error) {
	p, ok := modeTable[m]
	if !ok {
		return ModeParams{}, fmt.Errorf("%w: %q", ErrUnknownMode, m)
	}
	return p, nil
}

// Params returns the derived parameters for p
func (p PowerMode) Params() (PowerParams, error) {
	params, ok := powerTable[p]
	if !ok {
		return PowerParams{}, fmt.Errorf("%w: %q", ErrUnknownPowerMode, p)
	}
	return params, nil
}

// Modes lists every connectivity mode
func Modes() []Mode {
	return []Mode{ModeOnline, ModeIntermittent, ModeLowBandwidth, ModeOffline, ModeEmergency}
}

// PowerModes lists every power mode
func PowerModes() []PowerMode {
	return []PowerMode{PowerNormal, PowerSave, PowerMinimal, PowerCritical}
}

// PowerCost computes the simulated consumption of one operation
func PowerCost(op Operation, dataSize int, multiplier float64) float64 {
	base, ok := baseCosts[op]
	if !ok {
		base = defaultBaseCost
	}
	sizeFactor := math.Min(math.Max(float64(dataSize), 0)/megabyte, 2.0) * 0.1
	return base * (1 + sizeFactor) * multiplier
}
