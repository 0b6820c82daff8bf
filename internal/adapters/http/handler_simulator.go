package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hsdfat8/fieldops/internal/harness"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

// GetSimulatorState handles GET /simulator/state
func (h *Handler) GetSimulatorState(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.State())
}

// SetConnectivityMode handles PUT /simulator/mode
func (h *Handler) SetConnectivityMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.sim.SetMode(req.Mode); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.sim.State())
}

// SetPowerMode handles PUT /simulator/power
func (h *Handler) SetPowerMode(c *gin.Context) {
	var req PowerModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.sim.SetPowerMode(req.PowerMode); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, h.sim.State())
}

// CheckConnectivity handles GET /simulator/connected
func (h *Handler) CheckConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, ConnectivityResponse{
		Mode:      h.sim.Mode(),
		Connected: h.sim.IsConnected(),
	})
}

// GetSimulatorStats handles GET /simulator/stats
func (h *Handler) GetSimulatorStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.Stats())
}

// GetPowerHistory handles GET /simulator/power-history
func (h *Handler) GetPowerHistory(c *gin.Context) {
	last := 0
	if raw := c.Query("last"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "query parameter 'last' must be a non-negative integer")
			return
		}
		last = n
	}
	samples := h.sim.PowerHistory(simulator.Operation(c.Query("operation")), last)
	if samples == nil {
		samples = []simulator.PowerSample{}
	}
	c.JSON(http.StatusOK, samples)
}

// ExportSimulation handles GET /simulator/export
func (h *Handler) ExportSimulation(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"exported_at":      time.Now().UTC(),
		"simulation_stats": h.sim.Stats(),
		"histories":        h.sim.Snapshot(),
	})
}

// StartSampler handles POST /simulator/start
func (h *Handler) StartSampler(c *gin.Context) {
	var req StartSamplerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.DurationMinutes < 0 {
		badRequest(c, "duration_minutes cannot be negative")
		return
	}
	err := h.sim.Start(time.Duration(req.DurationMinutes * float64(time.Minute)))
	switch {
	case errors.Is(err, simulator.ErrAlreadyRunning):
		problem(c, http.StatusConflict, "Conflict", err.Error())
		return
	case err != nil:
		problem(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	c.Status(http.StatusAccepted)
}

// StopSampler handles POST /simulator/stop
func (h *Handler) StopSampler(c *gin.Context) {
	h.sim.Stop()
	c.Status(http.StatusNoContent)
}

// RunHarness handles POST /harness/runs
func (h *Handler) RunHarness(c *gin.Context) {
	var req HarnessRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.BatchSize < 0 {
		badRequest(c, "batch_size cannot be negative")
		return
	}
	batch := harness.QuickBatch()
	if req.BatchSize > 0 {
		batch = harness.SampleBatch(req.BatchSize)
	}
	c.JSON(http.StatusOK, h.harness.Run(c.Request.Context(), batch))
}

// ListHarnessRuns handles GET /harness/runs
func (h *Handler) ListHarnessRuns(c *gin.Context) {
	runs := h.harness.Runs()
	if runs == nil {
		runs = []harness.TestRun{}
	}
	c.JSON(http.StatusOK, runs)
}

// HarnessSummary handles GET /harness/summary
func (h *Handler) HarnessSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.harness.Summary())
}
