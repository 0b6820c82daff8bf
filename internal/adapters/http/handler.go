package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/domain/service"
	"github.com/hsdfat8/fieldops/internal/harness"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

// Dependencies are the components exposed over HTTP
type Dependencies struct {
	Store       *service.RecordStore
	Catalog     *service.LocationCatalog
	Simulator   *simulator.Simulator
	Harness     *harness.Harness
	Database    ports.DatabaseAdapter // nil when no structured backend is configured
	MetricsPath string                // empty disables the metrics endpoint
}

// Handler handles HTTP requests for the field operations service
type Handler struct {
	store   *service.RecordStore
	catalog *service.LocationCatalog
	sim     *simulator.Simulator
	harness *harness.Harness
	db      ports.DatabaseAdapter
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		store:   deps.Store,
		catalog: deps.Catalog,
		sim:     deps.Simulator,
		harness: deps.Harness,
		db:      deps.Database,
	}
}

func problem(c *gin.Context, status int, title, detail string) {
	c.JSON(status, ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request.URL.Path,
	})
}

func badRequest(c *gin.Context, detail string) {
	problem(c, http.StatusBadRequest, "Bad Request", detail)
}

func notFound(c *gin.Context, detail string) {
	problem(c, http.StatusNotFound, "Not Found", detail)
}

var errMissingParam = errors.New("missing parameter")

// floatQuery parses a required float query parameter
func floatQuery(c *gin.Context, name string) (float64, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return 0, errMissingParam
	}
	return strconv.ParseFloat(raw, 64)
}

// optionalFloatQuery parses a float query parameter, falling back to def
func optionalFloatQuery(c *gin.Context, name string, def float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func boolQuery(c *gin.Context, name string) bool {
	b, _ := strconv.ParseBool(c.Query(name))
	return b
}

// point reads the lat and lon query parameters
func point(c *gin.Context) (lat, lon float64, ok bool) {
	lat, err := floatQuery(c, "lat")
	if err != nil {
		badRequest(c, "query parameter 'lat' must be a number")
		return 0, 0, false
	}
	lon, err = floatQuery(c, "lon")
	if err != nil {
		badRequest(c, "query parameter 'lon' must be a number")
		return 0, 0, false
	}
	return lat, lon, true
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	state := h.sim.State()
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		Service:          "fieldops",
		Backend:          h.store.ActiveBackend(c.Request.Context()),
		ConnectivityMode: state.Mode,
		PowerMode:        state.PowerMode,
	})
}

// GetDatabaseInfo handles GET /database/info
func (h *Handler) GetDatabaseInfo(c *gin.Context) {
	info, ok := h.store.DatabaseInfo(c.Request.Context())
	if !ok {
		problem(c, http.StatusServiceUnavailable, "Service Unavailable", "structured backend is not available")
		return
	}
	c.JSON(http.StatusOK, info)
}

// GetDatabaseHealth handles GET /database/health
func (h *Handler) GetDatabaseHealth(c *gin.Context) {
	if h.db == nil {
		problem(c, http.StatusServiceUnavailable, "Service Unavailable", "no structured backend configured")
		return
	}
	status := http.StatusOK
	if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		_ = c.Error(err)
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h.db.GetConnectionStats())
}
