package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"github.com/hsdfat8/fieldops/internal/adapters/jsonstore"
	"github.com/hsdfat8/fieldops/internal/adapters/sqlstore"
	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/domain/service"
	"github.com/hsdfat8/fieldops/internal/harness"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestDependencies(t *testing.T) Dependencies {
	t.Helper()
	dir := t.TempDir()
	adapter := sqlstore.NewAdapter(ports.DatabaseConfig{
		Type:         ports.DatabaseTypeSQLite,
		SQLiteConfig: &ports.SQLiteConfig{Path: filepath.Join(dir, "fieldops.db")},
	})
	require.NoError(t, adapter.Connect(context.Background()))
	t.Cleanup(func() { _ = adapter.Disconnect(context.Background()) })

	docs := jsonstore.NewStore(filepath.Join(dir, "documents"))
	sim := simulator.New(simulator.Config{}, simulator.WithSleep(noSleep))
	t.Cleanup(sim.Stop)

	catalog := service.NewLocationCatalog(jsonstore.NewCatalogFile(filepath.Join(dir, "locations.json")), service.WithPowerMeter(sim))
	require.NoError(t, catalog.Load())

	return Dependencies{
		Store:       service.NewRecordStore(adapter, docs, sim),
		Catalog:     catalog,
		Simulator:   sim,
		Harness:     harness.New(adapter, docs, sim, harness.WithSleep(noSleep)),
		Database:    adapter,
		MetricsPath: "/metrics",
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, Dependencies) {
	deps := newTestDependencies(t)
	return SetupRouter(deps), deps
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRouter_HealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	health := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, ports.BackendStructured, health.Backend)
	assert.Equal(t, simulator.ModeOnline, health.ConnectivityMode)
	assert.Equal(t, simulator.PowerNormal, health.PowerMode)
}

func TestRouter_ResourceLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/resources", map[string]any{
		"type": "vehicle", "name": "Ambulance 7", "location": "Station 3",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Resource](t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, models.ResourceAvailable, created.Status)

	t.Run("Get", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/resources/"+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Ambulance 7", decode[models.Resource](t, w).Name)

		w = do(t, router, http.MethodGet, "/api/v1/resources/RES-999", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, http.StatusNotFound, decode[ProblemDetails](t, w).Status)
	})

	t.Run("Update", func(t *testing.T) {
		w := do(t, router, http.MethodPatch, "/api/v1/resources/"+created.ID, map[string]any{"fuel_type": "diesel"})
		require.Equal(t, http.StatusNoContent, w.Code)

		w = do(t, router, http.MethodPatch, "/api/v1/resources/"+created.ID, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, router, http.MethodPatch, "/api/v1/resources/RES-999", map[string]any{"fuel_type": "diesel"})
		assert.Equal(t, http.StatusNotFound, w.Code)

		got := decode[models.Resource](t, do(t, router, http.MethodGet, "/api/v1/resources/"+created.ID, nil))
		require.NotNil(t, got.FuelType)
		assert.Equal(t, "diesel", *got.FuelType)
	})

	t.Run("AssignAndReturn", func(t *testing.T) {
		path := "/api/v1/resources/" + created.ID
		req := map[string]any{"incident_id": "INC-001", "assigned_to": "team-a"}
		require.Equal(t, http.StatusNoContent, do(t, router, http.MethodPost, path+"/assign", req).Code)
		assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, path+"/assign", req).Code)

		open := decode[[]models.Assignment](t, do(t, router, http.MethodGet, "/api/v1/assignments?open=true&resource_id="+created.ID, nil))
		require.Len(t, open, 1)
		require.NotNil(t, open[0].AssignedTo)
		assert.Equal(t, "team-a", *open[0].AssignedTo)

		require.Equal(t, http.StatusNoContent, do(t, router, http.MethodPost, path+"/return", nil).Code)
		assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, path+"/return", nil).Code)

		open = decode[[]models.Assignment](t, do(t, router, http.MethodGet, "/api/v1/assignments?open=true", nil))
		assert.Empty(t, open)
	})

	t.Run("ListAndExport", func(t *testing.T) {
		list := decode[[]models.Resource](t, do(t, router, http.MethodGet, "/api/v1/resources?type=vehicle", nil))
		assert.Len(t, list, 1)

		list = decode[[]models.Resource](t, do(t, router, http.MethodGet, "/api/v1/resources?type=boat", nil))
		assert.Empty(t, list)

		w := do(t, router, http.MethodGet, "/api/v1/resources/export", nil)
		require.Equal(t, http.StatusOK, w.Code)
		envelope := decode[service.ExportEnvelope[models.Resource]](t, w)
		assert.Equal(t, 1, envelope.RecordCount)
	})

	t.Run("Delete", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/api/v1/resources/"+created.ID, nil).Code)
		assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/resources/"+created.ID, nil).Code)
	})
}

func TestRouter_RejectsInvalidRecords(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/resources", map[string]any{"type": "vehicle"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/resources", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/resources/RES-001/assign", map[string]any{"incident_id": "INC-001"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ForceDocumentBackend(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/contacts?force_document=true", map[string]any{
		"name": "County Dispatch", "phone": "555-0100",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[models.Contact](t, w).ID

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/contacts/"+id, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/contacts/"+id+"?force_document=true", nil).Code)

	require.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/api/v1/contacts/"+id+"?force_document=true", nil).Code)
	active := decode[[]models.Contact](t, do(t, router, http.MethodGet, "/api/v1/contacts?force_document=true", nil))
	assert.Empty(t, active)
	all := decode[[]models.Contact](t, do(t, router, http.MethodGet, "/api/v1/contacts?force_document=true&include_inactive=true", nil))
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}

func TestRouter_IncidentStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/incidents", map[string]any{"type": "flood"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[models.Incident](t, w).ID

	w = do(t, router, http.MethodPut, "/api/v1/incidents/"+id+"/status", map[string]any{"status": "resolved", "resolved_by": "crew-2"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	got := decode[models.Incident](t, do(t, router, http.MethodGet, "/api/v1/incidents/"+id, nil))
	assert.Equal(t, models.IncidentResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, "crew-2", *got.AssignedTo)

	active := decode[[]models.Incident](t, do(t, router, http.MethodGet, "/api/v1/incidents", nil))
	assert.Empty(t, active)
	all := decode[[]models.Incident](t, do(t, router, http.MethodGet, "/api/v1/incidents?status=all", nil))
	assert.Len(t, all, 1)
}

func TestRouter_Facilities(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("Nearest", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/api/v1/facilities/nearest?lat=40.7128&lon=-74.0060&type=hospital", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		found := decode[NearestFacilityResponse](t, w)
		assert.Equal(t, "hospital", found.Location.Type)
		assert.Contains(t, found.Coordinates, "N")
		assert.Contains(t, found.Coordinates, "W")
	})

	t.Run("BadCoordinates", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/facilities/nearest?lon=-74", nil).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/facilities/nearby?lat=x&lon=-74", nil).Code)
	})

	t.Run("NearbySorted", func(t *testing.T) {
		found := decode[[]models.LocationDistance](t, do(t, router, http.MethodGet, "/api/v1/facilities/nearby?lat=40.7128&lon=-74.0060&radius=50", nil))
		require.NotEmpty(t, found)
		for i := 1; i < len(found); i++ {
			assert.LessOrEqual(t, found[i-1].DistanceKm, found[i].DistanceKm)
		}
	})

	t.Run("Statistics", func(t *testing.T) {
		stats := decode[service.CatalogStatistics](t, do(t, router, http.MethodGet, "/api/v1/facilities/statistics", nil))
		assert.Equal(t, 13, stats.TotalLocations)
	})

	t.Run("AddAndGet", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/api/v1/facilities", map[string]any{
			"name": "Harbor Shelter", "type": "shelter", "latitude": 40.70, "longitude": -74.01,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		id := decode[models.Location](t, w).ID
		assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/v1/facilities/"+id, nil).Code)
		assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/facilities/LOC-NONE", nil).Code)
	})

	t.Run("Import", func(t *testing.T) {
		body := `{"locations":[{"name":"Depot","type":"supply_depot","latitude":41.0,"longitude":-73.9},{"name":"","type":"x"}]}`
		w := do(t, router, http.MethodPost, "/api/v1/facilities/import", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 1, decode[map[string]int](t, w)["imported"])
	})
}

func TestRouter_Simulator(t *testing.T) {
	router, deps := newTestRouter(t)

	w := do(t, router, http.MethodPut, "/api/v1/simulator/mode", map[string]any{"mode": "offline"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, simulator.ModeOffline, deps.Simulator.Mode())

	conn := decode[ConnectivityResponse](t, do(t, router, http.MethodGet, "/api/v1/simulator/connected", nil))
	assert.False(t, conn.Connected)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/api/v1/simulator/mode", map[string]any{"mode": "warp"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/api/v1/simulator/power", map[string]any{"power_mode": "turbo"}).Code)

	w = do(t, router, http.MethodPut, "/api/v1/simulator/power", map[string]any{"power_mode": "critical"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, simulator.PowerCritical, deps.Simulator.PowerMode())

	health := decode[HealthResponse](t, do(t, router, http.MethodGet, "/health", nil))
	assert.Equal(t, ports.BackendDocument, health.Backend)

	deps.Simulator.SimulatePowerConsumption(simulator.OpGeolocation, 0)
	deps.Simulator.SimulatePowerConsumption(simulator.OpFileIO, 0)
	history := decode[[]simulator.PowerSample](t, do(t, router, http.MethodGet, "/api/v1/simulator/power-history?operation=geolocation", nil))
	require.Len(t, history, 1)
	assert.Equal(t, simulator.OpGeolocation, history[0].Operation)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/simulator/power-history?last=-1", nil).Code)

	require.Equal(t, http.StatusAccepted, do(t, router, http.MethodPost, "/api/v1/simulator/start", map[string]any{"duration_minutes": 1}).Code)
	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, "/api/v1/simulator/start", nil).Code)
	require.Equal(t, http.StatusNoContent, do(t, router, http.MethodPost, "/api/v1/simulator/stop", nil).Code)
	assert.False(t, deps.Simulator.Running())
}

func TestRouter_Harness(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/v1/harness/runs", map[string]any{"batch_size": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	run := decode[harness.TestRun](t, w)
	assert.Equal(t, 10, run.BatchSize)
	assert.Len(t, run.Results, 4)

	runs := decode[[]harness.TestRun](t, do(t, router, http.MethodGet, "/api/v1/harness/runs", nil))
	assert.Len(t, runs, 1)

	summary := decode[harness.Summary](t, do(t, router, http.MethodGet, "/api/v1/harness/summary", nil))
	assert.Equal(t, 1, summary.TotalRuns)
}

func TestRouter_DatabaseInfoAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/database/info", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info := decode[ports.DatabaseInfo](t, w)
	assert.Contains(t, info.TableCounts, "resources")

	w = do(t, router, http.MethodGet, "/api/v1/database/health", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[ports.ConnectionStats](t, w)
	assert.True(t, stats.Healthy)
	assert.Equal(t, "sqlite", stats.DatabaseType)

	w = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "fieldops_connectivity_mode"), "expected fieldops metrics")
}

func TestServerH2C(t *testing.T) {
	server := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", EnableH2C: true}, newTestDependencies(t))
	require.NoError(t, server.Start())
	defer server.Stop()
	require.True(t, server.IsRunning())

	client := &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://%s/health", server.GetAddr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, resp.ProtoMajor)
}

func TestServerGracefulShutdown(t *testing.T) {
	server := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", ShutdownTimeout: time.Second}, newTestDependencies(t))
	require.NoError(t, server.Start())

	resp, err := http.Get(fmt.Sprintf("http://%s/health", server.GetAddr()))
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
	_, err = http.Get(fmt.Sprintf("http://%s/health", server.GetAddr()))
	assert.Error(t, err)

	select {
	case serveErr, ok := <-server.Errors():
		assert.False(t, ok, "unexpected serve error: %v", serveErr)
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not exit after Stop")
	}
}

func TestServerStartFailsWhenAddressInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	server := NewServer(ServerConfig{ListenAddr: busy.Addr().String()}, newTestDependencies(t))
	assert.Error(t, server.Start())
	assert.False(t, server.IsRunning())
	assert.NoError(t, server.Stop())
}

func TestRouter_DatabaseHealthWithoutBackend(t *testing.T) {
	deps := newTestDependencies(t)
	deps.Database = nil
	w := do(t, SetupRouter(deps), http.MethodGet, "/api/v1/database/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
