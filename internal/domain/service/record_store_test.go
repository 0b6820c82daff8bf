package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hsdfat8/fieldops/internal/adapters/jsonstore"
	"github.com/hsdfat8/fieldops/internal/adapters/sqlstore"
	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/logger"
	"github.com/hsdfat8/fieldops/internal/simulator"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newSimulator() *simulator.Simulator {
	return simulator.New(simulator.Config{}, simulator.WithSleep(noSleep))
}

type testStores struct {
	store      *RecordStore
	structured *sqlstore.Adapter
	document   *jsonstore.Store
	sim        *simulator.Simulator
}

func newTestStores(t *testing.T) testStores {
	t.Helper()
	dir := t.TempDir()
	adapter := sqlstore.NewAdapter(ports.DatabaseConfig{
		Type:         ports.DatabaseTypeSQLite,
		SQLiteConfig: &ports.SQLiteConfig{Path: filepath.Join(dir, "fieldops.db")},
	})
	require.NoError(t, adapter.Connect(context.Background()))
	t.Cleanup(func() { _ = adapter.Disconnect(context.Background()) })

	doc := jsonstore.NewStore(filepath.Join(dir, "documents"))
	sim := newSimulator()
	return testStores{
		store:      NewRecordStore(adapter, doc, sim),
		structured: adapter,
		document:   doc,
		sim:        sim,
	}
}

// backendCases runs a test against each backend through the same store
func backendCases() map[string][]CallOption {
	return map[string][]CallOption{
		"structured": nil,
		"document":   {ForceDocument()},
	}
}

func TestRecordStore_CreateAndGet(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			res := &models.Resource{
				Type:      "vehicle",
				Name:      "Rescue Truck",
				Location:  models.StringPtr("Station 1"),
				Latitude:  models.Float64Ptr(40.71),
				Longitude: models.Float64Ptr(-74.0),
				Equipment: models.StringList{"winch", "ladder"},
			}
			require.True(t, ts.store.Create(ctx, res, opts...))
			assert.Equal(t, "RES-001", res.ID)
			assert.Equal(t, models.ResourceAvailable, res.Status)

			got := Get[models.Resource](ctx, ts.store, res.ID, opts...)
			require.NotNil(t, got)
			assert.Equal(t, "Rescue Truck", got.Name)
			assert.Equal(t, "Station 1", *got.Location)
			assert.Equal(t, models.StringList{"winch", "ladder"}, got.Equipment)
			assert.False(t, got.CreatedAt.IsZero())
			assert.True(t, got.UpdatedAt.Equal(got.CreatedAt))

			assert.Nil(t, Get[models.Resource](ctx, ts.store, "RES-999", opts...))
		})
	}
}

func TestRecordStore_CreateRejectsInvalid(t *testing.T) {
	ts := newTestStores(t)
	ctx := context.Background()

	assert.False(t, ts.store.Create(ctx, &models.Resource{Type: "vehicle"}))
	assert.False(t, ts.store.Create(ctx, &models.Contact{Name: "Dispatch", Phone: "911", Latitude: models.Float64Ptr(91), Longitude: models.Float64Ptr(0)}))
	assert.Empty(t, List[models.Resource](ctx, ts.store, models.Filter{}))
}

func TestRecordStore_ListOrder(t *testing.T) {
	ts := newTestStores(t)
	ctx := context.Background()

	for _, r := range []*models.Resource{
		{Type: "vehicle", Name: "Truck"},
		{Type: "supply", Name: "Water"},
		{Type: "vehicle", Name: "Ambulance"},
	} {
		require.True(t, ts.store.Create(ctx, r))
		doc := *r
		doc.ID = ""
		require.True(t, ts.store.Create(ctx, &doc, ForceDocument()))
	}

	names := func(rs []models.Resource) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Name
		}
		return out
	}

	assert.Equal(t, []string{"Water", "Ambulance", "Truck"}, names(List[models.Resource](ctx, ts.store, models.Filter{})))
	assert.Equal(t, []string{"Truck", "Water", "Ambulance"}, names(List[models.Resource](ctx, ts.store, models.Filter{}, ForceDocument())))

	vehicles := List[models.Resource](ctx, ts.store, models.ResourceFilter{Type: "vehicle"}.Filter())
	assert.Equal(t, []string{"Ambulance", "Truck"}, names(vehicles))
}

func TestRecordStore_Update(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			ts.store.now = func() time.Time { return created }

			c := &models.Contact{Name: "County Dispatch", Phone: "555-0100"}
			require.True(t, ts.store.Create(ctx, c, opts...))

			updated := created.Add(time.Hour)
			ts.store.now = func() time.Time { return updated }

			priority := "high"
			require.True(t, ts.store.Update(ctx, c.ID, models.ContactPatch{Priority: &priority}, opts...))

			got := Get[models.Contact](ctx, ts.store, c.ID, opts...)
			require.NotNil(t, got)
			assert.Equal(t, "high", got.Priority)
			assert.Equal(t, "County Dispatch", got.Name)
			assert.True(t, got.CreatedAt.Equal(created))
			assert.True(t, got.UpdatedAt.Equal(updated))
		})
	}
}

func TestRecordStore_EmptyUpdateRejected(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			res := &models.Resource{Type: "vehicle", Name: "Truck"}
			require.True(t, ts.store.Create(ctx, res, opts...))
			before := Get[models.Resource](ctx, ts.store, res.ID, opts...)
			require.NotNil(t, before)

			ts.store.now = func() time.Time { return before.UpdatedAt.Add(time.Hour) }
			assert.False(t, ts.store.Update(ctx, res.ID, models.ResourcePatch{}, opts...))
			assert.False(t, ts.store.Update(ctx, res.ID, nil, opts...))

			after := Get[models.Resource](ctx, ts.store, res.ID, opts...)
			require.NotNil(t, after)
			assert.Equal(t, before, after)
		})
	}
}

func TestRecordStore_UpdateUnknownID(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			n := "Ghost"
			assert.False(t, ts.store.Update(ctx, "RES-404", models.ResourcePatch{Name: &n}, opts...))
			assert.False(t, ts.store.Delete(ctx, models.CollectionResources, "RES-404", opts...))
			assert.False(t, ts.store.Delete(ctx, models.CollectionContacts, "CON-404", opts...))
		})
	}
}

func TestRecordStore_DeleteSemantics(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			res := &models.Resource{Type: "vehicle", Name: "Truck"}
			require.True(t, ts.store.Create(ctx, res, opts...))
			require.True(t, ts.store.Delete(ctx, models.CollectionResources, res.ID, opts...))
			assert.Nil(t, Get[models.Resource](ctx, ts.store, res.ID, opts...))

			c := &models.Contact{Name: "Red Cross", Phone: "555-0199"}
			require.True(t, ts.store.Create(ctx, c, opts...))
			require.True(t, ts.store.Delete(ctx, models.CollectionContacts, c.ID, opts...))

			active := List[models.Contact](ctx, ts.store, models.ContactFilter{}.Filter(), opts...)
			assert.Empty(t, active)

			all := List[models.Contact](ctx, ts.store, models.ContactFilter{IncludeInactive: true}.Filter(), opts...)
			require.Len(t, all, 1)
			assert.Equal(t, c.ID, all[0].ID)
			assert.False(t, all[0].IsActive)
		})
	}
}

func TestRecordStore_AssignAndReturn(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			res := &models.Resource{Type: "vehicle", Name: "Truck"}
			require.True(t, ts.store.Create(ctx, res, opts...))

			require.True(t, ts.store.Assign(ctx, res.ID, "INC-001", "Team A", "north sector", opts...))
			got := Get[models.Resource](ctx, ts.store, res.ID, opts...)
			require.NotNil(t, got)
			assert.Equal(t, models.ResourceInUse, got.Status)
			require.NotNil(t, got.AssignedTo)
			assert.Equal(t, "Team A", *got.AssignedTo)

			assert.False(t, ts.store.Assign(ctx, res.ID, "INC-002", "Team B", "", opts...))

			require.True(t, ts.store.Return(ctx, res.ID, opts...))
			got = Get[models.Resource](ctx, ts.store, res.ID, opts...)
			require.NotNil(t, got)
			assert.Equal(t, models.ResourceAvailable, got.Status)
			assert.Nil(t, got.AssignedTo)

			assignments := List[models.Assignment](ctx, ts.store, models.AssignmentFilter{ResourceID: res.ID}.Filter(), opts...)
			require.Len(t, assignments, 1)
			assert.Equal(t, "ASN-001", assignments[0].ID)
			assert.NotNil(t, assignments[0].ReturnedAt)
			require.NotNil(t, assignments[0].IncidentID)
			assert.Equal(t, "INC-001", *assignments[0].IncidentID)

			assert.False(t, ts.store.Return(ctx, res.ID, opts...))
			assert.False(t, ts.store.Assign(ctx, "RES-404", "", "Team A", "", opts...))
		})
	}
}

// failingAssignments rejects every assignment insert
type failingAssignments struct {
	ports.RecordBackend
	attempts int
}

func (f *failingAssignments) Insert(ctx context.Context, r models.Record) error {
	if r.Collection() == models.CollectionAssignments {
		f.attempts++
		return errors.New("disk full")
	}
	return f.RecordBackend.Insert(ctx, r)
}

func TestRecordStore_AssignDocumentRetriesThenReverts(t *testing.T) {
	doc := &failingAssignments{RecordBackend: jsonstore.NewStore(t.TempDir())}
	store := NewRecordStore(nil, doc, newSimulator())
	ctx := context.Background()

	res := &models.Resource{Type: "vehicle", Name: "Truck"}
	require.True(t, store.Create(ctx, res))

	assert.False(t, store.Assign(ctx, res.ID, "INC-001", "Team A", ""))
	assert.Equal(t, DefaultCompositeRetries, doc.attempts)

	got := Get[models.Resource](ctx, store, res.ID)
	require.NotNil(t, got)
	assert.Equal(t, models.ResourceAvailable, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.True(t, got.UpdatedAt.Equal(res.UpdatedAt))
}

// failingTxBackend hands a transaction whose assignment inserts fail
type failingTxBackend struct {
	ports.StructuredBackend
}

func (f failingTxBackend) RunInTransaction(ctx context.Context, fn func(tx ports.RecordBackend) error) error {
	return f.StructuredBackend.RunInTransaction(ctx, func(tx ports.RecordBackend) error {
		return fn(&failingAssignments{RecordBackend: tx})
	})
}

func TestRecordStore_AssignStructuredRollsBack(t *testing.T) {
	ts := newTestStores(t)
	store := NewRecordStore(failingTxBackend{ts.structured}, ts.document, ts.sim)
	ctx := context.Background()

	res := &models.Resource{Type: "vehicle", Name: "Truck"}
	require.True(t, store.Create(ctx, res))

	assert.False(t, store.Assign(ctx, res.ID, "INC-001", "Team A", ""))

	got := Get[models.Resource](ctx, store, res.ID)
	require.NotNil(t, got)
	assert.Equal(t, models.ResourceAvailable, got.Status)
	assert.Nil(t, got.AssignedTo)
	assert.Empty(t, List[models.Assignment](ctx, store, models.Filter{}))
}

func TestRecordStore_OfflineCriticalUsesDocumentBackend(t *testing.T) {
	ts := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, ts.sim.SetMode(simulator.ModeOffline))
	require.NoError(t, ts.sim.SetPowerMode(simulator.PowerCritical))
	before := len(ts.sim.PowerHistory(simulator.OpDatabaseWrite, 0))
	totalBefore := len(ts.sim.PowerHistory("", 0))

	for _, name := range []string{"Truck", "Generator", "Radio"} {
		require.True(t, ts.store.Create(ctx, &models.Resource{Type: "equipment", Name: name}))
	}
	assert.Len(t, ts.sim.PowerHistory("", 0), totalBefore+3, "only the three writes may draw power")
	assert.Equal(t, ports.BackendDocument, ts.store.ActiveBackend(ctx))

	var onDisk []models.Resource
	require.NoError(t, ts.document.Select(ctx, models.CollectionResources, models.Filter{}, &onDisk))
	assert.Len(t, onDisk, 3)

	var inDB []models.Resource
	require.NoError(t, ts.structured.Select(ctx, models.CollectionResources, models.Filter{}, &inDB))
	assert.Empty(t, inDB)

	writes := ts.sim.PowerHistory(simulator.OpDatabaseWrite, 0)
	require.Len(t, writes, before+3)
	for _, w := range writes[before:] {
		assert.Equal(t, simulator.ModeOffline, w.Mode)
		assert.Equal(t, simulator.PowerCritical, w.PowerMode)
	}
}

// brokenStructured fails its round-trip probe
type brokenStructured struct {
	ports.StructuredBackend
}

func (brokenStructured) Probe(context.Context) error { return ports.ErrProbeMismatch }

func (brokenStructured) DatabaseInfo(context.Context) (*ports.DatabaseInfo, error) {
	return nil, ports.ErrNotConnected
}

func TestRecordStore_FallsBackWhenProbeFails(t *testing.T) {
	doc := jsonstore.NewStore(t.TempDir())
	store := NewRecordStore(brokenStructured{}, doc, newSimulator())
	ctx := context.Background()

	fallbacks := logger.BackendFallbackTotal.WithLabelValues("unavailable")
	before := testutil.ToFloat64(fallbacks)

	res := &models.Resource{Type: "vehicle", Name: "Truck"}
	require.True(t, store.Create(ctx, res))
	assert.Equal(t, before+1, testutil.ToFloat64(fallbacks))

	var got models.Resource
	require.NoError(t, doc.Get(ctx, models.CollectionResources, res.ID, &got))
	assert.Equal(t, "Truck", got.Name)

	_, ok := store.DatabaseInfo(ctx)
	assert.False(t, ok)
}

func TestRecordStore_SelectionReevaluatedPerCall(t *testing.T) {
	ts := newTestStores(t)
	ctx := context.Background()

	require.True(t, ts.store.Create(ctx, &models.Resource{Type: "vehicle", Name: "Online Truck"}))
	require.NoError(t, ts.sim.SetMode(simulator.ModeOffline))
	require.True(t, ts.store.Create(ctx, &models.Resource{Type: "vehicle", Name: "Offline Truck"}))
	require.NoError(t, ts.sim.SetMode(simulator.ModeOnline))

	online := List[models.Resource](ctx, ts.store, models.Filter{})
	require.Len(t, online, 1)
	assert.Equal(t, "Online Truck", online[0].Name)

	offline := List[models.Resource](ctx, ts.store, models.Filter{}, ForceDocument())
	require.Len(t, offline, 1)
	assert.Equal(t, "Offline Truck", offline[0].Name)
}

func TestRecordStore_UpdateIncidentStatus(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			inc := &models.Incident{Type: "flood", Description: models.StringPtr("River over banks")}
			require.True(t, ts.store.Create(ctx, inc, opts...))
			assert.Equal(t, models.IncidentActive, inc.Status)

			require.True(t, ts.store.UpdateIncidentStatus(ctx, inc.ID, models.IncidentResolved, "Chief Ortiz", opts...))

			got := Get[models.Incident](ctx, ts.store, inc.ID, opts...)
			require.NotNil(t, got)
			assert.Equal(t, models.IncidentResolved, got.Status)
			assert.NotNil(t, got.ResolvedAt)
			require.NotNil(t, got.AssignedTo)
			assert.Equal(t, "Chief Ortiz", *got.AssignedTo)

			assert.Empty(t, List[models.Incident](ctx, ts.store, models.IncidentFilter{}.Filter(), opts...))
			assert.Len(t, List[models.Incident](ctx, ts.store, models.IncidentFilter{Status: models.IncidentStatusAll}.Filter(), opts...), 1)
		})
	}
}

func TestRecordStore_PersonnelSkillFilter(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			require.True(t, ts.store.Create(ctx, &models.Personnel{Name: "Ana", Role: "medic", Skills: models.StringList{"First Aid", "CPR"}}, opts...))
			require.True(t, ts.store.Create(ctx, &models.Personnel{Name: "Ben", Role: "driver", Skills: models.StringList{"Heavy Vehicles"}}, opts...))

			got := List[models.Personnel](ctx, ts.store, models.PersonnelFilter{Skills: []string{"cpr", "rope"}}.Filter(), opts...)
			require.Len(t, got, 1)
			assert.Equal(t, "Ana", got[0].Name)
		})
	}
}

func TestRecordStore_NearbyLocations(t *testing.T) {
	for name, opts := range backendCases() {
		t.Run(name, func(t *testing.T) {
			ts := newTestStores(t)
			ctx := context.Background()

			for _, loc := range DefaultLocations() {
				require.True(t, ts.store.Create(ctx, &loc, opts...))
			}

			inactive := false
			require.True(t, ts.store.Update(ctx, "LOC-NYC-004", models.LocationPatch{IsActive: &inactive}, opts...))

			near := ts.store.NearbyLocations(ctx, 40.7128, -74.0060, 10, "", opts...)
			require.NotEmpty(t, near)
			for i, n := range near {
				assert.NotEqual(t, "LOC-NYC-004", n.Location.ID)
				assert.LessOrEqual(t, n.DistanceKm, 10.0)
				if i > 0 {
					assert.LessOrEqual(t, near[i-1].DistanceKm, n.DistanceKm)
				}
			}

			hospitals := ts.store.NearbyLocations(ctx, 40.7128, -74.0060, 10, "hospital", opts...)
			require.Len(t, hospitals, 1)
			assert.Equal(t, "LOC-NYC-001", hospitals[0].Location.ID)

			assert.Empty(t, ts.store.NearbyLocations(ctx, 95, 0, 10, "", opts...))
		})
	}
}

func TestRecordStore_Export(t *testing.T) {
	ts := newTestStores(t)
	ctx := context.Background()

	require.True(t, ts.store.Create(ctx, &models.Resource{Type: "vehicle", Name: "Truck"}))
	require.True(t, ts.store.Create(ctx, &models.Resource{Type: "supply", Name: "Water"}))

	var buf bytes.Buffer
	require.NoError(t, Export[models.Resource](ctx, ts.store, &buf, models.ResourceFilter{Type: "vehicle"}.Filter()))

	var envelope ExportEnvelope[models.Resource]
	require.NoError(t, json.Unmarshal(buf.Bytes(), &envelope))
	assert.Equal(t, models.CollectionResources, envelope.Collection)
	assert.Equal(t, 1, envelope.RecordCount)
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "Truck", envelope.Data[0].Name)
	assert.False(t, envelope.ExportedAt.IsZero())
}

func TestRecordStore_DatabaseInfo(t *testing.T) {
	ts := newTestStores(t)
	ctx := context.Background()

	require.True(t, ts.store.Create(ctx, &models.Resource{Type: "vehicle", Name: "Truck"}))

	info, ok := ts.store.DatabaseInfo(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(1), info.TableCounts["resources"])
}
