package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/logger"
	"github.com/hsdfat8/fieldops/internal/observability"
	"github.com/hsdfat8/fieldops/internal/simulator"
	"github.com/hsdfat8/fieldops/pkg/geo"
)

var (
	ErrResourceInUse       = errors.New("resource already in use")
	ErrResourceNotAssigned = errors.New("resource is not assigned")
)

// DefaultCompositeRetries bounds retries of the second half of a composite
// write on a backend without transactions
const DefaultCompositeRetries = 3

// PowerMeter records simulated power draw for an operation
type PowerMeter interface {
	SimulatePowerConsumption(op simulator.Operation, dataSize int) float64
}

// Conditions is the view of the connectivity simulator the store consults
type Conditions interface {
	PowerMeter
	StorageAccessible() bool
}

// CallOption adjusts a single record store call
type CallOption func(*callOptions)

type callOptions struct {
	forceDocument bool
}

// ForceDocument routes the call to the document backend
func ForceDocument() CallOption {
	return func(o *callOptions) { o.forceDocument = true }
}

func collectOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RecordStore exposes one CRUD contract over the structured and document
// backends. The backend is chosen again on every top-level call.
type RecordStore struct {
	structured ports.StructuredBackend
	document   ports.RecordBackend
	conditions Conditions
	logger     observability.Logger
	now        func() time.Time
	maxRetries int
}

// NewRecordStore creates a record store. structured may be nil, in which case
// every call is served by the document backend.
func NewRecordStore(structured ports.StructuredBackend, document ports.RecordBackend, conditions Conditions) *RecordStore {
	return &RecordStore{
		structured: structured,
		document:   document,
		conditions: conditions,
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: DefaultCompositeRetries,
	}
}

// SetLogger sets a custom logger for this store
func (s *RecordStore) SetLogger(l observability.Logger) {
	s.logger = l
}

// getLogger returns the custom logger if set, otherwise returns the global logger
func (s *RecordStore) getLogger() observability.Logger {
	if s.logger != nil {
		return s.logger
	}
	return observability.Log
}

// backendFor applies the selection policy: the structured backend serves the
// call only if it is configured, not bypassed, storage is accessible and its
// round-trip probe succeeds.
func (s *RecordStore) backendFor(ctx context.Context, o callOptions) ports.RecordBackend {
	var reason string
	switch {
	case o.forceDocument:
		reason = "forced"
	case s.conditions != nil && !s.conditions.StorageAccessible():
		reason = "offline"
	case s.structured == nil:
		reason = "not_configured"
	default:
		err := s.structured.Probe(ctx)
		if err == nil {
			return s.structured
		}
		reason = "unavailable"
		s.getLogger().Warnw("Structured backend unavailable, using document backend", "error", err)
	}
	logger.BackendFallbackTotal.WithLabelValues(reason).Inc()
	return s.document
}

// ActiveBackend reports which backend would serve a call made now
func (s *RecordStore) ActiveBackend(ctx context.Context, opts ...CallOption) ports.BackendType {
	return s.backendFor(ctx, collectOptions(opts)).Type()
}

func (s *RecordStore) consume(op simulator.Operation, payload any) {
	if s.conditions == nil {
		return
	}
	size := 0
	if b, err := json.Marshal(payload); err == nil {
		size = len(b)
	}
	s.conditions.SimulatePowerConsumption(op, size)
}

func observe(operation string, c models.Collection, b ports.RecordBackend, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	logger.StoreOperationsTotal.WithLabelValues(string(c), operation, string(b.Type()), result).Inc()
	logger.StoreOperationDuration.WithLabelValues(operation, string(b.Type())).Observe(time.Since(start).Seconds())
}

// atomically runs fn in a transaction when the backend supports one
func atomically(ctx context.Context, b ports.RecordBackend, fn func(ports.RecordBackend) error) error {
	if tb, ok := b.(ports.TransactionalBackend); ok {
		return tb.RunInTransaction(ctx, fn)
	}
	return fn(b)
}

// Create stores a new record, assigning an id when none is set. The record's
// id and timestamps are filled in place.
func (s *RecordStore) Create(ctx context.Context, record models.Record, opts ...CallOption) bool {
	c := record.Collection()
	record.ApplyDefaults()
	if err := record.Validate(); err != nil {
		s.getLogger().Warnw("Rejected invalid record", "collection", c, "error", err)
		return false
	}

	backend := s.backendFor(ctx, collectOptions(opts))
	start := time.Now()

	now := s.now()
	record.SetTimestamps(now, now)
	generated := record.GetID() == ""

	err := atomically(ctx, backend, func(b ports.RecordBackend) error {
		if generated {
			id, err := b.NextID(ctx, c)
			if err != nil {
				return err
			}
			record.SetID(id)
		}
		return b.Insert(ctx, record)
	})
	if err != nil && generated {
		record.SetID("")
	}

	s.consume(simulator.OpDatabaseWrite, record)
	observe("create", c, backend, start, err)

	if err != nil {
		s.getLogger().Errorw("Failed to create record", "collection", c, "backend", backend.Type(), "error", err)
		return false
	}
	s.getLogger().Debugw("Record created", "collection", c, "id", record.GetID(), "backend", backend.Type())
	return true
}

// RecordPtr constrains generic helpers to pointers of concrete record types
type RecordPtr[T any] interface {
	*T
	models.Record
}

func collectionOf[T any, P RecordPtr[T]]() models.Collection {
	var zero T
	return P(&zero).Collection()
}

// List returns the records matching filter, in the backend's documented
// order. Failures are logged and yield an empty list.
func List[T any, P RecordPtr[T]](ctx context.Context, s *RecordStore, filter models.Filter, opts ...CallOption) []T {
	c := collectionOf[T, P]()
	backend := s.backendFor(ctx, collectOptions(opts))
	start := time.Now()

	out := []T{}
	err := backend.Select(ctx, c, filter, &out)
	s.consume(simulator.OpDatabaseRead, out)
	observe("read", c, backend, start, err)

	if err != nil {
		s.getLogger().Errorw("Failed to read records", "collection", c, "backend", backend.Type(), "error", err)
		return []T{}
	}
	return out
}

// Get returns one record by id, or nil when it does not exist or cannot be read
func Get[T any, P RecordPtr[T]](ctx context.Context, s *RecordStore, id string, opts ...CallOption) *T {
	c := collectionOf[T, P]()
	backend := s.backendFor(ctx, collectOptions(opts))
	start := time.Now()

	var out T
	err := backend.Get(ctx, c, id, &out)
	s.consume(simulator.OpDatabaseRead, id)

	if errors.Is(err, ports.ErrNotFound) {
		observe("read_by_id", c, backend, start, nil)
		s.getLogger().Debugw("Record not found", "collection", c, "id", id, "backend", backend.Type())
		return nil
	}
	observe("read_by_id", c, backend, start, err)
	if err != nil {
		s.getLogger().Errorw("Failed to read record", "collection", c, "id", id, "error", err)
		return nil
	}
	return &out
}

// Update merges the patch into the record and refreshes updated_at. An
// empty patch is rejected without touching the backend.
func (s *RecordStore) Update(ctx context.Context, id string, patch models.Patch, opts ...CallOption) bool {
	if patch == nil {
		s.getLogger().Warnw("Rejected empty update", "id", id)
		return false
	}
	c := patch.Collection()
	changes := patch.Changes()
	if len(changes) == 0 {
		s.getLogger().Warnw("Rejected empty update", "collection", c, "id", id)
		return false
	}
	if err := patch.Validate(); err != nil {
		s.getLogger().Warnw("Rejected invalid update", "collection", c, "id", id, "error", err)
		return false
	}
	changes["updated_at"] = s.now()

	return s.applyChanges(ctx, "update", c, id, changes, opts)
}

func (s *RecordStore) applyChanges(ctx context.Context, operation string, c models.Collection, id string, changes models.Changes, opts []CallOption) bool {
	backend := s.backendFor(ctx, collectOptions(opts))
	start := time.Now()

	err := backend.Update(ctx, c, id, changes)
	s.consume(simulator.OpDatabaseWrite, changes)
	observe(operation, c, backend, start, err)

	switch {
	case errors.Is(err, ports.ErrNotFound):
		s.getLogger().Warnw("Unknown record id", "operation", operation, "collection", c, "id", id)
		return false
	case err != nil:
		s.getLogger().Errorw("Failed to update record", "operation", operation, "collection", c, "id", id, "error", err)
		return false
	}
	return true
}

// Delete removes a record. Contacts are only deactivated; every other
// collection is deleted outright.
func (s *RecordStore) Delete(ctx context.Context, c models.Collection, id string, opts ...CallOption) bool {
	spec, err := c.Spec()
	if err != nil {
		s.getLogger().Warnw("Rejected delete", "collection", c, "error", err)
		return false
	}

	if spec.SoftDelete {
		return s.applyChanges(ctx, "delete", c, id, models.Changes{
			"is_active":  false,
			"updated_at": s.now(),
		}, opts)
	}

	backend := s.backendFor(ctx, collectOptions(opts))
	start := time.Now()

	err = backend.Delete(ctx, c, id)
	s.consume(simulator.OpDatabaseWrite, id)
	observe("delete", c, backend, start, err)

	switch {
	case errors.Is(err, ports.ErrNotFound):
		s.getLogger().Warnw("Unknown record id", "operation", "delete", "collection", c, "id", id)
		return false
	case err != nil:
		s.getLogger().Errorw("Failed to delete record", "collection", c, "id", id, "error", err)
		return false
	}
	return true
}

// UpdateIncidentStatus sets an incident's status, stamping resolved_at and
// the resolver when the incident becomes resolved
func (s *RecordStore) UpdateIncidentStatus(ctx context.Context, id, status, resolvedBy string, opts ...CallOption) bool {
	patch := models.IncidentPatch{Status: &status}
	if status == models.IncidentResolved {
		now := s.now()
		patch.ResolvedAt = &now
		if resolvedBy != "" {
			patch.AssignedTo = &resolvedBy
		}
	}
	return s.Update(ctx, id, patch, opts...)
}

// composite runs first then second. On a transactional backend both run in
// one transaction. Otherwise second is retried and, if it keeps failing,
// undo reverts first.
func (s *RecordStore) composite(ctx context.Context, backend ports.RecordBackend, first, second, undo func(ports.RecordBackend) error) error {
	if tb, ok := backend.(ports.TransactionalBackend); ok {
		return tb.RunInTransaction(ctx, func(tx ports.RecordBackend) error {
			if err := first(tx); err != nil {
				return err
			}
			return second(tx)
		})
	}

	if err := first(backend); err != nil {
		return err
	}

	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err = second(backend); err == nil {
			return nil
		}
		s.getLogger().Warnw("Composite write second half failed", "attempt", attempt, "max_attempts", s.maxRetries, "error", err)
	}

	if undoErr := undo(backend); undoErr != nil {
		s.getLogger().Errorw("Failed to revert partial composite write", "error", undoErr, "cause", err)
		return fmt.Errorf("%w (revert failed: %v)", err, undoErr)
	}
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullablePtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Assign marks a resource in use by assignee and records the assignment.
// Either both writes become visible or the call reports failure.
func (s *RecordStore) Assign(ctx context.Context, resourceID, incidentID, assignee, notes string, opts ...CallOption) bool {
	backend := s.backendFor(ctx, collectOptions(opts))
	start := time.Now()
	now := s.now()

	var prev models.Resource
	assignment := &models.Assignment{
		ResourceID: resourceID,
		IncidentID: models.StringPtr(incidentID),
		AssignedTo: models.StringPtr(assignee),
		Notes:      models.StringPtr(notes),
	}
	assignment.SetTimestamps(now, now)

	first := func(b ports.RecordBackend) error {
		if err := b.Get(ctx, models.CollectionResources, resourceID, &prev); err != nil {
			return err
		}
		if prev.Status == models.ResourceInUse {
			return ErrResourceInUse
		}
		return b.Update(ctx, models.CollectionResources, resourceID, models.Changes{
			"status":      string(models.ResourceInUse),
			"assigned_to": nullable(assignee),
			"updated_at":  now,
		})
	}
	second := func(b ports.RecordBackend) error {
		id, err := b.NextID(ctx, models.CollectionAssignments)
		if err != nil {
			return err
		}
		assignment.SetID(id)
		return b.Insert(ctx, assignment)
	}
	undo := func(b ports.RecordBackend) error {
		return b.Update(ctx, models.CollectionResources, resourceID, models.Changes{
			"status":      string(prev.Status),
			"assigned_to": nullablePtr(prev.AssignedTo),
			"updated_at":  prev.UpdatedAt,
		})
	}

	err := s.composite(ctx, backend, first, second, undo)
	s.consume(simulator.OpDatabaseWrite, assignment)
	observe("assign", models.CollectionResources, backend, start, err)

	if err != nil {
		s.logCompositeFailure("assign", resourceID, backend, err)
		return false
	}
	s.getLogger().Infow("Resource assigned", "resource_id", resourceID, "incident_id", incidentID, "assignment_id", assignment.ID, "backend", backend.Type())
	return true
}

// Return makes an in-use resource available again and stamps returned_at on
// its open assignments
func (s *RecordStore) Return(ctx context.Context, resourceID string, opts ...CallOption) bool {
	backend := s.backendFor(ctx, collectOptions(opts))
	start := time.Now()
	now := s.now()

	var prev models.Resource
	first := func(b ports.RecordBackend) error {
		if err := b.Get(ctx, models.CollectionResources, resourceID, &prev); err != nil {
			return err
		}
		if prev.Status != models.ResourceInUse {
			return ErrResourceNotAssigned
		}
		return b.Update(ctx, models.CollectionResources, resourceID, models.Changes{
			"status":      string(models.ResourceAvailable),
			"assigned_to": nil,
			"updated_at":  now,
		})
	}
	second := func(b ports.RecordBackend) error {
		n, err := b.UpdateWhere(ctx, models.CollectionAssignments,
			models.AssignmentFilter{ResourceID: resourceID, OpenOnly: true}.Filter(),
			models.Changes{"returned_at": now, "updated_at": now})
		if err == nil && n == 0 {
			s.getLogger().Debugw("No open assignment to close", "resource_id", resourceID)
		}
		return err
	}
	undo := func(b ports.RecordBackend) error {
		return b.Update(ctx, models.CollectionResources, resourceID, models.Changes{
			"status":      string(prev.Status),
			"assigned_to": nullablePtr(prev.AssignedTo),
			"updated_at":  prev.UpdatedAt,
		})
	}

	err := s.composite(ctx, backend, first, second, undo)
	s.consume(simulator.OpDatabaseWrite, resourceID)
	observe("return", models.CollectionResources, backend, start, err)

	if err != nil {
		s.logCompositeFailure("return", resourceID, backend, err)
		return false
	}
	s.getLogger().Infow("Resource returned", "resource_id", resourceID, "backend", backend.Type())
	return true
}

func (s *RecordStore) logCompositeFailure(operation, resourceID string, backend ports.RecordBackend, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		s.getLogger().Warnw("Unknown resource id", "operation", operation, "resource_id", resourceID)
	case errors.Is(err, ErrResourceInUse), errors.Is(err, ErrResourceNotAssigned):
		s.getLogger().Warnw("Rejected resource state change", "operation", operation, "resource_id", resourceID, "reason", err)
	default:
		s.getLogger().Errorw("Composite write failed", "operation", operation, "resource_id", resourceID, "backend", backend.Type(), "error", err)
	}
}

// NearbyLocations returns active locations within radiusKm of the point,
// nearest first. A bounding box narrows the query and the exact great-circle
// distance decides membership.
func (s *RecordStore) NearbyLocations(ctx context.Context, lat, lon, radiusKm float64, locationType string, opts ...CallOption) []models.LocationDistance {
	if !geo.ValidateCoordinates(lat, lon) || radiusKm < 0 {
		s.getLogger().Warnw("Rejected proximity query", "lat", lat, "lon", lon, "radius_km", radiusKm)
		return []models.LocationDistance{}
	}

	box := geo.GetBoundingBox(lat, lon, radiusKm)
	filter := models.Filter{
		Ranges: []models.Range{
			{Column: "latitude", Min: box.MinLat, Max: box.MaxLat},
			{Column: "longitude", Min: box.MinLon, Max: box.MaxLon},
		},
		ActiveOnly: true,
	}

	candidates := List[models.Location](ctx, s, filter, opts...)
	if s.conditions != nil {
		s.conditions.SimulatePowerConsumption(simulator.OpGeolocation, 0)
	}

	out := []models.LocationDistance{}
	for _, loc := range candidates {
		if !models.MatchesType(locationType, loc.Type) {
			continue
		}
		if d := geo.Distance(lat, lon, loc.Latitude, loc.Longitude); d <= radiusKm {
			out = append(out, models.LocationDistance{Location: loc, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// DatabaseInfo summarizes the structured backend, or reports false when it is
// not configured or not reachable
func (s *RecordStore) DatabaseInfo(ctx context.Context) (*ports.DatabaseInfo, bool) {
	if s.structured == nil {
		return nil, false
	}
	info, err := s.structured.DatabaseInfo(ctx)
	if err != nil {
		s.getLogger().Warnw("Failed to read database info", "error", err)
		return nil, false
	}
	return info, true
}

// ExportEnvelope is the interchange format for exported records
type ExportEnvelope[T any] struct {
	ExportedAt  time.Time         `json:"exported_at"`
	Collection  models.Collection `json:"collection"`
	RecordCount int               `json:"record_count"`
	Data        []T               `json:"data"`
}

// Export writes the matching records to w in the interchange format
func Export[T any, P RecordPtr[T]](ctx context.Context, s *RecordStore, w io.Writer, filter models.Filter, opts ...CallOption) error {
	records := List[T, P](ctx, s, filter, opts...)
	envelope := ExportEnvelope[T]{
		ExportedAt:  s.now(),
		Collection:  collectionOf[T, P](),
		RecordCount: len(records),
		Data:        records,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return fmt.Errorf("failed to export %s: %w", envelope.Collection, err)
	}
	s.consume(simulator.OpFileIO, envelope)
	return nil
}
