package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/logger"
	"github.com/hsdfat8/fieldops/internal/observability"
	"github.com/hsdfat8/fieldops/internal/simulator"
	"github.com/hsdfat8/fieldops/pkg/geo"
)

var ErrDuplicateLocation = errors.New("location id already exists")

// Default search radii used by FindEmergencyFacilities
const (
	DefaultFacilityRadiusKm      = 25.0
	EmergencyOpsFacilityRadiusKm = 50.0
	DefaultNearestCacheSize      = 256
)

// Capacity buckets and coarse regions reported by Statistics
const (
	CapacitySmall  = "small"
	CapacityMedium = "medium"
	CapacityLarge  = "large"
	CapacityXLarge = "xlarge"

	RegionNorthAmerica = "north_america"
	RegionEurope       = "europe"
	RegionAsia         = "asia"
	RegionOther        = "other"
)

type catalogMetadata struct {
	LastUpdated    time.Time      `json:"last_updated"`
	TotalLocations int            `json:"total_locations"`
	FacilityTypes  []string       `json:"facility_types"`
	Categories     map[string]int `json:"categories"`
}

type catalogDocument struct {
	Locations []models.Location `json:"locations"`
	Metadata  catalogMetadata   `json:"metadata"`
}

// CatalogExport is the interchange format for exported facilities
type CatalogExport struct {
	ExportedAt     time.Time         `json:"exported_at"`
	FacilityType   string            `json:"facility_type"`
	TotalLocations int               `json:"total_locations"`
	Locations      []models.Location `json:"locations"`
}

// CatalogStatistics summarizes the catalog
type CatalogStatistics struct {
	TotalLocations     int            `json:"total_locations"`
	ActiveLocations    int            `json:"active_locations"`
	ByType             map[string]int `json:"by_type"`
	ByCapacity         map[string]int `json:"by_capacity"`
	GeographicCoverage map[string]int `json:"geographic_coverage"`
}

// importedLocation treats a missing is_active as active
type importedLocation struct {
	models.Location
	IsActive *bool `json:"is_active"`
}

type importDocument struct {
	Locations []importedLocation `json:"locations"`
}

type nearestKey struct {
	lat, lon float64
	typ      string
}

type nearestResult struct {
	match models.LocationDistance
	found bool
}

// CatalogOption configures a LocationCatalog
type CatalogOption func(*LocationCatalog)

// WithPowerMeter records a geolocation power draw for every proximity query
func WithPowerMeter(m PowerMeter) CatalogOption {
	return func(c *LocationCatalog) { c.power = m }
}

// WithNearestCacheSize sets how many nearest-facility answers are memoized.
// A non-positive size disables the cache.
func WithNearestCacheSize(n int) CatalogOption {
	return func(c *LocationCatalog) { c.cacheSize = n }
}

// WithCatalogClock overrides the time source used for ids and timestamps
func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(c *LocationCatalog) { c.now = now }
}

// LocationCatalog is the offline facility catalog. It keeps every location
// in memory in catalog order and rewrites the whole file on each change.
type LocationCatalog struct {
	mu        sync.RWMutex
	store     ports.CatalogStore
	locations []models.Location
	cache     *lru.Cache[nearestKey, nearestResult]
	cacheSize int
	power     PowerMeter
	logger    observability.Logger
	now       func() time.Time
}

// NewLocationCatalog creates an empty catalog; call Load to populate it
func NewLocationCatalog(store ports.CatalogStore, opts ...CatalogOption) *LocationCatalog {
	c := &LocationCatalog{
		store:     store,
		cacheSize: DefaultNearestCacheSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize > 0 {
		if cache, err := lru.New[nearestKey, nearestResult](c.cacheSize); err == nil {
			c.cache = cache
		}
	}
	return c
}

// SetLogger sets a custom logger for this catalog
func (c *LocationCatalog) SetLogger(l observability.Logger) {
	c.logger = l
}

func (c *LocationCatalog) getLogger() observability.Logger {
	if c.logger != nil {
		return c.logger
	}
	return observability.Log
}

// Load reads the catalog file. A missing file is seeded with the builtin
// defaults and written out; a malformed one is logged and replaced in memory
// by the defaults without touching the file. The returned error only reports
// a failure to persist the seeded defaults.
func (c *LocationCatalog) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeCache()

	if !c.store.Exists() {
		c.locations = c.stampDefaults()
		if err := c.saveLocked(c.locations); err != nil {
			c.getLogger().Errorw("Failed to persist default catalog", "path", c.store.Path(), "error", err)
			return err
		}
		c.getLogger().Infow("Seeded default location catalog", "path", c.store.Path(), "locations", len(c.locations))
		return nil
	}

	var doc catalogDocument
	if err := c.store.Load(&doc); err != nil {
		c.getLogger().Errorw("Failed to load location catalog, using defaults", "path", c.store.Path(), "error", err)
		c.locations = c.stampDefaults()
		return nil
	}
	c.locations = doc.Locations
	if c.locations == nil {
		c.locations = []models.Location{}
	}
	c.getLogger().Infow("Loaded location catalog", "path", c.store.Path(), "locations", len(c.locations))
	return nil
}

func (c *LocationCatalog) stampDefaults() []models.Location {
	now := c.now()
	locs := DefaultLocations()
	for i := range locs {
		locs[i].SetTimestamps(now, now)
	}
	return locs
}

func (c *LocationCatalog) saveLocked(locs []models.Location) error {
	categories := make(map[string]int)
	for _, l := range locs {
		categories[l.Type]++
	}
	return c.store.Save(catalogDocument{
		Locations: locs,
		Metadata: catalogMetadata{
			LastUpdated:    c.now(),
			TotalLocations: len(locs),
			FacilityTypes:  models.CanonicalTypes(),
			Categories:     categories,
		},
	})
}

func (c *LocationCatalog) purgeCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *LocationCatalog) indexLocked(id string) int {
	for i := range c.locations {
		if c.locations[i].ID == id {
			return i
		}
	}
	return -1
}

// generateID derives a timestamp id, suffixed when it collides
func (c *LocationCatalog) generateID() string {
	base := "LOC-" + c.now().Format("20060102150405")
	id := base
	for n := 2; c.indexLocked(id) >= 0; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

// prepareLocked validates loc and fills id and timestamps when absent
func (c *LocationCatalog) prepareLocked(loc *models.Location) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if loc.ID == "" {
		loc.ID = c.generateID()
	} else if c.indexLocked(loc.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateLocation, loc.ID)
	}
	now := c.now()
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
	}
	loc.UpdatedAt = now
	return nil
}

// Add appends an active location and rewrites the catalog. The location's
// id and timestamps are filled in place. Nothing changes if the write fails.
func (c *LocationCatalog) Add(loc *models.Location) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc.ApplyDefaults()
	if err := c.prepareLocked(loc); err != nil {
		c.getLogger().Warnw("Rejected location", "id", loc.ID, "name", loc.Name, "error", err)
		return false
	}

	next := append(append(make([]models.Location, 0, len(c.locations)+1), c.locations...), *loc)
	if err := c.saveLocked(next); err != nil {
		c.getLogger().Errorw("Failed to save location catalog", "path", c.store.Path(), "error", err)
		return false
	}
	c.locations = next
	c.purgeCache()
	c.getLogger().Infow("Location added", "id", loc.ID, "name", loc.Name, "type", loc.Type)
	return true
}

// All returns every location in catalog order
func (c *LocationCatalog) All() []models.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Location{}, c.locations...)
}

// ByID returns the location with the given id, or nil
func (c *LocationCatalog) ByID(id string) *models.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	logger.CatalogQueryTotal.WithLabelValues("by_id").Inc()

	if i := c.indexLocked(id); i >= 0 {
		loc := c.locations[i]
		return &loc
	}
	return nil
}

// ByType returns locations whose type matches directly or through a synonym.
// Inactive locations are included.
func (c *LocationCatalog) ByType(locationType string) []models.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	logger.CatalogQueryTotal.WithLabelValues("by_type").Inc()

	out := []models.Location{}
	for _, l := range c.locations {
		if models.MatchesType(locationType, l.Type) {
			out = append(out, l)
		}
	}
	return out
}

// ByNamePattern returns locations whose name contains pattern, ignoring case
func (c *LocationCatalog) ByNamePattern(pattern string) []models.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	logger.CatalogQueryTotal.WithLabelValues("by_name").Inc()

	p := strings.ToLower(pattern)
	out := []models.Location{}
	for _, l := range c.locations {
		if strings.Contains(strings.ToLower(l.Name), p) {
			out = append(out, l)
		}
	}
	return out
}

func (c *LocationCatalog) consume() {
	if c.power != nil {
		c.power.SimulatePowerConsumption(simulator.OpGeolocation, 0)
	}
}

// WithinRadius returns active locations of the requested type within
// radiusKm, nearest first. Equal distances keep catalog order.
func (c *LocationCatalog) WithinRadius(lat, lon, radiusKm float64, locationType string) []models.LocationDistance {
	logger.CatalogQueryTotal.WithLabelValues("within_radius").Inc()
	if !geo.ValidateCoordinates(lat, lon) || radiusKm < 0 {
		c.getLogger().Warnw("Rejected radius query", "lat", lat, "lon", lon, "radius_km", radiusKm)
		return []models.LocationDistance{}
	}
	c.consume()

	c.mu.RLock()
	defer c.mu.RUnlock()

	box := geo.GetBoundingBox(lat, lon, radiusKm)
	out := []models.LocationDistance{}
	for _, l := range c.locations {
		if !l.IsActive || !models.MatchesType(locationType, l.Type) {
			continue
		}
		if !box.Contains(l.Latitude, l.Longitude) {
			continue
		}
		if d := geo.Distance(lat, lon, l.Latitude, l.Longitude); d <= radiusKm {
			out = append(out, models.LocationDistance{Location: l, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// Nearest returns the closest active location of the requested type. The
// first location in catalog order wins a tie.
func (c *LocationCatalog) Nearest(lat, lon float64, locationType string) (models.LocationDistance, bool) {
	logger.CatalogQueryTotal.WithLabelValues("nearest").Inc()
	if !geo.ValidateCoordinates(lat, lon) {
		c.getLogger().Warnw("Rejected nearest query", "lat", lat, "lon", lon)
		return models.LocationDistance{}, false
	}
	c.consume()

	c.mu.RLock()
	defer c.mu.RUnlock()

	key := nearestKey{lat: lat, lon: lon, typ: locationType}
	if c.cache != nil {
		if r, ok := c.cache.Get(key); ok {
			logger.CacheHitTotal.WithLabelValues("hit").Inc()
			return r.match, r.found
		}
		logger.CacheHitTotal.WithLabelValues("miss").Inc()
	}

	var best nearestResult
	for _, l := range c.locations {
		if !l.IsActive || !models.MatchesType(locationType, l.Type) {
			continue
		}
		d := geo.Distance(lat, lon, l.Latitude, l.Longitude)
		if !best.found || d < best.match.DistanceKm {
			best = nearestResult{match: models.LocationDistance{Location: l, DistanceKm: d}, found: true}
		}
	}

	if c.cache != nil {
		c.cache.Add(key, best)
	}
	return best.match, best.found
}

// FindEmergencyFacilities groups nearby facilities by canonical type,
// omitting types with no match. Emergency operations centers are searched
// over a wider radius when radiusKm is not positive.
func (c *LocationCatalog) FindEmergencyFacilities(lat, lon, radiusKm float64) map[string][]models.LocationDistance {
	out := make(map[string][]models.LocationDistance)
	for _, typ := range models.CanonicalTypes() {
		r := radiusKm
		if r <= 0 {
			r = DefaultFacilityRadiusKm
			if typ == "emergency_ops" {
				r = EmergencyOpsFacilityRadiusKm
			}
		}
		if found := c.WithinRadius(lat, lon, r, typ); len(found) > 0 {
			out[typ] = found
		}
	}
	return out
}

func capacityBucket(capacity int) string {
	switch {
	case capacity < 100:
		return CapacitySmall
	case capacity < 500:
		return CapacityMedium
	case capacity < 1000:
		return CapacityLarge
	default:
		return CapacityXLarge
	}
}

func region(lat, lon float64) string {
	switch {
	case lat >= 25 && lat <= 50 && lon >= -125 && lon <= -65:
		return RegionNorthAmerica
	case lat >= 35 && lat <= 70 && lon >= -10 && lon <= 40:
		return RegionEurope
	case lat >= 10 && lat <= 60 && lon >= 60 && lon <= 150:
		return RegionAsia
	default:
		return RegionOther
	}
}

// Statistics counts locations by type, capacity bucket and coarse region.
// Locations without a capacity are left out of the capacity buckets.
func (c *LocationCatalog) Statistics() CatalogStatistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	logger.CatalogQueryTotal.WithLabelValues("statistics").Inc()

	st := CatalogStatistics{
		TotalLocations: len(c.locations),
		ByType:         make(map[string]int),
		ByCapacity: map[string]int{
			CapacitySmall: 0, CapacityMedium: 0, CapacityLarge: 0, CapacityXLarge: 0,
		},
		GeographicCoverage: map[string]int{
			RegionNorthAmerica: 0, RegionEurope: 0, RegionAsia: 0, RegionOther: 0,
		},
	}
	for _, l := range c.locations {
		if l.IsActive {
			st.ActiveLocations++
		}
		st.ByType[l.Type]++
		if l.Capacity != nil && *l.Capacity > 0 {
			st.ByCapacity[capacityBucket(*l.Capacity)]++
		}
		st.GeographicCoverage[region(l.Latitude, l.Longitude)]++
	}
	return st
}

// Export writes the locations of locationType, or all of them when it is
// empty, in the interchange format
func (c *LocationCatalog) Export(w io.Writer, locationType string) error {
	var locs []models.Location
	label := locationType
	if locationType == "" {
		locs = c.All()
		label = "all"
	} else {
		locs = c.ByType(locationType)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(CatalogExport{
		ExportedAt:     c.now(),
		FacilityType:   label,
		TotalLocations: len(locs),
		Locations:      locs,
	})
	if err != nil {
		c.getLogger().Errorw("Failed to export locations", "facility_type", label, "error", err)
		return fmt.Errorf("failed to export locations: %w", err)
	}
	if c.power != nil {
		c.power.SimulatePowerConsumption(simulator.OpFileIO, 0)
	}
	return nil
}

// Import appends the locations of an exported document and rewrites the
// catalog once. Invalid or duplicate entries are skipped and logged. It
// returns how many locations were added.
func (c *LocationCatalog) Import(r io.Reader) (int, error) {
	var in importDocument
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		c.getLogger().Warnw("Rejected location import", "error", err)
		return 0, fmt.Errorf("failed to decode import: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.locations
	next := append(make([]models.Location, 0, len(prev)+len(in.Locations)), prev...)
	c.locations = next
	added := 0
	for i := range in.Locations {
		loc := in.Locations[i].Location
		loc.IsActive = in.Locations[i].IsActive == nil || *in.Locations[i].IsActive
		if err := c.prepareLocked(&loc); err != nil {
			c.getLogger().Warnw("Skipped imported location", "id", loc.ID, "name", loc.Name, "error", err)
			continue
		}
		c.locations = append(c.locations, loc)
		added++
	}

	if added == 0 {
		c.locations = prev
		return 0, nil
	}
	if err := c.saveLocked(c.locations); err != nil {
		c.locations = prev
		c.getLogger().Errorw("Failed to save imported locations", "path", c.store.Path(), "error", err)
		return 0, err
	}
	c.purgeCache()
	c.getLogger().Infow("Imported locations", "added", added, "skipped", len(in.Locations)-added)
	return added, nil
}
