package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Collection names a record collection shared by both persistence backends
type Collection string

const (
	CollectionResources   Collection = "resources"
	CollectionContacts    Collection = "contacts"
	CollectionIncidents   Collection = "incidents"
	CollectionPersonnel   Collection = "personnel"
	CollectionAssignments Collection = "assignments"
	CollectionLocations   Collection = "locations"
)

var (
	ErrUnknownCollection  = errors.New("unknown collection")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidStatus      = errors.New("invalid resource status")
	ErrMissingField       = errors.New("required field missing")
)

// CollectionSpec describes how a collection is laid out on both backends
type CollectionSpec struct {
	Name          Collection
	Table         string
	IDPrefix      string
	Columns       []string
	OrderBy       string // structured backend order; the document backend keeps insertion order
	CategoryField string // breakdown key written to document metadata
	HasStatus     bool
	SoftDelete    bool
}

var collectionSpecs = map[Collection]CollectionSpec{
	CollectionResources: {
		Name:     CollectionResources,
		Table:    "resources",
		IDPrefix: "RES",
		Columns: []string{
			"id", "type", "name", "status", "location", "latitude", "longitude", "assigned_to",
			"capacity", "fuel_type", "equipment", "maintenance_due", "created_at", "updated_at",
		},
		OrderBy:       "type, name",
		CategoryField: "type",
		HasStatus:     true,
	},
	CollectionContacts: {
		Name:     CollectionContacts,
		Table:    "emergency_contacts",
		IDPrefix: "CON",
		Columns: []string{
			"id", "name", "organization", "role", "phone", "phone_alt", "email", "address",
			"latitude", "longitude", "contact_type", "priority", "notes", "is_active",
			"created_at", "updated_at",
		},
		OrderBy:       "priority DESC, name",
		CategoryField: "contact_type",
		SoftDelete:    true,
	},
	CollectionIncidents: {
		Name:     CollectionIncidents,
		Table:    "incidents",
		IDPrefix: "INC",
		Columns: []string{
			"id", "type", "description", "location", "latitude", "longitude", "status", "priority",
			"severity", "reported_by", "assigned_to", "created_at", "updated_at", "resolved_at",
		},
		OrderBy:       "created_at DESC",
		CategoryField: "type",
		HasStatus:     true,
	},
	CollectionPersonnel: {
		Name:     CollectionPersonnel,
		Table:    "personnel",
		IDPrefix: "PER",
		Columns: []string{
			"id", "name", "role", "contact", "phone", "email", "status", "location", "latitude",
			"longitude", "skills", "certifications", "availability_hours", "created_at", "updated_at",
		},
		OrderBy:       "role, name",
		CategoryField: "role",
		HasStatus:     true,
	},
	CollectionAssignments: {
		Name:     CollectionAssignments,
		Table:    "resource_assignments",
		IDPrefix: "ASN",
		Columns: []string{
			"id", "resource_id", "incident_id", "assigned_to", "assigned_at", "returned_at",
			"notes", "created_at", "updated_at",
		},
		OrderBy:       "assigned_at, id",
		CategoryField: "resource_id",
	},
	CollectionLocations: {
		Name:     CollectionLocations,
		Table:    "locations",
		IDPrefix: "LOC",
		Columns: []string{
			"id", "name", "type", "address", "latitude", "longitude", "description", "capacity",
			"facilities", "contact_phone", "contact_email", "operating_hours", "is_active",
			"created_at", "updated_at",
		},
		OrderBy:       "name",
		CategoryField: "type",
	},
}

// Spec returns the layout descriptor for the collection
func (c Collection) Spec() (CollectionSpec, error) {
	spec, ok := collectionSpecs[c]
	if !ok {
		return CollectionSpec{}, fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	return spec, nil
}

// HasColumn reports whether the column belongs to the collection schema
func (s CollectionSpec) HasColumn(column string) bool {
	for _, c := range s.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// AllCollections lists every collection in a stable order
func AllCollections() []Collection {
	return []Collection{
		CollectionResources,
		CollectionContacts,
		CollectionIncidents,
		CollectionPersonnel,
		CollectionAssignments,
		CollectionLocations,
	}
}

// FormatID renders a sequence number as PREFIX-NNN
func FormatID(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%03d", prefix, seq)
}

// ParseIDSequence extracts the numeric suffix of a PREFIX-NNN id.
// It returns false for ids with another prefix or a non-numeric suffix.
func ParseIDSequence(prefix, id string) (int64, bool) {
	suffix, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Record is implemented by every concrete collection type
type Record interface {
	Collection() Collection
	GetID() string
	SetID(id string)
	SetTimestamps(createdAt, updatedAt time.Time)
	ApplyDefaults()
	Validate() error
}

// Changes maps column names to new values for a partial update
type Changes map[string]any

// Patch is a typed partial update for one collection
type Patch interface {
	Collection() Collection
	Changes() Changes
	Validate() error
}

// Filter selects records on either backend
type Filter struct {
	Equals     map[string]string
	Contains   map[string][]string // case-insensitive substring, any of the values
	IsNull     []string
	Ranges     []Range
	ActiveOnly bool
}

// Range is an inclusive numeric bound on a column
type Range struct {
	Column string
	Min    float64
	Max    float64
}

// StringList is a list column stored as JSON text on the structured backend
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return l.unmarshal([]byte(v))
	case []byte:
		return l.unmarshal(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

func (l *StringList) unmarshal(b []byte) error {
	if len(b) == 0 {
		*l = nil
		return nil
	}
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("failed to decode string list: %w", err)
	}
	*l = items
	return nil
}

func validateOptionalCoordinates(lat, lon *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinates, *lat)
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinates, *lon)
	}
	return nil
}

func setIfPresent(ch Changes, column string, v *string) {
	if v != nil {
		ch[column] = *v
	}
}

func setFloatIfPresent(ch Changes, column string, v *float64) {
	if v != nil {
		ch[column] = *v
	}
}
