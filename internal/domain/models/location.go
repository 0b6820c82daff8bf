package models

import (
	"fmt"
	"time"
)

// Location is an emergency facility in the offline catalog
type Location struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Type           string     `json:"type" db:"type"`
	Address        *string    `json:"address,omitempty" db:"address"`
	Latitude       float64    `json:"latitude" db:"latitude"`
	Longitude      float64    `json:"longitude" db:"longitude"`
	Description    *string    `json:"description,omitempty" db:"description"`
	Capacity       *int       `json:"capacity,omitempty" db:"capacity"`
	Facilities     StringList `json:"facilities,omitempty" db:"facilities"`
	ContactPhone   *string    `json:"contact_phone,omitempty" db:"contact_phone"`
	ContactEmail   *string    `json:"contact_email,omitempty" db:"contact_email"`
	OperatingHours *string    `json:"operating_hours,omitempty" db:"operating_hours"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

func (l *Location) Collection() Collection { return CollectionLocations }
func (l *Location) GetID() string          { return l.ID }
func (l *Location) SetID(id string)        { l.ID = id }

func (l *Location) SetTimestamps(createdAt, updatedAt time.Time) {
	l.CreatedAt, l.UpdatedAt = createdAt, updatedAt
}

func (l *Location) ApplyDefaults() {
	l.IsActive = true
}

func (l *Location) Validate() error {
	if l.Name == "" || l.Type == "" {
		return fmt.Errorf("%w: location name and type", ErrMissingField)
	}
	return validateOptionalCoordinates(&l.Latitude, &l.Longitude)
}

// LocationDistance pairs a location with its great-circle distance from a query point
type LocationDistance struct {
	Location   Location `json:"location"`
	DistanceKm float64  `json:"distance_km"`
}

// EmergencyTypes maps each canonical facility type to the type names that match it
var EmergencyTypes = map[string][]string{
	"hospital":       {"hospital", "medical_center", "clinic", "emergency_room"},
	"shelter":        {"shelter", "evacuation_center", "refuge", "safe_zone"},
	"aid_station":    {"aid_station", "relief_center", "distribution_center", "command_post"},
	"fire_station":   {"fire_station", "firehouse", "fire_department"},
	"police_station": {"police_station", "police_department", "law_enforcement"},
	"emergency_ops":  {"emergency_ops", "command_center", "operations_center"},
}

// CanonicalTypes lists the canonical facility types in a stable order
func CanonicalTypes() []string {
	return []string{"hospital", "shelter", "aid_station", "fire_station", "police_station", "emergency_ops"}
}

// MatchesType reports whether locationType satisfies the requested type,
// either directly or through the synonym table.
func MatchesType(requested, locationType string) bool {
	if requested == "" {
		return true
	}
	if variants, ok := EmergencyTypes[requested]; ok {
		for _, v := range variants {
			if v == locationType {
				return true
			}
		}
		return false
	}
	return requested == locationType
}
