package models

import (
	"fmt"
	"time"
)

// ResourceStatus is the lifecycle state of a field resource
type ResourceStatus string

const (
	ResourceAvailable   ResourceStatus = "available"
	ResourceInUse       ResourceStatus = "in_use"
	ResourceMaintenance ResourceStatus = "maintenance"
)

// Valid reports whether s is a known resource status
func (s ResourceStatus) Valid() bool {
	switch s {
	case ResourceAvailable, ResourceInUse, ResourceMaintenance:
		return true
	}
	return false
}

// Incident statuses
const (
	IncidentActive   = "active"
	IncidentResolved = "resolved"
	IncidentClosed   = "closed"

	// IncidentStatusAll disables the status filter when listing incidents
	IncidentStatusAll = "all"
)

// Resource is a piece of equipment, vehicle, supply or team available to responders
type Resource struct {
	ID             string         `json:"id" db:"id"`
	Type           string         `json:"type" db:"type"`
	Name           string         `json:"name" db:"name"`
	Status         ResourceStatus `json:"status" db:"status"`
	Location       *string        `json:"location,omitempty" db:"location"`
	Latitude       *float64       `json:"latitude,omitempty" db:"latitude"`
	Longitude      *float64       `json:"longitude,omitempty" db:"longitude"`
	AssignedTo     *string        `json:"assigned_to,omitempty" db:"assigned_to"`
	Capacity       *string        `json:"capacity,omitempty" db:"capacity"`
	FuelType       *string        `json:"fuel_type,omitempty" db:"fuel_type"`
	Equipment      StringList     `json:"equipment,omitempty" db:"equipment"`
	MaintenanceDue *string        `json:"maintenance_due,omitempty" db:"maintenance_due"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

func (r *Resource) Collection() Collection { return CollectionResources }
func (r *Resource) GetID() string          { return r.ID }
func (r *Resource) SetID(id string)        { r.ID = id }

func (r *Resource) SetTimestamps(createdAt, updatedAt time.Time) {
	r.CreatedAt, r.UpdatedAt = createdAt, updatedAt
}

func (r *Resource) ApplyDefaults() {
	if r.Status == "" {
		r.Status = ResourceAvailable
	}
}

func (r *Resource) Validate() error {
	if r.Type == "" || r.Name == "" {
		return fmt.Errorf("%w: resource type and name", ErrMissingField)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	return validateOptionalCoordinates(r.Latitude, r.Longitude)
}

// Contact is an emergency contact; deleting one only deactivates it
type Contact struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Organization *string   `json:"organization,omitempty" db:"organization"`
	Role         *string   `json:"role,omitempty" db:"role"`
	Phone        string    `json:"phone" db:"phone"`
	PhoneAlt     *string   `json:"phone_alt,omitempty" db:"phone_alt"`
	Email        *string   `json:"email,omitempty" db:"email"`
	Address      *string   `json:"address,omitempty" db:"address"`
	Latitude     *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude    *float64  `json:"longitude,omitempty" db:"longitude"`
	ContactType  string    `json:"contact_type" db:"contact_type"`
	Priority     string    `json:"priority" db:"priority"`
	Notes        *string   `json:"notes,omitempty" db:"notes"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (c *Contact) Collection() Collection { return CollectionContacts }
func (c *Contact) GetID() string          { return c.ID }
func (c *Contact) SetID(id string)        { c.ID = id }

func (c *Contact) SetTimestamps(createdAt, updatedAt time.Time) {
	c.CreatedAt, c.UpdatedAt = createdAt, updatedAt
}

// ApplyDefaults marks new contacts active
func (c *Contact) ApplyDefaults() {
	if c.ContactType == "" {
		c.ContactType = "emergency"
	}
	if c.Priority == "" {
		c.Priority = "normal"
	}
	c.IsActive = true
}

func (c *Contact) Validate() error {
	if c.Name == "" || c.Phone == "" {
		return fmt.Errorf("%w: contact name and phone", ErrMissingField)
	}
	return validateOptionalCoordinates(c.Latitude, c.Longitude)
}

// Incident is a reported emergency
type Incident struct {
	ID          string     `json:"id" db:"id"`
	Type        string     `json:"type" db:"type"`
	Description *string    `json:"description,omitempty" db:"description"`
	Location    *string    `json:"location,omitempty" db:"location"`
	Latitude    *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64   `json:"longitude,omitempty" db:"longitude"`
	Status      string     `json:"status" db:"status"`
	Priority    string     `json:"priority" db:"priority"`
	Severity    string     `json:"severity" db:"severity"`
	ReportedBy  *string    `json:"reported_by,omitempty" db:"reported_by"`
	AssignedTo  *string    `json:"assigned_to,omitempty" db:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

func (i *Incident) Collection() Collection { return CollectionIncidents }
func (i *Incident) GetID() string          { return i.ID }
func (i *Incident) SetID(id string)        { i.ID = id }

func (i *Incident) SetTimestamps(createdAt, updatedAt time.Time) {
	i.CreatedAt, i.UpdatedAt = createdAt, updatedAt
}

func (i *Incident) ApplyDefaults() {
	if i.Status == "" {
		i.Status = IncidentActive
	}
	if i.Priority == "" {
		i.Priority = "medium"
	}
	if i.Severity == "" {
		i.Severity = "moderate"
	}
}

func (i *Incident) Validate() error {
	if i.Type == "" {
		return fmt.Errorf("%w: incident type", ErrMissingField)
	}
	return validateOptionalCoordinates(i.Latitude, i.Longitude)
}

// Personnel is a responder that can be dispatched
type Personnel struct {
	ID                string     `json:"id" db:"id"`
	Name              string     `json:"name" db:"name"`
	Role              string     `json:"role" db:"role"`
	Contact           *string    `json:"contact,omitempty" db:"contact"`
	Phone             *string    `json:"phone,omitempty" db:"phone"`
	Email             *string    `json:"email,omitempty" db:"email"`
	Status            string     `json:"status" db:"status"`
	Location          *string    `json:"location,omitempty" db:"location"`
	Latitude          *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude         *float64   `json:"longitude,omitempty" db:"longitude"`
	Skills            StringList `json:"skills,omitempty" db:"skills"`
	Certifications    StringList `json:"certifications,omitempty" db:"certifications"`
	AvailabilityHours *string    `json:"availability_hours,omitempty" db:"availability_hours"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

func (p *Personnel) Collection() Collection { return CollectionPersonnel }
func (p *Personnel) GetID() string          { return p.ID }
func (p *Personnel) SetID(id string)        { p.ID = id }

func (p *Personnel) SetTimestamps(createdAt, updatedAt time.Time) {
	p.CreatedAt, p.UpdatedAt = createdAt, updatedAt
}

func (p *Personnel) ApplyDefaults() {
	if p.Status == "" {
		p.Status = "available"
	}
}

func (p *Personnel) Validate() error {
	if p.Name == "" || p.Role == "" {
		return fmt.Errorf("%w: personnel name and role", ErrMissingField)
	}
	return validateOptionalCoordinates(p.Latitude, p.Longitude)
}

// Assignment links a resource to an incident until it is returned
type Assignment struct {
	ID         string     `json:"id" db:"id"`
	ResourceID string     `json:"resource_id" db:"resource_id"`
	IncidentID *string    `json:"incident_id,omitempty" db:"incident_id"`
	AssignedTo *string    `json:"assigned_to,omitempty" db:"assigned_to"`
	AssignedAt time.Time  `json:"assigned_at" db:"assigned_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty" db:"returned_at"`
	Notes      *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (a *Assignment) Collection() Collection { return CollectionAssignments }
func (a *Assignment) GetID() string          { return a.ID }
func (a *Assignment) SetID(id string)        { a.ID = id }

// SetTimestamps also stamps AssignedAt when it is unset
func (a *Assignment) SetTimestamps(createdAt, updatedAt time.Time) {
	a.CreatedAt, a.UpdatedAt = createdAt, updatedAt
	if a.AssignedAt.IsZero() {
		a.AssignedAt = createdAt
	}
}

func (a *Assignment) ApplyDefaults() {}

func (a *Assignment) Validate() error {
	if a.ResourceID == "" {
		return fmt.Errorf("%w: assignment resource_id", ErrMissingField)
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float64Ptr returns a pointer to f
func Float64Ptr(f float64) *float64 {
	return &f
}
