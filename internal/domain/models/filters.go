package models

import "time"

// ResourceFilter narrows a resource listing
type ResourceFilter struct {
	Type     string
	Status   ResourceStatus
	Location string // substring
}

func (f ResourceFilter) Filter() Filter {
	out := Filter{Equals: map[string]string{}, Contains: map[string][]string{}}
	putEq(out.Equals, "type", f.Type)
	putEq(out.Equals, "status", string(f.Status))
	if f.Location != "" {
		out.Contains["location"] = []string{f.Location}
	}
	return out
}

// ContactFilter narrows a contact listing; inactive contacts are hidden unless requested
type ContactFilter struct {
	ContactType     string
	Priority        string
	Organization    string
	IncludeInactive bool
}

func (f ContactFilter) Filter() Filter {
	out := Filter{Equals: map[string]string{}, Contains: map[string][]string{}, ActiveOnly: !f.IncludeInactive}
	putEq(out.Equals, "contact_type", f.ContactType)
	putEq(out.Equals, "priority", f.Priority)
	if f.Organization != "" {
		out.Contains["organization"] = []string{f.Organization}
	}
	return out
}

// IncidentFilter narrows an incident listing. An empty Status lists active
// incidents; IncidentStatusAll lists every status.
type IncidentFilter struct {
	Status   string
	Priority string
	Type     string
}

func (f IncidentFilter) Filter() Filter {
	out := Filter{Equals: map[string]string{}}
	switch f.Status {
	case "":
		out.Equals["status"] = IncidentActive
	case IncidentStatusAll:
	default:
		out.Equals["status"] = f.Status
	}
	putEq(out.Equals, "priority", f.Priority)
	putEq(out.Equals, "type", f.Type)
	return out
}

// PersonnelFilter narrows a personnel listing; any listed skill matches
type PersonnelFilter struct {
	Role   string
	Status string
	Skills []string
}

func (f PersonnelFilter) Filter() Filter {
	out := Filter{Equals: map[string]string{}, Contains: map[string][]string{}}
	putEq(out.Equals, "role", f.Role)
	putEq(out.Equals, "status", f.Status)
	if len(f.Skills) > 0 {
		out.Contains["skills"] = append([]string(nil), f.Skills...)
	}
	return out
}

// AssignmentFilter narrows the assignment log
type AssignmentFilter struct {
	ResourceID string
	OpenOnly   bool
}

func (f AssignmentFilter) Filter() Filter {
	out := Filter{Equals: map[string]string{}}
	putEq(out.Equals, "resource_id", f.ResourceID)
	if f.OpenOnly {
		out.IsNull = []string{"returned_at"}
	}
	return out
}

func putEq(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

// ResourcePatch is a partial resource update. Setting AssignedTo to an
// empty string clears the assignee.
type ResourcePatch struct {
	Type           *string         `json:"type,omitempty"`
	Name           *string         `json:"name,omitempty"`
	Status         *ResourceStatus `json:"status,omitempty"`
	Location       *string         `json:"location,omitempty"`
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	AssignedTo     *string         `json:"assigned_to,omitempty"`
	Capacity       *string         `json:"capacity,omitempty"`
	FuelType       *string         `json:"fuel_type,omitempty"`
	Equipment      *StringList     `json:"equipment,omitempty"`
	MaintenanceDue *string         `json:"maintenance_due,omitempty"`
}

func (p ResourcePatch) Collection() Collection { return CollectionResources }

func (p ResourcePatch) Changes() Changes {
	ch := Changes{}
	setIfPresent(ch, "type", p.Type)
	setIfPresent(ch, "name", p.Name)
	if p.Status != nil {
		ch["status"] = string(*p.Status)
	}
	setIfPresent(ch, "location", p.Location)
	setFloatIfPresent(ch, "latitude", p.Latitude)
	setFloatIfPresent(ch, "longitude", p.Longitude)
	if p.AssignedTo != nil {
		if *p.AssignedTo == "" {
			ch["assigned_to"] = nil
		} else {
			ch["assigned_to"] = *p.AssignedTo
		}
	}
	setIfPresent(ch, "capacity", p.Capacity)
	setIfPresent(ch, "fuel_type", p.FuelType)
	if p.Equipment != nil {
		ch["equipment"] = *p.Equipment
	}
	setIfPresent(ch, "maintenance_due", p.MaintenanceDue)
	return ch
}

func (p ResourcePatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return validateOptionalCoordinates(p.Latitude, p.Longitude)
}

type ContactPatch struct {
	Name         *string  `json:"name,omitempty"`
	Organization *string  `json:"organization,omitempty"`
	Role         *string  `json:"role,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	PhoneAlt     *string  `json:"phone_alt,omitempty"`
	Email        *string  `json:"email,omitempty"`
	Address      *string  `json:"address,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	ContactType  *string  `json:"contact_type,omitempty"`
	Priority     *string  `json:"priority,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
}

func (p ContactPatch) Collection() Collection { return CollectionContacts }

func (p ContactPatch) Changes() Changes {
	ch := Changes{}
	setIfPresent(ch, "name", p.Name)
	setIfPresent(ch, "organization", p.Organization)
	setIfPresent(ch, "role", p.Role)
	setIfPresent(ch, "phone", p.Phone)
	setIfPresent(ch, "phone_alt", p.PhoneAlt)
	setIfPresent(ch, "email", p.Email)
	setIfPresent(ch, "address", p.Address)
	setFloatIfPresent(ch, "latitude", p.Latitude)
	setFloatIfPresent(ch, "longitude", p.Longitude)
	setIfPresent(ch, "contact_type", p.ContactType)
	setIfPresent(ch, "priority", p.Priority)
	setIfPresent(ch, "notes", p.Notes)
	if p.IsActive != nil {
		ch["is_active"] = *p.IsActive
	}
	return ch
}

func (p ContactPatch) Validate() error {
	return validateOptionalCoordinates(p.Latitude, p.Longitude)
}

type IncidentPatch struct {
	Type        *string    `json:"type,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Severity    *string    `json:"severity,omitempty"`
	ReportedBy  *string    `json:"reported_by,omitempty"`
	AssignedTo  *string    `json:"assigned_to,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func (p IncidentPatch) Collection() Collection { return CollectionIncidents }

func (p IncidentPatch) Changes() Changes {
	ch := Changes{}
	setIfPresent(ch, "type", p.Type)
	setIfPresent(ch, "description", p.Description)
	setIfPresent(ch, "location", p.Location)
	setFloatIfPresent(ch, "latitude", p.Latitude)
	setFloatIfPresent(ch, "longitude", p.Longitude)
	setIfPresent(ch, "status", p.Status)
	setIfPresent(ch, "priority", p.Priority)
	setIfPresent(ch, "severity", p.Severity)
	setIfPresent(ch, "reported_by", p.ReportedBy)
	setIfPresent(ch, "assigned_to", p.AssignedTo)
	if p.ResolvedAt != nil {
		ch["resolved_at"] = *p.ResolvedAt
	}
	return ch
}

func (p IncidentPatch) Validate() error {
	return validateOptionalCoordinates(p.Latitude, p.Longitude)
}

type PersonnelPatch struct {
	Name              *string     `json:"name,omitempty"`
	Role              *string     `json:"role,omitempty"`
	Contact           *string     `json:"contact,omitempty"`
	Phone             *string     `json:"phone,omitempty"`
	Email             *string     `json:"email,omitempty"`
	Status            *string     `json:"status,omitempty"`
	Location          *string     `json:"location,omitempty"`
	Latitude          *float64    `json:"latitude,omitempty"`
	Longitude         *float64    `json:"longitude,omitempty"`
	Skills            *StringList `json:"skills,omitempty"`
	Certifications    *StringList `json:"certifications,omitempty"`
	AvailabilityHours *string     `json:"availability_hours,omitempty"`
}

func (p PersonnelPatch) Collection() Collection { return CollectionPersonnel }

func (p PersonnelPatch) Changes() Changes {
	ch := Changes{}
	setIfPresent(ch, "name", p.Name)
	setIfPresent(ch, "role", p.Role)
	setIfPresent(ch, "contact", p.Contact)
	setIfPresent(ch, "phone", p.Phone)
	setIfPresent(ch, "email", p.Email)
	setIfPresent(ch, "status", p.Status)
	setIfPresent(ch, "location", p.Location)
	setFloatIfPresent(ch, "latitude", p.Latitude)
	setFloatIfPresent(ch, "longitude", p.Longitude)
	if p.Skills != nil {
		ch["skills"] = *p.Skills
	}
	if p.Certifications != nil {
		ch["certifications"] = *p.Certifications
	}
	setIfPresent(ch, "availability_hours", p.AvailabilityHours)
	return ch
}

func (p PersonnelPatch) Validate() error {
	return validateOptionalCoordinates(p.Latitude, p.Longitude)
}

type LocationPatch struct {
	Name           *string     `json:"name,omitempty"`
	Type           *string     `json:"type,omitempty"`
	Address        *string     `json:"address,omitempty"`
	Latitude       *float64    `json:"latitude,omitempty"`
	Longitude      *float64    `json:"longitude,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Capacity       *int        `json:"capacity,omitempty"`
	Facilities     *StringList `json:"facilities,omitempty"`
	ContactPhone   *string     `json:"contact_phone,omitempty"`
	ContactEmail   *string     `json:"contact_email,omitempty"`
	OperatingHours *string     `json:"operating_hours,omitempty"`
	IsActive       *bool       `json:"is_active,omitempty"`
}

func (p LocationPatch) Collection() Collection { return CollectionLocations }

func (p LocationPatch) Changes() Changes {
	ch := Changes{}
	setIfPresent(ch, "name", p.Name)
	setIfPresent(ch, "type", p.Type)
	setIfPresent(ch, "address", p.Address)
	setFloatIfPresent(ch, "latitude", p.Latitude)
	setFloatIfPresent(ch, "longitude", p.Longitude)
	setIfPresent(ch, "description", p.Description)
	if p.Capacity != nil {
		ch["capacity"] = *p.Capacity
	}
	if p.Facilities != nil {
		ch["facilities"] = *p.Facilities
	}
	setIfPresent(ch, "contact_phone", p.ContactPhone)
	setIfPresent(ch, "contact_email", p.ContactEmail)
	setIfPresent(ch, "operating_hours", p.OperatingHours)
	if p.IsActive != nil {
		ch["is_active"] = *p.IsActive
	}
	return ch
}

func (p LocationPatch) Validate() error {
	return validateOptionalCoordinates(p.Latitude, p.Longitude)
}
