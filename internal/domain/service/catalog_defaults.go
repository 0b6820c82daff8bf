package service

import "github.com/hsdfat8/fieldops/internal/domain/models"

type seedLocation struct {
	id, name, typ, address, description, phone, hours string
	lat, lon                                          float64
	capacity                                          int
	facilities                                        []string
}

var defaultLocations = []seedLocation{
	{"LOC-NYC-001", "Bellevue Hospital Center", "hospital", "462 First Avenue, New York, NY 10016",
		"Major trauma center and emergency hospital", "212-562-4141", "24/7",
		40.7411, -73.9747, 1000, []string{"emergency_room", "trauma_center", "icu", "helicopter_pad"}},
	{"LOC-NYC-002", "NYC Emergency Operations Center", "emergency_ops", "165 Cadman Plaza East, Brooklyn, NY 11201",
		"Primary emergency coordination facility", "718-422-8700", "24/7",
		40.6989, -73.9939, 200, []string{"command_center", "communications", "situation_room"}},
	{"LOC-NYC-003", "Brooklyn Evacuation Shelter", "shelter", "150 Ashland Place, Brooklyn, NY 11201",
		"Primary evacuation shelter for Brooklyn", "718-422-8700", "24/7 during emergencies",
		40.6944, -73.9861, 500, []string{"beds", "food_service", "medical_station", "showers"}},
	{"LOC-NYC-004", "FDNY Engine 10", "fire_station", "124 Liberty Street, New York, NY 10006",
		"Downtown fire station", "212-267-7000", "24/7",
		40.7097, -74.0127, 20, []string{"fire_trucks", "rescue_equipment", "hazmat_gear"}},
	{"LOC-NYC-005", "Manhattan Aid Station", "aid_station", "350 Canal Street, New York, NY 10013",
		"Downtown aid and distribution center", "212-226-3000", "8AM-8PM",
		40.7196, -73.9969, 100, []string{"first_aid", "food_distribution", "information_desk"}},
	{"LOC-LA-001", "UCLA Medical Center", "hospital", "757 Westwood Plaza, Los Angeles, CA 90095",
		"Major medical center and trauma hospital", "310-825-9111", "24/7",
		34.0664, -118.4450, 800, []string{"emergency_room", "trauma_center", "burn_unit", "helicopter_pad"}},
	{"LOC-LA-002", "LA Emergency Operations Center", "emergency_ops", "500 E Temple Street, Los Angeles, CA 90012",
		"Los Angeles emergency coordination center", "213-978-3800", "24/7",
		34.0522, -118.2437, 150, []string{"command_center", "communications", "situation_room"}},
	{"LOC-CHI-001", "Northwestern Memorial Hospital", "hospital", "251 E Huron St, Chicago, IL 60611",
		"Major downtown hospital and trauma center", "312-926-2000", "24/7",
		41.8947, -87.6225, 900, []string{"emergency_room", "trauma_center", "icu", "helicopter_pad"}},
	{"LOC-CHI-002", "Chicago Emergency Operations Center", "emergency_ops", "1411 W Madison St, Chicago, IL 60607",
		"Chicago emergency coordination center", "312-746-6000", "24/7",
		41.8819, -87.6681, 120, []string{"command_center", "communications", "situation_room"}},
	{"LOC-HOU-001", "Memorial Hermann-Texas Medical Center", "hospital", "6411 Fannin St, Houston, TX 77030",
		"Major trauma center and emergency hospital", "713-704-4000", "24/7",
		29.7069, -95.3975, 1100, []string{"emergency_room", "trauma_center", "icu", "helicopter_pad"}},
	{"LOC-HOU-002", "Houston Emergency Operations Center", "emergency_ops", "5320 N Shepherd Dr, Houston, TX 77091",
		"Houston emergency coordination center", "713-884-4500", "24/7",
		29.8347, -95.4344, 100, []string{"command_center", "communications", "situation_room"}},
	{"LOC-MIA-001", "Jackson Memorial Hospital", "hospital", "1611 NW 12th Ave, Miami, FL 33136",
		"Major trauma center and emergency hospital", "305-585-1111", "24/7",
		25.7907, -80.2100, 1200, []string{"emergency_room", "trauma_center", "icu", "helicopter_pad"}},
	{"LOC-MIA-002", "Miami Emergency Operations Center", "emergency_ops", "444 SW 2nd Ave, Miami, FL 33130",
		"Miami emergency coordination center", "305-579-6000", "24/7",
		25.7617, -80.1918, 80, []string{"command_center", "communications", "situation_room"}},
}

// DefaultLocations returns the builtin facility set used to seed an empty catalog
func DefaultLocations() []models.Location {
	out := make([]models.Location, 0, len(defaultLocations))
	for _, s := range defaultLocations {
		capacity := s.capacity
		out = append(out, models.Location{
			ID:             s.id,
			Name:           s.name,
			Type:           s.typ,
			Address:        models.StringPtr(s.address),
			Latitude:       s.lat,
			Longitude:      s.lon,
			Description:    models.StringPtr(s.description),
			Capacity:       &capacity,
			Facilities:     append(models.StringList(nil), s.facilities...),
			ContactPhone:   models.StringPtr(s.phone),
			OperatingHours: models.StringPtr(s.hours),
			IsActive:       true,
		})
	}
	return out
}
