package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula
const EarthRadiusKm = 6371.0

// KmPerDegreeLat is the approximate length of one degree of latitude
const KmPerDegreeLat = 111.0

// BoundingBox is a rectangular lat/lon prefilter around a center point.
// It is always a superset of the circle it was built from.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the point falls inside the box (inclusive)
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Distance returns the great-circle distance in kilometers between two points
// using the haversine formula on a spherical Earth.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(dLon/2), 2)
	// Rounding can push a marginally above 1 for antipodal points
	c := 2 * math.Asin(math.Sqrt(math.Min(1, a)))

	return EarthRadiusKm * c
}

// ValidateCoordinates reports whether lat is within [-90, 90] and lon within [-180, 180]
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// GetBoundingBox returns the prefilter rectangle for a radius around a center.
// Longitude degrees are scaled by the latitude farthest from the equator inside
// the box; when the box touches a pole or crosses the antimeridian the full
// longitude range is returned.
func GetBoundingBox(lat, lon, radiusKm float64) BoundingBox {
	latRange := radiusKm / KmPerDegreeLat

	box := BoundingBox{
		MinLat: math.Max(-90, lat-latRange),
		MaxLat: math.Min(90, lat+latRange),
		MinLon: -180,
		MaxLon: 180,
	}

	farthest := math.Abs(lat) + latRange
	if farthest >= 90 {
		return box
	}

	lonRange := radiusKm / (KmPerDegreeLat * math.Cos(toRadians(farthest)))
	if lon-lonRange < -180 || lon+lonRange > 180 {
		return box
	}

	box.MinLon = lon - lonRange
	box.MaxLon = lon + lonRange
	return box
}

// FormatCoordinates renders a coordinate pair as degrees, minutes and seconds
// with hemisphere letters, e.g. 40°42'46.08"N, 74°0'21.6"W
func FormatCoordinates(lat, lon float64) string {
	latDir := "N"
	if lat < 0 {
		latDir = "S"
	}
	lonDir := "E"
	if lon < 0 {
		lonDir = "W"
	}

	return fmt.Sprintf("%s%s, %s%s", formatDMS(math.Abs(lat)), latDir, formatDMS(math.Abs(lon)), lonDir)
}

// DecimalToDMS splits decimal degrees into whole degrees, whole minutes and seconds
func DecimalToDMS(decimal float64) (int, int, float64) {
	degrees := int(decimal)
	minutes := int((decimal - float64(degrees)) * 60)
	seconds := (decimal - float64(degrees) - float64(minutes)/60) * 3600
	return degrees, minutes, seconds
}

func formatDMS(value float64) string {
	deg, min, sec := DecimalToDMS(value)
	sec = math.Round(sec*100) / 100
	secs := strconv.FormatFloat(sec, 'f', -1, 64)
	if !strings.Contains(secs, ".") {
		secs += ".0"
	}
	return fmt.Sprintf("%d°%d'%s\"", deg, min, secs)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
