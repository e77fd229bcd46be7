package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

// Valid reports whether the coordinate is finite and within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// DistanceKm returns the great-circle distance between a and b in kilometres.
// NaN inputs propagate to a NaN result; callers validate coordinates first.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Offset returns the coordinate reached by moving distanceKm from origin along
// the given bearing (degrees clockwise from north).
func Offset(origin Coordinate, distanceKm, bearingDeg float64) Coordinate {
	angular := distanceKm / EarthRadiusKm
	bearing := toRadians(bearingDeg)
	lat1 := toRadians(origin.Latitude)
	lng1 := toRadians(origin.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) + math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lng2 := lng1 + math.Atan2(math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1), math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	return Coordinate{Latitude: toDegrees(lat2), Longitude: normalizeLongitude(toDegrees(lng2))}
}

// Box is a latitude/longitude rectangle. When it crosses the antimeridian
// MinLongitude is greater than MaxLongitude and the box covers
// [MinLongitude, 180] together with [-180, MaxLongitude].
type Box struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// Wraps reports whether the box crosses the antimeridian.
func (b Box) Wraps() bool {
	return b.MinLongitude > b.MaxLongitude
}

// Contains reports whether c lies inside the box.
func (b Box) Contains(c Coordinate) bool {
	if c.Latitude < b.MinLatitude || c.Latitude > b.MaxLatitude {
		return false
	}
	if b.Wraps() {
		return c.Longitude >= b.MinLongitude || c.Longitude <= b.MaxLongitude
	}
	return c.Longitude >= b.MinLongitude && c.Longitude <= b.MaxLongitude
}

// BoundingBox returns a box enclosing the circle of radiusKm around center.
// Used to pre-filter rows before the exact distance check. A circle that
// reaches a pole spans every longitude.
func BoundingBox(center Coordinate, radiusKm float64) Box {
	angular := radiusKm / EarthRadiusKm
	latDelta := toDegrees(angular)
	box := Box{
		MinLatitude:  center.Latitude - latDelta,
		MaxLatitude:  center.Latitude + latDelta,
		MinLongitude: -180,
		MaxLongitude: 180,
	}
	if box.MinLatitude <= -90 || box.MaxLatitude >= 90 {
		box.MinLatitude = math.Max(-90, box.MinLatitude)
		box.MaxLatitude = math.Min(90, box.MaxLatitude)
		return box
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(center.Latitude))
	if ratio >= 1 {
		return box
	}
	lngDelta := toDegrees(math.Asin(ratio))
	box.MinLongitude = center.Longitude - lngDelta
	box.MaxLongitude = center.Longitude + lngDelta
	if box.MinLongitude < -180 {
		box.MinLongitude += 360
	}
	if box.MaxLongitude > 180 {
		box.MaxLongitude -= 360
	}
	return box
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

func normalizeLongitude(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
