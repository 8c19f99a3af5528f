package model

import "fmt"

// GeoCoordinate is a body-relative position: geodetic latitude and longitude
// in degrees, altitude in metres above the reference surface.
type GeoCoordinate struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// String renders the coordinate the same way the waypoint file stores it.
func (g GeoCoordinate) String() string {
	return fmt.Sprintf("%g, %g, %g", g.Latitude, g.Longitude, g.Altitude)
}
