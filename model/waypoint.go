package model

// WaypointPair is one user-drawn wall: a start and end waypoint on a named body.
type WaypointPair struct {
	BodyName   string
	Start      GeoCoordinate
	End        GeoCoordinate
	Collidable bool
}
