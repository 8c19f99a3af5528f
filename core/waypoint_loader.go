package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/signalsfoundry/wallstream/model"
)

// ErrNoWaypoints is returned by a WaypointStore that has never been saved to.
var ErrNoWaypoints = errors.New("no saved waypoints")

// WaypointStore persists the ordered list of waypoint pairs.
type WaypointStore interface {
	Load(ctx context.Context) ([]model.WaypointPair, error)
	Save(ctx context.Context, pairs []model.WaypointPair) error
}

// ParseWaypoints reads the text waypoint format:
//
//	=Kerbin
//	-0.097, -74.557, 70
//	-0.098, -74.560, 70
//
// A line starting with "=" names the body for the following lines and resets
// the running position. Every other non-blank line is "lat, long, alt"; each
// one after the first in a run closes a wall from the previous position.
// Walls read from a file are collidable.
//
// Parsing stops at the first malformed line and returns no pairs at all.
func ParseWaypoints(r io.Reader) ([]model.WaypointPair, error) {
	var (
		pairs    []model.WaypointPair
		bodyName string
		prev     model.GeoCoordinate
		havePrev bool
		lineNo   int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "=") {
			bodyName = strings.TrimSpace(line[1:])
			if bodyName == "" {
				return nil, fmt.Errorf("ParseWaypoints: line %d: empty body name", lineNo)
			}
			havePrev = false
			continue
		}
		if bodyName == "" {
			return nil, fmt.Errorf("ParseWaypoints: line %d: waypoint before any body line", lineNo)
		}

		coord, err := parseCoordinate(line)
		if err != nil {
			return nil, fmt.Errorf("ParseWaypoints: line %d: %w", lineNo, err)
		}
		if havePrev {
			pairs = append(pairs, model.WaypointPair{
				BodyName:   bodyName,
				Start:      prev,
				End:        coord,
				Collidable: true,
			})
		}
		prev = coord
		havePrev = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ParseWaypoints: read failed: %w", err)
	}
	return pairs, nil
}

func parseCoordinate(line string) (model.GeoCoordinate, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return model.GeoCoordinate{}, fmt.Errorf("want 3 comma-separated values, got %d", len(fields))
	}
	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return model.GeoCoordinate{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	if vals[0] < -90 || vals[0] > 90 {
		return model.GeoCoordinate{}, fmt.Errorf("latitude %v out of range", vals[0])
	}
	return model.GeoCoordinate{Latitude: vals[0], Longitude: vals[1], Altitude: vals[2]}, nil
}

// WriteWaypoints writes pairs in the format ParseWaypoints reads: a body line
// followed by the start and end of every pair. Floats are written with the
// shortest representation that round-trips exactly.
func WriteWaypoints(w io.Writer, pairs []model.WaypointPair) error {
	bw := bufio.NewWriter(w)
	for _, p := range pairs {
		if p.BodyName == "" {
			return fmt.Errorf("WriteWaypoints: pair with empty body name")
		}
		if _, err := fmt.Fprintf(bw, "=%s\n%s\n%s\n", p.BodyName, formatCoordinate(p.Start), formatCoordinate(p.End)); err != nil {
			return fmt.Errorf("WriteWaypoints: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("WriteWaypoints: %w", err)
	}
	return nil
}

func formatCoordinate(g model.GeoCoordinate) string {
	return strconv.FormatFloat(g.Latitude, 'g', -1, 64) + ", " +
		strconv.FormatFloat(g.Longitude, 'g', -1, 64) + ", " +
		strconv.FormatFloat(g.Altitude, 'g', -1, 64)
}
