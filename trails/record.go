// Package trails holds the trail record model and the sources a corpus can
// be loaded from (JSON payloads, YAML/JSON files, SQLite).
package trails

import "strings"

// Status is the open/closed state of a trail.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ParseStatus maps free-form input to a Status. Anything other than
// "closed" is open.
func ParseStatus(value string) Status {
	if strings.EqualFold(strings.TrimSpace(value), string(StatusClosed)) {
		return StatusClosed
	}
	return StatusOpen
}

// Location is a point on the map.
type Location struct {
	Lat float64
	Lon float64
}

// Record is a single trail as supplied by the host application.
// Only Name takes part in matching; a nil Location never excludes a record.
type Record struct {
	ID             string
	Name           string
	Description    string
	Difficulty     string
	Region         string
	DistanceKm     *float64
	ElevationGainM *float64
	Tags           []string
	Status         Status
	Location       *Location
}

// Float returns a pointer to v, for building records by hand.
func Float(v float64) *float64 {
	return &v
}
