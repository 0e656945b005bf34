package trails

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON indicates a trail payload that is not valid JSON or not a
// list of trails.
var ErrInvalidJSON = errors.New("invalid trails payload")

// ParseJSON decodes a trail list. The payload is either an array of trail
// objects or an object with a "trails" array. Non-object entries are skipped
// and malformed optional fields fall back to their zero value.
func ParseJSON(data []byte) ([]Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	root := gjson.ParseBytes(data)
	if root.IsObject() {
		root = root.Get("trails")
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of trails", ErrInvalidJSON)
	}

	records := make([]Record, 0, len(root.Array()))
	root.ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			records = append(records, parseRecord(value))
		}
		return true
	})
	return records, nil
}

func parseRecord(v gjson.Result) Record {
	rec := Record{
		ID:             firstString(v, "id", "_id"),
		Name:           strings.TrimSpace(v.Get("name").String()),
		Description:    v.Get("description").String(),
		Difficulty:     v.Get("difficulty").String(),
		Region:         firstString(v, "region", "area"),
		DistanceKm:     firstNumber(v, "distanceKm", "distance_km", "distance"),
		ElevationGainM: firstNumber(v, "elevationGainM", "elevation_gain_m", "elevationGain", "elevation"),
		Status:         ParseStatus(v.Get("status").String()),
		Location:       ParseLocation(v.Get("location")),
	}

	tags := v.Get("tags")
	if tags.IsArray() {
		for _, tag := range tags.Array() {
			if tag.Type == gjson.String && tag.String() != "" {
				rec.Tags = append(rec.Tags, tag.String())
			}
		}
	}
	return rec
}

// ParseLocation accepts {latitude, longitude} or the legacy {_lat, _long}
// shape and returns nil for anything else.
func ParseLocation(v gjson.Result) *Location {
	if !v.IsObject() {
		return nil
	}
	lat, okLat := number(v.Get("latitude"))
	lon, okLon := number(v.Get("longitude"))
	if !okLat || !okLon {
		lat, okLat = number(v.Get("_lat"))
		lon, okLon = number(v.Get("_long"))
	}
	if !okLat || !okLon {
		return nil
	}
	return &Location{Lat: lat, Lon: lon}
}

func firstString(v gjson.Result, paths ...string) string {
	for _, path := range paths {
		if r := v.Get(path); r.Exists() && r.Type != gjson.Null {
			return r.String()
		}
	}
	return ""
}

func firstNumber(v gjson.Result, paths ...string) *float64 {
	for _, path := range paths {
		if n, ok := number(v.Get(path)); ok {
			return &n
		}
	}
	return nil
}

func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		n, err := strconv.ParseFloat(strings.TrimSpace(r.String()), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
