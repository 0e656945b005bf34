package sources

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/trailhub/trailsuggest/suggest"
)

const trailDescription = "Trail or nature location"

// trailKeywords mark a feature as an outdoor destination.
var trailKeywords = []string{"trail", "park", "reserve", "nature", "hiking", "mountain", "forest"}

// ParseFeatures converts a provider feature collection into geocoded
// suggestions. Features with no usable name are skipped; every other missing
// field falls back to its zero value. Malformed bodies yield an empty list.
func ParseFeatures(body []byte) []suggest.Suggestion {
	if !gjson.ValidBytes(body) {
		return []suggest.Suggestion{}
	}
	features := gjson.GetBytes(body, "features")
	if !features.IsArray() {
		return []suggest.Suggestion{}
	}

	out := make([]suggest.Suggestion, 0, len(features.Array()))
	features.ForEach(func(_, f gjson.Result) bool {
		if s, ok := parseFeature(f); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}

func parseFeature(f gjson.Result) (suggest.Suggestion, bool) {
	if !f.IsObject() {
		return suggest.Suggestion{}, false
	}
	placeName := strings.TrimSpace(f.Get("place_name").String())
	text := strings.TrimSpace(f.Get("text").String())
	display := displayName(placeName, text)
	if display == "" {
		return suggest.Suggestion{}, false
	}

	name := text
	if name == "" {
		name = display
	}

	s := suggest.Suggestion{
		Kind:        suggest.KindGeocoded,
		ID:          f.Get("id").String(),
		Name:        name,
		DisplayName: display,
		Location:    placeName,
		Coordinates: parseCenter(f.Get("center")),
	}

	placeTypes := stringList(f.Get("place_type"))
	switch {
	case isTrailLike(f.Get("properties.category").String(), strings.Join(placeTypes, " "), text):
		s.Tags = []string{"Trail", "Nature"}
		s.Description = trailDescription
	case contains(placeTypes, "address"):
		s.Tags = []string{"Address"}
	case contains(placeTypes, "poi"):
		s.Tags = []string{"POI"}
	default:
		s.Tags = []string{"Location"}
	}
	return s, true
}

// ParsePlace extracts the first feature of a reverse geocoding response.
func ParsePlace(body []byte) (Place, bool) {
	if !gjson.ValidBytes(body) {
		return Place{}, false
	}
	first := gjson.GetBytes(body, "features.0")
	if !first.IsObject() {
		return Place{}, false
	}
	placeName := strings.TrimSpace(first.Get("place_name").String())
	name := displayName(placeName, strings.TrimSpace(first.Get("text").String()))
	if name == "" {
		return Place{}, false
	}
	place := Place{Name: name, PlaceName: placeName}
	if c := parseCenter(first.Get("center")); c != nil {
		place.Coordinates = *c
	}
	return place, true
}

// displayName keeps the first two comma separated segments of the full
// place name, e.g. "Lion's Head, Cape Town".
func displayName(placeName, text string) string {
	if placeName == "" {
		return text
	}
	parts := strings.Split(placeName, ",")
	kept := make([]string, 0, 2)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
		if len(kept) == 2 {
			break
		}
	}
	if len(kept) == 0 {
		return text
	}
	return strings.Join(kept, ", ")
}

func parseCenter(v gjson.Result) *suggest.Coordinates {
	if !v.IsArray() {
		return nil
	}
	arr := v.Array()
	if len(arr) < 2 || arr[0].Type != gjson.Number || arr[1].Type != gjson.Number {
		return nil
	}
	return &suggest.Coordinates{Lon: arr[0].Float(), Lat: arr[1].Float()}
}

func isTrailLike(fields ...string) bool {
	for _, field := range fields {
		lower := strings.ToLower(field)
		if lower == "" {
			continue
		}
		for _, kw := range trailKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func stringList(v gjson.Result) []string {
	if v.Type == gjson.String {
		return []string{v.String()}
	}
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		if item.Type == gjson.String {
			out = append(out, item.String())
		}
	}
	return out
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
