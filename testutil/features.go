package testutil

import "encoding/json"

// Feature is a geocoding feature as the provider returns it.
type Feature struct {
	PlaceName string         `json:"place_name,omitempty"`
	Text      string         `json:"text,omitempty"`
	Center    []float64      `json:"center,omitempty"`
	PlaceType []string       `json:"place_type,omitempty"`
	Props     map[string]any `json:"properties,omitempty"`
}

// FeatureCollection renders features as a provider response body.
func FeatureCollection(features ...Feature) string {
	if features == nil {
		features = []Feature{}
	}
	body, _ := json.Marshal(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
	return string(body)
}

// Place is a shorthand for a point of interest feature named name.
func Place(name string) Feature {
	return Feature{
		PlaceName: name + ", Cape Town, Western Cape, South Africa",
		Text:      name,
		Center:    []float64{18.42, -33.92},
		PlaceType: []string{"poi"},
	}
}
