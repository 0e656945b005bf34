// Package suggest defines the suggestion shape shared by the local matcher,
// the geocoder adapter, the merger and the search session.
package suggest

// Kind tags where a suggestion came from.
type Kind string

const (
	// KindTrail is a suggestion projected from a trail record in the corpus.
	KindTrail Kind = "trail"
	// KindGeocoded is a suggestion returned by the remote geocoding provider.
	KindGeocoded Kind = "geocoded"
	// KindLegacy is a plain text suggestion carrying only a name.
	KindLegacy Kind = "legacy"
)

// Status is the open/closed state of a trail.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// MaxTagPreview is the number of tags a client renders per suggestion.
const MaxTagPreview = 3

// Coordinates is a longitude/latitude pair.
type Coordinates struct {
	Lon float64 `json:"lon" msgpack:"lon"`
	Lat float64 `json:"lat" msgpack:"lat"`
}

// Suggestion is a single rankable, displayable search result.
// DisplayName is unique within one suggestion list.
type Suggestion struct {
	Kind           Kind         `json:"kind" msgpack:"kind"`
	ID             string       `json:"id,omitempty" msgpack:"id,omitempty"`
	Name           string       `json:"name" msgpack:"name"`
	DisplayName    string       `json:"display_name" msgpack:"display_name"`
	Description    string       `json:"description,omitempty" msgpack:"description,omitempty"`
	Location       string       `json:"location,omitempty" msgpack:"location,omitempty"`
	Difficulty     string       `json:"difficulty,omitempty" msgpack:"difficulty,omitempty"`
	DistanceLabel  string       `json:"distance_label" msgpack:"distance_label"`
	ElevationLabel string       `json:"elevation_label" msgpack:"elevation_label"`
	Tags           []string     `json:"tags" msgpack:"tags"`
	Coordinates    *Coordinates `json:"coordinates,omitempty" msgpack:"coordinates,omitempty"`
	Status         Status       `json:"status,omitempty" msgpack:"status,omitempty"`
}

// Legacy wraps a bare string as a suggestion.
func Legacy(text string) Suggestion {
	return Suggestion{
		Kind:        KindLegacy,
		Name:        text,
		DisplayName: text,
		Tags:        []string{},
	}
}

// TagPreview returns at most MaxTagPreview tags.
func (s Suggestion) TagPreview() []string {
	if len(s.Tags) <= MaxTagPreview {
		return s.Tags
	}
	return s.Tags[:MaxTagPreview]
}

// IsTrail reports whether the suggestion points at a real trail.
func (s Suggestion) IsTrail() bool {
	return s.Kind == KindTrail
}

// Clone deep-copies a suggestion list so callers can hand it out without
// sharing tag slices or coordinate pointers.
func Clone(items []Suggestion) []Suggestion {
	if items == nil {
		return nil
	}
	out := make([]Suggestion, len(items))
	for i, it := range items {
		if it.Tags != nil {
			tags := make([]string, len(it.Tags))
			copy(tags, it.Tags)
			it.Tags = tags
		}
		if it.Coordinates != nil {
			c := *it.Coordinates
			it.Coordinates = &c
		}
		out[i] = it
	}
	return out
}
