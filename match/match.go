// Package match implements local trail-name matching: case-insensitive
// substring containment ranked exact, then prefix, then by name length.
package match

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/trailhub/trailsuggest/suggest"
	"github.com/trailhub/trailsuggest/trails"
)

const (
	// MinQueryLength is the shortest trimmed query that produces matches.
	MinQueryLength = 2
	// DefaultPreviewLimit is how many trail matches are surfaced before
	// remote results arrive.
	DefaultPreviewLimit = 6
	// DefaultDescription fills in trails without a description.
	DefaultDescription = "No description available"
)

type candidate struct {
	record trails.Record
	folded string
	length int
}

// Match returns trail suggestions for query against records. It is a pure
// function of its inputs and returns nil for queries below MinQueryLength.
func Match(query string, records []trails.Record) []suggest.Suggestion {
	folded, ok := prepare(query)
	if !ok {
		return nil
	}

	var cands []candidate
	for _, rec := range records {
		if rec.Name == "" {
			continue
		}
		name := fold(rec.Name)
		if strings.Contains(name, folded) {
			cands = append(cands, newCandidate(rec, name))
		}
	}
	return rank(cands, folded)
}

// Preview returns at most n leading matches.
func Preview(items []suggest.Suggestion, n int) []suggest.Suggestion {
	if n <= 0 {
		n = DefaultPreviewLimit
	}
	if len(items) > n {
		items = items[:n]
	}
	return suggest.Clone(items)
}

// Project converts a trail record into a trail suggestion.
func Project(rec trails.Record) suggest.Suggestion {
	s := suggest.Suggestion{
		Kind:           suggest.KindTrail,
		ID:             rec.ID,
		Name:           rec.Name,
		DisplayName:    rec.Name,
		Description:    rec.Description,
		Location:       rec.Region,
		Difficulty:     rec.Difficulty,
		DistanceLabel:  label(rec.DistanceKm, "km"),
		ElevationLabel: label(rec.ElevationGainM, "m"),
		Tags:           make([]string, len(rec.Tags)),
		Status:         suggest.StatusOpen,
	}
	copy(s.Tags, rec.Tags)
	if s.Description == "" {
		s.Description = DefaultDescription
	}
	if rec.Status == trails.StatusClosed {
		s.Status = suggest.StatusClosed
	}
	if rec.Location != nil {
		s.Coordinates = &suggest.Coordinates{Lon: rec.Location.Lon, Lat: rec.Location.Lat}
	}
	return s
}

func label(v *float64, unit string) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + " " + unit
}

// MeetsThreshold reports whether the trimmed query is long enough to match.
func MeetsThreshold(query string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(query)) >= MinQueryLength
}

// prepare trims and folds the query, reporting whether it clears the
// length threshold.
func prepare(query string) (string, bool) {
	if !MeetsThreshold(query) {
		return "", false
	}
	return fold(strings.TrimSpace(query)), true
}

// fold applies Unicode case folding. cases.Caser is stateful, so a new one
// is created per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

func newCandidate(rec trails.Record, folded string) candidate {
	return candidate{
		record: rec,
		folded: folded,
		length: utf8.RuneCountInString(rec.Name),
	}
}

func tier(name, query string) int {
	switch {
	case name == query:
		return 0
	case strings.HasPrefix(name, query):
		return 1
	default:
		return 2
	}
}

func rank(cands []candidate, query string) []suggest.Suggestion {
	if len(cands) == 0 {
		return nil
	}
	sort.SliceStable(cands, func(i, j int) bool {
		ti, tj := tier(cands[i].folded, query), tier(cands[j].folded, query)
		if ti != tj {
			return ti < tj
		}
		return cands[i].length < cands[j].length
	})

	out := make([]suggest.Suggestion, len(cands))
	for i, c := range cands {
		out[i] = Project(c.record)
	}
	return out
}
