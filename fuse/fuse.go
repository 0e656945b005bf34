// Package fuse merges ranked trail matches with geocoded results into the
// single list a client displays.
package fuse

import "github.com/trailhub/trailsuggest/suggest"

// Config controls how many suggestions survive a merge.
type Config struct {
	// MaxTotal caps the merged list.
	MaxTotal int
	// GeocodedMax caps geocoded entries when local matches are weak.
	GeocodedMax int
	// GeocodedReduced caps geocoded entries once local matches are strong.
	GeocodedReduced int
	// StrongLocalThreshold is the local match count at which the reduced
	// geocoded cap applies.
	StrongLocalThreshold int
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxTotal:             8,
		GeocodedMax:          5,
		GeocodedReduced:      3,
		StrongLocalThreshold: 5,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxTotal <= 0 {
		c.MaxTotal = def.MaxTotal
	}
	if c.GeocodedMax <= 0 {
		c.GeocodedMax = def.GeocodedMax
	}
	if c.GeocodedReduced <= 0 {
		c.GeocodedReduced = def.GeocodedReduced
	}
	if c.GeocodedReduced > c.GeocodedMax {
		c.GeocodedReduced = c.GeocodedMax
	}
	if c.StrongLocalThreshold <= 0 {
		c.StrongLocalThreshold = def.StrongLocalThreshold
	}
	return c
}

// GeocodedBudget returns how many geocoded entries may join localCount trail
// matches.
func GeocodedBudget(localCount int, cfg Config) int {
	cfg = cfg.normalized()
	if localCount >= cfg.StrongLocalThreshold {
		return cfg.GeocodedReduced
	}
	return cfg.GeocodedMax
}

// Merge concatenates trail matches with budget-capped geocoded matches,
// keeps the first occurrence of each DisplayName and truncates to MaxTotal.
// Trail entries come first, so they win every name collision.
func Merge(trail, geocoded []suggest.Suggestion, cfg Config) []suggest.Suggestion {
	cfg = cfg.normalized()

	if budget := GeocodedBudget(len(trail), cfg); len(geocoded) > budget {
		geocoded = geocoded[:budget]
	}

	out := make([]suggest.Suggestion, 0, min(cfg.MaxTotal, len(trail)+len(geocoded)))
	seen := make(map[string]struct{}, cap(out))

	for _, group := range [][]suggest.Suggestion{trail, geocoded} {
		for _, s := range group {
			if len(out) >= cfg.MaxTotal {
				return suggest.Clone(out)
			}
			if _, dup := seen[s.DisplayName]; dup {
				continue
			}
			seen[s.DisplayName] = struct{}{}
			out = append(out, s)
		}
	}
	return suggest.Clone(out)
}
