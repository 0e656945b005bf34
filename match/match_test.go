package match

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhub/trailsuggest/suggest"
	"github.com/trailhub/trailsuggest/trails"
)

func names(items []suggest.Suggestion) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.DisplayName
	}
	return out
}

func TestMatchBelowThreshold(t *testing.T) {
	corpus := []trails.Record{{Name: "Table Mountain Trail"}, {Name: "T"}}
	for _, q := range []string{"", " ", "T", "  t  ", "\t\n"} {
		assert.Empty(t, Match(q, corpus), "query %q", q)
		assert.Empty(t, NewIndex(corpus).Match(q), "index query %q", q)
	}
}

func TestMatchRanking(t *testing.T) {
	corpus := []trails.Record{
		{Name: "Zed Trail"},
		{Name: "A Trail"},
		{Name: "Trail A"},
	}

	assert.Equal(t, []string{"Trail A", "A Trail", "Zed Trail"}, names(Match("Trail", corpus)))
	assert.Equal(t, []string{"Trail A"}, names(Match("Trail A", corpus)))
	assert.Equal(t, []string{"Trail A"}, names(Match("trail a", corpus)))
}

func TestMatchExactBeatsPrefixBeatsShorter(t *testing.T) {
	corpus := []trails.Record{
		{Name: "Pipe Track Extended Loop"},
		{Name: "The Pipe"},
		{Name: "Pipe Track"},
		{Name: "pipe"},
	}

	got := names(Match("PIPE", corpus))
	assert.Equal(t, []string{"pipe", "Pipe Track", "Pipe Track Extended Loop", "The Pipe"}, got)
}

func TestMatchStableForEqualLength(t *testing.T) {
	corpus := []trails.Record{{Name: "Red Loop"}, {Name: "Big Loop"}, {Name: "Old Loop"}}
	assert.Equal(t, []string{"Red Loop", "Big Loop", "Old Loop"}, names(Match("loop", corpus)))
}

func TestMatchSkipsNamelessRecords(t *testing.T) {
	corpus := []trails.Record{{Name: ""}, {Description: "trail without a name"}, {Name: "Trail"}}
	assert.Equal(t, []string{"Trail"}, names(Match("tr", corpus)))
}

func TestMatchLocationShapesNeverExclude(t *testing.T) {
	records, err := trails.ParseJSON([]byte(`[
		{"name": "Ridge One", "location": {"latitude": -33.9, "longitude": 18.4}},
		{"name": "Ridge Two", "location": {"_lat": -34.1, "_long": 18.6}},
		{"name": "Ridge Three", "location": null},
		{"name": "Ridge Four"}
	]`))
	require.NoError(t, err)

	got := Match("ridge", records)
	require.Len(t, got, 4)

	byName := map[string]suggest.Suggestion{}
	for _, s := range got {
		assert.Equal(t, suggest.KindTrail, s.Kind)
		byName[s.DisplayName] = s
	}
	assert.Equal(t, &suggest.Coordinates{Lon: 18.4, Lat: -33.9}, byName["Ridge One"].Coordinates)
	assert.Equal(t, &suggest.Coordinates{Lon: 18.6, Lat: -34.1}, byName["Ridge Two"].Coordinates)
	assert.Nil(t, byName["Ridge Three"].Coordinates)
	assert.Nil(t, byName["Ridge Four"].Coordinates)
}

func TestMatchProjectionScenario(t *testing.T) {
	corpus := []trails.Record{{
		Name:       "Table Mountain Trail",
		Difficulty: "Moderate",
		DistanceKm: trails.Float(5.2),
	}}

	got := Match("Table", corpus)
	require.Len(t, got, 1)

	s := got[0]
	assert.Equal(t, suggest.KindTrail, s.Kind)
	assert.Equal(t, "Table Mountain Trail", s.DisplayName)
	assert.Equal(t, "5.2 km", s.DistanceLabel)
	assert.Equal(t, "", s.ElevationLabel)
	assert.Equal(t, DefaultDescription, s.Description)
	assert.Equal(t, suggest.StatusOpen, s.Status)
	assert.Equal(t, "Moderate", s.Difficulty)
}

func TestProjectClosedAndElevation(t *testing.T) {
	s := Project(trails.Record{
		Name:           "Skeleton Gorge",
		Description:    "Ladders",
		ElevationGainM: trails.Float(650),
		Status:         trails.StatusClosed,
		Tags:           []string{"Ladders", "Forest", "Waterfall", "Steep"},
	})
	assert.Equal(t, "650 m", s.ElevationLabel)
	assert.Equal(t, "", s.DistanceLabel)
	assert.Equal(t, "Ladders", s.Description)
	assert.Equal(t, suggest.StatusClosed, s.Status)
	assert.Len(t, s.TagPreview(), 3)
}

func TestIndexAgreesWithLinearMatch(t *testing.T) {
	corpus := []trails.Record{
		{Name: "Lion's Head"},
		{Name: "Lion's Head Sunset"},
		{Name: "Head of the Valley"},
		{Name: "Chapman's Peak"},
		{Name: "Ëlandsberg Pass"},
		{Name: ""},
		{Name: "Peak to Peak"},
	}
	idx := NewIndex(corpus)
	assert.Equal(t, len(corpus), idx.Len())

	for _, q := range []string{"head", "HEAD", "peak", "pe", "ëlands", "ELANDS", "lion's head", "zz", "a"} {
		assert.Equal(t, Match(q, corpus), idx.Match(q), "query %q", q)
	}
}

func TestIndexIsASnapshot(t *testing.T) {
	corpus := []trails.Record{{Name: "Elephant's Eye"}}
	idx := NewIndex(corpus)
	corpus[0].Name = "Mutated"

	assert.Equal(t, []string{"Elephant's Eye"}, names(idx.Match("eye")))
	assert.Greater(t, NewIndex(nil).Version(), idx.Version())

	var nilIdx *Index
	assert.Nil(t, nilIdx.Match("eye"))
	assert.Zero(t, nilIdx.Len())
}

func TestPreviewCaps(t *testing.T) {
	var corpus []trails.Record
	for i := 0; i < 10; i++ {
		corpus = append(corpus, trails.Record{Name: fmt.Sprintf("Loop %d", i)})
	}
	all := Match("loop", corpus)
	require.Len(t, all, 10)
	assert.Len(t, Preview(all, DefaultPreviewLimit), 6)
	assert.Len(t, Preview(all[:2], DefaultPreviewLimit), 2)
}
