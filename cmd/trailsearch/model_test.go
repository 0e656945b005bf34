package main

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/match"
	"github.com/trailhub/trailsuggest/suggest"
	"github.com/trailhub/trailsuggest/trails"
)

func newTestModel(t *testing.T) (model, *navigation) {
	t.Helper()
	idx := match.NewIndex([]trails.Record{
		{ID: "1", Name: "Lion's Head", DistanceKm: trails.Float(5.5)},
		{ID: "2", Name: "Lions Battery"},
		{ID: "3", Name: "Pipe Track"},
	})
	updates := make(chan session.Snapshot, 1)
	nav := &navigation{}
	sess := session.New(nil, session.NavigatorFunc(func(q string) { nav.query = q }), idx, session.Options{
		Debounce: time.Hour,
		OnChange: latest(updates),
	})
	t.Cleanup(func() { sess.Close() })
	return newModel(sess, updates), nav
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(model)
}

func deliver(t *testing.T, m model) model {
	t.Helper()
	select {
	case snap := <-m.updates:
		next, cmd := m.Update(snapshotMsg(snap))
		require.NotNil(t, cmd)
		return next.(model)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return m
	}
}

func TestTypingShowsLocalPreview(t *testing.T) {
	m, _ := newTestModel(t)

	m = typeText(t, m, "lion")
	assert.Equal(t, "lion", m.input.Value())

	m = deliver(t, m)
	assert.Equal(t, session.StateQuerying, m.snap.State)
	require.Len(t, m.snap.Suggestions, 2)

	view := m.View()
	assert.Contains(t, view, "Lion's Head")
	assert.Contains(t, view, "Lions Battery")
	assert.Contains(t, view, "searching...")
	assert.NotContains(t, view, "Pipe Track")
}

func TestSelectionAndTabComplete(t *testing.T) {
	m, _ := newTestModel(t)
	m = deliver(t, typeText(t, m, "lion"))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(model)
	assert.Equal(t, 1, m.selected)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(model)
	assert.Equal(t, 1, m.selected, "selection stops at the last suggestion")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(model)
	assert.Equal(t, "Lions Battery", m.input.Value())
	assert.Equal(t, 0, m.selected)

	m = deliver(t, m)
	require.Len(t, m.snap.Suggestions, 1)
	assert.Equal(t, "Lions Battery", m.snap.Suggestions[0].DisplayName)
}

func TestEnterSubmitsAndQuits(t *testing.T) {
	m, nav := newTestModel(t)
	m = typeText(t, m, "pipe track")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, "pipe track", nav.query)
	assert.Equal(t, session.StateEmpty, m.sess.Snapshot().State)
}

func TestEnterIgnoresBlankQuery(t *testing.T) {
	m, nav := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, nav.query)
}

func TestEscClears(t *testing.T) {
	m, _ := newTestModel(t)
	m = deliver(t, typeText(t, m, "lion"))

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = deliver(t, next.(model))

	assert.Empty(t, m.input.Value())
	assert.False(t, m.snap.Visible)
	assert.Equal(t, session.StateEmpty, m.snap.State)
}

func TestLatestKeepsNewestSnapshot(t *testing.T) {
	ch := make(chan session.Snapshot, 1)
	push := latest(ch)

	push(session.Snapshot{Query: "li"})
	push(session.Snapshot{Query: "lio"})
	push(session.Snapshot{Query: "lion"})

	got := <-ch
	assert.Equal(t, "lion", got.Query)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %q", extra.Query)
	default:
	}
}

func TestRenderSuggestion(t *testing.T) {
	trail := match.Project(trails.Record{
		Name:       "Pipe Track",
		Difficulty: "Easy",
		DistanceKm: trails.Float(6),
		Tags:       []string{"Views", "Family", "Shade", "Dogs"},
		Status:     trails.StatusClosed,
	})
	line := renderSuggestion(trail, true)
	assert.Contains(t, line, "> ")
	assert.Contains(t, line, "Pipe Track")
	assert.Contains(t, line, "6 km")
	assert.Contains(t, line, "Views, Family, Shade")
	assert.NotContains(t, line, "Dogs")
	assert.Contains(t, line, "closed")

	place := suggest.Suggestion{
		Kind:        suggest.KindGeocoded,
		DisplayName: "Kirstenbosch, Cape Town",
		Location:    "Kirstenbosch, Cape Town, Western Cape, South Africa",
		Tags:        []string{"POI"},
	}
	line = renderSuggestion(place, false)
	assert.Contains(t, line, "◎")
	assert.Contains(t, line, "Western Cape")
}

func TestPlainLine(t *testing.T) {
	trail := match.Project(trails.Record{Name: "Pipe Track", DistanceKm: trails.Float(6)})
	assert.Equal(t, "trail\tPipe Track\t6 km", plainLine(trail))

	place := suggest.Suggestion{Kind: suggest.KindGeocoded, DisplayName: "Sea Point, Cape Town", Location: "Sea Point, Cape Town, South Africa"}
	assert.Equal(t, "geocoded\tSea Point, Cape Town\tSea Point, Cape Town, South Africa", plainLine(place))
}
