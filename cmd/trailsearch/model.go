package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/suggest"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("35"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tagStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	closedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type snapshotMsg session.Snapshot

// navigation records the target of a submitted search.
type navigation struct {
	query string
}

type model struct {
	sess     *session.Session
	updates  <-chan session.Snapshot
	input    textinput.Model
	snap     session.Snapshot
	selected int
	err      error
}

func newModel(sess *session.Session, updates <-chan session.Snapshot) model {
	ti := textinput.New()
	ti.Placeholder = "Search trails or places..."
	ti.Focus()
	ti.CharLimit = 120
	ti.Width = 48

	return model{
		sess:    sess,
		updates: updates,
		input:   ti,
	}
}

// latest returns an OnChange callback that keeps only the newest snapshot
// in ch, which must have a capacity of one.
func latest(ch chan session.Snapshot) func(session.Snapshot) {
	return func(s session.Snapshot) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}
}

func waitForSnapshot(updates <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForSnapshot(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		if m.selected >= len(m.snap.Suggestions) {
			m.selected = 0
		}
		return m, waitForSnapshot(m.updates)

	case tea.WindowSizeMsg:
		if msg.Width > 8 {
			m.input.Width = msg.Width - 8
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.input.SetValue("")
			m.selected = 0
			m.err = m.sess.Clear()
			return m, nil
		case "up":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down":
			if m.selected < len(m.snap.Suggestions)-1 {
				m.selected++
			}
			return m, nil
		case "tab":
			if m.snap.Visible && m.selected < len(m.snap.Suggestions) {
				m.input.SetValue(m.snap.Suggestions[m.selected].DisplayName)
				m.input.CursorEnd()
				m.selected = 0
				m.err = m.sess.UpdateQuery(m.input.Value())
			}
			return m, nil
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query == "" {
				return m, nil
			}
			m.err = m.sess.SubmitSearch(query)
			if m.err != nil {
				return m, nil
			}
			return m, tea.Quit
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if after := m.input.Value(); after != before {
			m.selected = 0
			m.err = m.sess.UpdateQuery(after)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("trailsearch"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(closedStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	case m.snap.State == session.StateQuerying:
		b.WriteString(dimStyle.Render("searching..."))
		b.WriteString("\n")
	case m.snap.State == session.StateReady && !m.snap.Visible:
		b.WriteString(dimStyle.Render("no matches"))
		b.WriteString("\n")
	}

	if m.snap.Visible {
		for i, s := range m.snap.Suggestions {
			b.WriteString(renderSuggestion(s, i == m.selected))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("enter: search • tab: complete • ↑/↓: select • esc: clear • ctrl+c: quit"))
	return b.String()
}

func renderSuggestion(s suggest.Suggestion, selected bool) string {
	marker := "  "
	name := s.DisplayName
	if selected {
		marker = "> "
		name = selectedStyle.Render(name)
	}

	icon := "◎"
	if s.IsTrail() {
		icon = "▲"
	}

	var details []string
	if s.IsTrail() {
		for _, label := range []string{s.Difficulty, s.DistanceLabel, s.ElevationLabel} {
			if label != "" {
				details = append(details, label)
			}
		}
	} else if s.Location != "" && s.Location != s.DisplayName {
		details = append(details, s.Location)
	}

	line := fmt.Sprintf("%s%s %s", marker, icon, name)
	if len(details) > 0 {
		line += " " + dimStyle.Render(strings.Join(details, " · "))
	}
	if tags := s.TagPreview(); len(tags) > 0 {
		line += " " + tagStyle.Render("["+strings.Join(tags, ", ")+"]")
	}
	if s.Status == suggest.StatusClosed {
		line += " " + closedStyle.Render("closed")
	}
	return line
}
