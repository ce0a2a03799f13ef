package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/420247jake/the-mind/internal/api"
	"github.com/420247jake/the-mind/internal/scene"
)

// MaxListed caps the brightest-thoughts list.
const MaxListed = 8

// Source is what the model polls.
type Source interface {
	Frame(ctx context.Context) (scene.Frame, error)
	Health(ctx context.Context) (api.HealthResponse, error)
}

type frameMsg struct {
	frame  scene.Frame
	health api.HealthResponse
}

type errMsg struct{ err error }

type tickMsg time.Time

type styles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	err    lipgloss.Style
	bright lipgloss.Style
	dim    lipgloss.Style
	box    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		bright: lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		box:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// Model is the bubbletea model of the watch view.
type Model struct {
	source   Source
	interval time.Duration
	timeout  time.Duration

	frame  scene.Frame
	health api.HealthResponse
	loaded bool
	err    error
	width  int
	styles styles
}

// New creates a model polling source every interval.
func New(source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return Model{
		source:   source,
		interval: interval,
		timeout:  2 * time.Second,
		styles:   defaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.fetch
}

func (m Model) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	f, err := m.source.Frame(ctx)
	if err != nil {
		return errMsg{err}
	}
	h, err := m.source.Health(ctx)
	if err != nil {
		return errMsg{err}
	}
	return frameMsg{frame: f, health: h}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case frameMsg:
		m.frame = msg.frame
		m.health = msg.health
		m.loaded = true
		m.err = nil
		return m, m.tick()

	case errMsg:
		// Keep showing the last frame.
		m.err = msg.err
		return m, m.tick()

	case tickMsg:
		return m, m.fetch
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.title.Render("the mind"))
	b.WriteString("\n\n")

	if !m.loaded {
		if m.err != nil {
			b.WriteString(s.err.Render("error: " + m.err.Error()))
		} else {
			b.WriteString(s.dim.Render("connecting..."))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.overlayLines())
	b.WriteString("\n")
	box := s.box
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	b.WriteString(box.Render(m.brightest()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(s.err.Render("stale: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(s.dim.Render("q quit  r refresh"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) statusLine() string {
	s := m.styles
	f := m.frame

	status := s.ok.Render(m.health.Status)
	if m.health.Status != "ok" {
		status = s.warn.Render(m.health.Status)
	}
	return fmt.Sprintf("%s %s  %s %s  %s %d/%d  %s %d  %s %s",
		s.label.Render("health"), status,
		s.label.Render("mode"), f.Mode,
		s.label.Render("thoughts"), len(f.Thoughts), f.TotalCount,
		s.label.Render("active"), f.Active,
		s.label.Render("version"), f.Version,
	)
}

func (m Model) overlayLines() string {
	s := m.styles
	f := m.frame
	var lines []string

	if f.Timeline.Enabled {
		state := "paused"
		if f.Timeline.Playing {
			state = "playing"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s",
			s.label.Render("timeline"),
			progressBar(f.Timeline.Progress, 20),
			f.Timeline.Current.Format(time.DateTime),
			state,
		))
	}

	if len(f.Path.Path) > 0 {
		steps := make([]string, len(f.Path.Path))
		for i, id := range f.Path.Path {
			if i == f.Path.Cursor {
				steps[i] = s.bright.Render(id)
			} else {
				steps[i] = id
			}
		}
		lines = append(lines, fmt.Sprintf("%s %s", s.label.Render("path"), strings.Join(steps, " → ")))
	}

	sparkState := "off"
	if f.Spark.Enabled {
		sparkState = fmt.Sprintf("%s, %d sparks", f.Spark.Preset.Name, f.Spark.Sparks)
	}
	lines = append(lines, fmt.Sprintf("%s %s", s.label.Render("spark"), sparkState))

	return strings.Join(lines, "\n")
}

func (m Model) brightest() string {
	s := m.styles
	lit := make([]scene.ThoughtFrame, 0, len(m.frame.Thoughts))
	for _, t := range m.frame.Thoughts {
		if t.Brightness > 0 {
			lit = append(lit, t)
		}
	}
	if len(lit) == 0 {
		return s.dim.Render("nothing is glowing")
	}
	sort.Slice(lit, func(i, j int) bool {
		if lit[i].Brightness != lit[j].Brightness {
			return lit[i].Brightness > lit[j].Brightness
		}
		return lit[i].ID < lit[j].ID
	})
	if len(lit) > MaxListed {
		lit = lit[:MaxListed]
	}

	rows := make([]string, len(lit))
	for i, t := range lit {
		rows[i] = fmt.Sprintf("%s %-10s %s", progressBar(t.Brightness, 10), t.Category, t.ID)
	}
	return strings.Join(rows, "\n")
}

func progressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
