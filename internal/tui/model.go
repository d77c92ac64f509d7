// Package tui is the interactive live countdown shown by "prayer-clock watch".
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smokyabdulrahman/prayer-clock/internal/countdown"
	"github.com/smokyabdulrahman/prayer-clock/internal/prayer"
	"github.com/smokyabdulrahman/prayer-clock/internal/service"
	"github.com/smokyabdulrahman/prayer-clock/internal/timeofday"
)

const (
	maxBarWidth = 48
	minBarWidth = 10
)

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Options configures the model's presentation.
type Options struct {
	Language   string
	TimeLayout string
}

// Model renders the current day and the countdown to the next prayer.
type Model struct {
	feed *Feed
	opts Options

	day   *service.Day
	state countdown.State
	ticks int
	err   error

	bar      progress.Model
	quitting bool
}

// New creates a model that reads updates from feed.
func New(feed *Feed, day *service.Day, opts Options) *Model {
	if opts.TimeLayout == "" {
		opts.TimeLayout = "15:04"
	}
	return &Model{
		feed: feed,
		opts: opts,
		day:  day,
		bar: progress.New(
			progress.WithGradient(string(colorPrimary), string(colorAccent)),
			progress.WithoutPercentage(),
			progress.WithWidth(maxBarWidth),
		),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.feed.Wait()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			m.feed.Close()
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(maxBarWidth, max(minBarWidth, msg.Width-frameStyle.GetHorizontalFrameSize()-6))
		return m, nil

	case TickMsg:
		m.state = msg.State
		m.ticks++
	case RolloverMsg:
		// The following tick carries the new interval.
	case DayMsg:
		m.day = msg.Day
		m.err = nil
	case ErrMsg:
		m.err = msg.Err
	default:
		return m, nil
	}
	return m, m.feed.Wait()
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.day == nil || m.ticks == 0 {
		return frameStyle.Render(subtitleStyle.Render("Loading prayer times..."))
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.prayers())
	b.WriteString(m.countdown())
	if m.err != nil {
		b.WriteString("\n" + warnStyle.Render("refresh failed: "+m.err.Error()))
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf("%s %s", keys.Quit.Help().Key, keys.Quit.Help().Desc)))
	return frameStyle.Render(b.String())
}

func (m *Model) header() string {
	date := m.day.Schedule.Date()
	parts := []string{m.day.Location.Label(), date.Format("Mon 02 Jan 2006")}
	if m.day.Hijri != nil {
		h := m.day.Hijri.Format()
		if m.opts.Language == "ar" {
			h = m.day.Hijri.FormatArabic()
		}
		if h != "" {
			parts = append(parts, h)
		}
	}
	return titleStyle.Render("Prayer Times") + "\n" + subtitleStyle.Render(strings.Join(parts, " · "))
}

func (m *Model) prayers() string {
	sched := m.day.Schedule
	now := timeofday.Of(m.state.Now.In(sched.Location()))
	statuses := prayer.Statuses(sched, now)

	var rows []string
	for i, p := range sched.Prayers() {
		marker, style := "  ", upcomingStyle
		switch statuses[i] {
		case prayer.StatusNext:
			marker, style = "▸ ", nextStyle
		case prayer.StatusPassed:
			style = passedStyle
		}
		name := lipgloss.NewStyle().Width(10).Render(p.Name.Label(m.opts.Language))
		at := p.Time.On(sched.Date(), 0).Format(m.opts.TimeLayout)
		rows = append(rows, style.Render(marker+name+at))
	}
	return strings.Join(rows, "\n")
}

func (m *Model) countdown() string {
	st := m.state
	next := st.Interval.Next.Name.Label(m.opts.Language)
	line := countdownStyle.Render(fmt.Sprintf("%s in %s", next, timeofday.FormatDuration(st.Remaining)))
	if !st.ProgressKnown {
		return line + "\n"
	}
	return fmt.Sprintf("%s\n%s %s\n", line, m.bar.ViewAs(st.Progress/100), subtitleStyle.Render(fmt.Sprintf("%3d%%", int(st.Progress))))
}
