// Package tui provides a terminal browser for archive channels: a list of
// subchannel entries with their stream properties and a parameter screen
// for choosing the FFT length before a session starts.
package tui

import (
	"fmt"
	"strings"
	"time"

	"sti/internal/drf"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)
)

// ScreenType selects the active screen.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ParamScreen
)

// entryInfo is the display snapshot of one channel entry.
type entryInfo struct {
	Name       string
	SampleRate float64
	NumSub     int
	Bounds     drf.Bounds
	FirstTime  time.Time
	Duration   time.Duration
	FloatData  bool
	Precision  int
}

// Selection is the operator's choice when the browser exits via Enter.
type Selection struct {
	Entry     string
	FFTLength int
}

// ChannelListModel is the Bubble Tea model for browsing archive entries.
type ChannelListModel struct {
	acc           *drf.Accessor
	entries       []entryInfo
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	fftLengths []int
	fftIndex   int

	selection *Selection
}

// NewChannelListModel builds the browser over an open accessor.
func NewChannelListModel(acc *drf.Accessor) ChannelListModel {
	return ChannelListModel{
		acc:          acc,
		activeScreen: ListScreen,
		fftLengths:   []int{256, 512, 1024, 2048, 4096, 8192},
		fftIndex:     2, // 1024
	}
}

// Selection returns the operator's confirmed choice, or nil if the browser
// was quit without one.
func (m ChannelListModel) Selection() *Selection {
	return m.selection
}

// Init implements tea.Model.
func (m ChannelListModel) Init() tea.Cmd {
	return m.fetchEntries
}

type entriesMsg struct {
	entries []entryInfo
}

type errMsg struct {
	err error
}

// fetchEntries resolves every subchannel entry's display snapshot.
func (m ChannelListModel) fetchEntries() tea.Msg {
	var out []entryInfo
	for _, name := range m.acc.Entries() {
		channel, _ := drf.SplitEntry(name)
		props, err := m.acc.Properties(channel)
		if err != nil {
			return errMsg{err}
		}
		rate, err := m.acc.SampleRate(channel)
		if err != nil {
			return errMsg{err}
		}
		bnds, err := m.acc.Bounds(channel)
		if err != nil {
			return errMsg{err}
		}
		firstTime, err := m.acc.SampleToDatetime(channel, bnds.First)
		if err != nil {
			return errMsg{err}
		}
		firstSec, err := m.acc.SampleToTime(channel, bnds.First)
		if err != nil {
			return errMsg{err}
		}
		lastSec, err := m.acc.SampleToTime(channel, bnds.Last)
		if err != nil {
			return errMsg{err}
		}

		sr, _ := rate.Float64()
		out = append(out, entryInfo{
			Name:       name,
			SampleRate: sr,
			NumSub:     props.NumSubchannels,
			Bounds:     bnds,
			FirstTime:  firstTime,
			Duration:   time.Duration((lastSec - firstSec) * float64(time.Second)),
			FloatData:  props.FloatSamples,
			Precision:  props.PrecisionBits,
		})
	}
	return entriesMsg{entries: out}
}

// Update implements tea.Model.
func (m ChannelListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
			if len(m.entries) > 0 {
				m.viewport.SetContent(m.renderEntries())
			}
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case entriesMsg:
		m.entries = msg.entries
		if m.ready {
			m.viewport.SetContent(m.renderEntries())
		}

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}

		if m.activeScreen == ListScreen {
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.selectedIndex > 0 {
					m.selectedIndex--
					m.viewport.SetContent(m.renderEntries())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.selectedIndex < len(m.entries)-1 {
					m.selectedIndex++
					m.viewport.SetContent(m.renderEntries())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				if len(m.entries) > 0 {
					m.activeScreen = ParamScreen
					m.viewport.SetContent(m.renderParams())
				}
			}
		} else {
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
				m.activeScreen = ListScreen
				m.viewport.SetContent(m.renderEntries())

			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.fftIndex > 0 {
					m.fftIndex--
					m.viewport.SetContent(m.renderParams())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.fftIndex < len(m.fftLengths)-1 {
					m.fftIndex++
					m.viewport.SetContent(m.renderParams())
				}

			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				m.selection = &Selection{
					Entry:     m.entries[m.selectedIndex].Name,
					FFTLength: m.fftLengths[m.fftIndex],
				}
				return m, tea.Quit
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m ChannelListModel) View() string {
	if !m.ready {
		return "Opening archive..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string
	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Archive Channels")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Parameters • q: Quit")
	} else {
		title = titleStyle.Render("Session Parameters")
		help = infoStyle.Render("↑/↓: FFT Length • Enter: Start • Esc: Back • q: Quit")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m ChannelListModel) renderEntries() string {
	if len(m.entries) == 0 {
		return "No channels found in this archive."
	}

	var sb strings.Builder
	for i, e := range m.entries {
		format := fmt.Sprintf("int%d", e.Precision)
		if e.FloatData {
			format = "float"
		}

		info := fmt.Sprintf("%s\n", e.Name)
		info += fmt.Sprintf("    %.6g Hz, %d subchannel(s), %s samples\n",
			e.SampleRate, e.NumSub, format)
		info += fmt.Sprintf("    samples [%d, %d], starts %s, spans %s\n",
			e.Bounds.First, e.Bounds.Last,
			e.FirstTime.Format(time.RFC3339), e.Duration.Round(time.Second))

		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m ChannelListModel) renderParams() string {
	var sb strings.Builder
	e := m.entries[m.selectedIndex]

	sb.WriteString(fmt.Sprintf("Entry: %s\n\n", e.Name))
	sb.WriteString("FFT Length:\n")
	for i, n := range m.fftLengths {
		marker := " "
		if i == m.fftIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %d bins (%.3g Hz resolution)\n",
			marker, n, e.SampleRate/float64(n))
		if i == m.fftIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// StartChannelListUI runs the browser and returns the operator's selection,
// or nil when they quit without starting a session.
func StartChannelListUI(acc *drf.Accessor) (*Selection, error) {
	p := tea.NewProgram(NewChannelListModel(acc), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	if m, ok := final.(ChannelListModel); ok {
		return m.Selection(), nil
	}
	return nil, nil
}
