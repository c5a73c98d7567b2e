/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/giftchain/chain"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	cursorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	friendStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FDE047")).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("#F7B801")).
			Padding(0, 2)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	badgeStyles = map[chain.Badge]lipgloss.Style{
		chain.BadgeNow:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801")),
		chain.BadgeDone:     lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		chain.BadgeClickMe:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		chain.BadgeWaiting:  lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
		chain.BadgeSelected: lipgloss.NewStyle().Foreground(lipgloss.Color("#C084FC")),
		chain.BadgeIdle:     lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Reveal key.Binding
	Pass   key.Binding
	Reload key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Reveal, k.Pass, k.Reload, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Reveal, k.Pass},
		{k.Reload, k.Quit},
	}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "pick name")),
		Reveal: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "reveal")),
		Pass:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "pass turn")),
		Reload: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "start over")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// revealDoneMsg commits a paced reveal. gen ties it to the chain it was
// started on.
type revealDoneMsg struct {
	gen uint64
}

// playModel runs one chain in the terminal. It owns its engine the same way
// a Session does, with bubbletea's update loop as the single writer.
type playModel struct {
	cfg    *Config
	roster chain.Roster
	engine *chain.Engine

	cursor int
	delay  time.Duration
	gen    uint64
	status string

	keys keyMap
	help help.Model

	width  int
	height int
}

func newPlayModel(cfg *Config, roster chain.Roster) *playModel {
	return &playModel{
		cfg:    cfg,
		roster: roster,
		engine: chain.New(roster, chain.WithSource(cfg.newSource("play"))),
		delay:  cfg.revealDelay,
		keys:   defaultKeyMap(),
		help:   help.New(),
	}
}

func (m *playModel) Init() tea.Cmd {
	return nil
}

func (m *playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case revealDoneMsg:
		if msg.gen == m.gen && m.engine.Revealing() {
			m.commitReveal()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *playModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.roster.Len()-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Select):
		people := m.roster.People()
		if m.cursor >= len(people) {
			return m, nil
		}
		m.fail(m.engine.Select(people[m.cursor]))

	case key.Matches(msg, m.keys.Reveal):
		return m, m.beginReveal()

	case key.Matches(msg, m.keys.Pass):
		if m.fail(m.engine.PassTurn()) {
			return m, nil
		}
		m.pointAtCurrent()

	case key.Matches(msg, m.keys.Reload):
		m.engine.Load(m.roster)
		m.gen++
		m.cursor = 0
		m.status = "Started over."
	}

	return m, nil
}

func (m *playModel) fail(err error) bool {
	if err == nil {
		return false
	}
	m.status = userMessage(err)
	return true
}

func (m *playModel) beginReveal() tea.Cmd {
	if m.fail(m.engine.BeginReveal()) {
		return nil
	}

	if m.delay <= 0 {
		m.commitReveal()
		return nil
	}

	gen := m.gen
	return tea.Tick(m.delay, func(time.Time) tea.Msg {
		return revealDoneMsg{gen: gen}
	})
}

func (m *playModel) commitReveal() {
	current, _ := m.engine.Current()
	if _, err := m.engine.Reveal(current); err != nil {
		m.fail(err)
		if errors.Is(err, chain.ErrNoAvailableCandidate) {
			errorf("CHAIN: no candidate left to draw for %q", current.Name)
		}
	}
}

func (m *playModel) pointAtCurrent() {
	current, ok := m.engine.Current()
	if !ok {
		return
	}
	for i, p := range m.roster.People() {
		if p.ID == current.ID {
			m.cursor = i
			return
		}
	}
}

func (m *playModel) View() string {
	v := m.engine.View()

	leftWidth, rightWidth := 32, 44
	if m.width > 0 {
		leftWidth = max(24, m.width/3)
		rightWidth = max(30, m.width-leftWidth-6)
	}

	left := panelStyle.Width(leftWidth).Render(m.renderRoster(v))
	right := panelStyle.Width(rightWidth).Render(m.renderStage(v))

	sections := []string{
		titleStyle.Render("GIFT CHAIN"),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
	}
	if m.status != "" {
		sections = append(sections, statusStyle.Render(m.status))
	}
	sections = append(sections, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *playModel) renderRoster(v chain.View) string {
	var b strings.Builder

	b.WriteString(headStyle.Render(fmt.Sprintf("Participants (%d)", v.Total)))
	b.WriteString("\n")

	for i, e := range v.Participants {
		marker := "  "
		name := nameStyle.Render(e.Name)
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
			name = cursorStyle.Render(e.Name)
		}

		badge := ""
		if e.Badge != chain.BadgeIdle {
			badge = " " + badgeStyles[e.Badge].Render(string(e.Badge))
		}

		fmt.Fprintf(&b, "%s%s%s\n", marker, name, badge)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m *playModel) renderStage(v chain.View) string {
	lines := []string{
		headStyle.Render(v.Headline),
		promptStyle.Render(v.Prompt),
	}

	if v.Revealed != nil && v.Current != nil {
		lines = append(lines, "",
			promptStyle.Render(v.Current.Name+"'s friend is"),
			friendStyle.Render(v.Revealed.Name),
		)
	}

	lines = append(lines, "", headStyle.Render("Chain"))
	if len(v.Steps) == 0 {
		lines = append(lines, promptStyle.Render("Nothing revealed yet."))
	}
	for _, s := range v.Steps {
		to := "..."
		if s.Selected != nil {
			to = s.Selected.Name
		}
		lines = append(lines, fmt.Sprintf("%d. %s → %s  %s", s.Index, s.Selector.Name, to, promptStyle.Render(s.Time)))
	}

	lines = append(lines, "", statusStyle.Render(fmt.Sprintf("%d completed · %d remaining · %d total", v.Completed, v.Remaining, v.Total)))

	return strings.Join(lines, "\n")
}

func runPlay(ctx context.Context, cfg *Config, roster chain.Roster) error {
	p := tea.NewProgram(newPlayModel(cfg, roster), tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}

	return err
}
