package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/catalog"
	"github.com/wippyai/resource-pool/loaders/wasmloader"
	"github.com/wippyai/resource-pool/pool"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	loadedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type tuiState int

const (
	stateTable tuiState = iota
	stateEnterKey
)

type tuiModel struct {
	err      error
	loc      *pool.Locator
	cat      *catalog.Catalog
	dir      string
	status   string
	rows     []pool.Stats
	leases   map[resourcepool.Key][]*pool.Lease
	input    textinput.Model
	selected int
	state    tuiState
}

func newTUIModel(dir string, loc *pool.Locator, cat *catalog.Catalog) *tuiModel {
	ti := textinput.New()
	ti.Placeholder = "model/hero.wasm or name@1.2"
	ti.Prompt = "key: "
	ti.Width = 40
	return &tuiModel{
		loc:    loc,
		cat:    cat,
		dir:    dir,
		leases: make(map[resourcepool.Key][]*pool.Lease),
		input:  ti,
	}
}

type tickMsg time.Time

type spawnMsg struct {
	err   error
	key   resourcepool.Key
	lease *pool.Lease
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func spawnCmd(h *pool.Handler) tea.Cmd {
	return func() tea.Msg {
		lease, err := h.Spawn(context.Background(), resourcepool.SpawnParams{})
		return spawnMsg{key: h.Key(), lease: lease, err: err}
	}
}

func (m *tuiModel) Init() tea.Cmd {
	m.rows = m.loc.Registry().Stats()
	return tick()
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.rows = m.loc.Registry().Stats()
		if m.selected >= len(m.rows) {
			m.selected = len(m.rows) - 1
		}
		if m.selected < 0 {
			m.selected = 0
		}
		return m, tick()

	case spawnMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.leases[msg.key] = append(m.leases[msg.key], msg.lease)
		m.status = fmt.Sprintf("spawned %s on %s", msg.lease.ID(), msg.key)
		return m, nil

	case tea.KeyMsg:
		if m.state == stateEnterKey {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				value := strings.TrimSpace(m.input.Value())
				m.input.Blur()
				m.input.SetValue("")
				m.state = stateTable
				if value != "" {
					m.retainKey(value)
				}
				return m, nil
			case "esc":
				m.input.Blur()
				m.input.SetValue("")
				m.state = stateTable
				return m, nil
			}
			break
		}
		return m.handleTableKey(msg)
	}

	if m.state == stateEnterKey {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *tuiModel) handleTableKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.rows)-1 {
			m.selected++
		}

	case "n":
		m.state = stateEnterKey
		m.input.Focus()
		return m, textinput.Blink

	case "r":
		if h := m.selectedHandler(); h != nil {
			h.Retain()
			m.err = nil
			m.status = fmt.Sprintf("retained %s", h.Key())
		}

	case "R":
		if h := m.selectedHandler(); h != nil {
			if err := h.Release(); err != nil {
				m.err = err
			} else {
				m.err = nil
				m.status = fmt.Sprintf("released %s", h.Key())
			}
		}

	case "s":
		if h := m.selectedHandler(); h != nil {
			m.err = nil
			m.status = fmt.Sprintf("spawning on %s...", h.Key())
			return m, spawnCmd(h)
		}

	case "d":
		m.despawnSelected()

	case "e":
		if len(m.rows) > 0 {
			key := m.rows[m.selected].Key
			if err := m.loc.Registry().Evict(key); err != nil {
				m.err = err
			} else {
				m.err = nil
				m.status = fmt.Sprintf("evicted %s", key)
				m.rows = m.loc.Registry().Stats()
			}
		}
	}
	return m, nil
}

func (m *tuiModel) selectedHandler() *pool.Handler {
	if len(m.rows) == 0 {
		m.err = fmt.Errorf("no handlers yet, press n to add a key")
		return nil
	}
	key := m.rows[m.selected].Key
	h, ok := m.loc.Registry().TryGet(key)
	if !ok {
		m.err = fmt.Errorf("handler %s is gone", key)
		return nil
	}
	return h
}

func (m *tuiModel) retainKey(value string) {
	key := resourcepool.Key(value)
	if m.cat != nil {
		if resolved, err := m.cat.Resolve(value); err == nil {
			key = resolved
		}
	}
	h, err := m.loc.Handler(key)
	if err != nil {
		m.err = err
		return
	}
	h.Retain()
	m.err = nil
	m.status = fmt.Sprintf("retained %s", key)
	m.rows = m.loc.Registry().Stats()
}

func (m *tuiModel) despawnSelected() {
	if len(m.rows) == 0 {
		m.err = fmt.Errorf("no handlers yet, press n to add a key")
		return
	}
	key := m.rows[m.selected].Key
	held := m.leases[key]
	if len(held) == 0 {
		m.err = fmt.Errorf("no leases held on %s", key)
		return
	}
	lease := held[len(held)-1]
	if err := lease.Despawn(); err != nil {
		m.err = err
		return
	}
	m.leases[key] = held[:len(held)-1]
	m.err = nil
	m.status = fmt.Sprintf("despawned %s on %s", lease.ID(), key)
}

func (m *tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pooltop"))
	b.WriteString(" ")
	b.WriteString(m.dir)
	b.WriteString("\n\n")

	if m.state == stateEnterKey {
		b.WriteString("Retain a key:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter retain • esc back"))
		return b.String()
	}

	if len(m.rows) == 0 {
		b.WriteString(helpStyle.Render("No handlers yet."))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("n new key • q quit"))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  %-28s %-8s %-10s %8s %6s %6s %7s %7s %7s\n",
		"KEY", "KIND", "STATUS", "RETAINS", "LIVE", "IDLE", "BUILT", "REUSED", "LEASES"))
	for i, s := range m.rows {
		row := fmt.Sprintf("%-28s %-8s %-10s %8d %6d %6d %7d %7d %7d",
			s.Key, s.Kind, s.Status, s.Retains, s.Live, s.Idle,
			s.Constructed, s.Reused, len(m.leases[s.Key]))
		if i == m.selected {
			b.WriteString("> ")
			b.WriteString(selectedStyle.Render(row))
		} else {
			b.WriteString("  ")
			b.WriteString(styleRow(s.Status, row))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • n new key • r retain • R release • s spawn • d despawn • e evict • q quit"))
	return b.String()
}

func styleRow(status pool.Status, row string) string {
	switch status {
	case pool.StatusLoading:
		return loadingStyle.Render(row)
	case pool.StatusLoaded:
		return loadedStyle.Render(row)
	case pool.StatusFailed:
		return errorStyle.Render(row)
	default:
		return row
	}
}

func runInteractive(dir, catalogPath string, limit int64) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	ctx := context.Background()
	loader, err := wasmloader.NewWithConfig(ctx, wasmloader.Config{
		Source: dirSource(dir),
	})
	if err != nil {
		return fmt.Errorf("create loader: %w", err)
	}
	defer loader.Close(ctx)

	var cat *catalog.Catalog
	if catalogPath != "" {
		cat, err = catalog.Load(catalogPath)
		if err != nil {
			return err
		}
		if err := cat.Watch(ctx); err != nil {
			return err
		}
	}

	loc := pool.NewLocator(pool.Config{
		Loader:  resourcepool.LimitLoader(loader, limit),
		Factory: wasmloader.NewFactory(loader),
		Kind:    "wasm",
	})

	p := tea.NewProgram(newTUIModel(dir, loc, cat), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
