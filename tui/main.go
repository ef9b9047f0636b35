package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/storage"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/tui/styles"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/tui/views"
	"github.com/joho/godotenv"
)

type tab int

const (
	tabDashboard tab = iota
	tabListings
	tabLogs
)

// commandQueue is where operator actions go; the daemon's scheduler drains it.
type commandQueue interface {
	EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error
}

type model struct {
	commands      commandQueue
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time

	dashboard views.Dashboard
	listings  views.Listings
	logs      views.Logs
}

type tickMsg time.Time
type logTickMsg time.Time

func initialModel(src views.Source, commands commandQueue) model {
	return model{
		commands:  commands,
		activeTab: tabDashboard,
		dashboard: views.NewDashboard(src),
		listings:  views.NewListings(src),
		logs:      views.NewLogs(src),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.dashboard.Init(),
		m.listings.Init(),
		m.logs.Init(),
		tickCmd(),
		logTickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func logTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}

func (m *model) notify(text string) {
	m.notification = text
	m.notifyUntil = time.Now().Add(2 * time.Second)
}

func (m *model) enqueue(cmd models.CommandType, params *models.CommandParams, ok string) {
	if err := m.commands.EnqueueCommand(cmd, params); err != nil {
		m.notify("Command failed: " + err.Error())
		return
	}
	m.notify(ok)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "d":
			m.activeTab = tabDashboard
		case "p":
			m.activeTab = tabListings
		case "l":
			m.activeTab = tabLogs
		case "tab":
			m.activeTab = (m.activeTab + 1) % 3
		case "r":
			m.notify("Refreshed")
			return m, m.refreshActive()
		case "s":
			m.enqueue(models.CmdSyncNow, nil, "Sync command sent!")
		case "a":
			m.enqueue(models.CmdSyncSearch, &models.CommandParams{}, "Saved searches triggered!")
		case "x":
			m.enqueue(models.CmdPause, nil, "Scheduled syncs paused")
		case "u":
			m.enqueue(models.CmdResume, nil, "Scheduled syncs resumed")
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dashboard = m.dashboard.SetSize(msg.Width, msg.Height-4)
		m.listings = m.listings.SetSize(msg.Width, msg.Height-4)
		m.logs = m.logs.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tickMsg:
		cmds = append(cmds, m.refreshActive(), tickCmd())

	case logTickMsg:
		// Logs and checkpoints move during a run; keep them live.
		cmds = append(cmds, m.logs.Refresh(), m.dashboard.Refresh(), logTickCmd())
	}

	// Keys go to the active tab only; data messages go everywhere.
	switch msg.(type) {
	case tea.KeyMsg:
		switch m.activeTab {
		case tabDashboard:
			next, cmd := m.dashboard.Update(msg)
			m.dashboard = next.(views.Dashboard)
			cmds = append(cmds, cmd)
		case tabListings:
			next, cmd := m.listings.Update(msg)
			m.listings = next.(views.Listings)
			cmds = append(cmds, cmd)
		case tabLogs:
			next, cmd := m.logs.Update(msg)
			m.logs = next.(views.Logs)
			cmds = append(cmds, cmd)
		}
	default:
		nextDash, cmd1 := m.dashboard.Update(msg)
		m.dashboard = nextDash.(views.Dashboard)
		cmds = append(cmds, cmd1)

		nextListings, cmd2 := m.listings.Update(msg)
		m.listings = nextListings.(views.Listings)
		cmds = append(cmds, cmd2)

		nextLogs, cmd3 := m.logs.Update(msg)
		m.logs = nextLogs.(views.Logs)
		cmds = append(cmds, cmd3)
	}

	return m, tea.Batch(cmds...)
}

func (m model) refreshActive() tea.Cmd {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.Refresh()
	case tabListings:
		return m.listings.Refresh()
	case tabLogs:
		return m.logs.Refresh()
	}
	return nil
}

func (m model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), m.renderContent(), m.renderStatusBar())
}

func (m model) renderTabs() string {
	tabNames := []string{"Dashboard", "Listings", "Logs"}
	var rendered []string
	for i, name := range tabNames {
		if tab(i) == m.activeTab {
			rendered = append(rendered, styles.TabActive.Render(name))
		} else {
			rendered = append(rendered, styles.TabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m model) renderContent() string {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.View()
	case tabListings:
		return m.listings.View()
	case tabLogs:
		return m.logs.View()
	}
	return ""
}

func (m model) renderStatusBar() string {
	left := "d Dash  p Listings  l Log  r Refresh  s Sync  a Searches  x Pause  u Resume  q Quit"
	right := ""
	if time.Now().Before(m.notifyUntil) {
		right = styles.Notification.Render(m.notification)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	return styles.StatusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}

// source reads listings and checkpoints from the configured store and logs
// from the SQLite operational database.
type source struct {
	listingStore
	ops *storage.SQLiteStore
}

type listingStore interface {
	GetCheckpoint(ctx context.Context, syncType models.SyncType) (*models.SyncCheckpoint, error)
	CountListings(ctx context.Context) (int, error)
	ListListings(ctx context.Context, limit, offset int) ([]models.CanonicalListing, error)
}

func (s source) RecentLogs(ctx context.Context, limit int) ([]models.SyncLog, error) {
	return s.ops.RecentLogs(ctx, limit)
}

func main() {
	_ = godotenv.Load() // Load .env if present

	sqlitePath := os.Getenv("DB_PATH")
	if sqlitePath == "" {
		sqlitePath = "listings.db"
	}

	ops, err := storage.NewSQLiteStore(sqlitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", sqlitePath, err)
		os.Exit(1)
	}
	defer ops.Close()

	src := source{listingStore: ops, ops: ops}
	if os.Getenv("STORE_DRIVER") == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := storage.NewPostgresStore(ctx, os.Getenv("DATABASE_URL"))
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to Postgres: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		src.listingStore = pg
	}

	p := tea.NewProgram(initialModel(src, ops), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
