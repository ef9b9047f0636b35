package views

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/tui/styles"
)

var syncTypes = []models.SyncType{models.SyncProperties, models.SyncMedia}

type dashboardDataMsg struct {
	checkpoints map[models.SyncType]*models.SyncCheckpoint
	listings    int
	errorLogs   int
	err         error
}

type Dashboard struct {
	src           Source
	width, height int
	checkpoints   map[models.SyncType]*models.SyncCheckpoint
	listings      int
	errorLogs     int
	err           error
}

func NewDashboard(src Source) Dashboard {
	return Dashboard{src: src}
}

func (d Dashboard) Init() tea.Cmd {
	return d.Refresh()
}

func (d Dashboard) Refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := queryCtx()
		defer cancel()

		msg := dashboardDataMsg{checkpoints: make(map[models.SyncType]*models.SyncCheckpoint)}
		for _, st := range syncTypes {
			cp, err := d.src.GetCheckpoint(ctx, st)
			if err != nil {
				msg.err = err
				return msg
			}
			msg.checkpoints[st] = cp
		}
		n, err := d.src.CountListings(ctx)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.listings = n

		logs, _ := d.src.RecentLogs(ctx, 200)
		for _, l := range logs {
			if l.Level == models.LogLevelError {
				msg.errorLogs++
			}
		}
		return msg
	}
}

func (d Dashboard) SetSize(w, h int) Dashboard {
	d.width = w
	d.height = h
	return d
}

// Syncing reports whether either checkpoint is mid-run.
func (d Dashboard) Syncing() bool {
	for _, cp := range d.checkpoints {
		if cp != nil && cp.LastSyncStatus == models.SyncStatusInProgress {
			return true
		}
	}
	return false
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.err = msg.err
		if msg.err == nil {
			d.checkpoints = msg.checkpoints
			d.listings = msg.listings
			d.errorLogs = msg.errorLogs
		}
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height - 4
	}
	return d, nil
}

func (d Dashboard) View() string {
	parts := []string{
		styles.Title.Render("Dashboard"),
		d.renderStatCards(),
		"",
		styles.Title.Render("Checkpoints"),
		d.renderCheckpointCards(),
	}
	if d.err != nil {
		parts = append(parts, "", styles.StatusError.Render("Refresh failed: "+d.err.Error()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (d Dashboard) renderStatCards() string {
	state := "idle"
	if d.Syncing() {
		state = "syncing"
	}
	cards := []string{
		d.renderStatCard("Listings", fmt.Sprintf("%d", d.listings)),
		d.renderStatCard("Recent errors", fmt.Sprintf("%d", d.errorLogs)),
		d.renderStatCard("Engine", state),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (d Dashboard) renderStatCard(label, value string) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.StatValue.Render(value),
		styles.StatLabel.Render(label),
	)
	return styles.StatCard.Width(18).Render(content)
}

func (d Dashboard) renderCheckpointCards() string {
	var cards []string
	for _, st := range syncTypes {
		cards = append(cards, renderCheckpointCard(st, d.checkpoints[st]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderCheckpointCard(st models.SyncType, cp *models.SyncCheckpoint) string {
	status := "○ never run"
	statusStyle := styles.StatusPending
	watermark := "epoch"
	updated := "never"
	synced, failed := 0, 0
	message := ""

	if cp != nil {
		switch cp.LastSyncStatus {
		case models.SyncStatusSuccess:
			status = "✓ success"
			statusStyle = styles.StatusSuccess
		case models.SyncStatusError:
			status = "✗ error"
			statusStyle = styles.StatusError
		case models.SyncStatusInProgress:
			status = "◐ in progress"
		}
		if cp.LastSyncTimestamp != nil {
			watermark = cp.LastSyncTimestamp.Local().Format("Jan 02 15:04:05")
		}
		if !cp.UpdatedAt.IsZero() {
			updated = relativeTime(cp.UpdatedAt)
		}
		synced, failed = cp.RecordsSynced, cp.RecordsFailed
		message = cp.LastSyncMessage
	}

	lines := []string{
		styles.StatValue.Render(string(st)),
		statusStyle.Render(status),
		styles.StatLabel.Render("Since: " + watermark),
		styles.StatLabel.Render("Updated: " + updated),
		styles.StatLabel.Render(fmt.Sprintf("Synced: %d  Failed: %d", synced, failed)),
	}
	if message != "" {
		lines = append(lines, styles.Muted.Render(truncate(message, 30)))
	}
	return styles.CheckpointCard.Width(34).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
