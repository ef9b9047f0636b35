package views

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/tui/styles"
)

var logLevels = []models.LogLevel{"", models.LogLevelInfo, models.LogLevelWarn, models.LogLevelError}

type logsMsg struct {
	logs []models.SyncLog
	err  error
}

type Logs struct {
	src           Source
	width, height int
	logs          []models.SyncLog
	levelIndex    int
	scrollOffset  int
	err           error
}

func NewLogs(src Source) Logs {
	return Logs{src: src}
}

func (l Logs) Init() tea.Cmd {
	return l.Refresh()
}

func (l Logs) Refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := queryCtx()
		defer cancel()
		logs, err := l.src.RecentLogs(ctx, 500)
		return logsMsg{logs: logs, err: err}
	}
}

func (l Logs) SetSize(w, h int) Logs {
	l.width = w
	l.height = h
	return l
}

func (l Logs) filtered() []models.SyncLog {
	want := logLevels[l.levelIndex]
	if want == "" {
		return l.logs
	}
	var out []models.SyncLog
	for _, entry := range l.logs {
		if entry.Level == want {
			out = append(out, entry)
		}
	}
	return out
}

func (l Logs) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case logsMsg:
		l.err = msg.err
		if msg.err == nil {
			l.logs = msg.logs
		}

	case tea.WindowSizeMsg:
		l.width = msg.Width
		l.height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "left", "h":
			if l.levelIndex > 0 {
				l.levelIndex--
				l.scrollOffset = 0
			}
		case "right":
			if l.levelIndex < len(logLevels)-1 {
				l.levelIndex++
				l.scrollOffset = 0
			}
		case "up", "k":
			if l.scrollOffset > 0 {
				l.scrollOffset--
			}
		case "down", "j":
			if l.scrollOffset < l.maxScroll() {
				l.scrollOffset++
			}
		case "g":
			l.scrollOffset = 0
		case "G":
			l.scrollOffset = l.maxScroll()
		}
	}
	return l, nil
}

func (l Logs) maxScroll() int {
	n := len(l.filtered()) - l.visibleLines()
	if n < 0 {
		return 0
	}
	return n
}

func (l Logs) visibleLines() int {
	if l.height-6 < 1 {
		return 10
	}
	return l.height - 6
}

func (l Logs) View() string {
	parts := []string{
		styles.Title.Render("Sync Logs"),
		l.renderFilter(),
		"",
		l.renderLogs(),
	}
	if l.err != nil {
		parts = append(parts, styles.StatusError.Render("Load failed: "+l.err.Error()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (l Logs) renderFilter() string {
	var parts []string
	for i, level := range logLevels {
		name := strings.ToUpper(string(level))
		if level == "" {
			name = "ALL"
		}
		if i == l.levelIndex {
			parts = append(parts, styles.TabActive.Render("["+name+"]"))
		} else {
			parts = append(parts, styles.TabInactive.Render(name))
		}
	}
	return "Filter: " + strings.Join(parts, " ") + "  (←/→ to change)"
}

func (l Logs) renderLogs() string {
	logs := l.filtered()
	if len(logs) == 0 {
		return styles.Muted.Render("No logs")
	}

	start := l.scrollOffset
	end := start + l.visibleLines()
	if end > len(logs) {
		end = len(logs)
	}

	var lines []string
	for i := start; i < end; i++ {
		lines = append(lines, l.formatLog(logs[i]))
	}
	header := styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", start+1, end, len(logs)))
	return header + "\n" + strings.Join(lines, "\n")
}

func (l Logs) formatLog(entry models.SyncLog) string {
	ts := entry.Timestamp.Local().Format("15:04:05")
	level := fmt.Sprintf("%-5s", strings.ToUpper(string(entry.Level)))

	levelStyle := lipgloss.NewStyle()
	switch entry.Level {
	case models.LogLevelInfo:
		levelStyle = styles.StatusSuccess
	case models.LogLevelWarn:
		levelStyle = styles.StatusPending
	case models.LogLevelError:
		levelStyle = styles.StatusError
	}

	scope := ""
	if entry.Scope != "" {
		scope = fmt.Sprintf("[%s] ", entry.Scope)
	}

	msg := entry.Message
	if maxLen := l.width - 25 - len(scope); maxLen > 3 && len(msg) > maxLen {
		msg = msg[:maxLen-3] + "..."
	}

	return fmt.Sprintf("%s %s %s%s",
		styles.Muted.Render(ts),
		levelStyle.Render(level),
		styles.Muted.Render(scope),
		msg,
	)
}
