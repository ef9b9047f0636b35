package views

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/tui/styles"
)

type listingsMsg struct {
	listings []models.CanonicalListing
	total    int
	err      error
}

// Listings pages through canonical listings with a detail panel for the
// selected row.
type Listings struct {
	src           Source
	width, height int
	listings      []models.CanonicalListing
	selectedRow   int
	page          int
	pageSize      int
	total         int
	statusFilter  int
	err           error
}

var statusFilters = []models.StandardStatus{
	"",
	models.StatusActive,
	models.StatusActiveUnderContract,
	models.StatusPending,
	models.StatusClosed,
	models.StatusUnknown,
}

func NewListings(src Source) Listings {
	return Listings{src: src, pageSize: 100}
}

func (l Listings) Init() tea.Cmd {
	return l.Refresh()
}

func (l Listings) Refresh() tea.Cmd {
	limit, offset := l.pageSize, l.page*l.pageSize
	return func() tea.Msg {
		ctx, cancel := queryCtx()
		defer cancel()
		items, err := l.src.ListListings(ctx, limit, offset)
		if err != nil {
			return listingsMsg{err: err}
		}
		total, err := l.src.CountListings(ctx)
		return listingsMsg{listings: items, total: total, err: err}
	}
}

func (l Listings) SetSize(w, h int) Listings {
	l.width = w
	l.height = h
	return l
}

// Selected returns the highlighted listing, if any.
func (l Listings) Selected() *models.CanonicalListing {
	rows := l.visible()
	if l.selectedRow < 0 || l.selectedRow >= len(rows) {
		return nil
	}
	return &rows[l.selectedRow]
}

// visible applies the status filter to the loaded page.
func (l Listings) visible() []models.CanonicalListing {
	want := statusFilters[l.statusFilter]
	if want == "" {
		return l.listings
	}
	var out []models.CanonicalListing
	for _, item := range l.listings {
		if item.StandardStatus == want {
			out = append(out, item)
		}
	}
	return out
}

func (l Listings) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case listingsMsg:
		l.err = msg.err
		if msg.err == nil {
			l.listings = msg.listings
			l.total = msg.total
		}
		if l.selectedRow >= len(l.visible()) {
			l.selectedRow = 0
		}

	case tea.WindowSizeMsg:
		l.width = msg.Width
		l.height = msg.Height - 4

	case tea.KeyMsg:
		n := len(l.visible())
		switch msg.String() {
		case "up", "k":
			if l.selectedRow > 0 {
				l.selectedRow--
			}
		case "down", "j":
			if l.selectedRow < n-1 {
				l.selectedRow++
			}
		case "pgdown", "ctrl+d":
			l.selectedRow += 10
			if l.selectedRow >= n {
				l.selectedRow = n - 1
			}
			if l.selectedRow < 0 {
				l.selectedRow = 0
			}
		case "pgup", "ctrl+u":
			l.selectedRow -= 10
			if l.selectedRow < 0 {
				l.selectedRow = 0
			}
		case "home", "g":
			l.selectedRow = 0
		case "end", "G":
			if n > 0 {
				l.selectedRow = n - 1
			}
		case "f":
			l.statusFilter = (l.statusFilter + 1) % len(statusFilters)
			l.selectedRow = 0
		case "[":
			if l.page > 0 {
				l.page--
				l.selectedRow = 0
				return l, l.Refresh()
			}
		case "]":
			if l.page < l.totalPages()-1 {
				l.page++
				l.selectedRow = 0
				return l, l.Refresh()
			}
		}
	}
	return l, nil
}

func (l Listings) totalPages() int {
	if l.pageSize == 0 || l.total == 0 {
		return 1
	}
	return (l.total + l.pageSize - 1) / l.pageSize
}

func (l Listings) visibleRows() int {
	rows := 25
	if l.height > 0 {
		rows = (l.height * 60) / 100
		if rows < 10 {
			rows = 10
		}
	}
	return rows
}

func (l Listings) View() string {
	filter := "All"
	if s := statusFilters[l.statusFilter]; s != "" {
		filter = string(s)
	}
	header := styles.Title.Render("Listings") +
		styles.StatLabel.Render(fmt.Sprintf("  Page %d/%d  (%d total)", l.page+1, l.totalPages(), l.total)) +
		"  " + styles.Muted.Render(fmt.Sprintf("[f] Status: %s  [[ ]] Prev/Next", filter))

	parts := []string{header, l.renderTable(), "", l.renderDetails()}
	if l.err != nil {
		parts = append(parts, styles.StatusError.Render("Load failed: "+l.err.Error()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (l Listings) renderTable() string {
	rows := l.visible()
	if len(rows) == 0 {
		return styles.Muted.Render("No listings")
	}

	header := fmt.Sprintf("%-34s %-12s %-22s %10s %4s %-14s",
		"Address", "City", "Status", "Price", "Bed", "Sources")
	out := styles.TableHeader.Render(header) + "\n"

	visible := l.visibleRows()
	scroll := 0
	if l.selectedRow >= visible {
		scroll = l.selectedRow - visible + 1
	}
	end := scroll + visible
	if end > len(rows) {
		end = len(rows)
	}

	for i := scroll; i < end; i++ {
		item := rows[i]
		beds := "—"
		if item.Beds != nil {
			beds = fmt.Sprintf("%d", *item.Beds)
		}
		row := fmt.Sprintf("%-34s %-12s %-22s %10s %4s %-14s",
			truncate(streetLine(item.Address), 34),
			truncate(item.Address.City, 12),
			string(item.StandardStatus),
			formatPrice(item.ListPrice),
			beds,
			truncate(sourceList(item.Sources), 14),
		)
		if i == l.selectedRow {
			out += styles.TableSelected.Render(row) + "\n"
		} else {
			out += row + "\n"
		}
	}
	if len(rows) > visible {
		out += styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", scroll+1, end, len(rows)))
	}
	return out
}

func (l Listings) renderDetails() string {
	item := l.Selected()
	if item == nil {
		return styles.DetailPanel.Render(styles.Muted.Render("Select a listing"))
	}

	lines := []string{
		styles.StatValue.Render(item.ID),
		styles.StatLabel.Render("Primary: ") + string(item.PrimarySource),
	}
	if item.MLSNumber != "" {
		lines = append(lines, styles.StatLabel.Render("MLS#: ")+item.MLSNumber)
	}
	for _, src := range item.Sources {
		lines = append(lines, styles.StatLabel.Render(fmt.Sprintf("  %s: ", src))+item.SourceIDs[src])
	}
	if item.AddressKey != "" {
		lines = append(lines, styles.StatLabel.Render("Key: ")+item.AddressKey)
	}
	lines = append(lines,
		styles.StatLabel.Render("Photos: ")+fmt.Sprintf("%d", len(item.Photos)),
		styles.StatLabel.Render("Updated: ")+relativeTime(item.LastUpdated),
	)
	if item.Description != "" {
		desc := truncate(item.Description, 200)
		lines = append(lines, "")
		lines = append(lines, wrapText(desc, l.width-8)...)
	}
	return styles.DetailPanel.Render(strings.Join(lines, "\n"))
}

func streetLine(a models.Address) string {
	parts := []string{}
	for _, p := range []string{a.StreetNumber, a.StreetName, a.Unit} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return a.Full
	}
	return strings.Join(parts, " ")
}

func sourceList(sources []models.Source) string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 60
	}
	var lines []string
	var line string
	for _, word := range strings.Fields(text) {
		if line != "" && len(line)+len(word)+1 > width {
			lines = append(lines, line)
			line = word
			continue
		}
		if line != "" {
			line += " "
		}
		line += word
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
