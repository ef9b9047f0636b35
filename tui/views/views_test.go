package views

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

type fakeSource struct {
	checkpoints map[models.SyncType]*models.SyncCheckpoint
	listings    []models.CanonicalListing
	logs        []models.SyncLog
}

func (f *fakeSource) GetCheckpoint(ctx context.Context, st models.SyncType) (*models.SyncCheckpoint, error) {
	return f.checkpoints[st], nil
}

func (f *fakeSource) CountListings(ctx context.Context) (int, error) { return len(f.listings), nil }

func (f *fakeSource) ListListings(ctx context.Context, limit, offset int) ([]models.CanonicalListing, error) {
	if offset >= len(f.listings) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.listings) {
		end = len(f.listings)
	}
	return f.listings[offset:end], nil
}

func (f *fakeSource) RecentLogs(ctx context.Context, limit int) ([]models.SyncLog, error) {
	return f.logs, nil
}

func price(v float64) *float64 { return &v }

func newFakeSource() *fakeSource {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeSource{
		checkpoints: map[models.SyncType]*models.SyncCheckpoint{
			models.SyncProperties: {
				SyncType:          models.SyncProperties,
				LastSyncTimestamp: &ts,
				LastSyncStatus:    models.SyncStatusInProgress,
				RecordsSynced:     42,
			},
		},
		listings: []models.CanonicalListing{
			{
				ID:             "a",
				StandardStatus: models.StatusActive,
				ListPrice:      price(510000),
				Address:        models.Address{StreetNumber: "123", StreetName: "Main St", City: "Austin"},
				Sources:        []models.Source{models.SourceMLS},
				SourceIDs:      map[models.Source]string{models.SourceMLS: "ACT1"},
			},
			{
				ID:             "b",
				StandardStatus: models.StatusClosed,
				Address:        models.Address{StreetNumber: "9", StreetName: "Oak Ave", City: "Austin"},
			},
		},
		logs: []models.SyncLog{
			{Level: models.LogLevelInfo, Scope: "properties", Message: "page 1"},
			{Level: models.LogLevelError, Scope: "properties", Message: "boom"},
		},
	}
}

func TestDashboardRefresh(t *testing.T) {
	d := NewDashboard(newFakeSource())
	next, _ := d.Update(d.Refresh()())
	d = next.(Dashboard)

	if d.listings != 2 || d.errorLogs != 1 {
		t.Fatalf("unexpected counts: listings=%d errors=%d", d.listings, d.errorLogs)
	}
	if !d.Syncing() {
		t.Fatal("in-progress checkpoint should read as syncing")
	}
	view := d.View()
	if !strings.Contains(view, "in progress") || !strings.Contains(view, "never run") {
		t.Fatalf("checkpoint cards missing from view:\n%s", view)
	}
}

func TestListingsFilterAndSelect(t *testing.T) {
	l := NewListings(newFakeSource())
	next, _ := l.Update(l.Refresh()())
	l = next.(Listings)

	if sel := l.Selected(); sel == nil || sel.ID != "a" {
		t.Fatalf("expected first listing selected, got %+v", sel)
	}

	next, _ = l.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	l = next.(Listings)
	if l.Selected().ID != "b" {
		t.Fatalf("down should select b, got %s", l.Selected().ID)
	}

	// Cycle the status filter to Closed.
	for statusFilters[l.statusFilter] != models.StatusClosed {
		next, _ = l.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")})
		l = next.(Listings)
	}
	if got := l.visible(); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("closed filter: %+v", got)
	}
	if !strings.Contains(l.View(), "9 Oak Ave") {
		t.Fatal("filtered row missing from view")
	}
}

func TestLogsLevelFilter(t *testing.T) {
	l := NewLogs(newFakeSource())
	next, _ := l.Update(l.Refresh()())
	l = next.(Logs)

	if len(l.filtered()) != 2 {
		t.Fatalf("expected all logs, got %d", len(l.filtered()))
	}
	for i := 0; i < 3; i++ {
		next, _ = l.Update(tea.KeyMsg{Type: tea.KeyRight})
		l = next.(Logs)
	}
	got := l.filtered()
	if len(got) != 1 || got[0].Message != "boom" {
		t.Fatalf("error filter: %+v", got)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[string]*float64{
		"—":      nil,
		"$950":   price(950),
		"$510K":  price(510000),
		"$1.25M": price(1250000),
	}
	for want, in := range cases {
		if got := formatPrice(in); got != want {
			t.Errorf("formatPrice(%v) = %q, want %q", in, got, want)
		}
	}
}
