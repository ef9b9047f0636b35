package views

import (
	"context"
	"fmt"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// Source is the read side the console renders from.
type Source interface {
	GetCheckpoint(ctx context.Context, syncType models.SyncType) (*models.SyncCheckpoint, error)
	CountListings(ctx context.Context) (int, error)
	ListListings(ctx context.Context, limit, offset int) ([]models.CanonicalListing, error)
	RecentLogs(ctx context.Context, limit int) ([]models.SyncLog, error)
}

const queryTimeout = 5 * time.Second

func queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), queryTimeout)
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func formatPrice(p *float64) string {
	if p == nil {
		return "—"
	}
	v := int64(*p)
	if v >= 1_000_000 {
		return fmt.Sprintf("$%.2fM", *p/1_000_000)
	}
	if v >= 1_000 {
		return fmt.Sprintf("$%dK", v/1_000)
	}
	return fmt.Sprintf("$%d", v)
}
