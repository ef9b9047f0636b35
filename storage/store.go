package storage

import (
	"context"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
)

// ListingStore is the canonical listing store. Lookups return nil, nil when
// nothing matches.
type ListingStore interface {
	GetListing(ctx context.Context, id string) (*models.CanonicalListing, error)
	GetListingByIdentifier(ctx context.Context, source models.Source, nativeID string) (*models.CanonicalListing, error)
	GetListingsByAddressKey(ctx context.Context, addressKey string) ([]models.CanonicalListing, error)
	UpsertListing(ctx context.Context, l *models.CanonicalListing) error
}

// CheckpointStore keeps one checkpoint row per sync type.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, syncType models.SyncType) (*models.SyncCheckpoint, error)
	SaveCheckpoint(ctx context.Context, cp *models.SyncCheckpoint) error
}

// Store is everything the sync engine persists.
type Store interface {
	ListingStore
	CheckpointStore
	Close() error
}
