package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		address_key TEXT,
		mls_number TEXT,
		standard_status TEXT NOT NULL,
		primary_source TEXT NOT NULL,
		list_price DOUBLE PRECISION,
		city TEXT,
		postal_code TEXT,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS listing_identifiers (
		source TEXT NOT NULL,
		identifier TEXT NOT NULL,
		listing_id TEXT NOT NULL REFERENCES listings(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (source, identifier)
	);

	CREATE TABLE IF NOT EXISTS sync_checkpoints (
		sync_type TEXT PRIMARY KEY,
		last_sync_timestamp TIMESTAMPTZ,
		last_sync_status TEXT NOT NULL,
		last_sync_message TEXT,
		records_synced INTEGER NOT NULL DEFAULT 0,
		records_failed INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_listings_address_key ON listings(address_key);
	CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(standard_status);
	CREATE INDEX IF NOT EXISTS idx_identifiers_listing ON listing_identifiers(listing_id);
	`)
	return err
}

// =============================================================================
// Listings
// =============================================================================

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*models.CanonicalListing, error) {
	return scanListingRow(s.pool.QueryRow(ctx, `SELECT data FROM listings WHERE id = $1`, id))
}

func (s *PostgresStore) GetListingByIdentifier(ctx context.Context, source models.Source, nativeID string) (*models.CanonicalListing, error) {
	query := `
		SELECT l.data FROM listings l
		JOIN listing_identifiers i ON i.listing_id = l.id
		WHERE i.source = $1 AND i.identifier = $2`
	return scanListingRow(s.pool.QueryRow(ctx, query, string(source), nativeID))
}

func (s *PostgresStore) GetListingsByAddressKey(ctx context.Context, addressKey string) ([]models.CanonicalListing, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM listings WHERE address_key = $1 ORDER BY id`, addressKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.CanonicalListing
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var l models.CanonicalListing
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// UpsertListing writes the document and its identifier index in one
// transaction. Identifier rows go out as a single batch.
func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.CanonicalListing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO listings (
			id, address_key, mls_number, standard_status, primary_source,
			list_price, city, postal_code, data, created_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			address_key = EXCLUDED.address_key,
			mls_number = COALESCE(EXCLUDED.mls_number, listings.mls_number),
			standard_status = EXCLUDED.standard_status,
			primary_source = EXCLUDED.primary_source,
			list_price = EXCLUDED.list_price,
			city = EXCLUDED.city,
			postal_code = EXCLUDED.postal_code,
			data = EXCLUDED.data,
			last_updated = EXCLUDED.last_updated`

	_, err = tx.Exec(ctx, query,
		l.ID, nullable(l.AddressKey), nullable(l.MLSNumber), string(l.StandardStatus), string(l.PrimarySource),
		l.ListPrice, nullable(l.Address.City), nullable(l.Address.PostalCode), data, l.CreatedAt, l.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}

	batch := &pgx.Batch{}
	for src, nativeID := range l.SourceIDs {
		if nativeID == "" {
			continue
		}
		batch.Queue(`
			INSERT INTO listing_identifiers (source, identifier, listing_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (source, identifier) DO NOTHING`, string(src), nativeID, l.ID)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert identifiers: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListListings(ctx context.Context, limit, offset int) ([]models.CanonicalListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM listings ORDER BY last_updated DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.CanonicalListing
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var l models.CanonicalListing
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListingRow(row pgx.Row) (*models.CanonicalListing, error) {
	var data []byte
	err := row.Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l models.CanonicalListing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return &l, nil
}

// =============================================================================
// Checkpoints
// =============================================================================

func (s *PostgresStore) GetCheckpoint(ctx context.Context, syncType models.SyncType) (*models.SyncCheckpoint, error) {
	query := `
		SELECT sync_type, last_sync_timestamp, last_sync_status, COALESCE(last_sync_message, ''),
			records_synced, records_failed, updated_at
		FROM sync_checkpoints WHERE sync_type = $1`

	var cp models.SyncCheckpoint
	var syncTypeStr, status string
	err := s.pool.QueryRow(ctx, query, string(syncType)).Scan(
		&syncTypeStr, &cp.LastSyncTimestamp, &status, &cp.LastSyncMessage,
		&cp.RecordsSynced, &cp.RecordsFailed, &cp.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp.SyncType = models.SyncType(syncTypeStr)
	cp.LastSyncStatus = models.SyncStatus(status)
	if cp.LastSyncTimestamp != nil {
		t := cp.LastSyncTimestamp.UTC()
		cp.LastSyncTimestamp = &t
	}
	return &cp, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *models.SyncCheckpoint) error {
	query := `
		INSERT INTO sync_checkpoints (
			sync_type, last_sync_timestamp, last_sync_status, last_sync_message,
			records_synced, records_failed, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sync_type) DO UPDATE SET
			last_sync_timestamp = EXCLUDED.last_sync_timestamp,
			last_sync_status = EXCLUDED.last_sync_status,
			last_sync_message = EXCLUDED.last_sync_message,
			records_synced = EXCLUDED.records_synced,
			records_failed = EXCLUDED.records_failed,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		string(cp.SyncType), cp.LastSyncTimestamp, string(cp.LastSyncStatus), cp.LastSyncMessage,
		cp.RecordsSynced, cp.RecordsFailed, cp.UpdatedAt,
	)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
