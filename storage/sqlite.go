package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daryl-c-spyglass/client-data-portal-sub000/models"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		address_key TEXT,
		mls_number TEXT,
		standard_status TEXT,
		primary_source TEXT,
		list_price REAL,
		city TEXT,
		postal_code TEXT,
		data JSON NOT NULL,
		created_at DATETIME,
		last_updated DATETIME
	);

	CREATE TABLE IF NOT EXISTS listing_identifiers (
		source TEXT NOT NULL,
		identifier TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source, identifier),
		FOREIGN KEY (listing_id) REFERENCES listings(id)
	);

	CREATE TABLE IF NOT EXISTS sync_checkpoints (
		sync_type TEXT PRIMARY KEY,
		last_sync_timestamp DATETIME,
		last_sync_status TEXT,
		last_sync_message TEXT,
		records_synced INTEGER DEFAULT 0,
		records_failed INTEGER DEFAULT 0,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS sync_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		scope TEXT,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_listings_address_key ON listings(address_key);
	CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(standard_status);
	CREATE INDEX IF NOT EXISTS idx_identifiers_listing ON listing_identifiers(listing_id);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON sync_logs(run_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Listings
// =============================================================================

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*models.CanonicalListing, error) {
	return s.scanListing(s.db.QueryRowContext(ctx, `SELECT data FROM listings WHERE id = ?`, id))
}

func (s *SQLiteStore) GetListingByIdentifier(ctx context.Context, source models.Source, nativeID string) (*models.CanonicalListing, error) {
	return s.scanListing(s.db.QueryRowContext(ctx, `
		SELECT l.data FROM listings l
		JOIN listing_identifiers i ON i.listing_id = l.id
		WHERE i.source = ? AND i.identifier = ?`, source, nativeID))
}

func (s *SQLiteStore) GetListingsByAddressKey(ctx context.Context, addressKey string) ([]models.CanonicalListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM listings WHERE address_key = ? ORDER BY id`, addressKey)
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

// UpsertListing writes the listing row and indexes its identifiers in one
// transaction. An identifier already pointing at another listing is kept.
func (s *SQLiteStore) UpsertListing(ctx context.Context, l *models.CanonicalListing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (id, address_key, mls_number, standard_status, primary_source,
			list_price, city, postal_code, data, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address_key = excluded.address_key,
			mls_number = excluded.mls_number,
			standard_status = excluded.standard_status,
			primary_source = excluded.primary_source,
			list_price = excluded.list_price,
			city = excluded.city,
			postal_code = excluded.postal_code,
			data = excluded.data,
			last_updated = excluded.last_updated`,
		l.ID, nullString(l.AddressKey), nullString(l.MLSNumber), l.StandardStatus, l.PrimarySource,
		l.ListPrice, l.Address.City, l.Address.PostalCode, string(data), l.CreatedAt, l.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}

	for src, nativeID := range l.SourceIDs {
		if nativeID == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO listing_identifiers (source, identifier, listing_id)
			VALUES (?, ?, ?)
			ON CONFLICT(source, identifier) DO NOTHING`, src, nativeID, l.ID); err != nil {
			return fmt.Errorf("upsert identifier %s/%s: %w", src, nativeID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, err
}

// ListListings pages through listings, most recently updated first.
func (s *SQLiteStore) ListListings(ctx context.Context, limit, offset int) ([]models.CanonicalListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM listings ORDER BY last_updated DESC, id LIMIT ? OFFSET ?`, limit, offset)
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

func (s *SQLiteStore) scanListing(row *sql.Row) (*models.CanonicalListing, error) {
	var data []byte
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
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

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, syncType models.SyncType) (*models.SyncCheckpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sync_type, last_sync_timestamp, last_sync_status, last_sync_message,
			records_synced, records_failed, updated_at
		FROM sync_checkpoints WHERE sync_type = ?`, syncType)

	var cp models.SyncCheckpoint
	var ts sql.NullTime
	var msg sql.NullString
	err := row.Scan(&cp.SyncType, &ts, &cp.LastSyncStatus, &msg, &cp.RecordsSynced, &cp.RecordsFailed, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ts.Valid {
		t := ts.Time.UTC()
		cp.LastSyncTimestamp = &t
	}
	cp.LastSyncMessage = msg.String
	return &cp, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *models.SyncCheckpoint) error {
	var ts interface{}
	if cp.LastSyncTimestamp != nil {
		ts = cp.LastSyncTimestamp.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_checkpoints (sync_type, last_sync_timestamp, last_sync_status,
			last_sync_message, records_synced, records_failed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sync_type) DO UPDATE SET
			last_sync_timestamp = excluded.last_sync_timestamp,
			last_sync_status = excluded.last_sync_status,
			last_sync_message = excluded.last_sync_message,
			records_synced = excluded.records_synced,
			records_failed = excluded.records_failed,
			updated_at = excluded.updated_at`,
		cp.SyncType, ts, cp.LastSyncStatus, cp.LastSyncMessage,
		cp.RecordsSynced, cp.RecordsFailed, cp.UpdatedAt.UTC())
	return err
}

// =============================================================================
// Sync logs
// =============================================================================

func (s *SQLiteStore) Log(runID string, level models.LogLevel, scope, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_logs (run_id, timestamp, level, scope, message)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now().UTC(), level, scope, message)
	return err
}

func (s *SQLiteStore) RecentLogs(ctx context.Context, limit int) ([]models.SyncLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, timestamp, level, scope, message
		FROM sync_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		var runID sql.NullString
		if err := rows.Scan(&l.ID, &runID, &l.Timestamp, &l.Level, &l.Scope, &l.Message); err != nil {
			return nil, err
		}
		l.RunID = runID.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	var raw interface{}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = string(data)
	}
	_, err := s.db.Exec(`INSERT INTO commands (command, params, created_at) VALUES (?, ?, ?)`,
		cmd, raw, time.Now().UTC())
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
