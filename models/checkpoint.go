package models

import "time"

type SyncType string

const (
	SyncProperties SyncType = "properties"
	SyncMedia      SyncType = "media"
)

type SyncStatus string

const (
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusError      SyncStatus = "error"
	SyncStatusInProgress SyncStatus = "in_progress"
)

// SyncCheckpoint is the durable watermark for one sync type.
type SyncCheckpoint struct {
	SyncType          SyncType   `json:"sync_type" db:"sync_type"`
	LastSyncTimestamp *time.Time `json:"last_sync_timestamp" db:"last_sync_timestamp"`
	LastSyncStatus    SyncStatus `json:"last_sync_status" db:"last_sync_status"`
	LastSyncMessage   string     `json:"last_sync_message" db:"last_sync_message"`
	RecordsSynced     int        `json:"records_synced" db:"records_synced"`
	RecordsFailed     int        `json:"records_failed" db:"records_failed"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Watermark returns the lower bound for the next fetch. Absent means epoch.
func (c *SyncCheckpoint) Watermark() time.Time {
	if c == nil || c.LastSyncTimestamp == nil {
		return time.Unix(0, 0).UTC()
	}
	return *c.LastSyncTimestamp
}
