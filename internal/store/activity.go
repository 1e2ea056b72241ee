package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityEntry represents an activity log entry
type ActivityEntry struct {
	ID        string                 `json:"id"`
	CaseID    string                 `json:"case_id,omitempty"`
	Action    string                 `json:"action"`  // "case_created", "notification", "analysis_saved", etc.
	Actor     string                 `json:"actor"`   // user display name or "Sistema"
	Details   map[string]interface{} `json:"details"` // action-specific data
	Timestamp time.Time              `json:"timestamp"`
}

// RecordActivity appends an entry to the activity log.
func (s *Store) RecordActivity(ctx context.Context, entry ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal activity details: %w", err)
	}

	query := `INSERT INTO activity (id, case_id, action, actor, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.CaseID, entry.Action, entry.Actor,
		string(detailsJSON), entry.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}
	return nil
}

// ListActivity returns the most recent entries first. limit <= 0 returns all.
func (s *Store) ListActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	return s.queryActivity(ctx, "", limit)
}

// ListCaseActivity returns entries attached to caseID, most recent first.
func (s *Store) ListCaseActivity(ctx context.Context, caseID string, limit int) ([]ActivityEntry, error) {
	return s.queryActivity(ctx, caseID, limit)
}

func (s *Store) queryActivity(ctx context.Context, caseID string, limit int) ([]ActivityEntry, error) {
	query := `SELECT id, case_id, action, actor, details, timestamp FROM activity`
	var args []interface{}
	if caseID != "" {
		query += ` WHERE case_id = ?`
		args = append(args, caseID)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var entry ActivityEntry
		var caseIDCol *string
		var detailsJSON string
		var ts int64

		if err := rows.Scan(&entry.ID, &caseIDCol, &entry.Action, &entry.Actor, &detailsJSON, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		if caseIDCol != nil {
			entry.CaseID = *caseIDCol
		}
		entry.Timestamp = time.UnixMilli(ts)

		if err := json.Unmarshal([]byte(detailsJSON), &entry.Details); err != nil {
			entry.Details = map[string]interface{}{"raw": detailsJSON}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
