package internal

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	content    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_session ON deliveries(session_id);
`

// Delivery is one outbound user message recorded in the journal
type Delivery struct {
	ID        int64
	SessionID string
	Content   string
	Status    DeliveryStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalFilter narrows Journal.List
type JournalFilter struct {
	SessionID string
	Status    DeliveryStatus
	Limit     int
}

// Journal records every outbound message and its delivery status in SQLite
type Journal struct {
	db  *sql.DB
	now func() time.Time
	mu  sync.Mutex
}

// OpenJournal opens the journal at path and creates its schema
func OpenJournal(path string) (*Journal, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordOutbound stores a pending delivery and returns its id
func (j *Journal) RecordOutbound(sessionID string, msg ChatMessage) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := msg.Status
	if status == "" {
		status = DeliveryPending
	}
	ts := j.now().UTC().Format(time.RFC3339Nano)
	res, err := j.db.Exec(
		"INSERT INTO deliveries (session_id, content, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		sessionID, msg.Content, string(status), ts, ts,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record delivery: %w", err)
	}
	return res.LastInsertId()
}

// UpdateDelivery sets the status of a recorded delivery
func (j *Journal) UpdateDelivery(id int64, status DeliveryStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(
		"UPDATE deliveries SET status = ?, updated_at = ? WHERE id = ?",
		string(status), j.now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delivery %d not found", id)
	}
	return nil
}

// List returns deliveries matching filter, oldest first
func (j *Journal) List(filter JournalFilter) ([]Delivery, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT id, session_id, content, status, created_at, updated_at FROM deliveries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var (
			d                Delivery
			status           string
			created, updated string
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Content, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		d.Status = DeliveryStatus(status)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return deliveries, nil
}
