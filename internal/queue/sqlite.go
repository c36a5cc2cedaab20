package queue

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the crash-durable mirror of the primary queue. It survives
// process death so a teardown flush that was never acknowledged can be
// recovered on the next start via Repopulate.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the mirror database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening mirror database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mirror database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `CREATE TABLE IF NOT EXISTS queued_actions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		action_type TEXT NOT NULL,
		client_timestamp TEXT NOT NULL,
		queued_at INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

// Enqueue inserts the action; re-inserting an existing id is a no-op so the
// mirror can be replayed safely.
func (s *SQLiteStore) Enqueue(action QueuedAction) error {
	_, err := s.db.Exec(
		`INSERT INTO queued_actions (id, action_type, client_timestamp, queued_at, retry_count)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		action.ID, string(action.Type), action.ClientTimestamp, action.QueuedAt, action.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("inserting queued action: %w", err)
	}
	return nil
}

// Dequeue deletes the action with the given id.
func (s *SQLiteStore) Dequeue(id string) error {
	_, err := s.db.Exec(`DELETE FROM queued_actions WHERE id = ?`, id)
	return err
}

// ListAll returns every queued action in insertion order.
func (s *SQLiteStore) ListAll() ([]QueuedAction, error) {
	rows, err := s.db.Query(
		`SELECT id, action_type, client_timestamp, queued_at, retry_count
		 FROM queued_actions ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueuedAction
	for rows.Next() {
		var action QueuedAction
		var actionType string
		if err := rows.Scan(&action.ID, &actionType, &action.ClientTimestamp, &action.QueuedAt, &action.RetryCount); err != nil {
			return nil, err
		}
		action.Type = ActionType(actionType)
		out = append(out, action)
	}
	return out, rows.Err()
}

// IncrementRetry bumps the retry count of the action with the given id.
func (s *SQLiteStore) IncrementRetry(id string) error {
	_, err := s.db.Exec(`UPDATE queued_actions SET retry_count = retry_count + 1 WHERE id = ?`, id)
	return err
}

// Clear drops every queued action.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM queued_actions`)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
