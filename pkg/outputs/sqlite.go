package outputs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists tool outputs in a SQLite database file.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite store at the given path, creating
// parent directories as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// OpenSQLiteInMemory creates an in-memory database, useful for testing
// the SQLite path without touching disk.
func OpenSQLiteInMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_outputs (
			id TEXT PRIMARY KEY,
			tool_name TEXT NOT NULL,
			conversation_id TEXT,
			message_id TEXT,
			created_at INTEGER NOT NULL,
			success INTEGER NOT NULL,
			parameters TEXT,
			output TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tool_outputs_created
		ON tool_outputs(created_at);

		CREATE INDEX IF NOT EXISTS idx_tool_outputs_conversation
		ON tool_outputs(conversation_id, created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Store implements Store.
func (s *SQLiteStore) Store(record Record) (Ref, error) {
	output, err := json.Marshal(record.Output)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to serialize output: %w", err)
	}
	parameters, err := json.Marshal(record.Parameters)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to serialize parameters: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO tool_outputs
		 (id, tool_name, conversation_id, message_id, created_at, success, parameters, output)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ToolName, record.ConversationID, record.MessageID,
		record.CreatedAt, boolToInt(record.Success), string(parameters), string(output),
	)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to store tool output: %w", err)
	}
	return Ref{ID: record.ID, Storage: "sqlite"}, nil
}

// Read implements Store.
func (s *SQLiteStore) Read(id string) (Record, error) {
	row := s.db.QueryRow(
		`SELECT id, tool_name, conversation_id, message_id, created_at, success, parameters, output
		 FROM tool_outputs WHERE id = ?`, id)
	return scanRecord(row)
}

// Exists implements Store.
func (s *SQLiteStore) Exists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM tool_outputs WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tool output: %w", err)
	}
	return true, nil
}

// List implements Store. Records come back newest first.
func (s *SQLiteStore) List() ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, tool_name, conversation_id, message_id, created_at, success, parameters, output
		 FROM tool_outputs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool outputs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteOlderThan implements Store.
func (s *SQLiteStore) DeleteOlderThan(cutoff int64) (int, error) {
	result, err := s.db.Exec(`DELETE FROM tool_outputs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old tool outputs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted tool outputs: %w", err)
	}
	return int(affected), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var record Record
	var conversationID, messageID, parameters sql.NullString
	var success int
	var output string

	err := row.Scan(&record.ID, &record.ToolName, &conversationID, &messageID,
		&record.CreatedAt, &success, &parameters, &output)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read tool output: %w", err)
	}

	record.ConversationID = conversationID.String
	record.MessageID = messageID.String
	record.Success = success != 0

	if parameters.Valid && parameters.String != "" {
		if err := json.Unmarshal([]byte(parameters.String), &record.Parameters); err != nil {
			return Record{}, fmt.Errorf("failed to decode stored parameters: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(output), &record.Output); err != nil {
		return Record{}, fmt.Errorf("failed to decode stored output: %w", err)
	}
	return record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
