// Package store provides SQLite-backed client-local state for medchat.
// It holds the persisted settings (tokens, preferences, last-active
// conversation) and a local mirror of fetched message history so the UI
// can show something when the backend is unreachable.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Fixed settings keys. Every persisted value is a plain string.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyLang         = "lang"
	KeyTheme        = "theme"
	KeyLastConvo    = "medchat_last_convo_v1"
)

// Store provides SQLite-backed persistence for client state.
type Store struct {
	db *sql.DB
}

// CachedMessage is one locally mirrored chat message.
type CachedMessage struct {
	Role      string // user, bot
	MType     string // text, image
	Content   string
	ImagePath string
}

// Open opens the SQLite database at dbPath and creates tables if they don't exist.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		convo_id TEXT NOT NULL,
		role TEXT NOT NULL,
		mtype TEXT NOT NULL,
		content TEXT NOT NULL,
		image_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_messages_convo ON messages(convo_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the value stored under key, or "" if the key is absent.
func (s *Store) Get(key string) (string, error) {
	row := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key)

	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan setting %s: %w", key, err)
	}

	return value, nil
}

// Set stores value under key, replacing any existing value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}

	return nil
}

// Delete removes key from the settings table. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}

	return nil
}

// ReplaceMessages replaces the cached message mirror for a conversation.
func (s *Store) ReplaceMessages(convoID string, msgs []CachedMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE convo_id = ?`, convoID); err != nil {
		return fmt.Errorf("clear cached messages: %w", err)
	}

	for _, m := range msgs {
		_, err := tx.Exec(
			`INSERT INTO messages (convo_id, role, mtype, content, image_path)
			 VALUES (?, ?, ?, ?, ?)`,
			convoID, m.Role, m.MType, m.Content, m.ImagePath,
		)
		if err != nil {
			return fmt.Errorf("insert cached message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cached messages: %w", err)
	}

	return nil
}

// CachedMessages returns the locally mirrored messages for a conversation
// in insertion order. Returns an empty slice if nothing is cached.
func (s *Store) CachedMessages(convoID string) ([]CachedMessage, error) {
	rows, err := s.db.Query(
		`SELECT role, mtype, content, image_path
		 FROM messages
		 WHERE convo_id = ?
		 ORDER BY id ASC`,
		convoID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cached messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []CachedMessage
	for rows.Next() {
		var m CachedMessage
		if err := rows.Scan(&m.Role, &m.MType, &m.Content, &m.ImagePath); err != nil {
			return nil, fmt.Errorf("scan cached message: %w", err)
		}
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return msgs, nil
}
