package mqtt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	client_id       TEXT PRIMARY KEY,
	version         INTEGER NOT NULL,
	expiry_interval INTEGER NOT NULL,
	subscriptions   TEXT NOT NULL,
	outbound        TEXT NOT NULL,
	inbound         TEXT NOT NULL,
	updated_at      INTEGER NOT NULL
);
`

// SQLiteSessionStore persists session state in a SQLite database, so QoS
// flows survive process restarts. Subscriptions and in-flight records are
// stored as JSON columns; the expiry check runs on the stored timestamp.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore opens (and if needed creates) the database at
// path. Use ":memory:" for an ephemeral store in tests.
func NewSQLiteSessionStore(path string) (*SQLiteSessionStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &SQLiteSessionStore{db: db}, nil
}

// Save creates or replaces the state for its client ID.
func (s *SQLiteSessionStore) Save(ctx context.Context, state *SessionState) error {
	subs, err := json.Marshal(state.Subscriptions)
	if err != nil {
		return fmt.Errorf("marshal subscriptions: %w", err)
	}
	outbound, err := json.Marshal(state.Outbound)
	if err != nil {
		return fmt.Errorf("marshal outbound flows: %w", err)
	}
	inbound, err := json.Marshal(state.Inbound)
	if err != nil {
		return fmt.Errorf("marshal inbound flows: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (client_id, version, expiry_interval, subscriptions, outbound, inbound, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			version = excluded.version,
			expiry_interval = excluded.expiry_interval,
			subscriptions = excluded.subscriptions,
			outbound = excluded.outbound,
			inbound = excluded.inbound,
			updated_at = excluded.updated_at`,
		state.ClientID, int(state.Version), int64(state.ExpiryInterval),
		string(subs), string(outbound), string(inbound),
		state.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session %q: %w", state.ClientID, err)
	}
	return nil
}

// Load retrieves state by client ID.
func (s *SQLiteSessionStore) Load(ctx context.Context, clientID string) (*SessionState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, expiry_interval, subscriptions, outbound, inbound, updated_at
		FROM sessions WHERE client_id = ?`, clientID)

	var (
		version   int
		expiry    int64
		subs      string
		outbound  string
		inbound   string
		updatedAt int64
	)
	if err := row.Scan(&version, &expiry, &subs, &outbound, &inbound, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session %q: %w", clientID, err)
	}

	state := &SessionState{
		ClientID:       clientID,
		Version:        Version(version),
		ExpiryInterval: uint32(expiry),
		UpdatedAt:      time.Unix(updatedAt, 0),
	}
	if err := json.Unmarshal([]byte(subs), &state.Subscriptions); err != nil {
		return nil, fmt.Errorf("unmarshal subscriptions: %w", err)
	}
	if err := json.Unmarshal([]byte(outbound), &state.Outbound); err != nil {
		return nil, fmt.Errorf("unmarshal outbound flows: %w", err)
	}
	if err := json.Unmarshal([]byte(inbound), &state.Inbound); err != nil {
		return nil, fmt.Errorf("unmarshal inbound flows: %w", err)
	}
	return state, nil
}

// Delete removes state by client ID.
func (s *SQLiteSessionStore) Delete(ctx context.Context, clientID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("delete session %q: %w", clientID, err)
	}
	return nil
}

// List returns every stored client ID.
func (s *SQLiteSessionStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client_id FROM sessions ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Cleanup removes expired state.
func (s *SQLiteSessionStore) Cleanup(ctx context.Context) (int, error) {
	// 0xFFFFFFFF marks sessions that never expire.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expiry_interval < 4294967295
		  AND updated_at + expiry_interval < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the underlying database.
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}
