package session

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/fragsize/pkg/migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned by Store.Load for an unknown session id
var ErrNotFound = errors.New("session not found")

// Store persists session snapshots in a SQLite database
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// StoredSession describes a stored snapshot without decoding it
type StoredSession struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MarkerChannel string    `json:"marker_channel"`
	Ladder        string    `json:"ladder"`
	Total         int       `json:"total"`
	Calibrated    int       `json:"calibrated"`
}

// OpenStore opens (creating if needed) the database at path and migrates it
func OpenStore(path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	m := migrate.NewMigrator(db, migrate.NewFSSource(migrations, "migrations", "session_migrations"), logger)
	if err := m.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate session store: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Save inserts or replaces the snapshot of a session
func (st *Store) Save(s *Session) error {
	snap := s.Snapshot()
	sum := s.Summary()

	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}

	_, err = st.db.Exec(`
		INSERT INTO sessions (id, created_at, updated_at, marker_channel, ladder, total, calibrated, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			updated_at = excluded.updated_at,
			marker_channel = excluded.marker_channel,
			ladder = excluded.ladder,
			total = excluded.total,
			calibrated = excluded.calibrated,
			snapshot = excluded.snapshot`,
		snap.ID, snap.Created.UTC(), time.Now().UTC(), snap.MarkerChannel, snap.Ladder.Name,
		sum.Total, sum.Calibrated, data)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", snap.ID, err)
	}

	st.logger.Debugf("stored session %s (%s)", snap.ID, sum)
	return nil
}

// Load returns the stored snapshot of a session
func (st *Store) Load(id string) (*Snapshot, error) {
	var data []byte
	err := st.db.QueryRow("SELECT snapshot FROM sessions WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return UnmarshalSnapshot(data)
}

// List returns the stored sessions, most recently updated first
func (st *Store) List() ([]StoredSession, error) {
	rows, err := st.db.Query(`
		SELECT id, created_at, updated_at, marker_channel, ladder, total, calibrated
		FROM sessions
		ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := []StoredSession{}
	for rows.Next() {
		var s StoredSession
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &s.MarkerChannel, &s.Ladder, &s.Total, &s.Calibrated); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a stored session
func (st *Store) Delete(id string) error {
	res, err := st.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database
func (st *Store) Close() error {
	return st.db.Close()
}
