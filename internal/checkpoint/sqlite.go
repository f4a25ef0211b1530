package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps snapshots in a single SQLite database, one row per
// checkpoint plus a singleton state row.
type SQLiteStorage struct {
	db        *sql.DB
	autoSlots int
}

// NewSQLiteStorage opens (and initializes) the database file.
func NewSQLiteStorage(dbPath string, autoSlots int) (*SQLiteStorage, error) {
	if autoSlots <= 0 {
		autoSlots = DefaultAutoSlots
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStorage{db: db, autoSlots: autoSlots}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			saved_at TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			slot INTEGER,
			name TEXT NOT NULL DEFAULT '',
			saved_at TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_manual_slot
			ON checkpoints(slot) WHERE kind = 'manual'`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_kind ON checkpoints(kind, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Load() (*entity.Snapshot, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM state WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *SQLiteStorage) Save(snap *entity.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO state (id, saved_at, data) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at, data = excluded.data
	`, snap.SavedAt.Format(time.RFC3339Nano), string(data))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveAutoCheckpoint(snap *entity.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := s.db.Exec(`
		INSERT INTO checkpoints (kind, name, saved_at, data) VALUES ('auto', '', ?, ?)
	`, snap.SavedAt.Format(time.RFC3339Nano), string(data)); err != nil {
		return fmt.Errorf("save auto checkpoint: %w", err)
	}
	// Evict the oldest autos past capacity.
	if _, err := s.db.Exec(`
		DELETE FROM checkpoints WHERE kind = 'auto' AND id NOT IN (
			SELECT id FROM checkpoints WHERE kind = 'auto' ORDER BY id DESC LIMIT ?
		)
	`, s.autoSlots); err != nil {
		return fmt.Errorf("evict auto checkpoints: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveManualCheckpoint(slot int, name string, snap *entity.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE kind = 'manual' AND slot = ?`, slot); err != nil {
		return fmt.Errorf("clear manual slot: %w", err)
	}
	if _, err := s.db.Exec(`
		INSERT INTO checkpoints (kind, slot, name, saved_at, data) VALUES ('manual', ?, ?, ?, ?)
	`, slot, name, snap.SavedAt.Format(time.RFC3339Nano), string(data)); err != nil {
		return fmt.Errorf("save manual checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteManualCheckpoint(slot int) error {
	if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE kind = 'manual' AND slot = ?`, slot); err != nil {
		return fmt.Errorf("delete manual checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListCheckpoints() ([]Info, error) {
	var infos []Info

	rows, err := s.db.Query(`SELECT saved_at FROM checkpoints WHERE kind = 'auto' ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list auto checkpoints: %w", err)
	}
	i := 0
	for rows.Next() {
		var savedAt string
		if err := rows.Scan(&savedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan auto checkpoint: %w", err)
		}
		infos = append(infos, Info{Index: i, Kind: KindAuto, SavedAt: parseTime(savedAt)})
		i++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auto checkpoints: %w", err)
	}

	rows, err = s.db.Query(`SELECT slot, name, saved_at FROM checkpoints WHERE kind = 'manual' ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("list manual checkpoints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var slot int
		var name, savedAt string
		if err := rows.Scan(&slot, &name, &savedAt); err != nil {
			return nil, fmt.Errorf("scan manual checkpoint: %w", err)
		}
		infos = append(infos, Info{Index: s.autoSlots + slot, Kind: KindManual, Name: name, SavedAt: parseTime(savedAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manual checkpoints: %w", err)
	}
	return infos, nil
}

func (s *SQLiteStorage) LoadCheckpoint(index int) (*entity.Snapshot, error) {
	if index < 0 {
		return nil, nil
	}
	var data string
	var err error
	if index < s.autoSlots {
		err = s.db.QueryRow(`
			SELECT data FROM checkpoints WHERE kind = 'auto'
			ORDER BY id DESC LIMIT 1 OFFSET ?
		`, index).Scan(&data)
	} else {
		err = s.db.QueryRow(`
			SELECT data FROM checkpoints WHERE kind = 'manual' AND slot = ?
		`, index-s.autoSlots).Scan(&data)
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return decodeSnapshot(data)
}

func decodeSnapshot(data string) (*entity.Snapshot, error) {
	var snap entity.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
