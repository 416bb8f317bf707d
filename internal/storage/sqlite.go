package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the conversation transcript and
// broadcast archive.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "orgcopilot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Turns ---

func (s *Store) SaveTurn(t TurnRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO turns (id, session_id, author, text, created_at, failed, kind, confidence, intent, raw_json, suggestions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Author, t.Text, t.CreatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(t.Failed), t.Kind, t.Confidence, t.Intent, t.RawJSON, t.Suggestions,
	)
	return err
}

func (s *Store) GetTurn(id string) (TurnRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, author, text, created_at, failed, kind, confidence, intent, raw_json, suggestions
		FROM turns WHERE id = ?`, id,
	)
	t, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return TurnRecord{}, ErrNotFound
	}
	return t, err
}

// ListTurns returns turns for one session in creation order. A limit <= 0
// returns all of them. An empty sessionID matches every session.
func (s *Store) ListTurns(sessionID string, limit int) ([]TurnRecord, error) {
	query := `
		SELECT id, session_id, author, text, created_at, failed, kind, confidence, intent, raw_json, suggestions
		FROM turns`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TurnRecord
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func (s *Store) CountTurns() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM turns").Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(r rowScanner) (TurnRecord, error) {
	var t TurnRecord
	var createdAt string
	var failed int
	if err := r.Scan(&t.ID, &t.SessionID, &t.Author, &t.Text, &createdAt, &failed, &t.Kind, &t.Confidence, &t.Intent, &t.RawJSON, &t.Suggestions); err != nil {
		return TurnRecord{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return TurnRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	t.CreatedAt = ts
	t.Failed = failed != 0
	return t, nil
}

// --- Broadcasts ---

// SaveBroadcast inserts or replaces the archived record for a broadcast. A
// draft that fails and is later archived again keeps a single row.
func (s *Store) SaveBroadcast(b BroadcastRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO broadcasts (id, subject, body, audience_role, estimated_recipients, urgency, status, created_at, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, report_json = excluded.report_json`,
		b.ID, b.Subject, b.Body, b.AudienceRole, b.EstimatedRecipients, b.Urgency,
		b.Status, b.CreatedAt.UTC().Format(time.RFC3339Nano), b.ReportJSON,
	)
	return err
}

func (s *Store) GetBroadcast(id string) (BroadcastRecord, error) {
	var b BroadcastRecord
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, subject, body, audience_role, estimated_recipients, urgency, status, created_at, report_json
		FROM broadcasts WHERE id = ?`, id,
	).Scan(&b.ID, &b.Subject, &b.Body, &b.AudienceRole, &b.EstimatedRecipients, &b.Urgency, &b.Status, &createdAt, &b.ReportJSON)
	if err == sql.ErrNoRows {
		return BroadcastRecord{}, ErrNotFound
	}
	if err != nil {
		return BroadcastRecord{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return BroadcastRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	b.CreatedAt = t
	return b, nil
}

func (s *Store) ListBroadcasts(limit int) ([]BroadcastRecord, error) {
	query := `
		SELECT id, subject, body, audience_role, estimated_recipients, urgency, status, created_at, report_json
		FROM broadcasts ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []BroadcastRecord
	for rows.Next() {
		var b BroadcastRecord
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Subject, &b.Body, &b.AudienceRole, &b.EstimatedRecipients, &b.Urgency, &b.Status, &createdAt, &b.ReportJSON); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		b.CreatedAt = t
		results = append(results, b)
	}
	return results, rows.Err()
}

func (s *Store) CountBroadcasts() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM broadcasts").Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
