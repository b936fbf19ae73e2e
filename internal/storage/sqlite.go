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

// Store wraps a SQLite database holding video signing records.
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
		dsn = filepath.Join(dataDir, "clipsign.db")
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

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
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

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
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

	// Sort by filename to guarantee ascending order.
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

		// Check if already applied.
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

// AppliedMigrations returns the list of applied migration versions in ascending order.
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

const videoColumns = "id, original_name, content_hash, output_name, device_info, status, error_detail, created_at, completed_at"

// CreateVideo persists a new record. The caller sets ID, OriginalName,
// ContentHash, DeviceInfo and CreatedAt; status starts as processing.
func (s *Store) CreateVideo(v Video) error {
	status := v.Status
	if status == "" {
		status = StatusProcessing
	}
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO videos (id, original_name, content_hash, output_name, device_info, status, error_detail, created_at, completed_at)
		VALUES (?, ?, ?, '', ?, ?, '', ?, NULL)`,
		v.ID, v.OriginalName, v.ContentHash, v.DeviceInfo, status,
		createdAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetVideo fetches a record by id, or ErrNotFound.
func (s *Store) GetVideo(id string) (Video, error) {
	row := s.db.QueryRow(`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return Video{}, ErrNotFound
	}
	return v, err
}

// ListVideos returns the most recently created records, newest first.
func (s *Store) ListVideos(limit int) ([]Video, error) {
	rows, err := s.db.Query(`
		SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

// CompleteVideo moves a processing record to completed, setting the output
// name and completion time in the same statement so readers never observe a
// completed record without its artifact name. Returns ErrAlreadyFinal if the
// record already reached a terminal state.
func (s *Store) CompleteVideo(id, outputName string) error {
	return s.finalize(id, `
		UPDATE videos SET status = ?, output_name = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		StatusCompleted, outputName, time.Now().UTC().Format(time.RFC3339), id, StatusProcessing)
}

// FailVideo moves a processing record to failed with a human-readable cause.
func (s *Store) FailVideo(id, errDetail string) error {
	return s.finalize(id, `
		UPDATE videos SET status = ?, error_detail = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		StatusFailed, errDetail, time.Now().UTC().Format(time.RFC3339), id, StatusProcessing)
}

func (s *Store) finalize(id, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// The guarded update matched nothing: either the record is gone or it
	// already reached a terminal state.
	var status string
	err = s.db.QueryRow(`SELECT status FROM videos WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrAlreadyFinal
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(r rowScanner) (Video, error) {
	var v Video
	var createdAt string
	var completedAt sql.NullString
	err := r.Scan(&v.ID, &v.OriginalName, &v.ContentHash, &v.OutputName, &v.DeviceInfo,
		&v.Status, &v.ErrorDetail, &createdAt, &completedAt)
	if err != nil {
		return Video{}, err
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Video{}, fmt.Errorf("parsing created_at for video %s: %w", v.ID, err)
	}
	if completedAt.Valid && completedAt.String != "" {
		if v.CompletedAt, err = time.Parse(time.RFC3339, completedAt.String); err != nil {
			return Video{}, fmt.Errorf("parsing completed_at for video %s: %w", v.ID, err)
		}
	}
	return v, nil
}
