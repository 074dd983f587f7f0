// Package store persists analysis runs and their usage rows in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Run is the summary of one analysis.
type Run struct {
	ID                 string
	ProjectKey         string
	Timestamp          time.Time
	DependencyCount    int
	MappedNodeCount    int
	MappedClassCount   int
	MappedRefCount     int
	UnmappedClassCount int
	UnmappedRefCount   int
	UnattributedCount  int
	TransitiveUsed     int
}

// Usage is one class/member row. NodeKey is empty for unmapped rows; Member
// is empty for type-only references.
type Usage struct {
	NodeKey string
	Class   string
	Member  string
	Access  string
	Mapped  bool
}

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("store path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("store path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when watch mode saves often.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}
	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveRun stores run and its usages in one transaction and returns the run
// ID, generating one when run.ID is empty.
func (s *Store) SaveRun(run Run, usages []Usage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.ProjectKey = strings.TrimSpace(run.ProjectKey)
	if run.ProjectKey == "" {
		run.ProjectKey = "default"
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}

	err := s.withRetry("save run", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
INSERT INTO runs (
  run_id, project_key, ts_utc, dependency_count, mapped_node_count, mapped_class_count,
  mapped_reference_count, unmapped_class_count, unmapped_reference_count, unattributed_count,
  transitive_used_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  ts_utc=excluded.ts_utc,
  dependency_count=excluded.dependency_count,
  mapped_node_count=excluded.mapped_node_count,
  mapped_class_count=excluded.mapped_class_count,
  mapped_reference_count=excluded.mapped_reference_count,
  unmapped_class_count=excluded.unmapped_class_count,
  unmapped_reference_count=excluded.unmapped_reference_count,
  unattributed_count=excluded.unattributed_count,
  transitive_used_count=excluded.transitive_used_count
`,
			run.ID,
			run.ProjectKey,
			run.Timestamp.UTC().Format(time.RFC3339Nano),
			run.DependencyCount,
			run.MappedNodeCount,
			run.MappedClassCount,
			run.MappedRefCount,
			run.UnmappedClassCount,
			run.UnmappedRefCount,
			run.UnattributedCount,
			run.TransitiveUsed,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`DELETE FROM usages WHERE run_id = ?`, run.ID); err != nil {
			_ = tx.Rollback()
			return err
		}
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO usages (run_id, node_key, class_name, member, access, mapped) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()
		for _, u := range usages {
			if _, err := stmt.Exec(run.ID, u.NodeKey, u.Class, u.Member, u.Access, u.Mapped); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

// LoadRuns returns the runs of projectKey at or after since, oldest first.
func (s *Store) LoadRuns(projectKey string, since time.Time) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectKey = strings.TrimSpace(projectKey)
	if projectKey == "" {
		projectKey = "default"
	}

	query := `
SELECT
  run_id, project_key, ts_utc, dependency_count, mapped_node_count, mapped_class_count,
  mapped_reference_count, unmapped_class_count, unmapped_reference_count, unattributed_count,
  transitive_used_count
FROM runs
WHERE project_key = ?`
	args := []any{projectKey}
	if !since.IsZero() {
		query += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY ts_utc ASC, run_id ASC"

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(query, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run   Run
			tsRaw string
		)
		if err := rows.Scan(
			&run.ID,
			&run.ProjectKey,
			&tsRaw,
			&run.DependencyCount,
			&run.MappedNodeCount,
			&run.MappedClassCount,
			&run.MappedRefCount,
			&run.UnmappedClassCount,
			&run.UnmappedRefCount,
			&run.UnattributedCount,
			&run.TransitiveUsed,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		run.Timestamp = ts.UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// LoadUsages returns the rows of one run ordered by node, class and member.
func (s *Store) LoadUsages(runID string) ([]Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load usages", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT node_key, class_name, member, access, mapped
FROM usages
WHERE run_id = ?
ORDER BY node_key ASC, class_name ASC, member ASC, access ASC`, runID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usages := make([]Usage, 0)
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.NodeKey, &u.Class, &u.Member, &u.Access, &u.Mapped); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		usages = append(usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return usages, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
