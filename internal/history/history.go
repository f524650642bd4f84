// Package history implements the persisted-state layout of spec §6: one
// row per run, keyed by scanId, holding the JSON-serialized
// entity.TopologyReport, with retention keeping only the N newest. Backed
// by modernc.org/sqlite (pure Go, no cgo) rather than a flat-file directory
// so Latest/prune become indexed queries instead of a full directory scan.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"labtopo/internal/entity"
)

// Store manages a database of persisted TopologyReports.
type Store struct {
	db        *sql.DB
	retention int
}

// NewStore opens (creating if absent) a history database rooted at dir,
// keeping at most retention of the newest reports after each Save
// (retention <= 0 means unlimited).
func NewStore(dir string, retention int) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("history: create dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, "history.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	s := &Store{db: db, retention: retention}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scans (
			scan_id    TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Save writes report under its scan id and then prunes older reports beyond
// the retention window.
func (s *Store) Save(report *entity.TopologyReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("history: marshal report %s: %w", report.ScanID, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO scans (scan_id, data) VALUES (?, ?)
		ON CONFLICT(scan_id) DO UPDATE SET data = excluded.data
	`, report.ScanID, string(data))
	if err != nil {
		return fmt.Errorf("history: save %s: %w", report.ScanID, err)
	}

	return s.prune()
}

// Latest returns the most recent report before scanID (by lexical, hence
// chronological, scanId ordering), or nil if there is no prior run. A diff
// baseline lookup is the only caller today.
func (s *Store) Latest(beforeScanID string) (*entity.TopologyReport, error) {
	row := s.db.QueryRow(`
		SELECT scan_id FROM scans WHERE ? = '' OR scan_id < ?
		ORDER BY scan_id DESC LIMIT 1
	`, beforeScanID, beforeScanID)

	var best string
	if err := row.Scan(&best); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("history: latest before %s: %w", beforeScanID, err)
	}
	return s.Load(best)
}

// Load reads and decodes the report stored under scanID.
func (s *Store) Load(scanID string) (*entity.TopologyReport, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM scans WHERE scan_id = ?`, scanID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history: %s: not found", scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", scanID, err)
	}

	var report entity.TopologyReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("history: unmarshal %s: %w", scanID, err)
	}
	return &report, nil
}

// prune deletes every report beyond the retention newest.
func (s *Store) prune() error {
	if s.retention <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM scans WHERE scan_id NOT IN (
			SELECT scan_id FROM scans ORDER BY scan_id DESC LIMIT ?
		)
	`, s.retention)
	if err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
