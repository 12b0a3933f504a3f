package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"photodedup/internal/models"
)

// Storage persists the hash cache, the last duplicate grouping and scan history
type Storage struct {
	db     *sql.DB
	dbPath string
}

// NewStorage opens (or creates) the database at dbPath and ensures the schema.
func NewStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL lets hashing workers read while one of them writes
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.dbPath
}

// Current schema version
const schemaVersion = 2

// migrations defines all schema migrations
// Each migration should be idempotent (safe to run multiple times)
var migrations = []struct {
	version     int
	description string
	up          string
}{
	{
		version:     1,
		description: "Initial schema",
		up:          "", // Handled by base schema creation
	},
	{
		version:     2,
		description: "Add total_errors column to scan history",
		up: `
			ALTER TABLE scan_history ADD COLUMN total_errors INTEGER DEFAULT 0;
		`,
	},
}

// init creates the database schema
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS hash_cache (
		path TEXT PRIMARY KEY,
		file_size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		version TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		perceptual INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_hash_cache_content ON hash_cache(content_hash);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		path TEXT UNIQUE NOT NULL,
		file_size INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		format TEXT NOT NULL,
		score REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_group_members_group_id ON group_members(group_id);

	CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder TEXT NOT NULL,
		scanned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		total_images INTEGER NOT NULL,
		total_groups INTEGER NOT NULL,
		total_duplicates INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := s.migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// migrate runs pending schema migrations
func (s *Storage) migrate() error {
	currentVersion := s.getSchemaVersion()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if m.up == "" {
			s.setSchemaVersion(m.version)
			continue
		}

		// Check if migration is needed (column might already exist)
		if m.version == 2 && s.columnExists("scan_history", "total_errors") {
			s.setSchemaVersion(m.version)
			continue
		}

		if _, err := s.db.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}

		s.setSchemaVersion(m.version)
	}

	return nil
}

// SchemaVersion returns the applied schema version
func (s *Storage) SchemaVersion() int {
	return s.getSchemaVersion()
}

func (s *Storage) getSchemaVersion() int {
	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0
	}
	return version
}

func (s *Storage) setSchemaVersion(version int) {
	s.db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
}

func (s *Storage) columnExists(table, column string) bool {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetHash returns the cached hash set for path. The entry is only returned
// when size, modification time and version all match; anything else is a miss.
func (s *Storage) GetHash(path string, size int64, modTime time.Time, version string) (*models.HashSet, bool, error) {
	var (
		storedSize    int64
		storedMod     int64
		storedVersion string
		perceptual    int64
		hs            models.HashSet
	)
	err := s.db.QueryRow(`
		SELECT file_size, mod_time, version, algorithm, content_hash, perceptual
		FROM hash_cache WHERE path = ?
	`, path).Scan(&storedSize, &storedMod, &storedVersion, &hs.Algorithm, &hs.ContentHash, &perceptual)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query hash: %w", err)
	}

	if storedSize != size || storedMod != modTime.UnixNano() || storedVersion != version {
		return nil, false, nil
	}

	// Cast int64 back to uint64; SQLite integers are signed
	hs.Perceptual = uint64(perceptual)
	hs.Version = storedVersion
	return &hs, true, nil
}

// PutHash stores or replaces the cached hash set for path.
func (s *Storage) PutHash(path string, size int64, modTime time.Time, hs *models.HashSet) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO hash_cache (path, file_size, mod_time, version, algorithm, content_hash, perceptual, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, path, size, modTime.UnixNano(), hs.Version, hs.Algorithm, hs.ContentHash, int64(hs.Perceptual))
	if err != nil {
		return fmt.Errorf("failed to store hash for %s: %w", path, err)
	}
	return nil
}

// ForgetHash removes the cache entry for path
func (s *Storage) ForgetHash(path string) error {
	_, err := s.db.Exec("DELETE FROM hash_cache WHERE path = ?", path)
	return err
}

// CacheSize returns the number of cached hash entries
func (s *Storage) CacheSize() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM hash_cache").Scan(&count)
	return count, err
}

// SaveGroups replaces the stored duplicate groups
func (s *Storage) SaveGroups(groups []*models.DuplicateGroup) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM group_members"); err != nil {
		return fmt.Errorf("failed to reset groups: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO group_members (group_id, position, path, file_size, width, height, format, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, group := range groups {
		for pos, img := range group.Images {
			_, err := stmt.Exec(group.ID, pos, img.Path, img.Size, img.Width, img.Height, img.Format, img.Score)
			if err != nil {
				return fmt.Errorf("failed to save group member %s: %w", img.Path, err)
			}
		}
	}

	return tx.Commit()
}

// GetDuplicateGroups returns all stored duplicate groups with their images.
// The first image of each group is its primary.
func (s *Storage) GetDuplicateGroups() ([]*models.DuplicateGroup, error) {
	rows, err := s.db.Query(`
		SELECT group_id, path, file_size, width, height, format, score
		FROM group_members
		ORDER BY group_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var (
		groups  []*models.DuplicateGroup
		current *models.DuplicateGroup
	)
	for rows.Next() {
		var groupID int
		img := &models.ImageRecord{}
		if err := rows.Scan(&groupID, &img.Path, &img.Size, &img.Width, &img.Height, &img.Format, &img.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if current == nil || current.ID != groupID {
			current = &models.DuplicateGroup{ID: groupID}
			groups = append(groups, current)
		}
		current.Images = append(current.Images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Groups shrunk to one member by deletions are no longer duplicates
	result := groups[:0]
	for _, g := range groups {
		if len(g.Images) < 2 {
			continue
		}
		g.Primary = g.Images[0]
		g.Duplicates = g.Images[1:]
		result = append(result, g)
	}
	return result, nil
}

// DeleteMember removes a path from the stored groups and the hash cache
func (s *Storage) DeleteMember(path string) error {
	if _, err := s.db.Exec("DELETE FROM group_members WHERE path = ?", path); err != nil {
		return err
	}
	return s.ForgetHash(path)
}

// RecordScan records a scan in history
func (s *Storage) RecordScan(folder string, totalImages, totalGroups, totalDuplicates, totalErrors int) error {
	_, err := s.db.Exec(`
		INSERT INTO scan_history (folder, total_images, total_groups, total_duplicates, total_errors)
		VALUES (?, ?, ?, ?, ?)
	`, folder, totalImages, totalGroups, totalDuplicates, totalErrors)
	return err
}

// ScanRecord is one row of scan history
type ScanRecord struct {
	Folder          string
	ScannedAt       time.Time
	TotalImages     int
	TotalGroups     int
	TotalDuplicates int
	TotalErrors     int
}

// LastScan returns the most recent scan, or nil if none was recorded
func (s *Storage) LastScan() (*ScanRecord, error) {
	var (
		rec       ScanRecord
		scannedAt int64
	)
	err := s.db.QueryRow(`
		SELECT folder, CAST(strftime('%s', scanned_at) AS INTEGER), total_images, total_groups, total_duplicates, COALESCE(total_errors, 0)
		FROM scan_history ORDER BY id DESC LIMIT 1
	`).Scan(&rec.Folder, &scannedAt, &rec.TotalImages, &rec.TotalGroups, &rec.TotalDuplicates, &rec.TotalErrors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ScannedAt = time.Unix(scannedAt, 0)
	return &rec, nil
}

// GetGroupCount returns the number of stored duplicate groups
func (s *Storage) GetGroupCount() (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT group_id FROM group_members GROUP BY group_id HAVING COUNT(*) > 1
		)
	`).Scan(&count)
	return count, err
}
