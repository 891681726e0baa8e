package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/heritage/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version, one per entry in migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/heritage.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.heritage.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	snapshotsDir := filepath.Join(baseDir, "snapshots")
	if err := os.MkdirAll(snapshotsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	_ = os.Chmod(snapshotsDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, "heritage.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	// 1: capsules, tokens, purchases and the shared id sequence
	`
	CREATE TABLE IF NOT EXISTS capsules (
	  id              INTEGER PRIMARY KEY,
	  owner           TEXT NOT NULL,
	  contents_json   TEXT NOT NULL,
	  unlock_time     INTEGER NOT NULL,
	  recipients_json TEXT NOT NULL,
	  is_public       INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_capsules_public_unlock
	ON capsules(unlock_time)
	WHERE is_public = 1;

	CREATE TABLE IF NOT EXISTS heritage_tokens (
	  token_id      INTEGER PRIMARY KEY,
	  capsule_id    INTEGER NOT NULL UNIQUE REFERENCES capsules(id),
	  owner         TEXT NOT NULL,
	  metadata_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_heritage_tokens_owner
	ON heritage_tokens(owner, token_id);

	CREATE TABLE IF NOT EXISTS purchases (
	  purchase_id INTEGER PRIMARY KEY,
	  buyer       TEXT NOT NULL,
	  timestamp   INTEGER NOT NULL,
	  amount      INTEGER NOT NULL,
	  block_index INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_buyer
	ON purchases(buyer, purchase_id);

	CREATE TABLE IF NOT EXISTS id_sequence (
	  name    TEXT PRIMARY KEY,
	  last_id INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO id_sequence (name, last_id) VALUES ('capsule', 0);
	`,
}

// migrate applies pending migrations in order, each in its own transaction.
// A database written by a newer binary is refused.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		// user_version is transactional in SQLite
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", v+1, err)
		}
	}
	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
