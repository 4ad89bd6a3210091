package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Arbitrary fixed key for pg_advisory_lock so that only one instance runs
// migrations when several replicas start at once.
const migrationLockID int64 = 4418207

// ApplyMigrations runs every *.up.sql file in dir, in name order, that has
// not been applied yet. Each file's SHA-256 is recorded on first apply and
// checked on every later run; an applied file that was edited afterwards
// aborts the whole process.
func ApplyMigrations(ctx context.Context, db *pgxpool.Pool, dir string) error {
	if dir == "" {
		return fmt.Errorf("migrations directory is required")
	}

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	if _, err := db.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("take migration lock: %w", err)
	}
	defer func() {
		_, _ = db.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)
	}()

	names, err := migrationNames(dir)
	if err != nil {
		return err
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".up.sql")

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		sum := sha256.Sum256(raw)
		checksum := hex.EncodeToString(sum[:])

		applied, err := appliedChecksum(ctx, db, version)
		if err != nil {
			return err
		}
		if applied != "" {
			if applied != checksum {
				return fmt.Errorf("migration %s changed after it was applied", version)
			}
			continue
		}

		if err := applyOne(ctx, db, version, string(raw), checksum); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(ctx context.Context, db *pgxpool.Pool, version, body, checksum string) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, body); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("apply %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)
	`, version, checksum); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("record %s: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", version, err)
	}
	return nil
}

func migrationNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// appliedChecksum returns "" when the version has never been applied.
func appliedChecksum(ctx context.Context, db *pgxpool.Pool, version string) (string, error) {
	var checksum string
	err := db.QueryRow(ctx, `
		SELECT checksum FROM schema_migrations WHERE version=$1
	`, version).Scan(&checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("look up migration %s: %w", version, err)
	}
	return checksum, nil
}
