// Package records persists sealed credential records in SQLite. The store
// never sees plaintext or key material; rows carry only the sealed blob
// fields next to identity and timestamps.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/TuPhung369/PasswordEpic-sub005/internal/vault"
	"github.com/TuPhung369/PasswordEpic-sub005/krypto"
	"github.com/TuPhung369/PasswordEpic-sub005/vaulterr"
)

// DefaultDatabasePath is the relative path for the records database file.
const DefaultDatabasePath = "vault/records.db"

// Config describes how the records database should be opened.
type Config struct {
	// FilePath points to the SQLite database file.
	// If empty, DefaultDatabasePath is used.
	FilePath string
}

// Store is a SQLite-backed record store. Callers must Close it.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT     PRIMARY KEY,
	ciphertext BLOB     NOT NULL,
	iv         BLOB     NOT NULL,
	tag        BLOB     NOT NULL,
	salt       BLOB     NOT NULL,
	created_at INTEGER  NOT NULL,
	updated_at INTEGER  NOT NULL
);`

// Open creates (if needed) and opens the records database.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	dbPath := cfg.FilePath
	if dbPath == "" {
		dbPath = DefaultDatabasePath
	}
	if err := ensureDirectory(dbPath); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorage, "create records directory", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorage, "open records database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close() // best effort cleanup
		return nil, vaulterr.Wrap(vaulterr.CodeStorage, "ping records database", err)
	}
	if _, err := db.Exec(createRecordsTable); err != nil {
		db.Close()
		return nil, vaulterr.Wrap(vaulterr.CodeStorage, "ensure records table", err)
	}

	log.Debug().Str("path", dbPath).Msg("records database opened")
	return &Store{db: db, log: log}, nil
}

func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return errors.New("database path must include a directory")
	}
	return os.MkdirAll(dir, 0o750)
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts a record, or replaces an existing row with the same id and
// refreshes its updated_at.
func (s *Store) Put(ctx context.Context, record vault.Record) error {
	if record.ID == "" {
		return vaulterr.New(vaulterr.CodeValidation, "record id is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, ciphertext, iv, tag, salt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			iv         = excluded.iv,
			tag        = excluded.tag,
			salt       = excluded.salt,
			updated_at = excluded.updated_at`,
		record.ID,
		record.Blob.Ciphertext,
		record.Blob.IV,
		record.Blob.Tag,
		record.Blob.Salt,
		record.CreatedAt.UnixMilli(),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "insert record", err)
	}
	return nil
}

// Get returns the record with the given id. A missing row is a validation
// error naming the id.
func (s *Store) Get(ctx context.Context, id string) (vault.Record, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT id, ciphertext, iv, tag, salt, created_at, updated_at
		 FROM records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return vault.Record{}, vaulterr.New(vaulterr.CodeValidation, "no record with id "+id)
	}
	if err != nil {
		return vault.Record{}, vaulterr.Wrap(vaulterr.CodeStorage, "select record", err)
	}
	return record, nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "delete record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeStorage, "delete rows affected", err)
	}
	if n == 0 {
		return vaulterr.New(vaulterr.CodeValidation, "no record with id "+id)
	}
	return nil
}

// List returns all records ordered by creation time.
func (s *Store) List(ctx context.Context) ([]vault.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ciphertext, iv, tag, salt, created_at, updated_at
		 FROM records ORDER BY created_at, id`)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorage, "select records", err)
	}
	defer rows.Close()

	var results []vault.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, vaulterr.Wrap(vaulterr.CodeStorage, "scan record row", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorage, "iterate record rows", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (vault.Record, error) {
	var (
		record             vault.Record
		blob               krypto.Blob
		createdMS, updated int64
	)
	if err := row.Scan(
		&record.ID,
		&blob.Ciphertext,
		&blob.IV,
		&blob.Tag,
		&blob.Salt,
		&createdMS,
		&updated,
	); err != nil {
		return vault.Record{}, err
	}
	record.Blob = blob
	record.CreatedAt = time.UnixMilli(createdMS).UTC()
	record.UpdatedAt = time.UnixMilli(updated).UTC()
	return record, nil
}
