package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pins (
	id         TEXT PRIMARY KEY,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS photos (
	id         TEXT PRIMARY KEY,
	pin_id     TEXT NOT NULL REFERENCES pins(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL DEFAULT 0,
	title      TEXT NOT NULL DEFAULT '',
	image_url  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_photos_pin ON photos(pin_id, position);
`

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore persists pins and photos in a SQLite database.
//
// Writes are collected in one transaction that Save commits and Discard
// rolls back. The transaction is shared by every caller of the store, so
// callers serialize their write-then-Save sequences themselves. Reads see the
// uncommitted writes. Changes that were never saved are rolled back by Close.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	tx     *sql.Tx
	logger zerolog.Logger
}

// OpenSQLite opens (and if needed creates) the database at path.
// ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pending transaction and in-memory databases consistent
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Debug().Str("path", path).Msg("sqlite store opened")
	return &SQLiteStore{db: db, logger: logger}, nil
}

// reader returns the pending transaction if there is one
func (s *SQLiteStore) reader() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// writer returns the pending transaction, starting one if needed
func (s *SQLiteStore) writer(ctx context.Context) (querier, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	// the transaction outlives ctx, which only bounds this call
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *SQLiteStore) CreatePin(ctx context.Context, pin Pin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer(ctx)
	if err != nil {
		return err
	}

	_, err = w.ExecContext(ctx,
		`INSERT INTO pins (id, latitude, longitude, created_at) VALUES (?, ?, ?, ?)`,
		pin.ID, pin.Latitude, pin.Longitude, pin.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert pin %s: %w", pin.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPin(ctx context.Context, id string) (Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pin Pin
	var created int64
	err := s.reader().QueryRowContext(ctx,
		`SELECT id, latitude, longitude, created_at FROM pins WHERE id = ?`, id).
		Scan(&pin.ID, &pin.Latitude, &pin.Longitude, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Pin{}, fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Pin{}, fmt.Errorf("failed to query pin %s: %w", id, err)
	}
	pin.CreatedAt = time.Unix(0, created).UTC()
	return pin, nil
}

func (s *SQLiteStore) ListPins(ctx context.Context) ([]Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.reader().QueryContext(ctx,
		`SELECT id, latitude, longitude, created_at FROM pins ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	pins := []Pin{}
	for rows.Next() {
		var pin Pin
		var created int64
		if err := rows.Scan(&pin.ID, &pin.Latitude, &pin.Longitude, &created); err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pin.CreatedAt = time.Unix(0, created).UTC()
		pins = append(pins, pin)
	}
	return pins, rows.Err()
}

func (s *SQLiteStore) DeletePin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer(ctx)
	if err != nil {
		return err
	}

	// photos go with the pin through ON DELETE CASCADE
	res, err := w.ExecContext(ctx, `DELETE FROM pins WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pin %s: %w", id, err)
	}
	return requireAffected(res, "pin", id)
}

func (s *SQLiteStore) CreatePhoto(ctx context.Context, photo Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.reader().QueryRowContext(ctx, `SELECT COUNT(*) FROM pins WHERE id = ?`, photo.PinID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to query pin %s: %w", photo.PinID, err)
	}
	if exists == 0 {
		return fmt.Errorf("pin %s: %w", photo.PinID, ErrNotFound)
	}

	w, err := s.writer(ctx)
	if err != nil {
		return err
	}

	_, err = w.ExecContext(ctx,
		`INSERT OR IGNORE INTO photos (id, pin_id, position, title, image_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		photo.ID, photo.PinID, photo.Position, photo.Title, photo.ImageURL, photo.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert photo %s: %w", photo.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPhoto(ctx context.Context, id string) (Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, err := scanPhoto(s.reader().QueryRowContext(ctx,
		`SELECT id, pin_id, position, title, image_url, created_at FROM photos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Photo{}, fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Photo{}, fmt.Errorf("failed to query photo %s: %w", id, err)
	}
	return photo, nil
}

func (s *SQLiteStore) DeletePhoto(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.writer(ctx)
	if err != nil {
		return err
	}

	res, err := w.ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", id, err)
	}
	return requireAffected(res, "photo", id)
}

func (s *SQLiteStore) ListPhotos(ctx context.Context, pinID string) ([]Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.reader().QueryRowContext(ctx, `SELECT COUNT(*) FROM pins WHERE id = ?`, pinID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to query pin %s: %w", pinID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("pin %s: %w", pinID, ErrNotFound)
	}

	rows, err := s.reader().QueryContext(ctx,
		`SELECT id, pin_id, position, title, image_url, created_at FROM photos WHERE pin_id = ? ORDER BY position, id`, pinID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos of pin %s: %w", pinID, err)
	}
	defer rows.Close()

	photos := []Photo{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// Save commits the pending transaction
func (s *SQLiteStore) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}
	return nil
}

// Discard rolls back the pending transaction
func (s *SQLiteStore) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to discard changes: %w", err)
	}
	return nil
}

// Close rolls back unsaved changes and closes the database
func (s *SQLiteStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		s.logger.Warn().Msg("discarding unsaved changes")
		if err := s.tx.Rollback(); err != nil {
			s.logger.Error().Err(err).Msg("rollback failed")
		}
		s.tx = nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPhoto(row rowScanner) (Photo, error) {
	var photo Photo
	var created int64
	if err := row.Scan(&photo.ID, &photo.PinID, &photo.Position, &photo.Title, &photo.ImageURL, &created); err != nil {
		return Photo{}, err
	}
	photo.CreatedAt = time.Unix(0, created).UTC()
	return photo, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
