package device

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/vclock"
)

//go:embed schema.sql
var schemaSQL string

const metaDeviceID = "device_id"

// Store keeps the buffer on disk so an order survives a crash the moment it
// is applied. Uses SQLite with WAL mode.
type Store struct {
	db *sql.DB
}

// Open creates or opens the buffer database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DeviceID returns the identifier of this device, generating and storing
// it on first use. It never changes afterwards.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaDeviceID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, metaDeviceID, id); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	// re-read in case another process won the insert
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaDeviceID).Scan(&id); err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	return id, nil
}

// Save writes entry, replacing any earlier snapshot of the same order.
func (s *Store) Save(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e.Order)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", e.Order.ID, err)
	}
	clock, err := e.Order.Clock.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode clock %s: %w", e.Order.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, tenant_id, status, sync_status, clock, body, last_rejection, created_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			sync_status = excluded.sync_status,
			clock = excluded.clock,
			body = excluded.body,
			last_rejection = excluded.last_rejection,
			saved_at = excluded.saved_at`,
		e.Order.ID, e.Order.TenantID, string(e.Order.Status), string(e.Order.SyncStatus),
		string(clock), string(body), e.LastRejection,
		e.Order.CreatedAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", e.Order.ID, err)
	}
	return nil
}

// Load returns every stored snapshot of tenantID, oldest first.
func (s *Store) Load(ctx context.Context, tenantID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, clock, last_rejection FROM orders
		WHERE tenant_id = ?
		ORDER BY created_at ASC, id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			body, clock, rejection string
			e                      Entry
		)
		if err := rows.Scan(&body, &clock, &rejection); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &e.Order); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		// the clock column is authoritative
		var c vclock.Clock
		if err := c.UnmarshalJSON([]byte(clock)); err != nil {
			return nil, fmt.Errorf("decode clock of %s: %w", e.Order.ID, err)
		}
		e.Order.Clock = c
		e.LastRejection = rejection
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns how many snapshots of tenantID have the given sync status.
func (s *Store) Count(ctx context.Context, tenantID string, status models.SyncStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE tenant_id = ? AND sync_status = ?`, tenantID, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}
