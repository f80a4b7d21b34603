package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pipelink/internal/config"
	"pipelink/internal/envelope"
)

// Direction records which way an envelope travelled.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// DefaultListLimit applies when a Filter leaves Limit unset.
const DefaultListLimit = 100

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one journaled envelope.
type Entry struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Direction  Direction `json:"direction"`
	Identity   string    `json:"identity"`
	Kind       string    `json:"kind"`
	ModelType  string    `json:"model_type"`
	RequestID  string    `json:"request_id,omitempty"`
	Size       int       `json:"size"`
	Error      string    `json:"error,omitempty"`
}

// EntryFor describes env as seen on identity.
func EntryFor(direction Direction, identity string, env envelope.Envelope, size int) Entry {
	return Entry{
		Direction: direction,
		Identity:  identity,
		Kind:      env.Kind.String(),
		ModelType: env.ModelType,
		RequestID: env.RequestID,
		Size:      size,
		Error:     env.Error,
	}
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Identity  string
	Direction Direction
	ModelType string
	RequestID string
	Since     time.Time
	Limit     int
}

// Health summarises the journal database.
type Health struct {
	DBPath         string    `json:"db_path"`
	DatabaseExists bool      `json:"database_exists"`
	SchemaVersion  string    `json:"schema_version"`
	Entries        int       `json:"entries"`
	Oldest         time.Time `json:"oldest,omitzero"`
	Newest         time.Time `json:"newest,omitzero"`
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db      *sql.DB
	path    string
	version string
}

// Open creates the data directory if needed and opens the journal database
// configured in cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JournalPath())
}

// OpenPath opens or creates the journal at dbPath and applies migrations.
func OpenPath(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	version, err := store.migrate(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.version = version
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends entry. A zero RecordedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, entry Entry) (Entry, error) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	entry.RecordedAt = entry.RecordedAt.UTC()
	if entry.Direction != Inbound && entry.Direction != Outbound {
		return Entry{}, fmt.Errorf("journal record: invalid direction %q", entry.Direction)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO messages (
            recorded_at, direction, identity, kind, model_type, request_id, size, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RecordedAt.Format(timeLayout),
		string(entry.Direction),
		entry.Identity,
		entry.Kind,
		entry.ModelType,
		nullString(entry.RequestID),
		entry.Size,
		nullString(entry.Error),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("journal record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("journal record id: %w", err)
	}
	entry.ID = id
	return entry, nil
}

// List returns matching entries, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Identity != "" {
		clauses = append(clauses, "identity = ?")
		args = append(args, filter.Identity)
	}
	if filter.Direction != "" {
		clauses = append(clauses, "direction = ?")
		args = append(args, string(filter.Direction))
	}
	if filter.ModelType != "" {
		clauses = append(clauses, "model_type = ?")
		args = append(args, filter.ModelType)
	}
	if filter.RequestID != "" {
		clauses = append(clauses, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, recorded_at, direction, identity, kind, model_type, request_id, size, error FROM messages`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Prune deletes entries recorded before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE recorded_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	return removed, nil
}

// Health returns diagnostic information about the journal database.
func (s *Store) Health(ctx context.Context) (Health, error) {
	health := Health{DBPath: s.path, SchemaVersion: s.version}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat journal database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("journal database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	var oldest, newest sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1), MIN(recorded_at), MAX(recorded_at) FROM messages`)
	if err := row.Scan(&health.Entries, &oldest, &newest); err != nil {
		return health, fmt.Errorf("journal health: %w", err)
	}
	if oldest.Valid {
		health.Oldest, _ = time.Parse(timeLayout, oldest.String)
	}
	if newest.Valid {
		health.Newest, _ = time.Parse(timeLayout, newest.String)
	}
	return health, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry     Entry
		recorded  string
		direction string
		requestID sql.NullString
		errText   sql.NullString
	)
	if err := row.Scan(
		&entry.ID,
		&recorded,
		&direction,
		&entry.Identity,
		&entry.Kind,
		&entry.ModelType,
		&requestID,
		&entry.Size,
		&errText,
	); err != nil {
		return Entry{}, fmt.Errorf("scan journal entry: %w", err)
	}
	ts, err := time.Parse(timeLayout, recorded)
	if err != nil {
		return Entry{}, fmt.Errorf("parse recorded_at %q: %w", recorded, err)
	}
	entry.RecordedAt = ts
	entry.Direction = Direction(direction)
	entry.RequestID = requestID.String
	entry.Error = errText.String
	return entry, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
