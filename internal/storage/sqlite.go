package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/transcript"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var (
	ErrOwnerRequired = errors.New("owner id is required")
	ErrInvalidCursor = errors.New("invalid page cursor")
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*SQLiteStore)

// WithClock overrides the clock used for created_at and quota expiry.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "pitchspeak.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			owner_id TEXT,
			project_summary TEXT NOT NULL,
			estimation TEXT NOT NULL,
			full_summary TEXT NOT NULL,
			transcripts TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create conversations table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quota_counters (
			key TEXT PRIMARY KEY,
			count INTEGER NOT NULL,
			expires_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create quota_counters table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id, seq)"); err != nil {
		return fmt.Errorf("create conversations index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Save inserts a new conversation and returns its generated id. Every call
// creates a new record.
func (s *SQLiteStore) Save(ctx context.Context, ownerID string, result estimate.Result, transcripts []transcript.Entry) (string, error) {
	if err := result.Validate(); err != nil {
		return "", fmt.Errorf("save conversation: %w", err)
	}

	estimation, err := json.Marshal(result.Estimation)
	if err != nil {
		return "", fmt.Errorf("encode estimation: %w", err)
	}
	if transcripts == nil {
		transcripts = []transcript.Entry{}
	}
	entries, err := json.Marshal(transcripts)
	if err != nil {
		return "", fmt.Errorf("encode transcripts: %w", err)
	}

	id := uuid.NewString()
	var owner sql.NullString
	if ownerID != "" {
		owner = sql.NullString{String: ownerID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations(id, created_at, owner_id, project_summary, estimation, full_summary, transcripts)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		id,
		s.now().UTC().Format(time.RFC3339Nano),
		owner,
		result.ProjectSummary,
		string(estimation),
		result.FullSummary,
		string(entries),
	)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

// Get returns the conversation with the given id. Unknown ids and ids that
// are not UUIDs both yield estimate.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (estimate.Record, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return estimate.Record{}, estimate.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT seq, id, created_at, owner_id, project_summary, estimation, full_summary, transcripts
		 FROM conversations WHERE id = ?`,
		parsed.String(),
	)
	rec, _, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return estimate.Record{}, estimate.ErrNotFound
	}
	if err != nil {
		return estimate.Record{}, fmt.Errorf("query conversation %s: %w", parsed, err)
	}
	return rec, nil
}

// ListByOwner returns one page of the owner's conversations, newest first.
func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string, req estimate.PageRequest) (estimate.Page, error) {
	if strings.TrimSpace(ownerID) == "" {
		return estimate.Page{}, ErrOwnerRequired
	}
	return s.list(ctx, "owner_id = ?", []any{ownerID}, req)
}

// ListAll returns one page of every conversation regardless of owner.
func (s *SQLiteStore) ListAll(ctx context.Context, req estimate.PageRequest) (estimate.Page, error) {
	return s.list(ctx, "1 = 1", nil, req)
}

func (s *SQLiteStore) list(ctx context.Context, where string, args []any, req estimate.PageRequest) (estimate.Page, error) {
	limit := clampLimit(req.Limit)

	if req.Cursor != "" {
		before, err := strconv.ParseInt(req.Cursor, 10, 64)
		if err != nil || before <= 0 {
			return estimate.Page{}, fmt.Errorf("%w: %q", ErrInvalidCursor, req.Cursor)
		}
		where += " AND seq < ?"
		args = append(args, before)
	}
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, created_at, owner_id, project_summary, estimation, full_summary, transcripts
		 FROM conversations WHERE `+where+`
		 ORDER BY seq DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return estimate.Page{}, fmt.Errorf("query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := estimate.Page{Records: make([]estimate.Record, 0, limit)}
	var lastSeq int64
	for rows.Next() {
		if len(page.Records) == limit {
			page.NextCursor = strconv.FormatInt(lastSeq, 10)
			break
		}
		rec, seq, err := scanRecord(rows)
		if err != nil {
			return estimate.Page{}, fmt.Errorf("scan conversation: %w", err)
		}
		page.Records = append(page.Records, rec)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return estimate.Page{}, fmt.Errorf("iterate conversation rows: %w", err)
	}

	return page, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (estimate.Record, int64, error) {
	var (
		rec         estimate.Record
		seq         int64
		createdAt   string
		owner       sql.NullString
		estimation  string
		transcripts string
	)
	if err := row.Scan(&seq, &rec.ID, &createdAt, &owner, &rec.ProjectSummary, &estimation, &rec.FullSummary, &transcripts); err != nil {
		return estimate.Record{}, 0, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return estimate.Record{}, 0, fmt.Errorf("parse conversation %s created_at: %w", rec.ID, err)
	}
	rec.CreatedAt = parsed
	rec.OwnerID = owner.String

	if err := json.Unmarshal([]byte(estimation), &rec.Estimation); err != nil {
		return estimate.Record{}, 0, fmt.Errorf("decode conversation %s estimation: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(transcripts), &rec.Transcripts); err != nil {
		return estimate.Record{}, 0, fmt.Errorf("decode conversation %s transcripts: %w", rec.ID, err)
	}

	return rec, seq, nil
}
