package leads

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TimestampLayout is UTC RFC3339 with microseconds.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Record is a completed interview. Records are only ever appended.
type Record struct {
	Timestamp time.Time
	UserID    int64
	Username  string
	Answers   map[string]string
}

// Values returns the answers in the order of names; missing ones are empty.
func (r Record) Values(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = r.Answers[n]
	}
	return out
}

// Store persists completed records.
type Store interface {
	Append(ctx context.Context, rec Record) error
}

// CSVStore appends records to a CSV file, writing the header once when the
// file is new or empty.
type CSVStore struct {
	mu     sync.Mutex
	path   string
	fields []string
}

// NewCSVStore returns a store writing fields, in order, after the fixed
// timestamp, user_id and username columns.
func NewCSVStore(path string, fields []string) *CSVStore {
	return &CSVStore{path: path, fields: append([]string(nil), fields...)}
}

// Header returns the CSV header row.
func (s *CSVStore) Header() []string {
	return append([]string{"timestamp", "user_id", "username"}, s.fields...)
}

func (s *CSVStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("leads: csv dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("leads: open csv: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("leads: stat csv: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		_ = w.Write(s.Header())
	}
	row := append([]string{
		rec.Timestamp.UTC().Format(TimestampLayout),
		strconv.FormatInt(rec.UserID, 10),
		rec.Username,
	}, rec.Values(s.fields)...)
	_ = w.Write(row)
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("leads: encode csv: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("leads: write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("leads: close csv: %w", err)
	}
	return nil
}

const insertLeadSQL = `INSERT INTO leads (id, created_at, user_id, username, answers) VALUES ($1, $2, $3, $4, $5)`

// PostgresStore appends records to the leads table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	if db == nil {
		panic("leads: sqlx db required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("leads: encode answers: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertLeadSQL,
		uuid.NewString(),
		rec.Timestamp.UTC(),
		rec.UserID,
		rec.Username,
		answers,
	); err != nil {
		return fmt.Errorf("leads: insert failed: %w", err)
	}
	return nil
}
