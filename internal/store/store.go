package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/autograde/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a submission does not exist.
var ErrNotFound = errors.New("not found")

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store persists submissions, the current exam configuration and metadata.
// It has no concurrency control; a single writer is assumed.
type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens a SQLite store at dbPath.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), DriverSQLite, dbPath)
}

// Open opens a store for the given driver and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		drvName = "sqlite"
		if dsn == "" {
			dsn = "autograde.db"
		}
		if dsn != ":memory:" {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/autograde?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	student_name TEXT NOT NULL,
	student_id TEXT NOT NULL,
	submitted_at DATETIME NOT NULL,
	status TEXT NOT NULL,
	pages_json TEXT NOT NULL DEFAULT '[]',
	result_json TEXT,
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	student_name TEXT NOT NULL,
	student_id TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	pages_json TEXT NOT NULL DEFAULT '[]',
	result_json TEXT,
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const submissionColumns = `id, student_name, student_id, submitted_at, status, pages_json, result_json, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var (
		sub        model.Submission
		status     string
		pagesJSON  string
		resultJSON sql.NullString
		reason     string
	)
	if err := row.Scan(&sub.ID, &sub.Student.Name, &sub.Student.ID, &sub.SubmittedAt,
		&status, &pagesJSON, &resultJSON, &reason); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pagesJSON), &sub.Pages); err != nil {
		return nil, fmt.Errorf("decode pages of %s: %w", sub.ID, err)
	}
	var result *model.GradingResult
	if resultJSON.Valid && resultJSON.String != "" {
		result = &model.GradingResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), result); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", sub.ID, err)
		}
	}
	state, err := model.NewState(model.Status(status), result, reason)
	if err != nil {
		return nil, fmt.Errorf("submission %s: %w", sub.ID, err)
	}
	sub.State = state
	return &sub, nil
}

// GetAll returns every submission ordered by submission time.
func (s *Store) GetAll(ctx context.Context) ([]*model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY submitted_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Get returns a submission by ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// Put inserts or replaces a submission by ID.
func (s *Store) Put(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		return errors.New("submission id is required")
	}
	pages := sub.Pages
	if pages == nil {
		pages = []model.Asset{}
	}
	pagesJSON, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}
	var resultJSON sql.NullString
	if r := sub.Result(); r != nil {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}
	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			student_name = EXCLUDED.student_name,
			student_id = EXCLUDED.student_id,
			submitted_at = EXCLUDED.submitted_at,
			status = EXCLUDED.status,
			pages_json = EXCLUDED.pages_json,
			result_json = EXCLUDED.result_json,
			error = EXCLUDED.error`,
		sub.ID, sub.Student.Name, sub.Student.ID, submittedAt.UTC(),
		string(sub.Status()), string(pagesJSON), resultJSON, sub.ErrorReason(),
	)
	return err
}

// ClearAll deletes every submission.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM submissions`)
	return err
}

// Count returns the number of stored submissions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&count)
	return count, err
}
