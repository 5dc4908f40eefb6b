// Package store persists projects, members and invitations in SQLite and
// announces every committed change to a collab.Publisher.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
	"github.com/felixgeelhaar/flowboard/internal/telemetry"
)

// DefaultInvitationTTL is how long an invitation token stays valid.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Store is the SQLite backend.
type Store struct {
	database *sql.DB
	dbPath   string

	publisher collab.Publisher
	metrics   *metrics.Metrics
	logger    *log.Logger
	now       func() time.Time
	ttl       time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher announces committed changes.
func WithPublisher(p collab.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithMetrics records operation durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.Component("store") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithInvitationTTL overrides DefaultInvitationTTL.
func WithInvitationTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// Open opens or creates the database at dbPath and migrates it. Use
// ":memory:" for a throwaway database.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreOpen, "failed to create database directory", err)
		}
	}

	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreOpen, "failed to open sqlite database", err)
	}
	// One connection: SQLite serialises writers anyway, and an in-memory
	// database only exists on the connection that created it.
	database.SetMaxOpenConns(1)

	s := &Store{
		database: database,
		dbPath:   dbPath,
		logger:   log.Nop(),
		now:      time.Now,
		ttl:      DefaultInvitationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(context.Background()); err != nil {
		_ = database.Close()
		return nil, err
	}
	s.logger.Debug("store opened", "path", dbPath)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.database.Close()
}

// DBPath returns the database location.
func (s *Store) DBPath() string {
	return s.dbPath
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.database.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			goal TEXT NOT NULL DEFAULT '',
			target_date TEXT NOT NULL DEFAULT '',
			tasks_json TEXT NOT NULL DEFAULT '[]',
			gantt_json TEXT NULL,
			is_public INTEGER NOT NULL DEFAULT 0,
			owner_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS project_members (
			project_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			joined_at TEXT NOT NULL,
			PRIMARY KEY (project_id, user_id),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_project_members_user ON project_members(user_id);`,
		`CREATE TABLE IF NOT EXISTS project_invitations (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			invited_by TEXT NOT NULL,
			token_digest TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			accepted_at TEXT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_project_invitations_project ON project_invitations(project_id);`,
	}

	for _, statement := range statements {
		if _, err := s.database.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(errors.ErrCodeStoreMigrate, "migration failed", err)
		}
	}
	return nil
}

// observe times op and traces it. The returned func must be called with
// the operation's final error.
func (s *Store) observe(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.StartStoreSpan(ctx, op)
	return ctx, func(err error) {
		s.metrics.StoreOperation(op, time.Since(start))
		if err != nil {
			telemetry.RecordError(span, err)
			s.metrics.Error(string(errors.CodeOf(err)))
		} else {
			telemetry.RecordSuccess(span, attribute.String("db.system", "sqlite"))
		}
		span.End()
	}
}

func (s *Store) publish(events ...collab.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		s.publisher.Publish(e)
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTimestamp(value sql.NullString) *time.Time {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil
	}
	t := parseTimestamp(value.String)
	return &t
}

// tokenDigest is what is stored in place of an invitation token.
func tokenDigest(token string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

func queryError(op string, err error) error {
	if errors.CodeOf(err) != "" {
		return err
	}
	return errors.NewStoreQueryError(op, err)
}

func encodeError(what string, err error) error {
	return errors.Wrap(errors.ErrCodeStoreEncode, fmt.Sprintf("failed to encode %s", what), err)
}
