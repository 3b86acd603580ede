// Package store persists runs, attempts and prospects in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps a SQLite database holding the prospect engine's state.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers unblocked while a run's pipeline writes.
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: cfg.logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	config          TEXT NOT NULL,
	status          TEXT NOT NULL,
	total_processed INTEGER NOT NULL DEFAULT 0,
	total_found     INTEGER NOT NULL DEFAULT 0,
	error_log       TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMP NOT NULL,
	completed_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS prospects (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	bio                TEXT NOT NULL DEFAULT '',
	avatar_url         TEXT NOT NULL DEFAULT '',
	region             TEXT NOT NULL DEFAULT '',
	total_followers    INTEGER NOT NULL DEFAULT 0,
	engagement_rate    REAL NOT NULL DEFAULT 0,
	avg_likes          INTEGER NOT NULL DEFAULT 0,
	avg_comments       INTEGER NOT NULL DEFAULT 0,
	instagram_username TEXT NOT NULL DEFAULT '',
	instagram_url      TEXT NOT NULL DEFAULT '',
	tiktok_username    TEXT NOT NULL DEFAULT '',
	tiktok_url         TEXT NOT NULL DEFAULT '',
	youtube_channel    TEXT NOT NULL DEFAULT '',
	youtube_url        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'pending',
	run_id             TEXT NOT NULL REFERENCES runs(id),
	data_platform      TEXT NOT NULL DEFAULT '',
	data               TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prospects_instagram ON prospects(instagram_username COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_prospects_tiktok    ON prospects(tiktok_username COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_prospects_youtube   ON prospects(youtube_channel COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_prospects_email     ON prospects(email COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS attempts (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	platform    TEXT NOT NULL,
	username    TEXT NOT NULL,
	profile_url TEXT NOT NULL DEFAULT '',
	region      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	raw_payload BLOB,
	prospect_id TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// isBusy reports whether an error is a transient SQLITE_BUSY condition
// worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// withBusyRetry retries a write a few times when another pipeline holds
// the write lock longer than busy_timeout.
func (s *Store) withBusyRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.MaxJitter(25*time.Millisecond),
		retry.RetryIf(isBusy),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying busy database write", "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
}

// CreateRun persists a new run row.
func (s *Store) CreateRun(ctx context.Context, run *prospect.Run) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}

	return s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, config, status, total_processed, total_found, error_log, started_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(cfg), run.Status, run.TotalProcessed, run.TotalFound,
			run.ErrorLog, run.StartedAt, run.CompletedAt)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// UpdateRun persists the mutable fields of a run.
func (s *Store) UpdateRun(ctx context.Context, run *prospect.Run) error {
	return s.withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, total_processed = ?, total_found = ?, error_log = ?, completed_at = ?
			 WHERE id = ?`,
			run.Status, run.TotalProcessed, run.TotalFound, run.ErrorLog, run.CompletedAt, run.ID)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("update run %s: %w", run.ID, ErrNotFound)
		}
		return nil
	})
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*prospect.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config, status, total_processed, total_found, error_log, started_at, completed_at
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns all runs, most recently started first.
func (s *Store) ListRuns(ctx context.Context) ([]*prospect.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, config, status, total_processed, total_found, error_log, started_at, completed_at
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*prospect.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*prospect.Run, error) {
	var (
		run       prospect.Run
		cfg       string
		completed sql.NullTime
	)
	err := row.Scan(&run.ID, &cfg, &run.Status, &run.TotalProcessed, &run.TotalFound,
		&run.ErrorLog, &run.StartedAt, &completed)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfg), &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshal run config: %w", err)
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return &run, nil
}

// CreateAttempt appends one audit row. Attempts are never updated.
func (s *Store) CreateAttempt(ctx context.Context, a *prospect.Attempt) error {
	return s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO attempts (id, run_id, platform, username, profile_url, region, status,
			                       error, raw_payload, prospect_id, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.RunID, a.Platform, a.Username, a.ProfileURL, a.Region, a.Status,
			a.Error, a.RawPayload, a.ProspectID, a.Duration.Milliseconds(), a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

// AttemptsForRun returns all attempts for a run in processing order.
func (s *Store) AttemptsForRun(ctx context.Context, runID string) ([]*prospect.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, platform, username, profile_url, region, status,
		        error, raw_payload, prospect_id, duration_ms, created_at
		 FROM attempts WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*prospect.Attempt
	for rows.Next() {
		var (
			a          prospect.Attempt
			durationMS int64
		)
		err := rows.Scan(&a.ID, &a.RunID, &a.Platform, &a.Username, &a.ProfileURL, &a.Region,
			&a.Status, &a.Error, &a.RawPayload, &a.ProspectID, &durationMS, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// CreateProspect persists a new prospect row.
func (s *Store) CreateProspect(ctx context.Context, p *prospect.Prospect) error {
	var dataPlatform, data string
	if p.Data != nil {
		raw, err := prospect.MarshalData(p.Data)
		if err != nil {
			return err
		}
		dataPlatform = string(p.Data.PlatformName())
		data = string(raw)
	}

	return s.withBusyRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO prospects (id, name, email, bio, avatar_url, region,
			                        total_followers, engagement_rate, avg_likes, avg_comments,
			                        instagram_username, instagram_url, tiktok_username, tiktok_url,
			                        youtube_channel, youtube_url, status, run_id,
			                        data_platform, data, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Email, p.Bio, p.AvatarURL, p.Region,
			p.TotalFollowers, p.EngagementRate, p.AvgLikes, p.AvgComments,
			p.InstagramUsername, p.InstagramURL, p.TikTokUsername, p.TikTokURL,
			p.YouTubeChannel, p.YouTubeURL, p.Status, p.RunID,
			dataPlatform, data, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert prospect: %w", err)
		}
		return nil
	})
}

// FindProspectsByIdentity returns prospects matching any of the given
// canonical identity fields ("instagram:<handle>", "email:<address>", ...).
// Matching is case-insensitive per field.
func (s *Store) FindProspectsByIdentity(ctx context.Context, fields []string) ([]*prospect.Prospect, error) {
	var (
		clauses []string
		args    []any
	)
	for _, field := range fields {
		kind, value, ok := strings.Cut(field, ":")
		if !ok || value == "" {
			continue
		}
		switch kind {
		case "instagram":
			clauses = append(clauses, "instagram_username = ? COLLATE NOCASE")
		case "tiktok":
			clauses = append(clauses, "tiktok_username = ? COLLATE NOCASE")
		case "youtube":
			clauses = append(clauses, "youtube_channel = ? COLLATE NOCASE")
		case "email":
			clauses = append(clauses, "email = ? COLLATE NOCASE")
		case "url":
			clauses = append(clauses,
				"(instagram_url = ? COLLATE NOCASE OR tiktok_url = ? COLLATE NOCASE OR youtube_url = ? COLLATE NOCASE)")
			args = append(args, value, value)
		default:
			continue
		}
		args = append(args, value)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := selectProspect + " WHERE " + strings.Join(clauses, " OR ")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find prospects by identity: %w", err)
	}
	defer rows.Close()

	return scanProspects(rows)
}

// ProspectsMissingEmail returns prospects that have a bio but no email,
// for the enrichment batch job.
func (s *Store) ProspectsMissingEmail(ctx context.Context) ([]*prospect.Prospect, error) {
	rows, err := s.db.QueryContext(ctx, selectProspect+" WHERE bio != '' AND email = ''")
	if err != nil {
		return nil, fmt.Errorf("list prospects missing email: %w", err)
	}
	defer rows.Close()

	return scanProspects(rows)
}

// SetProspectEmail records an extracted email on a prospect.
func (s *Store) SetProspectEmail(ctx context.Context, id, email string) error {
	return s.withBusyRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE prospects SET email = ? WHERE id = ?`, email, id)
		if err != nil {
			return fmt.Errorf("set prospect email: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("set prospect email: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("prospect %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// AdmittedHandles returns the platform handles of the most recently
// admitted prospects, newest first. Chain discovery traverses outward
// from them.
func (s *Store) AdmittedHandles(ctx context.Context, limit int) ([]prospect.Handle, error) {
	rows, err := s.db.QueryContext(ctx, selectProspect+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list admitted handles: %w", err)
	}
	defer rows.Close()

	prospects, err := scanProspects(rows)
	if err != nil {
		return nil, err
	}

	var handles []prospect.Handle
	for _, p := range prospects {
		if p.InstagramUsername != "" {
			handles = append(handles, prospect.Handle{Platform: prospect.Instagram, Username: p.InstagramUsername, Region: p.Region})
		}
		if p.TikTokUsername != "" {
			handles = append(handles, prospect.Handle{Platform: prospect.TikTok, Username: p.TikTokUsername, Region: p.Region})
		}
		if p.YouTubeChannel != "" {
			handles = append(handles, prospect.Handle{Platform: prospect.YouTube, Username: p.YouTubeChannel, Region: p.Region})
		}
	}
	return handles, nil
}

// ProspectsForRun returns the prospects admitted by a run.
func (s *Store) ProspectsForRun(ctx context.Context, runID string) ([]*prospect.Prospect, error) {
	rows, err := s.db.QueryContext(ctx, selectProspect+" WHERE run_id = ? ORDER BY created_at, id", runID)
	if err != nil {
		return nil, fmt.Errorf("list prospects for run: %w", err)
	}
	defer rows.Close()

	return scanProspects(rows)
}

const selectProspect = `SELECT id, name, email, bio, avatar_url, region,
	total_followers, engagement_rate, avg_likes, avg_comments,
	instagram_username, instagram_url, tiktok_username, tiktok_url,
	youtube_channel, youtube_url, status, run_id, data_platform, data, created_at
	FROM prospects`

func scanProspects(rows *sql.Rows) ([]*prospect.Prospect, error) {
	var prospects []*prospect.Prospect
	for rows.Next() {
		var (
			p                  prospect.Prospect
			dataPlatform, data string
		)
		err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Bio, &p.AvatarURL, &p.Region,
			&p.TotalFollowers, &p.EngagementRate, &p.AvgLikes, &p.AvgComments,
			&p.InstagramUsername, &p.InstagramURL, &p.TikTokUsername, &p.TikTokURL,
			&p.YouTubeChannel, &p.YouTubeURL, &p.Status, &p.RunID,
			&dataPlatform, &data, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan prospect: %w", err)
		}
		if dataPlatform != "" && data != "" {
			pd, err := prospect.UnmarshalData(prospect.Platform(dataPlatform), []byte(data))
			if err != nil {
				return nil, err
			}
			p.Data = pd
		}
		prospects = append(prospects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan prospects: %w", err)
	}
	return prospects, nil
}
