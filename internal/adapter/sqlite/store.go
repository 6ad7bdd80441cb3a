package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/muhammadegaa/reely/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id              TEXT PRIMARY KEY,
    kind            TEXT NOT NULL,
    url             TEXT NOT NULL,
    start_time      REAL NOT NULL DEFAULT 0,
    end_time        REAL NOT NULL DEFAULT 0,
    vertical_format INTEGER NOT NULL DEFAULT 0,
    add_subtitles   INTEGER NOT NULL DEFAULT 0,
    ai_provider     TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'queued',
    progress        INTEGER NOT NULL DEFAULT 0,
    message         TEXT NOT NULL DEFAULT '',
    result          TEXT,
    error           TEXT,
    scratch_dir     TEXT NOT NULL DEFAULT '',
    attempts        INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_updated_at ON jobs(updated_at);
`

const jobColumns = `id, kind, url, start_time, end_time, vertical_format, add_subtitles,
	ai_provider, status, progress, message, COALESCE(result, ''), COALESCE(error, ''),
	scratch_dir, attempts, created_at, updated_at`

// Store implements domain.JobStore using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL lets status polls read while a worker writes.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new job record.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, url, start_time, end_time, vertical_format, add_subtitles,
		 ai_provider, status, progress, message, result, error, scratch_dir, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Kind, job.URL, job.StartTime, job.EndTime,
		boolToInt(job.VerticalFormat), boolToInt(job.AddSubtitles), job.AIProvider,
		job.Status, job.Progress, job.Message, resultJSON, job.Error,
		job.ScratchDir, job.Attempts, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Update applies the non-nil fields of upd and bumps updated_at. Terminal
// rows never change again, and a status change must be a legal transition
// (repeating the current status is allowed for progress writes); the guard
// lives in the WHERE clause so racing writers cannot interleave.
func (s *Store) Update(ctx context.Context, id string, upd domain.JobUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.Progress != nil {
		// Progress only moves forward; retries reset it through Requeue.
		sets = append(sets, "progress = MAX(progress, ?)")
		args = append(args, *upd.Progress)
	}
	if upd.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, *upd.Message)
	}
	if upd.Result != nil {
		resultJSON, err := marshalResult(upd.Result)
		if err != nil {
			return err
		}
		sets = append(sets, "result = ?")
		args = append(args, resultJSON)
	}
	if upd.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *upd.Error)
	}
	if upd.ScratchDir != nil {
		sets = append(sets, "scratch_dir = ?")
		args = append(args, *upd.ScratchDir)
	}

	args = append(args, id)
	query := `UPDATE jobs SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if upd.Status != nil {
		sources := transitionSources(*upd.Status)
		query += ` AND status IN (?` + strings.Repeat(", ?", len(sources)-1) + `)`
		for _, from := range sources {
			args = append(args, from)
		}
	} else {
		query += ` AND status NOT IN (?, ?, ?)`
		args = append(args, domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		cur, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if upd.Status != nil {
			return errors.Newf("job %s: invalid status transition %s -> %s", id, cur.Status, *upd.Status)
		}
		return errors.Newf("job %s: no updates in terminal status %s", id, cur.Status)
	}
	return nil
}

// transitionSources lists the statuses a row may hold for an update to the
// given status to be legal: the status itself (while non-terminal) or any
// state with a machine edge into it.
func transitionSources(to domain.JobStatus) []domain.JobStatus {
	all := []domain.JobStatus{
		domain.StatusQueued, domain.StatusDownloading, domain.StatusTranscribing,
		domain.StatusProcessing, domain.StatusTrimming,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	}
	sources := make([]domain.JobStatus, 0, len(all))
	for _, from := range all {
		if (from == to && !from.Terminal()) || domain.ValidTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Delete removes a job record.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// FindQueued returns queued jobs oldest-first, up to limit.
func (s *Store) FindQueued(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		domain.StatusQueued, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Claim atomically claims a queued job for processing. The WHERE clause on
// status guarantees at most one executor wins.
func (s *Store) Claim(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusDownloading, time.Now(), id, domain.StatusQueued)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Requeue returns a job to the queue after a transient failure. Terminal
// jobs stay terminal; a cancel that landed mid-attempt wins.
func (s *Store) Requeue(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = 0, error = ?, message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?, ?)`,
		domain.StatusQueued, reason, "Retrying after transient failure...", time.Now(), id,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// RecoverStale requeues all jobs left mid-pipeline by a crash.
func (s *Store) RecoverStale(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = 0, error = 'recovered after restart', updated_at = ?
		 WHERE status IN (?, ?, ?, ?)`,
		domain.StatusQueued, time.Now(),
		domain.StatusDownloading, domain.StatusTranscribing,
		domain.StatusProcessing, domain.StatusTrimming)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindTerminalBefore returns completed/failed/cancelled jobs last touched
// before cutoff, for the reaper.
func (s *Store) FindTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status IN (?, ?, ?) AND updated_at < ?
		 ORDER BY updated_at ASC LIMIT ?`,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
		cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job                 domain.Job
		kind, status        string
		vertical, subtitles int
		resultJSON          string
	)
	err := row.Scan(&job.ID, &kind, &job.URL, &job.StartTime, &job.EndTime,
		&vertical, &subtitles, &job.AIProvider, &status, &job.Progress,
		&job.Message, &resultJSON, &job.Error, &job.ScratchDir, &job.Attempts,
		&job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.VerticalFormat = vertical != 0
	job.AddSubtitles = subtitles != 0
	if resultJSON != "" {
		var result domain.Result
		if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
			return nil, errors.Wrap(err, "decode job result")
		}
		job.Result = &result
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func marshalResult(r *domain.Result) (string, error) {
	if r == nil {
		return "", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", errors.Wrap(err, "encode job result")
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
