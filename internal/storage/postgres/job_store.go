package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/popvault/pricewatch/internal/catalog"
)

// JobStore implements catalog.JobStore over Postgres. A partial unique
// index on (item_id, source) over live statuses makes EnsureJob safe under
// concurrent schedulers; see migrations/0001_schema.sql.
type JobStore struct {
	db querier
}

// NewJobStore wraps a pool (or mock) as a JobStore.
func NewJobStore(db querier) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `
	id, item_id, source, status, retry_count, next_scrape_due,
	error_message, created_at, updated_at`

// liveStatuses are job states that exclude creating another job for the
// same (item, source) pair.
const liveStatuses = `('pending', 'running', 'failed')`

// EnsureJob inserts a pending job for the pair unless a live job already
// exists. Safe against concurrent insertion: a unique-violation falls back
// to returning the row the other scheduler created.
func (s *JobStore) EnsureJob(ctx context.Context, itemID uuid.UUID, source catalog.SourceID, due time.Time) (catalog.ScrapeJob, bool, error) {
	existing, err := s.liveJob(ctx, itemID, source)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return catalog.ScrapeJob{}, false, err
	}

	job := catalog.ScrapeJob{
		ID:            uuid.New(),
		ItemID:        itemID,
		Source:        source,
		Status:        catalog.JobStatusPending,
		NextScrapeDue: due,
		CreatedAt:     due,
		UpdatedAt:     due,
	}
	query := `
		INSERT INTO scrape_jobs
			(id, item_id, source, status, retry_count, next_scrape_due, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6)`
	if _, err := s.db.Exec(ctx, query,
		job.ID, job.ItemID, job.Source, job.Status, job.NextScrapeDue, job.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			winner, selErr := s.liveJob(ctx, itemID, source)
			if selErr != nil {
				return catalog.ScrapeJob{}, false, fmt.Errorf("reselect live job: %w", selErr)
			}
			return winner, false, nil
		}
		return catalog.ScrapeJob{}, false, fmt.Errorf("insert scrape job: %w", err)
	}
	return job, true, nil
}

func (s *JobStore) liveJob(ctx context.Context, itemID uuid.UUID, source catalog.SourceID) (catalog.ScrapeJob, error) {
	query := `SELECT` + jobColumns + `
		FROM scrape_jobs
		WHERE item_id = $1 AND source = $2 AND status IN ` + liveStatuses + `
		LIMIT 1`
	job, err := scanJob(s.db.QueryRow(ctx, query, itemID, source))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ScrapeJob{}, catalog.ErrNotFound
		}
		return catalog.ScrapeJob{}, fmt.Errorf("select live job: %w", err)
	}
	return job, nil
}

// DueJobs returns claimable jobs ordered by next_scrape_due ascending.
func (s *JobStore) DueJobs(ctx context.Context, now time.Time, limit int) ([]catalog.ScrapeJob, error) {
	query := `SELECT` + jobColumns + `
		FROM scrape_jobs
		WHERE status IN ('pending', 'failed') AND next_scrape_due <= $1
		ORDER BY next_scrape_due ASC
		LIMIT $2`
	return s.queryJobs(ctx, query, now, limit)
}

// DueJobsForItem is DueJobs scoped to one item.
func (s *JobStore) DueJobsForItem(ctx context.Context, itemID uuid.UUID, now time.Time, limit int) ([]catalog.ScrapeJob, error) {
	query := `SELECT` + jobColumns + `
		FROM scrape_jobs
		WHERE item_id = $1 AND status IN ('pending', 'failed') AND next_scrape_due <= $2
		ORDER BY next_scrape_due ASC
		LIMIT $3`
	return s.queryJobs(ctx, query, itemID, now, limit)
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]catalog.ScrapeJob, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []catalog.ScrapeJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// ClaimRunning atomically moves a claimable job to running. Zero rows
// affected means another dispatcher got there first.
func (s *JobStore) ClaimRunning(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE scrape_jobs
		SET status = 'running', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'failed')`
	tag, err := s.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete marks a running job completed and schedules the next scrape.
func (s *JobStore) Complete(ctx context.Context, id uuid.UUID, at, nextDue time.Time) error {
	query := `
		UPDATE scrape_jobs
		SET status = 'completed', error_message = NULL, next_scrape_due = $3, updated_at = $2
		WHERE id = $1 AND status = 'running'`
	tag, err := s.db.Exec(ctx, query, id, at, nextDue)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Fail marks a running job failed with a scheduled retry.
func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, at time.Time, errMsg string, nextDue time.Time) error {
	query := `
		UPDATE scrape_jobs
		SET status = 'failed', error_message = $3, retry_count = retry_count + 1,
			next_scrape_due = $4, updated_at = $2
		WHERE id = $1 AND status = 'running'`
	tag, err := s.db.Exec(ctx, query, id, at, errMsg, nextDue)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Exhaust terminally fails a job; it will never be dispatched again.
func (s *JobStore) Exhaust(ctx context.Context, id uuid.UUID, at time.Time, errMsg string) error {
	query := `
		UPDATE scrape_jobs
		SET status = 'exhausted', error_message = $3, updated_at = $2
		WHERE id = $1 AND status IN ` + liveStatuses
	tag, err := s.db.Exec(ctx, query, id, at, errMsg)
	if err != nil {
		return fmt.Errorf("exhaust job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (catalog.ScrapeJob, error) {
	var job catalog.ScrapeJob
	err := row.Scan(
		&job.ID,
		&job.ItemID,
		&job.Source,
		&job.Status,
		&job.RetryCount,
		&job.NextScrapeDue,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return catalog.ScrapeJob{}, err
	}
	return job, nil
}
