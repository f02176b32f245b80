package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/popvault/pricewatch/internal/catalog"
)

var jobCols = []string{
	"id", "item_id", "source", "status", "retry_count", "next_scrape_due",
	"error_message", "created_at", "updated_at",
}

func TestEnsureJobCreatesWhenNoLiveJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock)
	itemID := uuid.New()
	due := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT(.|\n)+FROM scrape_jobs").
		WithArgs(itemID, catalog.SourceEbay).
		WillReturnRows(pgxmock.NewRows(jobCols))

	mock.ExpectExec("INSERT INTO scrape_jobs").
		WithArgs(pgxmock.AnyArg(), itemID, catalog.SourceEbay, catalog.JobStatusPending, due, due).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, created, err := store.EnsureJob(context.Background(), itemID, catalog.SourceEbay, due)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, catalog.JobStatusPending, job.Status)
	require.Equal(t, due, job.NextScrapeDue)
	require.Equal(t, 0, job.RetryCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureJobReusesLiveJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock)
	itemID := uuid.New()
	existingID := uuid.New()
	due := time.Unix(1700000000, 0).UTC()
	created := due.Add(-time.Hour)

	mock.ExpectQuery("SELECT(.|\n)+FROM scrape_jobs").
		WithArgs(itemID, catalog.SourceEbay).
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			existingID, itemID, catalog.SourceEbay, catalog.JobStatusPending,
			0, created, (*string)(nil), created, created,
		))

	job, wasCreated, err := store.EnsureJob(context.Background(), itemID, catalog.SourceEbay, due)
	require.NoError(t, err)
	require.False(t, wasCreated)
	require.Equal(t, existingID, job.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureJobLosesInsertRace(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock)
	itemID := uuid.New()
	winnerID := uuid.New()
	due := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT(.|\n)+FROM scrape_jobs").
		WithArgs(itemID, catalog.SourceEbay).
		WillReturnRows(pgxmock.NewRows(jobCols))

	mock.ExpectExec("INSERT INTO scrape_jobs").
		WithArgs(pgxmock.AnyArg(), itemID, catalog.SourceEbay, catalog.JobStatusPending, due, due).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	mock.ExpectQuery("SELECT(.|\n)+FROM scrape_jobs").
		WithArgs(itemID, catalog.SourceEbay).
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			winnerID, itemID, catalog.SourceEbay, catalog.JobStatusPending,
			0, due, (*string)(nil), due, due,
		))

	job, created, err := store.EnsureJob(context.Background(), itemID, catalog.SourceEbay, due)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, winnerID, job.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDueJobsQuery(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock)
	now := time.Unix(1700000000, 0).UTC()
	jobID := uuid.New()
	itemID := uuid.New()
	errMsg := "ebay: network failure"

	mock.ExpectQuery(`ORDER BY next_scrape_due ASC`).
		WithArgs(now, 10).
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			jobID, itemID, catalog.SourceEbay, catalog.JobStatusFailed,
			2, now.Add(-time.Minute), &errMsg, now.Add(-3*time.Hour), now.Add(-time.Hour),
		))

	jobs, err := store.DueJobs(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, catalog.JobStatusFailed, jobs[0].Status)
	require.Equal(t, 2, jobs[0].RetryCount)
	require.NotNil(t, jobs[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRunning(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock)
	jobID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs(jobID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	claimed, err := store.ClaimRunning(context.Background(), jobID, at)
	require.NoError(t, err)
	require.True(t, claimed)

	// Second dispatcher loses the claim.
	mock.ExpectExec("UPDATE scrape_jobs").
		WithArgs(jobID, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err = store.ClaimRunning(context.Background(), jobID, at)
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailIncrementsRetryAndSchedulesBackoff(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock)
	jobID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()
	retryAt := at.Add(time.Hour)

	mock.ExpectExec("retry_count = retry_count \\+ 1").
		WithArgs(jobID, at, "ebay: network failure: timeout", retryAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Fail(context.Background(), jobID, at, "ebay: network failure: timeout", retryAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExhaust(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewJobStore(mock)
	jobID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("status = 'exhausted'").
		WithArgs(jobID, at, "not found on source").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Exhaust(context.Background(), jobID, at, "not found on source"))
	require.NoError(t, mock.ExpectationsWereMet())
}
