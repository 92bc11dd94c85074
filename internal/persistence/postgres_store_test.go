package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres store tests")
	}
	store, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.db.Exec("DELETE FROM generations")
		store.db.Exec("DELETE FROM import_jobs")
		_ = store.Close()
	})
	return store
}

func TestPostgresStore_GenerationPatch(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertGeneration(ctx, generation.Record{
		ID:             "pg-1",
		CreatedAt:      time.Now().Add(-time.Hour),
		SourceVideoURL: "https://facebook.com/reel/1",
		RawStatus:      generation.StatusDone,
		Seedance:       generation.Output{URL: "https://cdn.test/s.mp4", Approval: generation.Approved},
	}))

	engine := generation.NewEngine(store, generation.WithRegenerator(noopRegenerator{}))
	require.NoError(t, engine.Refresh(ctx))
	_, err := engine.Retry(ctx, "pg-1")
	require.NoError(t, err)

	records, err := store.ListGenerations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, generation.StatusPending, records[0].RawStatus)
	assert.Empty(t, records[0].Seedance.URL)
	assert.Equal(t, generation.Unreviewed, records[0].Seedance.Approval)
}

func TestPostgresStore_UpsertJob(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job := &jobs.ImportJob{ID: "job-1", Source: jobs.SourceManual, Status: jobs.StatusPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.UpsertJob(ctx, job))
	job.Status = jobs.StatusFailed
	job.Error = "webhook returned status 500"
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, jobs.StatusFailed, all[0].Status)
	assert.Equal(t, job.Error, all[0].Error)
}

type noopRegenerator struct{}

func (noopRegenerator) Regenerate(context.Context, string, string) error { return nil }
