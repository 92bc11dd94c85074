package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
	"github.com/MimeLyc/pipeline-console/internal/sources"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes.
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

const generationSelect = `SELECT id, created_at, source_video_url, video_title, generation_status,
	seedance_output_url, seedance_approved, seedance_feedback,
	kling_output_url, kling_approved, kling_feedback,
	posted, post_url, posted_at
 FROM generations`

func (s *SQLiteStore) ListGenerations(ctx context.Context) ([]generation.Record, error) {
	rows, err := s.db.QueryContext(ctx, generationSelect+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]generation.Record, 0)
	for rows.Next() {
		var row generationRow
		if err := rows.Scan(
			&row.ID,
			&row.CreatedAt,
			&row.SourceVideoURL,
			&row.VideoTitle,
			&row.GenerationStatus,
			&row.SeedanceOutputURL,
			&row.SeedanceApproved,
			&row.SeedanceFeedback,
			&row.KlingOutputURL,
			&row.KlingApproved,
			&row.KlingFeedback,
			&row.Posted,
			&row.PostURL,
			&row.PostedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, row.record())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) InsertGeneration(ctx context.Context, r generation.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	row := generationRowFrom(r)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO generations (
			id, created_at, source_video_url, video_title, generation_status,
			seedance_output_url, seedance_approved, seedance_feedback,
			kling_output_url, kling_approved, kling_feedback,
			posted, post_url, posted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.CreatedAt,
		value(row.SourceVideoURL),
		value(row.VideoTitle),
		value(row.GenerationStatus),
		value(row.SeedanceOutputURL),
		value(row.SeedanceApproved),
		value(row.SeedanceFeedback),
		value(row.KlingOutputURL),
		value(row.KlingApproved),
		value(row.KlingFeedback),
		row.Posted,
		value(row.PostURL),
		value(row.PostedAt),
	)
	return err
}

// UpdateGeneration writes the patch columns of one record. Unknown columns are rejected.
func (s *SQLiteStore) UpdateGeneration(ctx context.Context, id string, patch generation.Patch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	names := make([]string, 0, len(cols))
	for name := range cols {
		if _, ok := generationColumns[name]; !ok {
			return fmt.Errorf("column %q is not writable", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		sets = append(sets, name+" = ?")
		args = append(args, cols[name])
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE generations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(res, "generation", id)
}

func (s *SQLiteStore) ListPages(ctx context.Context) ([]sources.Page, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_page_url, number_of_posts, status, created_at
		 FROM source_pages
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]sources.Page, 0)
	for rows.Next() {
		var row sourcePageRow
		if err := rows.Scan(&row.ID, &row.SourcePageURL, &row.NumberOfPosts, &row.Status, &row.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, row.page())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) InsertPage(ctx context.Context, page sources.Page) (sources.Page, error) {
	page.ID = uuid.NewString()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO source_pages (id, source_page_url, number_of_posts, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		page.ID,
		page.URL,
		page.NumberOfPosts,
		value(ptr(string(page.Status))),
		page.CreatedAt,
	)
	if err != nil {
		return sources.Page{}, err
	}
	return page, nil
}

func (s *SQLiteStore) UpdatePage(ctx context.Context, id string, posts *int, status *sources.PageStatus) error {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if posts != nil {
		sets = append(sets, "number_of_posts = ?")
		args = append(args, *posts)
	}
	if status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*status))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE source_pages SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(res, "source page", id)
}

func (s *SQLiteStore) DeletePage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM source_pages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "source page", id)
}

func (s *SQLiteStore) ListVideos(ctx context.Context) ([]sources.Video, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, video_page_url, view_count, processed, video_analyzed, thumbnail_url, first_frame_url, created_at
		 FROM source_videos
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]sources.Video, 0)
	for rows.Next() {
		var row sourceVideoRow
		if err := rows.Scan(
			&row.ID,
			&row.VideoPageURL,
			&row.ViewCount,
			&row.Processed,
			&row.VideoAnalyzed,
			&row.ThumbnailURL,
			&row.FirstFrameURL,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, row.video())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) InsertVideo(ctx context.Context, v sources.Video) (sources.Video, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO source_videos (id, video_page_url, view_count, processed, video_analyzed, thumbnail_url, first_frame_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.VideoPageURL,
		value(v.ViewCount),
		v.Processed,
		v.Analyzed,
		value(ptr(v.ThumbnailURL)),
		value(ptr(v.FirstFrameURL)),
		v.CreatedAt,
	)
	if err != nil {
		return sources.Video{}, err
	}
	return v, nil
}

func (s *SQLiteStore) CountVideos(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_videos`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.ImportJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, dedupe_key, source_url, title, file_name, file_path, status, message, error, created_at, updated_at
		 FROM import_jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.ImportJob, 0)
	for rows.Next() {
		var row importJobRow
		if err := rows.Scan(
			&row.ID,
			&row.Source,
			&row.DedupeKey,
			&row.SourceURL,
			&row.Title,
			&row.FileName,
			&row.FilePath,
			&row.Status,
			&row.Message,
			&row.Error,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, row.job())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.ImportJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	row := importJobRowFrom(job)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO import_jobs (
			id, source, dedupe_key, source_url, title, file_name, file_path, status, message, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			source_url=excluded.source_url,
			title=excluded.title,
			file_name=excluded.file_name,
			file_path=excluded.file_path,
			status=excluded.status,
			message=excluded.message,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		row.ID,
		row.Source,
		row.DedupeKey,
		row.SourceURL,
		row.Title,
		row.FileName,
		row.FilePath,
		row.Status,
		row.Message,
		row.Error,
		row.CreatedAt,
		row.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM import_jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) DeleteJobData(_ context.Context, job *jobs.ImportJob) error {
	return removeUpload(job)
}

func requireAffected(res sql.Result, what string, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

// value unwraps an optional column for binding; nil binds NULL.
func value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
