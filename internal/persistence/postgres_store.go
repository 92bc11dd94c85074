package persistence

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
	"github.com/MimeLyc/pipeline-console/internal/sources"
)

// PostgresStore keeps the console tables in Postgres through gorm.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	gormLog := gormLogger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	return newPostgresStore(db)
}

func newPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&generationRow{},
		&sourcePageRow{},
		&sourceVideoRow{},
		&importJobRow{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) ListGenerations(ctx context.Context) ([]generation.Record, error) {
	var rows []generationRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make([]generation.Record, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.record())
	}
	return ret, nil
}

func (s *PostgresStore) InsertGeneration(ctx context.Context, r generation.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	row := generationRowFrom(r)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *PostgresStore) UpdateGeneration(ctx context.Context, id string, patch generation.Patch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}
	for name := range cols {
		if _, ok := generationColumns[name]; !ok {
			return fmt.Errorf("column %q is not writable", name)
		}
	}
	res := s.db.WithContext(ctx).Model(&generationRow{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListPages(ctx context.Context) ([]sources.Page, error) {
	var rows []sourcePageRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make([]sources.Page, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.page())
	}
	return ret, nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, page sources.Page) (sources.Page, error) {
	page.ID = uuid.NewString()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = time.Now().UTC()
	}
	row := sourcePageRow{
		ID:            page.ID,
		SourcePageURL: page.URL,
		NumberOfPosts: page.NumberOfPosts,
		Status:        ptr(string(page.Status)),
		CreatedAt:     page.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return sources.Page{}, err
	}
	return page, nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, id string, posts *int, status *sources.PageStatus) error {
	updates := make(map[string]any, 2)
	if posts != nil {
		updates["number_of_posts"] = *posts
	}
	if status != nil {
		updates["status"] = string(*status)
	}
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&sourcePageRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("source page %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeletePage(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&sourcePageRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("source page %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListVideos(ctx context.Context) ([]sources.Video, error) {
	var rows []sourceVideoRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make([]sources.Video, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.video())
	}
	return ret, nil
}

func (s *PostgresStore) InsertVideo(ctx context.Context, v sources.Video) (sources.Video, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	row := sourceVideoRow{
		ID:            v.ID,
		VideoPageURL:  v.VideoPageURL,
		ViewCount:     v.ViewCount,
		Processed:     v.Processed,
		VideoAnalyzed: v.Analyzed,
		ThumbnailURL:  ptr(v.ThumbnailURL),
		FirstFrameURL: ptr(v.FirstFrameURL),
		CreatedAt:     v.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return sources.Video{}, err
	}
	return v, nil
}

func (s *PostgresStore) CountVideos(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&sourceVideoRow{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) LoadJobs(ctx context.Context) ([]*jobs.ImportJob, error) {
	var rows []importJobRow
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make([]*jobs.ImportJob, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.job())
	}
	return ret, nil
}

func (s *PostgresStore) UpsertJob(ctx context.Context, job *jobs.ImportJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	row := importJobRowFrom(job)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source", "dedupe_key", "source_url", "title", "file_name", "file_path",
			"status", "message", "error", "updated_at",
		}),
	}).Create(&row).Error
}

func (s *PostgresStore) DeleteJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Where("id = ?", jobID).Delete(&importJobRow{}).Error
}

func (s *PostgresStore) DeleteJobData(_ context.Context, job *jobs.ImportJob) error {
	return removeUpload(job)
}
