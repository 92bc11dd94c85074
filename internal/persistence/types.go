package persistence

import (
	"context"
	"os"
	"time"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
	"github.com/MimeLyc/pipeline-console/internal/sources"
)

var ErrNotFound = errs.ErrNotFound

// Store is everything the console persists, implemented by SQLite and Postgres.
type Store interface {
	generation.Store
	sources.Store
	jobs.Store

	InsertGeneration(ctx context.Context, r generation.Record) error
	InsertVideo(ctx context.Context, v sources.Video) (sources.Video, error)
	Close() error
}

// generationRow mirrors the generations table. Optional columns are pointers.
type generationRow struct {
	ID                string     `gorm:"column:id;primaryKey"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null;index:idx_generations_created_at,sort:desc"`
	SourceVideoURL    *string    `gorm:"column:source_video_url"`
	VideoTitle        *string    `gorm:"column:video_title"`
	GenerationStatus  *string    `gorm:"column:generation_status"`
	SeedanceOutputURL *string    `gorm:"column:seedance_output_url"`
	SeedanceApproved  *bool      `gorm:"column:seedance_approved"`
	SeedanceFeedback  *string    `gorm:"column:seedance_feedback"`
	KlingOutputURL    *string    `gorm:"column:kling_output_url"`
	KlingApproved     *bool      `gorm:"column:kling_approved"`
	KlingFeedback     *string    `gorm:"column:kling_feedback"`
	Posted            bool       `gorm:"column:posted;not null;default:false"`
	PostURL           *string    `gorm:"column:post_url"`
	PostedAt          *time.Time `gorm:"column:posted_at"`
}

func (generationRow) TableName() string { return "generations" }

func (r generationRow) record() generation.Record {
	return generation.Record{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		SourceVideoURL: deref(r.SourceVideoURL),
		Title:          deref(r.VideoTitle),
		RawStatus:      generation.Status(deref(r.GenerationStatus)),
		Seedance: generation.Output{
			URL:      deref(r.SeedanceOutputURL),
			Approval: generation.ApprovalFromNullable(r.SeedanceApproved),
			Feedback: deref(r.SeedanceFeedback),
		},
		Kling: generation.Output{
			URL:      deref(r.KlingOutputURL),
			Approval: generation.ApprovalFromNullable(r.KlingApproved),
			Feedback: deref(r.KlingFeedback),
		},
		Posted:   r.Posted,
		PostURL:  deref(r.PostURL),
		PostedAt: r.PostedAt,
	}
}

func generationRowFrom(r generation.Record) generationRow {
	return generationRow{
		ID:                r.ID,
		CreatedAt:         r.CreatedAt.UTC(),
		SourceVideoURL:    ptr(r.SourceVideoURL),
		VideoTitle:        ptr(r.Title),
		GenerationStatus:  ptr(string(r.RawStatus)),
		SeedanceOutputURL: ptr(r.Seedance.URL),
		SeedanceApproved:  r.Seedance.Approval.Nullable(),
		SeedanceFeedback:  ptr(r.Seedance.Feedback),
		KlingOutputURL:    ptr(r.Kling.URL),
		KlingApproved:     r.Kling.Approval.Nullable(),
		KlingFeedback:     ptr(r.Kling.Feedback),
		Posted:            r.Posted,
		PostURL:           ptr(r.PostURL),
		PostedAt:          r.PostedAt,
	}
}

// generationColumns is the set of columns a patch may write.
var generationColumns = func() map[string]struct{} {
	ret := map[string]struct{}{
		generation.ColumnCreatedAt: {},
		generation.ColumnStatus:    {},
	}
	for _, v := range generation.Variants {
		ret[generation.OutputURLColumn(v)] = struct{}{}
		ret[generation.ApprovedColumn(v)] = struct{}{}
		ret[generation.FeedbackColumn(v)] = struct{}{}
	}
	return ret
}()

type sourcePageRow struct {
	ID            string    `gorm:"column:id;primaryKey"`
	SourcePageURL string    `gorm:"column:source_page_url;not null"`
	NumberOfPosts int       `gorm:"column:number_of_posts;not null;default:10"`
	Status        *string   `gorm:"column:status"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (sourcePageRow) TableName() string { return "source_pages" }

func (r sourcePageRow) page() sources.Page {
	return sources.Page{
		ID:            r.ID,
		URL:           r.SourcePageURL,
		NumberOfPosts: r.NumberOfPosts,
		Status:        sources.PageStatus(deref(r.Status)),
		CreatedAt:     r.CreatedAt,
	}
}

type sourceVideoRow struct {
	ID            string    `gorm:"column:id;primaryKey"`
	VideoPageURL  string    `gorm:"column:video_page_url;not null"`
	ViewCount     *int64    `gorm:"column:view_count"`
	Processed     bool      `gorm:"column:processed;not null;default:false"`
	VideoAnalyzed bool      `gorm:"column:video_analyzed;not null;default:false"`
	ThumbnailURL  *string   `gorm:"column:thumbnail_url"`
	FirstFrameURL *string   `gorm:"column:first_frame_url"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_source_videos_created_at,sort:desc"`
}

func (sourceVideoRow) TableName() string { return "source_videos" }

func (r sourceVideoRow) video() sources.Video {
	return sources.Video{
		ID:            r.ID,
		VideoPageURL:  r.VideoPageURL,
		ViewCount:     r.ViewCount,
		Processed:     r.Processed,
		Analyzed:      r.VideoAnalyzed,
		ThumbnailURL:  deref(r.ThumbnailURL),
		FirstFrameURL: deref(r.FirstFrameURL),
		CreatedAt:     r.CreatedAt,
	}
}

type importJobRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Source    string    `gorm:"column:source;not null"`
	DedupeKey string    `gorm:"column:dedupe_key;not null;default:''"`
	SourceURL string    `gorm:"column:source_url;not null;default:''"`
	Title     string    `gorm:"column:title;not null;default:''"`
	FileName  string    `gorm:"column:file_name;not null;default:''"`
	FilePath  string    `gorm:"column:file_path;not null;default:''"`
	Status    string    `gorm:"column:status;not null"`
	Message   string    `gorm:"column:message;not null;default:''"`
	Error     string    `gorm:"column:error;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (importJobRow) TableName() string { return "import_jobs" }

func (r importJobRow) job() *jobs.ImportJob {
	return &jobs.ImportJob{
		ID:        r.ID,
		Source:    r.Source,
		DedupeKey: r.DedupeKey,
		Payload: jobs.ImportPayload{
			SourceURL: r.SourceURL,
			Title:     r.Title,
			FileName:  r.FileName,
			FilePath:  r.FilePath,
		},
		Status:    jobs.Status(r.Status),
		Message:   r.Message,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func importJobRowFrom(job *jobs.ImportJob) importJobRow {
	return importJobRow{
		ID:        job.ID,
		Source:    job.Source,
		DedupeKey: job.DedupeKey,
		SourceURL: job.Payload.SourceURL,
		Title:     job.Payload.Title,
		FileName:  job.Payload.FileName,
		FilePath:  job.Payload.FilePath,
		Status:    string(job.Status),
		Message:   job.Message,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.UTC(),
		UpdatedAt: job.UpdatedAt.UTC(),
	}
}

// removeUpload deletes a spooled upload file; a missing file is not an error.
func removeUpload(job *jobs.ImportJob) error {
	if job == nil || job.Payload.FilePath == "" {
		return nil
	}
	if err := os.Remove(job.Payload.FilePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
