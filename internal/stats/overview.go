package stats

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/internal/generation"
)

type GenerationLister interface {
	ListGenerations(ctx context.Context) ([]generation.Record, error)
}

type VideoCounter interface {
	CountVideos(ctx context.Context) (int, error)
}

// Overview is the dashboard header.
type Overview struct {
	TotalGenerated int       `json:"total_generated"`
	Posted         int       `json:"posted"`
	Failed         int       `json:"failed"`
	Pending        int       `json:"pending"`
	Completed      int       `json:"completed"`
	SourceVideos   int       `json:"source_videos"`
	GeneratedAt    time.Time `json:"generated_at"`
}

type Service struct {
	generations GenerationLister
	videos      VideoCounter
	classifier  generation.Classifier
}

func NewService(generations GenerationLister, videos VideoCounter, classifier generation.Classifier) *Service {
	return &Service{generations: generations, videos: videos, classifier: classifier}
}

// Overview reads both collections concurrently. Either failure fails the whole call.
func (s *Service) Overview(ctx context.Context, now time.Time) (Overview, error) {
	var (
		records []generation.Record
		videos  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.generations.ListGenerations(gctx)
		if err != nil {
			return errs.Wrap(err, errs.RemoteRead, "load generations for stats")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		videos, err = s.videos.CountVideos(gctx)
		if err != nil {
			return errs.Wrap(err, errs.RemoteRead, "count source videos for stats")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	return Summarize(records, videos, s.classifier, now), nil
}

func Summarize(records []generation.Record, sourceVideos int, classifier generation.Classifier, now time.Time) Overview {
	buckets := classifier.Partition(records, now)
	o := Overview{
		TotalGenerated: len(records),
		Failed:         len(buckets.Failed),
		Pending:        len(buckets.Pending),
		Completed:      len(buckets.Completed),
		SourceVideos:   sourceVideos,
		GeneratedAt:    now,
	}
	for _, r := range records {
		if r.Posted && !r.PublishFailed() {
			o.Posted++
		}
	}
	return o
}
