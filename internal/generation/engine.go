package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

// refreshTimeout bounds one shared full-collection read.
const refreshTimeout = 30 * time.Second

var (
	ErrFeedbackRequired = errors.New("feedback is required")
	ErrMissingSource    = errors.New("missing source video url")
	ErrNoOutput         = errors.New("variant has no output")
	ErrAlreadyReviewed  = errors.New("variant already reviewed")
)

// Store is the remote generations collection.
type Store interface {
	// ListGenerations returns every record, newest first.
	ListGenerations(ctx context.Context) ([]Record, error)
	UpdateGeneration(ctx context.Context, id string, patch Patch) error
}

// Regenerator starts the external (re)import workflow for a source video.
type Regenerator interface {
	Regenerate(ctx context.Context, sourceURL string, title string) error
}

// Publisher sends a finished output to the publishing portal.
type Publisher interface {
	PublishVideo(ctx context.Context, videoURL string, generationID string, title string) error
}

// Engine owns the local copy of the generations collection and the review
// workflow on top of it. Mutations are applied locally first, then persisted;
// a failed write restores the previous value. Concurrent edits of the same
// record are last-write-wins.
type Engine struct {
	store       Store
	regenerator Regenerator
	publisher   Publisher
	classifier  Classifier
	now         func() time.Time

	mu      sync.RWMutex
	records []Record
	loaded  bool

	refreshGroup singleflight.Group
}

type Option func(*Engine)

func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) {
		e.classifier = Classifier{StaleAfter: d}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithRegenerator(r Regenerator) Option {
	return func(e *Engine) {
		e.regenerator = r
	}
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Classifier() Classifier {
	return e.classifier
}

// Refresh replaces the local collection with a full read. Concurrent callers
// share one read. On failure the local collection is kept.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, _ := e.refreshGroup.Do("refresh", func() (any, error) {
		// The read is shared, so one caller going away must not cancel it
		// for the others.
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		records, err := e.store.ListGenerations(readCtx)
		if err != nil {
			return nil, errs.Wrap(err, errs.RemoteRead, "load generations")
		}
		e.mu.Lock()
		e.records = cloneRecords(records)
		e.loaded = true
		e.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		log.Error("Failed to refresh generations: %v", err)
	}
	return err
}

func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

func (e *Engine) List() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneRecords(e.records)
}

func (e *Engine) Get(id string) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx := e.indexLocked(id)
	if idx < 0 {
		return Record{}, false
	}
	return e.records[idx], true
}

// View is a record with its derived display state. EffectiveStatus always
// agrees with Bucket: a completed record is reported as done even when its
// raw status has gone stale.
type View struct {
	Record
	EffectiveStatus Status `json:"effective_status"`
	Bucket          Bucket `json:"bucket"`
}

type Counts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

type Snapshot struct {
	Loaded    bool   `json:"loaded"`
	Pending   []View `json:"pending"`
	Failed    []View `json:"failed"`
	Completed []View `json:"completed"`
	Counts    Counts `json:"counts"`
}

// Snapshot partitions the local collection at now.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	e.mu.RLock()
	records := cloneRecords(e.records)
	loaded := e.loaded
	e.mu.RUnlock()

	buckets := e.classifier.Partition(records, now)
	toViews := func(list []Record, bucket Bucket) []View {
		ret := make([]View, 0, len(list))
		for _, r := range list {
			status := e.classifier.EffectiveStatus(r, now)
			if bucket == BucketCompleted {
				status = StatusDone
			}
			ret = append(ret, View{
				Record:          r,
				EffectiveStatus: status,
				Bucket:          bucket,
			})
		}
		return ret
	}
	return Snapshot{
		Loaded:    loaded,
		Pending:   toViews(buckets.Pending, BucketPending),
		Failed:    toViews(buckets.Failed, BucketFailed),
		Completed: toViews(buckets.Completed, BucketCompleted),
		Counts: Counts{
			Total:     buckets.Len(),
			Pending:   len(buckets.Pending),
			Failed:    len(buckets.Failed),
			Completed: len(buckets.Completed),
		},
	}
}

// Approve marks a finished, unreviewed variant as approved.
func (e *Engine) Approve(ctx context.Context, id string, v Variant) (Record, error) {
	return e.mutate(ctx, id, func(r Record) (Patch, error) {
		if err := checkReviewable(r, v); err != nil {
			return Patch{}, err
		}
		return approvalPatch(v, Approved, nil), nil
	})
}

// Reject marks a finished, unreviewed variant as rejected with the reviewer's
// feedback. Blank feedback is refused before anything is written.
func (e *Engine) Reject(ctx context.Context, id string, v Variant, feedback string) (Record, error) {
	feedback = norm.NFC.String(strings.TrimSpace(feedback))
	if feedback == "" {
		return Record{}, errs.Wrap(ErrFeedbackRequired, errs.Validation, "rejection needs feedback").
			WithContext("id", id)
	}
	return e.mutate(ctx, id, func(r Record) (Patch, error) {
		if err := checkReviewable(r, v); err != nil {
			return Patch{}, err
		}
		return approvalPatch(v, Rejected, &feedback), nil
	})
}

// Retry resets a record to pending and starts the regeneration workflow for
// its source video. A failed reset aborts before the workflow is triggered; a
// failed trigger leaves the reset in place.
func (e *Engine) Retry(ctx context.Context, id string) (Record, error) {
	if e.regenerator == nil {
		return Record{}, errs.New(errs.Config, "regeneration trigger is not configured")
	}
	now := e.now()
	reset, err := e.mutate(ctx, id, func(r Record) (Patch, error) {
		if strings.TrimSpace(r.SourceVideoURL) == "" {
			return Patch{}, errs.Wrap(ErrMissingSource, errs.Validation, "cannot retry without a source video").
				WithContext("id", id)
		}
		return resetPatch(now), nil
	})
	if err != nil {
		return Record{}, err
	}

	if err := e.regenerator.Regenerate(ctx, reset.SourceVideoURL, reset.Title); err != nil {
		log.Error("Regeneration trigger failed for %s after reset: %v", id, err)
		if errs.IsKind(err, errs.Timeout) {
			return reset, err
		}
		return reset, errs.Wrap(err, errs.Trigger, "record reset but regeneration was not started").
			WithContext("id", id)
	}
	log.Info("Regeneration started for %s from %s", id, reset.SourceVideoURL)
	return reset, nil
}

// Publish sends a variant output to the portal. Local state is not changed;
// publication info arrives with the next refresh.
func (e *Engine) Publish(ctx context.Context, id string, v Variant) error {
	if e.publisher == nil {
		return errs.New(errs.Config, "portal publisher is not configured")
	}
	r, ok := e.Get(id)
	if !ok {
		return errs.New(errs.NotFound, "generation not found").WithContext("id", id)
	}
	out, ok := r.Output(v)
	if !ok {
		return errs.Newf(errs.Validation, "unknown variant %q", v)
	}
	if !out.Ready() {
		return errs.Wrap(ErrNoOutput, errs.Validation, "nothing to publish").
			WithContext("id", id).
			WithContext("variant", v)
	}
	if err := e.publisher.PublishVideo(ctx, out.URL, id, r.Title); err != nil {
		if errs.IsKind(err, errs.Timeout) {
			return err
		}
		return errs.Wrap(err, errs.Trigger, "portal publish failed").WithContext("id", id)
	}
	return nil
}

func checkReviewable(r Record, v Variant) error {
	out, ok := r.Output(v)
	if !ok {
		return errs.Newf(errs.Validation, "unknown variant %q", v)
	}
	if !out.Ready() {
		return errs.Wrap(ErrNoOutput, errs.Validation, "variant cannot be reviewed yet").
			WithContext("id", r.ID).
			WithContext("variant", v)
	}
	if !out.Reviewable() {
		return errs.Wrap(ErrAlreadyReviewed, errs.Validation, "variant was already reviewed").
			WithContext("id", r.ID).
			WithContext("variant", v)
	}
	return nil
}

// mutate applies build's patch locally, persists it and rolls back on failure.
func (e *Engine) mutate(ctx context.Context, id string, build func(Record) (Patch, error)) (Record, error) {
	e.mu.Lock()
	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return Record{}, errs.New(errs.NotFound, "generation not found").WithContext("id", id)
	}
	prev := e.records[idx]
	patch, err := build(prev)
	if err != nil {
		e.mu.Unlock()
		return Record{}, err
	}
	next := patch.Apply(prev)
	e.records[idx] = next
	e.mu.Unlock()

	if err := e.store.UpdateGeneration(ctx, id, patch); err != nil {
		e.rollback(id, next, prev)
		log.Error("Failed to persist generation %s, local change reverted: %v", id, err)
		return Record{}, errs.WrapStore(err, errs.RemoteWrite, "update generation").WithContext("id", id)
	}
	return next, nil
}

// rollback restores prev unless the record changed again in the meantime.
func (e *Engine) rollback(id string, applied, prev Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.indexLocked(id)
	if idx < 0 || e.records[idx] != applied {
		return
	}
	e.records[idx] = prev
}

func (e *Engine) indexLocked(id string) int {
	for i := range e.records {
		if e.records[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneRecords(in []Record) []Record {
	if in == nil {
		return []Record{}
	}
	ret := make([]Record, len(in))
	copy(ret, in)
	return ret
}
