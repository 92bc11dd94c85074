package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/pipeline-console/internal/config"
	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
	"github.com/MimeLyc/pipeline-console/internal/monitor"
	"github.com/MimeLyc/pipeline-console/internal/persistence"
	"github.com/MimeLyc/pipeline-console/internal/sources"
	"github.com/MimeLyc/pipeline-console/internal/stats"
)

var refNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

type fakeTrigger struct {
	regenerateErr error
	publishErr    error
	regenerated   []string
	published     []string
}

func (f *fakeTrigger) Regenerate(_ context.Context, sourceURL, _ string) error {
	f.regenerated = append(f.regenerated, sourceURL)
	return f.regenerateErr
}

func (f *fakeTrigger) PublishVideo(_ context.Context, videoURL, id, _ string) error {
	f.published = append(f.published, id+"|"+videoURL)
	return f.publishErr
}

type fakeCounter struct {
	videos, gens int
}

func (f fakeCounter) CountVideos(context.Context) (int, error)      { return f.videos, nil }
func (f fakeCounter) CountGenerations(context.Context) (int, error) { return f.gens, nil }

type fixture struct {
	store   *persistence.SQLiteStore
	engine  *generation.Engine
	queue   *jobs.Queue
	trigger *fakeTrigger
	server  *Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := persistence.NewSQLiteStore(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := func() time.Time { return refNow }
	trigger := &fakeTrigger{}
	engine := generation.NewEngine(store,
		generation.WithClock(clock),
		generation.WithRegenerator(trigger),
		generation.WithPublisher(trigger),
	)
	queue := jobs.NewQueue(1, nil)

	base := []Option{
		WithClock(clock),
		WithSources(sources.NewService(store)),
		WithStats(stats.NewService(store, store, engine.Classifier())),
		WithStreamInterval(20 * time.Millisecond),
	}
	srv := NewServer(engine, queue, append(base, opts...)...)
	return &fixture{store: store, engine: engine, queue: queue, trigger: trigger, server: srv}
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) insertGeneration(t *testing.T, r generation.Record) {
	t.Helper()
	require.NoError(t, f.store.InsertGeneration(context.Background(), r))
}

func reviewRecord(id string) generation.Record {
	return generation.Record{
		ID:             id,
		CreatedAt:      refNow.Add(-time.Hour),
		SourceVideoURL: "https://drive.google.com/file/d/abc123/view",
		Title:          "Cat jumps",
		RawStatus:      generation.StatusDone,
		Seedance:       generation.Output{URL: "https://cdn.test/seedance.mp4"},
		Kling:          generation.Output{URL: "https://cdn.test/kling.mp4"},
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestServer_ListGenerationsLoadsOnFirstRequest(t *testing.T) {
	f := newFixture(t)
	f.insertGeneration(t, reviewRecord("done-1"))
	f.insertGeneration(t, generation.Record{
		ID:        "fresh",
		CreatedAt: refNow.Add(-time.Minute),
		RawStatus: generation.StatusStarted,
	})
	f.insertGeneration(t, generation.Record{
		ID:        "broken",
		CreatedAt: refNow.Add(-2 * time.Minute),
		RawStatus: generation.StatusFailed,
	})

	rec := f.do(t, http.MethodGet, "/api/generations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got generationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Loaded)
	assert.Equal(t, 3, got.Counts.Total)
	require.Len(t, got.Completed, 1)
	require.Len(t, got.Failed, 1)
	require.Len(t, got.Pending, 1)
	assert.Equal(t, "done-1", got.Completed[0].ID)
	assert.Equal(t, "https://drive.google.com/file/d/abc123/preview", got.Completed[0].SourceEmbedURL)
	assert.Equal(t, "https://cdn.test/kling.mp4", got.Completed[0].KlingEmbedURL)
}

func TestServer_ListGenerationsRefreshOnDemand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Refresh(context.Background()))
	f.insertGeneration(t, reviewRecord("late"))

	rec := f.do(t, http.MethodGet, "/api/generations", "")
	var cached generationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
	assert.Equal(t, 0, cached.Counts.Total)

	rec = f.do(t, http.MethodGet, "/api/generations?refresh=1", "")
	var fresh generationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fresh))
	assert.Equal(t, 1, fresh.Counts.Total)
}

func TestServer_ApproveAndReject(t *testing.T) {
	f := newFixture(t)
	f.insertGeneration(t, reviewRecord("42"))
	require.NoError(t, f.engine.Refresh(context.Background()))

	rec := f.do(t, http.MethodPost, "/api/generations/42/approve", `{"variant":"seedance"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r, ok := f.engine.Get("42")
	require.True(t, ok)
	assert.Equal(t, generation.Approved, r.Seedance.Approval)

	rec = f.do(t, http.MethodPost, "/api/generations/42/reject", `{"variant":"kling","feedback":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation", decodeBody(t, rec)["type"])

	rec = f.do(t, http.MethodPost, "/api/generations/42/reject", `{"variant":"kling","feedback":"too dark"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, f.engine.Refresh(context.Background()))
	r, _ = f.engine.Get("42")
	assert.Equal(t, generation.Rejected, r.Kling.Approval)
	assert.Equal(t, "too dark", r.Kling.Feedback)
}

func TestServer_GenerationActionErrors(t *testing.T) {
	f := newFixture(t)
	f.insertGeneration(t, reviewRecord("42"))
	require.NoError(t, f.engine.Refresh(context.Background()))

	rec := f.do(t, http.MethodPost, "/api/generations/missing/approve", `{"variant":"seedance"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeBody(t, rec)["type"])

	rec = f.do(t, http.MethodPost, "/api/generations/42/approve", `{"variant":"sora"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/generations/42/approve", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/generations/42/explode", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/generations/42/approve", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RetryTriggerFailureKeepsReset(t *testing.T) {
	f := newFixture(t)
	f.insertGeneration(t, generation.Record{
		ID:             "7",
		CreatedAt:      refNow.Add(-time.Hour),
		SourceVideoURL: "https://facebook.com/reel/7",
		RawStatus:      generation.StatusFailed,
	})
	require.NoError(t, f.engine.Refresh(context.Background()))
	f.trigger.regenerateErr = errs.New(errs.Trigger, "webhook returned status 500")

	rec := f.do(t, http.MethodPost, "/api/generations/7/retry", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Trigger", body["type"])
	assert.NotEmpty(t, body["advice"])

	r, _ := f.engine.Get("7")
	assert.Equal(t, generation.StatusPending, r.RawStatus)
	assert.Equal(t, []string{"https://facebook.com/reel/7"}, f.trigger.regenerated)
}

func TestServer_RetryTimeoutMapsToGatewayTimeout(t *testing.T) {
	f := newFixture(t)
	f.insertGeneration(t, generation.Record{
		ID:             "7",
		CreatedAt:      refNow.Add(-time.Hour),
		SourceVideoURL: "https://facebook.com/reel/7",
		RawStatus:      generation.StatusFailed,
	})
	require.NoError(t, f.engine.Refresh(context.Background()))
	f.trigger.regenerateErr = errs.New(errs.Timeout, "request timed out")

	rec := f.do(t, http.MethodPost, "/api/generations/7/retry", "")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "Timeout", decodeBody(t, rec)["type"])
}

func TestServer_Publish(t *testing.T) {
	f := newFixture(t)
	f.insertGeneration(t, reviewRecord("42"))
	require.NoError(t, f.engine.Refresh(context.Background()))

	rec := f.do(t, http.MethodPost, "/api/generations/42/publish", `{"variant":"kling"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"42|https://cdn.test/kling.mp4"}, f.trigger.published)
}

func TestServer_SourcePages(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/source-pages", `{"source_page_url":"https://facebook.com/cats","number_of_posts":25}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var page sources.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 25, page.NumberOfPosts)
	assert.Equal(t, sources.PageActive, page.Status)

	rec = f.do(t, http.MethodPost, "/api/source-pages", `{"source_page_url":"https://facebook.com/dogs","number_of_posts":"12a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/source-pages/"+page.ID, `{"number_of_posts":"40"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 40, decodeBody(t, rec)["number_of_posts"])

	rec = f.do(t, http.MethodPost, "/api/source-pages/"+page.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decodeBody(t, rec)["status"])

	rec = f.do(t, http.MethodPost, "/api/source-pages/nope/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/source-pages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Pages []sources.Page `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Pages, 1)
	assert.Equal(t, 40, list.Pages[0].NumberOfPosts)
	assert.Equal(t, sources.PagePaused, list.Pages[0].Status)

	rec = f.do(t, http.MethodDelete, "/api/source-pages/"+page.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_MissingSourcePageIsNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/source-pages/missing", `{"number_of_posts":"40"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeBody(t, rec)["type"])

	rec = f.do(t, http.MethodDelete, "/api/source-pages/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeBody(t, rec)["type"])
}

func TestServer_SourceVideosByTab(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, v := range []sources.Video{
		{VideoPageURL: "https://facebook.com/reel/1", Processed: true, Analyzed: true, ThumbnailURL: "https://cdn.test/t1.jpg", FirstFrameURL: "https://cdn.test/f1.jpg"},
		{VideoPageURL: "https://facebook.com/reel/2", Processed: true},
		{VideoPageURL: "https://drive.google.com/open?id=xyz"},
	} {
		v.CreatedAt = refNow.Add(time.Duration(i) * time.Minute)
		_, err := f.store.InsertVideo(ctx, v)
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/api/source-videos?tab=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Videos []videoView          `json:"videos"`
		Counts sources.VideoCounts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Videos, 1)
	assert.Equal(t, "https://drive.google.com/file/d/xyz/preview", got.Videos[0].EmbedURL)
	assert.Equal(t, sources.VideoCounts{All: 3, Pending: 1, Processed: 2, Analyzed: 1, Unanalyzed: 2}, got.Counts)

	rec = f.do(t, http.MethodGet, "/api/source-videos?tab=analyzed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Videos, 1)
	assert.Equal(t, "https://cdn.test/f1.jpg", got.Videos[0].PreviewURL)

	rec = f.do(t, http.MethodGet, "/api/source-videos?tab=weird", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ImportByURLDedupes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/imports", `{"url":"https://facebook.com/reel/9","title":"Nine"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/imports", `{"url":"https://facebook.com/reel/9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["created"])

	rec = f.do(t, http.MethodPost, "/api/imports", `{"url":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	jobsList := f.queue.List()
	require.Len(t, jobsList, 1)
	assert.Equal(t, "Nine", jobsList[0].Payload.Title)
}

func TestServer_ImportUploadSpoolsFile(t *testing.T) {
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	f := newFixture(t, WithUploadDir(uploadDir))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("video_title", "Clip"))
	part, err := mw.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake video"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	jobsList := f.queue.List()
	require.Len(t, jobsList, 1)
	payload := jobsList[0].Payload
	assert.True(t, payload.IsUpload())
	assert.Equal(t, "clip.mp4", payload.FileName)
	assert.Equal(t, "Clip", payload.Title)
	assert.Equal(t, ".mp4", filepath.Ext(payload.FilePath))

	data, err := os.ReadFile(payload.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "fake video", string(data))
}

func TestServer_ImportUploadOverLimit(t *testing.T) {
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	f := newFixture(t, WithUploadDir(uploadDir), WithUploadLimit(256))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("v"), 4096))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "Validation", decodeBody(t, rec)["type"])
	assert.Empty(t, f.queue.List())
	entries, _ := os.ReadDir(uploadDir)
	assert.Empty(t, entries)
}

func TestServer_ImportUploadWithoutDirectory(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, _ = part.Write([]byte("x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Config", decodeBody(t, rec)["type"])
}

func TestServer_RetryImport(t *testing.T) {
	f := newFixture(t)
	f.queue.Start(func(context.Context, *jobs.ImportJob) (string, error) {
		return "", errors.New("webhook down")
	})
	t.Cleanup(f.queue.Stop)

	rec := f.do(t, http.MethodPost, "/api/imports", `{"url":"https://facebook.com/reel/3"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		job, ok := f.queue.Get("job-1")
		return ok && job.Status == jobs.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodPost, "/api/imports/job-1/retry", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	job, ok := f.queue.Get("job-2")
	require.True(t, ok)
	assert.Equal(t, jobs.SourceRetry, job.Source)

	rec = f.do(t, http.MethodPost, "/api/imports/job-99/retry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Stats(t *testing.T) {
	f := newFixture(t)
	posted := reviewRecord("posted")
	posted.Posted = true
	posted.PostURL = "https://portal.test/p/1"
	f.insertGeneration(t, posted)
	f.insertGeneration(t, generation.Record{ID: "bad", CreatedAt: refNow, RawStatus: generation.StatusFailed})
	_, err := f.store.InsertVideo(context.Background(), sources.Video{VideoPageURL: "https://facebook.com/reel/1", CreatedAt: refNow})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got stats.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.TotalGenerated)
	assert.Equal(t, 1, got.Posted)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 1, got.SourceVideos)
}

func TestServer_ActivityRequiresPoller(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/activity", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	poller := monitor.NewPoller(fakeCounter{videos: 4, gens: 2})
	poller.Check(context.Background())
	f = newFixture(t, WithPoller(poller))

	rec = f.do(t, http.MethodGet, "/api/activity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got monitor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.SourceVideos)
	assert.Equal(t, 4, *got.SourceVideos)
	assert.Equal(t, monitor.DefaultSchedule, got.Schedule)
}

func TestServer_GenerationStreamSendsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.insertGeneration(t, reviewRecord("42"))
	require.NoError(t, f.engine.Refresh(context.Background()))

	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/generations/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var got generationsResponse
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got))
	assert.Equal(t, 1, got.Counts.Completed)
}

func TestServer_GetSettings(t *testing.T) {
	store := &fakeSettingsStore{
		current: config.RuntimeSettings{
			ImportWebhookURL:  "https://n8n.test/webhook/import",
			PublishWebhookURL: "https://n8n.test/webhook/publish",
			PollSchedule:      "@every 5s",
		},
	}
	f := newFixture(t, WithRuntimeSettingsStore(store))

	rec := f.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, store.current, got)
}

func TestServer_UpdateSettings_AppliesImmediately(t *testing.T) {
	store := &fakeSettingsStore{
		current: config.RuntimeSettings{
			ImportWebhookURL:  "https://old.test/import",
			PublishWebhookURL: "https://old.test/publish",
			PollSchedule:      "@every 5s",
		},
	}
	var applied config.RuntimeSettings
	var applyCalls int
	f := newFixture(t,
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			applyCalls++
			return nil
		}),
	)

	body := `{"import_webhook_url":"https://new.test/import","publish_webhook_url":"https://new.test/publish","poll_schedule":"*/1 * * * *"}`
	rec := f.do(t, http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, applyCalls)
	assert.Equal(t, "https://new.test/import", applied.ImportWebhookURL)
	assert.Equal(t, "*/1 * * * *", store.current.PollSchedule)
}

func TestServer_UpdateSettings_Invalid(t *testing.T) {
	store := &fakeSettingsStore{}
	f := newFixture(t, WithRuntimeSettingsStore(store))

	body := `{"import_webhook_url":"ftp://x","publish_webhook_url":"https://new.test/publish","poll_schedule":"@every 5s"}`
	rec := f.do(t, http.MethodPut, "/api/settings", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UpdateSettings_StoreFailure(t *testing.T) {
	store := &fakeSettingsStore{updateErr: errors.New("save failed")}
	f := newFixture(t, WithRuntimeSettingsStore(store))

	body := `{"import_webhook_url":"https://new.test/import","publish_webhook_url":"https://new.test/publish","poll_schedule":"@every 5s"}`
	rec := f.do(t, http.MethodPut, "/api/settings", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
