package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

// DefaultTimeout is how long a trigger request may take. The import workflow
// downloads and analyzes the video before it answers.
const DefaultTimeout = 25 * time.Minute

const maxResponseBody = 1 << 20

// ImportRequest is the body of the import webhook.
type ImportRequest struct {
	URL   string `json:"url"`
	Title string `json:"video_title,omitempty"`
}

// PublishRequest is the body of the portal publish webhook.
type PublishRequest struct {
	VideoURL     string `json:"video_url"`
	GenerationID string `json:"generation_id"`
	VideoTitle   string `json:"video_title"`
}

// Client calls the workflow automation webhooks.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration

	mu         sync.RWMutex
	importURL  string
	publishURL string
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(importURL, publishURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		importURL:  importURL,
		publishURL: publishURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetEndpoints swaps the webhook URLs. Requests already in flight keep the old ones.
func (c *Client) SetEndpoints(importURL, publishURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.importURL = importURL
	c.publishURL = publishURL
}

func (c *Client) Endpoints() (importURL, publishURL string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.importURL, c.publishURL
}

// Import starts the import workflow for a public video URL and returns the
// user-facing result message.
func (c *Client) Import(ctx context.Context, req ImportRequest) (string, error) {
	if strings.TrimSpace(req.URL) == "" {
		return "", errs.New(errs.Validation, "video url is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", errs.Wrap(err, errs.Unknown, "encode import request")
	}
	importURL, _ := c.Endpoints()
	text, err := c.post(ctx, importURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return ResultMessage(text), nil
}

// ImportFile uploads a local video to the import workflow. The multipart body
// is streamed from file, so the video is never held in memory.
func (c *Client) ImportFile(ctx context.Context, name string, file io.Reader, title string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errs.New(errs.Validation, "file name is required")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()
	written := make(chan error, 1)
	go func() {
		err := writeUpload(mw, name, file, title)
		_ = pw.CloseWithError(err)
		written <- err
	}()

	importURL, _ := c.Endpoints()
	text, err := c.post(ctx, importURL, contentType, pr)
	_ = pr.Close()
	if werr := <-written; werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		return "", errs.Wrap(werr, errs.Validation, "read upload").WithContext("file", name)
	}
	if err != nil {
		return "", err
	}
	return ResultMessage(text), nil
}

func writeUpload(mw *multipart.Writer, name string, file io.Reader, title string) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if title != "" {
		if err := mw.WriteField("video_title", title); err != nil {
			return err
		}
	}
	return mw.Close()
}

// Publish hands an output video to the portal. Only the status code matters.
func (c *Client) Publish(ctx context.Context, req PublishRequest) error {
	if strings.TrimSpace(req.VideoURL) == "" {
		return errs.New(errs.Validation, "video url is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return errs.Wrap(err, errs.Unknown, "encode publish request")
	}
	_, publishURL := c.Endpoints()
	if _, err := c.post(ctx, publishURL, "application/json", bytes.NewReader(body)); err != nil {
		return err
	}
	log.Info("Sent generation %s to portal", req.GenerationID)
	return nil
}

// Regenerate re-runs the import for an existing source video.
func (c *Client) Regenerate(ctx context.Context, sourceURL string, title string) error {
	_, err := c.Import(ctx, ImportRequest{URL: sourceURL, Title: title})
	return err
}

func (c *Client) PublishVideo(ctx context.Context, videoURL string, generationID string, title string) error {
	return c.Publish(ctx, PublishRequest{VideoURL: videoURL, GenerationID: generationID, VideoTitle: title})
}

func (c *Client) post(ctx context.Context, url string, contentType string, body io.Reader) (string, error) {
	if url == "" {
		return "", errs.New(errs.Config, "webhook url is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", errs.Wrap(err, errs.Config, "invalid webhook url").WithContext("url", url)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("Webhook %s timed out after %s", url, time.Since(start).Round(time.Second))
			return "", errs.Wrap(err, errs.Timeout, "request timed out").WithContext("url", url)
		}
		return "", errs.Wrap(err, errs.Trigger, "webhook request failed").WithContext("url", url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", errs.Wrap(err, errs.Trigger, "read webhook response").WithContext("url", url)
	}
	text := string(data)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errs.New(errs.Trigger, fmt.Sprintf("webhook returned status %d", resp.StatusCode)).
			WithContext("url", url).
			WithContext("status", resp.StatusCode).
			WithContext("body", truncate(text, 200))
	}
	log.Debug("Webhook %s answered %d in %s", url, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	return text, nil
}

// ResultMessage turns a workflow answer into the message shown to the user.
// The answer is either an object or an array whose first element carries
// generation_status; anything else is passed through.
func ResultMessage(text string) string {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return text
	}

	var item struct {
		GenerationStatus string `json:"generation_status"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil || len(items) == 0 {
			return text
		}
		trimmed = items[0]
	}
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return text
	}

	switch item.GenerationStatus {
	case "started":
		return "Video generation started successfully"
	case "":
		return text
	default:
		return "Status: " + item.GenerationStatus
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
