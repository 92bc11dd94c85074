package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/internal/jobs"
	"github.com/MimeLyc/pipeline-console/pkg/file"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

const maxUploadMemory = 32 << 20

type importRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "import queue is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"jobs": s.queue.List()})
	case http.MethodPost:
		req, err := s.importRequestFrom(w, r)
		if err != nil {
			writeErr(w, err)
			return
		}
		job, created := s.queue.Enqueue(req)
		status := http.StatusAccepted
		if !created {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{
			"job":     job,
			"created": created,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleImportRetry queues a finished URL import again.
func (s *Server) handleImportRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "import queue is not configured")
		return
	}
	id := r.PathValue("id")
	prev, ok := s.queue.Get(id)
	if !ok {
		writeErr(w, errs.New(errs.NotFound, "import job not found").WithContext("id", id))
		return
	}
	if prev.Payload.IsUpload() {
		writeErr(w, errs.New(errs.Validation, "uploaded files must be submitted again").WithContext("id", id))
		return
	}
	if !prev.Terminal() {
		writeErr(w, errs.New(errs.Validation, "import is still in progress").WithContext("id", id))
		return
	}
	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    jobs.SourceRetry,
		DedupeKey: prev.DedupeKey,
		Payload:   prev.Payload,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job":     job,
		"created": created,
	})
}

func (s *Server) importRequestFrom(w http.ResponseWriter, r *http.Request) (jobs.EnqueueRequest, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return s.uploadRequest(w, r)
	}

	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		return jobs.EnqueueRequest{}, err
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return jobs.EnqueueRequest{}, errs.New(errs.Validation, "video url is required")
	}
	return jobs.EnqueueRequest{
		Source:    jobs.SourceManual,
		DedupeKey: url,
		Payload: jobs.ImportPayload{
			SourceURL: url,
			Title:     strings.TrimSpace(req.Title),
		},
	}, nil
}

// uploadRequest spools the uploaded file into the upload directory; the
// import job owns the file from then on.
func (s *Server) uploadRequest(w http.ResponseWriter, r *http.Request) (jobs.EnqueueRequest, error) {
	if s.uploadDir == "" {
		return jobs.EnqueueRequest{}, errs.New(errs.Config, "uploads are not configured")
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return jobs.EnqueueRequest{}, errs.Wrap(err, errs.Validation, "upload is too large").
				WithContext("limit", tooLarge.Limit)
		}
		return jobs.EnqueueRequest{}, errs.Wrap(err, errs.Validation, "invalid multipart body")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	upload, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return jobs.EnqueueRequest{}, errs.New(errs.Validation, "file is required")
		}
		return jobs.EnqueueRequest{}, errs.Wrap(err, errs.Validation, "read uploaded file")
	}
	defer upload.Close()

	name := filepath.Base(header.Filename)
	dst, size, err := file.Spool(s.uploadDir, name, upload)
	if err != nil {
		return jobs.EnqueueRequest{}, errs.Wrap(err, errs.Unknown, "store uploaded file")
	}
	log.Debug("Stored upload %s as %s (%d bytes)", name, dst, size)

	return jobs.EnqueueRequest{
		Source: jobs.SourceManual,
		Payload: jobs.ImportPayload{
			Title:    strings.TrimSpace(r.FormValue("video_title")),
			FileName: name,
			FilePath: dst,
		},
	}, nil
}
