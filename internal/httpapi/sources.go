package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/internal/sources"
	"github.com/MimeLyc/pipeline-console/pkg/media"
)

type pageRequest struct {
	URL   string          `json:"source_page_url"`
	Posts json.RawMessage `json:"number_of_posts"`
}

// postsText accepts the post count as a JSON string or number so the service
// sees exactly what the operator typed.
func postsText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errs.Wrap(err, errs.Validation, "invalid number of posts")
		}
		return s, nil
	}
	return string(raw), nil
}

type videoView struct {
	sources.Video
	EmbedURL   string `json:"embed_url,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}

func (s *Server) handleSourcePages(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		writeError(w, http.StatusNotImplemented, "source pages are not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		pages, err := s.sources.ListPages(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
	case http.MethodPost:
		var req pageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		posts, err := postsText(req.Posts)
		if err != nil {
			writeErr(w, err)
			return
		}
		page, err := s.sources.AddPage(r.Context(), req.URL, posts)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, page)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSourcePage(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		writeError(w, http.StatusNotImplemented, "source pages are not configured")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))

	switch r.Method {
	case http.MethodPatch:
		var req pageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		posts, err := postsText(req.Posts)
		if err != nil {
			writeErr(w, err)
			return
		}
		n, err := s.sources.UpdatePosts(r.Context(), id, posts)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "number_of_posts": n})
	case http.MethodDelete:
		if err := s.sources.DeletePage(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleToggleSourcePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.sources == nil {
		writeError(w, http.StatusNotImplemented, "source pages are not configured")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	status, err := s.sources.TogglePage(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Server) handleSourceVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.sources == nil {
		writeError(w, http.StatusNotImplemented, "source videos are not configured")
		return
	}
	tab, err := sources.ParseTab(r.URL.Query().Get("tab"))
	if err != nil {
		writeErr(w, err)
		return
	}
	videos, counts, err := s.sources.ListVideos(r.Context(), tab)
	if err != nil {
		writeErr(w, err)
		return
	}

	views := make([]videoView, 0, len(videos))
	for _, v := range videos {
		views = append(views, videoView{
			Video:      v,
			EmbedURL:   media.EmbedURL(v.VideoPageURL),
			PreviewURL: v.PreviewURL(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tab":    tab,
		"videos": views,
		"counts": counts,
	})
}
