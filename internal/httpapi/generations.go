package httpapi

import (
	"net/http"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/internal/generation"
	"github.com/MimeLyc/pipeline-console/pkg/media"
)

// generationView adds the player URLs the dashboard embeds.
type generationView struct {
	generation.View
	SourceEmbedURL   string `json:"source_embed_url,omitempty"`
	SeedanceEmbedURL string `json:"seedance_embed_url,omitempty"`
	KlingEmbedURL    string `json:"kling_embed_url,omitempty"`
}

type generationsResponse struct {
	Loaded    bool              `json:"loaded"`
	Pending   []generationView  `json:"pending"`
	Failed    []generationView  `json:"failed"`
	Completed []generationView  `json:"completed"`
	Counts    generation.Counts `json:"counts"`
}

type variantRequest struct {
	Variant  string `json:"variant"`
	Feedback string `json:"feedback"`
}

func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.URL.Query().Get("refresh") == "1" || !s.engine.Loaded() {
		if err := s.engine.Refresh(r.Context()); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.generationsResponse())
}

func (s *Server) generationsResponse() generationsResponse {
	snap := s.engine.Snapshot(s.now())
	return generationsResponse{
		Loaded:    snap.Loaded,
		Pending:   withEmbeds(snap.Pending),
		Failed:    withEmbeds(snap.Failed),
		Completed: withEmbeds(snap.Completed),
		Counts:    snap.Counts,
	}
}

func withEmbeds(views []generation.View) []generationView {
	ret := make([]generationView, 0, len(views))
	for _, v := range views {
		ret = append(ret, generationView{
			View:             v,
			SourceEmbedURL:   media.EmbedURL(v.SourceVideoURL),
			SeedanceEmbedURL: media.EmbedURL(v.Seedance.URL),
			KlingEmbedURL:    media.EmbedURL(v.Kling.URL),
		})
	}
	return ret
}

func (s *Server) handleGenerationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.PathValue("id")
	action := r.PathValue("action")

	switch action {
	case "approve", "reject", "publish":
		var req variantRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		variant, err := generation.ParseVariant(req.Variant)
		if err != nil {
			writeErr(w, errs.Wrap(err, errs.Validation, "unknown variant"))
			return
		}
		s.runVariantAction(w, r, id, action, variant, req.Feedback)
	case "retry":
		record, err := s.engine.Retry(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"record":  record,
			"message": "Generation reset and regeneration started",
		})
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

func (s *Server) runVariantAction(w http.ResponseWriter, r *http.Request, id, action string, v generation.Variant, feedback string) {
	var (
		record generation.Record
		err    error
	)
	switch action {
	case "approve":
		record, err = s.engine.Approve(r.Context(), id, v)
	case "reject":
		record, err = s.engine.Reject(r.Context(), id, v, feedback)
	case "publish":
		if err = s.engine.Publish(r.Context(), id, v); err == nil {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"message": "Video sent to the publishing portal",
			})
			return
		}
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": record})
}
