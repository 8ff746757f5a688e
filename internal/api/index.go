package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rohitkal/rubi/internal/vecindex"
)

type indexAddRequest struct {
	Text string `json:"text"`
}

// handleIndexAdd inserts a document directly into the vector index.
func handleIndexAdd(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req indexAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		id, err := deps.Index.Insert(r.Context(), req.Text)
		if err != nil {
			if errors.Is(err, vecindex.ErrEmbedding) {
				httpError(w, http.StatusBadGateway, "api_error", "embedding unavailable: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "inserting document: %v", err)
			return
		}

		writeJSON(w, map[string]any{"status": "stored", "id": id, "total": deps.Index.Count()})
	}
}

type indexSearchRequest struct {
	Text string `json:"text"`
	K    int    `json:"k"`
}

// handleIndexSearch runs a nearest-neighbor query against the vector index.
func handleIndexSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req indexSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}
		if req.K <= 0 {
			req.K = 10
		}

		results, err := deps.Index.SearchScored(r.Context(), req.Text, req.K)
		if err != nil {
			if errors.Is(err, vecindex.ErrEmbedding) {
				httpError(w, http.StatusBadGateway, "api_error", "embedding unavailable: %v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "searching index: %v", err)
			return
		}

		writeJSON(w, map[string]any{"results": results})
	}
}
