package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rohitkal/rubi/internal/queue"
	"github.com/rohitkal/rubi/internal/storage"
	"github.com/rohitkal/rubi/internal/vecindex"
)

type messageRequest struct {
	Text string `json:"text"`
}

// handleMessage feeds one free-text message through the assistant router and
// records the interaction.
func handleMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		text := strings.TrimSpace(req.Text)
		if text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		caller := callerFrom(r)
		sess := deps.Sessions.Get(caller.Codeword)

		resp, err := deps.Router.Handle(r.Context(), sess, caller.Name, text)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrIO):
				httpError(w, http.StatusInternalServerError, "api_error", "task queue unavailable: %v", err)
			case errors.Is(err, vecindex.ErrCorrupt):
				httpError(w, http.StatusInternalServerError, "api_error", "vector index unavailable: %v", err)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "handling message: %v", err)
			}
			return
		}

		interaction := storage.Interaction{
			ID:        uuid.New().String(),
			Caller:    caller.Name,
			Message:   text,
			Response:  resp.Text,
			Action:    resp.Action,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveInteraction(interaction); err != nil {
			slog.Warn("failed to record interaction", "error", err)
		}

		writeJSON(w, resp)
	}
}
