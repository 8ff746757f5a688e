package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rohitkal/rubi/internal/assistant"
	"github.com/rohitkal/rubi/internal/queue"
	"github.com/rohitkal/rubi/internal/storage"
	"github.com/rohitkal/rubi/internal/vecindex"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Store      *storage.Store
	Sessions   *assistant.Manager
	Router     *assistant.Router
	Index      *vecindex.Index
	Tasks      *queue.Log
	DataDir    string
	HTTPClient *http.Client
}

// NewHandler returns the full HTTP surface: open health/login endpoints and
// the codeword-authenticated assistant, task and index routes.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/auth/login", handleLogin(deps.Store))

	r.Group(func(pr chi.Router) {
		pr.Use(CodewordAuth(deps.Store))

		pr.Get("/auth/whoami", handleWhoami)
		pr.Post("/message", handleMessage(deps))
		pr.Post("/note", handleAddNote(deps))
		pr.Post("/link", handleAddLink(deps))
		pr.Post("/upload", handleUpload(deps))
		pr.Get("/tasks", handleListTasks(deps))
		pr.Delete("/tasks/{seq}", handleDeleteTask(deps))
		pr.Post("/index/documents", handleIndexAdd(deps))
		pr.Post("/index/search", handleIndexSearch(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
