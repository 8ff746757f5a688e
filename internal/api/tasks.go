package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rohitkal/rubi/internal/queue"
)

const (
	maxUploadSize = 10 << 20 // 10MB
	maxLinkFetch  = 5 << 20  // 5MB
	chunkRuneSize = 4000     // indexing chunk size
)

type noteRequest struct {
	Text string `json:"text"`
}

// handleAddNote appends a note task directly, bypassing intent classification.
func handleAddNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req noteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		task, err := deps.Tasks.Append(queue.Task{
			Type:    queue.TypeNote,
			Content: req.Text,
			Owner:   callerFrom(r).Name,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing note: %v", err)
			return
		}

		writeJSON(w, map[string]any{"status": "queued", "seq": task.Seq})
	}
}

type linkRequest struct {
	URL string `json:"url"`
}

// handleAddLink appends a link task and, best-effort, fetches the page and
// indexes its readable text for later retrieval.
func handleAddLink(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req linkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}
		if _, err := url.ParseRequestURI(req.URL); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid url: %v", err)
			return
		}

		task, err := deps.Tasks.Append(queue.Task{
			Type:    queue.TypeLink,
			Content: req.URL,
			Owner:   callerFrom(r).Name,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing link: %v", err)
			return
		}

		// Index the page content so retrieve can find it later. Fetch
		// failures only cost retrievability, not the queued task.
		if text, err := fetchLinkText(r.Context(), deps.HTTPClient, req.URL); err != nil {
			slog.Warn("link fetch failed, queued without indexing", "url", req.URL, "error", err)
		} else if _, err := deps.Index.InsertBatch(r.Context(), chunkRunes(text, chunkRuneSize)); err != nil {
			slog.Warn("link indexing failed", "url", req.URL, "error", err)
		}

		writeJSON(w, map[string]any{"status": "queued", "seq": task.Seq})
	}
}

// fetchLinkText downloads a page and reduces it to title plus readable text.
func fetchLinkText(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("url returned status %d", resp.StatusCode)
	}

	title, text, err := extractHTMLText(io.LimitReader(resp.Body, maxLinkFetch))
	if err != nil {
		return "", err
	}
	combined := strings.TrimSpace(title + "\n" + text)
	if combined == "" {
		return "", fmt.Errorf("no readable text at %s", pageURL)
	}
	return combined, nil
}

// handleUpload stores an uploaded file under the data directory, queues an
// upload task, and indexes any text it can extract (PDF or plain text).
func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer file.Close()

		uploadsDir := filepath.Join(deps.DataDir, "uploads")
		if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating uploads directory: %v", err)
			return
		}

		name := filepath.Base(header.Filename)
		dest := filepath.Join(uploadsDir, uuid.New().String()+"_"+name)
		out, err := os.Create(dest)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing file: %v", err)
			return
		}
		if _, err := io.Copy(out, file); err != nil {
			out.Close()
			os.Remove(dest)
			httpError(w, http.StatusInternalServerError, "api_error", "storing file: %v", err)
			return
		}
		out.Close()

		task, err := deps.Tasks.Append(queue.Task{
			Type:    queue.TypeUpload,
			Content: dest,
			Owner:   callerFrom(r).Name,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing upload: %v", err)
			return
		}

		if text, err := extractFileText(dest, name); err != nil {
			slog.Warn("upload text extraction failed, stored without indexing", "file", name, "error", err)
		} else if _, err := deps.Index.InsertBatch(r.Context(), chunkRunes(name+"\n"+text, chunkRuneSize)); err != nil {
			slog.Warn("upload indexing failed", "file", name, "error", err)
		}

		writeJSON(w, map[string]any{"status": "queued", "seq": task.Seq, "filename": name})
	}
}

// handleListTasks returns queued tasks, optionally filtered by type.
func handleListTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := deps.Tasks.LoadAll()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading tasks: %v", err)
			return
		}

		wanted := r.URL.Query().Get("type")
		filtered := []queue.Task{}
		for _, t := range tasks {
			if wanted == "" || t.Type == wanted {
				filtered = append(filtered, t)
			}
		}
		writeJSON(w, filtered)
	}
}

// handleDeleteTask removes a task by its stable sequence number.
func handleDeleteTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid task sequence number")
			return
		}

		tasks, err := deps.Tasks.LoadAll()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading tasks: %v", err)
			return
		}

		kept := []queue.Task{}
		removed := false
		for _, t := range tasks {
			if t.Seq == seq {
				removed = true
				continue
			}
			kept = append(kept, t)
		}
		if !removed {
			httpError(w, http.StatusNotFound, "not_found", "task %d not found", seq)
			return
		}

		if err := deps.Tasks.ReplaceAll(kept); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "rewriting tasks: %v", err)
			return
		}
		writeJSON(w, map[string]any{"status": "deleted", "count": len(kept)})
	}
}

// chunkRunes splits s into pieces of at most n runes so long extractions are
// indexed as multiple documents instead of being cut off.
func chunkRunes(s string, n int) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	for start := 0; start < len(runes); start += n {
		end := start + n
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
