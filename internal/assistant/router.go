package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rohitkal/rubi/internal/ollama"
	"github.com/rohitkal/rubi/internal/queue"
	"github.com/rohitkal/rubi/internal/vecindex"
)

// ErrCompletion wraps failures of the completion capability. The router
// absorbs these into a "temporarily unavailable" reply; they reach logs, not
// callers.
var ErrCompletion = errors.New("completion failed")

const completionTimeout = 10 * time.Second

// TaskLog is the durable task queue contract the router depends on.
type TaskLog interface {
	LoadAll() ([]queue.Task, error)
	Append(t queue.Task) (queue.Task, error)
	ReplaceAll(tasks []queue.Task) error
}

// Searcher is the vector retrieval contract the router depends on.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]vecindex.Document, error)
}

// Response is the router's reply to one inbound message.
type Response struct {
	Text      string              `json:"response"`
	Action    string              `json:"action"`
	Pending   bool                `json:"awaiting_confirmation"`
	Tasks     []queue.Task        `json:"tasks,omitempty"`
	Documents []vecindex.Document `json:"results,omitempty"`
	TaskCount int                 `json:"task_count,omitempty"`
}

var affirmatives = map[string]bool{"yes": true, "y": true, "ok": true, "okay": true}
var cancels = map[string]bool{"no": true, "n": true, "cancel": true, "nevermind": true, "never mind": true}

// Router is the action state machine: it consumes classifier output and
// session state, decides whether to execute immediately, ask for
// confirmation, or execute a previously confirmed action, and dispatches to
// the vector index, the task queue, or the chat model.
//
// Store and retrieve are gated behind confirmation because their effects are
// durable or costly; query, list and delete execute immediately.
type Router struct {
	chat       Chatter
	model      string
	classifier *Classifier
	index      Searcher
	tasks      TaskLog
	topK       int
	logger     *slog.Logger
}

// NewRouter wires the router's collaborators. topK bounds retrieve results;
// values <= 0 default to 5.
func NewRouter(chat Chatter, model string, classifier *Classifier, index Searcher, tasks TaskLog, topK int) *Router {
	if topK <= 0 {
		topK = 5
	}
	return &Router{
		chat:       chat,
		model:      model,
		classifier: classifier,
		index:      index,
		tasks:      tasks,
		topK:       topK,
		logger:     slog.Default(),
	}
}

// Handle processes one inbound message for the given session. The session is
// locked for the whole call: pending-state checks and mutations never
// interleave across concurrent requests from the same caller.
func (r *Router) Handle(ctx context.Context, sess *Session, callerID, text string) (Response, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.Append(Turn{Role: RoleUser, Text: text})

	if pending := sess.Pending(); pending != nil {
		if isAffirmative(text) {
			resp, committed, err := r.executePending(ctx, callerID, *pending)
			if err != nil {
				return Response{}, err
			}
			// A transient capability failure leaves the pending action in
			// place so the user can confirm again later.
			if committed {
				sess.ClearPending()
			}
			sess.Append(Turn{Role: RoleAssistant, Text: resp.Text})
			return resp, nil
		}
		if isCancel(text) {
			sess.ClearPending()
			resp := Response{Text: "Okay, I won't do that.", Action: pending.Kind.String()}
			sess.Append(Turn{Role: RoleAssistant, Text: resp.Text})
			return resp, nil
		}
		// Anything else is a fresh request; the pending action survives
		// unless a new store/retrieve replaces it below.
	}

	// The inbound turn was already appended above; the classifier adds the
	// message itself, so give it the history up to that turn.
	history := sess.History()
	action := r.classifier.Classify(ctx, text, history[:len(history)-1])
	r.logger.Debug("classified intent", "caller", callerID, "action", action.Kind.String())

	var resp Response
	var err error
	switch action.Kind {
	case ActionQuery:
		resp, err = r.handleQuery(ctx, sess, text)
	case ActionStore:
		resp, err = r.deferStore(ctx, sess, action.Payload)
	case ActionRetrieve:
		resp, err = r.deferRetrieve(ctx, sess, action.Payload)
	case ActionList:
		resp, err = r.handleList(action.Payload)
	case ActionDelete:
		resp, err = r.handleDelete(action.Payload)
	}
	if err != nil {
		return Response{}, err
	}

	resp.Action = action.Kind.String()
	sess.Append(Turn{Role: RoleAssistant, Text: resp.Text})
	return resp, nil
}

// executePending commits a previously confirmed action. committed is false
// when a transient capability failure kept the effect from happening.
func (r *Router) executePending(ctx context.Context, callerID string, pending Action) (Response, bool, error) {
	switch pending.Kind {
	case ActionStore:
		task, err := r.tasks.Append(queue.Task{
			Type:    queue.TypeNote,
			Content: pending.Payload,
			Owner:   callerID,
		})
		if err != nil {
			return Response{}, false, fmt.Errorf("queueing note: %w", err)
		}
		return Response{
			Text:   fmt.Sprintf("Saved note #%d.", task.Seq),
			Action: pending.Kind.String(),
		}, true, nil

	case ActionRetrieve:
		docs, err := r.index.Search(ctx, pending.Payload, r.topK)
		if err != nil {
			if errors.Is(err, vecindex.ErrEmbedding) {
				return r.unavailable("retrieve", err), false, nil
			}
			return Response{}, false, fmt.Errorf("searching index: %w", err)
		}
		text := fmt.Sprintf("Found %d matching entries.", len(docs))
		if len(docs) == 0 {
			text = "I couldn't find anything matching that."
		}
		return Response{
			Text:      text,
			Action:    pending.Kind.String(),
			Documents: docs,
		}, true, nil
	}

	// Only store and retrieve are ever deferred.
	return Response{}, false, fmt.Errorf("unexpected pending action %q", pending.Kind)
}

func (r *Router) handleQuery(ctx context.Context, sess *Session, text string) (Response, error) {
	messages := []ollama.Message{
		{Role: "system", Content: "You are a helpful personal assistant. Keep answers short and direct."},
	}
	for _, t := range sess.History() {
		messages = append(messages, ollama.Message{Role: t.Role, Content: t.Text})
	}

	reply, err := r.complete(ctx, messages)
	if err != nil {
		return r.unavailable("query", err), nil
	}
	return Response{Text: reply}, nil
}

func (r *Router) deferStore(ctx context.Context, sess *Session, payload string) (Response, error) {
	summary, err := r.complete(ctx, []ollama.Message{
		{Role: "system", Content: "Condense the user's message into a single concise note worth remembering. Reply with the note text only."},
		{Role: "user", Content: payload},
	})
	if err != nil {
		return r.unavailable("store", err), nil
	}
	summary = strings.TrimSpace(summary)

	prev := sess.SetPending(Action{Kind: ActionStore, Payload: summary})
	text := fmt.Sprintf("I'll save this note: %q — shall I? (yes/no)", summary)
	if prev != nil {
		text = fmt.Sprintf("Dropping the earlier %s request. %s", prev.Kind, text)
	}
	return Response{Text: text, Pending: true}, nil
}

func (r *Router) deferRetrieve(ctx context.Context, sess *Session, payload string) (Response, error) {
	query, err := r.complete(ctx, []ollama.Message{
		{Role: "system", Content: "Rewrite the user's message as a short search query optimized for semantic retrieval. Reply with the query only."},
		{Role: "user", Content: payload},
	})
	if err != nil {
		return r.unavailable("retrieve", err), nil
	}
	query = strings.TrimSpace(query)

	prev := sess.SetPending(Action{Kind: ActionRetrieve, Payload: query})
	text := fmt.Sprintf("I'll search your memory for %q — go ahead? (yes/no)", query)
	if prev != nil {
		text = fmt.Sprintf("Dropping the earlier %s request. %s", prev.Kind, text)
	}
	return Response{Text: text, Pending: true}, nil
}

func (r *Router) handleList(payload string) (Response, error) {
	tasks, err := r.tasks.LoadAll()
	if err != nil {
		return Response{}, fmt.Errorf("loading tasks: %w", err)
	}

	wanted := normalizeTaskType(payload)
	var filtered []queue.Task
	for _, t := range tasks {
		if wanted == "" || t.Type == wanted {
			filtered = append(filtered, t)
		}
	}

	label := "items"
	if wanted != "" {
		label = wanted + "s"
	}
	return Response{
		Text:      fmt.Sprintf("You have %d %s.", len(filtered), label),
		Tasks:     filtered,
		TaskCount: len(filtered),
	}, nil
}

func (r *Router) handleDelete(payload string) (Response, error) {
	seq, err := strconv.ParseInt(extractNumber(payload), 10, 64)
	if err != nil {
		return Response{Text: "Tell me the number of the item to delete, e.g. \"delete 3\"."}, nil
	}

	tasks, err := r.tasks.LoadAll()
	if err != nil {
		return Response{}, fmt.Errorf("loading tasks: %w", err)
	}

	kept := tasks[:0:0]
	removed := false
	for _, t := range tasks {
		if t.Seq == seq {
			removed = true
			continue
		}
		kept = append(kept, t)
	}

	if removed {
		if err := r.tasks.ReplaceAll(kept); err != nil {
			return Response{}, fmt.Errorf("rewriting tasks: %w", err)
		}
	}

	text := fmt.Sprintf("Deleted item %d. %d items remain.", seq, len(kept))
	if !removed {
		text = fmt.Sprintf("No item %d found. %d items remain.", seq, len(kept))
	}
	return Response{Text: text, TaskCount: len(kept)}, nil
}

// complete sends a bounded chat request and wraps transport failures.
func (r *Router) complete(ctx context.Context, messages []ollama.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	reply, err := r.chat.Chat(callCtx, r.model, messages, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	return reply, nil
}

func (r *Router) unavailable(action string, err error) Response {
	r.logger.Warn("capability unavailable", "action", action, "error", err)
	return Response{Text: "Sorry, I'm temporarily unavailable. Please try again in a moment."}
}

func isAffirmative(text string) bool {
	return affirmatives[normalizeToken(text)]
}

func isCancel(text string) bool {
	return cancels[normalizeToken(text)]
}

func normalizeToken(text string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!"))
}

func normalizeTaskType(payload string) string {
	p := strings.ToLower(strings.TrimSpace(payload))
	p = strings.TrimSuffix(p, "s")
	switch p {
	case queue.TypeNote, queue.TypeLink, queue.TypeUpload:
		return p
	}
	return ""
}

// extractNumber pulls the first run of digits out of a classifier argument
// like "task 3" or "#3".
func extractNumber(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			return s[start:i]
		}
	}
	if start == -1 {
		return ""
	}
	return s[start:]
}
