package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rohitkal/rubi/internal/queue"
	"github.com/rohitkal/rubi/internal/vecindex"
)

// memLog is an in-memory TaskLog.
type memLog struct {
	tasks []queue.Task
	seq   int64
}

func (m *memLog) LoadAll() ([]queue.Task, error) {
	out := make([]queue.Task, len(m.tasks))
	copy(out, m.tasks)
	return out, nil
}

func (m *memLog) Append(t queue.Task) (queue.Task, error) {
	m.seq++
	t.Seq = m.seq
	m.tasks = append(m.tasks, t)
	return t, nil
}

func (m *memLog) ReplaceAll(tasks []queue.Task) error {
	m.tasks = append([]queue.Task(nil), tasks...)
	return nil
}

type fakeSearcher struct {
	docs []vecindex.Document
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, k int) ([]vecindex.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k > len(f.docs) {
		k = len(f.docs)
	}
	return f.docs[:k], nil
}

func newTestRouter(chat *scriptedChat, tasks *memLog, index *fakeSearcher) *Router {
	return NewRouter(chat, "test-model", NewClassifier(chat, "test-model"), index, tasks, 5)
}

func classifyAs(action, argument string) string {
	return `{"action":"` + action + `","argument":"` + argument + `"}`
}

func TestStoreRequiresConfirmation(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{classifyAs("store", "buy milk tomorrow")},
		completeReply:   "buy milk tomorrow",
	}
	tasks := &memLog{}
	r := newTestRouter(chat, tasks, &fakeSearcher{})
	sess := &Session{}

	resp, err := r.Handle(context.Background(), sess, "alice", "please remember to buy milk tomorrow")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if !resp.Pending {
		t.Error("response not marked pending")
	}
	if len(tasks.tasks) != 0 {
		t.Errorf("%d tasks queued before confirmation, want 0", len(tasks.tasks))
	}
	if sess.Pending() == nil {
		t.Fatal("session has no pending action")
	}
	if sess.Pending().Kind != ActionStore {
		t.Errorf("pending kind = %v, want ActionStore", sess.Pending().Kind)
	}
}

func TestConfirmationCommitsStore(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{classifyAs("store", "buy milk")},
		completeReply:   "buy milk",
	}
	tasks := &memLog{}
	r := newTestRouter(chat, tasks, &fakeSearcher{})
	sess := &Session{}
	ctx := context.Background()

	if _, err := r.Handle(ctx, sess, "alice", "remember to buy milk"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp, err := r.Handle(ctx, sess, "alice", "yes")
	if err != nil {
		t.Fatalf("Handle(yes): %v", err)
	}

	if len(tasks.tasks) != 1 {
		t.Fatalf("%d tasks queued, want 1", len(tasks.tasks))
	}
	if tasks.tasks[0].Content != "buy milk" {
		t.Errorf("task content = %q, want %q", tasks.tasks[0].Content, "buy milk")
	}
	if tasks.tasks[0].Owner != "alice" {
		t.Errorf("task owner = %q, want alice", tasks.tasks[0].Owner)
	}
	if sess.Pending() != nil {
		t.Error("pending action not cleared after commit")
	}
	if !strings.Contains(resp.Text, "#1") {
		t.Errorf("confirmation reply = %q, want the saved note number", resp.Text)
	}
}

func TestCancelDropsPending(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{classifyAs("store", "buy milk")},
		completeReply:   "buy milk",
	}
	tasks := &memLog{}
	r := newTestRouter(chat, tasks, &fakeSearcher{})
	sess := &Session{}
	ctx := context.Background()

	if _, err := r.Handle(ctx, sess, "alice", "remember to buy milk"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp, err := r.Handle(ctx, sess, "alice", "no")
	if err != nil {
		t.Fatalf("Handle(no): %v", err)
	}

	if len(tasks.tasks) != 0 {
		t.Errorf("%d tasks queued after cancel, want 0", len(tasks.tasks))
	}
	if sess.Pending() != nil {
		t.Error("pending action not cleared after cancel")
	}
	if !strings.Contains(resp.Text, "won't") {
		t.Errorf("cancel reply = %q", resp.Text)
	}
}

func TestNewStoreReplacesPending(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{
			classifyAs("store", "first note"),
			classifyAs("store", "second note"),
		},
		completeReply: "summarized",
	}
	tasks := &memLog{}
	r := newTestRouter(chat, tasks, &fakeSearcher{})
	sess := &Session{}
	ctx := context.Background()

	if _, err := r.Handle(ctx, sess, "alice", "remember the first thing"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp, err := r.Handle(ctx, sess, "alice", "actually remember the second thing")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if !strings.Contains(resp.Text, "Dropping the earlier store request") {
		t.Errorf("overwrite reply = %q, want drop notice", resp.Text)
	}

	// Confirming now commits exactly one task, the most recent request.
	if _, err := r.Handle(ctx, sess, "alice", "yes"); err != nil {
		t.Fatalf("Handle(yes): %v", err)
	}
	if len(tasks.tasks) != 1 {
		t.Errorf("%d tasks queued, want 1", len(tasks.tasks))
	}
}

func TestRetrieveConfirmationSearches(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{classifyAs("retrieve", "pasta recipe")},
		completeReply:   "pasta recipe",
	}
	index := &fakeSearcher{docs: []vecindex.Document{
		{ID: 0, Text: "carbonara: eggs, guanciale, pecorino"},
		{ID: 1, Text: "cacio e pepe"},
	}}
	r := newTestRouter(chat, &memLog{}, index)
	sess := &Session{}
	ctx := context.Background()

	if _, err := r.Handle(ctx, sess, "alice", "find that pasta recipe I saved"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp, err := r.Handle(ctx, sess, "alice", "yes")
	if err != nil {
		t.Fatalf("Handle(yes): %v", err)
	}

	if len(resp.Documents) != 2 {
		t.Errorf("got %d documents, want 2", len(resp.Documents))
	}
	if sess.Pending() != nil {
		t.Error("pending action not cleared after retrieve")
	}
}

func TestTransientFailureKeepsPending(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{classifyAs("retrieve", "pasta recipe")},
		completeReply:   "pasta recipe",
	}
	index := &fakeSearcher{err: vecindex.ErrEmbedding}
	r := newTestRouter(chat, &memLog{}, index)
	sess := &Session{}
	ctx := context.Background()

	if _, err := r.Handle(ctx, sess, "alice", "find that pasta recipe"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	resp, err := r.Handle(ctx, sess, "alice", "yes")
	if err != nil {
		t.Fatalf("Handle(yes): %v", err)
	}

	if !strings.Contains(resp.Text, "temporarily unavailable") {
		t.Errorf("reply = %q, want unavailable notice", resp.Text)
	}
	if sess.Pending() == nil {
		t.Error("pending action dropped on transient failure; user can no longer confirm")
	}

	// Capability recovers, the same confirmation now succeeds.
	index.err = nil
	index.docs = []vecindex.Document{{ID: 0, Text: "carbonara"}}
	resp, err = r.Handle(ctx, sess, "alice", "yes")
	if err != nil {
		t.Fatalf("Handle(yes) after recovery: %v", err)
	}
	if len(resp.Documents) != 1 {
		t.Errorf("got %d documents after recovery, want 1", len(resp.Documents))
	}
	if sess.Pending() != nil {
		t.Error("pending action not cleared after successful retry")
	}
}

func TestListFiltersByType(t *testing.T) {
	chat := &scriptedChat{classifyReplies: []string{classifyAs("list", "notes")}}
	tasks := &memLog{}
	tasks.Append(queue.Task{Type: queue.TypeNote, Content: "a note"})
	tasks.Append(queue.Task{Type: queue.TypeLink, Content: "https://example.com"})
	tasks.Append(queue.Task{Type: queue.TypeNote, Content: "another note"})

	r := newTestRouter(chat, tasks, &fakeSearcher{})
	resp, err := r.Handle(context.Background(), &Session{}, "alice", "show my notes")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if resp.TaskCount != 2 {
		t.Errorf("TaskCount = %d, want 2", resp.TaskCount)
	}
	for _, task := range resp.Tasks {
		if task.Type != queue.TypeNote {
			t.Errorf("list returned %q task, want only notes", task.Type)
		}
	}
}

func TestDeleteBySequence(t *testing.T) {
	chat := &scriptedChat{classifyReplies: []string{classifyAs("delete", "2")}}
	tasks := &memLog{}
	tasks.Append(queue.Task{Type: queue.TypeNote, Content: "keep"})
	tasks.Append(queue.Task{Type: queue.TypeNote, Content: "drop"})
	tasks.Append(queue.Task{Type: queue.TypeNote, Content: "keep too"})

	r := newTestRouter(chat, tasks, &fakeSearcher{})
	resp, err := r.Handle(context.Background(), &Session{}, "alice", "delete item 2")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(tasks.tasks) != 2 {
		t.Fatalf("%d tasks remain, want 2", len(tasks.tasks))
	}
	if tasks.tasks[0].Seq != 1 || tasks.tasks[1].Seq != 3 {
		t.Errorf("surviving seqs = %d, %d, want 1, 3", tasks.tasks[0].Seq, tasks.tasks[1].Seq)
	}
	if !strings.Contains(resp.Text, "Deleted item 2") {
		t.Errorf("reply = %q", resp.Text)
	}
}

func TestDeleteUnknownSequence(t *testing.T) {
	chat := &scriptedChat{classifyReplies: []string{classifyAs("delete", "9")}}
	tasks := &memLog{}
	tasks.Append(queue.Task{Type: queue.TypeNote, Content: "only"})

	r := newTestRouter(chat, tasks, &fakeSearcher{})
	resp, err := r.Handle(context.Background(), &Session{}, "alice", "delete 9")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(tasks.tasks) != 1 {
		t.Errorf("%d tasks remain, want 1 (nothing deleted)", len(tasks.tasks))
	}
	if !strings.Contains(resp.Text, "No item 9") {
		t.Errorf("reply = %q", resp.Text)
	}
}

func TestDeleteWithoutNumber(t *testing.T) {
	chat := &scriptedChat{classifyReplies: []string{classifyAs("delete", "that one")}}
	tasks := &memLog{}
	tasks.Append(queue.Task{Type: queue.TypeNote, Content: "only"})

	r := newTestRouter(chat, tasks, &fakeSearcher{})
	resp, err := r.Handle(context.Background(), &Session{}, "alice", "delete that one")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(tasks.tasks) != 1 {
		t.Errorf("task deleted without a number")
	}
	if !strings.Contains(resp.Text, "number") {
		t.Errorf("reply = %q, want prompt for a number", resp.Text)
	}
}

func TestQueryUnavailableOnCompletionFailure(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{classifyAs("query", "")},
		completeErr:     errors.New("connection refused"),
	}
	r := newTestRouter(chat, &memLog{}, &fakeSearcher{})

	resp, err := r.Handle(context.Background(), &Session{}, "alice", "how are you")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(resp.Text, "temporarily unavailable") {
		t.Errorf("reply = %q, want unavailable notice", resp.Text)
	}
}

func TestQueryAnswers(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{classifyAs("query", "")},
		completeReply:   "I'm doing well, thanks.",
	}
	r := newTestRouter(chat, &memLog{}, &fakeSearcher{})
	sess := &Session{}

	resp, err := r.Handle(context.Background(), sess, "alice", "how are you")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Text != "I'm doing well, thanks." {
		t.Errorf("reply = %q", resp.Text)
	}
	if resp.Action != "query" {
		t.Errorf("action = %q, want query", resp.Action)
	}

	// Both turns are now in the history.
	history := sess.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != RoleUser || history[1].Role != RoleAssistant {
		t.Errorf("history roles = %q, %q", history[0].Role, history[1].Role)
	}
}

func TestClassifyPromptCarriesMessageOnce(t *testing.T) {
	chat := &scriptedChat{
		classifyReplies: []string{
			classifyAs("query", ""),
			classifyAs("query", ""),
		},
		completeReply: "sure",
	}
	r := newTestRouter(chat, &memLog{}, &fakeSearcher{})
	sess := &Session{}
	ctx := context.Background()

	if _, err := r.Handle(ctx, sess, "alice", "first message"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, err := r.Handle(ctx, sess, "alice", "second message"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The session already holds the inbound turn when the classifier runs;
	// the prompt must not carry the latest message twice.
	prompt := chat.classifyPrompts[len(chat.classifyPrompts)-1]
	count := 0
	for _, m := range prompt {
		if m.Content == "second message" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("latest message appears %d times in the classify prompt, want 1", count)
	}

	// Earlier turns still provide context.
	foundEarlier := false
	for _, m := range prompt {
		if m.Content == "first message" {
			foundEarlier = true
		}
	}
	if !foundEarlier {
		t.Error("classify prompt lost the earlier conversation turn")
	}
}

func TestNormalizeToken(t *testing.T) {
	cases := map[string]bool{
		"yes":           true,
		"Yes.":          true,
		"  OK!  ":       true,
		"y":             true,
		"yeah whatever": false,
	}
	for in, want := range cases {
		if got := isAffirmative(in); got != want {
			t.Errorf("isAffirmative(%q) = %v, want %v", in, got, want)
		}
	}
}
