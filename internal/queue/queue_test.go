package queue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "queue.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestOpenCreatesEmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}

	tasks, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("got %d tasks, want 0", len(tasks))
	}
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrIO) {
		t.Errorf("Open on malformed file: err = %v, want ErrIO", err)
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	l := openLog(t)

	first, err := l.Append(Task{Type: TypeNote, Content: "buy milk"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	second, err := l.Append(Task{Type: TypeLink, Content: "https://example.com"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if first.Timestamp.IsZero() {
		t.Error("Append did not stamp the task")
	}
}

func TestSeqStableAfterDelete(t *testing.T) {
	l := openLog(t)

	for _, content := range []string{"a", "b", "c"} {
		if _, err := l.Append(Task{Type: TypeNote, Content: content}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	tasks, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	// Remove the middle entry; survivors keep their numbers.
	kept := []Task{tasks[0], tasks[2]}
	if err := l.ReplaceAll(kept); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	after, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("got %d tasks, want 2", len(after))
	}
	if after[0].Seq != 1 || after[1].Seq != 3 {
		t.Errorf("seqs after delete = %d, %d, want 1, 3", after[0].Seq, after[1].Seq)
	}

	// The next append continues past the highest surviving number.
	next, err := l.Append(Task{Type: TypeNote, Content: "d"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if next.Seq != 4 {
		t.Errorf("next seq = %d, want 4", next.Seq)
	}
}

func TestLoadAllSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Append(Task{Type: TypeNote, Content: "persisted", Owner: "alice"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	tasks, err := reopened.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	if tasks[0].Content != "persisted" || tasks[0].Owner != "alice" {
		t.Errorf("reloaded task = %+v", tasks[0])
	}
}

func TestReplaceAllNil(t *testing.T) {
	l := openLog(t)
	if _, err := l.Append(Task{Type: TypeNote, Content: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := l.ReplaceAll(nil); err != nil {
		t.Fatalf("ReplaceAll(nil): %v", err)
	}
	tasks, err := l.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("got %d tasks after clearing, want 0", len(tasks))
	}
}
