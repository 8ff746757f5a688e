package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetUser(t *testing.T) {
	s := openStore(t)

	u := User{Codeword: "open-sesame", Name: "alice", CreatedAt: time.Now().UTC()}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := s.GetUser("open-sesame")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "alice" {
		t.Errorf("Name = %q, want alice", got.Name)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not persisted")
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := openStore(t)

	_, err := s.GetUser("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser on missing codeword: err = %v, want ErrNotFound", err)
	}
}

func TestSaveUserUpsert(t *testing.T) {
	s := openStore(t)

	if err := s.SaveUser(User{Codeword: "cw", Name: "old name"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := s.SaveUser(User{Codeword: "cw", Name: "new name"}); err != nil {
		t.Fatalf("SaveUser (update): %v", err)
	}

	got, err := s.GetUser("cw")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Name != "new name" {
		t.Errorf("Name = %q, want new name", got.Name)
	}

	count, err := s.CountUsers()
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if count != 1 {
		t.Errorf("CountUsers = %d, want 1", count)
	}
}

func TestCountUsersEmpty(t *testing.T) {
	s := openStore(t)

	count, err := s.CountUsers()
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if count != 0 {
		t.Errorf("CountUsers = %d, want 0", count)
	}
}

func TestInteractionsNewestFirst(t *testing.T) {
	s := openStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := s.SaveInteraction(Interaction{
			ID:        uuid.New().String(),
			Caller:    "alice",
			Message:   "message",
			Response:  "response",
			Action:    "query",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveInteraction: %v", err)
		}
	}

	got, err := s.GetRecentInteractions(2)
	if err != nil {
		t.Fatalf("GetRecentInteractions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d interactions, want 2", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Errorf("interactions not newest first: %v, %v", got[0].CreatedAt, got[1].CreatedAt)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.SaveUser(User{Codeword: "cw", Name: "alice"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetUser("cw"); err != nil {
		t.Errorf("data lost across reopen: %v", err)
	}
}
