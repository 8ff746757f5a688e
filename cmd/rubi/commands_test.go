package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rohitkal/rubi/internal/assistant"
)

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorGreen, "hello"); strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", got)
	}

	noColor = false
	if got := colorize(colorGreen, "hello"); !strings.Contains(got, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"start":   false,
		"stop":    false,
		"status":  false,
		"message": false,
		"recall":  false,
		"tasks":   false,
		"users":   false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestMessageReplyMatchesServerEnvelope(t *testing.T) {
	data, err := json.Marshal(assistant.Response{
		Text:    "I'll save this note — shall I? (yes/no)",
		Action:  "store",
		Pending: true,
	})
	if err != nil {
		t.Fatalf("marshalling server response: %v", err)
	}

	var reply messageReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatalf("unmarshalling into CLI reply: %v", err)
	}

	if reply.Text == "" {
		t.Error("Text decoded empty; CLI field names do not match the server envelope")
	}
	if reply.Action != "store" {
		t.Errorf("Action = %q, want store", reply.Action)
	}
	if !reply.Pending {
		t.Error("Pending decoded false from a pending server response")
	}
}

func TestMessageRequiresArgs(t *testing.T) {
	if err := messageCmd.Args(messageCmd, nil); err == nil {
		t.Error("message command should require at least one argument")
	}
	if err := messageCmd.Args(messageCmd, []string{"hello"}); err != nil {
		t.Errorf("message command rejected valid args: %v", err)
	}
}
