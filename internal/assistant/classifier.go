package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rohitkal/rubi/internal/ollama"
)

// Chatter is the interface for chat completion via the local model.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

const (
	classifyAttempts = 3
	classifyTimeout  = 10 * time.Second
)

const classifySystemPrompt = `You are an intent classifier for a personal assistant. Analyze the user's latest message in the context of the conversation. Your output must be ONLY a single valid JSON object that conforms to the provided schema.

Actions:
- "query": the user is asking a question or making conversation
- "store": the user wants something remembered or saved as a note or link
- "retrieve": the user wants to find something they stored previously
- "list": the user wants to see their saved notes, links or uploads
- "delete": the user wants to remove a saved item

Rules:
- "action" must be exactly one of: query, store, retrieve, list, delete.
- "argument" carries the part of the message the action applies to: the text to remember, the thing to search for, the item type to list, or the item number to delete. For "query" leave it empty.`

// classifierReply mirrors the structured JSON the model is asked to produce.
type classifierReply struct {
	Action   string `json:"action"`
	Argument string `json:"argument"`
}

// Classifier maps a free-text message (plus recent history) to an Action
// using structured LLM output. It holds no state of its own.
type Classifier struct {
	client Chatter
	model  string
	logger *slog.Logger
}

// NewClassifier creates a Classifier using the given chat client and model name.
func NewClassifier(client Chatter, model string) *Classifier {
	return &Classifier{client: client, model: model, logger: slog.Default()}
}

// Classify resolves text into an Action. Malformed or out-of-set completions
// are retried up to 3 times with the same prompt; if still unresolved the
// message is treated as a plain query. The router therefore always receives a
// valid Action and never blocks on classification failure.
func (c *Classifier) Classify(ctx context.Context, text string, history []Turn) Action {
	messages := buildClassifyPrompt(text, history)

	reply := resolveWithRetry(classifyAttempts,
		func() (classifierReply, error) {
			callCtx, cancel := context.WithTimeout(ctx, classifyTimeout)
			defer cancel()

			raw, err := c.client.Chat(callCtx, c.model, messages, classifySchema())
			if err != nil {
				c.logger.Warn("intent classification chat failed", "error", err)
				return classifierReply{}, err
			}

			var r classifierReply
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				c.logger.Warn("unparseable classifier output", "error", err, "response", raw)
				return classifierReply{}, err
			}
			return r, nil
		},
		func(r classifierReply) bool {
			_, ok := ParseActionKind(r.Action)
			return ok
		},
		classifierReply{Action: "query"},
	)

	kind, _ := ParseActionKind(reply.Action)
	payload := reply.Argument
	if payload == "" {
		payload = text
	}
	return Action{Kind: kind, Payload: payload}
}

func buildClassifyPrompt(text string, history []Turn) []ollama.Message {
	messages := []ollama.Message{
		{Role: "system", Content: classifySystemPrompt},
	}
	for _, t := range history {
		messages = append(messages, ollama.Message{Role: t.Role, Content: t.Text})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: text})
	return messages
}

// classifySchema returns the JSON schema for structured classifier output.
func classifySchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"action":   {Type: "string", Description: "The classified action", Enum: []string{"query", "store", "retrieve", "list", "delete"}},
			"argument": {Type: "string", Description: "The part of the message the action applies to"},
		},
		Required: []string{"action", "argument"},
	}
}
