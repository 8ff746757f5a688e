package assistant

import "strings"

// ActionKind is the closed set of actions the classifier can produce. File
// uploads are routed by the HTTP layer directly since they are file-bound,
// not text-bound.
type ActionKind int

const (
	ActionQuery ActionKind = iota
	ActionStore
	ActionRetrieve
	ActionList
	ActionDelete
)

var actionNames = map[ActionKind]string{
	ActionQuery:    "query",
	ActionStore:    "store",
	ActionRetrieve: "retrieve",
	ActionList:     "list",
	ActionDelete:   "delete",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseActionKind maps a label to its ActionKind. The second return value is
// false for anything outside the closed set.
func ParseActionKind(s string) (ActionKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "query":
		return ActionQuery, true
	case "store":
		return ActionStore, true
	case "retrieve":
		return ActionRetrieve, true
	case "list":
		return ActionList, true
	case "delete":
		return ActionDelete, true
	}
	return ActionQuery, false
}

// Action is the structured result of intent classification: what to do and
// the argument it applies to (summary text, search query, task type or
// sequence number, depending on the kind).
type Action struct {
	Kind    ActionKind
	Payload string
}
