package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

// idKeys is the result/payload key that carries the id of each entity type.
var idKeys = map[actions.EntityType]string{
	actions.TypeTask:            "taskId",
	actions.TypeNote:            "noteId",
	actions.TypeShopping:        "itemId",
	actions.TypeShoppingSection: "sectionId",
	actions.TypeSurvey:          "surveyId",
	actions.TypeContact:         "contactId",
	actions.TypeHabit:           "habitId",
}

// IDKey returns the "<entity>Id" key for t.
func IDKey(t actions.EntityType) string {
	if k, ok := idKeys[t]; ok {
		return k
	}
	return "id"
}

// Result is the uniform outcome of dispatching one action. Partial batch
// failures are reported here with Success=false, not as an error.
type Result struct {
	Success    bool
	Message    string
	EntityType actions.EntityType
	EntityID   string
	// Errors holds up to three element errors of a batch operation.
	Errors []string
}

// MarshalJSON renders the result as {success, message, <entity>Id}.
func (r Result) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"success": r.Success,
		"message": r.Message,
	}
	if r.EntityID != "" {
		m[IDKey(r.EntityType)] = r.EntityID
	}
	if len(r.Errors) > 0 {
		m["errors"] = r.Errors
	}
	return json.Marshal(m)
}

// ValidationError means the action cannot be dispatched as proposed. It is
// never retried; the action stays pending until the user rejects it.
type ValidationError struct {
	Type      actions.EntityType
	Operation actions.Operation
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s %s: %s: %s", e.Type, e.Operation, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Type, e.Operation, e.Reason)
}

func invalid(a actions.Action, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Type:      a.Type,
		Operation: a.Operation,
		Field:     field,
		Reason:    fmt.Sprintf(format, args...),
	}
}
