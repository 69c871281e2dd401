package actions_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

func TestNormalize_ToolNames(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args string
		typ  actions.EntityType
		op   actions.Operation
	}{
		{"legacy edit", "edit_task", `{"taskId":"t1"}`, actions.TypeTask, actions.OpEdit},
		{"legacy delete", "delete_note", `{"noteId":"n1"}`, actions.TypeNote, actions.OpDelete},
		{"legacy section", "create_shopping_section", `{"name":"Kitchen"}`, actions.TypeShoppingSection, actions.OpCreate},
		{"create multiple", "create_multiple_tasks", `{"tasks":[]}`, actions.TypeTask, actions.OpBulkCreate},
		{"pattern create", "create_contact", `{"name":"Bob"}`, actions.TypeContact, actions.OpCreate},
		{"pattern multiple", "add_multiple_notes", `{}`, actions.TypeNote, actions.OpBulkCreate},
		{"pattern remove", "remove_survey", `{}`, actions.TypeSurvey, actions.OpDelete},
		{"bulk prefix", "bulk_update_tasks", `{}`, actions.TypeTask, actions.OpBulkEdit},
		{"habit toggle", "toggle_habit_completion", `{"habitId":"h1"}`, actions.TypeHabit, actions.OpComplete},
		{"case insensitive", "Edit_Shopping_Item", `{}`, actions.TypeShopping, actions.OpEdit},
		{"payload type wins", "create_task", `{"type":"note","title":"x"}`, actions.TypeNote, actions.OpCreate},
		{"payload alias", "propose_change", `{"type":"shopping_item","operation":"edit"}`, actions.TypeShopping, actions.OpEdit},
		{"payload operation wins", "create_task", `{"operation":"delete","taskId":"t1"}`, actions.TypeTask, actions.OpDelete},
		{"operation synonym", "create_note", `{"operation":"update"}`, actions.TypeNote, actions.OpEdit},
		{"empty arguments", "delete_contact", ``, actions.TypeContact, actions.OpDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := actions.Normalize(actions.RawToolCall{CallID: "c1", FunctionName: tt.fn, Arguments: tt.args})
			assert.Equal(t, tt.typ, a.Type)
			assert.Equal(t, tt.op, a.Operation)
			assert.False(t, a.Unrecognized)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	call := actions.RawToolCall{
		CallID:       "c9",
		FunctionName: "edit_shopping_item",
		Arguments:    `{"operation":"edit","updates":{"sectionName":"Bathroom"}}`,
		ResponseID:   "r9",
	}
	first := actions.Normalize(call)
	second := actions.Normalize(call)
	assert.Equal(t, first, second)
	assert.Equal(t, actions.TypeShopping, first.Type)
	assert.Equal(t, actions.OpEdit, first.Operation)
	assert.Equal(t, map[string]any{"sectionName": "Bathroom"}, first.Updates)
}

func TestNormalize_Unrecognized(t *testing.T) {
	var buf bytes.Buffer
	n := actions.NewNormalizer(nil).WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	a := n.Normalize(actions.RawToolCall{
		CallID:       "c1",
		FunctionName: "launch_rocket",
		Arguments:    `{"operation":"delete","email":"a@b.c"}`,
	})
	assert.Equal(t, actions.TypeTask, a.Type)
	assert.Equal(t, actions.OpCreate, a.Operation)
	assert.True(t, a.Unrecognized)
	assert.Contains(t, buf.String(), "unrecognized tool call")
	assert.Contains(t, buf.String(), "launch_rocket")
	assert.NotContains(t, buf.String(), "a@b.c")
}

func TestNormalize_MalformedArguments(t *testing.T) {
	var buf bytes.Buffer
	n := actions.NewNormalizer(nil).WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	for _, args := range []string{`{"title":`, `[1,2]`, `"just a string"`} {
		a := n.Normalize(actions.RawToolCall{CallID: "c1", FunctionName: "create_note", Arguments: args})
		assert.Equal(t, actions.TypeNote, a.Type, args)
		assert.Equal(t, actions.OpCreate, a.Operation, args)
		assert.Empty(t, a.Data, args)
	}
	assert.Contains(t, buf.String(), "not a JSON object")
}

func TestNormalize_Envelope(t *testing.T) {
	a := actions.Normalize(actions.RawToolCall{
		CallID:       "c1",
		FunctionName: "bulk_edit_tasks",
		ResponseID:   "r1",
		Status:       actions.FeedConfirmed,
		Arguments: `{"data":{"priority":"high"},"status":"todo",
			"updates":{"status":"done"},
			"selection":{"taskIds":["t1","","t2"],"reason":"finished"}}`,
	})
	require.NotNil(t, a.FunctionCall)
	assert.Equal(t, "c1", a.CallID())
	assert.Equal(t, "r1", a.ResponseID)
	assert.Equal(t, actions.StatusConfirmed, a.Status)
	assert.Equal(t, map[string]any{"priority": "high", "status": "todo"}, a.Data)
	assert.Equal(t, map[string]any{"status": "done"}, a.Updates)
	require.NotNil(t, a.Selection)
	assert.Equal(t, []string{"t1", "t2"}, a.Selection.IDs)
	assert.Equal(t, "finished", a.Selection.Reason)
	assert.False(t, a.Selection.Empty())
}

func TestNormalize_NoCallID(t *testing.T) {
	a := actions.Normalize(actions.RawToolCall{FunctionName: "create_task", Arguments: `{"title":"x"}`})
	assert.Nil(t, a.FunctionCall)
	assert.Equal(t, "", a.CallID())
}

func TestNormalizer_Aliases(t *testing.T) {
	n := actions.NewNormalizer(map[string]actions.ToolKind{
		"Plan_Purchase": {Type: actions.TypeShopping, Operation: actions.OpCreate},
		"edit_task":     {Type: actions.TypeTask, Operation: actions.OpBulkEdit},
	})

	kind, ok := n.Lookup("plan_purchase")
	require.True(t, ok)
	assert.Equal(t, actions.TypeShopping, kind.Type)

	a := n.Normalize(actions.RawToolCall{FunctionName: "edit_task", Arguments: `{}`})
	assert.Equal(t, actions.OpBulkEdit, a.Operation)

	// the package-level table is untouched
	assert.Equal(t, actions.OpEdit, actions.Normalize(actions.RawToolCall{FunctionName: "edit_task"}).Operation)
}

func TestParseEntity(t *testing.T) {
	for in, want := range map[string]actions.EntityType{
		"shopping_item":      actions.TypeShopping,
		"ShoppingSection":    actions.TypeShoppingSection,
		"habits":             actions.TypeHabit,
		"shopping-list-item": actions.TypeShopping,
	} {
		got, ok := actions.ParseEntity(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := actions.ParseEntity("rocket")
	assert.False(t, ok)
}

func TestStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, actions.StringSlice([]any{"a", 3, "", "b"}))
	assert.Equal(t, []string{"x"}, actions.StringSlice([]string{"", "x"}))
	assert.Nil(t, actions.StringSlice("a"))
}
