package actions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

func TestExpand_BulkCreatePreservesCount(t *testing.T) {
	call := actions.RawToolCall{
		CallID:       "c1",
		FunctionName: "create_multiple_tasks",
		ResponseID:   "r1",
		Arguments:    `{"tasks":[{"title":"Paint wall"},{"title":"Order tiles"}]}`,
	}
	parent := actions.Normalize(call)
	require.Equal(t, actions.OpBulkCreate, parent.Operation)

	out := actions.Expand(parent)
	require.Len(t, out, 2)
	for i, a := range out {
		assert.Equal(t, actions.TypeTask, a.Type)
		assert.Equal(t, actions.OpCreate, a.Operation)
		assert.Equal(t, "r1", a.ResponseID)
		require.NotNil(t, a.FunctionCall)
		assert.Equal(t, "c1", a.FunctionCall.CallID, "child %d", i)
	}
	assert.Equal(t, "Paint wall", out[0].Data["title"])
	assert.Equal(t, "Order tiles", out[1].Data["title"])

	// children do not share the parent's payload
	out[0].Data["title"] = "changed"
	assert.Equal(t, "Order tiles", out[1].Data["title"])
	assert.NotContains(t, parent.Data, "title")
}

func TestExpand_BulkCreateArrayFields(t *testing.T) {
	tests := []struct {
		fn    string
		args  string
		count int
	}{
		{"create_multiple_notes", `{"notes":[{"title":"a"},{"title":"b"},{"title":"c"}]}`, 3},
		{"create_shopping_list", `{"items":[{"name":"Tiles"},{"name":"Grout"}]}`, 2},
		{"create_multiple_shopping_items", `{"shoppingItems":[{"name":"Tiles"}]}`, 1},
		{"create_multiple_surveys", `{"surveys":[{"title":"a"}]}`, 1},
		{"create_multiple_habits", `{"habits":[{"name":"a"},{"name":"b"}]}`, 2},
		{"create_multiple_contacts", `{"items":[{"name":"Bob"}]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			out := actions.Expand(actions.Normalize(actions.RawToolCall{CallID: "c", FunctionName: tt.fn, Arguments: tt.args}))
			require.Len(t, out, tt.count)
			for _, a := range out {
				assert.Equal(t, actions.OpCreate, a.Operation)
			}
		})
	}
}

func TestExpand_BulkCreateInheritsContainerKeys(t *testing.T) {
	out := actions.Expand(actions.Normalize(actions.RawToolCall{
		CallID:       "c1",
		FunctionName: "create_shopping_list",
		Arguments:    `{"sectionName":"Kitchen","items":[{"name":"Sink"},{"name":"Tap","sectionName":"Bathroom"}]}`,
	}))
	require.Len(t, out, 2)
	assert.Equal(t, "Kitchen", out[0].Data["sectionName"])
	assert.Equal(t, "Bathroom", out[1].Data["sectionName"])
}

func TestExpand_BulkCreateMissingArray(t *testing.T) {
	for _, args := range []string{`{}`, `{"tasks":[]}`, `{"tasks":"nope"}`, `{"tasks":[1,2]}`} {
		parent := actions.Normalize(actions.RawToolCall{CallID: "c1", FunctionName: "create_multiple_tasks", Arguments: args})
		out := actions.Expand(parent)
		require.Len(t, out, 1, args)
		assert.Equal(t, actions.OpBulkCreate, out[0].Operation, args)
	}
}

func TestExpand_TaskDetails(t *testing.T) {
	out := actions.Expand(actions.Normalize(actions.RawToolCall{
		CallID:       "c2",
		FunctionName: "bulk_edit_tasks",
		ResponseID:   "r2",
		Arguments: `{"taskDetails":[
			{"taskId":"t1","original":{"title":"Old"},"updates":{"title":"New"},"changeSummary":"rename"},
			{"original":{"_id":"t2","status":"todo"},"updates":{"status":"done"}}
		]}`,
	}))
	require.Len(t, out, 2)

	assert.Equal(t, actions.OpEdit, out[0].Operation)
	assert.Equal(t, "t1", out[0].Data["taskId"])
	assert.Equal(t, "rename", out[0].Data["changeSummary"])
	assert.Equal(t, map[string]any{"title": "New"}, out[0].Updates)
	assert.Equal(t, map[string]any{"title": "Old"}, out[0].OriginalItem)

	assert.Equal(t, "t2", out[1].Data["taskId"])
	assert.Equal(t, map[string]any{"status": "done"}, out[1].Updates)
	assert.Equal(t, "r2", out[1].ResponseID)
}

func TestExpand_TitleChangesKeepSelection(t *testing.T) {
	out := actions.Expand(actions.Normalize(actions.RawToolCall{
		CallID:       "c3",
		FunctionName: "rename_tasks",
		Arguments: `{"selection":{"applyToAll":true,"reason":"prefix with room"},
			"titleChanges":[{"taskId":"t1","currentTitle":"Paint","newTitle":"Kitchen: Paint"},
			                {"taskId":"t2","currentTitle":"Tile","newTitle":"Kitchen: Tile"}]}`,
	}))
	require.Len(t, out, 2)
	for _, a := range out {
		assert.Equal(t, actions.OpBulkEdit, a.Operation)
		require.NotNil(t, a.Selection)
		assert.True(t, a.Selection.ApplyToAll)
		assert.Equal(t, "prefix with room", a.Selection.Reason)
	}
	assert.Equal(t, "t2", out[1].Data["taskId"])
	assert.Equal(t, map[string]any{"title": "Kitchen: Tile"}, out[1].Updates)
}

func TestExpand_PassThrough(t *testing.T) {
	in := actions.Normalize(actions.RawToolCall{
		CallID:       "c4",
		FunctionName: "create_shopping_section",
		Arguments:    `{"name":"Garden"}`,
	})
	out := actions.Expand(in)
	require.Len(t, out, 1)
	assert.Equal(t, in, out[0])

	sel := actions.Normalize(actions.RawToolCall{
		CallID:       "c5",
		FunctionName: "bulk_edit_tasks",
		Arguments:    `{"selection":{"ids":["t1","t2"]},"updates":{"status":"done"}}`,
	})
	assert.Equal(t, []actions.Action{sel}, actions.Expand(sel))
}

func TestFromFeed_ClientIDsAndStatuses(t *testing.T) {
	calls := []actions.RawToolCall{
		{
			CallID:       "c1",
			FunctionName: "create_multiple_tasks",
			ResponseID:   "r1",
			Arguments:    `{"tasks":[{"title":"Paint wall"},{"title":"Order tiles"}]}`,
			Resolved:     map[string]actions.Status{"c1:1": actions.StatusRejected},
		},
		{CallID: "c2", FunctionName: "create_note", ResponseID: "r1", Arguments: `{"title":"n"}`, Status: actions.FeedConfirmed},
		{CallID: "c3", FunctionName: "create_note", ResponseID: "r0", Arguments: `{"title":"old"}`, Status: actions.FeedReplayed},
		{CallID: "c1", FunctionName: "create_multiple_tasks", ResponseID: "r1", Arguments: `{"tasks":[{"title":"dup"}]}`},
	}
	out := actions.FromFeed(calls)
	require.Len(t, out, 3)

	assert.Equal(t, "c1:0", out[0].ClientID)
	assert.Equal(t, actions.StatusPending, out[0].Status)
	assert.Equal(t, "c1:1", out[1].ClientID)
	assert.Equal(t, actions.StatusRejected, out[1].Status)
	assert.Equal(t, "c2:0", out[2].ClientID)
	assert.Equal(t, actions.StatusConfirmed, out[2].Status)
}

func TestFromFeed_AnonymousCallsAreStable(t *testing.T) {
	call := actions.RawToolCall{FunctionName: "create_task", ResponseID: "r1", Arguments: `{"title":"x"}`}
	a := actions.FromFeed([]actions.RawToolCall{call})
	b := actions.FromFeed([]actions.RawToolCall{call})
	require.Len(t, a, 1)
	assert.Equal(t, a[0].ClientID, b[0].ClientID)
	assert.Contains(t, a[0].ClientID, "anon:")

	other := call
	other.Arguments = `{"title":"y"}`
	c := actions.FromFeed([]actions.RawToolCall{other})
	assert.NotEqual(t, a[0].ClientID, c[0].ClientID)
}

func TestNewClientID(t *testing.T) {
	a, b := actions.NewClientID(), actions.NewClientID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "local:")
}
