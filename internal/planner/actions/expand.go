package actions

import (
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// arrayFields lists, per type, the payload keys that may hold the elements
// of a bulk_create proposal. "items" is tried last for every type.
var arrayFields = map[EntityType][]string{
	TypeTask:            {"tasks"},
	TypeNote:            {"notes"},
	TypeShopping:        {"items", "shoppingItems"},
	TypeShoppingSection: {"sections"},
	TypeSurvey:          {"surveys"},
	TypeContact:         {"contacts"},
	TypeHabit:           {"habits"},
}

const fallbackArrayField = "items"

// inheritedKeys are copied from a bulk container onto each element that
// does not set them itself, e.g. one section name for a list of items.
var inheritedKeys = []string{"sectionName", "sectionId", "category", "assignedTo", "dueDate"}

// BulkItems returns the elements of a bulk_create payload for a.Type, or nil
// when no non-empty array of objects is present.
func BulkItems(a Action) []map[string]any {
	fields := append(append([]string{}, arrayFields[a.Type]...), fallbackArrayField)
	for _, f := range fields {
		raw, ok := a.Data[f].([]any)
		if !ok || len(raw) == 0 {
			continue
		}
		items := make([]map[string]any, 0, len(raw))
		for _, e := range raw {
			if m, ok := e.(map[string]any); ok {
				items = append(items, m)
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// Expand splits a bulk proposal into individually confirmable actions.
// Children keep the parent's FunctionCall, ResponseID and Status so that
// they are acknowledged against the same upstream call. Output order follows
// the input array. Anything that is not expandable is returned as-is.
func Expand(a Action) []Action {
	switch {
	case a.Operation == OpBulkCreate:
		return expandBulkCreate(a)
	case a.Operation == OpBulkEdit && a.Type == TypeTask:
		if details := objects(a.Data["taskDetails"]); len(details) > 0 {
			return expandTaskDetails(a, details)
		}
		if changes := objects(a.Data["titleChanges"]); len(changes) > 0 {
			return expandTitleChanges(a, changes)
		}
	}
	return []Action{a}
}

func expandBulkCreate(a Action) []Action {
	items := BulkItems(a)
	if len(items) == 0 {
		return []Action{a}
	}
	out := make([]Action, 0, len(items))
	for _, item := range items {
		data := maps.Clone(item)
		for _, k := range inheritedKeys {
			if _, set := data[k]; !set {
				if v, ok := a.Data[k]; ok {
					data[k] = v
				}
			}
		}
		c := child(a)
		c.Operation = OpCreate
		c.Data = data
		out = append(out, c)
	}
	return out
}

// expandTaskDetails handles {taskId, original, updates, changeSummary}
// triples, one edit per task.
func expandTaskDetails(a Action, details []map[string]any) []Action {
	out := make([]Action, 0, len(details))
	for _, d := range details {
		original := firstMap(d["original"], d["originalItem"])
		taskID := firstString(d, "taskId", "id", "_id")
		if taskID == "" && original != nil {
			taskID = firstString(original, "_id", "id", "taskId")
		}
		data := map[string]any{"taskId": taskID}
		if s, ok := d["changeSummary"].(string); ok && s != "" {
			data["changeSummary"] = s
		}
		c := child(a)
		c.Operation = OpEdit
		c.Data = data
		c.Updates = firstMap(d["updates"])
		c.OriginalItem = original
		out = append(out, c)
	}
	return out
}

// expandTitleChanges handles rename-only bulk edits. Each change stays a
// bulk_edit that carries the parent's selection criteria.
func expandTitleChanges(a Action, changes []map[string]any) []Action {
	out := make([]Action, 0, len(changes))
	for _, ch := range changes {
		c := child(a)
		c.Operation = OpBulkEdit
		c.Data = map[string]any{
			"taskId":      firstString(ch, "taskId", "id", "_id"),
			"titleChange": maps.Clone(ch),
		}
		if title := firstString(ch, "newTitle", "title", "to"); title != "" {
			c.Updates = map[string]any{"title": title}
		}
		out = append(out, c)
	}
	return out
}

// child copies the envelope of a parent action (identity, source call,
// status) without its payload.
func child(parent Action) Action {
	c := parent.Clone()
	c.Data, c.Updates, c.OriginalItem = nil, nil, nil
	return c
}

// ClientID builds the stable identity of the index-th action derived from
// a source call.
func ClientID(callID string, index int) string {
	return fmt.Sprintf("%s:%d", callID, index)
}

// NewClientID returns an identity for an action synthesized locally, with
// no source call behind it.
func NewClientID() string {
	return "local:" + uuid.NewString()
}

// FromFeed normalizes and expands a feed snapshot with the built-in tool
// table.
func FromFeed(calls []RawToolCall) []Action {
	return defaultNormalizer.FromFeed(calls)
}

// FromFeed normalizes and expands every call of a feed snapshot, assigns
// ClientIDs and applies upstream resolutions. Replayed calls are skipped and
// duplicate ClientIDs keep their first occurrence.
func (n *Normalizer) FromFeed(calls []RawToolCall) []Action {
	var out []Action
	seen := make(map[string]bool)
	for _, call := range calls {
		if call.Status == FeedReplayed {
			continue
		}
		for i, a := range Expand(n.Normalize(call)) {
			a.ClientID = ClientID(feedKey(call), i)
			if seen[a.ClientID] {
				continue
			}
			seen[a.ClientID] = true
			if st, ok := call.Resolved[a.ClientID]; ok && st.Terminal() {
				a.Status = st
			}
			out = append(out, a)
		}
	}
	return out
}

// feedKey is the call id, or for calls recorded without one a name-based
// UUID of their content so the identity survives refreshes.
func feedKey(call RawToolCall) string {
	if call.CallID != "" {
		return call.CallID
	}
	name := call.ResponseID + "\x00" + call.FunctionName + "\x00" + call.Arguments
	return "anon:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func objects(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
