package dispatch

import (
	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

// systemFields are managed by the backend and never written by a proposal.
var systemFields = []string{
	"_id", "id", "_creationTime", "createdAt", "updatedAt", "projectId", "teamId",
	"type", "operation", "changeSummary", "titleChange",
}

// displayFields are denormalized values the review screen shows next to an
// entity. The backend derives them itself.
var displayFields = map[actions.EntityType][]string{
	actions.TypeTask:     {"assignedToName", "assignedToImageUrl", "assignedToEmail", "projectName", "creatorName"},
	actions.TypeNote:     {"creatorName", "projectName"},
	actions.TypeShopping: {"sectionName", "assignedToName", "assignedToImageUrl", "creatorName", "totalPrice"},
	actions.TypeSurvey:   {"creatorName", "responseCount"},
	actions.TypeContact:  {"creatorName"},
	actions.TypeHabit:    {"creatorName", "streak", "completedToday"},
}

// idAliases are the keys tried, after the per-type key, when resolving the
// target id of an action.
var idAliases = map[actions.EntityType][]string{
	actions.TypeShopping: {"shoppingItemId"},
}

// Sanitize returns a copy of fields without system, display, id and nil
// entries. The input map is not modified.
func Sanitize(t actions.EntityType, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		out[k] = v
	}
	for _, k := range systemFields {
		delete(out, k)
	}
	for _, k := range displayFields[t] {
		delete(out, k)
	}
	delete(out, IDKey(t))
	delete(out, "itemId")
	for _, k := range idAliases[t] {
		delete(out, k)
	}
	return out
}

// entityID resolves the target id of a: the per-type key, its aliases, the
// generic itemId and id keys, then the pre-image.
func entityID(a actions.Action) string {
	keys := append([]string{IDKey(a.Type)}, idAliases[a.Type]...)
	keys = append(keys, "itemId", "id", "_id")
	for _, src := range []map[string]any{a.Data, a.Updates} {
		if id := firstString(src, keys...); id != "" {
			return id
		}
	}
	return firstString(a.OriginalItem, "_id", "id", IDKey(a.Type))
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
