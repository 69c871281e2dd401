package actions

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var entityLabels = map[EntityType]string{
	TypeTask:            "task",
	TypeNote:            "note",
	TypeShopping:        "shopping item",
	TypeShoppingSection: "shopping section",
	TypeSurvey:          "survey",
	TypeContact:         "contact",
	TypeHabit:           "habit",
}

// Label returns the lower-case display name of an entity type.
func Label(t EntityType) string {
	if l, ok := entityLabels[t]; ok {
		return l
	}
	return string(t)
}

// hiddenFields never appear in summaries.
var hiddenFields = map[string]bool{
	"_id": true, "id": true, "projectId": true, "createdAt": true, "updatedAt": true,
	"changeSummary": true, "titleChange": true, "taskDetails": true, "titleChanges": true,
}

// Change is one field of an edit preview.
type Change struct {
	Field string `json:"field"`
	Label string `json:"label"`
	From  any    `json:"from,omitempty"`
	To    any    `json:"to"`
}

// Summary is what a review screen shows for an action.
type Summary struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Changes     []Change `json:"changes,omitempty"`
}

// MergedPreview overlays the edit patch on the pre-image so a reviewer sees
// the entity as it would look after confirmation.
func MergedPreview(a Action) map[string]any {
	out := make(map[string]any, len(a.OriginalItem)+len(a.Updates))
	maps.Copy(out, a.OriginalItem)
	maps.Copy(out, a.Updates)
	return out
}

// Summarize derives a human-readable title and description for a.
func Summarize(a Action) Summary {
	label := Label(a.Type)
	if a.Unrecognized {
		fn := ""
		if a.FunctionCall != nil {
			fn = a.FunctionCall.FunctionName
		}
		return Summary{
			Title:       fmt.Sprintf("Unrecognized suggestion (%s)", fn),
			Description: "The assistant proposed a change of an unknown kind. It will be treated as a new task if confirmed.",
		}
	}

	switch a.Operation {
	case OpCreate:
		return Summary{
			Title:       withName("Create "+label, entityName(a.Data)),
			Description: describeFields(a.Data),
		}

	case OpBulkCreate:
		n := len(BulkItems(a))
		if n == 0 {
			return Summary{Title: fmt.Sprintf("Create %ss", label), Description: "No items were included in this suggestion."}
		}
		return Summary{Title: fmt.Sprintf("Create %d %s", n, plural(label, n))}

	case OpEdit:
		name := entityName(MergedPreview(a))
		if name == "" {
			name = entityName(a.Data)
		}
		changes := diff(a.OriginalItem, a.Updates)
		desc, _ := a.Data["changeSummary"].(string)
		return Summary{
			Title:       withName("Edit "+label, name),
			Description: joinLines(desc, describeChanges(changes)),
			Changes:     changes,
		}

	case OpDelete:
		name := entityName(a.Data)
		if name == "" {
			name = entityName(a.OriginalItem)
		}
		return Summary{Title: withName("Delete "+label, name)}

	case OpBulkEdit:
		return summarizeBulkEdit(a, label)

	case OpComplete:
		name := entityName(a.Data)
		title := "Complete " + label
		if done, ok := a.Data["completed"].(bool); ok && !done {
			title = "Mark " + label + " incomplete"
		}
		desc := ""
		if v, ok := a.Data["value"]; ok {
			desc = fmt.Sprintf("Value: %v", v)
		}
		return Summary{Title: withName(title, name), Description: desc}
	}
	return Summary{Title: fmt.Sprintf("%s %s", a.Operation, label)}
}

func summarizeBulkEdit(a Action, label string) Summary {
	changes := diff(nil, a.Updates)
	reason := ""
	if a.Selection != nil {
		reason = a.Selection.Reason
	}

	if tc, ok := a.Data["titleChange"].(map[string]any); ok {
		from := firstString(tc, "currentTitle", "oldTitle", "from")
		to := firstString(tc, "newTitle", "title", "to")
		return Summary{
			Title:       fmt.Sprintf("Rename %s: %s → %s", label, orEmpty(from), orEmpty(to)),
			Description: reason,
		}
	}

	var title string
	switch {
	case a.Selection != nil && a.Selection.ApplyToAll:
		title = fmt.Sprintf("Update all matching %ss", label)
	case a.Selection != nil && len(a.Selection.IDs) > 0:
		n := len(a.Selection.IDs)
		title = fmt.Sprintf("Update %d %s", n, plural(label, n))
	default:
		n := len(objects(a.Data["tasks"]))
		title = fmt.Sprintf("Update %d %s", n, plural(label, n))
	}
	return Summary{
		Title:       title,
		Description: joinLines(reason, describeChanges(changes)),
		Changes:     changes,
	}
}

func entityName(m map[string]any) string {
	name := firstString(m, "title", "name", "question", "content")
	if len([]rune(name)) > 60 {
		name = string([]rune(name)[:57]) + "..."
	}
	return name
}

func withName(title, name string) string {
	if name == "" {
		return title
	}
	return title + ": " + name
}

func diff(original, updates map[string]any) []Change {
	keys := slices.Sorted(maps.Keys(updates))
	out := make([]Change, 0, len(keys))
	for _, k := range keys {
		if hiddenFields[k] {
			continue
		}
		c := Change{Field: k, Label: FieldLabel(k), To: updates[k]}
		if original != nil {
			c.From = original[k]
		}
		out = append(out, c)
	}
	return out
}

func describeChanges(changes []Change) string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		if c.From == nil {
			lines = append(lines, fmt.Sprintf("%s: %s", c.Label, formatValue(c.To)))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s → %s", c.Label, formatValue(c.From), formatValue(c.To)))
	}
	return strings.Join(lines, "\n")
}

func describeFields(m map[string]any) string {
	keys := slices.Sorted(maps.Keys(m))
	var lines []string
	for _, k := range keys {
		if hiddenFields[k] || k == "title" || k == "name" || strings.HasSuffix(k, "Id") {
			continue
		}
		v := m[k]
		if v == nil || v == "" {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", FieldLabel(k), formatValue(v)))
	}
	return strings.Join(lines, "\n")
}

var titleCaser = cases.Title(language.English)

// FieldLabel turns a camelCase payload key into a title-cased label,
// e.g. "dueDate" → "Due Date".
func FieldLabel(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		if r == '_' {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return titleCaser.String(b.String())
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "(empty)"
	case string:
		if t == "" {
			return "(empty)"
		}
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func orEmpty(s string) string {
	if s == "" {
		return "(untitled)"
	}
	return s
}

func plural(label string, n int) string {
	if n == 1 {
		return label
	}
	return label + "s"
}

func joinLines(parts ...string) string {
	var keep []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			keep = append(keep, p)
		}
	}
	return strings.Join(keep, "\n")
}
