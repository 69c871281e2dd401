package actions

import (
	"strings"
)

// ToolKind is the {type, operation} pair a tool name maps to. Either field
// may be empty when the name only determines one of them.
type ToolKind struct {
	Type      EntityType `yaml:"type" json:"type"`
	Operation Operation  `yaml:"operation" json:"operation"`
}

// legacyTools maps tool names used by earlier versions of the assistant.
// Names are matched after lower-casing.
var legacyTools = map[string]ToolKind{
	"create_task":           {TypeTask, OpCreate},
	"edit_task":             {TypeTask, OpEdit},
	"update_task":           {TypeTask, OpEdit},
	"delete_task":           {TypeTask, OpDelete},
	"create_multiple_tasks": {TypeTask, OpBulkCreate},
	"bulk_edit_tasks":       {TypeTask, OpBulkEdit},
	"edit_multiple_tasks":   {TypeTask, OpBulkEdit},
	"rename_tasks":          {TypeTask, OpBulkEdit},

	"create_note":           {TypeNote, OpCreate},
	"edit_note":             {TypeNote, OpEdit},
	"delete_note":           {TypeNote, OpDelete},
	"create_multiple_notes": {TypeNote, OpBulkCreate},

	"create_shopping_item":           {TypeShopping, OpCreate},
	"add_shopping_item":              {TypeShopping, OpCreate},
	"edit_shopping_item":             {TypeShopping, OpEdit},
	"delete_shopping_item":           {TypeShopping, OpDelete},
	"create_multiple_shopping_items": {TypeShopping, OpBulkCreate},
	"create_shopping_list":           {TypeShopping, OpBulkCreate},

	"create_shopping_section": {TypeShoppingSection, OpCreate},
	"edit_shopping_section":   {TypeShoppingSection, OpEdit},
	"delete_shopping_section": {TypeShoppingSection, OpDelete},

	"create_survey":           {TypeSurvey, OpCreate},
	"edit_survey":             {TypeSurvey, OpEdit},
	"delete_survey":           {TypeSurvey, OpDelete},
	"create_multiple_surveys": {TypeSurvey, OpBulkCreate},

	"create_contact":           {TypeContact, OpCreate},
	"edit_contact":             {TypeContact, OpEdit},
	"delete_contact":           {TypeContact, OpDelete},
	"create_multiple_contacts": {TypeContact, OpBulkCreate},

	"create_habit":            {TypeHabit, OpCreate},
	"edit_habit":              {TypeHabit, OpEdit},
	"delete_habit":            {TypeHabit, OpDelete},
	"complete_habit":          {TypeHabit, OpComplete},
	"toggle_habit_completion": {TypeHabit, OpComplete},
	"create_multiple_habits":  {TypeHabit, OpBulkCreate},
}

// entityAliases maps the entity part of a tool name, or a payload "type"
// value, onto a canonical type. Keys are lower-case with separators removed.
var entityAliases = map[string]EntityType{
	"task":             TypeTask,
	"tasks":            TypeTask,
	"note":             TypeNote,
	"notes":            TypeNote,
	"shopping":         TypeShopping,
	"shoppingitem":     TypeShopping,
	"shoppingitems":    TypeShopping,
	"shoppinglistitem": TypeShopping,
	"shoppingsection":  TypeShoppingSection,
	"shoppingsections": TypeShoppingSection,
	"section":          TypeShoppingSection,
	"survey":           TypeSurvey,
	"surveys":          TypeSurvey,
	"contact":          TypeContact,
	"contacts":         TypeContact,
	"habit":            TypeHabit,
	"habits":           TypeHabit,
}

// multiPrefixes are checked before single verbs so "create_multiple_x" is
// not read as "create" of entity "multiple_x".
var multiPrefixes = []struct {
	prefix string
	op     Operation
}{
	{"create_multiple_", OpBulkCreate},
	{"bulk_create_", OpBulkCreate},
	{"add_multiple_", OpBulkCreate},
	{"edit_multiple_", OpBulkEdit},
	{"update_multiple_", OpBulkEdit},
	{"bulk_edit_", OpBulkEdit},
	{"bulk_update_", OpBulkEdit},
}

var verbs = map[string]Operation{
	"create":   OpCreate,
	"add":      OpCreate,
	"edit":     OpEdit,
	"update":   OpEdit,
	"delete":   OpDelete,
	"remove":   OpDelete,
	"complete": OpComplete,
	"toggle":   OpComplete,
}

// ParseEntity resolves a free-form entity name ("shopping_item",
// "ShoppingSection", "habits") to a canonical type.
func ParseEntity(name string) (EntityType, bool) {
	key := strings.ToLower(name)
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	t, ok := entityAliases[key]
	return t, ok
}

// parseToolPattern reads "<verb>_<entity>" and the bulk prefixes. The
// returned kind may carry an operation with an empty type when the entity
// part is unknown.
func parseToolPattern(name string) (ToolKind, bool) {
	for _, mp := range multiPrefixes {
		if rest, ok := strings.CutPrefix(name, mp.prefix); ok {
			t, _ := ParseEntity(rest)
			return ToolKind{Type: t, Operation: mp.op}, true
		}
	}
	verb, rest, found := strings.Cut(name, "_")
	if !found {
		return ToolKind{}, false
	}
	op, ok := verbs[verb]
	if !ok {
		return ToolKind{}, false
	}
	t, _ := ParseEntity(rest)
	return ToolKind{Type: t, Operation: op}, true
}
