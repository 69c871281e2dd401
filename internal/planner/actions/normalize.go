package actions

import (
	"encoding/json"
	"log/slog"
	"maps"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/La100/vibeplanner-sub001/common/redact"
)

// reservedKeys are payload keys that describe the action rather than the
// entity, and are therefore never copied into Action.Data.
var reservedKeys = []string{"type", "operation", "data", "updates", "originalItem", "original", "selection"}

// Normalizer maps raw tool calls onto canonical actions. The zero value is
// not usable; construct with NewNormalizer.
type Normalizer struct {
	tools  map[string]ToolKind
	logger *slog.Logger
}

// NewNormalizer returns a Normalizer using the built-in legacy tool table
// extended (and overridden) by aliases. Alias keys are matched
// case-insensitively.
func NewNormalizer(aliases map[string]ToolKind) *Normalizer {
	tools := maps.Clone(legacyTools)
	for name, kind := range aliases {
		tools[strings.ToLower(strings.TrimSpace(name))] = kind
	}
	return &Normalizer{tools: tools, logger: slog.Default()}
}

// WithLogger returns a copy of n that reports data-quality problems to l.
func (n *Normalizer) WithLogger(l *slog.Logger) *Normalizer {
	cp := *n
	cp.logger = l
	return &cp
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize maps call with the built-in tool table.
func Normalize(call RawToolCall) Action {
	return defaultNormalizer.Normalize(call)
}

// Lookup resolves a tool name through the table, then the naming patterns.
func (n *Normalizer) Lookup(functionName string) (ToolKind, bool) {
	name := strings.ToLower(strings.TrimSpace(functionName))
	if kind, ok := n.tools[name]; ok {
		return kind, true
	}
	return parseToolPattern(name)
}

// Normalize converts one raw call into a canonical action. It never fails:
// unparseable arguments become an empty payload and unknown entity types
// fall back to {task, create} with Unrecognized set. Both cases are logged.
func (n *Normalizer) Normalize(call RawToolCall) Action {
	args, ok := parseArguments(call.Arguments)
	if !ok {
		n.logger.Warn("actions: tool call arguments are not a JSON object",
			"call_id", call.CallID, "function", call.FunctionName,
			"args", redact.JSON(call.Arguments))
	}

	kind, _ := n.Lookup(call.FunctionName)

	a := Action{
		ResponseID: call.ResponseID,
		Status:     statusFromFeed(call.Status),
	}
	if call.CallID != "" {
		a.FunctionCall = &FunctionCall{
			CallID:       call.CallID,
			FunctionName: call.FunctionName,
			Arguments:    call.Arguments,
		}
	}

	switch t, explicit := ParseEntity(gjson.Get(call.Arguments, "type").String()); {
	case explicit && ok:
		a.Type = t
	case kind.Type != "":
		a.Type = kind.Type
	default:
		a.Type = TypeTask
		a.Unrecognized = true
		n.logger.Warn("actions: unrecognized tool call, defaulting to task/create",
			"call_id", call.CallID, "function", call.FunctionName,
			"args", redact.JSON(call.Arguments))
	}

	switch op, explicit := parseOperation(gjson.Get(call.Arguments, "operation").String()); {
	case a.Unrecognized:
		a.Operation = OpCreate
	case explicit && ok:
		a.Operation = op
	case kind.Operation != "":
		a.Operation = kind.Operation
	default:
		a.Operation = OpCreate
	}

	a.Data, a.Updates, a.OriginalItem, a.Selection = splitPayload(args)
	return a
}

// parseArguments decodes the argument JSON into a map. ok is false when the
// text is not a JSON object; an empty map is returned in that case.
func parseArguments(raw string) (map[string]any, bool) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, true
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return map[string]any{}, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}, false
	}
	return m, true
}

// parseOperation accepts canonical operation names and the verb synonyms
// used in tool names ("update", "remove", "bulk_update").
func parseOperation(s string) (Operation, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if op := Operation(s); op.Valid() {
		return op, true
	}
	if op, ok := verbs[s]; ok {
		return op, true
	}
	switch s {
	case "bulk_update", "bulkedit", "bulk-edit":
		return OpBulkEdit, true
	case "bulkcreate", "bulk-create":
		return OpBulkCreate, true
	}
	return "", false
}

func statusFromFeed(s FeedStatus) Status {
	switch s {
	case FeedConfirmed:
		return StatusConfirmed
	case FeedRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

// splitPayload separates entity fields from the action envelope. Top-level
// fields and a nested "data" object are merged (nested wins); updates,
// originalItem and selection may appear at either level.
func splitPayload(args map[string]any) (data, updates, original map[string]any, sel *Selection) {
	data = make(map[string]any, len(args))
	for k, v := range args {
		if !lo.Contains(reservedKeys, k) {
			data[k] = v
		}
	}
	nested, _ := args["data"].(map[string]any)
	for k, v := range nested {
		data[k] = v
	}

	updates = firstMap(args["updates"], data["updates"])
	original = firstMap(args["originalItem"], data["originalItem"], args["original"])
	sel = parseSelection(firstMap(args["selection"], data["selection"]))
	delete(data, "updates")
	delete(data, "originalItem")
	delete(data, "selection")
	return data, updates, original, sel
}

func firstMap(candidates ...any) map[string]any {
	for _, c := range candidates {
		if m, ok := c.(map[string]any); ok {
			return m
		}
	}
	return nil
}

func parseSelection(m map[string]any) *Selection {
	if m == nil {
		return nil
	}
	sel := &Selection{}
	for _, key := range []string{"ids", "taskIds", "itemIds"} {
		if ids := StringSlice(m[key]); len(ids) > 0 {
			sel.IDs = ids
			break
		}
	}
	sel.ApplyToAll, _ = m["applyToAll"].(bool)
	sel.Reason, _ = m["reason"].(string)
	return sel
}

// StringSlice converts a decoded JSON array into its non-empty string
// elements. Anything else yields nil.
func StringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return lo.Compact(t)
	case []any:
		return lo.FilterMap(t, func(e any, _ int) (string, bool) {
			s, ok := e.(string)
			return s, ok && s != ""
		})
	default:
		return nil
	}
}
