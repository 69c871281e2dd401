// Package dispatch executes confirmed actions against the planner backend.
//
// A Dispatcher receives one canonical action at a time, resolves what the
// action depends on (the target id, a shopping section referenced by name),
// strips fields the backend must not receive and invokes the matching
// backend operation. Every branch returns the same Result shape.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

// Backend is the entity mutation surface of the planner.
type Backend interface {
	Create(ctx context.Context, kind actions.EntityType, projectID string, fields map[string]any) (string, error)
	Update(ctx context.Context, kind actions.EntityType, id string, patch map[string]any) error
	Delete(ctx context.Context, kind actions.EntityType, id string) error
	// BulkEditTasks applies updates to every task the selection names and
	// returns how many were changed.
	BulkEditTasks(ctx context.Context, projectID string, sel actions.Selection, updates map[string]any) (int, error)
	// ToggleHabitCompletion sets or flips the completion record of a habit
	// for one day and returns the resulting state.
	ToggleHabitCompletion(ctx context.Context, c HabitCompletion) (bool, error)
}

// HabitCompletion identifies a dated completion record. A nil Completed
// flips the current state.
type HabitCompletion struct {
	HabitID   string
	Date      string
	Completed *bool
	Value     *float64
}

// Scope is the project and conversation thread an action belongs to.
type Scope struct {
	ProjectID string
	ThreadID  string
}

// maxReportedErrors caps the element errors quoted in a batch result.
const maxReportedErrors = 3

// DateLayout is the day format of habit completion records.
const DateLayout = "2006-01-02"

// Dispatcher routes actions to the backend.
type Dispatcher struct {
	backend  Backend
	sections *SectionResolver
	schemas  schemaSet
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used for default completion dates.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New returns a Dispatcher that mutates entities through backend and
// resolves shopping sections through sections.
func New(backend Backend, sections SectionStore, opts ...Option) (*Dispatcher, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	d := &Dispatcher{
		backend:  backend,
		sections: NewSectionResolver(sections),
		schemas:  schemas,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch executes a. A returned error means nothing was applied (or, for
// batches, no element was); the action should stay pending. A Result with
// Success=false and a nil error is a partial batch outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, scope Scope, a actions.Action) (Result, error) {
	logger := d.logger.With("client_id", a.ClientID, "type", a.Type, "operation", a.Operation)

	var (
		res Result
		err error
	)
	switch a.Operation {
	case actions.OpDelete:
		res, err = d.delete(ctx, a)
	case actions.OpEdit:
		res, err = d.edit(ctx, scope, a)
	case actions.OpCreate:
		res, err = d.create(ctx, scope, a)
	case actions.OpBulkCreate:
		res, err = d.bulkCreate(ctx, scope, a)
	case actions.OpBulkEdit:
		res, err = d.bulkEdit(ctx, scope, a)
	case actions.OpComplete:
		res, err = d.complete(ctx, a)
	default:
		err = invalid(a, "operation", "unsupported operation")
	}
	if err != nil {
		logger.Warn("dispatch failed", "err", err)
		if res.Message == "" {
			res = Result{Message: err.Error(), EntityType: a.Type}
		}
		return res, err
	}
	logger.Debug("dispatched", "entity_id", res.EntityID, "success", res.Success)
	return res, nil
}

// ── delete ───────────────────────────────────────────────────────────────────

func (d *Dispatcher) delete(ctx context.Context, a actions.Action) (Result, error) {
	id := entityID(a)
	if id == "" {
		return Result{}, invalid(a, IDKey(a.Type), "missing id")
	}
	if err := d.backend.Delete(ctx, a.Type, id); err != nil {
		return Result{}, fmt.Errorf("delete %s %s: %w", a.Type, id, err)
	}
	return Result{
		Success:    true,
		Message:    "Deleted " + actions.Label(a.Type),
		EntityType: a.Type,
		EntityID:   id,
	}, nil
}

// ── edit ─────────────────────────────────────────────────────────────────────

func (d *Dispatcher) edit(ctx context.Context, scope Scope, a actions.Action) (Result, error) {
	id := entityID(a)
	if id == "" {
		return Result{}, invalid(a, IDKey(a.Type), "missing id")
	}

	// Only the patch is sent. Legacy edits put the changed fields next to
	// the id instead of under "updates".
	patch := maps.Clone(a.Updates)
	if len(patch) == 0 {
		patch = maps.Clone(a.Data)
	}
	if patch == nil {
		patch = map[string]any{}
	}
	if a.Type == actions.TypeShopping {
		if err := d.resolveSection(ctx, scope, a, patch); err != nil {
			return Result{}, err
		}
	}
	patch = Sanitize(a.Type, patch)
	if len(patch) == 0 {
		return Result{}, invalid(a, "updates", "no changes to apply")
	}

	if err := d.backend.Update(ctx, a.Type, id, patch); err != nil {
		return Result{}, fmt.Errorf("update %s %s: %w", a.Type, id, err)
	}
	return Result{
		Success:    true,
		Message:    "Updated " + actions.Label(a.Type),
		EntityType: a.Type,
		EntityID:   id,
	}, nil
}

// ── create ───────────────────────────────────────────────────────────────────

func (d *Dispatcher) create(ctx context.Context, scope Scope, a actions.Action) (Result, error) {
	fields := maps.Clone(a.Data)
	if fields == nil {
		fields = map[string]any{}
	}

	if a.Type == actions.TypeShoppingSection {
		name, _ := fields["name"].(string)
		if strings.TrimSpace(name) == "" {
			return Result{}, invalid(a, "name", "missing section name")
		}
		id, created, err := d.sections.Resolve(ctx, scope.ProjectID, name)
		if err != nil {
			return Result{}, err
		}
		msg := "Created shopping section " + name
		if !created {
			msg = "Shopping section " + name + " already exists"
		}
		return Result{Success: true, Message: msg, EntityType: a.Type, EntityID: id}, nil
	}

	if a.Type == actions.TypeShopping {
		if err := d.resolveSection(ctx, scope, a, fields); err != nil {
			return Result{}, err
		}
	}
	fields = Sanitize(a.Type, fields)
	if err := d.schemas.validate(a, fields); err != nil {
		return Result{}, err
	}

	id, err := d.backend.Create(ctx, a.Type, scope.ProjectID, fields)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", a.Type, err)
	}
	return Result{
		Success:    true,
		Message:    "Created " + actions.Label(a.Type),
		EntityType: a.Type,
		EntityID:   id,
	}, nil
}

// resolveSection replaces a sectionName (or category) hint in fields with
// the id of a matching section, creating the section when needed. An
// explicit sectionId wins over the hint.
func (d *Dispatcher) resolveSection(ctx context.Context, scope Scope, a actions.Action, fields map[string]any) error {
	hint, _ := fields["sectionName"].(string)
	if strings.TrimSpace(hint) == "" {
		hint, _ = fields["category"].(string)
	}
	delete(fields, "sectionName")
	if id, _ := fields["sectionId"].(string); id != "" || strings.TrimSpace(hint) == "" {
		return nil
	}

	id, created, err := d.sections.Resolve(ctx, scope.ProjectID, hint)
	if err != nil {
		return fmt.Errorf("resolve section for %s: %w", a.ClientID, err)
	}
	if created {
		d.logger.Info("created shopping section", "project_id", scope.ProjectID, "section", hint, "section_id", id)
	}
	fields["sectionId"] = id
	return nil
}

// ── bulk ─────────────────────────────────────────────────────────────────────

// batch tallies a sequential batch. Elements never abort the loop.
type batch struct {
	done, total int
	errs        []string
}

func (b *batch) fail(label string, err error) {
	if len(b.errs) < maxReportedErrors {
		b.errs = append(b.errs, fmt.Sprintf("%s: %v", label, err))
	}
}

func (b *batch) result(verb string, t actions.EntityType) (Result, error) {
	noun := actions.Label(t) + "s"
	msg := fmt.Sprintf("%s %d/%d %s", verb, b.done, b.total, noun)
	if len(b.errs) > 0 {
		msg += ". Errors: " + strings.Join(b.errs, "; ")
	}
	res := Result{
		Success:    b.done == b.total,
		Message:    msg,
		EntityType: t,
		Errors:     b.errs,
	}
	if b.total > 0 && b.done == 0 {
		return res, fmt.Errorf("%s", msg)
	}
	return res, nil
}

func (d *Dispatcher) bulkCreate(ctx context.Context, scope Scope, a actions.Action) (Result, error) {
	if len(actions.BulkItems(a)) == 0 {
		return Result{}, invalid(a, "items", "no items to create")
	}
	children := actions.Expand(a)
	b := batch{total: len(children)}
	for i, child := range children {
		if _, err := d.create(ctx, scope, child); err != nil {
			b.fail(fmt.Sprintf("item %d", i+1), err)
			continue
		}
		b.done++
	}
	return b.result("Created", a.Type)
}

func (d *Dispatcher) bulkEdit(ctx context.Context, scope Scope, a actions.Action) (Result, error) {
	if a.Type != actions.TypeTask {
		return Result{}, invalid(a, "type", "bulk edit is only supported for tasks")
	}

	// A titleChanges child renames exactly one task.
	if _, ok := a.Data["titleChange"]; ok {
		single := a.Clone()
		single.Operation = actions.OpEdit
		single.Selection = nil
		if entityID(single) == "" {
			return Result{}, invalid(a, "taskId", "rename without a task id")
		}
		return d.edit(ctx, scope, single)
	}

	if !a.Selection.Empty() && len(a.Updates) > 0 {
		updates := Sanitize(a.Type, a.Updates)
		if len(updates) == 0 {
			return Result{}, invalid(a, "updates", "no changes to apply")
		}
		n, err := d.backend.BulkEditTasks(ctx, scope.ProjectID, *a.Selection, updates)
		if err != nil {
			return Result{}, fmt.Errorf("bulk edit tasks: %w", err)
		}
		return Result{
			Success:    true,
			Message:    fmt.Sprintf("Updated %d %s", n, plural("task", n)),
			EntityType: a.Type,
		}, nil
	}

	rows := objects(a.Data["tasks"])
	if len(rows) == 0 {
		return Result{}, invalid(a, "selection", "bulk edit needs a selection with updates or a tasks array")
	}
	b := batch{total: len(rows)}
	for i, row := range rows {
		single := actions.Action{
			ClientID:  a.ClientID,
			Type:      actions.TypeTask,
			Operation: actions.OpEdit,
			Data:      row,
			Updates:   firstMap(row["updates"]),
		}
		label := firstString(row, "taskId", "id", "_id")
		if label == "" {
			label = fmt.Sprintf("task %d", i+1)
		}
		if _, err := d.edit(ctx, scope, single); err != nil {
			b.fail(label, err)
			continue
		}
		b.done++
	}
	return b.result("Updated", a.Type)
}

// ── complete ─────────────────────────────────────────────────────────────────

func (d *Dispatcher) complete(ctx context.Context, a actions.Action) (Result, error) {
	if a.Type != actions.TypeHabit {
		return Result{}, invalid(a, "type", "only habits can be completed")
	}
	id := entityID(a)
	if id == "" {
		return Result{}, invalid(a, "habitId", "missing id")
	}

	c := HabitCompletion{HabitID: id, Date: d.now().Format(DateLayout)}
	if date, _ := a.Data["date"].(string); date != "" {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return Result{}, invalid(a, "date", "expected YYYY-MM-DD, got %q", date)
		}
		c.Date = date
	}
	if v, ok := a.Data["completed"].(bool); ok {
		c.Completed = &v
	}
	if v, ok := a.Data["value"].(float64); ok {
		c.Value = &v
	}

	done, err := d.backend.ToggleHabitCompletion(ctx, c)
	if err != nil {
		return Result{}, fmt.Errorf("toggle habit %s: %w", id, err)
	}
	msg := "Marked habit complete for " + c.Date
	if !done {
		msg = "Marked habit incomplete for " + c.Date
	}
	return Result{Success: true, Message: msg, EntityType: a.Type, EntityID: id}, nil
}

func plural(noun string, n int) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func objects(v any) []map[string]any {
	raw, _ := v.([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
