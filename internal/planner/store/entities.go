package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
	"github.com/La100/vibeplanner-sub001/internal/planner/dispatch"
)

// Entity is a stored planner entity.
type Entity struct {
	ID        string
	ProjectID string
	Kind      actions.EntityType
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Create inserts a new entity and returns its id.
func (s *Store) Create(ctx context.Context, kind actions.EntityType, projectID string, fields map[string]any) (string, error) {
	raw, err := json.Marshal(orEmpty(fields))
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s fields: %w", kind, err)
	}
	id := uuid.NewString()
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, project_id, kind, fields_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, projectID, string(kind), string(raw), now, now)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", kind, err)
	}
	return id, nil
}

// Update merges patch into the fields of an entity. A nil value removes
// the field. Shopping sections only have a name to change.
func (s *Store) Update(ctx context.Context, kind actions.EntityType, id string, patch map[string]any) error {
	if kind == actions.TypeShoppingSection {
		name, _ := patch["name"].(string)
		return s.RenameSection(ctx, id, name)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.patch(ctx, tx, kind, id, patch); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s update: %w", kind, err)
	}
	return nil
}

func (s *Store) patch(ctx context.Context, tx *sql.Tx, kind actions.EntityType, id string, patch map[string]any) error {
	var raw string
	err := tx.QueryRowContext(ctx, `
		SELECT fields_json FROM entities WHERE id = ? AND kind = ?
	`, id, string(kind)).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", kind, err)
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
	for k, v := range patch {
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal %s fields: %w", kind, err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET fields_json = ?, updated_at = ? WHERE id = ?
	`, string(out), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	return nil
}

// Delete removes an entity.
func (s *Store) Delete(ctx context.Context, kind actions.EntityType, id string) error {
	if kind == actions.TypeShoppingSection {
		return s.DeleteSection(ctx, id)
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM entities WHERE id = ? AND kind = ?
	`, id, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// BulkEditTasks applies updates to the selected tasks of projectID in one
// transaction. Ids that are not tasks of the project are skipped.
func (s *Store) BulkEditTasks(ctx context.Context, projectID string, sel actions.Selection, updates map[string]any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := sel.IDs
	if sel.ApplyToAll {
		ids, err = taskIDs(ctx, tx, projectID)
		if err != nil {
			return 0, err
		}
	}

	n := 0
	for _, id := range ids {
		var owner string
		err := tx.QueryRowContext(ctx, `
			SELECT project_id FROM entities WHERE id = ? AND kind = ?
		`, id, string(actions.TypeTask)).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && projectID != "" && owner != projectID) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get task %s: %w", id, err)
		}
		if err := s.patch(ctx, tx, actions.TypeTask, id, updates); err != nil {
			return 0, err
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk edit: %w", err)
	}
	return n, nil
}

func taskIDs(ctx context.Context, tx *sql.Tx, projectID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM entities WHERE project_id = ? AND kind = ? ORDER BY created_at ASC
	`, projectID, string(actions.TypeTask))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return ids, nil
}

// ToggleHabitCompletion sets, clears or flips the completion record of a
// habit for one day and returns whether the habit is now completed.
func (s *Store) ToggleHabitCompletion(ctx context.Context, c dispatch.HabitCompletion) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM entities WHERE id = ? AND kind = ?
	`, c.HabitID, string(actions.TypeHabit)).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("habit %s: %w", c.HabitID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to get habit: %w", err)
	}

	var done int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM habit_completions WHERE habit_id = ? AND day = ?
	`, c.HabitID, c.Date).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("failed to get habit completion: %w", err)
	}

	want := done == 0
	if c.Completed != nil {
		want = *c.Completed
	}

	if want {
		var value sql.NullFloat64
		if c.Value != nil {
			value = sql.NullFloat64{Float64: *c.Value, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO habit_completions (habit_id, day, value, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (habit_id, day) DO UPDATE SET value = COALESCE(excluded.value, habit_completions.value)
		`, c.HabitID, c.Date, value, s.now())
	} else {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM habit_completions WHERE habit_id = ? AND day = ?
		`, c.HabitID, c.Date)
	}
	if err != nil {
		return false, fmt.Errorf("failed to record habit completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit habit completion: %w", err)
	}
	return want, nil
}

// HabitCompletions returns the completed days of a habit, oldest first.
func (s *Store) HabitCompletions(ctx context.Context, habitID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day FROM habit_completions WHERE habit_id = ? ORDER BY day ASC
	`, habitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habit completions: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan habit completion: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habit completions: %w", err)
	}
	return days, nil
}

// GetEntity retrieves an entity by id.
func (s *Store) GetEntity(ctx context.Context, id string) (*Entity, error) {
	e := &Entity{}
	var kind, raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, kind, fields_json, created_at, updated_at
		FROM entities
		WHERE id = ?
	`, id).Scan(&e.ID, &e.ProjectID, &kind, &raw, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	e.Kind = actions.EntityType(kind)
	if e.Fields, err = decodeFields(raw); err != nil {
		return nil, fmt.Errorf("entity %s: %w", id, err)
	}
	return e, nil
}

// ListEntities returns the entities of one kind in a project, oldest first.
func (s *Store) ListEntities(ctx context.Context, projectID string, kind actions.EntityType) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, kind, fields_json, created_at, updated_at
		FROM entities
		WHERE project_id = ? AND kind = ?
		ORDER BY created_at ASC, id ASC
	`, projectID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entities: %w", kind, err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e := &Entity{}
		var k, raw string
		if err := rows.Scan(&e.ID, &e.ProjectID, &k, &raw, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.Kind = actions.EntityType(k)
		if e.Fields, err = decodeFields(raw); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return out, nil
}

// ListSections returns the shopping sections of a project by name.
func (s *Store) ListSections(ctx context.Context, projectID string) ([]dispatch.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM shopping_sections WHERE project_id = ? ORDER BY name ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Section
	for rows.Next() {
		var sec dispatch.Section
		if err := rows.Scan(&sec.ID, &sec.Name); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sections: %w", err)
	}
	return out, nil
}

// CreateSection creates a shopping section and returns its id. A section
// whose name only differs in case or surrounding space already existing in
// the project is returned instead, so concurrent writers converge on one.
func (s *Store) CreateSection(ctx context.Context, projectID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("section name must not be empty")
	}
	key := cases.Fold().String(name)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shopping_sections (id, project_id, name, name_key, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, name_key) DO NOTHING
	`, uuid.NewString(), projectID, name, key, s.now())
	if err != nil {
		return "", fmt.Errorf("failed to create section: %w", err)
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM shopping_sections WHERE project_id = ? AND name_key = ?
	`, projectID, key).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to get section: %w", err)
	}
	return id, nil
}

// RenameSection renames a shopping section. Renaming onto a name another
// section of the project already folds to fails with ErrConflict.
func (s *Store) RenameSection(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("section name must not be empty")
	}
	key := cases.Fold().String(name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var projectID string
	err = tx.QueryRowContext(ctx, `
		SELECT project_id FROM shopping_sections WHERE id = ?
	`, id).Scan(&projectID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s %s: %w", actions.TypeShoppingSection, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get section: %w", err)
	}

	var other string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM shopping_sections WHERE project_id = ? AND name_key = ? AND id <> ?
	`, projectID, key, id).Scan(&other)
	switch {
	case err == nil:
		return fmt.Errorf("section %q already exists as %s: %w", name, other, ErrConflict)
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to check section name: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE shopping_sections SET name = ?, name_key = ? WHERE id = ?
	`, name, key, id); err != nil {
		return fmt.Errorf("failed to rename section: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit section rename: %w", err)
	}
	return nil
}

// DeleteSection removes a shopping section. Items filed under it lose
// their sectionId.
func (s *Store) DeleteSection(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM shopping_sections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete section: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", actions.TypeShoppingSection, id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET fields_json = json_remove(fields_json, '$.sectionId'), updated_at = ?
		WHERE kind = ? AND json_extract(fields_json, '$.sectionId') = ?
	`, s.now(), string(actions.TypeShopping), id); err != nil {
		return fmt.Errorf("failed to detach items from section: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit section delete: %w", err)
	}
	return nil
}

func decodeFields(raw string) (map[string]any, error) {
	fields := make(map[string]any)
	if raw == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return maps.Clone(m)
}
