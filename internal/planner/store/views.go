package store

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

// Task is the typed view of a task entity.
type Task struct {
	ID          string   `mapstructure:"-"`
	Title       string   `mapstructure:"title"`
	Description string   `mapstructure:"description"`
	Status      string   `mapstructure:"status"`
	Priority    string   `mapstructure:"priority"`
	DueDate     string   `mapstructure:"dueDate"`
	Cost        float64  `mapstructure:"cost"`
	Tags        []string `mapstructure:"tags"`
}

// ShoppingItem is the typed view of a shopping entity.
type ShoppingItem struct {
	ID        string  `mapstructure:"-"`
	Name      string  `mapstructure:"name"`
	Quantity  float64 `mapstructure:"quantity"`
	Unit      string  `mapstructure:"unit"`
	SectionID string  `mapstructure:"sectionId"`
	Category  string  `mapstructure:"category"`
	Price     float64 `mapstructure:"unitPrice"`
	Bought    bool    `mapstructure:"isBought"`
}

// Habit is the typed view of a habit entity.
type Habit struct {
	ID          string  `mapstructure:"-"`
	Name        string  `mapstructure:"name"`
	Description string  `mapstructure:"description"`
	Frequency   string  `mapstructure:"frequency"`
	TargetValue float64 `mapstructure:"targetValue"`
	Unit        string  `mapstructure:"unit"`
}

// Decode fills out from the entity fields. Numbers and booleans sent as
// strings are accepted; unknown fields are ignored.
func (e *Entity) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(e.Fields); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", e.Kind, e.ID, err)
	}
	return nil
}

// ListTasks returns the tasks of a project.
func (s *Store) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	return listViews(ctx, s, projectID, actions.TypeTask, func(t *Task, id string) { t.ID = id })
}

// ListShoppingItems returns the shopping items of a project.
func (s *Store) ListShoppingItems(ctx context.Context, projectID string) ([]ShoppingItem, error) {
	return listViews(ctx, s, projectID, actions.TypeShopping, func(i *ShoppingItem, id string) { i.ID = id })
}

// ListHabits returns the habits of a project.
func (s *Store) ListHabits(ctx context.Context, projectID string) ([]Habit, error) {
	return listViews(ctx, s, projectID, actions.TypeHabit, func(h *Habit, id string) { h.ID = id })
}

func listViews[T any](ctx context.Context, s *Store, projectID string, kind actions.EntityType, setID func(*T, string)) ([]T, error) {
	entities, err := s.ListEntities(ctx, projectID, kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		var v T
		if err := e.Decode(&v); err != nil {
			return nil, err
		}
		setID(&v, e.ID)
		out = append(out, v)
	}
	return out, nil
}
