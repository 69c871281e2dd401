package dispatch

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
)

// Section is a named group of shopping items within a project.
type Section struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SectionStore is the section surface of the backend.
type SectionStore interface {
	ListSections(ctx context.Context, projectID string) ([]Section, error)
	CreateSection(ctx context.Context, projectID, name string) (string, error)
}

// SectionResolver finds a section by name, creating it when absent. Names
// are matched case-insensitively. Identical lookups that are in flight at
// the same time share one backend round-trip, so a name is created at most
// once per process. Two processes racing on the same name may still both
// create it.
type SectionResolver struct {
	store SectionStore
	group singleflight.Group
}

// NewSectionResolver returns a resolver backed by store.
func NewSectionResolver(store SectionStore) *SectionResolver {
	return &SectionResolver{store: store}
}

type resolved struct {
	id      string
	created bool
}

// Resolve returns the id of the section called name in projectID and
// whether this call created it.
func (r *SectionResolver) Resolve(ctx context.Context, projectID, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, fmt.Errorf("section name must not be empty")
	}
	key := projectID + "\x00" + fold(name)

	v, err, _ := r.group.Do(key, func() (any, error) {
		sections, err := r.store.ListSections(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("list sections: %w", err)
		}
		want := fold(name)
		for _, s := range sections {
			if fold(strings.TrimSpace(s.Name)) == want {
				return resolved{id: s.ID}, nil
			}
		}
		id, err := r.store.CreateSection(ctx, projectID, name)
		if err != nil {
			return nil, fmt.Errorf("create section %q: %w", name, err)
		}
		return resolved{id: id, created: true}, nil
	})
	if err != nil {
		return "", false, err
	}
	res := v.(resolved)
	return res.id, res.created, nil
}

// fold returns the case-folded form of s. Casers keep state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
