package dispatch

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/La100/vibeplanner-sub001/internal/planner/actions"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// schemaSet holds one compiled create-payload schema per entity type.
type schemaSet map[actions.EntityType]*jsonschema.Schema

func compileSchemas() (schemaSet, error) {
	c := jsonschema.NewCompiler()
	set := make(schemaSet, len(actions.EntityTypes))
	for _, t := range actions.EntityTypes {
		raw, err := schemaFS.ReadFile("schemas/" + string(t) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read %s schema: %w", t, err)
		}
		url := "mem://schemas/" + string(t) + ".json"
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", t, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t, err)
		}
		set[t] = s
	}
	return set, nil
}

// validate checks a create payload against the schema of its type.
func (s schemaSet) validate(a actions.Action, fields map[string]any) error {
	schema, ok := s[a.Type]
	if !ok {
		return nil
	}
	// Round-trip through JSON so Go-typed values (ints, typed slices)
	// reach the validator in their decoded form.
	raw, err := json.Marshal(fields)
	if err != nil {
		return invalid(a, "", "payload is not serializable: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return invalid(a, "", "payload is not serializable: %v", err)
	}

	err = schema.Validate(doc)
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		for len(ve.Causes) > 0 {
			ve = ve.Causes[0]
		}
		return invalid(a, ve.InstanceLocation, "%s", ve.Message)
	}
	return err
}
