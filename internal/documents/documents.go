// Package documents provides typed access to the site's recurrence-rules and
// concrete-events documents on top of the generic document store. The rules
// document is schema-validated before it reaches the materializer, so a
// malformed edit aborts a run instead of corrupting the events list.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pagesched/pagesched/internal/domain"
	"github.com/pagesched/pagesched/internal/store"
)

// RulesDoc is the recurrence-rules document with its revision.
type RulesDoc struct {
	Rules    []domain.Rule
	Revision string
}

// EventsDoc is the concrete-events document with its revision.
type EventsDoc struct {
	Events   []domain.Event
	Revision string
}

// Documents reads and writes the two site documents.
type Documents struct {
	store      store.DocumentStore
	rulesPath  string
	eventsPath string
	schema     *jsonschema.Schema
}

// New creates a Documents accessor. It compiles the rules schema once.
func New(st store.DocumentStore, rulesPath, eventsPath string) (*Documents, error) {
	schema, err := compileRulesSchema()
	if err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	return &Documents{
		store:      st,
		rulesPath:  rulesPath,
		eventsPath: eventsPath,
		schema:     schema,
	}, nil
}

// Rules loads and validates the recurrence-rules document.
func (d *Documents) Rules(ctx context.Context) (RulesDoc, error) {
	doc, err := d.store.Get(ctx, d.rulesPath)
	if err != nil {
		return RulesDoc{}, err
	}

	if err := d.validateRules(doc.Data); err != nil {
		return RulesDoc{}, fmt.Errorf("rules document %s: %w", d.rulesPath, err)
	}

	var rules []domain.Rule
	if err := json.Unmarshal(doc.Data, &rules); err != nil {
		return RulesDoc{}, fmt.Errorf("rules document %s: %w", d.rulesPath, err)
	}
	return RulesDoc{Rules: rules, Revision: doc.Revision}, nil
}

// Events loads the concrete-events document. A missing document is treated
// as empty; the first write creates it.
func (d *Documents) Events(ctx context.Context) (EventsDoc, error) {
	doc, err := d.store.Get(ctx, d.eventsPath)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EventsDoc{}, nil
		}
		return EventsDoc{}, err
	}

	var events []domain.Event
	if err := json.Unmarshal(doc.Data, &events); err != nil {
		return EventsDoc{}, fmt.Errorf("events document %s: %w", d.eventsPath, err)
	}
	return EventsDoc{Events: events, Revision: doc.Revision}, nil
}

// PutEvents writes the events document in one commit and returns the commit
// revision.
func (d *Documents) PutEvents(ctx context.Context, events []domain.Event, revision, message string) (string, error) {
	data, err := marshalDoc(events)
	if err != nil {
		return "", err
	}
	return d.store.Put(ctx, d.eventsPath, data, revision, message)
}

// PutRules writes the rules document in one commit and returns the commit
// revision.
func (d *Documents) PutRules(ctx context.Context, rules []domain.Rule, revision, message string) (string, error) {
	data, err := marshalDoc(rules)
	if err != nil {
		return "", err
	}
	return d.store.Put(ctx, d.rulesPath, data, revision, message)
}

// PutBoth commits updated rules and events documents together.
func (d *Documents) PutBoth(ctx context.Context, rules RulesDoc, events EventsDoc, message string) (string, error) {
	rulesData, err := marshalDoc(rules.Rules)
	if err != nil {
		return "", err
	}
	eventsData, err := marshalDoc(events.Events)
	if err != nil {
		return "", err
	}
	return d.store.BatchPut(ctx, []store.File{
		{Path: d.rulesPath, Data: rulesData, Revision: rules.Revision},
		{Path: d.eventsPath, Data: eventsData, Revision: events.Revision},
	}, message)
}

// RulesRevision returns the current revision of the rules document without
// validating or decoding it. Used by the fallback poller.
func (d *Documents) RulesRevision(ctx context.Context) (string, error) {
	doc, err := d.store.Get(ctx, d.rulesPath)
	if err != nil {
		return "", err
	}
	return doc.Revision, nil
}

func marshalDoc(v any) (json.RawMessage, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	// Site documents end with a newline; keeps diffs clean for human editors.
	return append(data, '\n'), nil
}

func (d *Documents) validateRules(data json.RawMessage) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := d.schema.Validate(inst); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// rulesSchema mirrors the shape the operator bots write. Weekday 0 is
// Sunday; time is local time of day in the site's reference timezone.
const rulesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "locationId", "weekday", "time", "enabled"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "locationId": {"type": "string", "minLength": 1},
      "weekday": {"type": "integer", "minimum": 0, "maximum": 6},
      "time": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9]$"},
      "enabled": {"type": "boolean"},
      "excludedDates": {
        "type": "array",
        "items": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
      },
      "about": {"type": "string"}
    },
    "additionalProperties": true
  }
}`

func compileRulesSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(rulesSchema))
	if err != nil {
		return nil, fmt.Errorf("parse rules schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules.schema.json", doc); err != nil {
		return nil, fmt.Errorf("add rules schema: %w", err)
	}
	schema, err := compiler.Compile("rules.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile rules schema: %w", err)
	}
	return schema, nil
}
