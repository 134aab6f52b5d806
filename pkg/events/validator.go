package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidEvent is returned for events that violate the event invariants.
var ErrInvalidEvent = errors.New("invalid event")

const schemaURL = "https://mirrornode.schemas.local/event.v1.schema.json"

// eventSchema is the wire schema the bridge accepts.
const eventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_type", "node", "source"],
  "properties": {
    "version": {"type": "string"},
    "event_type": {"enum": ["INTEGRATION", "EXECUTION", "ANALYSIS", "REFLECTION", "MANIFESTATION"]},
    "node": {"type": "string", "minLength": 1},
    "source": {
      "type": "object",
      "required": ["node", "surface", "origin"],
      "properties": {
        "node": {"type": "string"},
        "surface": {"type": "string"},
        "origin": {"type": "string"}
      }
    },
    "payload": {"type": "object"},
    "request_consensus": {"type": "boolean"},
    "trace_id": {"type": ["string", "null"]},
    "timestamp": {"type": ["string", "null"]},
    "priority": {"type": ["integer", "null"]}
  }
}`

var schema = lazySchema(schemaURL, eventSchema)

// lazySchema compiles src on first use. Formats are asserted.
func lazySchema(url, src string) func() (*jsonschema.Schema, error) {
	var (
		once     sync.Once
		compiled *jsonschema.Schema
		err      error
	)
	return func() (*jsonschema.Schema, error) {
		once.Do(func() {
			c := jsonschema.NewCompiler()
			c.Draft = jsonschema.Draft2020
			c.AssertFormat = true
			if err = c.AddResource(url, strings.NewReader(src)); err != nil {
				err = fmt.Errorf("schema %s load failed: %w", url, err)
				return
			}
			compiled, err = c.Compile(url)
		})
		return compiled, err
	}
}

// Validate checks the invariants of an already-decoded event.
func Validate(e *Event) error {
	if e == nil {
		return fmt.Errorf("%w: event is nil", ErrInvalidEvent)
	}
	if e.Node == "" {
		return fmt.Errorf("%w: missing or invalid 'node'", ErrInvalidEvent)
	}
	if e.Source == nil {
		return fmt.Errorf("%w: missing or invalid 'source'", ErrInvalidEvent)
	}
	if e.Source.Node == "" || e.Source.Surface == "" || e.Source.Origin == "" {
		return fmt.Errorf("%w: source must include keys: node, surface, origin", ErrInvalidEvent)
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("%w: invalid event_type %q", ErrInvalidEvent, e.EventType)
	}
	return nil
}

// Decode parses a wire event, validating it against the event schema and the
// event invariants. Missing payload decodes as an empty map.
func Decode(data []byte) (*Event, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	s, err := schema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	if e.Version == "" {
		e.Version = DefaultVersion
	}
	if err := Validate(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
