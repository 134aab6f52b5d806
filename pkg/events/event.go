// Package events defines the MirrorNode event: the unit of work the router and
// orchestrator fan out to adapters.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultVersion is the event schema version stamped on new events.
const DefaultVersion = "mirrornode.event.v1"

// EventType classifies an event.
type EventType string

const (
	EventIntegration   EventType = "INTEGRATION"
	EventExecution     EventType = "EXECUTION"
	EventAnalysis      EventType = "ANALYSIS"
	EventReflection    EventType = "REFLECTION"
	EventManifestation EventType = "MANIFESTATION"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventIntegration, EventExecution, EventAnalysis, EventReflection, EventManifestation:
		return true
	}
	return false
}

// Source identifies where an event entered the lattice.
type Source struct {
	Node    string `json:"node"`
	Surface string `json:"surface"`
	Origin  string `json:"origin"`
}

// Event is one unit of work. Producers build it; after dispatch only
// EnsureMetadata and the consensus flag may change it.
//
// Event is not safe for concurrent mutation: the router and orchestrator
// finish EnsureMetadata before fanning the event out.
type Event struct {
	Version          string         `json:"version"`
	EventType        EventType      `json:"event_type"`
	Node             string         `json:"node"`
	Source           *Source        `json:"source"`
	Payload          map[string]any `json:"payload"`
	RequestConsensus bool           `json:"request_consensus"`
	TraceID          string         `json:"trace_id,omitempty"`
	Timestamp        *time.Time     `json:"timestamp,omitempty"`
	Priority         *int           `json:"priority,omitempty"`
}

// New builds an event with default version and populated metadata.
func New(eventType EventType, node string, source Source, payload map[string]any) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	e := &Event{
		Version:   DefaultVersion,
		EventType: eventType,
		Node:      node,
		Source:    &source,
		Payload:   payload,
	}
	e.EnsureMetadata()
	return e
}

// EnsureMetadata fills trace id and timestamp when absent. Idempotent.
func (e *Event) EnsureMetadata() {
	if e.Version == "" {
		e.Version = DefaultVersion
	}
	if e.TraceID == "" {
		e.TraceID = uuid.New().String()
	}
	if e.Timestamp == nil {
		now := time.Now().UTC()
		e.Timestamp = &now
	}
}

// WithPriority sets the optional priority and returns the event.
func (e *Event) WithPriority(p int) *Event {
	e.Priority = &p
	return e
}

// Clone returns a copy that shares no mutable state with e.
func (e *Event) Clone() *Event {
	c := *e
	if e.Source != nil {
		s := *e.Source
		c.Source = &s
	}
	if e.Payload != nil {
		c.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			c.Payload[k] = v
		}
	}
	if e.Timestamp != nil {
		ts := *e.Timestamp
		c.Timestamp = &ts
	}
	if e.Priority != nil {
		p := *e.Priority
		c.Priority = &p
	}
	return &c
}

// Prompt renders the event into the prompt handed to adapters.
func (e *Event) Prompt() string {
	data, err := json.Marshal(struct {
		EventType        EventType      `json:"event_type"`
		Node             string         `json:"node"`
		TraceID          string         `json:"trace_id"`
		RequestConsensus bool           `json:"request_consensus"`
		Payload          map[string]any `json:"payload"`
	}{e.EventType, e.Node, e.TraceID, e.RequestConsensus, e.Payload})
	if err != nil {
		// payload values that cannot be encoded still yield a usable prompt
		return string(e.EventType) + " " + e.Node
	}
	return string(data)
}
