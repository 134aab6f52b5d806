package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxPipelineConfigBytes bounds the serialized pipeline_config of an audit job.
const MaxPipelineConfigBytes = 10000

var ErrInvalidAuditJob = errors.New("invalid audit job")

const auditJobSchemaURL = "https://mirrornode.schemas.local/audit-job.v1.schema.json"

const auditJobSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event", "pipeline_config"],
  "properties": {
    "trace_id": {"type": "string", "format": "uuid"},
    "event": {"type": "string", "pattern": "^[a-z_]+$", "maxLength": 100},
    "pipeline_config": {"type": "object"}
  }
}`

var auditJobSchemaFn = lazySchema(auditJobSchemaURL, auditJobSchema)

// AuditJob is an Osiris audit submission. It is routed as an ANALYSIS event
// from the osiris node.
type AuditJob struct {
	TraceID        string         `json:"trace_id"`
	Event          string         `json:"event"`
	PipelineConfig map[string]any `json:"pipeline_config"`
}

// DecodeAuditJob validates a wire audit job and assigns a trace id when the
// submitter sent none.
func DecodeAuditJob(data []byte) (*AuditJob, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuditJob, err)
	}
	s, err := auditJobSchemaFn()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuditJob, err)
	}

	var job AuditJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuditJob, err)
	}
	config, err := json.Marshal(job.PipelineConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuditJob, err)
	}
	if len(config) > MaxPipelineConfigBytes {
		return nil, fmt.Errorf("%w: pipeline_config is %d bytes, limit %d", ErrInvalidAuditJob, len(config), MaxPipelineConfigBytes)
	}
	if job.TraceID == "" {
		job.TraceID = uuid.New().String()
	}
	return &job, nil
}

// ToEvent builds the routed event. origin is the submitting client address.
func (j *AuditJob) ToEvent(origin string) *Event {
	if origin == "" {
		origin = "unknown"
	}
	e := &Event{
		Version:   DefaultVersion,
		EventType: EventAnalysis,
		Node:      "osiris",
		Source:    &Source{Node: "osiris-hud", Surface: "web", Origin: origin},
		Payload: map[string]any{
			"audit_event":     j.Event,
			"pipeline_config": j.PipelineConfig,
		},
		TraceID: j.TraceID,
	}
	e.EnsureMetadata()
	return e
}
