package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Reserved envelope keys. Catalog fields never use these names.
const (
	keyType        = "type"
	keyTimestamp   = "timestamp"
	keyHostname    = "hostname"
	keyEnvironment = "environment"
)

// ErrMalformed is returned when a payload is not a JSON object with a type.
var ErrMalformed = errors.New("malformed event payload")

// Envelope is an event together with the metadata stamped at capture time.
//
// Timestamp is set once when the event is tracked and never recomputed.
type Envelope struct {
	Timestamp   time.Time
	Event       Event
	Hostname    *string
	Environment *string
}

// MarshalJSON encodes the envelope as a single flat object: the type
// discriminant, capture metadata and the event's own fields.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Event == nil {
		return nil, fmt.Errorf("%w: envelope has no event", ErrMalformed)
	}

	raw, err := json.Marshal(e.Event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: event is not an object", ErrMalformed)
	}

	if fields[keyType], err = json.Marshal(e.Event.Type()); err != nil {
		return nil, err
	}
	if fields[keyTimestamp], err = json.Marshal(e.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if fields[keyHostname], err = json.Marshal(e.Hostname); err != nil {
		return nil, err
	}
	if fields[keyEnvironment], err = json.Marshal(e.Environment); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flat envelope object produced by MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var meta struct {
		Timestamp   time.Time `json:"timestamp"`
		Hostname    *string   `json:"hostname"`
		Environment *string   `json:"environment"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	event, err := Decode(data)
	if err != nil {
		return err
	}

	e.Timestamp = meta.Timestamp.UTC()
	e.Event = event
	e.Hostname = meta.Hostname
	e.Environment = meta.Environment
	return nil
}

// Decode builds the catalog variant named by the payload's "type" field.
// Unknown fields, including envelope metadata, are ignored.
func Decode(data []byte) (Event, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == nil {
		return nil, fmt.Errorf("%w: missing %q field", ErrMalformed, keyType)
	}

	event, err := New(Type(*head.Type))
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", *head.Type, err)
	}
	return event, nil
}
