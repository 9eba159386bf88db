package events

import (
	"fmt"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

// Event is an immutable record of something that happened in the system.
// It carries just enough data for subscribers to react: the kind, an
// arbitrary payload, and optional correlation identifiers.
//
// Events are constructed with New, which fills in the timestamp and id
// when they are not supplied. Once constructed an Event is read-only.
type Event struct {
	Kind          Kind            `json:"kind"`
	Payload       map[string]any  `json:"payload,omitempty"`
	SourceAgentID *int64          `json:"source_agent_id,omitempty"`
	CircleID      *int64          `json:"circle_id,omitempty"`
	ProjectID     *int64          `json:"project_id,omitempty"`
	Timestamp     strfmt.DateTime `json:"timestamp"`
	ID            string          `json:"id"`
}

// Option configures an Event during construction.
type Option = opts.Option[Event]

// WithID overrides the generated event id.
var WithID = opts.ForName[Event, string]("ID")

// WithTimestamp overrides the creation timestamp.
var WithTimestamp = opts.ForName[Event, strfmt.DateTime]("Timestamp")

// WithSource attaches the id of the agent that triggered the event.
func WithSource(id int64) Option {
	return opts.Type[Event](func(e *Event) error {
		e.SourceAgentID = &id
		return nil
	})
}

// WithCircle attaches the circle context the event belongs to.
func WithCircle(id int64) Option {
	return opts.Type[Event](func(e *Event) error {
		e.CircleID = &id
		return nil
	})
}

// WithProject attaches the project context the event belongs to.
func WithProject(id int64) Option {
	return opts.Type[Event](func(e *Event) error {
		e.ProjectID = &id
		return nil
	})
}

// New constructs an Event of the given kind. When no timestamp is supplied
// the current UTC time is used, and when no id is supplied one is derived
// from the kind and the microsecond timestamp.
func New(kind Kind, payload map[string]any, options ...Option) Event {
	evt := Event{
		Kind:    kind,
		Payload: payload,
	}
	if err := opts.Apply(&evt, options); err != nil {
		panic(err)
	}
	if time.Time(evt.Timestamp).IsZero() {
		evt.Timestamp = strfmt.DateTime(time.Now().UTC())
	}
	if evt.ID == "" {
		evt.ID = fmt.Sprintf("%s:%d", kind, time.Time(evt.Timestamp).UnixMicro())
	}
	return evt
}

// Matches reports whether the event's attributes equal every value in
// filters. Recognized keys are "kind", "id", "source_agent_id",
// "circle_id", and "project_id"; an unrecognized key never matches.
func (e Event) Matches(filters map[string]any) bool {
	for key, want := range filters {
		switch key {
		case "kind":
			if k, ok := want.(Kind); !ok || e.Kind != k {
				return false
			}
		case "id":
			if id, ok := want.(string); !ok || e.ID != id {
				return false
			}
		case "source_agent_id":
			if !matchID(e.SourceAgentID, want) {
				return false
			}
		case "circle_id":
			if !matchID(e.CircleID, want) {
				return false
			}
		case "project_id":
			if !matchID(e.ProjectID, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchID(have *int64, want any) bool {
	if have == nil {
		return want == nil
	}
	switch v := want.(type) {
	case int64:
		return *have == v
	case int:
		return *have == int64(v)
	default:
		return false
	}
}
