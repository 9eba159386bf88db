package events

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	emptyObjectJSON = []byte(`{}`)
	nullJSON        = []byte(`null`)
)

// WireMessage builds the canonical JSON object sent to real-time clients:
//
//	{
//	  "type": "<kind>",
//	  "data": { ... payload ... },
//	  "source_agent_id": <int|null>,
//	  "circle_id": <int|null>,
//	  "project_id": <int|null>,
//	  "event_id": "<string>",
//	  "timestamp": "<ISO-8601 UTC>"
//	}
func (e Event) WireMessage() ([]byte, error) {
	result, err := sjson.SetBytes(emptyObjectJSON, "type", string(e.Kind))
	if err != nil {
		return nil, err
	}

	data := emptyObjectJSON
	if e.Payload != nil {
		data, err = json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
	}
	result, err = sjson.SetRawBytes(result, "data", data)
	if err != nil {
		return nil, err
	}

	result, err = setNullableInt(result, "source_agent_id", e.SourceAgentID)
	if err != nil {
		return nil, err
	}
	result, err = setNullableInt(result, "circle_id", e.CircleID)
	if err != nil {
		return nil, err
	}
	result, err = setNullableInt(result, "project_id", e.ProjectID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "event_id", e.ID)
	if err != nil {
		return nil, err
	}

	return sjson.SetBytes(result, "timestamp", e.Timestamp.String())
}

func setNullableInt(doc []byte, key string, value *int64) ([]byte, error) {
	if value == nil {
		return sjson.SetRawBytes(doc, key, nullJSON)
	}
	return sjson.SetBytes(doc, key, *value)
}

// MarshalJSON implements custom JSON marshaling for Event
func (e Event) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(emptyObjectJSON, "kind", string(e.Kind))
	if err != nil {
		return nil, err
	}

	if e.Payload != nil {
		payload, merr := json.Marshal(e.Payload)
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", merr)
		}
		result, err = sjson.SetRawBytes(result, "payload", payload)
		if err != nil {
			return nil, err
		}
	}

	if e.SourceAgentID != nil {
		result, err = sjson.SetBytes(result, "source_agent_id", *e.SourceAgentID)
		if err != nil {
			return nil, err
		}
	}
	if e.CircleID != nil {
		result, err = sjson.SetBytes(result, "circle_id", *e.CircleID)
		if err != nil {
			return nil, err
		}
	}
	if e.ProjectID != nil {
		result, err = sjson.SetBytes(result, "project_id", *e.ProjectID)
		if err != nil {
			return nil, err
		}
	}

	result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
	if err != nil {
		return nil, err
	}

	return sjson.SetBytes(result, "id", e.ID)
}

// UnmarshalJSON implements custom JSON unmarshaling for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	kind := gjson.GetBytes(data, "kind")
	if !kind.Exists() {
		return fmt.Errorf("missing required field 'kind'")
	}
	e.Kind = Kind(kind.String())

	if payload := gjson.GetBytes(data, "payload"); payload.Exists() {
		if err := json.Unmarshal([]byte(payload.Raw), &e.Payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	e.SourceAgentID = nullableInt(data, "source_agent_id")
	e.CircleID = nullableInt(data, "circle_id")
	e.ProjectID = nullableInt(data, "project_id")

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := e.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	if id := gjson.GetBytes(data, "id"); id.Exists() {
		e.ID = id.String()
	}

	return nil
}

func nullableInt(data []byte, key string) *int64 {
	field := gjson.GetBytes(data, key)
	if !field.Exists() || field.Type == gjson.Null {
		return nil
	}
	v := field.Int()
	return &v
}
