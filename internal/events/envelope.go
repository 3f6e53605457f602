package events

import (
	"bytes"
	"encoding/json"
)

// Frame is the wire shape of every socket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Unwrap strips an optional {"data": ...} wrapper. Some server emitters wrap
// payloads and some don't; consumers always see the inner object.
func Unwrap(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return raw
	}
	inner, ok := wrapper["data"]
	if !ok {
		return raw
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || inner[0] != '{' {
		return raw
	}
	return inner
}
