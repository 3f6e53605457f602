package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errUnexpectedShape = errors.New("unexpected response shape")

// decodeList accepts a bare array or an object carrying the array under one
// of keys ("data", "requests", ...). An empty body is an empty list.
func decodeList[T any](body []byte, keys ...string) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode list: %w", err)
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	for _, key := range append(keys, "data") {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '{' {
			// {"data": {"data": [...], "total": n}}
			return decodeList[T](raw, keys...)
		}
		return decodeList[T](raw)
	}
	return nil, errUnexpectedShape
}

// decodeObject unwraps an optional {"data": {...}} envelope.
func decodeObject[T any](body []byte) (*T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errUnexpectedShape
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	if inner, ok := envelope["data"]; ok {
		inner = bytes.TrimSpace(inner)
		if len(inner) > 0 && inner[0] == '{' {
			trimmed = inner
		}
	}
	var out T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	return &out, nil
}

// roomIDFromCreate tries room_id, id, data.room_id, data.id in that order.
func roomIDFromCreate(body []byte) (int64, error) {
	type ids struct {
		RoomID json.Number `json:"room_id"`
		ID     json.Number `json:"id"`
	}
	var top struct {
		ids
		Data *ids `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&top); err != nil {
		return 0, fmt.Errorf("failed to decode created room: %w", err)
	}

	candidates := []json.Number{top.RoomID, top.ID}
	if top.Data != nil {
		candidates = append(candidates, top.Data.RoomID, top.Data.ID)
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if id, err := c.Int64(); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, errUnexpectedShape
}
