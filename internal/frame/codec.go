package frame

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Codec serializes one payload type.
type Codec[T any] interface {
	Marshal(v T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// JSONCodec encodes payloads as JSON. Unknown fields are rejected when Strict
// is set.
type JSONCodec[T any] struct {
	Strict bool
}

func (JSONCodec[T]) Marshal(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (c JSONCodec[T]) Unmarshal(data []byte) (T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(data))
	if c.Strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, err
	}
	if dec.More() {
		var zero T
		return zero, errors.New("trailing data after payload")
	}
	return out, nil
}
