package session

import (
	"encoding/json"
)

// Codec carries plain Go structs over connect as JSON. It replaces the default
// protobuf JSON codec, which only accepts generated messages.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
