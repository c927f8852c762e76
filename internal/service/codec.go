package service

import (
	"encoding/json"
	"fmt"
)

// jsonCodec serializes the plain Go request and response messages of the
// ledger service. It replaces Connect's protojson codec under the same
// name, so clients send application/json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode %T: %w", msg, err)
	}
	return nil
}
