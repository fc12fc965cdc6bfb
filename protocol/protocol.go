// Package protocol defines the messages exchanged between a web page, the
// relay and the wallet core.
//
// Page and relay talk in envelopes tagged REQUEST, RESPONSE or READY. The
// relay and the core talk in flat action requests whose replies carry either
// the method's payload fields or an error string, never both.
package protocol

import (
	"encoding/json"
	"fmt"
	"maps"
)

// EnvelopeType tags a page-channel message.
type EnvelopeType string

const (
	TypeRequest  EnvelopeType = "REQUEST"
	TypeResponse EnvelopeType = "RESPONSE"
	TypeReady    EnvelopeType = "READY"
)

// Envelope is a message on the page channel. Which fields are set depends on Type.
type Envelope struct {
	Type   EnvelopeType    `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method Method          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NewRequest builds a REQUEST envelope. params may be nil.
func NewRequest(id string, method Method, params any) (Envelope, error) {
	env := Envelope{Type: TypeRequest, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return Envelope{}, fmt.Errorf("encoding %s params: %w", method, err)
		}
		env.Params = raw
	}
	return env, nil
}

// Ready is the READY notice.
func Ready() Envelope {
	return Envelope{Type: TypeReady}
}

// ExternalRequest is what the relay forwards to the core. Origin is set by
// the relay from trusted sender metadata and is never read from the wire.
type ExternalRequest struct {
	Action Method
	Params map[string]json.RawMessage
	Origin string
}

// MarshalJSON flattens Params next to the action field: {action, ...params}.
func (r ExternalRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Params)+1)
	maps.Copy(out, r.Params)
	action, err := json.Marshal(r.Action)
	if err != nil {
		return nil, err
	}
	out["action"] = action
	return json.Marshal(out)
}

// UnmarshalJSON reads {action, ...params}. Any "origin" field in the payload
// is dropped with the rest of the unknown keys handled as params.
func (r *ExternalRequest) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	raw, ok := fields["action"]
	if !ok {
		return fmt.Errorf("missing action")
	}
	if err := json.Unmarshal(raw, &r.Action); err != nil {
		return fmt.Errorf("decoding action: %w", err)
	}
	delete(fields, "action")
	delete(fields, "origin")
	r.Params = fields
	r.Origin = ""
	return nil
}

// Decode unmarshals the request params into v, which should be a pointer to
// a struct with json tags.
func (r ExternalRequest) Decode(v any) error {
	raw, err := json.Marshal(r.Params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// ParamsFromEnvelope turns a page envelope's params object into the flat
// param map of an ExternalRequest. Empty params yield an empty map.
func ParamsFromEnvelope(raw json.RawMessage) (map[string]json.RawMessage, error) {
	params := map[string]json.RawMessage{}
	if len(raw) == 0 || string(raw) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("params must be an object: %w", err)
	}
	return params, nil
}
