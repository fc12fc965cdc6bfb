package storage

import (
	"encoding/json"
	"fmt"
)

// Record is a stored value plus the version used for compare-and-swap.
// Version 0 means "does not exist" to PutCAS, so stored versions start at 1.
type Record struct {
	Version uint64          `json:"version,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// NewRecord marshals v into a Record at the given version.
func NewRecord(v any, version uint64) (*Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}
	return &Record{Version: version, Data: data}, nil
}

// Decode unmarshals the record payload into v.
func (r *Record) Decode(v any) error {
	if r == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("unmarshaling record: %w", err)
	}
	return nil
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Version: r.Version,
		Data:    append(json.RawMessage(nil), r.Data...),
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	return cloneRecord(r)
}
