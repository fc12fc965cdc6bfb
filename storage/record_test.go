package storage

import (
	"errors"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Index uint32 `json:"index"`
	}

	rec, err := NewRecord(payload{Name: "Account 1", Index: 3}, 7)
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	if rec.Version != 7 {
		t.Errorf("expected version 7, got %d", rec.Version)
	}

	var got payload
	if err := rec.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Name != "Account 1" || got.Index != 3 {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestRecordClone(t *testing.T) {
	rec := &Record{Version: 1, Data: []byte(`{"a":1}`)}
	cp := rec.Clone()
	cp.Data[2] = 'b'
	if string(rec.Data) != `{"a":1}` {
		t.Error("Clone shares the underlying data")
	}
}

func TestNilRecordDecode(t *testing.T) {
	var rec *Record
	var v map[string]any
	if err := rec.Decode(&v); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
