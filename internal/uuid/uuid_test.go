package uuid

import (
	"testing"
)

func TestNew(t *testing.T) {
	id1 := New()
	id2 := New()

	if !Valid(id1) {
		t.Errorf("New returned an unparsable UUID %q", id1)
	}
	if id1 == id2 {
		t.Error("UUIDs should be unique")
	}
	if Valid("not-a-uuid") {
		t.Error("Valid accepted garbage")
	}
}
