package document

import (
	"encoding/hex"
	"testing"
)

func TestNewIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 32 {
			t.Fatalf("expected 32-char id, got %d (%q)", len(id), id)
		}
		if _, err := hex.DecodeString(id); err != nil {
			t.Fatalf("id %q is not hex: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestRevBumpChangesToken(t *testing.T) {
	rev := NewRev()
	if len(rev) != 16 {
		t.Fatalf("expected 16-char rev, got %d (%q)", len(rev), rev)
	}
	if rev[:8] != "00000001" {
		t.Errorf("initial rev counter should be 1, got %q", rev[:8])
	}

	next := BumpRev(rev)
	if next == rev {
		t.Error("bumped rev must differ from current")
	}
	if next[:8] != "00000002" {
		t.Errorf("bumped rev counter should be 2, got %q", next[:8])
	}
}

func TestBumpRevToleratesGarbage(t *testing.T) {
	next := BumpRev("not-a-rev")
	if len(next) != 16 {
		t.Fatalf("expected 16-char rev, got %q", next)
	}
	if next[:8] != "00000001" {
		t.Errorf("garbage rev should restart the counter, got %q", next[:8])
	}
}

func TestCodecRoundTrip(t *testing.T) {
	doc := Document{"name": "test", "value": float64(42)}
	doc.SetID(NewID())
	doc.SetRev(NewRev())

	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.ID() != doc.ID() || got.Rev() != doc.Rev() {
		t.Error("engine fields did not survive round trip")
	}
	if got["name"] != "test" || got["value"] != float64(42) {
		t.Errorf("user fields did not survive round trip: %v", got)
	}
}

func TestNormalizeMatchesDecodedForm(t *testing.T) {
	doc := Document{"count": 3, "tags": []string{"a", "b"}}
	doc.SetID(NewID())

	norm, err := Normalize(doc)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if norm["count"] != float64(3) {
		t.Errorf("count = %T %v, want the decoded float64 form", norm["count"], norm["count"])
	}
	if _, ok := norm["tags"].([]any); !ok {
		t.Errorf("tags = %T, want the decoded []any form", norm["tags"])
	}
	if norm.ID() != doc.ID() {
		t.Error("_id changed during normalization")
	}
}

func TestUnmarshalRejectsCorruptPayload(t *testing.T) {
	if _, err := Unmarshal([]byte("{\"name\": ")); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestCloneIsIndependentAtTopLevel(t *testing.T) {
	doc := Document{"name": "original"}
	clone := doc.Clone()
	clone["name"] = "changed"
	if doc["name"] != "original" {
		t.Error("mutating clone changed the source document")
	}
}
