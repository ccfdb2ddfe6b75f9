package primitives

import "testing"

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusOpen, StatusDeleted, StatusUnknown} {
		packed := byte(s)
		unpacked := Status(packed)
		if unpacked != s {
			t.Errorf("status %q round-tripped to %q", s, unpacked)
		}

		parsed, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) failed: %v", s.String(), err)
		}
		if parsed != s {
			t.Errorf("ParseStatus(%q) = %q, want %q", s.String(), parsed, s)
		}
	}
}

func TestParseStatusRejectsUnknownMarkers(t *testing.T) {
	for _, text := range []string{"", "x", "od", "D"} {
		if _, err := ParseStatus(text); err == nil {
			t.Errorf("ParseStatus(%q) should have failed", text)
		}
	}
}

func TestStatusIsDeleted(t *testing.T) {
	if StatusOpen.IsDeleted() || StatusUnknown.IsDeleted() {
		t.Error("only StatusDeleted should report deleted")
	}
	if !StatusDeleted.IsDeleted() {
		t.Error("StatusDeleted should report deleted")
	}
}

func TestPadKeyCanonicalForm(t *testing.T) {
	k, err := PadKey([]byte("abc"), 8)
	if err != nil {
		t.Fatalf("PadKey failed: %v", err)
	}
	if len(k) != 8 {
		t.Fatalf("expected width 8, got %d", len(k))
	}
	want := Key([]byte{'a', 'b', 'c', 0, 0, 0, 0, 0})
	if !k.Equal(want) {
		t.Errorf("PadKey = %v, want %v", k, want)
	}

	// Padding must be canonical: padding an already padded key is a no-op.
	again, err := PadKey(k, 8)
	if err != nil {
		t.Fatalf("PadKey on padded key failed: %v", err)
	}
	if !again.Equal(k) {
		t.Error("re-padding changed the key")
	}
}

func TestPadKeyRejectsOversizedKeys(t *testing.T) {
	if _, err := PadKey([]byte("too long for width"), 4); err == nil {
		t.Error("expected error for oversized key")
	}
}

func TestKeyCompareIsByteLexicographic(t *testing.T) {
	a, _ := PadKey([]byte{0x01}, 4)
	b, _ := PadKey([]byte{0x01, 0x00, 0x00, 0x01}, 4)
	c, _ := PadKey([]byte{0x02}, 4)

	if a.Compare(b) >= 0 {
		t.Error("expected a < b")
	}
	if b.Compare(c) >= 0 {
		t.Error("expected b < c")
	}
	if c.Compare(a) <= 0 {
		t.Error("expected c > a")
	}
}
