package storage

import (
	"docstore/pkg/dberror"
	"docstore/pkg/document"
	"docstore/pkg/primitives"
	"os"
	"testing"
)

func createTestStorage(t *testing.T) *Storage {
	t.Helper()
	s := New(t.TempDir(), "test")
	if err := s.Create(); err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorageInsertAndGet(t *testing.T) {
	s := createTestStorage(t)

	payload := []byte(`{"name":"test","value":42}`)
	start, size, err := s.Insert(payload)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if size != primitives.RecordSize(len(payload)) {
		t.Errorf("size = %d, want exact payload length %d", size, len(payload))
	}

	got, err := s.Get(start, size, primitives.StatusOpen)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get returned %q, want %q", got, payload)
	}
}

func TestStorageAppendsNeverOverwrite(t *testing.T) {
	s := createTestStorage(t)

	first, firstSize, err := s.Insert([]byte("first"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	second, _, err := s.Insert([]byte("second record"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if second <= first {
		t.Errorf("second record offset %d should be past first %d", second, first)
	}

	got, err := s.Get(first, firstSize, primitives.StatusOpen)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "first" {
		t.Errorf("first record clobbered: %q", got)
	}
}

func TestStorageGetDeletedStatusReturnsNil(t *testing.T) {
	s := createTestStorage(t)

	start, size, err := s.Insert([]byte("doomed"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Status from the index entry short-circuits the read.
	got, err := s.Get(start, size, primitives.StatusDeleted)
	if err != nil || got != nil {
		t.Errorf("deleted status should read as (nil, nil), got (%v, %v)", got, err)
	}

	// Status marked inside the record also reads as absent.
	if err := s.MarkDeleted(start); err != nil {
		t.Fatalf("MarkDeleted failed: %v", err)
	}
	got, err = s.Get(start, size, primitives.StatusOpen)
	if err != nil || got != nil {
		t.Errorf("in-record deletion should read as (nil, nil), got (%v, %v)", got, err)
	}
}

func TestStorageEmptyValueSentinel(t *testing.T) {
	s := createTestStorage(t)

	got, err := s.Get(primitives.EmptyOffset, 0, primitives.StatusOpen)
	if err != nil || got != nil {
		t.Errorf("sentinel handle should read as (nil, nil), got (%v, %v)", got, err)
	}
}

func TestStorageDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "test")
	if err := s.Create(); err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	payload := []byte(`{"name":"victim"}`)
	start, size, err := s.Insert(payload)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	s.Close()

	// Flip a payload byte behind the engine's back.
	file, err := os.OpenFile(s.Path().String(), os.O_RDWR, 0o640)
	if err != nil {
		t.Fatalf("failed to reopen file: %v", err)
	}
	if _, err := file.WriteAt([]byte{0xFF}, int64(start)+recordHeaderSize+2); err != nil {
		t.Fatalf("failed to corrupt file: %v", err)
	}
	file.Close()

	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(start, size, primitives.StatusOpen); !dberror.IsCorruption(err) {
		t.Errorf("expected corruption error, got %v", err)
	}
}

func TestStorageGetPastEOF(t *testing.T) {
	s := createTestStorage(t)

	if _, err := s.Get(fileHeaderSize+5000, 100, primitives.StatusOpen); !dberror.IsCorruption(err) {
		t.Errorf("read past EOF should be corruption, got %v", err)
	}
}

func TestStorageGetSizeMismatch(t *testing.T) {
	s := createTestStorage(t)

	start, size, err := s.Insert([]byte("12345678"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := s.Get(start, size-2, primitives.StatusOpen); !dberror.IsCorruption(err) {
		t.Errorf("size mismatch should be corruption, got %v", err)
	}
}

func TestStorageOpenMissingFile(t *testing.T) {
	s := New(t.TempDir(), "ghost")
	if err := s.Open(); !dberror.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestStorageOpenBadMagic(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "test")
	if err := os.WriteFile(s.Path().String(), []byte("not a storage file at all, definitely not 100 bytes of header but long enough to read"), 0o640); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := s.Open(); !dberror.IsCorruption(err) {
		t.Errorf("expected corruption error, got %v", err)
	}
}

func TestStorageDestroyRequiresClose(t *testing.T) {
	s := createTestStorage(t)

	if err := s.Destroy(); err == nil {
		t.Error("Destroy on open storage should fail")
	}

	s.Close()
	if err := s.Destroy(); err != nil {
		t.Errorf("Destroy after close failed: %v", err)
	}
	if s.Path().Exists() {
		t.Error("backing file still exists after Destroy")
	}
}

func TestStorageReopenPersists(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "test")
	if err := s.Create(); err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	start, size, err := s.Insert([]byte("survives restart"))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	s.Fsync()
	s.Close()

	reopened := New(dir, "test")
	if err := reopened.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(start, size, primitives.StatusOpen)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != "survives restart" {
		t.Errorf("Get after reopen = %q", got)
	}
}

func TestStorageDocRoundTrip(t *testing.T) {
	s := createTestStorage(t)

	doc := document.Document{"name": "test", "value": float64(42)}
	start, size, err := s.SaveDoc(doc)
	if err != nil {
		t.Fatalf("SaveDoc failed: %v", err)
	}

	got, err := s.LoadDoc(start, size, primitives.StatusOpen)
	if err != nil {
		t.Fatalf("LoadDoc failed: %v", err)
	}
	if got["name"] != "test" || got["value"] != float64(42) {
		t.Errorf("LoadDoc = %v", got)
	}
}
