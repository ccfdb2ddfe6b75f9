package index

import (
	"bytes"
	"docstore/pkg/dberror"
	"encoding/json"
	"os"
)

// HeaderSize is the reserved metadata region at the start of every index
// file. The header must encode within this region; exceeding it is a fatal
// configuration error, never a silent truncation.
const HeaderSize = 500

// Metadata is the index file header: identity, format parameters, and
// element counter. It is read once at open time and rewritten on flush.
type Metadata struct {
	Name         string `json:"name"`
	Kind         Kind   `json:"kind"`
	Version      int    `json:"version"`
	KeyWidth     int    `json:"key_width"`
	DocIDWidth   int    `json:"doc_id_width"`
	Buckets      int    `json:"buckets,omitempty"`
	NodeCapacity int    `json:"node_capacity,omitempty"`
	Unique       bool   `json:"unique,omitempty"`
	Elements     uint64 `json:"elements"`
}

// Codec returns the entry codec implied by the header's widths.
func (m *Metadata) Codec() EntryCodec {
	return EntryCodec{KeyWidth: m.KeyWidth, DocIDWidth: m.DocIDWidth}
}

// WriteHeader encodes the metadata into the reserved region of the file.
func WriteHeader(file *os.File, m *Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return dberror.Wrap(err, "HEADER_ENCODE_FAILED", "WriteHeader", "Index")
	}
	if len(data) > HeaderSize {
		return dberror.New(dberror.CategoryConfig, "HEADER_TOO_LARGE", "index header exceeds reserved region").
			WithDetail("%d bytes, limit %d", len(data), HeaderSize)
	}

	block := make([]byte, HeaderSize)
	copy(block, data)
	if _, err := file.WriteAt(block, 0); err != nil {
		return dberror.Wrap(err, "HEADER_WRITE_FAILED", "WriteHeader", "Index")
	}
	return nil
}

// ReadHeader decodes the metadata from the reserved region of the file.
// A header that fails to decode is fatal at open time.
func ReadHeader(file *os.File) (*Metadata, error) {
	block := make([]byte, HeaderSize)
	if _, err := file.ReadAt(block, 0); err != nil {
		return nil, dberror.New(dberror.CategoryCorruption, "HEADER_UNREADABLE", "index header unreadable")
	}

	trimmed := bytes.TrimRight(block, "\x00")
	var m Metadata
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, dberror.New(dberror.CategoryCorruption, "HEADER_MALFORMED", "index header failed to decode")
	}
	if m.KeyWidth <= 0 || m.DocIDWidth <= 0 {
		return nil, dberror.New(dberror.CategoryCorruption, "HEADER_MALFORMED", "index header has invalid widths")
	}
	kind, err := ParseKind(string(m.Kind))
	if err != nil {
		return nil, dberror.New(dberror.CategoryCorruption, "HEADER_MALFORMED", "index header names an unknown kind").
			WithDetail("kind %q", m.Kind)
	}
	m.Kind = kind
	return &m, nil
}
