package index

import (
	"crypto/md5"
	"docstore/pkg/document"
	"encoding/hex"
)

// DigestKey hashes an arbitrary logical key into the canonical 32-byte
// hex-encoded digest form the stock definitions use. Derived purely from
// the input, so it is stable across restarts.
func DigestKey(raw []byte) []byte {
	sum := md5.Sum(raw)
	out := make([]byte, 32)
	hex.Encode(out, sum[:])
	return out
}

// FieldDefinition indexes documents by the digest of one top-level string
// field, optionally restricted to documents of one type tag (the "_t"
// convention). This is the shape nearly every stock index takes.
type FieldDefinition struct {
	// Field is the document field whose value becomes the key.
	Field string

	// DocType restricts the index to documents whose "_t" field matches.
	// Empty means all documents participate.
	DocType string
}

func (d FieldDefinition) MakeKey(raw []byte) ([]byte, error) {
	return DigestKey(raw), nil
}

func (d FieldDefinition) MakeKeyValue(doc document.Document) ([][]byte, error) {
	if d.DocType != "" {
		if t, _ := doc["_t"].(string); t != d.DocType {
			return nil, nil
		}
	}
	value, _ := doc[d.Field].(string)
	if value == "" {
		return nil, nil
	}
	return [][]byte{DigestKey([]byte(value))}, nil
}

// MultiFieldDefinition indexes documents under one key per element of a
// top-level list field (inverted-index style, e.g. tag lists). Only the
// multi tree index accepts it.
type MultiFieldDefinition struct {
	Field   string
	DocType string
}

func (d MultiFieldDefinition) MakeKey(raw []byte) ([]byte, error) {
	return DigestKey(raw), nil
}

func (d MultiFieldDefinition) MakeKeyValue(doc document.Document) ([][]byte, error) {
	if d.DocType != "" {
		if t, _ := doc["_t"].(string); t != d.DocType {
			return nil, nil
		}
	}

	values, ok := doc[d.Field].([]any)
	if !ok || len(values) == 0 {
		return nil, nil
	}

	var keys [][]byte
	for _, v := range values {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		keys = append(keys, DigestKey([]byte(s)))
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return keys, nil
}
