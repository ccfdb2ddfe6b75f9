package storage

import (
	"docstore/pkg/document"
	"docstore/pkg/primitives"
)

// SaveDoc serializes a document and appends it, returning its handle.
func (s *Storage) SaveDoc(doc document.Document) (primitives.Offset, primitives.RecordSize, error) {
	payload, err := document.Marshal(doc)
	if err != nil {
		return 0, 0, err
	}
	return s.Insert(payload)
}

// LoadDoc reads back and deserializes the document at the given handle.
// Deleted records yield (nil, nil) just like Get.
func (s *Storage) LoadDoc(start primitives.Offset, size primitives.RecordSize, status primitives.Status) (document.Document, error) {
	payload, err := s.Get(start, size, status)
	if err != nil || payload == nil {
		return nil, err
	}
	return document.Unmarshal(payload)
}
