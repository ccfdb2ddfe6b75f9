package document

import (
	"encoding/json"
	"fmt"
)

// Marshal serializes a document to its canonical on-disk payload form.
func Marshal(d Document) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Unmarshal decodes an on-disk payload back into a document.
func Unmarshal(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return d, nil
}

// Normalize round-trips a document through the payload codec so its
// values carry the same types a later read returns. Write operations
// hand documents back in this form; without it the same document would
// compare unequal before and after a reload.
func Normalize(d Document) (Document, error) {
	data, err := Marshal(d)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
