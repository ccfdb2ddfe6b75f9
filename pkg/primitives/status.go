package primitives

import "fmt"

// Status is the one-byte lifecycle marker attached to every storage record
// and index entry. It is a byte everywhere inside the engine; text forms are
// converted exactly once at the public API boundary.
type Status byte

const (
	// StatusOpen marks an active, readable record.
	StatusOpen Status = 'o'

	// StatusDeleted marks a logically deleted record. Bytes stay on disk
	// until compaction.
	StatusDeleted Status = 'd'

	// StatusUnknown marks an uncommitted or unrecognized record.
	StatusUnknown Status = 'u'
)

// IsValid reports whether s is one of the three defined status codes.
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusDeleted || s == StatusUnknown
}

// IsDeleted reports whether the record the status belongs to has been
// logically deleted.
func (s Status) IsDeleted() bool {
	return s == StatusDeleted
}

// ParseStatus converts the textual form of a status marker into its byte
// form. This is the only place where text statuses are accepted.
func ParseStatus(text string) (Status, error) {
	if len(text) != 1 {
		return StatusUnknown, fmt.Errorf("invalid status %q: want a single character", text)
	}
	s := Status(text[0])
	if !s.IsValid() {
		return StatusUnknown, fmt.Errorf("invalid status %q", text)
	}
	return s, nil
}

func (s Status) String() string {
	return string(byte(s))
}
