package document

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// Reserved field names managed by the engine. Callers may pre-set ID on
// insert; Rev is always engine-assigned.
const (
	FieldID  = "_id"
	FieldRev = "_rev"
)

// Document is a single record stored by value in the engine: arbitrary
// JSON-like fields plus the engine-managed _id and _rev. The engine hands
// out copies; mutating a returned document changes nothing durable until
// it is passed back through Update.
type Document map[string]any

// ID returns the document's primary key, or "" if unset.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Rev returns the document's revision token, or "" if unset.
func (d Document) Rev() string {
	rev, _ := d[FieldRev].(string)
	return rev
}

// SetID sets the primary key field.
func (d Document) SetID(id string) {
	d[FieldID] = id
}

// SetRev sets the revision token field.
func (d Document) SetRev(rev string) {
	d[FieldRev] = rev
}

// Clone returns a shallow copy of the document. Field values are shared;
// the engine only ever rewrites top-level entries.
func (d Document) Clone() Document {
	return maps.Clone(d)
}

// NewID generates a fresh primary key: 32 lowercase hex characters, the
// hex form of a random UUID. The width matches the stock 32-byte index
// key format.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewRev generates the initial revision token for a document. A revision
// is 16 hex characters: an 8-digit update counter followed by 8 random hex
// digits. The random tail distinguishes rewrites that land on the same
// counter value.
func NewRev() string {
	return formatRev(1)
}

// BumpRev derives the next revision token from the current one. An
// unparseable current revision restarts the counter rather than failing:
// the counter exists for debuggability, conflict detection only needs the
// token to change.
func BumpRev(current string) string {
	var seq uint32
	if len(current) == revLen {
		if _, err := fmt.Sscanf(current[:8], "%08x", &seq); err != nil {
			seq = 0
		}
	}
	return formatRev(seq + 1)
}

const revLen = 16

func formatRev(seq uint32) string {
	tail := make([]byte, 4)
	if _, err := rand.Read(tail); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a fixed tail rather than propagating an error nobody can act on.
		copy(tail, []byte{0xde, 0xad, 0xbe, 0xef})
	}
	return fmt.Sprintf("%08x%s", seq, hex.EncodeToString(tail))
}
