// Package plan reads the operating system's power plan catalog and switches
// the active plan.
package plan

import (
	"strings"

	"github.com/google/uuid"
)

// canonicalLen is the length of the 8-4-4-4-12 textual form.
const canonicalLen = 36

// ID identifies a power plan. The zero value is not a valid plan.
type ID uuid.UUID

// ParseID parses the canonical textual form of a plan identifier. Braced,
// URN and undashed forms are rejected.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s) != canonicalLen {
		return ID{}, &InvalidIDError{Value: s}
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, &InvalidIDError{Value: s, Err: err}
	}
	return ID(u), nil
}

// MustParseID is like ParseID but panics on error. For tests and constants.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical lower-case form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Plan is one entry of the catalog.
type Plan struct {
	ID   ID
	Name string
}

// Snapshot is the catalog as seen by one read.
type Snapshot struct {
	Plans  []Plan
	Active *ID
}

// IsActive reports whether id is the active plan in this snapshot.
func (s Snapshot) IsActive(id ID) bool {
	return s.Active != nil && *s.Active == id
}

// Lookup returns the plan with the given id.
func (s Snapshot) Lookup(id ID) (Plan, bool) {
	for _, p := range s.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
