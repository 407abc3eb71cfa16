// Package identifier allocates collision-resistant opaque identifiers.
//
// Identifiers follow the "<type-prefix>_<random-suffix>" contract: a short
// kind prefix so a raw ID is recognizable in logs, and 10 lowercase hex
// characters of randomness, which keeps the collision probability negligible
// at the scale this service operates at.
package identifier

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Kind selects the type prefix of an allocated identifier.
type Kind string

const (
	KindEntity     Kind = "ent"
	KindProject    Kind = "prj"
	KindCollection Kind = "col"
	KindTemplate   Kind = "tpl"
	KindAttribute  Kind = "atr"
	KindValue      Kind = "val"
	KindActivity   Kind = "act"
)

const suffixLength = 10

// New allocates a fresh identifier for the given kind.
func New(kind Kind) string {
	return fmt.Sprintf("%s_%s", kind, randomHex())
}

// Version allocates a bare random stamp used for history snapshot versions.
func Version() string {
	return randomHex()
}

func randomHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:suffixLength]
}
