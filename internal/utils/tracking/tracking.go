package tracking

import (
	"strings"

	"github.com/google/uuid"
)

const prefix = "TRK-"

// NewCode generates a short order tracking code, e.g. "TRK-8F2A91C4".
// Uniqueness is ultimately enforced by the orders table constraint.
func NewCode() string {
	id := uuid.New()
	return prefix + strings.ToUpper(id.String()[:8])
}

// NewReference generates a ledger idempotency key with the given prefix,
// e.g. "DEP-<uuid>". Used when the caller does not supply one.
func NewReference(kind string) string {
	return kind + "-" + uuid.New().String()
}
