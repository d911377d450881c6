package domain

import (
	"time"

	"github.com/google/uuid"
)

// Activity is a JSON-LD event document, persisted verbatim (canonical JSON)
// keyed by its canonical id. It is not owned by any entity and is
// garbage-collected independently when unreachable.
type Activity struct {
	Id uuid.UUID

	// ActivityURI is the id as it appeared on the wire; CanonicalID is the
	// same id after FEP-ef61 resolution, used for lookup.
	ActivityURI string
	CanonicalID string

	ActivityType string // Follow, Create, Like, Announce, Undo, ...
	ActorURI     string
	ObjectURI    string

	RawJSON string

	Local     bool // true if originated from this server
	FromRelay bool

	CreatedAt time.Time
}
