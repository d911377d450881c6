package identity

import (
	"fmt"
	"strings"
)

// Authority encapsulates the namespace under which a set of ids were minted
// and signed: either the server's own origin, or a portable did:key
// identity (FEP-ef61). It must agree with the key actually used to sign.
type Authority struct {
	Instance string // non-empty for Server authorities
	DID      string // non-empty for Portable authorities
}

func ServerAuthority(instance string) Authority {
	return Authority{Instance: instance}
}

func PortableAuthority(did string) Authority {
	return Authority{DID: did}
}

func (a Authority) IsPortable() bool {
	return a.DID != ""
}

// ObjectID mints an id for a local object under this authority.
func (a Authority) ObjectID(objectUUID string) string {
	if a.IsPortable() {
		return fmt.Sprintf("ap://%s/objects/%s", a.DID, objectUUID)
	}
	return LocalObjectURI(a.Instance, objectUUID)
}

// ActorID mints an id for a local actor under this authority.
func (a Authority) ActorID(username string) string {
	if a.IsPortable() {
		return fmt.Sprintf("ap://%s/actor", a.DID)
	}
	return LocalActorURI(a.Instance, username)
}

// Matches reports whether a verificationMethod DID (from a Data Integrity
// proof) agrees with this authority.
func (a Authority) Matches(verificationMethod string) bool {
	if !a.IsPortable() {
		return false
	}
	did := verificationMethod
	if idx := strings.Index(did, "#"); idx >= 0 {
		did = did[:idx]
	}
	return did == a.DID
}
