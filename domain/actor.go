package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorKind is the ActivityStreams actor type.
type ActorKind string

const (
	ActorPerson      ActorKind = "Person"
	ActorService     ActorKind = "Service"
	ActorApplication ActorKind = "Application"
	ActorGroup       ActorKind = "Group"
)

// IdentityProof is a DID-to-signature proof attached to an actor, e.g. for
// FEP-ef61 portable identity or legacy verifiable-identity statements.
type IdentityProof struct {
	Did       string
	Signature string
}

// Actor is a federated identity: local or remote. A local actor has a nil
// Hostname and nil RemoteJSON and holds its own RSA/Ed25519 secret keys; a
// remote actor has both set and carries no secret key material.
type Actor struct {
	Id       uuid.UUID
	Username string
	Kind     ActorKind

	// Hostname is nil for local actors. acct = username for local,
	// username@hostname for remote.
	Hostname *string

	ActorURI   string // canonical id
	InboxURI   string
	// SharedInboxURI, when set, lets the Delivery Queue coalesce deliveries
	// to every actor on the same remote host into one POST (spec.md 4.G).
	SharedInboxURI string
	OutboxURI  string
	FollowersURI string
	FollowingURI string
	SubscribersURI string
	FeaturedURI  string

	DisplayName string
	Summary     string
	AvatarURL   string
	BannerURL   string

	ManuallyApprovesFollowers bool

	PublicKeyPEM  string // RSA PKCS#1/PKIX public key, present for both local and remote
	PrivateKeyPEM string // RSA private key, local actors only
	Ed25519Public  string // multibase-encoded Ed25519 public key
	Ed25519Private string // Ed25519 private key seed, local actors only

	// RemoteJSON is the last-fetched raw actor document, remote actors only.
	RemoteJSON *json.RawMessage

	IdentityProofs []IdentityProof
	PaymentOptions []json.RawMessage // opaque attachments, not interpreted by this core
	AliasURIs      []string

	IsAdmin bool
	Muted   bool

	PostCount      int
	FollowerCount  int
	FollowingCount int

	UnreachableSince *time.Time

	CreatedAt     time.Time
	LastFetchedAt time.Time // remote actors: when RemoteJSON was last refreshed
}

// IsLocal reports whether this actor's identity is minted by this instance.
func (a *Actor) IsLocal() bool {
	return a.Hostname == nil
}

// Acct returns the username@hostname handle, or bare username for local actors.
func (a *Actor) Acct() string {
	if a.Hostname == nil || *a.Hostname == "" {
		return a.Username
	}
	return a.Username + "@" + *a.Hostname
}
