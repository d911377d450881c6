package builder

import (
	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/identity"
)

// BuildPerson renders a local actor as a canonical Person (or Service/
// Application/Group) AS2 document, the identity side of the Builder
// alongside BuildNote.
func (b *Builder) BuildPerson(a *domain.Actor, authority identity.Authority) map[string]any {
	actorID := authority.ActorID(a.Username)

	person := map[string]any{
		"id":                actorID,
		"type":              string(a.Kind),
		"preferredUsername": a.Username,
		"inbox":             identity.InboxURI(actorID),
		"outbox":            identity.OutboxURI(actorID),
		"followers":         identity.FollowersURI(actorID),
		"following":         identity.FollowingURI(actorID),
		"featured":          identity.FeaturedCollectionURI(actorID),
	}
	person["subscribers"] = identity.SubscribersURI(actorID)
	person["endpoints"] = map[string]any{"sharedInbox": identity.SharedInboxURI(b.InstanceHostname)}
	if a.DisplayName != "" {
		person["name"] = a.DisplayName
	}
	if a.Summary != "" {
		person["summary"] = a.Summary
	}
	if a.AvatarURL != "" {
		person["icon"] = map[string]any{"type": "Image", "url": a.AvatarURL}
	}
	if a.BannerURL != "" {
		person["image"] = map[string]any{"type": "Image", "url": a.BannerURL}
	}
	person["manuallyApprovesFollowers"] = a.ManuallyApprovesFollowers

	if a.PublicKeyPEM != "" {
		person["publicKey"] = map[string]any{
			"id":           actorID + "#main-key",
			"owner":        actorID,
			"publicKeyPem": a.PublicKeyPEM,
		}
	}
	if a.Ed25519Public != "" {
		person["assertionMethod"] = []map[string]any{{
			"id":                 actorID + "#ed25519-key",
			"type":               "Multikey",
			"controller":         actorID,
			"publicKeyMultibase": a.Ed25519Public,
		}}
	}

	if len(a.IdentityProofs) > 0 {
		attachments := make([]map[string]any, 0, len(a.IdentityProofs)+len(a.PaymentOptions))
		for _, p := range a.IdentityProofs {
			attachments = append(attachments, map[string]any{
				"type":           "IdentityProof",
				"did":            p.Did,
				"signatureValue": p.Signature,
			})
		}
		person["attachment"] = attachments
	}
	if len(a.AliasURIs) > 0 {
		person["alsoKnownAs"] = a.AliasURIs
	}

	return person
}
