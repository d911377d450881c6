package importer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// FetchAndImportActor fetches uri as an actor document (signed with the
// instance's own key, since there is no local actor to fetch as yet) and
// imports it. Used for first-contact resolution of an actor unknown to
// this instance (spec.md 4.F).
func (im *Importer) FetchAndImportActor(uri string) (*domain.Actor, error) {
	raw, _, err := im.Fetch.Fetch(uri, nil)
	if err != nil {
		return nil, err
	}
	return im.ImportActor(raw)
}

// ImportActor parses a fetched remote actor document into an Actor record
// and persists it: creates a new row, or updates the existing one by
// canonical id. On conflict by acct alone (same username@hostname claimed
// by a different id — an account migration or a re-key), the stale row is
// renamed (its username gets a "-stale-" suffix plus the first 8 characters
// of its id) so the new row can take the handle; the stale row's acct is
// not nulled.
func (im *Importer) ImportActor(raw map[string]any) (*domain.Actor, error) {
	id, _ := raw["id"].(string)
	if id == "" {
		return nil, apperr.Validation("actor document missing id", nil)
	}

	hostname, err := hostnameOf(id)
	if err != nil {
		return nil, apperr.Validation("actor id has no extractable hostname", err)
	}

	a := &domain.Actor{
		ActorURI: id,
		Hostname: &hostname,
		Kind:     actorKind(raw),
	}
	a.Username = stringField(raw, "preferredUsername")
	if a.Username == "" {
		a.Username = usernameFromID(id)
	}
	a.DisplayName = stringField(raw, "name")
	a.Summary = stringField(raw, "summary")
	a.InboxURI = stringField(raw, "inbox")
	a.OutboxURI = stringField(raw, "outbox")
	if endpoints, ok := raw["endpoints"].(map[string]any); ok {
		a.SharedInboxURI = stringField(endpoints, "sharedInbox")
	}
	a.FollowersURI = stringField(raw, "followers")
	a.FollowingURI = stringField(raw, "following")
	a.FeaturedURI = firstString(raw, "featured", "")
	if subs, ok := raw["subscribers"].(string); ok {
		a.SubscribersURI = subs
	}
	a.AvatarURL = iconURL(raw, "icon")
	a.BannerURL = iconURL(raw, "image")
	a.ManuallyApprovesFollowers, _ = raw["manuallyApprovesFollowers"].(bool)

	if pk, ok := raw["publicKey"].(map[string]any); ok {
		a.PublicKeyPEM = stringField(pk, "publicKeyPem")
	}
	if a.PublicKeyPEM == "" {
		if methods, ok := raw["assertionMethod"].([]any); ok {
			for _, m := range methods {
				if mm, ok := m.(map[string]any); ok {
					if pkm, ok := mm["publicKeyMultibase"].(string); ok {
						a.Ed25519Public = pkm
					}
				}
			}
		}
	}

	if a.PublicKeyPEM == "" && a.Ed25519Public == "" {
		return nil, apperr.Validation("remote actor has no usable public key", nil)
	}

	a.AliasURIs = stringSlice(raw["alsoKnownAs"])

	a.IdentityProofs, a.PaymentOptions = parseAttachments(raw["attachment"])

	raw256, err := json.Marshal(raw)
	if err != nil {
		return nil, apperr.Storage("marshaling remote actor document", err)
	}
	rawMsg := json.RawMessage(raw256)
	a.RemoteJSON = &rawMsg
	a.LastFetchedAt = time.Now()

	err2, existing := im.DB.ReadActorByURI(id)
	if err2 == nil && existing != nil {
		a.Id = existing.Id
		a.CreatedAt = existing.CreatedAt
		a.FollowerCount = existing.FollowerCount
		a.FollowingCount = existing.FollowingCount
		a.PostCount = existing.PostCount
		if err := im.DB.UpdateActor(a); err != nil {
			return nil, apperr.Storage("updating remote actor", err)
		}
		return a, nil
	}

	if errHandle, byHandle := im.DB.ReadActorByHandle(a.Username, hostname); errHandle == nil && byHandle != nil && byHandle.ActorURI != id {
		// Same acct claimed by a different id: this is a re-key or
		// migration. Move the stale acct by renaming it out of the way so
		// the unique (username, hostname) constraint doesn't block the
		// new row, then write the new actor fresh.
		stale := *byHandle
		stale.Username = stale.Username + "-stale-" + stale.Id.String()[:8]
		_ = im.DB.UpdateActor(&stale)
	}

	a.Id = uuid.New()
	a.CreatedAt = time.Now()
	if err := im.DB.CreateActor(a); err != nil {
		return nil, apperr.Storage("creating remote actor", err)
	}
	return a, nil
}

func actorKind(raw map[string]any) domain.ActorKind {
	switch stringField(raw, "type") {
	case "Service":
		return domain.ActorService
	case "Application":
		return domain.ActorApplication
	case "Group":
		return domain.ActorGroup
	default:
		return domain.ActorPerson
	}
}

func hostnameOf(rawID string) (string, error) {
	if strings.HasPrefix(rawID, "ap://") {
		rest := strings.TrimPrefix(rawID, "ap://")
		if idx := strings.Index(rest, "/"); idx >= 0 {
			return rest[:idx], nil
		}
		return rest, nil
	}
	u, err := url.Parse(rawID)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("cannot extract hostname from %q", rawID)
	}
	return u.Host, nil
}

func usernameFromID(rawID string) string {
	parts := strings.Split(strings.TrimRight(rawID, "/"), "/")
	return parts[len(parts)-1]
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func firstString(m map[string]any, key, fallback string) string {
	if v := stringField(m, key); v != "" {
		return v
	}
	return fallback
}

func iconURL(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case map[string]any:
		return stringField(v, "url")
	case []any:
		for _, item := range v {
			if mm, ok := item.(map[string]any); ok {
				if u := stringField(mm, "url"); u != "" {
					return u
				}
			}
		}
	}
	return ""
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case string:
		return []string{vv}
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// parseAttachments splits an actor's attachment array into identity proofs
// (IdentityProof / VerifiableIdentityStatement) and opaque payment-option
// attachments (everything else — PropertyValue, Link, Note — stored
// verbatim per spec.md 3's "open polymorphism" design note).
func parseAttachments(v any) ([]domain.IdentityProof, []json.RawMessage) {
	items, ok := v.([]any)
	if !ok {
		return nil, nil
	}

	var proofs []domain.IdentityProof
	var opaque []json.RawMessage
	for _, item := range items {
		mm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch stringField(mm, "type") {
		case "IdentityProof", "VerifiableIdentityStatement":
			p := domain.IdentityProof{
				Did:       stringField(mm, "did"),
				Signature: stringField(mm, "signatureValue"),
			}
			if p.Did == "" {
				p.Did = stringField(mm, "subject")
			}
			proofs = append(proofs, p)
		default:
			if raw, err := json.Marshal(mm); err == nil {
				opaque = append(opaque, raw)
			}
		}
	}
	return proofs, opaque
}
