package web

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/fediglade/fediglade/builder"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/identity"
	"github.com/fediglade/fediglade/util"
	"github.com/google/uuid"
)

// authorityFor returns the server authority new JSON is rendered under.
// FEP-ef61 portable actors are rendered under their own did authority by
// the caller instead; every local handler in this package uses the
// server authority.
func authorityFor(conf *util.AppConfig) identity.Authority {
	return identity.ServerAuthority(conf.Conf.SslDomain)
}

// GetActor renders a local actor's Person document, or the instance actor
// when username equals conf.Conf.InstanceActorName.
func GetActor(username string, conf *util.AppConfig) (error, string) {
	err, actor := db.GetDB().ReadActorByUsername(username)
	if err != nil || actor == nil {
		return fmt.Errorf("actor %s not found", username), "{}"
	}

	bld := builder.New(db.GetDB(), conf.Conf.SslDomain, instanceURL(conf))
	person := bld.BuildPerson(actor, authorityFor(conf))
	person["@context"] = []string{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
	}

	jsonBytes, err := json.Marshal(person)
	if err != nil {
		log.Printf("failed to marshal actor %s: %v", username, err)
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

func instanceURL(conf *util.AppConfig) string {
	return fmt.Sprintf("https://%s", conf.Conf.SslDomain)
}

// GetInstanceActor renders the instance-wide actor used to sign anonymous
// fetches (spec.md 6), minted under /actor rather than /users/{name} even
// though it's stored as an ordinary local actor row.
func GetInstanceActor(conf *util.AppConfig) (error, string) {
	err, actor := db.GetDB().ReadActorByUsername(conf.Conf.InstanceActorName)
	if err != nil || actor == nil {
		return fmt.Errorf("instance actor not found: %w", err), "{}"
	}

	bld := builder.New(db.GetDB(), conf.Conf.SslDomain, instanceURL(conf))
	person := bld.BuildPerson(actor, authorityFor(conf))

	instanceID := identity.InstanceActorURI(conf.Conf.SslDomain)
	person["id"] = instanceID
	person["inbox"] = identity.InboxURI(instanceID)
	person["outbox"] = identity.OutboxURI(instanceID)
	delete(person, "followers")
	delete(person, "following")
	delete(person, "featured")
	delete(person, "subscribers")
	if key, ok := person["publicKey"].(map[string]any); ok {
		key["id"] = instanceID + "#main-key"
		key["owner"] = instanceID
	}
	person["@context"] = []string{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
	}

	jsonBytes, err := json.Marshal(person)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetObject renders a single post as a Note/Question AS2 object.
func GetObject(postID uuid.UUID, conf *util.AppConfig) (error, string) {
	bld := builder.New(db.GetDB(), conf.Conf.SslDomain, instanceURL(conf))
	note, err := bld.BuildNote(postID, authorityFor(conf))
	if err != nil {
		return err, "{}"
	}
	note["@context"] = "https://www.w3.org/ns/activitystreams"

	jsonBytes, err := json.Marshal(note)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetPortableActor renders a FEP-ef61 portable actor (identified by its
// did:key rather than a server-bound username) under the apgateway path,
// signing the document with the actor's own Ed25519 key (spec.md S6).
func GetPortableActor(did string, conf *util.AppConfig) (error, string) {
	errA, actor := db.GetDB().ReadActorByURI("ap://" + did + "/actor")
	if errA != nil || actor == nil {
		return fmt.Errorf("portable actor %s not found", did), "{}"
	}

	authority := identity.PortableAuthority(did)
	bld := builder.New(db.GetDB(), conf.Conf.SslDomain, instanceURL(conf))
	person := bld.BuildPerson(actor, authority)
	person["@context"] = []string{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
		"https://purl.archive.org/socialweb/webfinger",
	}

	if actor.Ed25519Private != "" {
		priv, err := identity.ParseEd25519PrivateKey(actor.Ed25519Private)
		if err == nil {
			verificationMethod := authority.ActorID(actor.Username) + "#ed25519-key"
			proof, err := identity.BuildIntegrityProof(person, verificationMethod, priv)
			if err == nil {
				person["proof"] = proof
			} else {
				log.Printf("portable actor %s: building integrity proof: %v", did, err)
			}
		}
	}

	jsonBytes, err := json.Marshal(person)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetEmojiObject renders the freshest tag of a custom emoji shortcode as a
// standalone Emoji object.
func GetEmojiObject(shortcode string, conf *util.AppConfig) (error, string) {
	err, e := db.GetDB().ReadEmojiByShortcode(shortcode)
	if err != nil || e == nil {
		return fmt.Errorf("emoji %s not found", shortcode), "{}"
	}
	obj := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       fmt.Sprintf("%s/objects/emojis/%s", instanceURL(conf), shortcode),
		"type":     "Emoji",
		"name":     ":" + e.Shortcode + ":",
		"updated":  e.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"icon":     map[string]any{"type": "Image", "url": e.IconURL},
	}
	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}
