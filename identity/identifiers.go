package identity

import "fmt"

// LocalActorURI returns the canonical id of a local actor minted under instance.
func LocalActorURI(instance, username string) string {
	return fmt.Sprintf("https://%s/users/%s", instance, username)
}

// LocalObjectURI returns the canonical id of a local post.
func LocalObjectURI(instance, objectID string) string {
	return fmt.Sprintf("https://%s/objects/%s", instance, objectID)
}

func InboxURI(actorURI string) string              { return actorURI + "/inbox" }
func OutboxURI(actorURI string) string              { return actorURI + "/outbox" }
func FollowersURI(actorURI string) string           { return actorURI + "/followers" }
func FollowingURI(actorURI string) string           { return actorURI + "/following" }
func SubscribersURI(actorURI string) string         { return actorURI + "/subscribers" }
func FeaturedCollectionURI(actorURI string) string  { return actorURI + "/collections/featured" }
func RepliesCollectionURI(objectURI string) string  { return objectURI + "/replies" }
func ConversationCollectionURI(instance, conversationID string) string {
	return fmt.Sprintf("https://%s/collections/conversations/%s", instance, conversationID)
}

// InstanceActorURI returns the id of the instance actor used to sign
// anonymous fetches.
func InstanceActorURI(instance string) string {
	return fmt.Sprintf("https://%s/actor", instance)
}

// SharedInboxURI returns the one inbox every local actor advertises in its
// endpoints.sharedInbox, letting remote servers coalesce deliveries to
// several of this instance's actors into a single POST (spec.md 4.G).
func SharedInboxURI(instance string) string {
	return fmt.Sprintf("https://%s/inbox", instance)
}

// PortableActorURI prefixes the apgateway path for FEP-ef61 portable actors.
func PortableActorURI(instance, did string) string {
	return fmt.Sprintf("https://%s/.well-known/apgateway/%s", instance, did)
}

const ActivityStreamsPublic = "https://www.w3.org/ns/activitystreams#Public"
