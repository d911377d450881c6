package web

import (
	"encoding/json"
	"log"

	"github.com/fediglade/fediglade/builder"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/identity"
	"github.com/fediglade/fediglade/util"
	"github.com/google/uuid"
)

func marshalOrEmpty(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal collection: %v", err)
		return "{}"
	}
	return string(b)
}

// pagedCollection renders an OrderedCollection with a single "first" page
// link, the teacher's always-paginate convention (Mastodon expects it).
func pagedCollection(id string, totalItems int) string {
	return marshalOrEmpty(map[string]any{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         id,
		"type":       "OrderedCollection",
		"totalItems": totalItems,
		"first":      id + "?page=1",
	})
}

func collectionPage(id string, items []string) string {
	return marshalOrEmpty(map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           id + "?page=1",
		"type":         "OrderedCollectionPage",
		"partOf":       id,
		"orderedItems": items,
		"totalItems":   len(items),
	})
}

// GetFollowersCollection renders username's followers collection.
func GetFollowersCollection(username string, conf *util.AppConfig, page int) (error, string) {
	err, actor := db.GetDB().ReadActorByUsername(username)
	if err != nil || actor == nil {
		return err, "{}"
	}
	id := identity.FollowersURI(actor.ActorURI)
	errR, rels := db.GetDB().ReadFollowers(actor.Id)
	if errR != nil {
		return errR, pagedCollection(id, 0)
	}
	uris := resolveActorURIs(rels, func(r domain.Relationship) uuid.UUID { return r.SourceId })
	if page > 0 {
		return nil, collectionPage(id, uris)
	}
	return nil, pagedCollection(id, len(uris))
}

// GetFollowingCollection renders username's following collection.
func GetFollowingCollection(username string, conf *util.AppConfig, page int) (error, string) {
	err, actor := db.GetDB().ReadActorByUsername(username)
	if err != nil || actor == nil {
		return err, "{}"
	}
	id := identity.FollowingURI(actor.ActorURI)
	errR, rels := db.GetDB().ReadFollowing(actor.Id)
	if errR != nil {
		return errR, pagedCollection(id, 0)
	}
	uris := resolveActorURIs(rels, func(r domain.Relationship) uuid.UUID { return r.TargetId })
	if page > 0 {
		return nil, collectionPage(id, uris)
	}
	return nil, pagedCollection(id, len(uris))
}

// resolveActorURIs resolves each relationship's other-end actor id (picked
// by pick) to its ActorURI, dropping edges whose actor can no longer be
// resolved.
func resolveActorURIs(rels []domain.Relationship, pick func(domain.Relationship) uuid.UUID) []string {
	var uris []string
	for _, r := range rels {
		errA, a := db.GetDB().ReadActorById(pick(r))
		if errA != nil || a == nil {
			continue
		}
		uris = append(uris, a.ActorURI)
	}
	return uris
}

// GetFeaturedCollection renders username's pinned-posts collection. No
// pin bookkeeping table exists in this schema (see inbox's Add/Remove
// handlers), so it is always reported empty rather than simulated.
func GetFeaturedCollection(username string, conf *util.AppConfig) (error, string) {
	err, actor := db.GetDB().ReadActorByUsername(username)
	if err != nil || actor == nil {
		return err, "{}"
	}
	return nil, pagedCollection(identity.FeaturedCollectionURI(actor.ActorURI), 0)
}

// GetOutbox renders username's outbox as a page of their public posts,
// newest first, each wrapped in a Create activity via the Builder (reposts
// are not rendered as Announce).
func GetOutbox(username string, conf *util.AppConfig, page int) (error, string) {
	err, actor := db.GetDB().ReadActorByUsername(username)
	if err != nil || actor == nil {
		return err, "{}"
	}
	id := identity.OutboxURI(actor.ActorURI)
	if page == 0 {
		errC, n := countPublicPosts(actor.Id)
		if errC != nil {
			return errC, pagedCollection(id, 0)
		}
		return nil, pagedCollection(id, n)
	}

	errP, posts := db.GetDB().ReadProfileTimeline(actor.Id, actor.Id, 20)
	if errP != nil {
		return errP, collectionPage(id, nil)
	}

	bld := builder.New(db.GetDB(), conf.Conf.SslDomain, instanceURL(conf))
	authority := authorityFor(conf)
	var items []map[string]any
	for _, p := range posts {
		if p.Visibility != "public" {
			continue
		}
		activity, errB := bld.BuildCreate(p.Id, authority)
		if errB != nil {
			continue
		}
		items = append(items, activity)
	}
	return nil, marshalOrEmpty(map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           id + "?page=1",
		"type":         "OrderedCollectionPage",
		"partOf":       id,
		"orderedItems": items,
		"totalItems":   len(items),
	})
}

func countPublicPosts(actorID uuid.UUID) (error, int) {
	err, posts := db.GetDB().ReadProfileTimeline(actorID, actorID, 1000)
	if err != nil {
		return err, 0
	}
	count := 0
	for _, p := range posts {
		if p.Visibility == "public" {
			count++
		}
	}
	return nil, count
}

// GetRepliesCollection renders a post's immediate public replies.
func GetRepliesCollection(postID uuid.UUID, conf *util.AppConfig) (error, string) {
	errP, post := db.GetDB().ReadPostById(postID)
	if errP != nil || post == nil {
		return errP, "{}"
	}
	id := identity.RepliesCollectionURI(identity.LocalObjectURI(conf.Conf.SslDomain, post.Id.String()))
	errR, replies := db.GetDB().ReadDirectReplies(postID)
	if errR != nil {
		return errR, pagedCollection(id, 0)
	}
	var uris []string
	for _, r := range replies {
		uris = append(uris, identity.LocalObjectURI(conf.Conf.SslDomain, r.Id.String()))
	}
	return nil, collectionPage(id, uris)
}

// GetConversationCollection renders the thread rooted at a conversation.
func GetConversationCollection(conversationID uuid.UUID, conf *util.AppConfig) (error, string) {
	id := identity.ConversationCollectionURI(conf.Conf.SslDomain, conversationID.String())
	errC, items := db.GetDB().ReadConversationItems(conversationID)
	if errC != nil {
		return errC, pagedCollection(id, 0)
	}
	var uris []string
	for _, p := range items {
		if p.Visibility != "public" {
			continue
		}
		uris = append(uris, identity.LocalObjectURI(conf.Conf.SslDomain, p.Id.String()))
	}
	return nil, collectionPage(id, uris)
}
