package builder

import (
	"fmt"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/identity"
	"github.com/google/uuid"
)

// newActivityID mints a fresh activity id under the given actor, following
// the teacher's convention of deriving activity ids from the actor's own
// namespace rather than a separate collection.
func newActivityID(actorID string) string {
	return fmt.Sprintf("%s/activities/%s", actorID, uuid.New().String())
}

func wrap(activityType, actorID string, object any, to, cc []string) map[string]any {
	a := map[string]any{
		"id":        newActivityID(actorID),
		"type":      activityType,
		"actor":     actorID,
		"object":    object,
		"published": time.Now().UTC().Format(time.RFC3339),
	}
	if len(to) > 0 {
		a["to"] = to
	}
	if len(cc) > 0 {
		a["cc"] = cc
	}
	return a
}

// BuildCreate wraps a freshly built Note/Question in a Create activity,
// copying its to/cc so the activity and the object carry the same audience.
func (b *Builder) BuildCreate(postID uuid.UUID, authority identity.Authority) (map[string]any, error) {
	errP, post := b.DB.ReadPostById(postID)
	if errP != nil || post == nil {
		return nil, apperr.NotFound("post not found", errP)
	}
	errA, author := b.DB.ReadActorById(post.AuthorId)
	if errA != nil || author == nil {
		return nil, apperr.NotFound("post author not found", errA)
	}
	note, err := b.BuildNote(postID, authority)
	if err != nil {
		return nil, err
	}
	to, _ := note["to"].([]string)
	cc, _ := note["cc"].([]string)
	return wrap("Create", author.ActorURI, note, to, cc), nil
}

// BuildUpdateNote wraps an edited Note/Question in an Update activity.
func (b *Builder) BuildUpdateNote(postID uuid.UUID, authority identity.Authority) (map[string]any, error) {
	errP, post := b.DB.ReadPostById(postID)
	if errP != nil || post == nil {
		return nil, apperr.NotFound("post not found", errP)
	}
	errA, author := b.DB.ReadActorById(post.AuthorId)
	if errA != nil || author == nil {
		return nil, apperr.NotFound("post author not found", errA)
	}
	note, err := b.BuildNote(postID, authority)
	if err != nil {
		return nil, err
	}
	to, _ := note["to"].([]string)
	cc, _ := note["cc"].([]string)
	return wrap("Update", author.ActorURI, note, to, cc), nil
}

// BuildDeleteNote wraps a Tombstone for a removed post in a Delete activity.
func (b *Builder) BuildDeleteNote(objectURI, actorID string, to, cc []string) map[string]any {
	tombstone := map[string]any{
		"id":   objectURI,
		"type": "Tombstone",
	}
	return wrap("Delete", actorID, tombstone, to, cc)
}

// BuildAnnounce wraps a repost (Announce) of objectURI.
func (b *Builder) BuildAnnounce(actorID, objectURI string, to, cc []string) map[string]any {
	return wrap("Announce", actorID, objectURI, to, cc)
}

// BuildUndoAnnounce wraps the withdrawal of a prior Announce.
func (b *Builder) BuildUndoAnnounce(actorID string, announce map[string]any) map[string]any {
	return wrap("Undo", actorID, announce, nil, nil)
}

// BuildLike wraps a Like of objectURI.
func (b *Builder) BuildLike(actorID, objectURI string) map[string]any {
	return wrap("Like", actorID, objectURI, nil, nil)
}

// BuildUndoLike wraps the withdrawal of a prior Like.
func (b *Builder) BuildUndoLike(actorID string, like map[string]any) map[string]any {
	return wrap("Undo", actorID, like, nil, nil)
}

// BuildEmojiReact wraps a custom-emoji reaction, the supplemented feature
// from spec.md's SUPPLEMENTED FEATURES (EmojiReact).
func (b *Builder) BuildEmojiReact(actorID, objectURI, content string) map[string]any {
	a := wrap("EmojiReact", actorID, objectURI, nil, nil)
	a["content"] = content
	return a
}

// BuildFollow wraps a follow request.
func (b *Builder) BuildFollow(actorID, targetActorID string) map[string]any {
	return wrap("Follow", actorID, targetActorID, []string{targetActorID}, nil)
}

// BuildAccept wraps acceptance of a received Follow activity.
func (b *Builder) BuildAccept(actorID string, follow map[string]any) map[string]any {
	followActor, _ := follow["actor"].(string)
	var to []string
	if followActor != "" {
		to = []string{followActor}
	}
	return wrap("Accept", actorID, follow, to, nil)
}

// BuildReject wraps rejection of a received Follow activity.
func (b *Builder) BuildReject(actorID string, follow map[string]any) map[string]any {
	followActor, _ := follow["actor"].(string)
	var to []string
	if followActor != "" {
		to = []string{followActor}
	}
	return wrap("Reject", actorID, follow, to, nil)
}

// BuildUndoFollow wraps the withdrawal of a prior Follow.
func (b *Builder) BuildUndoFollow(actorID string, follow map[string]any) map[string]any {
	return wrap("Undo", actorID, follow, nil, nil)
}

// BuildAddFeatured wraps pinning a post to the actor's featured collection.
func (b *Builder) BuildAddFeatured(actorID, objectURI string) map[string]any {
	a := wrap("Add", actorID, objectURI, nil, nil)
	a["target"] = identity.FeaturedCollectionURI(actorID)
	return a
}

// BuildRemoveFeatured wraps unpinning a post.
func (b *Builder) BuildRemoveFeatured(actorID, objectURI string) map[string]any {
	a := wrap("Remove", actorID, objectURI, nil, nil)
	a["target"] = identity.FeaturedCollectionURI(actorID)
	return a
}

// BuildAddSubscriber wraps the supplemented subscribers-collection feature.
func (b *Builder) BuildAddSubscriber(actorID, subscriberActorID string) map[string]any {
	a := wrap("Add", actorID, subscriberActorID, nil, nil)
	a["target"] = identity.SubscribersURI(actorID)
	return a
}

// BuildUpdatePerson wraps a profile update for a local actor.
func (b *Builder) BuildUpdatePerson(person map[string]any) map[string]any {
	actorID, _ := person["id"].(string)
	return wrap("Update", actorID, person, []string{identity.ActivityStreamsPublic}, nil)
}

// BuildDeletePerson wraps account deletion.
func (b *Builder) BuildDeletePerson(actorID string) map[string]any {
	tombstone := map[string]any{
		"id":   actorID,
		"type": "Tombstone",
	}
	return wrap("Delete", actorID, tombstone, []string{identity.ActivityStreamsPublic}, nil)
}

// BuildMove wraps the supplemented alsoKnownAs migration feature: notifies
// followers that actorID has relocated to targetActorID.
func (b *Builder) BuildMove(actorID, targetActorID string) map[string]any {
	a := wrap("Move", actorID, targetActorID, []string{identity.ActivityStreamsPublic}, nil)
	a["target"] = targetActorID
	return a
}
