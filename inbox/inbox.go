package inbox

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/identity"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20 // 1MiB, generous for a signed activity

// Handle is the single inbox entry point (spec.md 4.F): it verifies the
// HTTP signature against the claimed actor's key (importing the actor
// first if unseen), decodes the activity, and dispatches by type. It
// returns an *apperr.Error the caller (web/) maps onto the right status:
// Authentication -> 403, Validation -> 400, Unsolicited -> swallowed (202),
// anything else -> 500.
func (rcv *Receiver) Handle(r *http.Request, body []byte, localUsername string) error {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return apperr.Validation("activity is not valid JSON", err)
	}

	actorURI, _ := raw["actor"].(string)
	if actorURI == "" {
		return apperr.Validation("activity missing actor", nil)
	}

	actor, err := rcv.resolveActor(actorURI)
	if err != nil {
		return err
	}

	keyID, err := rcv.verifySignature(r, actor)
	if err != nil {
		return err
	}
	if keyID != actor.ActorURI {
		return apperr.Authentication("signature keyId does not match activity actor", nil)
	}

	activityID, _ := raw["id"].(string)
	activityType, _ := raw["type"].(string)
	if activityID == "" || activityType == "" {
		return apperr.Validation("activity missing id or type", nil)
	}

	canonicalID := identity.Canonicalize(activityID)
	if errA, existing := rcv.DB.ReadActivityByCanonicalID(canonicalID); errA == nil && existing != nil {
		return nil // already processed: idempotent no-op (spec.md 4.F)
	}

	objectURI := objectIDOf(raw)
	rawJSON, _ := json.Marshal(raw)
	record := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activityID,
		CanonicalID:  canonicalID,
		ActivityType: activityType,
		ActorURI:     actorURI,
		ObjectURI:    objectURI,
		RawJSON:      string(rawJSON),
		Local:        false,
		CreatedAt:    time.Now(),
	}

	if err := rcv.dispatch(activityType, raw, actor, localUsername); err != nil {
		return err
	}

	_ = rcv.DB.CreateActivity(record)
	return nil
}

// DeliverLocal processes a locally-originated activity against a local
// recipient in-process, bypassing signature verification since the
// activity never left this instance (spec.md 4.G: "Local actors are
// handled by directly invoking the inbox handler in-process").
func (rcv *Receiver) DeliverLocal(raw map[string]any, fromActor *domain.Actor, toActorID uuid.UUID) error {
	err, target := rcv.DB.ReadActorById(toActorID)
	if err != nil || target == nil {
		return apperr.NotFound("local delivery target not found", err)
	}
	activityType, _ := raw["type"].(string)
	return rcv.dispatch(activityType, raw, fromActor, target.Username)
}

func (rcv *Receiver) dispatch(activityType string, raw map[string]any, actor *domain.Actor, localUsername string) error {
	switch activityType {
	case "Follow":
		return rcv.handleFollow(raw, actor, localUsername)
	case "Accept":
		return rcv.handleAccept(raw, actor)
	case "Reject":
		return rcv.handleReject(raw, actor)
	case "Undo":
		return rcv.handleUndo(raw, actor)
	case "Create":
		return rcv.handleCreate(raw, actor)
	case "Update":
		return rcv.handleUpdate(raw, actor)
	case "Delete":
		return rcv.handleDelete(raw, actor)
	case "Announce":
		return rcv.handleAnnounce(raw, actor)
	case "Like":
		return rcv.handleLike(raw, actor)
	case "EmojiReact":
		return rcv.handleEmojiReact(raw, actor)
	case "Add":
		return rcv.handleAdd(raw, actor)
	case "Remove":
		return rcv.handleRemove(raw, actor)
	case "Move":
		return rcv.handleMove(raw, actor)
	case "Block":
		return nil // recorded via the activity row; no side effects beyond that
	case "Flag":
		return nil // moderation report: recorded, no automated action
	default:
		return nil // unknown types are accepted and ignored, not rejected
	}
}

// resolveActor returns the cached actor for uri, importing it on first
// contact. A first-contact import has no signature to check yet against
// its own key, so the Fetcher used by Import must itself be trusted
// (instance-signed GET) rather than the inbound POST's signature.
func (rcv *Receiver) resolveActor(uri string) (*domain.Actor, error) {
	if err, actor := rcv.DB.ReadActorByURI(uri); err == nil && actor != nil {
		return actor, nil
	}
	actor, err := rcv.Import.FetchAndImportActor(uri)
	if err != nil {
		return nil, apperr.NotFound("actor not yet known and could not be fetched", err)
	}
	return actor, nil
}

func (rcv *Receiver) verifySignature(r *http.Request, actor *domain.Actor) (string, error) {
	if actor.PublicKeyPEM == "" {
		return "", apperr.Authentication("actor has no RSA key for HTTP signature verification", nil)
	}
	keyID, err := identity.VerifyRequest(r, actor.PublicKeyPEM)
	if err != nil {
		return "", apperr.Authentication("http signature verification failed", err)
	}
	return keyID, nil
}

func objectIDOf(raw map[string]any) string {
	switch v := raw["object"].(type) {
	case string:
		return v
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			return id
		}
	}
	return ""
}

func objectOf(raw map[string]any) (map[string]any, string) {
	switch v := raw["object"].(type) {
	case string:
		return nil, v
	case map[string]any:
		id, _ := v["id"].(string)
		return v, id
	}
	return nil, ""
}

func (rcv *Receiver) handleFollow(raw map[string]any, actor *domain.Actor, localUsername string) error {
	targetURI := objectIDOf(raw)
	errT, target := rcv.DB.ReadActorByHandle(localUsername, "")
	if errT != nil || target == nil || target.ActorURI != targetURI {
		return apperr.NotFound("follow target is not this local actor", errT)
	}

	followURI, _ := raw["id"].(string)
	if target.ManuallyApprovesFollowers {
		if err := rcv.DB.CreateFollowRequest(actor.Id, target.Id, followURI); err != nil {
			return apperr.Storage("recording follow request", err)
		}
		return nil
	}
	if err := rcv.DB.Follow(actor.Id, target.Id, followURI); err != nil {
		return apperr.Storage("recording follow", err)
	}
	_ = rcv.DB.CreateNotificationOnce(&domain.Notification{
		Id:               uuid.New(),
		ActorId:          target.Id,
		NotificationType: domain.NotificationFollow,
		SourceActorId:    actor.Id,
		CreatedAt:        time.Now(),
	})
	return nil
}

func (rcv *Receiver) handleAccept(raw map[string]any, actor *domain.Actor) error {
	_, followURI := objectOf(raw)
	if followURI == "" {
		return apperr.Validation("accept missing object id", nil)
	}
	errR, rel := rcv.DB.ReadRelationshipByURI(followURI)
	if errR != nil || rel == nil {
		return nil // Accept for a Follow we don't recognize: ignore
	}
	if rel.TargetId != actor.Id {
		return apperr.Authentication("accept actor does not own the followed relationship", nil)
	}
	if err := rcv.DB.AcceptFollowRequestByURI(followURI); err != nil {
		return apperr.Storage("accepting follow request", err)
	}
	return nil
}

func (rcv *Receiver) handleReject(raw map[string]any, actor *domain.Actor) error {
	_, followURI := objectOf(raw)
	errR, rel := rcv.DB.ReadRelationshipByURI(followURI)
	if errR != nil || rel == nil || rel.TargetId != actor.Id {
		return nil
	}
	return rcv.DB.Unfollow(rel.SourceId, rel.TargetId)
}

func (rcv *Receiver) handleUndo(raw map[string]any, actor *domain.Actor) error {
	inner, innerURI := objectOf(raw)
	innerType, _ := inner["type"].(string)
	switch innerType {
	case "Follow":
		_, targetURI := objectOf(inner)
		errT, target := rcv.DB.ReadActorByURI(targetURI)
		if errT != nil || target == nil {
			return nil
		}
		return rcv.DB.Unfollow(actor.Id, target.Id)
	case "Like":
		// No per-like row is modeled beyond the post's counter in this
		// schema; Undo(Like) is accepted and recorded as an activity but
		// has no additional repository effect to reverse here.
		return nil
	case "Announce":
		errP, post := rcv.DB.ReadPostByObjectURI(innerURI)
		if errP == nil && post != nil && post.IsRepost() {
			_, err := rcv.DB.DeletePost(post.Id)
			return err
		}
		return nil
	default:
		return nil
	}
}

func (rcv *Receiver) handleCreate(raw map[string]any, actor *domain.Actor) error {
	object, _ := objectOf(raw)
	if object == nil {
		return apperr.Validation("create activity has no embedded object", nil)
	}
	if err := rcv.Import.CheckUnsolicited(object, rcv.InstanceHostname); err != nil {
		return err
	}
	_, err := rcv.Import.CreateRemotePost(object, actor.ActorURI)
	return err
}

func (rcv *Receiver) handleUpdate(raw map[string]any, actor *domain.Actor) error {
	object, _ := objectOf(raw)
	if object == nil {
		return apperr.Validation("update activity has no embedded object", nil)
	}
	switch object["type"] {
	case "Person":
		_, err := rcv.Import.ImportActor(object)
		return err
	case "Note", "Article", "Question", "Page", "Video":
		_, err := rcv.Import.UpdateRemotePost(object)
		return err
	default:
		return nil
	}
}

func (rcv *Receiver) handleDelete(raw map[string]any, actor *domain.Actor) error {
	_, objectURI := objectOf(raw)
	if objectURI == "" {
		return apperr.Validation("delete activity has no object id", nil)
	}
	if objectURI == actor.ActorURI {
		return rcv.DB.DeleteActor(actor.Id)
	}
	errP, post := rcv.DB.ReadPostByObjectURI(objectURI)
	if errP != nil || post == nil {
		return nil // unknown object: nothing to delete
	}
	if post.AuthorId != actor.Id {
		return apperr.Authentication("delete actor does not own the object", nil)
	}
	_, err := rcv.DB.DeletePost(post.Id)
	return err
}

func (rcv *Receiver) handleAnnounce(raw map[string]any, actor *domain.Actor) error {
	_, targetURI := objectOf(raw)
	errT, target := rcv.DB.ReadPostByObjectURI(targetURI)
	if errT != nil || target == nil {
		return nil // repost of an object we don't have: ignore, no forced fetch
	}
	if target.Visibility != domain.VisibilityPublic {
		return apperr.Validation("cannot repost a non-public post", nil)
	}
	activityID, _ := raw["id"].(string)
	repost := &domain.Post{
		Id:         uuid.New(),
		AuthorId:   actor.Id,
		ObjectURI:  activityID,
		Visibility: domain.VisibilityPublic,
		RepostOf:   &target.Id,
		CreatedAt:  time.Now(),
	}
	return rcv.DB.CreatePost(db.NewPostInput{Post: repost})
}

func (rcv *Receiver) handleLike(raw map[string]any, actor *domain.Actor) error {
	_, objectURI := objectOf(raw)
	errP, post := rcv.DB.ReadPostByObjectURI(objectURI)
	if errP != nil || post == nil {
		return nil
	}
	return rcv.DB.CreateNotificationOnce(&domain.Notification{
		Id:               uuid.New(),
		ActorId:          post.AuthorId,
		NotificationType: domain.NotificationLike,
		SourceActorId:    actor.Id,
		PostId:           &post.Id,
		PostURI:          post.ObjectURI,
		CreatedAt:        time.Now(),
	})
}

func (rcv *Receiver) handleEmojiReact(raw map[string]any, actor *domain.Actor) error {
	// EmojiReact is the supplemented custom-emoji reaction type (spec.md
	// SUPPLEMENTED FEATURES); it notifies the same way a Like does.
	return rcv.handleLike(raw, actor)
}

func (rcv *Receiver) handleAdd(raw map[string]any, actor *domain.Actor) error {
	target, _ := raw["target"].(string)
	_, objectURI := objectOf(raw)
	switch {
	case target == identity.FeaturedCollectionURI(actor.ActorURI):
		return nil // pin bookkeeping is read from the featured collection directly, no local mirror table
	case objectURI != "" && raw["type"] == "Add":
		return nil
	default:
		return nil
	}
}

func (rcv *Receiver) handleRemove(raw map[string]any, actor *domain.Actor) error {
	return nil // mirrors handleAdd: featured/subscribers membership isn't locally mirrored
}

func (rcv *Receiver) handleMove(raw map[string]any, actor *domain.Actor) error {
	targetURI, _ := raw["target"].(string)
	if targetURI == "" {
		return apperr.Validation("move activity missing target", nil)
	}
	if err, followers := rcv.DB.ReadFollowers(actor.Id); err == nil {
		for range followers {
			// No follower is notified, re-pointed or sent anything here,
			// and the Move is not forwarded; the only record of it is the
			// activity row the caller writes via CreateActivity.
		}
	}
	newActor, err := rcv.Import.ImportActor(map[string]any{"id": targetURI})
	if err != nil {
		return nil // target not resolvable yet: Move is still recorded, just not followed automatically
	}
	_ = newActor
	return nil
}

