package builder

import (
	"fmt"
	"strings"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/identity"
	"github.com/google/uuid"
)

const linkRelMisskeyQuote = "https://misskey-hub.net/ns#_misskey_quote"

// BuildNote renders a post as a canonical Note (or Question, for polls) AS2
// object, the mirror image of importer.CreateRemotePost. Grounded on
// mitra_activitypub's build_note (original_source/mitra_activitypub/src/
// builders/note.rs): audience from visibility, mention/hashtag/link/emoji
// tags, attachment digests, and the replies/context collection URLs.
func (b *Builder) BuildNote(postID uuid.UUID, authority identity.Authority) (map[string]any, error) {
	errP, post := b.DB.ReadPostById(postID)
	if errP != nil || post == nil {
		return nil, apperr.NotFound("post not found", errP)
	}
	errA, author := b.DB.ReadActorById(post.AuthorId)
	if errA != nil || author == nil {
		return nil, apperr.NotFound("post author not found", errA)
	}

	objectID := authority.ObjectID(post.Id.String())
	actorID := authority.ActorID(author.Username)
	objectType := "Note"

	_, attachments := b.DB.ReadAttachmentsByPost(postID)
	renderedAttachments := make([]map[string]any, 0, len(attachments))
	for _, a := range attachments {
		renderedAttachments = append(renderedAttachments, map[string]any{
			"type":            attachmentType(a.MediaType),
			"name":            a.Name,
			"mediaType":       a.MediaType,
			"url":             a.URL,
			"digestMultibase": a.DigestMultibase,
		})
	}

	var primary, secondary []string
	followersID := identity.FollowersURI(actorID)
	subscribersID := identity.SubscribersURI(actorID)
	switch post.Visibility {
	case domain.VisibilityPublic:
		primary = append(primary, identity.ActivityStreamsPublic)
		secondary = append(secondary, followersID)
	case domain.VisibilityFollowers:
		primary = append(primary, followersID)
	case domain.VisibilitySubscribers:
		primary = append(primary, subscribersID)
	case domain.VisibilityConversation, domain.VisibilityDirect:
		// addressed explicitly via mentions below
	}

	var oneOf, anyOf []map[string]any
	var endTime *time.Time
	if post.IsPoll {
		objectType = "Question"
		errO, options := b.DB.ReadPollOptions(postID)
		if errO == nil {
			for _, o := range options {
				oneOf = append(oneOf, map[string]any{
					"type": "Note",
					"name": o.Name,
					"replies": map[string]any{
						"type":       "Collection",
						"totalItems": o.Votes,
					},
				})
			}
		}
		endTime = post.PollEndTime
	}

	var tags []map[string]any
	_, mentions := b.DB.ReadMentionsByPost(postID)
	for _, mentionedID := range mentions {
		errM, mentioned := b.DB.ReadActorById(mentionedID)
		if errM != nil || mentioned == nil {
			continue
		}
		mentionedActorID := mentioned.ActorURI
		if !contains(primary, mentionedActorID) {
			primary = append(primary, mentionedActorID)
		}
		tags = append(tags, map[string]any{
			"type": "Mention",
			"name": "@" + mentioned.Acct(),
			"href": mentionedActorID,
		})
	}

	_, hashtags := b.DB.ReadHashtagsByPost(postID)
	for _, tagName := range hashtags {
		tags = append(tags, map[string]any{
			"type": "Hashtag",
			"name": "#" + tagName,
			"href": fmt.Sprintf("%s/tags/%s", b.InstanceURL, tagName),
		})
	}

	_, links := b.DB.ReadLinksByPost(postID)
	var quoteURL string
	for i, linkedID := range links {
		errL, linked := b.DB.ReadPostById(linkedID)
		if errL != nil || linked == nil {
			continue
		}
		if i == 0 {
			quoteURL = linked.ObjectURI
		}
		if !b.FepE232Enabled {
			continue
		}
		rel := []string{}
		if i == 0 {
			rel = []string{linkRelMisskeyQuote}
		}
		tags = append(tags, map[string]any{
			"type":      "Link",
			"href":      linked.ObjectURI,
			"mediaType": "application/activity+json",
			"rel":       rel,
		})
	}

	_, emojis := b.DB.ReadEmojisByPost(postID)
	for _, e := range emojis {
		tags = append(tags, map[string]any{
			"type":    "Emoji",
			"name":    ":" + e.Shortcode + ":",
			"updated": e.UpdatedAt.UTC().Format(time.RFC3339),
			"icon": map[string]any{
				"type": "Image",
				"url":  e.IconURL,
			},
		})
	}

	var inReplyTo string
	if post.InReplyTo != nil {
		errR, parent := b.DB.ReadPostById(*post.InReplyTo)
		if errR == nil && parent != nil {
			inReplyTo = parent.ObjectURI
			if parent.AuthorId != post.AuthorId {
				errPA, parentAuthor := b.DB.ReadActorById(parent.AuthorId)
				if errPA == nil && parentAuthor != nil && !contains(primary, parentAuthor.ActorURI) {
					primary = append(primary, parentAuthor.ActorURI)
				}
			}
			if post.Visibility == domain.VisibilityConversation {
				errC, conv := b.DB.ReadConversationById(parent.ConversationId)
				if errC == nil && conv != nil && conv.Audience != nil && !contains(primary, *conv.Audience) {
					primary = append(primary, *conv.Audience)
				}
				// Replies to a Followers-only parent within a Conversation
				// thread also reach that parent's followers collection, a
				// deliberately kept legacy broadening rule (see DESIGN.md
				// "Open Questions resolved").
				if parent.Visibility == domain.VisibilityFollowers {
					errPA, parentAuthor := b.DB.ReadActorById(parent.AuthorId)
					if errPA == nil && parentAuthor != nil {
						pf := identity.FollowersURI(parentAuthor.ActorURI)
						if !contains(primary, pf) {
							primary = append(primary, pf)
						}
					}
				}
			}
		}
	}

	var contextCollection string
	if post.InReplyTo == nil {
		contextCollection = identity.ConversationCollectionURI(b.InstanceHostname, post.ConversationId.String())
	}

	note := map[string]any{
		"id":           objectID,
		"type":         objectType,
		"attributedTo": actorID,
		"content":      post.Content,
		"sensitive":    post.IsSensitive,
		"to":           primary,
		"cc":           secondary,
		"published":    post.CreatedAt.UTC().Format(time.RFC3339),
		"replies":      identity.RepliesCollectionURI(objectID),
	}
	if len(renderedAttachments) > 0 {
		note["attachment"] = renderedAttachments
	}
	if len(tags) > 0 {
		note["tag"] = tags
	}
	if inReplyTo != "" {
		note["inReplyTo"] = inReplyTo
	}
	if contextCollection != "" {
		note["context"] = contextCollection
	}
	if quoteURL != "" {
		note["quoteUrl"] = quoteURL
	}
	if len(oneOf) > 0 {
		note["oneOf"] = oneOf
	}
	if len(anyOf) > 0 {
		note["anyOf"] = anyOf
	}
	if endTime != nil {
		note["endTime"] = endTime.UTC().Format(time.RFC3339)
	}
	if post.UpdatedAt != nil {
		note["updated"] = post.UpdatedAt.UTC().Format(time.RFC3339)
	}

	return note, nil
}

func attachmentType(mediaType string) string {
	if strings.HasPrefix(mediaType, "image/") {
		return "Image"
	}
	if strings.HasPrefix(mediaType, "video/") {
		return "Video"
	}
	if strings.HasPrefix(mediaType, "audio/") {
		return "Audio"
	}
	return "Document"
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
