package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

var contentPolicy = bluemonday.UGCPolicy()

// CreateRemotePost is the create_remote_post entry point (spec.md 4.D): it
// turns a fetched AS2 object into a Post row, recursively resolving its
// inReplyTo chain up to MaxReplyDepth, downloading attachments, resolving
// mentions/hashtags/emoji/links, and inferring visibility from to/cc.
// It does not apply the S4 unsolicited-message guard (the Inbox Receiver
// calls CheckUnsolicited for that); CreateRemotePost itself always
// enforces origin-match.
func (im *Importer) CreateRemotePost(raw map[string]any, receivedFromActorID string) (*domain.Post, error) {
	return im.importPost(raw, receivedFromActorID, 0)
}

func (im *Importer) importPost(raw map[string]any, receivedFromActorID string, depth int) (*domain.Post, error) {
	id := stringField(raw, "id")
	if id == "" {
		return nil, apperr.Validation("object missing id", nil)
	}
	if _, isActor := raw["inbox"]; isActor {
		return nil, apperr.Validation("object is an actor, not a post", nil)
	}

	if err, existing := im.DB.ReadPostByObjectURI(id); err == nil && existing != nil {
		return existing, nil
	}

	authorID, err := attributedToID(raw)
	if err != nil {
		return nil, err
	}
	if !sameOrigin(authorID, id) {
		return nil, apperr.Validation("object attributed to actor from a different server", nil)
	}

	errA, author := im.DB.ReadActorByURI(authorID)
	if errA != nil || author == nil {
		return nil, apperr.NotFound("post author not yet imported", errA)
	}

	var inReplyToID *uuid.UUID
	var replyParent *domain.Post
	if parentURI := stringField(raw, "inReplyTo"); parentURI != "" {
		parent, err := im.resolveReply(parentURI, author, depth)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			inReplyToID = &parent.Id
			replyParent = parent
		}
	}

	content, err := im.assembleContent(raw)
	if err != nil {
		return nil, err
	}

	attachments, unprocessed := im.importAttachments(raw, author.Id)
	for _, link := range unprocessed {
		content += contentLink(link)
	}

	mentions, hashtags, links, emojis := im.importTags(raw)

	audience := audienceOf(raw)
	visibility := inferVisibility(author, audience)

	published := stringField(raw, "published")
	createdAt := time.Now()
	if published != "" {
		if t, err := time.Parse(time.RFC3339, published); err == nil {
			createdAt = t
		}
	}
	var updatedAt *time.Time
	if updated := stringField(raw, "updated"); updated != "" {
		if t, err := time.Parse(time.RFC3339, updated); err == nil {
			updatedAt = &t
		}
	}

	post := &domain.Post{
		Id:          uuid.New(),
		AuthorId:    author.Id,
		ObjectURI:   id,
		Content:     content,
		Visibility:  visibility,
		IsSensitive: sensitiveOf(raw),
		InReplyTo:   inReplyToID,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}

	if pollOptions, endTime, isPoll := parsePoll(raw); isPoll {
		post.IsPoll = true
		post.PollEndTime = endTime
		_ = pollOptions
	}

	in := db.NewPostInput{
		Post:        post,
		Mentions:    mentions,
		Hashtags:    hashtags,
		Links:       links,
		Emojis:      emojis,
		Attachments: attachments,
	}
	if err := im.DB.CreatePost(in); err != nil {
		return nil, err
	}

	if post.IsPoll {
		if options, _, ok := parsePoll(raw); ok {
			_ = im.DB.CreatePollOptions(post.Id, options)
		}
	}

	im.notifyMentioned(post, mentions)
	if replyParent != nil {
		im.notifyReply(post, author, replyParent)
	}

	return post, nil
}

// UpdateRemotePost applies an Update(Note) by re-running content/tag
// assembly over the new object and replacing the mutable fields. The
// attributedTo actor may never change (spec.md invariant).
func (im *Importer) UpdateRemotePost(raw map[string]any) (domain.DeletionQueue, error) {
	id := stringField(raw, "id")
	errP, existing := im.DB.ReadPostByObjectURI(id)
	if errP != nil || existing == nil {
		return domain.DeletionQueue{}, apperr.NotFound("post not found for update", errP)
	}

	authorID, err := attributedToID(raw)
	if err != nil {
		return domain.DeletionQueue{}, err
	}
	errA, author := im.DB.ReadActorByURI(authorID)
	if errA != nil || author == nil || author.Id != existing.AuthorId {
		return domain.DeletionQueue{}, apperr.Validation("attributedTo cannot change across an update", nil)
	}

	content, err := im.assembleContent(raw)
	if err != nil {
		return domain.DeletionQueue{}, err
	}
	attachments, unprocessed := im.importAttachments(raw, author.Id)
	for _, link := range unprocessed {
		content += contentLink(link)
	}
	mentions, hashtags, links, emojis := im.importTags(raw)

	mut := domain.PostMutation{
		Content:     content,
		IsSensitive: sensitiveOf(raw),
		Attachments: attachments,
		Mentions:    mentions,
		Hashtags:    hashtags,
		Links:       links,
		Emojis:      emojis,
	}
	return im.DB.UpdatePost(existing.Id, mut)
}

// resolveReply fetches and imports the reply target up to MaxReplyDepth
// hops, returning nil (not an error) once the bound is hit so the post can
// still be imported without a resolved parent.
func (im *Importer) resolveReply(parentURI string, author *domain.Actor, depth int) (*domain.Post, error) {
	if err, existing := im.DB.ReadPostByObjectURI(parentURI); err == nil && existing != nil {
		return existing, nil
	}
	if depth >= im.MaxReplyDepth {
		return nil, nil
	}
	raw, _, err := im.Fetch.Fetch(parentURI, nil)
	if err != nil {
		if apperr.Is(err, apperr.KindFetch) {
			return nil, nil // unresolved parent: post still imports, just without a thread link
		}
		return nil, err
	}
	parentAuthorID, err := attributedToID(raw)
	if err == nil {
		if errA, parentAuthor := im.DB.ReadActorByURI(parentAuthorID); errA != nil || parentAuthor == nil {
			if _, err := im.ImportActor(map[string]any{"id": parentAuthorID}); err != nil {
				return nil, nil
			}
		}
	}
	return im.importPost(raw, author.ActorURI, depth+1)
}

func (im *Importer) importAttachments(raw map[string]any, authorID uuid.UUID) ([]domain.Attachment, []string) {
	items, _ := raw["attachment"].([]any)
	var attachments []domain.Attachment
	var unprocessed []string
	for _, item := range items {
		if len(attachments) >= im.MaxAttachments {
			break
		}
		mm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch stringField(mm, "type") {
		case "Document", "Image", "Video", "Audio":
		case "Link":
			if href := stringField(mm, "href"); href != "" {
				unprocessed = append(unprocessed, href)
			}
			continue
		default:
			continue
		}
		url := stringField(mm, "url")
		if url == "" {
			continue
		}
		body, mediaType, err := im.Fetch.FetchFile(url, nil, 0)
		if err != nil {
			unprocessed = append(unprocessed, url)
			continue
		}
		attachments = append(attachments, domain.Attachment{
			Id:        uuid.New(),
			PostId:    uuid.Nil, // filled in by CreatePost once the post id is known
			MediaType: mediaType,
			URL:       url,
			Name:      stringField(mm, "name"),
		})
		_ = body // content-addressed storage is out of scope here; digest computed by the storage layer
		_ = authorID
	}
	return attachments, unprocessed
}

// importTags walks the tag array once, classifying each entry into
// mentions/hashtags/links/emoji, then appends quoteUrl as a link per
// FEP-e232.
func (im *Importer) importTags(raw map[string]any) ([]uuid.UUID, []string, []uuid.UUID, []domain.EmojiRef) {
	items, _ := raw["tag"].([]any)
	var mentions []uuid.UUID
	var hashtags []string
	var links []uuid.UUID
	var emojis []domain.EmojiRef

	for _, item := range items {
		mm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch stringField(mm, "type") {
		case "Hashtag":
			if name := stringField(mm, "name"); name != "" {
				if norm := normalizeHashtag(name); norm != "" {
					hashtags = append(hashtags, norm)
				}
			}
		case "Mention":
			if actorID := im.resolveMention(mm); actorID != nil {
				mentions = append(mentions, *actorID)
			}
		case "Link":
			mediaType := stringField(mm, "mediaType")
			if mediaType != "application/activity+json" && mediaType != "application/ld+json" {
				continue
			}
			href := stringField(mm, "href")
			if errP, post := im.DB.ReadPostByObjectURI(href); errP == nil && post != nil {
				links = append(links, post.Id)
			}
		case "Emoji":
			if ref, ok := parseEmoji(mm); ok {
				emojis = append(emojis, ref)
			}
		}
	}

	if quoteURL := stringField(raw, "quoteUrl"); quoteURL != "" {
		if errP, post := im.DB.ReadPostByObjectURI(quoteURL); errP == nil && post != nil {
			links = append(links, post.Id)
		}
	}

	return mentions, hashtags, links, emojis
}

func (im *Importer) resolveMention(tag map[string]any) *uuid.UUID {
	if href := stringField(tag, "href"); href != "" {
		if err, actor := im.DB.ReadActorByURI(href); err == nil && actor != nil {
			return &actor.Id
		}
	}
	if name := stringField(tag, "name"); name != "" {
		username, hostname, ok := splitAcct(name)
		if ok {
			if err, actor := im.DB.ReadActorByHandle(username, hostname); err == nil && actor != nil {
				return &actor.Id
			}
		}
	}
	return nil
}

func (im *Importer) notifyMentioned(post *domain.Post, mentions []uuid.UUID) {
	for _, actorID := range mentions {
		_ = im.DB.CreateNotificationOnce(&domain.Notification{
			Id:               uuid.New(),
			ActorId:          actorID,
			NotificationType: domain.NotificationMention,
			SourceActorId:    post.AuthorId,
			PostId:           &post.Id,
			PostURI:          post.ObjectURI,
			CreatedAt:        time.Now(),
		})
	}
}

func (im *Importer) notifyReply(post *domain.Post, author *domain.Actor, parent *domain.Post) {
	_ = im.DB.CreateNotificationOnce(&domain.Notification{
		Id:               uuid.New(),
		ActorId:          parent.AuthorId,
		NotificationType: domain.NotificationReply,
		SourceActorId:    author.Id,
		PostId:           &post.Id,
		PostURI:          post.ObjectURI,
		CreatedAt:        time.Now(),
	})
}

// CheckUnsolicited implements spec S4: a public, disconnected (no known
// parent), no-local-recipient post from an author with no local followers
// is rejected before import, so a single forged/forwarded message cannot
// populate a timeline the instance never asked to see.
func (im *Importer) CheckUnsolicited(raw map[string]any, localHostname string) error {
	authorID, err := attributedToID(raw)
	if err != nil {
		return err
	}

	hasLocalFollowers := false
	if errA, author := im.DB.ReadActorByURI(authorID); errA == nil && author != nil {
		if err, followers := im.DB.ReadFollowers(author.Id); err == nil {
			for _, f := range followers {
				hasLocalFollowers = true
				_ = f
				break
			}
		}
	}

	audience := audienceOf(raw)
	hasLocalRecipient := false
	for _, a := range audience {
		if strings.Contains(a, localHostname) {
			hasLocalRecipient = true
			break
		}
	}

	isDisconnected := true
	if parentURI := stringField(raw, "inReplyTo"); parentURI != "" {
		if errP, post := im.DB.ReadPostByObjectURI(parentURI); errP == nil && post != nil {
			isDisconnected = false
		}
	}

	isPublic := false
	for _, a := range audience {
		if a == "https://www.w3.org/ns/activitystreams#Public" || a == "as:Public" || a == "Public" {
			isPublic = true
			break
		}
	}

	if isDisconnected && isPublic && !hasLocalRecipient && !hasLocalFollowers {
		return apperr.Unsolicited(authorID)
	}
	return nil
}

func attributedToID(raw map[string]any) (string, error) {
	switch v := raw["attributedTo"].(type) {
	case string:
		return v, nil
	case map[string]any:
		if id := stringField(v, "id"); id != "" {
			return id, nil
		}
	case []any:
		for _, item := range v {
			switch vv := item.(type) {
			case string:
				return vv, nil
			case map[string]any:
				if id := stringField(vv, "id"); id != "" {
					return id, nil
				}
			}
		}
	}
	return "", apperr.Validation("invalid or missing attributedTo property", nil)
}

func sameOrigin(a, b string) bool {
	ha, errA := hostnameOf(a)
	hb, errB := hostnameOf(b)
	if errA != nil || errB != nil {
		return false
	}
	return ha == hb
}

func sensitiveOf(raw map[string]any) bool {
	v, _ := raw["sensitive"].(bool)
	return v
}

// assembleContent builds the rendered HTML body: a top-level title from
// name/summary wrapped in <h1>, then the body content (a text/markdown body
// is wrapped whole in one <p>, HTML passes through), all sanitized through
// the UGC policy. Content longer than MaxContentLength runes is rejected
// with a Validation error, not truncated. Objects with type != Note get a
// trailing anchor back to the original URL; Question objects additionally
// get their poll results rendered as NAME: COUNT lines.
func (im *Importer) assembleContent(raw map[string]any) (string, error) {
	var title string
	if stringField(raw, "inReplyTo") == "" {
		name := stringField(raw, "name")
		if name == "" {
			name = stringField(raw, "summary")
		}
		if name != "" {
			title = "<h1>" + contentPolicy.Sanitize(name) + "</h1>"
		}
	}

	body := stringField(raw, "content")
	if stringField(raw, "mediaType") == "text/markdown" {
		body = "<p>" + body + "</p>"
	}

	if objType := stringField(raw, "type"); objType != "" && objType != "Note" {
		if id := stringField(raw, "id"); id != "" {
			body += contentLink(id)
		}
	}

	if options, _, isPoll := parsePoll(raw); isPoll {
		for _, opt := range options {
			body += fmt.Sprintf("<p>%s: %d</p>", opt.Name, opt.Votes)
		}
	}

	full := title + body
	if len([]rune(full)) > im.MaxContentLength {
		return "", apperr.Validation("content exceeds maximum length", nil)
	}
	return contentPolicy.Sanitize(full), nil
}

func contentLink(url string) string {
	return fmt.Sprintf(`<p><a href="%s" rel="noopener">%s</a></p>`, url, url)
}

func audienceOf(raw map[string]any) []string {
	return append(stringSlice(raw["to"]), stringSlice(raw["cc"])...)
}

// inferVisibility maps an object's to/cc audience onto the engine's closed
// Visibility vocabulary, per spec.md 4.D: public wins if present anywhere
// in the audience, else followers/subscribers collection membership, else
// direct.
func inferVisibility(author *domain.Actor, audience []string) domain.Visibility {
	for _, a := range audience {
		if a == "https://www.w3.org/ns/activitystreams#Public" || a == "as:Public" || a == "Public" {
			return domain.VisibilityPublic
		}
	}
	for _, a := range audience {
		if a == author.FollowersURI && author.FollowersURI != "" {
			return domain.VisibilityFollowers
		}
		if a == author.SubscribersURI && author.SubscribersURI != "" {
			return domain.VisibilitySubscribers
		}
	}
	return domain.VisibilityDirect
}

func normalizeHashtag(raw string) string {
	tag := strings.TrimPrefix(raw, "#")
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.ContainsAny(tag, " \t\n") {
		return ""
	}
	return strings.ToLower(tag)
}

func splitAcct(handle string) (username, hostname string, ok bool) {
	h := strings.TrimPrefix(handle, "@")
	parts := strings.SplitN(h, "@", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func parseEmoji(tag map[string]any) (domain.EmojiRef, bool) {
	name := stringField(tag, "name")
	if name == "" {
		return domain.EmojiRef{}, false
	}
	iconURL := iconURL(tag, "icon")
	if iconURL == "" {
		return domain.EmojiRef{}, false
	}
	return domain.EmojiRef{
		Shortcode: strings.Trim(name, ":"),
		IconURL:   iconURL,
		UpdatedAt: time.Now(),
	}, true
}

// parsePoll extracts a Question object's options and end time. ok is false
// for non-poll objects.
func parsePoll(raw map[string]any) ([]domain.PollOption, *time.Time, bool) {
	if stringField(raw, "type") != "Question" {
		return nil, nil, false
	}
	var options []domain.PollOption
	for _, key := range []string{"oneOf", "anyOf"} {
		items, ok := raw[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			mm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := stringField(mm, "name")
			if name == "" {
				continue
			}
			votes := 0
			if replies, ok := mm["replies"].(map[string]any); ok {
				if f, ok := replies["totalItems"].(float64); ok {
					votes = int(f)
				}
			}
			options = append(options, domain.PollOption{Name: name, Votes: votes})
		}
		if len(options) > 0 {
			break
		}
	}
	var endTime *time.Time
	if end := stringField(raw, "endTime"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = &t
		}
	}
	return options, endTime, true
}
