package delivery

import (
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// Recipients is the delivery target set for one activity, split into
// remote inbox URLs (deduplicated, sharedInbox preferred over inbox) and
// local actors, which are delivered to in-process rather than queued.
type Recipients struct {
	Inboxes     []string
	LocalActors []uuid.UUID
}

// ComputeRecipients derives post's delivery targets per spec.md 4.G: a
// visibility-driven base set (followers, subscribers, or prior
// conversation participants), plus — always — mentioned actors, the
// author of a reply-to target, and a poll's voters. The author itself is
// never included.
func ComputeRecipients(database Database, post *domain.Post, author *domain.Actor) (Recipients, error) {
	targets := make(map[uuid.UUID]bool)

	switch post.Visibility {
	case domain.VisibilityPublic, domain.VisibilityFollowers:
		err, followers := database.ReadFollowers(author.Id)
		if err != nil {
			return Recipients{}, err
		}
		for _, rel := range followers {
			targets[rel.SourceId] = true
		}
	case domain.VisibilitySubscribers:
		err, subs := database.ReadSubscribers(author.Id)
		if err != nil {
			return Recipients{}, err
		}
		for _, rel := range subs {
			targets[rel.SourceId] = true
		}
	case domain.VisibilityConversation:
		err, participants := database.ReadConversationParticipants(post.ConversationId)
		if err != nil {
			return Recipients{}, err
		}
		for _, id := range participants {
			targets[id] = true
		}
	}

	err, mentioned := database.ReadMentionsByPost(post.Id)
	if err != nil {
		return Recipients{}, err
	}
	for _, id := range mentioned {
		targets[id] = true
	}

	if post.InReplyTo != nil {
		if err, parent := database.ReadPostById(*post.InReplyTo); err == nil && parent != nil {
			targets[parent.AuthorId] = true
		}
	}

	if post.IsPoll {
		err, voters := database.GetVoters(post.Id)
		if err != nil {
			return Recipients{}, err
		}
		for _, id := range voters {
			targets[id] = true
		}
	}

	delete(targets, author.Id)

	var out Recipients
	seen := make(map[string]bool, len(targets))
	for id := range targets {
		err, actor := database.ReadActorById(id)
		if err != nil || actor == nil {
			continue
		}
		if actor.IsLocal() {
			out.LocalActors = append(out.LocalActors, actor.Id)
			continue
		}
		inbox := actor.SharedInboxURI
		if inbox == "" {
			inbox = actor.InboxURI
		}
		if inbox == "" || seen[inbox] {
			continue
		}
		seen[inbox] = true
		out.Inboxes = append(out.Inboxes, inbox)
	}
	return out, nil
}
