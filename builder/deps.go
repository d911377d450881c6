// Package builder is the Builder component (spec.md 4.E): it renders
// canonical AS2 JSON for outbound activities and objects from the
// repository's domain rows, the mirror image of the Importer.
package builder

import (
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// Database defines the repository reads the Builder needs to assemble an
// object's full representation (tags, attachments, related posts).
type Database interface {
	ReadActorById(id uuid.UUID) (error, *domain.Actor)
	ReadPostById(id uuid.UUID) (error, *domain.Post)
	ReadMentionsByPost(postId uuid.UUID) (error, []uuid.UUID)
	ReadHashtagsByPost(postId uuid.UUID) (error, []string)
	ReadLinksByPost(postId uuid.UUID) (error, []uuid.UUID)
	ReadAttachmentsByPost(postId uuid.UUID) (error, []domain.Attachment)
	ReadEmojisByPost(postId uuid.UUID) (error, []domain.EmojiRef)
	ReadPollOptions(postId uuid.UUID) (error, []domain.PollOption)
	ReadConversationById(id uuid.UUID) (error, *domain.Conversation)
}

// Builder bundles the dependencies needed to render outbound AS2 documents.
type Builder struct {
	DB               Database
	InstanceHostname string
	InstanceURL      string // e.g. "https://example.social", no trailing slash
	FepE232Enabled   bool   // whether to emit FEP-e232 quote-link tags
}

func New(database Database, instanceHostname, instanceURL string) *Builder {
	return &Builder{
		DB:               database,
		InstanceHostname: instanceHostname,
		InstanceURL:      instanceURL,
		FepE232Enabled:   true,
	}
}
