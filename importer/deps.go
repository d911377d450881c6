// Package importer is the Importer component (spec.md 4.D): it turns a
// fetched remote JSON object into persistent rows, recursively resolving
// references and idempotently deduplicating by canonical id.
package importer

import (
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// Database defines the repository operations the Importer needs. Mirrors
// the teacher's activitypub.Database dependency-injection shape so the
// Importer can be exercised against a hand-written mock the way the
// teacher's activitypub package is (see mock_db_test.go).
type Database interface {
	ReadActorByURI(uri string) (error, *domain.Actor)
	ReadActorByHandle(username, hostname string) (error, *domain.Actor)
	CreateActor(a *domain.Actor) error
	UpdateActor(a *domain.Actor) error

	ReadPostByObjectURI(uri string) (error, *domain.Post)
	CreatePost(in db.NewPostInput) error
	UpdatePost(postID uuid.UUID, mut domain.PostMutation) (domain.DeletionQueue, error)
	CreatePollOptions(postID uuid.UUID, options []domain.PollOption) error

	ReadFollowers(targetID uuid.UUID) (error, []domain.Relationship)
	CreateNotificationOnce(n *domain.Notification) error
}

// Fetcher defines the retrieval operations the Importer needs to resolve
// references (attributedTo, inReplyTo, attachments, emoji icons).
type Fetcher interface {
	Fetch(uri string, as *domain.Actor) (map[string]any, string, error)
	FetchFile(uri string, allowedTypes []string, maxBytes int64) ([]byte, string, error)
}

// Importer bundles the dependencies needed to import remote objects.
type Importer struct {
	DB      Database
	Fetch   Fetcher
	MaxReplyDepth int // bounded in-reply-to resolution depth
	MaxAttachments int
	MaxContentLength int
}

// New builds an Importer with spec-reasonable defaults (bounded depth 8,
// up to 8 attachments, content capped at 5000 runes).
func New(database Database, fetch Fetcher) *Importer {
	return &Importer{
		DB:               database,
		Fetch:            fetch,
		MaxReplyDepth:    8,
		MaxAttachments:   8,
		MaxContentLength: 5000,
	}
}
