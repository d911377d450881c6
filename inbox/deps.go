// Package inbox is the Inbox Receiver component (spec.md 4.F): it verifies
// an incoming activity's authenticity, dispatches it by type, and enqueues
// whatever follow-on delivery the activity requires.
package inbox

import (
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// Database defines the repository operations the Inbox Receiver needs. It
// does not embed the Importer's Database interface; each method is
// declared here, and one concrete *db.DB satisfies both.
type Database interface {
	ReadActorByURI(uri string) (error, *domain.Actor)
	ReadActorById(id uuid.UUID) (error, *domain.Actor)
	ReadActorByHandle(username, hostname string) (error, *domain.Actor)
	CreateActor(a *domain.Actor) error
	UpdateActor(a *domain.Actor) error
	DeleteActor(id uuid.UUID) error

	ReadPostByObjectURI(uri string) (error, *domain.Post)
	ReadPostById(id uuid.UUID) (error, *domain.Post)
	CreatePost(in db.NewPostInput) error
	UpdatePost(postID uuid.UUID, mut domain.PostMutation) (domain.DeletionQueue, error)
	DeletePost(postID uuid.UUID) (domain.DeletionQueue, error)
	CreatePollOptions(postID uuid.UUID, options []domain.PollOption) error
	RecordVote(postID uuid.UUID, optionName string, voterID uuid.UUID) error

	ReadActivityByURI(uri string) (error, *domain.Activity)
	ReadActivityByCanonicalID(canonicalID string) (error, *domain.Activity)
	CreateActivity(a *domain.Activity) error
	DeleteActivity(id uuid.UUID) error

	Follow(sourceID, targetID uuid.UUID, uri string) error
	CreateFollowRequest(sourceID, targetID uuid.UUID, uri string) error
	AcceptFollowRequestByURI(uri string) error
	Unfollow(sourceID, targetID uuid.UUID) error
	ReadRelationship(sourceID, targetID uuid.UUID, kind domain.RelationshipKind) (error, *domain.Relationship)
	ReadRelationshipByURI(uri string) (error, *domain.Relationship)
	ReadFollowers(targetID uuid.UUID) (error, []domain.Relationship)

	ReadConversationParticipants(id uuid.UUID) (error, []uuid.UUID)
	EnqueueDeliveryJobs(actorID uuid.UUID, activityJSON string, inboxes []string) error

	CreateNotificationOnce(n *domain.Notification) error
}

// Importer defines the object-import operations the Inbox Receiver
// delegates to, mirroring importer.Importer's exported surface.
type Importer interface {
	ImportActor(raw map[string]any) (*domain.Actor, error)
	FetchAndImportActor(uri string) (*domain.Actor, error)
	CreateRemotePost(raw map[string]any, receivedFromActorID string) (*domain.Post, error)
	UpdateRemotePost(raw map[string]any) (domain.DeletionQueue, error)
	CheckUnsolicited(raw map[string]any, localHostname string) error
}

// Receiver bundles the dependencies needed to process inbound activities.
type Receiver struct {
	DB               Database
	Import           Importer
	InstanceHostname string
}

func New(database Database, imp Importer, instanceHostname string) *Receiver {
	return &Receiver{DB: database, Import: imp, InstanceHostname: instanceHostname}
}
