// Package delivery is the Delivery Queue component (spec.md 4.G): it
// computes the recipient set for a locally-originated activity, enqueues
// one job per recipient inbox, and drains the queue with a bounded worker
// pool that signs and POSTs each job, retrying with backoff on transient
// failure.
package delivery

import (
	"net/http"
	"time"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// Database defines the repository operations the Delivery Queue needs:
// recipient computation reads plus the job-queue methods already exposed
// by db.DB.
type Database interface {
	ReadActorById(id uuid.UUID) (error, *domain.Actor)
	ReadActorByInboxURI(uri string) (error, *domain.Actor)
	ReadFollowers(targetId uuid.UUID) (error, []domain.Relationship)
	ReadSubscribers(targetId uuid.UUID) (error, []domain.Relationship)
	ReadConversationParticipants(id uuid.UUID) (error, []uuid.UUID)
	ReadMentionsByPost(postId uuid.UUID) (error, []uuid.UUID)
	ReadPostById(id uuid.UUID) (error, *domain.Post)
	GetVoters(postId uuid.UUID) (error, []uuid.UUID)

	EnqueueDeliveryJobs(actorId uuid.UUID, activityJSON string, inboxes []string) error
	EnqueueDeliveryJobsAt(actorId uuid.UUID, activityJSON string, inboxes []string, notBefore time.Time) error
	ReadDueDeliveryJobs(limit int) (error, []domain.DeliveryJob)
	MarkDelivered(job domain.DeliveryJob) error
	MarkAbandoned(job domain.DeliveryJob, reason string) error
	ScheduleRetry(job domain.DeliveryJob, nextAttempt time.Time, reason string) error

	MarkActorUnreachable(id uuid.UUID, since time.Time) error
	ClearActorUnreachable(id uuid.UUID) error
}

// HTTPClient is the dependency-injected HTTP client, mirroring
// fetcher.HTTPClient so production code shares one client shape and tests
// can swap in a stub without pulling in the fetcher package.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient is the production HTTPClient.
type DefaultHTTPClient struct {
	client *http.Client
}

func NewDefaultHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	return &DefaultHTTPClient{client: &http.Client{Timeout: timeout}}
}

func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Signer signs an outbound POST with actorId's RSA key, matching
// identity.SignRequest's shape without importing identity's concrete key
// types here.
type Signer func(req *http.Request, actorId uuid.UUID) error

// LocalDeliverer delivers an activity to a local recipient in-process,
// mirroring inbox.Receiver's exported DeliverLocal without creating an
// import cycle between delivery and inbox.
type LocalDeliverer interface {
	DeliverLocal(raw map[string]any, fromActor *domain.Actor, toActorID uuid.UUID) error
}
