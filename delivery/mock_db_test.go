package delivery

import (
	"sync"
	"time"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// mockDatabase is an in-memory stand-in for db.DB, covering only the
// operations the Delivery Queue's Database interface declares.
type mockDatabase struct {
	mu sync.Mutex

	actors        map[uuid.UUID]*domain.Actor
	followers     map[uuid.UUID][]domain.Relationship
	subscribers   map[uuid.UUID][]domain.Relationship
	participants  map[uuid.UUID][]uuid.UUID
	mentions      map[uuid.UUID][]uuid.UUID
	posts         map[uuid.UUID]*domain.Post
	voters        map[uuid.UUID][]uuid.UUID
	actorsByInbox map[string]*domain.Actor

	jobs       []domain.DeliveryJob
	delivered  []uuid.UUID
	abandoned  []uuid.UUID
	retried    []uuid.UUID
	unreachable map[uuid.UUID]bool
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		actors:        make(map[uuid.UUID]*domain.Actor),
		followers:     make(map[uuid.UUID][]domain.Relationship),
		subscribers:   make(map[uuid.UUID][]domain.Relationship),
		participants:  make(map[uuid.UUID][]uuid.UUID),
		mentions:      make(map[uuid.UUID][]uuid.UUID),
		posts:         make(map[uuid.UUID]*domain.Post),
		voters:        make(map[uuid.UUID][]uuid.UUID),
		actorsByInbox: make(map[string]*domain.Actor),
		unreachable:   make(map[uuid.UUID]bool),
	}
}

func (m *mockDatabase) addActor(a *domain.Actor) {
	m.actors[a.Id] = a
	if a.InboxURI != "" {
		m.actorsByInbox[a.InboxURI] = a
	}
	if a.SharedInboxURI != "" {
		m.actorsByInbox[a.SharedInboxURI] = a
	}
}

func (m *mockDatabase) ReadActorById(id uuid.UUID) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actors[id]
}

func (m *mockDatabase) ReadActorByInboxURI(uri string) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actorsByInbox[uri]
}

func (m *mockDatabase) ReadFollowers(targetId uuid.UUID) (error, []domain.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.followers[targetId]
}

func (m *mockDatabase) ReadSubscribers(targetId uuid.UUID) (error, []domain.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.subscribers[targetId]
}

func (m *mockDatabase) ReadConversationParticipants(id uuid.UUID) (error, []uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.participants[id]
}

func (m *mockDatabase) ReadMentionsByPost(postId uuid.UUID) (error, []uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.mentions[postId]
}

func (m *mockDatabase) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.posts[id]
}

func (m *mockDatabase) GetVoters(postId uuid.UUID) (error, []uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.voters[postId]
}

func (m *mockDatabase) EnqueueDeliveryJobs(actorId uuid.UUID, activityJSON string, inboxes []string) error {
	return m.enqueueAt(actorId, activityJSON, inboxes, time.Now())
}

func (m *mockDatabase) EnqueueDeliveryJobsAt(actorId uuid.UUID, activityJSON string, inboxes []string, notBefore time.Time) error {
	return m.enqueueAt(actorId, activityJSON, inboxes, notBefore)
}

func (m *mockDatabase) enqueueAt(actorId uuid.UUID, activityJSON string, inboxes []string, notBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inbox := range inboxes {
		m.jobs = append(m.jobs, domain.DeliveryJob{
			Id:            uuid.New(),
			ActorId:       actorId,
			InboxURI:      inbox,
			ActivityJSON:  activityJSON,
			State:         domain.DeliveryPending,
			NextAttemptAt: notBefore,
		})
	}
	return nil
}

func (m *mockDatabase) ReadDueDeliveryJobs(limit int) (error, []domain.DeliveryJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var due []domain.DeliveryJob
	for _, j := range m.jobs {
		if (j.State == domain.DeliveryPending || j.State == domain.DeliveryRetry) && !j.NextAttemptAt.After(now) {
			due = append(due, j)
			if len(due) >= limit {
				break
			}
		}
	}
	return nil, due
}

func (m *mockDatabase) MarkDelivered(job domain.DeliveryJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, job.Id)
	m.setState(job.Id, domain.DeliveryDelivered)
	return nil
}

func (m *mockDatabase) MarkAbandoned(job domain.DeliveryJob, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned = append(m.abandoned, job.Id)
	m.setState(job.Id, domain.DeliveryAbandoned)
	return nil
}

func (m *mockDatabase) ScheduleRetry(job domain.DeliveryJob, nextAttempt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried = append(m.retried, job.Id)
	m.setState(job.Id, domain.DeliveryRetry)
	return nil
}

func (m *mockDatabase) setState(id uuid.UUID, state domain.DeliveryState) {
	for i := range m.jobs {
		if m.jobs[i].Id == id {
			m.jobs[i].State = state
			return
		}
	}
}

func (m *mockDatabase) MarkActorUnreachable(id uuid.UUID, since time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable[id] = true
	return nil
}

func (m *mockDatabase) ClearActorUnreachable(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unreachable, id)
	return nil
}
