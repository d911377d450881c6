package inbox

import (
	"sync"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// mockDatabase implements inbox.Database as an in-memory map store, in the
// teacher's own activitypub/mock_db_test.go style: a mutex-guarded struct,
// one method per interface operation, no mocking framework.
type mockDatabase struct {
	mu sync.Mutex

	actorsByURI    map[string]*domain.Actor
	actorsById     map[uuid.UUID]*domain.Actor
	actorsByHandle map[string]*domain.Actor
	deletedActors  map[uuid.UUID]bool

	postsByURI   map[string]*domain.Post
	postsById    map[uuid.UUID]*domain.Post
	createdPosts []db.NewPostInput
	deletedPosts []uuid.UUID

	activitiesByURI         map[string]*domain.Activity
	activitiesByCanonicalID map[string]*domain.Activity
	createdActivities       []*domain.Activity

	follows            []followCall
	followRequests     []followCall
	accepted           []string
	unfollowed         []unfollowCall
	relationshipsByURI map[string]*domain.Relationship
	followers          map[uuid.UUID][]domain.Relationship

	notifications []*domain.Notification
}

type followCall struct {
	SourceId, TargetId uuid.UUID
	URI                string
}

type unfollowCall struct {
	SourceId, TargetId uuid.UUID
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		actorsByURI:             make(map[string]*domain.Actor),
		actorsById:              make(map[uuid.UUID]*domain.Actor),
		actorsByHandle:          make(map[string]*domain.Actor),
		deletedActors:           make(map[uuid.UUID]bool),
		postsByURI:              make(map[string]*domain.Post),
		postsById:               make(map[uuid.UUID]*domain.Post),
		activitiesByURI:         make(map[string]*domain.Activity),
		activitiesByCanonicalID: make(map[string]*domain.Activity),
		relationshipsByURI:      make(map[string]*domain.Relationship),
		followers:               make(map[uuid.UUID][]domain.Relationship),
	}
}

func (m *mockDatabase) addActor(a *domain.Actor) {
	m.actorsByURI[a.ActorURI] = a
	m.actorsById[a.Id] = a
	if a.Hostname != nil {
		m.actorsByHandle[a.Username+"@"+*a.Hostname] = a
	} else {
		m.actorsByHandle[a.Username+"@"] = a
	}
}

func (m *mockDatabase) addPost(p *domain.Post) {
	m.postsById[p.Id] = p
	if p.ObjectURI != "" {
		m.postsByURI[p.ObjectURI] = p
	}
}

func (m *mockDatabase) ReadActorByURI(uri string) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actorsByURI[uri]
}

func (m *mockDatabase) ReadActorById(id uuid.UUID) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actorsById[id]
}

func (m *mockDatabase) ReadActorByHandle(username, hostname string) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actorsByHandle[username+"@"+hostname]
}

func (m *mockDatabase) CreateActor(a *domain.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addActor(a)
	return nil
}

func (m *mockDatabase) UpdateActor(a *domain.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addActor(a)
	return nil
}

func (m *mockDatabase) DeleteActor(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedActors[id] = true
	return nil
}

func (m *mockDatabase) ReadPostByObjectURI(uri string) (error, *domain.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.postsByURI[uri]
}

func (m *mockDatabase) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.postsById[id]
}

func (m *mockDatabase) CreatePost(in db.NewPostInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdPosts = append(m.createdPosts, in)
	if in.Post != nil {
		m.addPost(in.Post)
	}
	return nil
}

func (m *mockDatabase) UpdatePost(postID uuid.UUID, mut domain.PostMutation) (domain.DeletionQueue, error) {
	return domain.DeletionQueue{}, nil
}

func (m *mockDatabase) DeletePost(postID uuid.UUID) (domain.DeletionQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedPosts = append(m.deletedPosts, postID)
	return domain.DeletionQueue{}, nil
}

func (m *mockDatabase) CreatePollOptions(postID uuid.UUID, options []domain.PollOption) error {
	return nil
}

func (m *mockDatabase) RecordVote(postID uuid.UUID, optionName string, voterID uuid.UUID) error {
	return nil
}

func (m *mockDatabase) ReadActivityByURI(uri string) (error, *domain.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.activitiesByURI[uri]
}

func (m *mockDatabase) ReadActivityByCanonicalID(canonicalID string) (error, *domain.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.activitiesByCanonicalID[canonicalID]
}

func (m *mockDatabase) CreateActivity(a *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdActivities = append(m.createdActivities, a)
	m.activitiesByURI[a.ActivityURI] = a
	m.activitiesByCanonicalID[a.CanonicalID] = a
	return nil
}

func (m *mockDatabase) DeleteActivity(id uuid.UUID) error { return nil }

func (m *mockDatabase) Follow(sourceID, targetID uuid.UUID, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.follows = append(m.follows, followCall{sourceID, targetID, uri})
	m.relationshipsByURI[uri] = &domain.Relationship{SourceId: sourceID, TargetId: targetID, Kind: domain.RelFollow, URI: uri}
	m.followers[targetID] = append(m.followers[targetID], *m.relationshipsByURI[uri])
	return nil
}

func (m *mockDatabase) CreateFollowRequest(sourceID, targetID uuid.UUID, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followRequests = append(m.followRequests, followCall{sourceID, targetID, uri})
	m.relationshipsByURI[uri] = &domain.Relationship{SourceId: sourceID, TargetId: targetID, Kind: domain.RelFollowRequest, URI: uri}
	return nil
}

func (m *mockDatabase) AcceptFollowRequestByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = append(m.accepted, uri)
	if rel, ok := m.relationshipsByURI[uri]; ok {
		rel.Kind = domain.RelFollow
	}
	return nil
}

func (m *mockDatabase) Unfollow(sourceID, targetID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unfollowed = append(m.unfollowed, unfollowCall{sourceID, targetID})
	return nil
}

func (m *mockDatabase) ReadRelationship(sourceID, targetID uuid.UUID, kind domain.RelationshipKind) (error, *domain.Relationship) {
	return nil, nil
}

func (m *mockDatabase) ReadRelationshipByURI(uri string) (error, *domain.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.relationshipsByURI[uri]
}

func (m *mockDatabase) ReadFollowers(targetID uuid.UUID) (error, []domain.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.followers[targetID]
}

func (m *mockDatabase) ReadConversationParticipants(id uuid.UUID) (error, []uuid.UUID) {
	return nil, nil
}

func (m *mockDatabase) EnqueueDeliveryJobs(actorID uuid.UUID, activityJSON string, inboxes []string) error {
	return nil
}

func (m *mockDatabase) CreateNotificationOnce(n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// stubImporter implements inbox.Importer by recording calls and returning
// canned results, standing in for the already-tested importer.Importer.
type stubImporter struct {
	createdPosts      []map[string]any
	updatedPosts      []map[string]any
	importedActors    []map[string]any
	fetchedActorURIs  []string
	fetchActorResult  *domain.Actor
	fetchActorErr     error
	unsolicitedResult error
	createResult      *domain.Post
	createErr         error
}

func (s *stubImporter) ImportActor(raw map[string]any) (*domain.Actor, error) {
	s.importedActors = append(s.importedActors, raw)
	return &domain.Actor{ActorURI: raw["id"].(string)}, nil
}

func (s *stubImporter) FetchAndImportActor(uri string) (*domain.Actor, error) {
	s.fetchedActorURIs = append(s.fetchedActorURIs, uri)
	if s.fetchActorErr != nil {
		return nil, s.fetchActorErr
	}
	if s.fetchActorResult != nil {
		return s.fetchActorResult, nil
	}
	return nil, apperr.NotFound("actor not found", nil)
}

func (s *stubImporter) CreateRemotePost(raw map[string]any, receivedFromActorID string) (*domain.Post, error) {
	s.createdPosts = append(s.createdPosts, raw)
	return s.createResult, s.createErr
}

func (s *stubImporter) UpdateRemotePost(raw map[string]any) (domain.DeletionQueue, error) {
	s.updatedPosts = append(s.updatedPosts, raw)
	return domain.DeletionQueue{}, nil
}

func (s *stubImporter) CheckUnsolicited(raw map[string]any, localHostname string) error {
	return s.unsolicitedResult
}
