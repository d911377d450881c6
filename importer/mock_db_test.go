package importer

import (
	"sync"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// mockDatabase is an in-memory stand-in for db.DB, implementing only the
// operations importer.Database declares, in the teacher's own
// mock_db_test.go style: a mutex-guarded struct of maps, one method per
// interface operation, no mocking framework.
type mockDatabase struct {
	mu sync.Mutex

	actorsByURI    map[string]*domain.Actor
	actorsByHandle map[string]*domain.Actor

	postsByURI map[string]*domain.Post
	posts      []db.NewPostInput
	mutations  []domain.PostMutation

	followers map[uuid.UUID][]domain.Relationship

	notifications []*domain.Notification
	pollOptions   map[uuid.UUID][]domain.PollOption
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		actorsByURI:    make(map[string]*domain.Actor),
		actorsByHandle: make(map[string]*domain.Actor),
		postsByURI:     make(map[string]*domain.Post),
		followers:      make(map[uuid.UUID][]domain.Relationship),
		pollOptions:    make(map[uuid.UUID][]domain.PollOption),
	}
}

func handleKey(username, hostname string) string { return username + "@" + hostname }

func (m *mockDatabase) addActor(a *domain.Actor) {
	m.actorsByURI[a.ActorURI] = a
	if a.Hostname != nil {
		m.actorsByHandle[handleKey(a.Username, *a.Hostname)] = a
	}
}

func (m *mockDatabase) ReadActorByURI(uri string) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actorsByURI[uri]
}

func (m *mockDatabase) ReadActorByHandle(username, hostname string) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actorsByHandle[handleKey(username, hostname)]
}

func (m *mockDatabase) CreateActor(a *domain.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actorsByURI[a.ActorURI] = a
	if a.Hostname != nil {
		m.actorsByHandle[handleKey(a.Username, *a.Hostname)] = a
	}
	return nil
}

func (m *mockDatabase) UpdateActor(a *domain.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actorsByURI[a.ActorURI] = a
	if a.Hostname != nil {
		m.actorsByHandle[handleKey(a.Username, *a.Hostname)] = a
	}
	return nil
}

func (m *mockDatabase) ReadPostByObjectURI(uri string) (error, *domain.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.postsByURI[uri]
}

func (m *mockDatabase) CreatePost(in db.NewPostInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, in)
	return nil
}

func (m *mockDatabase) UpdatePost(postID uuid.UUID, mut domain.PostMutation) (domain.DeletionQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = append(m.mutations, mut)
	return domain.DeletionQueue{}, nil
}

func (m *mockDatabase) CreatePollOptions(postID uuid.UUID, options []domain.PollOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollOptions[postID] = options
	return nil
}

func (m *mockDatabase) ReadFollowers(targetID uuid.UUID) (error, []domain.Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.followers[targetID]
}

func (m *mockDatabase) CreateNotificationOnce(n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// stubFetcher serves canned responses keyed by URI, for reference resolution
// (inReplyTo, attachments, emoji icons) exercised by CreateRemotePost.
type stubFetcher struct {
	objects map[string]map[string]any
}

func (f *stubFetcher) Fetch(uri string, as *domain.Actor) (map[string]any, string, error) {
	obj, ok := f.objects[uri]
	if !ok {
		return nil, "", errNotStubbed(uri)
	}
	return obj, uri, nil
}

func (f *stubFetcher) FetchFile(uri string, allowedTypes []string, maxBytes int64) ([]byte, string, error) {
	return []byte("stub-file-bytes"), "image/png", nil
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

func errNotStubbed(uri string) error {
	return apperr.Fetch("no stubbed fetch response for "+uri, stubErr(uri))
}
