package builder

import (
	"sync"

	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

// mockDatabase implements builder.Database as an in-memory map store, in the
// teacher's own mock_db_test.go style: a mutex-guarded struct, one method
// per interface operation, no mocking framework.
type mockDatabase struct {
	mu sync.Mutex

	actors        map[uuid.UUID]*domain.Actor
	posts         map[uuid.UUID]*domain.Post
	mentions      map[uuid.UUID][]uuid.UUID
	hashtags      map[uuid.UUID][]string
	links         map[uuid.UUID][]uuid.UUID
	attachments   map[uuid.UUID][]domain.Attachment
	emojis        map[uuid.UUID][]domain.EmojiRef
	pollOptions   map[uuid.UUID][]domain.PollOption
	conversations map[uuid.UUID]*domain.Conversation
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		actors:        make(map[uuid.UUID]*domain.Actor),
		posts:         make(map[uuid.UUID]*domain.Post),
		mentions:      make(map[uuid.UUID][]uuid.UUID),
		hashtags:      make(map[uuid.UUID][]string),
		links:         make(map[uuid.UUID][]uuid.UUID),
		attachments:   make(map[uuid.UUID][]domain.Attachment),
		emojis:        make(map[uuid.UUID][]domain.EmojiRef),
		pollOptions:   make(map[uuid.UUID][]domain.PollOption),
		conversations: make(map[uuid.UUID]*domain.Conversation),
	}
}

func (m *mockDatabase) addActor(a *domain.Actor) { m.actors[a.Id] = a }
func (m *mockDatabase) addPost(p *domain.Post)    { m.posts[p.Id] = p }

func (m *mockDatabase) ReadActorById(id uuid.UUID) (error, *domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.actors[id]
}

func (m *mockDatabase) ReadPostById(id uuid.UUID) (error, *domain.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.posts[id]
}

func (m *mockDatabase) ReadMentionsByPost(postId uuid.UUID) (error, []uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.mentions[postId]
}

func (m *mockDatabase) ReadHashtagsByPost(postId uuid.UUID) (error, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.hashtags[postId]
}

func (m *mockDatabase) ReadLinksByPost(postId uuid.UUID) (error, []uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.links[postId]
}

func (m *mockDatabase) ReadAttachmentsByPost(postId uuid.UUID) (error, []domain.Attachment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.attachments[postId]
}

func (m *mockDatabase) ReadEmojisByPost(postId uuid.UUID) (error, []domain.EmojiRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.emojis[postId]
}

func (m *mockDatabase) ReadPollOptions(postId uuid.UUID) (error, []domain.PollOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.pollOptions[postId]
}

func (m *mockDatabase) ReadConversationById(id uuid.UUID) (error, *domain.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.conversations[id]
}
