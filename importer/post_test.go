package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/domain"
	"github.com/google/uuid"
)

func newImporterForPostTests(mdb *mockDatabase, fetch *stubFetcher) *Importer {
	if fetch == nil {
		fetch = &stubFetcher{objects: map[string]map[string]any{}}
	}
	return &Importer{DB: mdb, Fetch: fetch, MaxReplyDepth: 4, MaxAttachments: 4, MaxContentLength: 5000}
}

func addLocalAuthor(mdb *mockDatabase, actorURI, username string) *domain.Actor {
	host := "remote.example"
	a := &domain.Actor{Id: uuid.New(), ActorURI: actorURI, Username: username, Hostname: &host}
	mdb.addActor(a)
	return a
}

func TestCreateRemotePostBuildsRowFromNote(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://remote.example/posts/1",
		"attributedTo": author.ActorURI,
		"content":      "hello world",
		"to":           []any{"https://www.w3.org/ns/activitystreams#Public"},
	}

	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("CreateRemotePost: %v", err)
	}
	if post.AuthorId != author.Id {
		t.Fatalf("AuthorId = %v, want %v", post.AuthorId, author.Id)
	}
	if post.Visibility != domain.VisibilityPublic {
		t.Fatalf("Visibility = %v, want VisibilityPublic", post.Visibility)
	}
	if len(mdb.posts) != 1 {
		t.Fatalf("expected one CreatePost call, got %d", len(mdb.posts))
	}
}

func TestCreateRemotePostIsIdempotentByObjectURI(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	existing := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ObjectURI: "https://remote.example/posts/1"}
	mdb.postsByURI[existing.ObjectURI] = existing
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{"id": existing.ObjectURI, "attributedTo": author.ActorURI, "content": "hello"}
	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("CreateRemotePost: %v", err)
	}
	if post.Id != existing.Id {
		t.Fatalf("expected the already-imported post to be returned unchanged")
	}
	if len(mdb.posts) != 0 {
		t.Fatal("expected no new CreatePost call for an already-imported object")
	}
}

func TestCreateRemotePostRejectsCrossOriginAttribution(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://other.example/posts/1",
		"attributedTo": author.ActorURI,
		"content":      "spoofed",
	}
	if _, err := im.CreateRemotePost(raw, author.ActorURI); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want KindValidation for a post hosted off its author's origin", err)
	}
}

func TestCreateRemotePostRejectsUnknownAuthor(t *testing.T) {
	mdb := newMockDatabase()
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://remote.example/posts/1",
		"attributedTo": "https://remote.example/users/ghost",
		"content":      "hello",
	}
	if _, err := im.CreateRemotePost(raw, "https://remote.example/users/ghost"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want KindNotFound for an unimported author", err)
	}
}

func TestCreateRemotePostResolvesReplyParent(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	parent := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ObjectURI: "https://remote.example/posts/parent"}
	mdb.postsByURI[parent.ObjectURI] = parent
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://remote.example/posts/reply",
		"attributedTo": author.ActorURI,
		"content":      "a reply",
		"inReplyTo":    parent.ObjectURI,
	}
	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("CreateRemotePost: %v", err)
	}
	if post.InReplyTo == nil || *post.InReplyTo != parent.Id {
		t.Fatalf("InReplyTo = %v, want %v", post.InReplyTo, parent.Id)
	}
	if len(mdb.notifications) != 1 || mdb.notifications[0].NotificationType != domain.NotificationReply {
		t.Fatalf("expected a reply notification, got %+v", mdb.notifications)
	}
}

func TestCreateRemotePostFetchesUnresolvedReplyParent(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	parentURI := "https://remote.example/posts/parent"
	fetch := &stubFetcher{objects: map[string]map[string]any{
		parentURI: {"id": parentURI, "attributedTo": author.ActorURI, "content": "the parent"},
	}}
	im := newImporterForPostTests(mdb, fetch)

	raw := map[string]any{
		"id":           "https://remote.example/posts/reply",
		"attributedTo": author.ActorURI,
		"content":      "a reply",
		"inReplyTo":    parentURI,
	}
	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("CreateRemotePost: %v", err)
	}
	if post.InReplyTo == nil {
		t.Fatal("expected the fetched parent to be imported and linked")
	}
	if len(mdb.posts) != 2 {
		t.Fatalf("expected both the parent and the reply to be created, got %d", len(mdb.posts))
	}
}

func TestCreateRemotePostToleratesUnfetchableReplyParent(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://remote.example/posts/reply",
		"attributedTo": author.ActorURI,
		"content":      "a reply to something gone",
		"inReplyTo":    "https://remote.example/posts/missing",
	}
	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("expected an unresolvable parent to not fail the import, got %v", err)
	}
	if post.InReplyTo != nil {
		t.Fatal("expected no thread link for an unresolvable parent")
	}
}

func TestCreateRemotePostResolvesMentionByHref(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	bob := addLocalAuthor(mdb, "https://remote.example/users/bob", "bob")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://remote.example/posts/1",
		"attributedTo": author.ActorURI,
		"content":      "hi @bob",
		"tag": []any{
			map[string]any{"type": "Mention", "href": bob.ActorURI, "name": "@bob@remote.example"},
		},
	}
	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("CreateRemotePost: %v", err)
	}
	if len(mdb.posts) != 1 || len(mdb.posts[0].Mentions) != 1 || mdb.posts[0].Mentions[0] != bob.Id {
		t.Fatalf("expected bob to be resolved as a mention, got %+v", mdb.posts[0].Mentions)
	}
	if len(mdb.notifications) != 1 || mdb.notifications[0].ActorId != bob.Id {
		t.Fatalf("expected bob to be notified of the mention, got %+v", mdb.notifications)
	}
	_ = post
}

func TestCreateRemotePostRejectsOversizedContent(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	im := newImporterForPostTests(mdb, nil)
	im.MaxContentLength = 10

	raw := map[string]any{
		"id":           "https://remote.example/posts/1",
		"attributedTo": author.ActorURI,
		"content":      "this body is far longer than ten characters",
	}
	if _, err := im.CreateRemotePost(raw, author.ActorURI); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want KindValidation for content past MaxContentLength", err)
	}
}

func TestCreateRemotePostRendersPollResultsAndNonNoteAnchor(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://remote.example/posts/1",
		"type":         "Question",
		"attributedTo": author.ActorURI,
		"content":      "cats or dogs?",
		"oneOf": []any{
			map[string]any{"name": "a", "replies": map[string]any{"totalItems": float64(3)}},
			map[string]any{"name": "b", "replies": map[string]any{"totalItems": float64(1)}},
		},
	}
	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("CreateRemotePost: %v", err)
	}
	if !strings.Contains(post.Content, "<p>a: 3</p>") {
		t.Fatalf("Content = %q, want it to contain the rendered poll result for option a", post.Content)
	}
	if !strings.Contains(post.Content, "<p>b: 1</p>") {
		t.Fatalf("Content = %q, want it to contain the rendered poll result for option b", post.Content)
	}
	if !strings.Contains(post.Content, raw["id"].(string)) {
		t.Fatalf("Content = %q, want a trailing anchor back to the original Question URL", post.Content)
	}
	if !post.IsPoll {
		t.Fatal("expected IsPoll to be set for a Question object")
	}
}

func TestCreateRemotePostParsesUpdatedTimestamp(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           "https://remote.example/posts/1",
		"attributedTo": author.ActorURI,
		"content":      "hello world",
		"published":    "2026-01-01T00:00:00Z",
		"updated":      "2026-01-02T00:00:00Z",
	}
	post, err := im.CreateRemotePost(raw, author.ActorURI)
	if err != nil {
		t.Fatalf("CreateRemotePost: %v", err)
	}
	want, _ := time.Parse(time.RFC3339, "2026-01-02T00:00:00Z")
	if post.UpdatedAt == nil || !post.UpdatedAt.Equal(want) {
		t.Fatalf("UpdatedAt = %v, want %v", post.UpdatedAt, want)
	}
}

func TestUpdateRemotePostReplacesMutableFields(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	existing := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ObjectURI: "https://remote.example/posts/1", Content: "old"}
	mdb.postsByURI[existing.ObjectURI] = existing
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           existing.ObjectURI,
		"attributedTo": author.ActorURI,
		"content":      "updated content",
		"sensitive":    true,
	}
	if _, err := im.UpdateRemotePost(raw); err != nil {
		t.Fatalf("UpdateRemotePost: %v", err)
	}
	if len(mdb.mutations) != 1 {
		t.Fatalf("expected one UpdatePost call, got %d", len(mdb.mutations))
	}
	if !mdb.mutations[0].IsSensitive {
		t.Fatal("expected the sensitive flag to carry through the mutation")
	}
}

func TestUpdateRemotePostRejectsAuthorChange(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	impostor := addLocalAuthor(mdb, "https://remote.example/users/mallory", "mallory")
	existing := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ObjectURI: "https://remote.example/posts/1"}
	mdb.postsByURI[existing.ObjectURI] = existing
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"id":           existing.ObjectURI,
		"attributedTo": impostor.ActorURI,
		"content":      "hijacked",
	}
	if _, err := im.UpdateRemotePost(raw); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want KindValidation when attributedTo changes across an update", err)
	}
}

func TestUpdateRemotePostRejectsUnknownObject(t *testing.T) {
	mdb := newMockDatabase()
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{"id": "https://remote.example/posts/missing", "attributedTo": "https://remote.example/users/alice"}
	if _, err := im.UpdateRemotePost(raw); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want KindNotFound for an update to an unknown post", err)
	}
}

func TestCheckUnsolicitedRejectsPublicDisconnectedFromStranger(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/spammer", "spammer")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"attributedTo": author.ActorURI,
		"to":           []any{"https://www.w3.org/ns/activitystreams#Public"},
	}
	if err := im.CheckUnsolicited(raw, "home.example"); !apperr.Is(err, apperr.KindUnsolicited) {
		t.Fatalf("err = %v, want KindUnsolicited", err)
	}
}

func TestCheckUnsolicitedAllowsFollowedAuthor(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	mdb.followers[author.Id] = []domain.Relationship{{SourceId: uuid.New(), TargetId: author.Id, Kind: domain.RelFollow}}
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"attributedTo": author.ActorURI,
		"to":           []any{"https://www.w3.org/ns/activitystreams#Public"},
	}
	if err := im.CheckUnsolicited(raw, "home.example"); err != nil {
		t.Fatalf("expected an author with local followers to pass the unsolicited check, got %v", err)
	}
}

func TestCheckUnsolicitedAllowsDirectLocalRecipient(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"attributedTo": author.ActorURI,
		"to":           []any{"https://home.example/users/bob"},
	}
	if err := im.CheckUnsolicited(raw, "home.example"); err != nil {
		t.Fatalf("expected a directly-addressed local recipient to pass, got %v", err)
	}
}

func TestCheckUnsolicitedAllowsReplyToKnownPost(t *testing.T) {
	mdb := newMockDatabase()
	author := addLocalAuthor(mdb, "https://remote.example/users/alice", "alice")
	parent := &domain.Post{Id: uuid.New(), ObjectURI: "https://remote.example/posts/parent"}
	mdb.postsByURI[parent.ObjectURI] = parent
	im := newImporterForPostTests(mdb, nil)

	raw := map[string]any{
		"attributedTo": author.ActorURI,
		"to":           []any{"https://www.w3.org/ns/activitystreams#Public"},
		"inReplyTo":    parent.ObjectURI,
	}
	if err := im.CheckUnsolicited(raw, "home.example"); err != nil {
		t.Fatalf("expected a reply to an already-known post to pass, got %v", err)
	}
}
