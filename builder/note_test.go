package builder

import (
	"testing"

	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/identity"
	"github.com/google/uuid"
)

func newTestBuilder(mdb *mockDatabase) *Builder {
	return &Builder{DB: mdb, InstanceHostname: "home.example", InstanceURL: "https://home.example", FepE232Enabled: true}
}

func TestBuildNotePublicAddressesFollowersAsCC(t *testing.T) {
	mdb := newMockDatabase()
	author := &domain.Actor{Id: uuid.New(), Username: "alice", ActorURI: "https://home.example/users/alice"}
	mdb.addActor(author)
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, Content: "hello", Visibility: domain.VisibilityPublic}
	mdb.addPost(post)
	b := newTestBuilder(mdb)

	note, err := b.BuildNote(post.Id, identity.ServerAuthority("home.example"))
	if err != nil {
		t.Fatalf("BuildNote: %v", err)
	}
	to, _ := note["to"].([]string)
	cc, _ := note["cc"].([]string)
	if len(to) != 1 || to[0] != identity.ActivityStreamsPublic {
		t.Fatalf("to = %v, want [Public]", to)
	}
	if len(cc) != 1 || cc[0] != identity.FollowersURI(author.ActorURI) {
		t.Fatalf("cc = %v, want [followers]", cc)
	}
	if note["type"] != "Note" {
		t.Fatalf("type = %v, want Note", note["type"])
	}
}

func TestBuildNoteFollowersOnlyAddressesOnlyFollowers(t *testing.T) {
	mdb := newMockDatabase()
	author := &domain.Actor{Id: uuid.New(), Username: "alice", ActorURI: "https://home.example/users/alice"}
	mdb.addActor(author)
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, Content: "friends only", Visibility: domain.VisibilityFollowers}
	mdb.addPost(post)
	b := newTestBuilder(mdb)

	note, err := b.BuildNote(post.Id, identity.ServerAuthority("home.example"))
	if err != nil {
		t.Fatalf("BuildNote: %v", err)
	}
	to, _ := note["to"].([]string)
	if len(to) != 1 || to[0] != identity.FollowersURI(author.ActorURI) {
		t.Fatalf("to = %v, want only followers", to)
	}
	if cc, _ := note["cc"].([]string); len(cc) != 0 {
		t.Fatalf("cc = %v, want empty for a followers-only note", cc)
	}
}

func TestBuildNoteIncludesMentionTagsAndAddressesThem(t *testing.T) {
	mdb := newMockDatabase()
	author := &domain.Actor{Id: uuid.New(), Username: "alice", ActorURI: "https://home.example/users/alice"}
	mdb.addActor(author)
	bob := &domain.Actor{Id: uuid.New(), Username: "bob", ActorURI: "https://remote.example/users/bob"}
	mdb.addActor(bob)
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, Content: "hi bob", Visibility: domain.VisibilityDirect}
	mdb.addPost(post)
	mdb.mentions[post.Id] = []uuid.UUID{bob.Id}
	b := newTestBuilder(mdb)

	note, err := b.BuildNote(post.Id, identity.ServerAuthority("home.example"))
	if err != nil {
		t.Fatalf("BuildNote: %v", err)
	}
	to, _ := note["to"].([]string)
	if len(to) != 1 || to[0] != bob.ActorURI {
		t.Fatalf("to = %v, want the mentioned actor addressed directly", to)
	}
	tags, _ := note["tag"].([]map[string]any)
	if len(tags) != 1 || tags[0]["type"] != "Mention" || tags[0]["href"] != bob.ActorURI {
		t.Fatalf("tag = %+v, want a Mention tag for bob", tags)
	}
}

func TestBuildNoteRendersPollAsQuestion(t *testing.T) {
	mdb := newMockDatabase()
	author := &domain.Actor{Id: uuid.New(), Username: "alice", ActorURI: "https://home.example/users/alice"}
	mdb.addActor(author)
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, Content: "pick one", Visibility: domain.VisibilityPublic, IsPoll: true}
	mdb.addPost(post)
	mdb.pollOptions[post.Id] = []domain.PollOption{{Name: "cats", Votes: 3}, {Name: "dogs", Votes: 5}}
	b := newTestBuilder(mdb)

	note, err := b.BuildNote(post.Id, identity.ServerAuthority("home.example"))
	if err != nil {
		t.Fatalf("BuildNote: %v", err)
	}
	if note["type"] != "Question" {
		t.Fatalf("type = %v, want Question", note["type"])
	}
	oneOf, _ := note["oneOf"].([]map[string]any)
	if len(oneOf) != 2 || oneOf[0]["name"] != "cats" {
		t.Fatalf("oneOf = %+v", oneOf)
	}
}

func TestBuildNoteIncludesReplyLink(t *testing.T) {
	mdb := newMockDatabase()
	author := &domain.Actor{Id: uuid.New(), Username: "alice", ActorURI: "https://home.example/users/alice"}
	mdb.addActor(author)
	parent := &domain.Post{Id: uuid.New(), AuthorId: author.Id, ObjectURI: "https://home.example/objects/parent", Visibility: domain.VisibilityPublic}
	mdb.addPost(parent)
	reply := &domain.Post{Id: uuid.New(), AuthorId: author.Id, Content: "a reply", Visibility: domain.VisibilityPublic, InReplyTo: &parent.Id}
	mdb.addPost(reply)
	b := newTestBuilder(mdb)

	note, err := b.BuildNote(reply.Id, identity.ServerAuthority("home.example"))
	if err != nil {
		t.Fatalf("BuildNote: %v", err)
	}
	if note["inReplyTo"] != parent.ObjectURI {
		t.Fatalf("inReplyTo = %v, want %v", note["inReplyTo"], parent.ObjectURI)
	}
}

func TestBuildNoteReturnsNotFoundForMissingPost(t *testing.T) {
	mdb := newMockDatabase()
	b := newTestBuilder(mdb)

	if _, err := b.BuildNote(uuid.New(), identity.ServerAuthority("home.example")); err == nil {
		t.Fatal("expected an error for a post that does not exist")
	}
}

func TestBuildNoteUnderPortableAuthorityMintsApURI(t *testing.T) {
	mdb := newMockDatabase()
	author := &domain.Actor{Id: uuid.New(), Username: "alice", ActorURI: "ap://did:key:z6Mkexample/actor"}
	mdb.addActor(author)
	post := &domain.Post{Id: uuid.New(), AuthorId: author.Id, Content: "portable", Visibility: domain.VisibilityPublic}
	mdb.addPost(post)
	b := newTestBuilder(mdb)

	note, err := b.BuildNote(post.Id, identity.PortableAuthority("did:key:z6Mkexample"))
	if err != nil {
		t.Fatalf("BuildNote: %v", err)
	}
	id, _ := note["id"].(string)
	if id == "" || id[:5] != "ap://" {
		t.Fatalf("id = %q, want an ap:// object id under the portable authority", id)
	}
}
