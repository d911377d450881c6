package domain

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who may see a post and who it is addressed to.
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityFollowers    Visibility = "followers"
	VisibilitySubscribers  Visibility = "subscribers"
	VisibilityConversation Visibility = "conversation"
	VisibilityDirect       Visibility = "direct"
)

// Attachment is a media item attached to a post.
type Attachment struct {
	Id              uuid.UUID
	PostId          uuid.UUID
	MediaType       string
	URL             string
	Name            string // description / alt text
	DigestMultibase string // multibase(sha256(file)), empty if not computed
}

// Mention references an actor addressed by a post.
type Mention struct {
	PostId  uuid.UUID
	ActorId uuid.UUID
}

// Hashtag is a normalized (lowercased, '#' stripped) tag.
type Hashtag struct {
	Id   int64
	Name string
}

// EmojiRef is a custom-emoji tag referencing a shortcode and image URL.
type EmojiRef struct {
	PostId    uuid.UUID
	Shortcode string
	IconURL   string
	UpdatedAt time.Time
}

// PollOption is one choice of a Question/poll post.
type PollOption struct {
	PostId uuid.UUID
	Name   string
	Votes  int
}

// Post is an authored content object, local or remote.
type Post struct {
	Id       uuid.UUID
	AuthorId uuid.UUID

	// ObjectURI is the canonical remote id; required for remote posts, empty
	// for local posts until first federated (at which point it is minted).
	ObjectURI string

	Content       string // rendered HTML
	ContentSource string // original markup, local posts only
	Language      string

	Visibility  Visibility
	IsSensitive bool

	InReplyTo *uuid.UUID
	RepostOf  *uuid.UUID

	ConversationId uuid.UUID

	// IsPoll marks a Question object; PollOptions and PollEndTime apply only then.
	IsPoll      bool
	PollEndTime *time.Time

	ReplyCount   int
	RepostCount  int
	ReactionCount int
	LikeCount    int

	CreatedAt time.Time
	UpdatedAt *time.Time

	IpfsCid string // non-empty posts become immutable (cannot be updated)
}

// IsRepost reports whether this post is a repost (Announce) of another.
func (p *Post) IsRepost() bool {
	return p.RepostOf != nil
}

// IsReply reports whether this post replies to another post.
func (p *Post) IsReply() bool {
	return p.InReplyTo != nil
}

// Immutable reports whether the post may no longer be edited.
func (p *Post) Immutable() bool {
	return p.IpfsCid != "" || p.IsRepost()
}

// PostMutation is the set of fields update_post rewrites, plus the replacement
// tag/attachment sets it atomically swaps in.
type PostMutation struct {
	Content       string
	ContentSource string
	IsSensitive   bool
	Language      string

	Attachments []Attachment
	Mentions    []uuid.UUID
	Hashtags    []string
	Links       []uuid.UUID
	Emojis      []EmojiRef
}

// DeletionQueue is the set of storage objects detached by a mutation and
// eligible for background reclamation.
type DeletionQueue struct {
	FileNames []string
	IpfsCids  []string
}
