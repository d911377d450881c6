package domain

import "github.com/google/uuid"

// Conversation is a thread root: the set of posts reachable by in_reply_to
// edges rooted at a single top-level post.
type Conversation struct {
	Id         uuid.UUID
	RootPostId uuid.UUID

	// Audience is the effective addressing for Conversation-visibility
	// replies; nil for conversations rooted at a Direct post.
	Audience *string
}
