package domain

import (
	"time"

	"github.com/google/uuid"
)

// RelationshipKind is the edge type of a directed Relationship.
type RelationshipKind string

const (
	RelFollow        RelationshipKind = "follow"
	RelFollowRequest RelationshipKind = "follow_request"
	RelSubscription  RelationshipKind = "subscription"
	RelHideReposts   RelationshipKind = "hide_reposts"
	RelHideReplies   RelationshipKind = "hide_replies"
	RelMute          RelationshipKind = "mute"
	RelReject        RelationshipKind = "reject"
)

// Relationship is a directed edge between two actors. At most one edge
// exists per (SourceId, TargetId, Kind).
type Relationship struct {
	Id       uuid.UUID
	SourceId uuid.UUID
	TargetId uuid.UUID
	Kind     RelationshipKind

	// URI is the remote Follow/Accept activity id backing this edge, empty
	// for relationship kinds that never cross the wire (Mute, HideReposts).
	URI string

	CreatedAt time.Time
}
