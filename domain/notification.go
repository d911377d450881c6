package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationFollow  NotificationType = "follow"
	NotificationLike    NotificationType = "like"
	NotificationReply   NotificationType = "reply"
	NotificationMention NotificationType = "mention"
	NotificationRepost  NotificationType = "repost"
)

// Notification represents a user notification
type Notification struct {
	Id               uuid.UUID
	ActorId          uuid.UUID        // the local actor receiving the notification
	NotificationType NotificationType // follow, like, reply, mention, repost
	SourceActorId    uuid.UUID        // the actor that triggered the notification (local or remote)
	SourceHandle     string           // denormalized acct() for display
	PostId           *uuid.UUID       // reference to the post (for like/reply/mention/repost)
	PostURI          string           // ActivityPub id of the post
	PostPreview      string           // first 100 chars of post content
	Read             bool
	CreatedAt        time.Time
}

// TypeLabel returns a human-readable label for the notification type
func (n *Notification) TypeLabel() string {
	switch n.NotificationType {
	case NotificationFollow:
		return "followed you"
	case NotificationLike:
		return "liked your post"
	case NotificationReply:
		return "replied to your post"
	case NotificationMention:
		return "mentioned you"
	case NotificationRepost:
		return "reposted your post"
	default:
		return ""
	}
}

// Summary returns a one-line summary of the notification
func (n *Notification) Summary() string {
	return fmt.Sprintf("@%s %s", n.SourceHandle, n.TypeLabel())
}
