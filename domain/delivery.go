package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryState is the lifecycle state of one recipient of a DeliveryJob.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryRetry     DeliveryState = "retry"
	DeliveryAbandoned DeliveryState = "abandoned"
)

// DeliveryJob is one unit of work: a signed activity addressed to a single
// recipient inbox, with its own retry counter and terminal state.
type DeliveryJob struct {
	Id uuid.UUID

	ActorId      uuid.UUID // signing local actor
	InboxURI     string
	ActivityJSON string

	State         DeliveryState
	Attempts      int
	FailureReason string
	NextAttemptAt time.Time

	CreatedAt time.Time
}
