package delivery

import (
	"encoding/json"
	"log"
	"time"

	"github.com/fediglade/fediglade/domain"
)

// Enqueue computes post's recipients and fans activity out to them: remote
// recipients become DeliveryJob rows (one per deduplicated inbox) written
// via database.EnqueueDeliveryJobs, in a transaction of its own rather than
// the one that saved the activity, and local recipients are delivered
// directly in-process through local, per spec.md 4.G. Inboxes whose owning
// actor is currently marked unreachable are throttled: their job is
// scheduled defaultBaseBackoff in the future instead of immediately.
func Enqueue(database Database, local LocalDeliverer, post *domain.Post, author *domain.Actor, activity map[string]any) error {
	recipients, err := ComputeRecipients(database, post, author)
	if err != nil {
		return err
	}

	if len(recipients.Inboxes) > 0 {
		activityJSON, err := json.Marshal(activity)
		if err != nil {
			return err
		}
		var ready, throttled []string
		for _, inbox := range recipients.Inboxes {
			if err, actor := database.ReadActorByInboxURI(inbox); err == nil && actor != nil && actor.UnreachableSince != nil {
				throttled = append(throttled, inbox)
				continue
			}
			ready = append(ready, inbox)
		}
		if len(ready) > 0 {
			if err := database.EnqueueDeliveryJobs(author.Id, string(activityJSON), ready); err != nil {
				return err
			}
		}
		if len(throttled) > 0 {
			notBefore := time.Now().Add(defaultBaseBackoff)
			if err := database.EnqueueDeliveryJobsAt(author.Id, string(activityJSON), throttled, notBefore); err != nil {
				return err
			}
		}
	}

	for _, localID := range recipients.LocalActors {
		if local == nil {
			continue
		}
		if err := local.DeliverLocal(activity, author, localID); err != nil {
			log.Printf("delivery: local delivery to %s: %v", localID, err)
		}
	}
	return nil
}
