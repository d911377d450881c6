package web

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/inbox"
	"github.com/fediglade/fediglade/util"
	"github.com/gin-gonic/gin"
)

// processInbox hands body to rcv.Handle for localUsername and maps its
// *apperr.Error onto the status codes spec.md 4.F and 6 require:
// authentication failures are 403, validation failures 400, unsolicited
// messages are swallowed as 202 so the remote doesn't retry.
func processInbox(c *gin.Context, rcv *inbox.Receiver, body []byte, localUsername string) {
	err := rcv.Handle(c.Request, body, localUsername)
	if err == nil {
		c.Status(http.StatusAccepted)
		return
	}

	switch {
	case apperr.Is(err, apperr.KindAuthentication):
		log.Printf("inbox: rejected (authentication): %v", err)
		c.Status(http.StatusForbidden)
	case apperr.Is(err, apperr.KindValidation):
		log.Printf("inbox: rejected (validation): %v", err)
		c.Status(http.StatusBadRequest)
	case apperr.Is(err, apperr.KindUnsolicited):
		log.Printf("inbox: swallowed unsolicited message: %v", err)
		c.Status(http.StatusAccepted)
	default:
		log.Printf("inbox: internal error processing activity: %v", err)
		c.Status(http.StatusInternalServerError)
	}
}

// handlePersonalInbox handles POST /users/:actor/inbox: the actor is
// named in the path, so no addressing inspection is needed.
func handlePersonalInbox(rcv *inbox.Receiver) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		processInbox(c, rcv, body, c.Param("actor"))
	}
}

// handleSharedInbox handles POST /inbox: the shared inbox every local
// actor advertises via endpoints.sharedInbox. The target actor isn't in
// the path, so it's inferred from the activity's own addressing (to/cc/
// object), falling back to "whichever local actor follows this sender"
// for activities (Create/Update/Delete) that don't name a recipient at
// all, matching the teacher's original shared-inbox routing.
func handleSharedInbox(rcv *inbox.Receiver, conf *util.AppConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}

		var activity map[string]any
		if err := json.Unmarshal(body, &activity); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}

		username := resolveSharedInboxTarget(activity, conf)
		if username == "" {
			log.Printf("shared inbox: could not determine target for activity type %v", activity["type"])
			c.Status(http.StatusAccepted) // accept anyway, nothing further to do
			return
		}

		processInbox(c, rcv, body, username)
	}
}

func resolveSharedInboxTarget(activity map[string]any, conf *util.AppConfig) string {
	extract := func(uri string) string {
		if !strings.Contains(uri, conf.Conf.SslDomain) || !strings.Contains(uri, "/users/") {
			return ""
		}
		parts := strings.Split(uri, "/")
		for i, part := range parts {
			if part == "users" && i+1 < len(parts) {
				username := parts[i+1]
				if slash := strings.Index(username, "/"); slash > 0 {
					username = username[:slash]
				}
				return username
			}
		}
		return ""
	}

	if to, ok := activity["to"].([]any); ok {
		for _, v := range to {
			if s, ok := v.(string); ok {
				if u := extract(s); u != "" {
					return u
				}
			}
		}
	}
	if cc, ok := activity["cc"].([]any); ok {
		for _, v := range cc {
			if s, ok := v.(string); ok {
				if u := extract(s); u != "" {
					return u
				}
			}
		}
	}
	if obj, ok := activity["object"].(string); ok {
		if u := extract(obj); u != "" {
			return u
		}
	}

	actorURI, _ := activity["actor"].(string)
	if actorURI == "" {
		return ""
	}
	errA, remote := db.GetDB().ReadActorByURI(actorURI)
	if errA != nil || remote == nil {
		return ""
	}
	errF, followers := db.GetDB().ReadFollowers(remote.Id)
	if errF != nil || len(followers) == 0 {
		return ""
	}
	errL, local := db.GetDB().ReadActorById(followers[0].SourceId)
	if errL != nil || local == nil {
		return ""
	}
	return local.Username
}
