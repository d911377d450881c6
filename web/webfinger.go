package web

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/identity"
	"github.com/fediglade/fediglade/util"
)

// WebFingerResponse is the JRD document returned for acct:user@host.
type WebFingerResponse struct {
	Subject string             `json:"subject"`
	Links   []WebFingerLinkRel `json:"links"`
}

type WebFingerLinkRel struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

// GetWebfinger resolves a bare username to its JRD document, the acct:
// side of actor discovery (spec.md 6).
func GetWebfinger(username string, conf *util.AppConfig) (error, string) {
	err, actor := db.GetDB().ReadActorByUsername(username)
	if err != nil || actor == nil {
		return fmt.Errorf("actor %s not found", username), GetWebFingerNotFound()
	}

	resp := WebFingerResponse{
		Subject: fmt.Sprintf("acct:%s@%s", actor.Username, conf.Conf.SslDomain),
		Links: []WebFingerLinkRel{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: identity.LocalActorURI(conf.Conf.SslDomain, actor.Username),
			},
		},
	}

	jsonBytes, err := json.Marshal(resp)
	if err != nil {
		log.Printf("failed to marshal webfinger response: %v", err)
		return err, GetWebFingerNotFound()
	}
	return nil, string(jsonBytes)
}

// GetWebFingerNotFound is the canned "no such resource" JRD.
func GetWebFingerNotFound() string {
	return `{"subject": "", "links": []}`
}
