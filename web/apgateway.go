package web

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/identity"
	"github.com/fediglade/fediglade/util"
	"github.com/google/uuid"
)

// RegisterPortableActor implements POST /.well-known/apgateway (spec.md S6):
// a client submits its own signed actor document under a did:key identity,
// gated by an invite code. The inline Data Integrity proof is verified
// against the did:key's own public key before the document is mirrored as
// a local portable account.
func RegisterPortableActor(body []byte, inviteCode string, conf *util.AppConfig) error {
	if conf.Conf.InviteCode == "" || inviteCode != conf.Conf.InviteCode {
		return apperr.Authentication("missing or invalid invite code", nil)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return apperr.Validation("actor document is not valid JSON", err)
	}

	id, _ := raw["id"].(string)
	did := strings.TrimSuffix(strings.TrimPrefix(id, "ap://"), "/actor")
	if !strings.HasPrefix(did, "did:key:") {
		return apperr.Validation("actor id is not a portable did:key identity", nil)
	}
	authority := identity.PortableAuthority(did)

	proof, err := decodeProof(raw)
	if err != nil {
		return err
	}
	if !authority.Matches(proof.VerificationMethod) {
		return apperr.Validation("proof verificationMethod does not match the actor's did:key", nil)
	}

	pub, err := identity.DecodeDidKeyPublicKey(did)
	if err != nil {
		return apperr.Validation("cannot decode did:key public key", err)
	}
	if err := identity.VerifyIntegrityProof(raw, proof, pub); err != nil {
		return apperr.Authentication("data integrity proof does not verify", err)
	}

	actorURI := authority.ActorID("")
	if err, existing := db.GetDB().ReadActorByURI(actorURI); err == nil && existing != nil {
		return apperr.Conflict("a portable account already exists for this did:key", nil)
	}

	username := stringField(raw, "preferredUsername")
	if username == "" {
		username = strings.TrimPrefix(did, "did:key:")
	}

	a := &domain.Actor{
		Id:            uuid.New(),
		Username:      username,
		Kind:          domain.ActorPerson,
		ActorURI:      actorURI,
		DisplayName:   stringField(raw, "name"),
		Summary:       stringField(raw, "summary"),
		Ed25519Public: strings.TrimPrefix(did, "did:key:"),
		CreatedAt:     time.Now(),
		LastFetchedAt: time.Now(),
	}
	if raw256, err := json.Marshal(raw); err == nil {
		rawMsg := json.RawMessage(raw256)
		a.RemoteJSON = &rawMsg
	}

	if err := db.GetDB().CreateActor(a); err != nil {
		return apperr.Storage("creating portable account", err)
	}
	return nil
}

func decodeProof(raw map[string]any) (*identity.Proof, error) {
	proofRaw, ok := raw["proof"].(map[string]any)
	if !ok {
		return nil, apperr.Validation("actor document missing a proof", nil)
	}
	return &identity.Proof{
		Type:               stringField(proofRaw, "type"),
		Cryptosuite:        stringField(proofRaw, "cryptosuite"),
		VerificationMethod: stringField(proofRaw, "verificationMethod"),
		ProofPurpose:       stringField(proofRaw, "proofPurpose"),
		ProofValue:         stringField(proofRaw, "proofValue"),
		Created:            stringField(proofRaw, "created"),
	}, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
