package web

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/identity"
	"github.com/fediglade/fediglade/util"
)

func testConfWithInvite(code string) *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.InviteCode = code
	return conf
}

func didKeyFor(pub ed25519.PublicKey) string {
	return "did:key:z" + base64.RawStdEncoding.EncodeToString(pub)
}

func TestRegisterPortableActorRejectsMissingInviteCode(t *testing.T) {
	conf := testConfWithInvite("letmein")
	err := RegisterPortableActor([]byte(`{}`), "", conf)
	if !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want KindAuthentication", err)
	}
}

func TestRegisterPortableActorRejectsWrongInviteCode(t *testing.T) {
	conf := testConfWithInvite("letmein")
	err := RegisterPortableActor([]byte(`{}`), "wrong", conf)
	if !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want KindAuthentication", err)
	}
}

func TestRegisterPortableActorRejectsNonDidKeyId(t *testing.T) {
	conf := testConfWithInvite("letmein")
	doc := map[string]any{"id": "https://remote.example/users/bob"}
	body, _ := json.Marshal(doc)

	err := RegisterPortableActor(body, "letmein", conf)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want KindValidation for a non-did:key id", err)
	}
}

func TestRegisterPortableActorRejectsMissingProof(t *testing.T) {
	conf := testConfWithInvite("letmein")
	doc := map[string]any{"id": "ap://did:key:zexample/actor"}
	body, _ := json.Marshal(doc)

	err := RegisterPortableActor(body, "letmein", conf)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want KindValidation for a missing proof", err)
	}
}

func TestRegisterPortableActorRejectsVerificationMethodMismatch(t *testing.T) {
	conf := testConfWithInvite("letmein")
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	did := didKeyFor(pub)
	doc := map[string]any{
		"id": "ap://" + did + "/actor",
		"proof": map[string]any{
			"type":               "DataIntegrityProof",
			"cryptosuite":        "eddsa-jcs-2022",
			"verificationMethod": "did:key:zsomeoneelse#ed25519-key",
			"proofPurpose":       "assertionMethod",
			"proofValue":         "zstub",
		},
	}
	body, _ := json.Marshal(doc)

	if err := RegisterPortableActor(body, "letmein", conf); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want KindValidation for a mismatched verificationMethod", err)
	}
}

func TestRegisterPortableActorRejectsBadProofSignature(t *testing.T) {
	conf := testConfWithInvite("letmein")
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	_, wrongPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	did := didKeyFor(pub)
	actorID := "ap://" + did + "/actor"
	verificationMethod := did + "#ed25519-key"

	doc := map[string]any{"id": actorID, "type": "Person"}
	proof, err := identity.BuildIntegrityProof(doc, verificationMethod, wrongPriv)
	if err != nil {
		t.Fatalf("BuildIntegrityProof: %v", err)
	}
	doc["proof"] = map[string]any{
		"type":               proof.Type,
		"cryptosuite":        proof.Cryptosuite,
		"verificationMethod": proof.VerificationMethod,
		"proofPurpose":       proof.ProofPurpose,
		"proofValue":         proof.ProofValue,
		"created":            proof.Created,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	err = RegisterPortableActor(body, "letmein", conf)
	if !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("err = %v, want KindAuthentication for a proof signed by the wrong key", err)
	}
}
