package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const proofType = "DataIntegrityProof"
const proofCryptosuite = "eddsa-jcs-2022"

// Proof is an inline Data Integrity proof as embedded on FEP-ef61 objects.
type Proof struct {
	Type               string `json:"type"`
	Cryptosuite        string `json:"cryptosuite"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
	Created            string `json:"created"`
}

// BuildIntegrityProof signs document (with any existing "proof" member
// stripped before canonicalization, per eddsa-jcs-2022) using the actor's
// Ed25519 key, and returns the Proof to attach under the "proof" member.
func BuildIntegrityProof(document map[string]any, verificationMethod string, priv ed25519.PrivateKey) (*Proof, error) {
	clean := make(map[string]any, len(document))
	for k, v := range document {
		if k == "proof" {
			continue
		}
		clean[k] = v
	}

	canonical, err := JCS(clean)
	if err != nil {
		return nil, fmt.Errorf("integrity: canonicalizing document: %w", err)
	}

	sig := ed25519.Sign(priv, canonical)

	return &Proof{
		Type:               proofType,
		Cryptosuite:        proofCryptosuite,
		VerificationMethod: verificationMethod,
		ProofPurpose:       "assertionMethod",
		ProofValue:         "z" + base64.RawStdEncoding.EncodeToString(sig), // multibase base64 prefix 'z' stand-in
		Created:            time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// VerifyIntegrityProof checks proof against document (with "proof" stripped
// before re-canonicalization) using pub.
func VerifyIntegrityProof(document map[string]any, proof *Proof, pub ed25519.PublicKey) error {
	if proof.Cryptosuite != proofCryptosuite {
		return fmt.Errorf("integrity: unsupported cryptosuite %q", proof.Cryptosuite)
	}
	if len(proof.ProofValue) == 0 || proof.ProofValue[0] != 'z' {
		return errors.New("integrity: malformed proofValue")
	}

	sig, err := base64.RawStdEncoding.DecodeString(proof.ProofValue[1:])
	if err != nil {
		return fmt.Errorf("integrity: decoding proofValue: %w", err)
	}

	clean := make(map[string]any, len(document))
	for k, v := range document {
		if k == "proof" {
			continue
		}
		clean[k] = v
	}

	canonical, err := JCS(clean)
	if err != nil {
		return fmt.Errorf("integrity: canonicalizing document: %w", err)
	}

	if !ed25519.Verify(pub, canonical, sig) {
		return errors.New("integrity: signature verification failed")
	}
	return nil
}
