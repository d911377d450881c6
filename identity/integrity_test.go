package identity

import "testing"

func TestBuildAndVerifyIntegrityProof(t *testing.T) {
	pair, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateEd25519KeyPair: %v", err)
	}
	priv, err := ParseEd25519PrivateKey(pair.Private)
	if err != nil {
		t.Fatalf("ParseEd25519PrivateKey: %v", err)
	}
	pub, err := ParseEd25519PublicKey(pair.Public)
	if err != nil {
		t.Fatalf("ParseEd25519PublicKey: %v", err)
	}

	doc := map[string]any{
		"id":   "ap://did:key:z6Mkexample/actor",
		"type": "Person",
		"name": "alice",
	}
	verificationMethod := "ap://did:key:z6Mkexample/actor#ed25519-key"

	proof, err := BuildIntegrityProof(doc, verificationMethod, priv)
	if err != nil {
		t.Fatalf("BuildIntegrityProof: %v", err)
	}
	if proof.Cryptosuite != "eddsa-jcs-2022" {
		t.Fatalf("unexpected cryptosuite %q", proof.Cryptosuite)
	}

	doc["proof"] = proof
	if err := VerifyIntegrityProof(doc, proof, pub); err != nil {
		t.Fatalf("VerifyIntegrityProof: %v", err)
	}
}

func TestVerifyIntegrityProofRejectsTamperedDocument(t *testing.T) {
	pair, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateEd25519KeyPair: %v", err)
	}
	priv, _ := ParseEd25519PrivateKey(pair.Private)
	pub, _ := ParseEd25519PublicKey(pair.Public)

	doc := map[string]any{"id": "ap://did:key:z6Mkexample/actor", "type": "Person"}
	proof, err := BuildIntegrityProof(doc, "ap://did:key:z6Mkexample/actor#ed25519-key", priv)
	if err != nil {
		t.Fatalf("BuildIntegrityProof: %v", err)
	}

	doc["name"] = "mallory"
	if err := VerifyIntegrityProof(doc, proof, pub); err == nil {
		t.Fatal("expected verification to fail against a tampered document")
	}
}

func TestVerifyIntegrityProofRejectsWrongKey(t *testing.T) {
	signerKeys, _ := GenerateEd25519KeyPair()
	otherKeys, _ := GenerateEd25519KeyPair()
	priv, _ := ParseEd25519PrivateKey(signerKeys.Private)
	wrongPub, _ := ParseEd25519PublicKey(otherKeys.Public)

	doc := map[string]any{"id": "ap://did:key:z6Mkexample/actor"}
	proof, err := BuildIntegrityProof(doc, "ap://did:key:z6Mkexample/actor#ed25519-key", priv)
	if err != nil {
		t.Fatalf("BuildIntegrityProof: %v", err)
	}

	if err := VerifyIntegrityProof(doc, proof, wrongPub); err == nil {
		t.Fatal("expected verification to fail against the wrong public key")
	}
}
