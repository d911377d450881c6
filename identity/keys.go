package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// RsaKeyPair is the PEM-encoded key pair backing HTTP Signatures for a
// local actor.
type RsaKeyPair struct {
	Public  string
	Private string
}

// Ed25519KeyPair is the PEM-encoded key pair backing Data Integrity proofs
// and DID-key identity for a local actor.
type Ed25519KeyPair struct {
	Public  string
	Private string
}

// GenerateRSAKeyPair mints a fresh 2048-bit PKCS#1 key pair, PEM-encoded.
func GenerateRSAKeyPair() (*RsaKeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(priv)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling rsa public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return &RsaKeyPair{Public: string(pubPEM), Private: string(privPEM)}, nil
}

// GenerateEd25519KeyPair mints a fresh Ed25519 key pair, PEM-encoded using
// the standard PKCS#8/PKIX envelopes. No Multikey/did:key form is produced
// here; DecodeDidKeyPublicKey below reads that form back into a key.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling ed25519 private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling ed25519 public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return &Ed25519KeyPair{Public: string(pubPEM), Private: string(privPEM)}, nil
}

// ParseEd25519PrivateKey decodes a PEM-encoded PKCS#8 Ed25519 private key.
func ParseEd25519PrivateKey(pemStr string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("ed25519: failed to decode PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ed25519: parsing PKCS8 key: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("ed25519: PEM block is not an Ed25519 key")
	}
	return edKey, nil
}

// ParseEd25519PublicKey decodes a PEM-encoded PKIX Ed25519 public key.
func ParseEd25519PublicKey(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("ed25519: failed to decode PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ed25519: parsing PKIX key: %w", err)
	}
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("ed25519: PEM block is not an Ed25519 key")
	}
	return edKey, nil
}

// DecodeDidKeyPublicKey recovers the Ed25519 public key embedded in a
// did:key identifier, using this instance's multibase stand-in encoding (a
// literal 'z' prefix over unpadded standard base64, matching the same
// convention BuildIntegrityProof uses for proofValue).
func DecodeDidKeyPublicKey(did string) (ed25519.PublicKey, error) {
	const prefix = "did:key:"
	if !strings.HasPrefix(did, prefix) {
		return nil, errors.New("ed25519: not a did:key identifier")
	}
	multibase := strings.TrimPrefix(did, prefix)
	if len(multibase) == 0 || multibase[0] != 'z' {
		return nil, errors.New("ed25519: did:key value must start with 'z'")
	}
	raw, err := base64.RawStdEncoding.DecodeString(multibase[1:])
	if err != nil {
		return nil, fmt.Errorf("ed25519: decoding did:key value: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519: did:key value is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ParsePrivateKey decodes an RSA private key in either PKCS#1 or PKCS#8 PEM
// form, matching the two formats actually seen in the wild across instance
// software versions.
func ParsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("httpsig: failed to decode PEM block for private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("httpsig: unsupported private key format: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("httpsig: PEM block is not an RSA private key")
	}
	return rsaKey, nil
}

// ParsePublicKey decodes an RSA public key in either legacy PKCS#1 or PKIX
// PEM form.
func ParsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("httpsig: failed to decode PEM block for public key")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("httpsig: unsupported public key format: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("httpsig: PEM block is not an RSA public key")
	}
	return rsaKey, nil
}
