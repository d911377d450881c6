package identity

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
)

// maxClockSkew is the window within which a request's Date header must fall
// for VerifyRequest to accept it, per spec.md 4.A.
const maxClockSkew = 12 * time.Hour

// signatureExpiry is advisory metadata embedded in the Signature header for
// signers that honor it; it does not itself gate VerifyRequest.
const signatureExpiry = 120 * time.Second

var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// SignRequest signs req with keyID/priv, covering (request-target) host
// date digest, and sets the Digest header from the request body if not
// already present.
func SignRequest(req *http.Request, priv *rsa.PrivateKey, keyID string) error {
	body, err := readAndRestoreBody(req)
	if err != nil {
		return fmt.Errorf("httpsig: reading body: %w", err)
	}

	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Digest") == "" {
		req.Header.Set("Digest", computeDigest(body))
	}
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		int64(signatureExpiry.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("httpsig: building signer: %w", err)
	}

	if err := signer.SignRequest(priv, keyID, req, body); err != nil {
		return fmt.Errorf("httpsig: signing request: %w", err)
	}
	return nil
}

// VerifyRequest verifies req's Signature header against publicKeyPEM and
// returns the actor URI (the signature's keyId with any #fragment
// stripped). The Date header must fall within maxClockSkew of now.
func VerifyRequest(req *http.Request, publicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", fmt.Errorf("httpsig: %w", err)
	}

	if dateHeader := req.Header.Get("Date"); dateHeader != "" {
		reqTime, err := http.ParseTime(dateHeader)
		if err != nil {
			return "", fmt.Errorf("httpsig: unparseable Date header: %w", err)
		}
		skew := time.Since(reqTime)
		if skew < 0 {
			skew = -skew
		}
		if skew > maxClockSkew {
			return "", errors.New("httpsig: request Date outside acceptable window")
		}
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("httpsig: constructing verifier: %w", err)
	}

	keyID := verifier.KeyId()
	if keyID == "" {
		return "", errors.New("httpsig: signature missing keyId")
	}

	if err := verifier.Verify(pub, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("httpsig: signature verification failed: %w", err)
	}

	actorURI := keyID
	if idx := strings.Index(actorURI, "#"); idx >= 0 {
		actorURI = actorURI[:idx]
	}
	return actorURI, nil
}

func computeDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

func readAndRestoreBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return []byte{}, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
