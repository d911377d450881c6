package fetcher

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/fediglade/fediglade/apperr"
	"github.com/fediglade/fediglade/domain"
)

// stubClient serves a scripted sequence of responses keyed by request URL,
// mirroring activitypub/httpsig_test.go's pattern of a hand-written
// RoundTripper-shaped stub rather than a mocking framework.
type stubClient struct {
	responses map[string]*http.Response
}

func (c *stubClient) Do(req *http.Request) (*http.Response, error) {
	resp, ok := c.responses[req.URL.String()]
	if !ok {
		return nil, apperr.Fetch("no stubbed response for "+req.URL.String(), nil)
	}
	return resp, nil
}

func jsonResponse(status int, body string, headers map[string]string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func TestFetchReturnsParsedObject(t *testing.T) {
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/objects/1": jsonResponse(http.StatusOK, `{"id":"https://remote.example/objects/1","type":"Note"}`, nil),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 1 << 20}

	obj, finalURL, err := f.Fetch("https://remote.example/objects/1", nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if obj["type"] != "Note" {
		t.Errorf("obj[type] = %v, want Note", obj["type"])
	}
	if finalURL != "https://remote.example/objects/1" {
		t.Errorf("finalURL = %q, want no redirect", finalURL)
	}
}

func TestFetchFollowsSameOriginRedirect(t *testing.T) {
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/objects/1": jsonResponse(http.StatusFound, "", map[string]string{"Location": "https://remote.example/objects/1/canonical"}),
		"https://remote.example/objects/1/canonical": jsonResponse(http.StatusOK, `{"id":"https://remote.example/objects/1/canonical","type":"Note"}`, nil),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 1 << 20}

	obj, finalURL, err := f.Fetch("https://remote.example/objects/1", nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if finalURL != "https://remote.example/objects/1/canonical" {
		t.Errorf("finalURL = %q, want the redirect target", finalURL)
	}
	if obj["id"] != "https://remote.example/objects/1/canonical" {
		t.Errorf("obj[id] = %v", obj["id"])
	}
}

func TestFetchRejectsCrossOriginRedirect(t *testing.T) {
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/objects/1": jsonResponse(http.StatusFound, "", map[string]string{"Location": "https://evil.example/objects/1"}),
		"https://evil.example/objects/1":   jsonResponse(http.StatusOK, `{"id":"https://remote.example/objects/1","type":"Note"}`, nil),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 1 << 20}

	_, _, err := f.Fetch("https://remote.example/objects/1", nil)
	if err == nil {
		t.Fatal("expected an authority-mismatch error for a cross-origin redirect")
	}
	var appErr *apperr.Error
	if !asApperr(err, &appErr) || appErr.Reason != ReasonAuthorityMismatch {
		t.Fatalf("err = %v, want Reason=%s", err, ReasonAuthorityMismatch)
	}
}

func TestFetchAllowsCrossOriginWhenObjectCarriesProof(t *testing.T) {
	client := &stubClient{responses: map[string]*http.Response{
		"ap://did:key:z6Mkexample/objects/1": jsonResponse(http.StatusFound, "", map[string]string{"Location": "https://relay.example/objects/1"}),
		"https://relay.example/objects/1":    jsonResponse(http.StatusOK, `{"id":"ap://did:key:z6Mkexample/objects/1","type":"Note","proof":{}}`, nil),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 1 << 20}

	_, _, err := f.Fetch("ap://did:key:z6Mkexample/objects/1", nil)
	if err != nil {
		t.Fatalf("expected a proof-carrying object to bypass the origin check, got %v", err)
	}
}

func TestFetchMapsNotFound(t *testing.T) {
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/objects/missing": jsonResponse(http.StatusNotFound, "", nil),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 1 << 20}

	_, _, err := f.Fetch("https://remote.example/objects/missing", nil)
	var appErr *apperr.Error
	if !asApperr(err, &appErr) || appErr.Reason != ReasonNotFound {
		t.Fatalf("err = %v, want Reason=%s", err, ReasonNotFound)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	body := `{"id":"https://remote.example/objects/1","padding":"` + strings.Repeat("x", 200) + `"}`
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/objects/1": jsonResponse(http.StatusOK, body, nil),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 32}

	_, _, err := f.Fetch("https://remote.example/objects/1", nil)
	var appErr *apperr.Error
	if !asApperr(err, &appErr) || appErr.Reason != ReasonTooLarge {
		t.Fatalf("err = %v, want Reason=%s", err, ReasonTooLarge)
	}
}

func TestFetchFileRejectsDisallowedMediaType(t *testing.T) {
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/media/evil.exe": jsonResponse(http.StatusOK, "binary", map[string]string{"Content-Type": "application/x-executable"}),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 1 << 20}

	_, _, err := f.FetchFile("https://remote.example/media/evil.exe", nil, 0)
	var appErr *apperr.Error
	if !asApperr(err, &appErr) || appErr.Reason != ReasonUnsupportedMediaType {
		t.Fatalf("err = %v, want Reason=%s", err, ReasonUnsupportedMediaType)
	}
}

func TestFetchFileAllowsListedMediaType(t *testing.T) {
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/media/photo.jpg": jsonResponse(http.StatusOK, "binary-data", map[string]string{"Content-Type": "image/jpeg"}),
	}}
	f := &Fetcher{Client: client, InstanceHost: "home.example", MaxBytes: 1 << 20}

	data, mediaType, err := f.FetchFile("https://remote.example/media/photo.jpg", nil, 0)
	if err != nil {
		t.Fatalf("FetchFile: %v", err)
	}
	if mediaType != "image/jpeg" {
		t.Errorf("mediaType = %q", mediaType)
	}
	if string(data) != "binary-data" {
		t.Errorf("data = %q", data)
	}
}

func TestFetchSignsRequestWhenSignerSet(t *testing.T) {
	var signedAs *domain.Actor
	client := &stubClient{responses: map[string]*http.Response{
		"https://remote.example/objects/1": jsonResponse(http.StatusOK, `{"id":"https://remote.example/objects/1"}`, nil),
	}}
	actor := &domain.Actor{Username: "alice"}
	f := &Fetcher{
		Client:       client,
		InstanceHost: "home.example",
		MaxBytes:     1 << 20,
		Sign: func(req *http.Request, as *domain.Actor) error {
			signedAs = as
			return nil
		},
	}

	if _, _, err := f.Fetch("https://remote.example/objects/1", actor); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if signedAs != actor {
		t.Fatal("expected Fetch to invoke Sign with the caller-supplied actor")
	}
}

func asApperr(err error, target **apperr.Error) bool {
	e, ok := err.(*apperr.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
