package identity

import "testing"

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCS(map[string]any{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("JCS: %v", err)
	}
	if got, want := string(out), `{"a":2,"b":1}`; got != want {
		t.Fatalf("JCS(%v) = %q, want %q", map[string]any{"b": 1, "a": 2}, got, want)
	}
}

func TestJCSIsDeterministic(t *testing.T) {
	doc := map[string]any{
		"type":    "Note",
		"content": "hello",
		"tag":     []any{map[string]any{"name": "z"}, map[string]any{"name": "a"}},
	}
	a, err := JCS(doc)
	if err != nil {
		t.Fatalf("JCS: %v", err)
	}
	b, err := JCS(doc)
	if err != nil {
		t.Fatalf("JCS: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("JCS output differs across calls: %q vs %q", a, b)
	}
}

func TestJCSPreservesIntegralNumberLiteral(t *testing.T) {
	out, err := JCS(map[string]any{"n": 5})
	if err != nil {
		t.Fatalf("JCS: %v", err)
	}
	if got, want := string(out), `{"n":5}`; got != want {
		t.Fatalf("JCS = %q, want %q", got, want)
	}
}

func TestCanonicalizePortableGatewayURL(t *testing.T) {
	in := "https://example.social/.well-known/apgateway/did:key:z6Mk.../actor"
	want := "ap://did:key:z6Mk.../actor"
	if got := Canonicalize(in); got != want {
		t.Fatalf("Canonicalize(%q) = %q, want %q", in, got, want)
	}
}

func TestCanonicalizeLeavesServerIDsUnchanged(t *testing.T) {
	in := "https://example.social/users/alice"
	if got := Canonicalize(in); got != in {
		t.Fatalf("Canonicalize(%q) = %q, want unchanged", in, got)
	}
}

func TestCanonicalizeLeavesPortableIDsUnchanged(t *testing.T) {
	in := "ap://did:key:z6Mk.../actor"
	if got := Canonicalize(in); got != in {
		t.Fatalf("Canonicalize(%q) = %q, want unchanged", in, got)
	}
}
