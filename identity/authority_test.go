package identity

import "testing"

func TestServerAuthorityMintsLocalIDs(t *testing.T) {
	a := ServerAuthority("example.social")
	if got, want := a.ActorID("alice"), "https://example.social/users/alice"; got != want {
		t.Fatalf("ActorID = %q, want %q", got, want)
	}
	if got, want := a.ObjectID("abc-123"), "https://example.social/objects/abc-123"; got != want {
		t.Fatalf("ObjectID = %q, want %q", got, want)
	}
	if a.IsPortable() {
		t.Fatal("server authority must not report itself as portable")
	}
}

func TestPortableAuthorityMintsDIDIDs(t *testing.T) {
	a := PortableAuthority("did:key:z6Mkexample")
	if got, want := a.ActorID("alice"), "ap://did:key:z6Mkexample/actor"; got != want {
		t.Fatalf("ActorID = %q, want %q", got, want)
	}
	if got, want := a.ObjectID("abc-123"), "ap://did:key:z6Mkexample/objects/abc-123"; got != want {
		t.Fatalf("ObjectID = %q, want %q", got, want)
	}
	if !a.IsPortable() {
		t.Fatal("portable authority must report itself as portable")
	}
}

func TestAuthorityMatches(t *testing.T) {
	a := PortableAuthority("did:key:z6Mkexample")
	if !a.Matches("did:key:z6Mkexample#ed25519-key") {
		t.Fatal("expected Matches to strip the fragment before comparing")
	}
	if a.Matches("did:key:other#ed25519-key") {
		t.Fatal("expected Matches to reject a different DID")
	}
	if ServerAuthority("example.social").Matches("did:key:z6Mkexample") {
		t.Fatal("a server authority should never match a DID verification method")
	}
}
