package signature

import (
	"strings"
	"testing"
)

func TestSignFormat(t *testing.T) {
	t.Parallel()

	sig := Sign("secret", []byte("payload"))
	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature %q missing sha256= prefix", sig)
	}
	if len(sig) != len("sha256=")+64 {
		t.Errorf("signature length = %d, want %d", len(sig), len("sha256=")+64)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event_id":"abc"}`)
	if Sign("s", body) != Sign("s", body) {
		t.Error("signature should be deterministic")
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
		body   string
	}{
		{"simple", "secret", "hello"},
		{"empty body", "secret", ""},
		{"json body", "whsec_9f8e7d", `{"event_id":"e1","event_type":"form_response"}`},
		{"unicode", "s", "héllo wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Sign(tt.secret, []byte(tt.body))
			if !Verify(tt.secret, []byte(tt.body), sig) {
				t.Error("Verify should accept a freshly computed signature")
			}
		})
	}
}

func TestVerifyRejectsMutations(t *testing.T) {
	t.Parallel()

	secret := "whsec_test"
	body := []byte(`{"event_id":"e1","form_response":{"id":"r1"}}`)
	sig := Sign(secret, body)

	// Single-byte mutation anywhere in the body must invalidate.
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if Verify(secret, mutated, sig) {
			t.Fatalf("Verify accepted body mutated at byte %d", i)
		}
	}

	if Verify("other-secret", body, sig) {
		t.Error("Verify accepted signature under wrong secret")
	}
	if Verify(secret, body, "sha256=deadbeef") {
		t.Error("Verify accepted bogus signature")
	}
	if Verify(secret, body, "") {
		t.Error("Verify accepted empty signature")
	}
}
