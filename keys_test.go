package idemgw

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestContentKey_Deterministic(t *testing.T) {
	a := ContentKey([]byte(`{"name":"a","qty":2}`))
	b := ContentKey([]byte(`{"name":"a","qty":2}`))
	if a != b {
		t.Errorf("expected identical keys, got %s and %s", a, b)
	}
}

func TestContentKey_CanonicalizesFieldOrder(t *testing.T) {
	a := ContentKey([]byte(`{"name":"a","qty":2}`))
	b := ContentKey([]byte(`{"qty":2,"name":"a"}`))
	if a != b {
		t.Errorf("expected field order not to matter, got %s and %s", a, b)
	}
}

func TestContentKey_DiffersAcrossPayloads(t *testing.T) {
	corpus := []string{
		`{"name":"a"}`,
		`{"name":"b"}`,
		`{"name":"a","qty":1}`,
		`{"order":42}`,
		`"plain string"`,
	}
	seen := make(map[string]string)
	for _, payload := range corpus {
		key := ContentKey([]byte(payload))
		if prev, dup := seen[key]; dup {
			t.Errorf("collision: %s and %s both hash to %s", prev, payload, key)
		}
		seen[key] = payload
	}
}

func TestContentKey_Prefix(t *testing.T) {
	key := ContentKey([]byte(`{"name":"a"}`))
	if !strings.HasPrefix(key, ContentKeyPrefix) {
		t.Errorf("expected prefix %q, got %s", ContentKeyPrefix, key)
	}
}

func TestGenerateKey_IsValidUUID(t *testing.T) {
	key := GenerateKey()
	if !ValidKeyFormat(key) {
		t.Errorf("generated key %q is not a UUID v4", key)
	}
}

func TestValidKeyFormat(t *testing.T) {
	if ValidKeyFormat("not-a-uuid") {
		t.Error("expected arbitrary string to fail UUID validation")
	}
	// UUID v1 has the wrong version nibble.
	if ValidKeyFormat("c232ab00-9414-11ec-b3c8-9f6bdeced846") {
		t.Error("expected UUID v1 to fail v4 validation")
	}
	if !ValidKeyFormat("9b2c67ae-8c39-4bf8-a733-dba18b1e2a66") {
		t.Error("expected UUID v4 to pass validation")
	}
}

func TestResolve_HeaderVariants(t *testing.T) {
	r := NewKeyResolver(KeyConfig{
		Source:      SourceHeader,
		HeaderNames: []string{"Idempotency-Key", "X-Idempotency-Key"},
	})

	h := http.Header{}
	h.Set("x-idempotency-key", "abc-1")
	key, err := r.Resolve(h, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != "abc-1" {
		t.Errorf("expected abc-1, got %s", key)
	}
}

func TestResolve_HeaderCaseInsensitive(t *testing.T) {
	r := NewKeyResolver(KeyConfig{Source: SourceHeader})

	h := http.Header{}
	h.Set("IDEMPOTENCY-KEY", "abc-2")
	key, err := r.Resolve(h, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != "abc-2" {
		t.Errorf("expected abc-2, got %s", key)
	}
}

func TestResolve_MissingHeaderIsFatal(t *testing.T) {
	r := NewKeyResolver(KeyConfig{Source: SourceHeader})

	_, err := r.Resolve(http.Header{}, []byte(`{"name":"a"}`))
	if !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestResolve_HeaderOrContentFallsThrough(t *testing.T) {
	r := NewKeyResolver(KeyConfig{Source: SourceHeaderOrContent})

	body := []byte(`{"name":"a"}`)
	key, err := r.Resolve(http.Header{}, body)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != ContentKey(body) {
		t.Errorf("expected content key fallback, got %s", key)
	}
}

func TestResolve_UUIDValidation(t *testing.T) {
	r := NewKeyResolver(KeyConfig{Source: SourceHeader, ValidateUUID: true})

	h := http.Header{}
	h.Set(DefaultKeyHeader, "abc-1")
	_, err := r.Resolve(h, nil)
	if !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("expected ErrInvalidKeyFormat, got %v", err)
	}

	h.Set(DefaultKeyHeader, GenerateKey())
	if _, err := r.Resolve(h, nil); err != nil {
		t.Errorf("expected UUID v4 key to pass, got %v", err)
	}
}
