package idemgw

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// ContentKeyPrefix namespaces content-derived keys. Clients use the same
// prefix for their cache entries so both sides share one hashing
// discipline.
const ContentKeyPrefix = "idempotency_"

// ContentKey derives a deterministic key from a request payload: the
// payload is canonicalized (JSON round-trip, which sorts object keys) and
// folded through a 32-bit rolling hash. Collisions are best-effort
// acceptable; this is not a cryptographic digest.
func ContentKey(payload []byte) string {
	canonical := payload
	var v interface{}
	if err := json.Unmarshal(payload, &v); err == nil {
		if b, err := json.Marshal(v); err == nil {
			canonical = b
		}
	}

	var h int32
	for _, b := range canonical {
		h = (h << 5) - h + int32(b)
	}
	if h < 0 {
		h = -h
	}
	return ContentKeyPrefix + strconv.FormatInt(int64(h), 16)
}

// GenerateKey returns a fresh UUID-v4 idempotency key.
func GenerateKey() string {
	return uuid.NewString()
}

// ValidKeyFormat reports whether key is a well-formed UUID v4.
func ValidKeyFormat(key string) bool {
	u, err := uuid.Parse(key)
	if err != nil {
		return false
	}
	return u.Version() == 4
}

// KeyResolver derives the idempotency key for a request according to the
// configured source policy.
type KeyResolver struct {
	source       KeySource
	headerNames  []string
	validateUUID bool
}

// NewKeyResolver builds a resolver from cfg. cfg is assumed validated.
func NewKeyResolver(cfg KeyConfig) *KeyResolver {
	names := cfg.HeaderNames
	if len(names) == 0 {
		names = []string{DefaultKeyHeader}
	}
	return &KeyResolver{
		source:       cfg.Source,
		headerNames:  names,
		validateUUID: cfg.ValidateUUID,
	}
}

// Resolve produces a non-empty key from the request headers and body, or
// fails with ErrMissingKey / ErrInvalidKeyFormat. Header names are tried
// in configured order and matched case-insensitively.
func (r *KeyResolver) Resolve(headers http.Header, body []byte) (string, error) {
	switch r.source {
	case SourceContent:
		return ContentKey(body), nil
	case SourceHeaderOrContent:
		if key := r.headerKey(headers); key != "" {
			return r.validated(key)
		}
		return ContentKey(body), nil
	default: // SourceHeader
		key := r.headerKey(headers)
		if key == "" {
			return "", ErrMissingKey
		}
		return r.validated(key)
	}
}

func (r *KeyResolver) headerKey(headers http.Header) string {
	for _, name := range r.headerNames {
		if v := headers.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (r *KeyResolver) validated(key string) (string, error) {
	if r.validateUUID && !ValidKeyFormat(key) {
		return "", fmt.Errorf("%w: %q is not a UUID v4", ErrInvalidKeyFormat, key)
	}
	return key, nil
}
