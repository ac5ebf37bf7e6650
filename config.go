package idemgw

// DefaultKeyHeader is the canonical idempotency key header. Accepted name
// variants are configurable; matching is always case-insensitive.
const DefaultKeyHeader = "Idempotency-Key"

// DefaultLocalCacheSize bounds the advisory in-process cache when no
// capacity is configured.
const DefaultLocalCacheSize = 512

// Config holds the configuration for the idempotency coordinator.
type Config struct {
	// Key controls how the idempotency key is derived from a request.
	Key KeyConfig `json:"key" yaml:"key"`
	// TTLSeconds is the completed-record retention window. Required; no
	// default is assumed.
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"`
	// LeaseSeconds bounds how long an in-progress record blocks the key
	// before it is considered abandoned and reclaimable. Defaults to
	// TTLSeconds when zero.
	LeaseSeconds int `json:"lease_seconds,omitempty" yaml:"lease_seconds,omitempty"`
	// InProgress selects how a concurrent duplicate is handled.
	InProgress InProgressConfig `json:"in_progress" yaml:"in_progress"`
	// LocalCache configures the advisory in-process cache.
	LocalCache LocalCacheConfig `json:"local_cache" yaml:"local_cache"`
	// Store selects the record store backend.
	Store StoreConfig `json:"store" yaml:"store"`
}

// KeySource selects the key derivation mode.
type KeySource string

// KeySource constants define the supported derivation modes.
const (
	// SourceHeader requires the key header; its absence is fatal.
	SourceHeader KeySource = "header"
	// SourceContent always hashes the request payload.
	SourceContent KeySource = "content"
	// SourceHeaderOrContent prefers the header and falls through to the
	// content hash when it is absent.
	SourceHeaderOrContent KeySource = "header-or-content"
)

// KeyConfig controls key derivation and validation.
type KeyConfig struct {
	Source KeySource `json:"source" yaml:"source"`
	// HeaderNames is the ordered list of accepted header-name variants.
	// Defaults to [DefaultKeyHeader].
	HeaderNames []string `json:"header_names,omitempty" yaml:"header_names,omitempty"`
	// ValidateUUID rejects header keys that are not well-formed UUID v4.
	// Off by default: keys are arbitrary non-empty strings.
	ValidateUUID bool `json:"validate_uuid,omitempty" yaml:"validate_uuid,omitempty"`
}

// InProgressPolicy selects the duplicate-in-flight behavior.
type InProgressPolicy string

// InProgressPolicy constants define the supported policies.
const (
	// PolicyFail rejects the duplicate immediately with ErrInProgress.
	PolicyFail InProgressPolicy = "fail"
	// PolicyWait polls the store with backoff until the winner's result
	// appears, then serves it; attempts exhausted means ErrInProgress.
	PolicyWait InProgressPolicy = "wait"
)

// InProgressConfig controls handling of concurrent duplicates.
type InProgressConfig struct {
	Policy InProgressPolicy `json:"policy" yaml:"policy"`
	// WaitAttempts bounds the poll loop under PolicyWait. Default 10.
	WaitAttempts int `json:"wait_attempts,omitempty" yaml:"wait_attempts,omitempty"`
	// WaitBackoffMS is the delay between polls in milliseconds. Default 100.
	WaitBackoffMS int `json:"wait_backoff_ms,omitempty" yaml:"wait_backoff_ms,omitempty"`
}

// LocalCacheConfig configures the advisory in-process record cache.
type LocalCacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// MaxEntries bounds the cache. Default DefaultLocalCacheSize.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `json:"backend" yaml:"backend"`
	// DSN is the backend connection string (file path for sqlite).
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}
