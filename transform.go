package idemgw

import (
	"encoding/json"

	"github.com/keystone-labs/idemgw/store"
)

// Transform decorates a cached response payload before it is returned.
// It is invoked only on cache-hit paths and receives a copy of the stored
// payload; the record itself is never mutated. Returning the input
// unchanged is valid.
type Transform func(payload []byte, rec store.Record) []byte

// MarkServerCacheHit is a Transform that injects "serverCacheHit": true
// into a JSON object payload so callers can tell replays from fresh
// executions. Non-object payloads pass through untouched.
func MarkServerCacheHit(payload []byte, _ store.Record) []byte {
	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return payload
	}
	body["serverCacheHit"] = true
	out, err := json.Marshal(body)
	if err != nil {
		return payload
	}
	return out
}
