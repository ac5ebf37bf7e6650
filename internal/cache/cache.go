// Package cache provides the advisory in-process cache of completed
// idempotency records that fronts the durable store on the read path.
// It is never consulted for mutual exclusion. The default implementation
// is the LRU Memory cache.
package cache

import "github.com/keystone-labs/idemgw/store"

// Cache holds snapshots of COMPLETED records keyed by idempotency key.
type Cache interface {
	Get(key string) (store.Record, bool)
	Set(rec store.Record)
	Delete(key string)
	Len() int
	Clear()
}
