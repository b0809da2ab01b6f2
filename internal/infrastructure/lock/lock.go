// Package lock provides per-key mutual exclusion for ledger writers.
package lock

import "context"

// Locker serialises callers that share a key. The returned func releases
// the key and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
