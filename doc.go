// Package cachify wraps functions with result caching and distributed
// mutual exclusion, both backed by a shared remote key-value store.
//
// Two wrappers make up the public surface:
//
//   - Cached: caches a function's successful result under a key rendered
//     from the call's argument, with a TTL and an explicit Reset
//     (invalidation) operation bound to the same key template.
//   - Once: runs a function under a store-backed lock so that, across every
//     process sharing the store, at most one call per key executes at a
//     time. Losers receive a configured fallback value or a typed
//     *LockContentionError — never a silent unlocked call-through.
//
// Keys are rendered from templates with named placeholders:
//
//	readUser, _ := cachify.Cached(client, "read_user-{ID}", 5*time.Minute,
//		func(ctx context.Context, q UserQuery) (User, error) {
//			return loadUser(ctx, q.ID)
//		})
//
//	u, err := readUser.CallCtx(ctx, UserQuery{ID: 1}) // miss: loads and stores
//	u, err = readUser.CallCtx(ctx, UserQuery{ID: 1})  // hit: store only
//	_ = readUser.ResetCtx(ctx, UserQuery{ID: 1})      // next call recomputes
//
// Placeholders resolve against the argument value: exported struct fields
// (optionally renamed with a `cachify:"..."` tag), string-keyed maps, and
// dotted paths through nested values ({User.ID}). Rendering is pure and
// deterministic; a placeholder that does not resolve is a
// *KeyResolutionError, which is always a configuration bug.
//
// # Store backends
//
// The store is the sole synchronization point. Adapters are provided for
// Redis, NATS JetStream KV, memcached, DynamoDB, SQL databases
// (MySQL/Postgres/SQLite), the local filesystem, and process memory. Lock
// acquisition is an atomic set-if-absent with TTL in every backend, so under
// contention exactly one caller wins in a single round trip.
//
// A cache miss or lock contention is a normal result; a backend failure is a
// *StoreUnavailableError. Cached calls degrade to recomputing on store
// failure (configurable with WithCacheFailClosed); Once fails closed by
// default and calls through unlocked only when FailOpen is chosen explicitly.
//
// # Lock TTL
//
// A lock's TTL is a crash-safety bound, not a fairness mechanism: if the
// holder dies mid-call, the store reclaims the key after TTL and a later
// caller may proceed. The trade-off is that a protected call running longer
// than its own TTL loses exclusivity. There is no heartbeat that extends a
// held lock; size the TTL above the worst expected call duration.
//
// # Blocking and context-aware calls
//
// Every operation has a blocking form (Call, Reset, Acquire) that uses
// context.Background and a context-aware form (CallCtx, ResetCtx,
// AcquireCtx) that honors cancellation across the store round trips and the
// wrapped call. A lock acquired under a context that is later cancelled is
// still released.
package cachify
