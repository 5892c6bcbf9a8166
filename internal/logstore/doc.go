// Package logstore implements the write-once audit log.
//
// # Overview
//
// A Store owns three pieces of process-wide state:
//
//   - the committed entries, in id order
//   - the next-id counter, starting at 0
//   - the current authorization secret
//
// Entries are created only by Append and are never mutated or removed. Ids are
// dense: the entry with id n is the (n+1)th entry appended, so Count always
// equals the next id to be issued.
//
// # Authorization
//
// Append requires the supplied key to match the configured secret exactly.
// While no secret is configured every append fails with ErrAuthKeyUnset, which
// satisfies errors.Is(err, ErrUnauthorized). SetAuthKey replaces the secret
// without any proof of the old one; transports are expected to gate it.
//
// # Concurrency
//
// Append and SetAuthKey are serialized by one mutex, so id allocation never
// duplicates or skips and each append is checked against exactly one secret.
// Get, List and Count never take that mutex: they read an immutable snapshot
// that is swapped in atomically after each commit.
//
// # Durability
//
// The store keeps everything in memory. A host that wants entries to survive a
// restart passes a Journal; Append writes each entry to it before committing,
// and Open replays it at start-up.
//
//	s, err := logstore.Open(ctx, logstore.Options{
//	    AuthKey: cfg.Auth.AuthKey,
//	    Journal: sqlStore,
//	    Logger:  logger,
//	})
package logstore
