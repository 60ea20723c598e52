// Package sync copies users from the upstream feed into the store.
//
// # Modes
//
// The Manager picks its mode from the stored checkpoint, the user_id of the
// most recent user seen by the last successful run:
//
//   - Full (no checkpoint): every page is fetched until the feed reports no
//     next page or returns an empty page, then all users are written in one
//     idempotent upsert. Page 1 is fetched again afterwards and its first user
//     becomes the checkpoint.
//   - Incremental (checkpoint present): pages are fetched from 1. Users ahead
//     of the checkpointed user are upserted and fetching stops at the page that
//     contains it. The first user of page 1 becomes the new checkpoint.
//
// The feed is expected to list users most recent first. Pages that violate
// this are logged but processed unchanged.
//
// # Writes
//
// Upserts never modify an existing user. Result.Upserted counts users
// submitted and Result.Inserted counts rows that were actually created.
// The checkpoint is written only after every upsert of the run succeeded,
// so a failed run is retried from the previous checkpoint.
//
// # Errors
//
// PerformSync returns *Error with one of the Reason constants. A
// CheckpointUndetermined error wraps a *DataError.
//
// The coordinator package runs the Manager on its configured interval and
// persists the outcome.
package sync
