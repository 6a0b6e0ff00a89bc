// Package stores provides Redis-backed repositories for accounts, refresh
// tokens and one-time codes.
//
// # Design
//
// Records are Redis hashes with timestamps as Unix nanoseconds and binary
// fields as base64. Writes that touch more than one key, or that depend on
// the current state of a record, run as Lua scripts so each repository call
// is atomic. Script error strings are mapped to the sentinel errors of the
// owning domain package (account, refresh, otp).
//
// # Architecture boundaries
//
// This package owns persistence only. It does not generate secrets, decide
// token validity beyond the "active at now" filter, or apply OTP policy.
//
// # What this package must NOT do
//
//   - Import the root passly package.
//   - Store plaintext refresh tokens or OTP codes.
package stores
