// Package password derives and verifies Argon2id password hashes under a
// bounded concurrency gate, and generates random passwords.
//
// # Storage shape
//
// A [Hash] carries the derived key, its salt and the exact [Params] used. All
// three are persisted per account; [Hasher.Verify] always recomputes with the
// stored params, so raising the configured cost never locks out accounts
// hashed under older values. [Hasher.NeedsUpgrade] reports when a stored hash
// is weaker than the current configuration.
//
// # Concurrency
//
// Argon2id is memory-hard. Every derivation, including [Hasher.DummyHash],
// holds one slot of a [Gate] for its whole duration. The default gate is
// shared by the whole process and sized to runtime.NumCPU().
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other passly package.
//   - Log plaintext passwords.
package password
