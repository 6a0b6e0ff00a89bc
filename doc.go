// Package passly is a credential and session lifecycle engine: argon2id
// passwords, one-time email codes, HS256 access tokens and rotating opaque
// refresh tokens.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// passly is the public surface. It exposes [Engine], [Builder], [Config], and
// value types ([TokenPair], [MetricsSnapshot], [SecurityEvent]). Each
// lifecycle lives in its own package (password, refresh, jwt, otp) and can be
// used on its own. Persistence is behind the account, otp and refresh
// Repository interfaces; the Redis and PostgreSQL adapters live under
// internal/ and are selected through the Builder.
//
// # What this package must NOT do
//
//   - Log or persist plaintext passwords, one-time codes or refresh secrets.
//   - Tell callers which check failed on an authentication path. Unknown
//     email and wrong password, or expired and exhausted codes, produce the
//     same error.
//   - Retry. Retry policy belongs to the caller; so do timeouts, imposed
//     through the context.
//
// # Concurrency
//
// Password hashing is the only CPU-bound step and runs under a process-wide
// gate sized to the number of CPUs. Every other operation is a sequence of
// repository calls; atomicity of each single-record update is the
// repository's job.
package passly
