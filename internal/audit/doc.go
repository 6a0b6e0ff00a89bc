// Package audit delivers security events asynchronously.
//
// # Components
//
//   - [Event] is one security-relevant occurrence (failed login, token reuse, ...).
//   - [Sink] consumes events: channel, JSON lines, slog, or no-op.
//   - [Dispatcher] is a buffered relay with drop-if-full or block-if-full semantics.
//
// The package does not decide which events to emit; the engine does.
package audit
