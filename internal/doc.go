// Package internal holds the persistence adapters and process plumbing that
// are private to passly.
//
// # Sub-packages
//
//   - audit: async security event dispatch (Dispatcher + Sink implementations)
//   - logging: slog setup with trace correlation and secret redaction
//   - postgres: pgx repositories and embedded goose migrations
//   - stores: go-redis repositories with Lua scripts for multi-key writes
package internal
