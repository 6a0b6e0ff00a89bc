// Package refresh implements opaque rotating refresh tokens.
//
// # Token format
//
// A token is 64 random bytes encoded as unpadded base64url. Only its SHA-256
// hash is persisted; the plaintext is returned once, by [Manager.Issue] or
// [Manager.Rotate].
//
// # Lifecycle
//
//	Active -> Rotated | Revoked | Expired (implicit)
//
// A rotated token keeps the hash of its replacement, which makes the rotation
// chain auditable and lets [Manager.Validate] recognize reuse of a token that
// was already rotated. Reuse is reported through [Config.OnReuse]; the
// manager takes no further action.
//
// # Architecture boundaries
//
// This package owns the lifecycle rules. Persistence is a [Repository]
// supplied by the caller. Access tokens are minted elsewhere.
package refresh
