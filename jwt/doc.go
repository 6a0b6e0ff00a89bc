// Package jwt signs short-lived HS256 access tokens that carry the account
// identity, and parses them back for bearer-auth boundaries and tests.
package jwt
