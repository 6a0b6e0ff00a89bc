// Package otp generates, delivers and verifies short numeric one-time codes
// for email verification, login verification and password reset.
//
// # Verification policy
//
// [Service.Verify] targets the most recently created unused, unexpired code
// for an (email, purpose) pair and applies, in order:
//
//  1. no record: fail without mutation
//  2. expired: mark used, fail
//  3. attempts at the bound: mark used, fail
//  4. mismatch: count the attempt, fail
//  5. match: mark used, succeed
//
// Expiry and exhaustion are terminal for a record. The caller has to request
// a new code.
//
// # Targets
//
// A code is issued for a [Target]: [LinkedAccount] when an account exists,
// [EmailOnly] otherwise. Only email verification accepts [EmailOnly].
//
// # Housekeeping
//
// Records are never deleted by verification. [Service.SweepExpired] removes
// every expired record, and [Sweeper] runs it on an interval.
package otp
