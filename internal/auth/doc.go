// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package auth implements the password credential lifecycle.
//
// # Policy
//
// ValidateLogin and ValidatePassword are pure functions. ValidatePassword
// reports every unmet rule in one *ValidationError so a client can fix all of
// them in a single round trip. Register runs both and joins the failures;
// ValidationErrors recovers them per field.
//
// # Hashing
//
// Hasher writes argon2id (default) or bcrypt hashes depending on HashConfig
// and verifies hashes of either scheme by their prefix. Cost parameters are
// fixed at construction.
//
// # Service
//
// Service orchestrates policy, hasher and UserRepository:
//   - Register - validate, hash, insert
//   - Login - look up, verify (against a dummy hash when the login is unknown)
//
// Service errors are oops errors; OutcomeOf maps them onto the caller-facing
// taxonomy. Unknown login and wrong password are indistinguishable to the
// caller and differ only in the logged reason.
package auth
