// Package password hashes and verifies user passwords with Argon2id.
//
// Hashes use the PHC string format. Encoded hashes are untrusted input: Verify
// rejects malformed strings and parameters far above the configured cost.
package password
