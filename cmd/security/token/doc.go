// Package token holds primitives shared by everything that touches bearer tokens:
// signing-secret validation and non-reversible fingerprints.
//
// Fingerprints let logs and in-process maps refer to a token without keeping the
// token itself. With a key they are HMAC-SHA256, otherwise plain SHA-256.
package token
