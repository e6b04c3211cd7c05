// Package session implements authgate's session core.
//
// A session is one authenticated device. Its durable record lives in a Store,
// and a Cache mirrors the set of valid session ids so the request path can
// check revocation without a database round trip. Access tokens are short-lived
// HS256 JWTs naming the user and the session; refresh tokens name only the
// session and are exchanged for a new pair by Service.Rotate.
//
// Store writes and cache writes are not atomic. The store is the source of
// truth and Service.RebuildCache repairs any divergence at process start.
package session
