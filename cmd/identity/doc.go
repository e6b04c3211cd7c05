// Package identity owns user records and the links between users and external
// identity providers (OAuth accounts, verified phone numbers).
//
// Session state lives elsewhere; this package only answers "who is this user".
package identity
