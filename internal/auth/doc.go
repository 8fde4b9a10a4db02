// Package auth provides identity primitives for BioCard Core: user
// accounts, the role model, Argon2id password hashing, and signed
// bearer tokens.
//
// Roles form a strict privilege ladder: root > admin > user. The root
// account is created once during system initialization and enjoys
// special deletion protections (the last root can never be removed).
//
// Bearer tokens are HS256 JWTs carrying the subject id, username and
// role. The embedded claims are advisory only: every authorization
// decision with real effect must re-validate them against the live
// user record, which is what the API layer's access gate does.
package auth
