// Package password implements slow, salted password hashing with argon2id.
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.Compare] never fails on a mismatch; it returns false. Callers that
// raise the cost parameters can use [Argon2.NeedsUpgrade] to re-hash a
// password after the next successful sign-in.
//
// This package hashes low-entropy secrets only. Opaque tokens are digested
// by the token package with a fast hash instead.
package password
