// Package token generates high-entropy opaque tokens (refresh, verification,
// password reset) and the fast SHA-256 digests used to look them up.
//
// Only digests are stored. The slow password hasher is never used here.
package token
