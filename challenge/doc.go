// Package challenge issues and verifies signed liveness challenge tokens.
//
// A token is minted when an anchor opens a liveness window and binds the
// anchor, the session, the window sequence and the window expiry. Claimants
// echo the token with their proof so a proof cannot be replayed against a
// later window or another anchor.
//
// Supported algorithms are EdDSA (Ed25519) and HS256. Verification can pin a
// single key id or select from a key ring by the "kid" header.
package challenge
