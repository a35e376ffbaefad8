// Package auth verifies pairing tokens for remote attach requests.
//
// # Pairing
//
// A remote device proves it was paired by presenting an HS256-signed
// JWT minted with the hub's pairing secret. The token's "sub" claim
// carries the device name, shown in the hub's client list and logs.
// Tokens are minted out of band with the token subcommand and expire;
// an expired or malformed token is rejected before the encrypted
// channel handshake ever starts.
//
// # Usage
//
//	verifier := auth.NewPairingVerifier(secret)
//	token, err := verifier.Generate("laptop", 30*24*time.Hour)
//	device, err := verifier.Verify(token)
//
// Verify distinguishes ErrExpiredToken from ErrInvalidToken so the
// transport can tell a stale pairing from a forged one.
package auth
