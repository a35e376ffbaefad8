// ABOUTME: Curve25519 keypair generation and encoding for channel identity.
// ABOUTME: The public key doubles as the stable remote client identity.

package transport

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Keypair is one side's channel identity.
type Keypair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateKeypair creates a fresh channel identity.
func GenerateKeypair() (Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generating keypair: %w", err)
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// PublicEncoded returns the public key in the wire encoding.
func (k Keypair) PublicEncoded() string {
	return base64.StdEncoding.EncodeToString(k.Public[:])
}

// DecodePublicKey parses a wire-encoded public key.
func DecodePublicKey(encoded string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("public key is %d bytes, want 32", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
