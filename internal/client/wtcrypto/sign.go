// Package wtcrypto implements the signing and encryption conventions shared
// with towers: Lightning signed messages over secp256k1 with recoverable
// compact signatures, and ChaCha20-Poly1305 encrypted justice transactions.
package wtcrypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/tv42/zbase32"
)

const signedMessagePrefix = "Lightning Signed Message:"

var ErrInvalidSecretKey = errors.New("invalid secret key")

func GenerateSecretKey() (*btcec.PrivateKey, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	return sk, nil
}

// ParseSecretKey accepts exactly 32 bytes encoding a scalar in [1, n).
func ParseSecretKey(raw []byte) (*btcec.PrivateKey, error) {
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSecretKey, btcec.PrivKeyBytesLen, len(raw))
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(raw); overflow || s.IsZero() {
		return nil, fmt.Errorf("%w: out of range", ErrInvalidSecretKey)
	}
	sk, _ := btcec.PrivKeyFromBytes(raw)
	return sk, nil
}

func messageHash(msg []byte) []byte {
	buf := make([]byte, 0, len(signedMessagePrefix)+len(msg))
	buf = append(buf, signedMessagePrefix...)
	buf = append(buf, msg...)
	return chainhash.DoubleHashB(buf)
}

// Sign returns the zbase32 encoded recoverable signature of msg.
func Sign(msg []byte, sk *btcec.PrivateKey) (string, error) {
	if sk == nil {
		return "", fmt.Errorf("failed to sign message: %w", ErrInvalidSecretKey)
	}
	sig := ecdsa.SignCompact(sk, messageHash(msg), true)
	return zbase32.EncodeToString(sig), nil
}

func RecoverPubKey(msg []byte, signature string) (*btcec.PublicKey, error) {
	sig, err := zbase32.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	pk, _, err := ecdsa.RecoverCompact(sig, messageHash(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to recover public key: %w", err)
	}
	return pk, nil
}

// Verify reports whether signature over msg recovers to pk.
func Verify(msg []byte, signature string, pk *btcec.PublicKey) bool {
	recovered, err := RecoverPubKey(msg, signature)
	if err != nil {
		return false
	}
	return recovered.IsEqual(pk)
}
