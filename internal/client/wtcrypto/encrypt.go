package wtcrypto

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypt seals the serialized justice transaction under sha256(txid). The
// nonce is all zeroes: every key is used for exactly one plaintext.
func Encrypt(tx *wire.MsgTx, commitmentTxid chainhash.Hash) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	aead, err := chacha20poly1305.New(chainhash.HashB(commitmentTxid[:]))
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return aead.Seal(nil, nonce, buf.Bytes(), nil), nil
}

func Decrypt(blob []byte, commitmentTxid chainhash.Hash) (*wire.MsgTx, error) {
	aead, err := chacha20poly1305.New(chainhash.HashB(commitmentTxid[:]))
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	plain, err := aead.Open(nil, nonce, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt blob: %w", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(plain)); err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return tx, nil
}
