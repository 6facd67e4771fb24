package wtcrypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func TestSignRecover(t *testing.T) {
	sk, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("appointment bytes")
	sig, err := Sign(msg, sk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pk, err := RecoverPubKey(msg, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !pk.IsEqual(sk.PubKey()) {
		t.Fatalf("recovered wrong key")
	}
	if Verify([]byte("other bytes"), sig, sk.PubKey()) {
		t.Fatalf("signature verified over a different message")
	}
	other, _ := GenerateSecretKey()
	if Verify(msg, sig, other.PubKey()) {
		t.Fatalf("signature verified for a different key")
	}
	if Verify(msg, "not-zbase32!", sk.PubKey()) {
		t.Fatalf("garbage signature verified")
	}
}

func TestSignDeterministic(t *testing.T) {
	sk, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x11}, 32))
	msg := []byte("receipt bytes")
	first, err := Sign(msg, sk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := Sign(msg, sk)
	if err != nil {
		t.Fatalf("sign again: %v", err)
	}
	if first != second {
		t.Fatalf("signatures differ: %s, %s", first, second)
	}
	if _, err := Sign(msg, nil); !errors.Is(err, ErrInvalidSecretKey) {
		t.Fatalf("expected ErrInvalidSecretKey for nil key, got %v", err)
	}
}

func TestParseSecretKeyDeterministic(t *testing.T) {
	sk, _ := GenerateSecretKey()
	raw := sk.Serialize()
	a, err := ParseSecretKey(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := ParseSecretKey(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(a.PubKey().SerializeCompressed(), b.PubKey().SerializeCompressed()) {
		t.Fatalf("same secret key derived different public keys")
	}
	if !bytes.Equal(a.Serialize(), raw) {
		t.Fatalf("round trip changed secret key")
	}
}

func TestParseSecretKeyRejects(t *testing.T) {
	order := btcec.S256().N.Bytes()
	cases := [][]byte{
		nil,
		make([]byte, 31),
		make([]byte, 32),
		order,
	}
	for _, c := range cases {
		if _, err := ParseSecretKey(c); !errors.Is(err, ErrInvalidSecretKey) {
			t.Fatalf("expected %x to be rejected, got %v", c, err)
		}
	}
}

func justiceTx() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	prev := wire.NewOutPoint(&chainhash.Hash{1}, 0)
	tx.AddTxIn(wire.NewTxIn(prev, nil, [][]byte{{0x01, 0x02}}))
	tx.AddTxOut(wire.NewTxOut(90_000, []byte{0x00, 0x14}))
	return tx
}

func TestEncryptDecrypt(t *testing.T) {
	tx := justiceTx()
	txid := chainhash.DoubleHashH([]byte("commitment"))
	blob, err := Encrypt(tx, txid)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	again, _ := Encrypt(tx, txid)
	if !bytes.Equal(blob, again) {
		t.Fatalf("encryption is not deterministic for a given txid")
	}
	got, err := Decrypt(blob, txid)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got.TxHash() != tx.TxHash() {
		t.Fatalf("decrypted a different transaction")
	}
	if _, err := Decrypt(blob, chainhash.Hash{}); err == nil {
		t.Fatalf("decrypted with the wrong key")
	}
}
