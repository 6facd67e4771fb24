package service

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/repository"
	"github.com/charadev96/wtclient/internal/client/transport"
	"github.com/charadev96/wtclient/internal/client/wtcrypto"
)

func newUser(t *testing.T) domain.UserIdentity {
	t.Helper()
	sk, err := wtcrypto.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate user key: %v", err)
	}
	return domain.UserIdentity{SecretKey: sk}
}

func newRegistry() *repository.KVTowerRegistry {
	return repository.NewKVTowerRegistry(repository.NewMemoryKVStore(), nil, nil)
}

func newRegistration(towers domain.TowerRegistry) *RegistrationService {
	return &RegistrationService{
		Towers:    towers,
		Transport: transport.New(2*time.Second, nil),
	}
}

func sampleOutput(seed string) domain.RevokeableOutputData {
	tx := wire.NewMsgTx(2)
	prev := wire.NewOutPoint(&chainhash.Hash{1}, 0)
	tx.AddTxIn(wire.NewTxIn(prev, nil, nil))
	tx.AddTxOut(wire.NewTxOut(90_000, []byte{0x00, 0x14}))
	return domain.RevokeableOutputData{
		CommitmentTxid: chainhash.HashH([]byte(seed)),
		JusticeTx:      tx,
	}
}

func mustGet(t *testing.T, towers domain.TowerRegistry, id domain.TowerID) domain.TowerRecord {
	t.Helper()
	rec, err := towers.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get tower %s: %v", id, err)
	}
	return rec
}
