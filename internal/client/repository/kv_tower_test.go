package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	client "github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/shared/config"
)

func randomTowerID(t *testing.T) client.TowerID {
	t.Helper()
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return client.TowerIDFromPublicKey(sk.PubKey())
}

func sampleRecord(n uint32) client.TowerRecord {
	return client.TowerRecord{
		NetAddr:            fmt.Sprintf("http://tower%d.example:9814", n),
		AvailableSlots:     100 + n,
		SubscriptionStart:  700_000,
		SubscriptionExpiry: 704_320 + n,
		Status:             client.StatusReachable,
	}
}

func TestRegistryListEmpty(t *testing.T) {
	r := NewKVTowerRegistry(NewMemoryKVStore(), nil, nil)
	towers, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("list on empty store: %v", err)
	}
	if towers == nil || len(towers) != 0 {
		t.Fatalf("expected empty map, got %v", towers)
	}
}

func TestRegistryUpsertGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKVStore()
	r := NewKVTowerRegistry(store, nil, nil)
	id := randomTowerID(t)
	rec := sampleRecord(1)
	if err := r.Upsert(ctx, id, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := r.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != rec {
		t.Fatalf("got %+v, want %+v", got, rec)
	}

	// A second registry over the same store sees the persisted copy.
	fresh := NewKVTowerRegistry(store, nil, nil)
	got, err = fresh.Get(ctx, id)
	if err != nil || got != rec {
		t.Fatalf("persisted copy differs: %+v, %v", got, err)
	}

	if _, err := r.Get(ctx, randomTowerID(t)); !errors.Is(err, client.ErrTowerNotFound) {
		t.Fatalf("expected ErrTowerNotFound, got %v", err)
	}
}

func TestRegistryListAfterUpserts(t *testing.T) {
	ctx := context.Background()
	r := NewKVTowerRegistry(NewMemoryKVStore(), nil, nil)
	want := map[client.TowerID]client.TowerRecord{}
	for i := uint32(0); i < 5; i++ {
		id := randomTowerID(t)
		want[id] = sampleRecord(i)
		if err := r.Upsert(ctx, id, want[id]); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	got, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d towers, got %d", len(want), len(got))
	}
	for id, rec := range want {
		if got[id] != rec {
			t.Fatalf("tower %s: got %+v want %+v", id, got[id], rec)
		}
	}
}

func TestRegistrySetStatus(t *testing.T) {
	ctx := context.Background()
	r := NewKVTowerRegistry(NewMemoryKVStore(), nil, nil)
	id := randomTowerID(t)

	if err := r.SetStatus(ctx, id, client.StatusUnreachable); err != nil {
		t.Fatalf("set status on unknown tower must be a no-op, got %v", err)
	}
	if towers, _ := r.List(ctx); len(towers) != 0 {
		t.Fatalf("set status created a tower: %v", towers)
	}

	if err := r.Upsert(ctx, id, sampleRecord(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.SetStatus(ctx, id, client.StatusTemporaryUnreachable); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ := r.Get(ctx, id)
	if got.Status != client.StatusTemporaryUnreachable {
		t.Fatalf("unexpected status %s", got.Status)
	}
	if got.AvailableSlots != sampleRecord(1).AvailableSlots {
		t.Fatalf("set status changed other fields: %+v", got)
	}
}

func TestRegistrySetStatusUnchangedDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryKVStore()
	store := &failingStore{KVStore: mem}
	r := NewKVTowerRegistry(store, nil, nil)
	id := randomTowerID(t)
	if err := r.Upsert(ctx, id, sampleRecord(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	store.failWrite = true
	if err := r.SetStatus(ctx, id, client.StatusReachable); err != nil {
		t.Fatalf("unchanged status must not write, got %v", err)
	}
}

func TestRegistryUpdateAbortLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	r := NewKVTowerRegistry(NewMemoryKVStore(), nil, nil)
	id := randomTowerID(t)
	rec := sampleRecord(1)
	if err := r.Upsert(ctx, id, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	abort := errors.New("policy says no")
	_, err := r.Update(ctx, id, func(current *client.TowerRecord) (*client.TowerRecord, error) {
		current.AvailableSlots = 0
		return nil, abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort error, got %v", err)
	}
	got, _ := r.Get(ctx, id)
	if got != rec {
		t.Fatalf("aborted update changed the record: %+v", got)
	}
}

func TestRegistryRemove(t *testing.T) {
	ctx := context.Background()
	r := NewKVTowerRegistry(NewMemoryKVStore(), nil, nil)
	id := randomTowerID(t)
	if err := r.Remove(ctx, id); !errors.Is(err, client.ErrTowerNotFound) {
		t.Fatalf("expected ErrTowerNotFound, got %v", err)
	}
	if err := r.Upsert(ctx, id, sampleRecord(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := r.Remove(ctx, id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := r.Get(ctx, id); !errors.Is(err, client.ErrTowerNotFound) {
		t.Fatalf("expected removed tower to be gone, got %v", err)
	}
}

func TestRegistryDecodingIssue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryKVStore()
	if err := store.Write(ctx, PrimaryNamespace, SecondaryNamespace, TowerListKey, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := NewKVTowerRegistry(store, nil, nil)
	if _, err := r.List(ctx); !errors.Is(err, client.ErrDecoding) {
		t.Fatalf("expected ErrDecoding, got %v", err)
	}
	if err := r.Upsert(ctx, randomTowerID(t), sampleRecord(1)); !errors.Is(err, client.ErrDecoding) {
		t.Fatalf("upsert over corrupt collection must fail with ErrDecoding, got %v", err)
	}
	raw, _ := store.Read(ctx, PrimaryNamespace, SecondaryNamespace, TowerListKey)
	if string(raw) != "{not json" {
		t.Fatalf("corrupt collection was overwritten")
	}
}

func TestRegistryStorageErrors(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{KVStore: NewMemoryKVStore(), failRead: true}
	r := NewKVTowerRegistry(store, nil, nil)
	if _, err := r.List(ctx); !errors.Is(err, client.ErrStorage) || !errors.Is(err, errDisk) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}

	store.failRead = false
	store.failWrite = true
	id := randomTowerID(t)
	if err := r.Upsert(ctx, id, sampleRecord(1)); !errors.Is(err, client.ErrStorage) {
		t.Fatalf("expected storage error on write, got %v", err)
	}
	store.failWrite = false
	if _, err := r.Get(ctx, id); !errors.Is(err, client.ErrTowerNotFound) {
		t.Fatalf("failed write leaked into the registry: %v", err)
	}
}

func TestRegistryConcurrentUpsertsKeepEveryTower(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, config.StoreConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "towers.db"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	r := NewKVTowerRegistry(b.Store, b.TXRunner, nil)

	const n = 16
	ids := make([]client.TowerID, n)
	for i := range ids {
		ids[i] = randomTowerID(t)
	}
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id client.TowerID) {
			defer wg.Done()
			errs <- r.Upsert(ctx, id, sampleRecord(uint32(i)))
		}(i, id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	fresh := NewKVTowerRegistry(b.Store, b.TXRunner, nil)
	towers, err := fresh.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(towers) != n {
		t.Fatalf("lost updates: expected %d towers, got %d", n, len(towers))
	}
}

func TestRegistrySeesTowersWrittenThroughAnotherHandle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "towers.toml")
	first := NewKVTowerRegistry(&TOMLKVStore{FilePath: path}, nil, nil)
	second := NewKVTowerRegistry(&TOMLKVStore{FilePath: path}, nil, nil)

	if towers, err := first.List(ctx); err != nil || len(towers) != 0 {
		t.Fatalf("expected empty registry, got %v, %v", towers, err)
	}
	id := randomTowerID(t)
	if err := second.Upsert(ctx, id, sampleRecord(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := first.Get(ctx, id)
	if err != nil {
		t.Fatalf("tower written through another handle not visible: %v", err)
	}
	if got != sampleRecord(1) {
		t.Fatalf("got %+v, want %+v", got, sampleRecord(1))
	}

	other := randomTowerID(t)
	if err := first.Upsert(ctx, other, sampleRecord(2)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	towers, err := first.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(towers) != 2 {
		t.Fatalf("upsert dropped the tower written through another handle: %v", towers)
	}
}
