package repository

import (
	"context"
	"errors"
	"testing"

	client "github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/wtcrypto"
	shared "github.com/charadev96/wtclient/internal/shared/domain"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewKVIdentityRepository(NewMemoryKVStore())
	if _, err := repo.Load(ctx); !errors.Is(err, shared.ErrNotExist) {
		t.Fatalf("expected ErrNotExist on first run, got %v", err)
	}
	sk, _ := wtcrypto.GenerateSecretKey()
	want := client.UserIdentity{SecretKey: sk}
	if _, err := repo.Create(ctx, want); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID() != want.ID() {
		t.Fatalf("loaded identity derives a different user id")
	}
}

func TestIdentityDecodingIssue(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"not json":    "{",
		"not hex":     `"zz"`,
		"short key":   `"0102"`,
		"zero scalar": `"0000000000000000000000000000000000000000000000000000000000000000"`,
		"wrong type":  `42`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryKVStore()
			store.Write(ctx, PrimaryNamespace, SecondaryNamespace, UserKey, []byte(raw))
			_, err := NewKVIdentityRepository(store).Load(ctx)
			if !errors.Is(err, client.ErrDecoding) {
				t.Fatalf("expected ErrDecoding, got %v", err)
			}
		})
	}
}

func TestIdentityStorageError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{KVStore: NewMemoryKVStore(), failRead: true, failWrite: true}
	repo := NewKVIdentityRepository(store)
	if _, err := repo.Load(ctx); !errors.Is(err, client.ErrStorage) || errors.Is(err, shared.ErrNotExist) {
		t.Fatalf("expected storage error, got %v", err)
	}
	sk, _ := wtcrypto.GenerateSecretKey()
	if _, err := repo.Create(ctx, client.UserIdentity{SecretKey: sk}); !errors.Is(err, client.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestIdentityCreateKeepsExisting(t *testing.T) {
	ctx := context.Background()
	repo := NewKVIdentityRepository(NewMemoryKVStore())
	first, _ := wtcrypto.GenerateSecretKey()
	second, _ := wtcrypto.GenerateSecretKey()

	stored, err := repo.Create(ctx, client.UserIdentity{SecretKey: first})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if stored.SecretKey != first {
		t.Fatalf("first create must return the given key")
	}
	stored, err = repo.Create(ctx, client.UserIdentity{SecretKey: second})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if stored.ID() != (client.UserIdentity{SecretKey: first}).ID() {
		t.Fatalf("second create replaced the stored key")
	}
}
