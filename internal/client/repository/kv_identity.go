package repository

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	client "github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/wtcrypto"
	shared "github.com/charadev96/wtclient/internal/shared/domain"
)

// KVIdentityRepository stores the user's secret key as a JSON string holding
// its hex encoding.
type KVIdentityRepository struct {
	store shared.KVStore
}

func NewKVIdentityRepository(store shared.KVStore) *KVIdentityRepository {
	return &KVIdentityRepository{store: store}
}

func (r *KVIdentityRepository) Load(ctx context.Context) (client.UserIdentity, error) {
	buf, err := r.store.Read(ctx, PrimaryNamespace, SecondaryNamespace, UserKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotExist) {
			return client.UserIdentity{}, fmt.Errorf("failed to load user key: %w", err)
		}
		return client.UserIdentity{}, fmt.Errorf("%w: failed to load user key: %w", client.ErrStorage, err)
	}
	var text string
	if err := json.Unmarshal(buf, &text); err != nil {
		return client.UserIdentity{}, fmt.Errorf("%w: failed to decode user key: %w", client.ErrDecoding, err)
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return client.UserIdentity{}, fmt.Errorf("%w: failed to decode user key: %w", client.ErrDecoding, err)
	}
	sk, err := wtcrypto.ParseSecretKey(raw)
	if err != nil {
		return client.UserIdentity{}, fmt.Errorf("%w: failed to decode user key: %w", client.ErrDecoding, err)
	}
	return client.UserIdentity{SecretKey: sk}, nil
}

// Create stores identity unless a key is already stored, and returns the
// stored one either way.
func (r *KVIdentityRepository) Create(ctx context.Context, identity client.UserIdentity) (client.UserIdentity, error) {
	if identity.SecretKey == nil {
		return client.UserIdentity{}, fmt.Errorf("%w: missing secret key", client.ErrEncoding)
	}
	buf, err := json.Marshal(hex.EncodeToString(identity.SecretKey.Serialize()))
	if err != nil {
		return client.UserIdentity{}, fmt.Errorf("%w: failed to encode user key: %w", client.ErrEncoding, err)
	}
	wrote, err := r.store.WriteIfAbsent(ctx, PrimaryNamespace, SecondaryNamespace, UserKey, buf)
	if err != nil {
		return client.UserIdentity{}, fmt.Errorf("%w: failed to write user key: %w", client.ErrStorage, err)
	}
	if wrote {
		return identity, nil
	}
	return r.Load(ctx)
}
