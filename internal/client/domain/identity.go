package domain

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// UserID identifies the local user towards towers. It is always the
// compressed public key of the user's secret key.
type UserID [PublicKeySize]byte

func UserIDFromPublicKey(pk *btcec.PublicKey) UserID {
	var id UserID
	copy(id[:], pk.SerializeCompressed())
	return id
}

func ParseUserID(s string) (UserID, error) {
	var id UserID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

func (id UserID) String() string {
	return string(encodeKey(id[:]))
}

func (id UserID) MarshalText() ([]byte, error) {
	return encodeKey(id[:]), nil
}

func (id *UserID) UnmarshalText(text []byte) error {
	if err := decodeKey(id[:], text); err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	return nil
}

type UserIdentity struct {
	SecretKey *btcec.PrivateKey
}

func (u UserIdentity) ID() UserID {
	return UserIDFromPublicKey(u.SecretKey.PubKey())
}

type IdentityRepository interface {
	// Load fails with an error wrapping shared ErrNotExist on first run.
	Load(ctx context.Context) (UserIdentity, error)
	// Create persists identity unless one is already stored, and returns
	// whichever identity the store holds afterwards.
	Create(ctx context.Context, identity UserIdentity) (UserIdentity, error)
}
