package domain

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PublicKeySize is the length of a compressed secp256k1 public key.
const PublicKeySize = btcec.PubKeyBytesLenCompressed

// TowerID identifies a tower by its compressed public key.
type TowerID [PublicKeySize]byte

func TowerIDFromPublicKey(pk *btcec.PublicKey) TowerID {
	var id TowerID
	copy(id[:], pk.SerializeCompressed())
	return id
}

func ParseTowerID(s string) (TowerID, error) {
	var id TowerID
	err := id.UnmarshalText([]byte(s))
	return id, err
}

func (id TowerID) String() string {
	return hex.EncodeToString(id[:])
}

func (id TowerID) MarshalText() ([]byte, error) {
	return encodeKey(id[:]), nil
}

func (id *TowerID) UnmarshalText(text []byte) error {
	if err := decodeKey(id[:], text); err != nil {
		return fmt.Errorf("invalid tower id: %w", err)
	}
	return nil
}

func (id TowerID) PublicKey() (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(id[:])
}

type TowerStatus int

const (
	StatusReachable TowerStatus = iota
	StatusTemporaryUnreachable
	StatusUnreachable
	StatusSubscriptionError
)

var towerStatusNames = map[TowerStatus]string{
	StatusReachable:            "reachable",
	StatusTemporaryUnreachable: "temporary_unreachable",
	StatusUnreachable:          "unreachable",
	StatusSubscriptionError:    "subscription_error",
}

func (s TowerStatus) String() string {
	if name, ok := towerStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TowerStatus(%d)", int(s))
}

func (s TowerStatus) MarshalText() ([]byte, error) {
	name, ok := towerStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown tower status %d", int(s))
	}
	return []byte(name), nil
}

func (s *TowerStatus) UnmarshalText(text []byte) error {
	for status, name := range towerStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown tower status '%s'", text)
}

// TowerRecord holds the subscription terms granted by a tower and its last
// observed health. Slots and heights are block-height based, as issued by
// the tower.
type TowerRecord struct {
	NetAddr            string
	AvailableSlots     uint32
	SubscriptionStart  uint32
	SubscriptionExpiry uint32
	Status             TowerStatus
}

// TowerMutation receives the current record (nil when the tower is unknown)
// and returns the record to store. Returning a nil record leaves the registry
// untouched; returning an error aborts the update.
type TowerMutation func(current *TowerRecord) (*TowerRecord, error)

// TowerRegistry is the authoritative set of known towers. Every mutating call
// either persists its change before returning or fails without changing
// anything.
type TowerRegistry interface {
	// Get fails with ErrTowerNotFound when the tower is unknown.
	Get(ctx context.Context, id TowerID) (TowerRecord, error)

	// List returns an empty map, not an error, when no tower is registered.
	List(ctx context.Context) (map[TowerID]TowerRecord, error)

	Upsert(ctx context.Context, id TowerID, rec TowerRecord) error

	// SetStatus is a no-op for unknown towers and unchanged statuses.
	SetStatus(ctx context.Context, id TowerID, status TowerStatus) error

	// Update applies fn as a single read-modify-write.
	Update(ctx context.Context, id TowerID, fn TowerMutation) (TowerRecord, error)

	Remove(ctx context.Context, id TowerID) error
}

func encodeKey(raw []byte) []byte {
	text := make([]byte, hex.EncodedLen(len(raw)))
	hex.Encode(text, raw)
	return text
}

func decodeKey(dst []byte, text []byte) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("expected %d hex characters, got %d", len(dst)*2, len(text))
	}
	raw := make([]byte, len(dst))
	if _, err := hex.Decode(raw, text); err != nil {
		return err
	}
	if _, err := btcec.ParsePubKey(raw); err != nil {
		return err
	}
	copy(dst, raw)
	return nil
}
