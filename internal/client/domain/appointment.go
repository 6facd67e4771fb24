package domain

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const LocatorSize = 16

// Locator lets a tower match a breach to an appointment without learning the
// channel it belongs to.
type Locator [LocatorSize]byte

func NewLocator(commitmentTxid chainhash.Hash) Locator {
	var l Locator
	copy(l[:], commitmentTxid[:LocatorSize])
	return l
}

func (l Locator) String() string {
	return hex.EncodeToString(l[:])
}

type Appointment struct {
	Locator       Locator
	EncryptedBlob []byte
	ToSelfDelay   uint32
}

// Serialize returns the byte string the user signs:
// locator || encrypted blob || to_self_delay (big endian).
func (a Appointment) Serialize() []byte {
	buf := make([]byte, 0, LocatorSize+len(a.EncryptedBlob)+4)
	buf = append(buf, a.Locator[:]...)
	buf = append(buf, a.EncryptedBlob...)
	return binary.BigEndian.AppendUint32(buf, a.ToSelfDelay)
}

type RegistrationReceipt struct {
	UserID             UserID
	AvailableSlots     uint32
	SubscriptionStart  uint32
	SubscriptionExpiry uint32
	Signature          string
}

// Serialize returns the byte string the tower signs:
// user id || slots || start || expiry, integers big endian.
func (r RegistrationReceipt) Serialize() []byte {
	buf := make([]byte, 0, PublicKeySize+12)
	buf = append(buf, r.UserID[:]...)
	buf = binary.BigEndian.AppendUint32(buf, r.AvailableSlots)
	buf = binary.BigEndian.AppendUint32(buf, r.SubscriptionStart)
	return binary.BigEndian.AppendUint32(buf, r.SubscriptionExpiry)
}

type AppointmentReceipt struct {
	UserSignature      string
	StartBlock         uint32
	Signature          string
	AvailableSlots     uint32
	SubscriptionExpiry uint32
}

// Serialize returns the byte string the tower signs:
// user signature || start block (big endian).
func (r AppointmentReceipt) Serialize() []byte {
	buf := make([]byte, 0, len(r.UserSignature)+4)
	buf = append(buf, r.UserSignature...)
	return binary.BigEndian.AppendUint32(buf, r.StartBlock)
}

// RevokeableOutputData is emitted by the channel monitor for every revocable
// output of a counterparty commitment.
type RevokeableOutputData struct {
	CommitmentTxid chainhash.Hash
	JusticeTx      *wire.MsgTx
}

type TowerTransport interface {
	Register(ctx context.Context, towerID TowerID, userID UserID, addr string) (RegistrationReceipt, error)
	AddAppointment(ctx context.Context, towerID TowerID, addr string, appt Appointment, signature string) (AppointmentReceipt, error)
}
