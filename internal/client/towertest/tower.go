// Package towertest runs an in-process tower speaking the tower HTTP API, for
// tests of the registration and appointment flows.
package towertest

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gin-gonic/gin"

	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/transport"
	"github.com/charadev96/wtclient/internal/client/wtcrypto"
)

// Tower is a fake tower. Its exported fields may be changed between requests
// to script the terms and failures it answers with.
type Tower struct {
	ID     domain.TowerID
	Server *httptest.Server

	mu                 sync.Mutex
	signer             *btcec.PrivateKey
	slots              uint32
	start              uint32
	expiry             uint32
	apiErr             *transport.APIError
	appointments       map[string]transport.AddAppointmentRequest
	registrationsCount int
}

func New(t *testing.T) *Tower {
	t.Helper()
	sk, err := wtcrypto.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate tower key: %v", err)
	}
	tw := &Tower{
		ID:           domain.TowerIDFromPublicKey(sk.PubKey()),
		signer:       sk,
		slots:        100,
		start:        700_000,
		expiry:       704_320,
		appointments: map[string]transport.AddAppointmentRequest{},
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST(transport.EndpointRegister, tw.register)
	r.POST(transport.EndpointAddAppointment, tw.addAppointment)
	tw.Server = httptest.NewServer(r)
	t.Cleanup(tw.Server.Close)
	return tw
}

func (tw *Tower) URL() string {
	return tw.Server.URL
}

// SetTerms changes the subscription terms granted on the next registration.
func (tw *Tower) SetTerms(slots, start, expiry uint32) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.slots, tw.start, tw.expiry = slots, start, expiry
}

// Impersonate makes the tower sign receipts with a key that is not its own.
func (tw *Tower) Impersonate(t *testing.T) {
	t.Helper()
	sk, err := wtcrypto.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.signer = sk
}

// Reject makes every request fail with the given API error.
func (tw *Tower) Reject(msg string, code uint8) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.apiErr = &transport.APIError{Error: msg, ErrorCode: code}
}

func (tw *Tower) Appointments() map[string]transport.AddAppointmentRequest {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	out := make(map[string]transport.AddAppointmentRequest, len(tw.appointments))
	for k, v := range tw.appointments {
		out[k] = v
	}
	return out
}

func (tw *Tower) Registrations() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.registrationsCount
}

func (tw *Tower) register(c *gin.Context) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.apiErr != nil {
		c.JSON(http.StatusBadRequest, tw.apiErr)
		return
	}
	req := transport.RegisterRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, transport.APIError{Error: err.Error(), ErrorCode: 1})
		return
	}
	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, transport.APIError{Error: err.Error(), ErrorCode: 3})
		return
	}
	receipt := domain.RegistrationReceipt{
		UserID:             userID,
		AvailableSlots:     tw.slots,
		SubscriptionStart:  tw.start,
		SubscriptionExpiry: tw.expiry,
	}
	sig, err := wtcrypto.Sign(receipt.Serialize(), tw.signer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, transport.APIError{Error: err.Error()})
		return
	}
	tw.registrationsCount++
	c.JSON(http.StatusOK, transport.RegisterResponse{
		UserID:                req.UserID,
		AvailableSlots:        tw.slots,
		SubscriptionStart:     tw.start,
		SubscriptionExpiry:    tw.expiry,
		SubscriptionSignature: sig,
	})
}

func (tw *Tower) addAppointment(c *gin.Context) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.apiErr != nil {
		c.JSON(http.StatusBadRequest, tw.apiErr)
		return
	}
	req := transport.AddAppointmentRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, transport.APIError{Error: err.Error(), ErrorCode: 1})
		return
	}
	if _, err := hex.DecodeString(req.Appointment.EncryptedBlob); err != nil {
		c.JSON(http.StatusBadRequest, transport.APIError{Error: err.Error(), ErrorCode: 3})
		return
	}
	if tw.slots == 0 {
		c.JSON(http.StatusBadRequest, transport.APIError{Error: "no slots available", ErrorCode: 36})
		return
	}
	tw.slots--
	tw.appointments[req.Appointment.Locator] = req

	receipt := domain.AppointmentReceipt{UserSignature: req.Signature, StartBlock: tw.start}
	sig, err := wtcrypto.Sign(receipt.Serialize(), tw.signer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, transport.APIError{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, transport.AddAppointmentResponse{
		Locator:            req.Appointment.Locator,
		StartBlock:         tw.start,
		Signature:          sig,
		AvailableSlots:     tw.slots,
		SubscriptionExpiry: tw.expiry,
	})
}
