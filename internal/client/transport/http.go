package transport

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/shared/log"
)

const (
	EndpointRegister       = "/register"
	EndpointAddAppointment = "/add_appointment"

	maxResponseSize = 1 << 20
)

// HTTPTransport talks to towers over their JSON HTTP API. Every request is
// bounded by Timeout; running out of time counts as a connectivity failure.
type HTTPTransport struct {
	Client  *http.Client
	Timeout time.Duration
	Logger  *zerolog.Logger
}

func New(timeout time.Duration, logger *zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		Client:  &http.Client{},
		Timeout: timeout,
		Logger:  logger,
	}
}

type RegisterRequest struct {
	UserID string `json:"user_id"`
}

type RegisterResponse struct {
	UserID                string `json:"user_id"`
	AvailableSlots        uint32 `json:"available_slots"`
	SubscriptionStart     uint32 `json:"subscription_start"`
	SubscriptionExpiry    uint32 `json:"subscription_expiry"`
	SubscriptionSignature string `json:"subscription_signature"`
}

type AppointmentMessage struct {
	Locator       string `json:"locator"`
	EncryptedBlob string `json:"encrypted_blob"`
	ToSelfDelay   uint32 `json:"to_self_delay"`
}

type AddAppointmentRequest struct {
	Appointment AppointmentMessage `json:"appointment"`
	Signature   string             `json:"signature"`
}

type AddAppointmentResponse struct {
	Locator            string `json:"locator"`
	StartBlock         uint32 `json:"start_block"`
	Signature          string `json:"signature"`
	AvailableSlots     uint32 `json:"available_slots"`
	SubscriptionExpiry uint32 `json:"subscription_expiry"`
}

// APIError is the body a tower answers with when it rejects a request.
type APIError struct {
	Error     string `json:"error"`
	ErrorCode uint8  `json:"error_code"`
}

func (t *HTTPTransport) Register(ctx context.Context, towerID domain.TowerID, userID domain.UserID, addr string) (domain.RegistrationReceipt, error) {
	t.logger().Info().
		Str("tower", towerID.String()).
		Str("address", addr).
		Msg("registering with tower")

	resp := RegisterResponse{}
	if err := t.post(ctx, addr, EndpointRegister, RegisterRequest{UserID: userID.String()}, &resp); err != nil {
		return domain.RegistrationReceipt{}, err
	}
	return domain.RegistrationReceipt{
		UserID:             userID,
		AvailableSlots:     resp.AvailableSlots,
		SubscriptionStart:  resp.SubscriptionStart,
		SubscriptionExpiry: resp.SubscriptionExpiry,
		Signature:          resp.SubscriptionSignature,
	}, nil
}

func (t *HTTPTransport) AddAppointment(ctx context.Context, towerID domain.TowerID, addr string, appt domain.Appointment, signature string) (domain.AppointmentReceipt, error) {
	t.logger().Debug().
		Str("tower", towerID.String()).
		Str("locator", appt.Locator.String()).
		Msg("sending appointment")

	req := AddAppointmentRequest{
		Appointment: AppointmentMessage{
			Locator:       appt.Locator.String(),
			EncryptedBlob: hex.EncodeToString(appt.EncryptedBlob),
			ToSelfDelay:   appt.ToSelfDelay,
		},
		Signature: signature,
	}
	resp := AddAppointmentResponse{}
	if err := t.post(ctx, addr, EndpointAddAppointment, req, &resp); err != nil {
		return domain.AppointmentReceipt{}, err
	}
	if resp.Locator != "" && resp.Locator != appt.Locator.String() {
		return domain.AppointmentReceipt{}, &domain.RequestError{
			Kind: domain.RequestDeserialize,
			Msg:  fmt.Sprintf("receipt locator %s does not match %s", resp.Locator, appt.Locator),
		}
	}
	return domain.AppointmentReceipt{
		UserSignature:      signature,
		StartBlock:         resp.StartBlock,
		Signature:          resp.Signature,
		AvailableSlots:     resp.AvailableSlots,
		SubscriptionExpiry: resp.SubscriptionExpiry,
	}, nil
}

func (t *HTTPTransport) post(ctx context.Context, addr, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &domain.RequestError{Kind: domain.RequestUnexpected, Msg: "failed to encode request", Err: err}
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	url := strings.TrimSuffix(addr, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &domain.RequestError{Kind: domain.RequestUnexpected, Msg: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client().Do(req)
	if err != nil {
		t.logger().Debug().
			Err(err).
			Str("address", addr).
			Msg("failed to send data to tower")
		return classify(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return classify(err)
	}

	if res.StatusCode != http.StatusOK {
		apiErr := APIError{}
		if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Error == "" {
			return &domain.RequestError{
				Kind: domain.RequestDeserialize,
				Msg:  fmt.Sprintf("unexpected response status %d", res.StatusCode),
				Err:  err,
			}
		}
		return &domain.RequestError{Kind: domain.RequestAPI, Msg: apiErr.Error, Code: apiErr.ErrorCode}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.RequestError{Kind: domain.RequestDeserialize, Msg: "unexpected response body", Err: err}
	}
	return nil
}

func classify(err error) error {
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.As(err, &netErr) && netErr.Timeout():
		return &domain.RequestError{Kind: domain.RequestConnection, Msg: "cannot connect to the tower", Err: err}
	default:
		return &domain.RequestError{Kind: domain.RequestUnexpected, Msg: "unexpected transport failure", Err: err}
	}
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client == nil {
		return http.DefaultClient
	}
	return t.Client
}

func (t *HTTPTransport) logger() *zerolog.Logger {
	return log.OrNop(t.Logger)
}
