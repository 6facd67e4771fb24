package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTowerNotFound      = errors.New("tower not found")
	ErrEncoding           = errors.New("encoding issue")
	ErrDecoding           = errors.New("decoding issue")
	ErrStorage            = errors.New("storage error")
	ErrRequest            = errors.New("request error")
	ErrInvalidReceipt     = errors.New("invalid receipt")
	ErrSubscriptionExpiry = errors.New("subscription expiry not increased")
	ErrSubscriptionSlot   = errors.New("subscription slots not increased")
)

type RequestErrorKind int

const (
	RequestConnection RequestErrorKind = iota
	RequestDeserialize
	RequestAPI
	RequestUnexpected
)

// RequestError is returned by tower transports. Code carries the tower's
// error code for RequestAPI failures.
type RequestError struct {
	Kind RequestErrorKind
	Msg  string
	Code uint8
	Err  error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case RequestConnection:
		return fmt.Sprintf("connection error: %s", e.Msg)
	case RequestDeserialize:
		return fmt.Sprintf("deserialize error: %s", e.Msg)
	case RequestAPI:
		return fmt.Sprintf("tower error %d: %s", e.Code, e.Msg)
	default:
		return fmt.Sprintf("unexpected error: %s", e.Msg)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequest
}

func (e *RequestError) IsConnection() bool {
	return e.Kind == RequestConnection
}

func IsConnectionError(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.IsConnection()
}

// APIErrorCode reports the tower's error code when err is an API rejection.
func APIErrorCode(err error) (uint8, bool) {
	var re *RequestError
	if errors.As(err, &re) && re.Kind == RequestAPI {
		return re.Code, true
	}
	return 0, false
}
