package domain

import (
	"context"
	"errors"
)

var ErrNotExist = errors.New("does not exist")

// KVStore is a namespaced blob store. Read reports a missing key with an
// error wrapping ErrNotExist; every other error is an I/O failure.
type KVStore interface {
	Read(ctx context.Context, primaryNS, secondaryNS, key string) ([]byte, error)
	Write(ctx context.Context, primaryNS, secondaryNS, key string, buf []byte) error
	// WriteIfAbsent stores buf only when key has no value yet, atomically
	// with respect to other writers of the store. It reports whether it wrote.
	WriteIfAbsent(ctx context.Context, primaryNS, secondaryNS, key string, buf []byte) (bool, error)
	Remove(ctx context.Context, primaryNS, secondaryNS, key string) error
	List(ctx context.Context, primaryNS, secondaryNS string) ([]string, error)
}

type TransactionRunner interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}
