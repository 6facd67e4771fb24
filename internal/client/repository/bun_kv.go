package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	shared "github.com/charadev96/wtclient/internal/shared/domain"
	"github.com/charadev96/wtclient/internal/shared/infra"
)

// BunKVStore keeps blobs in a single SQL table. Calls made inside a
// BunTransactionRunner share its transaction.
type BunKVStore struct {
	db *bun.DB
}

func NewBunKVStore(ctx context.Context, db *bun.DB) (*BunKVStore, error) {
	s := &BunKVStore{
		db: db,
	}
	tx := infra.ExtractTx(ctx, s.db)
	_, err := tx.NewCreateTable().
		Model((*kvEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to create repository: %w", err)
	}
	return s, nil
}

func (s *BunKVStore) Read(ctx context.Context, primaryNS, secondaryNS, key string) ([]byte, error) {
	tx := infra.ExtractTx(ctx, s.db)
	e := new(kvEntry)
	err := tx.NewSelect().
		Model(e).
		Where("namespace = ?", primaryNS).
		Where("sub_namespace = ?", secondaryNS).
		Where("entry_key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read '%s': %w", key, err)
	}
	return e.Value, nil
}

func (s *BunKVStore) Write(ctx context.Context, primaryNS, secondaryNS, key string, buf []byte) error {
	tx := infra.ExtractTx(ctx, s.db)
	e := &kvEntry{
		Namespace:    primaryNS,
		SubNamespace: secondaryNS,
		EntryKey:     key,
		Value:        buf,
	}
	_, err := tx.NewInsert().
		Model(e).
		Replace().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", key, err)
	}
	return nil
}

func (s *BunKVStore) WriteIfAbsent(ctx context.Context, primaryNS, secondaryNS, key string, buf []byte) (bool, error) {
	tx := infra.ExtractTx(ctx, s.db)
	e := &kvEntry{
		Namespace:    primaryNS,
		SubNamespace: secondaryNS,
		EntryKey:     key,
		Value:        buf,
	}
	res, err := tx.NewInsert().
		Model(e).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to write '%s': %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to write '%s': %w", key, err)
	}
	return n == 1, nil
}

func (s *BunKVStore) Remove(ctx context.Context, primaryNS, secondaryNS, key string) error {
	tx := infra.ExtractTx(ctx, s.db)
	e := &kvEntry{Namespace: primaryNS, SubNamespace: secondaryNS, EntryKey: key}
	_, err := tx.NewDelete().
		Model(e).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove '%s': %w", key, err)
	}
	return nil
}

func (s *BunKVStore) List(ctx context.Context, primaryNS, secondaryNS string) ([]string, error) {
	tx := infra.ExtractTx(ctx, s.db)
	keys := []string{}
	err := tx.NewSelect().
		Model((*kvEntry)(nil)).
		Column("entry_key").
		Where("namespace = ?", primaryNS).
		Where("sub_namespace = ?", secondaryNS).
		Order("entry_key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

type kvEntry struct {
	bun.BaseModel `bun:"table:kv_entries"`

	Namespace    string `bun:",pk"`
	SubNamespace string `bun:",pk"`
	EntryKey     string `bun:",pk"`
	Value        []byte `bun:",notnull"`
}
