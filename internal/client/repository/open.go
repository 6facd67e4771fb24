package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/charadev96/wtclient/internal/shared/config"
	shared "github.com/charadev96/wtclient/internal/shared/domain"
	"github.com/charadev96/wtclient/internal/shared/infra"
)

// Backend bundles a KV store with the transaction runner matching it.
type Backend struct {
	Store    shared.KVStore
	TXRunner shared.TransactionRunner

	close func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func Open(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return openSQLite(ctx, cfg.Path)
	case config.DriverLevelDB:
		s, err := OpenLevelKVStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, TXRunner: infra.DirectRunner{}, close: s.Close}, nil
	case config.DriverRedis:
		s, err := OpenRedisKVStore(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: s, TXRunner: infra.DirectRunner{}, close: s.Close}, nil
	case config.DriverTOML:
		return &Backend{Store: &TOMLKVStore{FilePath: cfg.Path}, TXRunner: infra.DirectRunner{}}, nil
	case config.DriverMemory:
		return &Backend{Store: NewMemoryKVStore(), TXRunner: infra.DirectRunner{}}, nil
	default:
		return nil, fmt.Errorf("unknown store driver '%s'", cfg.Driver)
	}
}

func openSQLite(ctx context.Context, path string) (*Backend, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?cache=shared", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	s, err := NewBunKVStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Backend{Store: s, TXRunner: infra.NewBunTransactionRunner(db), close: db.Close}, nil
}
