package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	shared "github.com/charadev96/wtclient/internal/shared/domain"
)

// LevelKVStore maps (primary, secondary, key) onto a single LevelDB key
// joined with NUL separators.
type LevelKVStore struct {
	db *leveldb.DB
}

func OpenLevelKVStore(path string) (*LevelKVStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	return &LevelKVStore{db: db}, nil
}

func (s *LevelKVStore) Close() error {
	return s.db.Close()
}

func (s *LevelKVStore) Read(_ context.Context, primaryNS, secondaryNS, key string) ([]byte, error) {
	buf, err := s.db.Get(levelKey(primaryNS, secondaryNS, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			err = shared.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read '%s': %w", key, err)
	}
	return buf, nil
}

func (s *LevelKVStore) Write(_ context.Context, primaryNS, secondaryNS, key string, buf []byte) error {
	err := s.db.Put(levelKey(primaryNS, secondaryNS, key), buf, &opt.WriteOptions{Sync: true})
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", key, err)
	}
	return nil
}

// WriteIfAbsent runs in a LevelDB transaction, which excludes every other
// write to the database until it commits.
func (s *LevelKVStore) WriteIfAbsent(_ context.Context, primaryNS, secondaryNS, key string, buf []byte) (bool, error) {
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return false, fmt.Errorf("failed to write '%s': %w", key, err)
	}
	defer tr.Discard()
	k := levelKey(primaryNS, secondaryNS, key)
	exists, err := tr.Has(k, nil)
	if err != nil {
		return false, fmt.Errorf("failed to write '%s': %w", key, err)
	}
	if exists {
		return false, nil
	}
	if err := tr.Put(k, buf, nil); err != nil {
		return false, fmt.Errorf("failed to write '%s': %w", key, err)
	}
	if err := tr.Commit(); err != nil {
		return false, fmt.Errorf("failed to write '%s': %w", key, err)
	}
	return true, nil
}

func (s *LevelKVStore) Remove(_ context.Context, primaryNS, secondaryNS, key string) error {
	err := s.db.Delete(levelKey(primaryNS, secondaryNS, key), &opt.WriteOptions{Sync: true})
	if err != nil {
		return fmt.Errorf("failed to remove '%s': %w", key, err)
	}
	return nil
}

func (s *LevelKVStore) List(_ context.Context, primaryNS, secondaryNS string) ([]string, error) {
	prefix := levelKey(primaryNS, secondaryNS, "")
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	keys := []string{}
	for it.Next() {
		keys = append(keys, string(it.Key()[len(prefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

func levelKey(primaryNS, secondaryNS, key string) []byte {
	return []byte(primaryNS + "\x00" + secondaryNS + "\x00" + key)
}
