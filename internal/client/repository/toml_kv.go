package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	shared "github.com/charadev96/wtclient/internal/shared/domain"
)

const (
	permRepository = 0600
)

// TOMLKVStore keeps every blob base64 encoded in one TOML file. The file is
// reloaded whenever its modification time changes, so hand edits are picked
// up without a restart.
type TOMLKVStore struct {
	FilePath string

	mu         sync.Mutex
	data       schema
	modifiedAt time.Time
}

type schema struct {
	Entries map[string]map[string]string `toml:"entries"`
}

func (r *TOMLKVStore) Read(_ context.Context, primaryNS, secondaryNS, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return nil, err
	}
	text, ok := r.data.Entries[namespace(primaryNS, secondaryNS)][key]
	if !ok {
		return nil, fmt.Errorf("failed to read '%s': %w", key, shared.ErrNotExist)
	}
	buf, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decode '%s': %w", key, err)
	}
	return buf, nil
}

func (r *TOMLKVStore) Write(_ context.Context, primaryNS, secondaryNS, key string, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	ns := namespace(primaryNS, secondaryNS)
	if _, ok := r.data.Entries[ns]; !ok {
		r.data.Entries[ns] = map[string]string{}
	}
	r.data.Entries[ns][key] = base64.StdEncoding.EncodeToString(buf)
	return r.save()
}

func (r *TOMLKVStore) WriteIfAbsent(_ context.Context, primaryNS, secondaryNS, key string, buf []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return false, err
	}
	ns := namespace(primaryNS, secondaryNS)
	if _, ok := r.data.Entries[ns][key]; ok {
		return false, nil
	}
	if _, ok := r.data.Entries[ns]; !ok {
		r.data.Entries[ns] = map[string]string{}
	}
	r.data.Entries[ns][key] = base64.StdEncoding.EncodeToString(buf)
	if err := r.save(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *TOMLKVStore) Remove(_ context.Context, primaryNS, secondaryNS, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return err
	}
	ns := namespace(primaryNS, secondaryNS)
	if _, ok := r.data.Entries[ns][key]; !ok {
		return nil
	}
	delete(r.data.Entries[ns], key)
	return r.save()
}

func (r *TOMLKVStore) List(_ context.Context, primaryNS, secondaryNS string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.refresh(); err != nil {
		return nil, err
	}
	keys := []string{}
	for key := range r.data.Entries[namespace(primaryNS, secondaryNS)] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *TOMLKVStore) refresh() error {
	if r.data.Entries == nil {
		r.data.Entries = map[string]map[string]string{}
	}
	modified, err := r.fileModified()
	if err != nil {
		return err
	}
	if modified {
		return r.load()
	}
	return nil
}

func (r *TOMLKVStore) fileModified() (bool, error) {
	info, err := os.Stat(r.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read file timestamp: %w", err)
	}
	modTime := info.ModTime()
	mod := !r.modifiedAt.Equal(modTime)
	if mod {
		r.modifiedAt = modTime
	}
	return mod, nil
}

func (r *TOMLKVStore) load() error {
	data := schema{}
	_, err := toml.DecodeFile(r.FilePath, &data)
	if err != nil {
		return fmt.Errorf("failed to load repository: %w", err)
	}
	if data.Entries == nil {
		data.Entries = map[string]map[string]string{}
	}
	r.data = data
	return nil
}

func (r *TOMLKVStore) save() error {
	file, err := os.OpenFile(r.FilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, permRepository)
	if err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	defer file.Close()
	enc := toml.NewEncoder(file)
	enc.Indent = ""
	if err := enc.Encode(r.data); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to read file timestamp: %w", err)
	}
	r.modifiedAt = info.ModTime()
	return nil
}
