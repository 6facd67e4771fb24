package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"

	client "github.com/charadev96/wtclient/internal/client/domain"
	shared "github.com/charadev96/wtclient/internal/shared/domain"
	"github.com/charadev96/wtclient/internal/shared/infra"
	"github.com/charadev96/wtclient/internal/shared/log"
)

// KVTowerRegistry persists the whole tower collection as one JSON blob. All
// operations, reads included, hold a single lock: mutations are
// whole-collection read-modify-writes and must not interleave. Reads always
// go to the store, so changes made through another handle on it are seen.
type KVTowerRegistry struct {
	store    shared.KVStore
	txRunner shared.TransactionRunner
	logger   *zerolog.Logger

	mu sync.Mutex
}

func NewKVTowerRegistry(store shared.KVStore, txRunner shared.TransactionRunner, logger *zerolog.Logger) *KVTowerRegistry {
	if txRunner == nil {
		txRunner = infra.DirectRunner{}
	}
	return &KVTowerRegistry{
		store:    store,
		txRunner: txRunner,
		logger:   log.OrNop(logger),
	}
}

func (r *KVTowerRegistry) Get(ctx context.Context, id client.TowerID) (client.TowerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return client.TowerRecord{}, err
	}
	t, ok := table[id.String()]
	if !ok {
		return client.TowerRecord{}, fmt.Errorf("failed to get tower %s: %w", id, client.ErrTowerNotFound)
	}
	return t.toDomain(), nil
}

func (r *KVTowerRegistry) List(ctx context.Context) (map[client.TowerID]client.TowerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	towers := make(map[client.TowerID]client.TowerRecord, len(table))
	for key, t := range table {
		id, err := client.ParseTowerID(key)
		if err != nil {
			return nil, fmt.Errorf("%w: bad tower key '%s': %w", client.ErrDecoding, key, err)
		}
		towers[id] = t.toDomain()
	}
	return towers, nil
}

func (r *KVTowerRegistry) Upsert(ctx context.Context, id client.TowerID, rec client.TowerRecord) error {
	_, err := r.Update(ctx, id, func(*client.TowerRecord) (*client.TowerRecord, error) {
		return &rec, nil
	})
	return err
}

func (r *KVTowerRegistry) SetStatus(ctx context.Context, id client.TowerID, status client.TowerStatus) error {
	_, err := r.Update(ctx, id, func(current *client.TowerRecord) (*client.TowerRecord, error) {
		if current == nil {
			r.logger.Error().
				Str("tower", id.String()).
				Stringer("status", status).
				Msg("cannot change status of unknown tower")
			return nil, nil
		}
		if current.Status == status {
			r.logger.Debug().
				Str("tower", id.String()).
				Stringer("status", status).
				Msg("tower status unchanged")
			return nil, nil
		}
		next := *current
		next.Status = status
		return &next, nil
	})
	if errors.Is(err, client.ErrTowerNotFound) {
		return nil
	}
	return err
}

// Update returns the stored record after fn ran, or ErrTowerNotFound when
// fn declined to create an unknown tower.
func (r *KVTowerRegistry) Update(ctx context.Context, id client.TowerID, fn client.TowerMutation) (client.TowerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result client.TowerRecord
	err := r.txRunner.Exec(ctx, func(ctx context.Context) error {
		table, err := r.load(ctx)
		if err != nil {
			return err
		}
		var current *client.TowerRecord
		if t, ok := table[id.String()]; ok {
			rec := t.toDomain()
			current = &rec
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			if current == nil {
				return fmt.Errorf("failed to update tower %s: %w", id, client.ErrTowerNotFound)
			}
			result = *current
			return nil
		}
		t := new(towerRecord)
		t.fromDomain(*next)
		table[id.String()] = t
		if err := r.save(ctx, table); err != nil {
			return err
		}
		result = *next
		return nil
	})
	if err != nil {
		return client.TowerRecord{}, err
	}
	return result, nil
}

func (r *KVTowerRegistry) Remove(ctx context.Context, id client.TowerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.txRunner.Exec(ctx, func(ctx context.Context) error {
		table, err := r.load(ctx)
		if err != nil {
			return err
		}
		if _, ok := table[id.String()]; !ok {
			return fmt.Errorf("failed to remove tower %s: %w", id, client.ErrTowerNotFound)
		}
		delete(table, id.String())
		return r.save(ctx, table)
	})
}

// load always reads the store and returns a fresh table; a missing collection
// is an empty one.
func (r *KVTowerRegistry) load(ctx context.Context) (towerTable, error) {
	buf, err := r.store.Read(ctx, PrimaryNamespace, SecondaryNamespace, TowerListKey)
	if errors.Is(err, shared.ErrNotExist) {
		return towerTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read towers: %w", client.ErrStorage, err)
	}
	table := towerTable{}
	if err := json.Unmarshal(buf, &table); err != nil {
		return nil, fmt.Errorf("%w: failed to decode towers: %w", client.ErrDecoding, err)
	}
	for key, t := range table {
		if t == nil {
			return nil, fmt.Errorf("%w: empty record for tower '%s'", client.ErrDecoding, key)
		}
	}
	return table, nil
}

func (r *KVTowerRegistry) save(ctx context.Context, table towerTable) error {
	buf, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("%w: failed to encode towers: %w", client.ErrEncoding, err)
	}
	if err := r.store.Write(ctx, PrimaryNamespace, SecondaryNamespace, TowerListKey, buf); err != nil {
		return fmt.Errorf("%w: failed to write towers: %w", client.ErrStorage, err)
	}
	return nil
}

type towerRecord struct {
	NetAddr            string             `json:"net_addr"`
	AvailableSlots     uint32             `json:"available_slots"`
	SubscriptionStart  uint32             `json:"subscription_start"`
	SubscriptionExpiry uint32             `json:"subscription_expiry"`
	Status             client.TowerStatus `json:"status"`
}

type towerTable map[string]*towerRecord

func (t *towerRecord) toDomain() client.TowerRecord {
	rec := client.TowerRecord{}
	copier.Copy(&rec, t)
	return rec
}

func (t *towerRecord) fromDomain(rec client.TowerRecord) {
	copier.Copy(t, &rec)
}
