package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/repository"
	"github.com/charadev96/wtclient/internal/client/service"
	"github.com/charadev96/wtclient/internal/client/transport"
	shared "github.com/charadev96/wtclient/internal/shared/domain"
	"github.com/charadev96/wtclient/internal/shared/log"
)

const defaultTimeout = 10 * time.Second

var ErrAddressChangeDenied = errors.New("tower address change denied")

// UpdateStatus is what the channel monitor gets back from a persist call.
type UpdateStatus int

const (
	UpdateCompleted UpdateStatus = iota
	UpdateUnrecoverableError
)

func (s UpdateStatus) String() string {
	if s == UpdateCompleted {
		return "completed"
	}
	return "unrecoverable_error"
}

type Options struct {
	Store     shared.KVStore
	TXRunner  shared.TransactionRunner
	Transport domain.TowerTransport

	DefaultScheme string
	ToSelfDelay   uint32
	Workers       int
	Logger        *zerolog.Logger

	// ConfirmAddressChange is asked before a known tower is re-registered
	// under a different address. Nil accepts every change.
	ConfirmAddressChange func(id domain.TowerID, oldAddr, newAddr string) bool
}

// Client is the watchtower client: it owns the user identity, the tower
// registry, and sends appointments for every revoked commitment it is told
// about.
type Client struct {
	Towers domain.TowerRegistry
	UserID domain.UserID
	Logger *zerolog.Logger

	registration *service.RegistrationService
	dispatcher   *service.Dispatcher
	confirm      func(id domain.TowerID, oldAddr, newAddr string) bool
}

// New loads the user key from opts.Store, creating it on first run.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	logger := log.OrNop(opts.Logger)

	tr := opts.Transport
	if tr == nil {
		tr = transport.New(defaultTimeout, logger)
	}

	identitySvc := &service.IdentityService{
		Repo:   repository.NewKVIdentityRepository(opts.Store),
		Logger: logger,
	}
	identity, userID, err := identitySvc.LoadOrCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init user identity: %w", err)
	}

	towers := repository.NewKVTowerRegistry(opts.Store, opts.TXRunner, logger)
	return &Client{
		Towers: towers,
		UserID: userID,
		Logger: logger,
		registration: &service.RegistrationService{
			Towers:        towers,
			Transport:     tr,
			Logger:        logger,
			DefaultScheme: opts.DefaultScheme,
		},
		dispatcher: &service.Dispatcher{
			Towers:      towers,
			Transport:   tr,
			Identity:    identity,
			ToSelfDelay: opts.ToSelfDelay,
			Workers:     opts.Workers,
			Logger:      logger,
		},
		confirm: opts.ConfirmAddressChange,
	}, nil
}

func (c *Client) RegisterTower(ctx context.Context, id domain.TowerID, host string) (domain.TowerRecord, error) {
	if c.confirm != nil {
		if err := c.confirmAddress(ctx, id, host); err != nil {
			return domain.TowerRecord{}, err
		}
	}
	return c.registration.RegisterOrRenew(ctx, id, c.UserID, host)
}

func (c *Client) confirmAddress(ctx context.Context, id domain.TowerID, host string) error {
	current, err := c.Towers.Get(ctx, id)
	if errors.Is(err, domain.ErrTowerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	scheme := c.registration.DefaultScheme
	if scheme == "" {
		scheme = service.DefaultScheme
	}
	addr, err := service.NormalizeAddress(host, scheme)
	if err != nil || addr == current.NetAddr {
		// Invalid hosts are reported by the registration itself.
		return nil
	}

	c.Logger.Warn().
		Str("tower", id.String()).
		Str("old", current.NetAddr).
		Str("new", addr).
		Msg("tower address changed, awaiting user confirmation")
	if !c.confirm(id, current.NetAddr, addr) {
		return fmt.Errorf("%w: %s", ErrAddressChangeDenied, id)
	}
	return nil
}

func (c *Client) ListTowers(ctx context.Context) (map[domain.TowerID]domain.TowerRecord, error) {
	return c.Towers.List(ctx)
}

func (c *Client) GetTower(ctx context.Context, id domain.TowerID) (domain.TowerRecord, error) {
	return c.Towers.Get(ctx, id)
}

func (c *Client) RemoveTower(ctx context.Context, id domain.TowerID) error {
	if err := c.Towers.Remove(ctx, id); err != nil {
		return err
	}
	c.Logger.Info().
		Str("tower", id.String()).
		Msg("removed tower")
	return nil
}

func (c *Client) Dispatch(ctx context.Context, outputs []domain.RevokeableOutputData) (service.DispatchReport, error) {
	return c.dispatcher.OnChannelEvent(ctx, outputs)
}

// PersistNewChannel has nothing to back up: a fresh channel has no revoked
// state yet.
func (c *Client) PersistNewChannel(context.Context) UpdateStatus {
	return UpdateCompleted
}

// UpdatePersistedChannel backs up every revocable output produced by a
// channel update. Per tower failures are logged and do not fail the update.
func (c *Client) UpdatePersistedChannel(ctx context.Context, outputs []domain.RevokeableOutputData) UpdateStatus {
	report, err := c.Dispatch(ctx, outputs)
	if err != nil {
		c.Logger.Error().
			Err(err).
			Msg("failed to back up channel update")
		return UpdateUnrecoverableError
	}
	if failed := len(report.Deliveries) - report.Count(service.OutcomeDelivered); failed > 0 {
		c.Logger.Warn().
			Str("round", report.Round.String()).
			Int("failed", failed).
			Msg("some towers did not accept the update")
	}
	return UpdateCompleted
}
