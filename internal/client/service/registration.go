package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/wtcrypto"
	"github.com/charadev96/wtclient/internal/shared/log"
)

const DefaultScheme = "http"

var ErrInvalidAddress = errors.New("invalid tower address")

type RegistrationService struct {
	Towers    domain.TowerRegistry
	Transport domain.TowerTransport
	Logger    *zerolog.Logger

	// DefaultScheme is prefixed to hosts given without one. Empty means
	// DefaultScheme.
	DefaultScheme string
}

// RegisterOrRenew registers the user with a tower, or renews an existing
// subscription. A renewal must extend the expiry, or keep it and add slots.
func (s *RegistrationService) RegisterOrRenew(ctx context.Context, towerID domain.TowerID, userID domain.UserID, host string) (domain.TowerRecord, error) {
	logger := log.OrNop(s.Logger)

	addr, err := NormalizeAddress(host, s.scheme())
	if err != nil {
		return domain.TowerRecord{}, err
	}
	if !hasScheme(host) {
		logger.Warn().
			Str("tower", towerID.String()).
			Str("address", addr).
			Msg("no scheme given, using default")
	}

	receipt, err := s.Transport.Register(ctx, towerID, userID, addr)
	if err != nil {
		if domain.IsConnectionError(err) {
			s.markUnreachable(ctx, towerID)
		}
		return domain.TowerRecord{}, fmt.Errorf("%w: failed to register with tower %s: %w", domain.ErrRequest, towerID, err)
	}

	if err := verifyTowerSignature(towerID, receipt.Serialize(), receipt.Signature); err != nil {
		logger.Warn().
			Str("tower", towerID.String()).
			Err(err).
			Msg("registration receipt rejected")
		return domain.TowerRecord{}, fmt.Errorf("%w: registration receipt contains bad signature, is the tower id right?", domain.ErrInvalidReceipt)
	}

	rec, err := s.Towers.Update(ctx, towerID, func(current *domain.TowerRecord) (*domain.TowerRecord, error) {
		if current != nil {
			if err := checkRenewal(*current, receipt); err != nil {
				return nil, err
			}
		}
		return &domain.TowerRecord{
			NetAddr:            addr,
			AvailableSlots:     receipt.AvailableSlots,
			SubscriptionStart:  receipt.SubscriptionStart,
			SubscriptionExpiry: receipt.SubscriptionExpiry,
			Status:             domain.StatusReachable,
		}, nil
	})
	if err != nil {
		return domain.TowerRecord{}, err
	}

	logger.Info().
		Str("tower", towerID.String()).
		Uint32("slots", rec.AvailableSlots).
		Uint32("expiry", rec.SubscriptionExpiry).
		Msg("registered with tower")
	return rec, nil
}

func (s *RegistrationService) markUnreachable(ctx context.Context, towerID domain.TowerID) {
	logger := log.OrNop(s.Logger)
	if _, err := s.Towers.Get(ctx, towerID); err != nil {
		if !errors.Is(err, domain.ErrTowerNotFound) {
			logger.Error().Err(err).Str("tower", towerID.String()).Msg("failed to read tower")
		}
		return
	}
	if err := s.Towers.SetStatus(ctx, towerID, domain.StatusTemporaryUnreachable); err != nil {
		logger.Error().Err(err).Str("tower", towerID.String()).Msg("failed to update tower status")
	}
}

func (s *RegistrationService) scheme() string {
	if s.DefaultScheme == "" {
		return DefaultScheme
	}
	return s.DefaultScheme
}

func checkRenewal(current domain.TowerRecord, receipt domain.RegistrationReceipt) error {
	switch {
	case receipt.SubscriptionExpiry > current.SubscriptionExpiry:
		return nil
	case receipt.SubscriptionExpiry < current.SubscriptionExpiry:
		return fmt.Errorf("%w: offered %d, have %d", domain.ErrSubscriptionExpiry, receipt.SubscriptionExpiry, current.SubscriptionExpiry)
	case receipt.AvailableSlots > current.AvailableSlots:
		return nil
	default:
		return fmt.Errorf("%w: offered %d, have %d", domain.ErrSubscriptionSlot, receipt.AvailableSlots, current.AvailableSlots)
	}
}

// NormalizeAddress turns a user supplied host into a base URL. Hosts without
// a scheme get scheme:// prepended.
func NormalizeAddress(host, scheme string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	addr := host
	if !hasScheme(host) {
		addr = scheme + "://" + host
	}
	addr = strings.TrimSuffix(addr, "/")
	if err := validateAddress(addr); err != nil {
		return "", err
	}
	return addr, nil
}

func hasScheme(host string) bool {
	return strings.Contains(strings.TrimSpace(host), "://")
}

func validateAddress(addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("%w '%s': %w", ErrInvalidAddress, addr, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w '%s'", ErrInvalidAddress, addr)
	}
	return nil
}

func verifyTowerSignature(towerID domain.TowerID, msg []byte, signature string) error {
	pk, err := wtcrypto.RecoverPubKey(msg, signature)
	if err != nil {
		return err
	}
	if domain.TowerIDFromPublicKey(pk) != towerID {
		return fmt.Errorf("signature recovers to a different key")
	}
	return nil
}
