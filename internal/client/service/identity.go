package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/wtcrypto"
	shared "github.com/charadev96/wtclient/internal/shared/domain"
	"github.com/charadev96/wtclient/internal/shared/log"
)

// IdentityService owns the user's secret key. The key is created at most once
// per store and never used before it has been persisted: creation goes through
// the repository's create-if-absent, so services sharing a store agree on it.
type IdentityService struct {
	Repo   domain.IdentityRepository
	Logger *zerolog.Logger

	mu       sync.Mutex
	identity *domain.UserIdentity
}

func (s *IdentityService) LoadOrCreate(ctx context.Context) (domain.UserIdentity, domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger := log.OrNop(s.Logger)

	if s.identity != nil {
		return *s.identity, s.identity.ID(), nil
	}

	identity, err := s.Repo.Load(ctx)
	switch {
	case err == nil:
		logger.Info().
			Str("user", identity.ID().String()).
			Msg("loaded user key")
	case errors.Is(err, shared.ErrNotExist):
		logger.Warn().
			Msg("user key does not exist, creating a fresh one")
		sk, err := wtcrypto.GenerateSecretKey()
		if err != nil {
			return domain.UserIdentity{}, domain.UserID{}, err
		}
		minted := domain.UserIdentity{SecretKey: sk}
		identity, err = s.Repo.Create(ctx, minted)
		if err != nil {
			return domain.UserIdentity{}, domain.UserID{}, fmt.Errorf("failed to persist new user key: %w", err)
		}
		if identity.ID() != minted.ID() {
			logger.Info().
				Str("user", identity.ID().String()).
				Msg("user key created concurrently, using the stored one")
		} else {
			logger.Info().
				Str("user", identity.ID().String()).
				Msg("created new user key")
		}
	default:
		return domain.UserIdentity{}, domain.UserID{}, fmt.Errorf("failed to load user key: %w", err)
	}

	s.identity = &identity
	return identity, identity.ID(), nil
}
