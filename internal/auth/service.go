package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/helios-suite/helios/internal/shared"
)

// Service verifies caller credentials.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Authenticate validates a bearer credential of the form "<id>.<secret>" and
// returns the caller principal.
func (s *Service) Authenticate(ctx context.Context, credential string) (*shared.Principal, error) {
	id, secret, found := strings.Cut(credential, ".")
	if !found || id == "" || secret == "" {
		return nil, shared.ErrInvalidToken
	}
	token, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !token.Active {
		return nil, shared.ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidToken
	}
	if err := s.repo.TouchLastUsed(ctx, id, time.Now()); err != nil {
		s.logger.Warn("auth: touch last used", slog.Any("error", err))
	}
	return &shared.Principal{TokenID: token.ID, Name: token.Name}, nil
}
