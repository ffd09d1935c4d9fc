package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

var _ UserEnsurer = (*UserSync)(nil)

// UserSync upserts the users mirror at most once per identity per TTL.
type UserSync struct {
	logger *slog.Logger
	repo   UserRepository
	seen   *cache.Cache
}

func NewUserSync(repo UserRepository, ttl time.Duration, logger *slog.Logger) *UserSync {
	return &UserSync{
		logger: logger,
		repo:   repo,
		seen:   cache.New(ttl, 2*ttl),
	}
}

func (s *UserSync) EnsureUser(ctx context.Context, session types.Session) error {
	key := session.UserID.String() + "|" + session.Email
	if _, ok := s.seen.Get(key); ok {
		return nil
	}
	if err := s.repo.UpsertUser(ctx, session.UserID, session.Email); err != nil {
		return err
	}
	s.seen.SetDefault(key, struct{}{})
	s.logger.DebugContext(ctx, "User mirror synced", slog.String("userID", session.UserID.String()))
	return nil
}
