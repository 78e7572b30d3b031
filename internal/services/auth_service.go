package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/circlechat/internal/handlers/dto"
	"github.com/thereayou/circlechat/internal/models"
	"github.com/thereayou/circlechat/pkg/apperror"
	"github.com/thereayou/circlechat/pkg/auth"
)

var (
	ErrUnauthenticated = errors.New("authentication failed")
	ErrTokenRevoked    = errors.New("token is blacklisted")
	ErrAccountInactive = errors.New("account is inactive")
)

// TokenBlacklist tells revoked tokens apart.
type TokenBlacklist interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RedisBlacklist checks the blacklist:<token> keys written by the account
// service on logout.
type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AuthService turns a bearer token into the identity of an active account.
type AuthService struct {
	jwt       *auth.JWTManager
	blacklist TokenBlacklist
	users     IdentityDirectory
	log       *slog.Logger
}

func NewAuthService(jwt *auth.JWTManager, blacklist TokenBlacklist, users IdentityDirectory, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		jwt:       jwt,
		blacklist: blacklist,
		users:     users,
		log:       log.With("component", "auth"),
	}
}

// Authenticate fails closed: any lookup problem rejects the token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	if s.blacklist != nil {
		revoked, err := s.blacklist.IsRevoked(ctx, token)
		if err != nil {
			s.log.Warn("blacklist lookup failed", "error", err)
			return models.Identity{}, ErrUnauthenticated
		}
		if revoked {
			return models.Identity{}, ErrTokenRevoked
		}
	}

	claims, err := s.jwt.Verify(token)
	if err != nil {
		return models.Identity{}, ErrUnauthenticated
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Identity{}, ErrUnauthenticated
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.log.Warn("identity lookup failed", "user_id", userID, "error", err)
		}
		return models.Identity{}, ErrUnauthenticated
	}
	if !user.IsActive {
		return models.Identity{}, ErrAccountInactive
	}
	return dto.Identity(user.Identity()), nil
}
