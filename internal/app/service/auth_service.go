package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/PowerLink/internal/app/model"
	"github.com/sifan077/PowerLink/internal/app/repository"
	httpUtil "github.com/sifan077/PowerLink/internal/http/util"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService registers users and issues, validates and revokes access tokens.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	// Authenticate returns the user id carried by a valid, unrevoked token.
	Authenticate(ctx context.Context, token string) (uint64, error)
}

// RegisterInput captures data required to create an account.
type RegisterInput struct {
	Username string `validate:"required,alphanum,min=3,max=64"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,min=8,max=72"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// RevocationStore remembers logged-out token ids until they would expire anyway.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type authService struct {
	users      repository.UserRepository
	tokens     *httpUtil.TokenSigner
	revoked    RevocationStore
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// NewAuthService returns an AuthService. bcryptCost of zero uses bcrypt.DefaultCost.
func NewAuthService(users repository.UserRepository, tokens *httpUtil.TokenSigner, revoked RevocationStore, logger *zap.Logger, bcryptCost int) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &authService{
		users:      users,
		tokens:     tokens,
		revoked:    revoked,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		s.logger.Error("failed to create user", zap.Error(err))
		return nil, storeError("create user", err)
	}

	s.logger.Info("user registered", zap.Uint64("user_id", user.ID))
	return user, nil
}

// dummyHash keeps Login timing similar for unknown and known usernames.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("powerlink-dummy-password"), bcrypt.MinCost)

func (s *authService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, &ValidationError{Message: "username and password are required"}
	}

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("failed to load user", zap.Error(err))
		return nil, storeError("get user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

func (s *authService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return ErrUnauthorized
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		s.logger.Error("failed to revoke token", zap.Error(err))
		return storeError("revoke token", err)
	}
	return nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (uint64, error) {
	if token == "" {
		return 0, ErrUnauthorized
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		return 0, ErrUnauthorized
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		// Redis outages must not lock every user out.
		s.logger.Warn("token revocation check failed", zap.Error(err))
	}
	if revoked {
		return 0, ErrUnauthorized
	}

	return claims.UserID()
}

const defaultRevocationTimeout = 150 * time.Millisecond

// RedisRevocationStore keeps revoked token ids under revoked_token_{id}.
type RedisRevocationStore struct {
	client  redis.Cmdable
	prefix  string
	timeout time.Duration
}

// NewRedisRevocationStore returns a store writing keys under prefix.
func NewRedisRevocationStore(client redis.Cmdable, prefix string, timeout time.Duration) *RedisRevocationStore {
	if timeout <= 0 {
		timeout = defaultRevocationTimeout
	}
	return &RedisRevocationStore{client: client, prefix: prefix, timeout: timeout}
}

func (r *RedisRevocationStore) key(tokenID string) string {
	return r.prefix + "revoked_token_" + tokenID
}

func (r *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Set(ctx, r.key(tokenID), 1, ttl).Err()
}

func (r *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
