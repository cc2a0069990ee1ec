// Package apikeys issues and verifies public API keys of the form
// bp_<32 hex>. Only sha256 hashes are persisted.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"blogpilot/internal/cache"
	"blogpilot/internal/domain"
)

const (
	KeyPrefix     = "bp_"
	displayPrefix = 10
	maxNameLen    = 64
	lookupTTL     = 60 * time.Second
	touchInterval = time.Minute
)

var keyPattern = regexp.MustCompile(`^bp_[0-9a-f]{32}$`)

// Service manages API keys.
type Service struct {
	repo    domain.APIKeyRepository
	lookup  *cache.TTL[string, domain.APIKey]
	touched *cache.TTL[string, time.Time]
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo domain.APIKeyRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		lookup:  cache.NewTTL[string, domain.APIKey](1024, lookupTTL, cache.StringKey),
		touched: cache.NewTTL[string, time.Time](1024, touchInterval, cache.StringKey),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Created carries the plaintext key, which is never stored.
type Created struct {
	Key       domain.APIKey `json:"key"`
	Plaintext string        `json:"plaintext"`
}

// Generate returns a fresh plaintext key.
func Generate() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}

// Hash returns the hex sha256 digest stored for key.
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether key has the bp_<32 hex> shape.
func Valid(key string) bool {
	return keyPattern.MatchString(key)
}

func (s *Service) Create(ctx context.Context, userID, name string) (*Created, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", domain.ErrInvalidInput, maxNameLen)
	}
	plain, err := Generate()
	if err != nil {
		return nil, err
	}
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Prefix:    plain[:displayPrefix],
		Hash:      Hash(plain),
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateAPIKey(ctx, &key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("key_id", key.ID).Msg("api key created")
	return &Created{Key: key, Plaintext: plain}, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return s.repo.ListAPIKeys(ctx, userID)
}

func (s *Service) Revoke(ctx context.Context, userID, id string) error {
	if err := s.repo.RevokeAPIKey(ctx, userID, id, s.now()); err != nil {
		return err
	}
	s.lookup.Purge()
	s.logger.Info().Str("user_id", userID).Str("key_id", id).Msg("api key revoked")
	return nil
}

// Authenticate resolves a plaintext key to its record. Unknown, malformed
// and revoked keys all yield ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	if !Valid(plaintext) {
		return nil, fmt.Errorf("%w: malformed api key", domain.ErrUnauthorized)
	}
	hash := Hash(plaintext)
	key, err := s.lookup.GetOrLoad(ctx, hash, func(ctx context.Context) (domain.APIKey, error) {
		k, err := s.repo.GetAPIKeyByHash(ctx, hash)
		if err != nil {
			return domain.APIKey{}, err
		}
		return *k, nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown api key", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if key.Revoked() {
		return nil, fmt.Errorf("%w: api key revoked", domain.ErrUnauthorized)
	}
	s.touch(ctx, key.ID)
	return &key, nil
}

func (s *Service) touch(ctx context.Context, id string) {
	if _, ok := s.touched.Get(id); ok {
		return
	}
	now := s.now()
	s.touched.Set(id, now)
	if err := s.repo.TouchAPIKey(ctx, id, now); err != nil {
		s.logger.Warn().Err(err).Str("key_id", id).Msg("touch api key")
	}
}

// FromRequest extracts a key from "Authorization: Bearer bp_..." or X-API-Key.
func FromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if token := strings.TrimSpace(auth[7:]); strings.HasPrefix(token, KeyPrefix) {
			return token
		}
	}
	return ""
}
