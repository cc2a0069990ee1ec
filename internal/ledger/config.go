package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"blogpilot/internal/cache"
	"blogpilot/internal/domain"
)

const creditConfigKey = "credit_config"

// ConfigProvider serves app_settings/credit_config through a short-lived cache.
type ConfigProvider struct {
	repo   domain.SettingsRepository
	cache  *cache.TTL[string, domain.CreditConfig]
	logger zerolog.Logger
	now    func() time.Time
}

func NewConfigProvider(repo domain.SettingsRepository, ttl time.Duration, logger zerolog.Logger) *ConfigProvider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ConfigProvider{
		repo:   repo,
		cache:  cache.NewTTL[string, domain.CreditConfig](1, ttl, cache.StringKey),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the stored config or the built-in defaults when none is stored.
func (p *ConfigProvider) Get(ctx context.Context) (domain.CreditConfig, error) {
	cfg, err := p.cache.GetOrLoad(ctx, creditConfigKey, func(ctx context.Context) (domain.CreditConfig, error) {
		stored, err := p.repo.GetCreditConfig(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			p.logger.Debug().Msg("credit config missing, using defaults")
			return domain.DefaultCreditConfig(), nil
		}
		if err != nil {
			return domain.CreditConfig{}, fmt.Errorf("load credit config: %w", err)
		}
		if stored.FeatureCosts == nil {
			stored.FeatureCosts = map[string]domain.FeatureCost{}
		}
		return *stored, nil
	})
	if err != nil {
		return domain.CreditConfig{}, err
	}
	return copyConfig(cfg), nil
}

// Save validates and persists cfg, then refreshes the cache.
func (p *ConfigProvider) Save(ctx context.Context, cfg domain.CreditConfig, actor string) (domain.CreditConfig, error) {
	cfg = copyConfig(cfg)
	for name, cost := range cfg.FeatureCosts {
		c, err := domain.ParseCurrency(string(cost.Currency))
		if err != nil {
			return domain.CreditConfig{}, fmt.Errorf("feature %s: %w", name, err)
		}
		cost.Currency = c
		cfg.FeatureCosts[name] = cost
	}
	if err := cfg.Validate(); err != nil {
		return domain.CreditConfig{}, err
	}
	cfg.UpdatedAt = p.now()
	cfg.UpdatedBy = actor
	if err := p.repo.SaveCreditConfig(ctx, cfg); err != nil {
		return domain.CreditConfig{}, fmt.Errorf("save credit config: %w", err)
	}
	p.cache.Set(creditConfigKey, copyConfig(cfg))
	p.logger.Info().Str("actor", actor).Msg("credit config updated")
	return copyConfig(cfg), nil
}

// Invalidate forces the next Get to hit the store.
func (p *ConfigProvider) Invalidate() {
	p.cache.Purge()
}

func copyConfig(cfg domain.CreditConfig) domain.CreditConfig {
	costs := make(map[string]domain.FeatureCost, len(cfg.FeatureCosts))
	for k, v := range cfg.FeatureCosts {
		costs[k] = v
	}
	cfg.FeatureCosts = costs
	return cfg
}
