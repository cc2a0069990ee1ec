// Command creditctl operates the credit ledger and related records from a
// shell: grants, deductions, overrides, audits, config and API keys.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"blogpilot/internal/bootstrap"
	"blogpilot/internal/infra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(runtimeFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func runtimeFromEnv(ctx context.Context) (*bootstrap.Runtime, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "creditctl").Logger()
	return bootstrap.New(ctx, cfg, logger)
}
