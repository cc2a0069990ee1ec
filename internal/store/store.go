// Package store selects the persistence backend named by STORE_BACKEND.
package store

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
	"blogpilot/internal/infra"
	"blogpilot/internal/store/firestore"
	"blogpilot/internal/store/memory"
	"blogpilot/internal/store/postgres"
)

// Open returns the configured backend. app may be nil; the firestore
// backend then initialises its own Firebase app.
func Open(ctx context.Context, cfg *infra.Config, app *firebase.App, logger zerolog.Logger) (domain.Store, error) {
	switch cfg.StoreBackend {
	case infra.BackendFirestore:
		if app == nil {
			var err error
			if app, err = infra.NewFirebaseApp(ctx, cfg); err != nil {
				return nil, err
			}
		}
		return firestore.Open(ctx, app, logger)
	case infra.BackendPostgres:
		return postgres.Open(ctx, cfg, logger)
	case infra.BackendMemory:
		logger.Warn().Msg("memory store selected: data is lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
}
