package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// NewFirebaseApp initializes the Firebase Admin SDK. Without a credentials
// file the SDK falls back to application default credentials, which also
// covers the Firestore and Auth emulators.
func NewFirebaseApp(ctx context.Context, cfg *Config) (*firebase.App, error) {
	if cfg == nil || cfg.FirebaseProjectID == "" {
		return nil, fmt.Errorf("firebase: project id is required")
	}
	var opts []option.ClientOption
	if cfg.FirebaseCredFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}
	return app, nil
}
