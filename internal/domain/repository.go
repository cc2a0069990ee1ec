package domain

import (
	"context"
	"time"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*User, error)
	// UpsertProfile creates the user with empty balances when missing and
	// otherwise refreshes the profile fields only. created reports whether a
	// new document was written.
	UpsertProfile(ctx context.Context, profile UserProfile) (user *User, created bool, err error)
	// ListUserIDs pages through user ids in ascending order.
	ListUserIDs(ctx context.Context, after string, limit int) ([]string, error)
	SetWordPress(ctx context.Context, userID string, wp *WordPressIntegration) error
	SetThreads(ctx context.Context, userID string, th *ThreadsIntegration) error
}

// LedgerRepository persists credit_transactions together with the balance
// held on the user document.
type LedgerRepository interface {
	// Apply runs mutate against the user's current state inside a store
	// transaction and atomically appends the returned rows. When a row with
	// anchorID already exists, mutate is not called and the stored row is
	// returned with ErrDuplicateOperation.
	Apply(ctx context.Context, userID, anchorID string, mutate LedgerMutation) ([]CreditTransaction, error)
	GetTransaction(ctx context.Context, id string) (*CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, q TransactionQuery) ([]CreditTransaction, error)
	// AllTransactions returns the full ledger of a user ordered by Seq.
	AllTransactions(ctx context.Context, userID string) ([]CreditTransaction, error)
}

// SettingsRepository handles app_settings documents.
type SettingsRepository interface {
	GetCreditConfig(ctx context.Context) (*CreditConfig, error)
	SaveCreditConfig(ctx context.Context, cfg CreditConfig) error
}

// PostRepository handles blog_posts persistence.
type PostRepository interface {
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	UpdatePost(ctx context.Context, post *Post) error
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, userID string, q PostQuery) ([]Post, error)
	SlugExists(ctx context.Context, userID, slug, excludeID string) (bool, error)
	ListDueScheduled(ctx context.Context, before time.Time, limit int) ([]Post, error)
}

// APIKeyRepository handles api_keys persistence.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, userID, id string, at time.Time) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// Store bundles every repository a backend provides.
type Store interface {
	UserRepository
	LedgerRepository
	SettingsRepository
	PostRepository
	APIKeyRepository
	Ping(ctx context.Context) error
	Close() error
}
