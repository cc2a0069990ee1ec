// Package firestore implements domain.Store on Cloud Firestore. Ledger
// mutations run inside RunTransaction so the balance on the user document
// and the appended credit_transactions documents commit together.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"blogpilot/internal/domain"
)

const (
	colUsers        = "users"
	colTransactions = "credit_transactions"
	colSettings     = "app_settings"
	colPosts        = "blog_posts"
	colAPIKeys      = "api_keys"

	creditConfigDoc = "credit_config"
)

type Store struct {
	client *firestore.Client
	logger zerolog.Logger
	now    func() time.Time
}

var _ domain.Store = (*Store)(nil)

func New(client *firestore.Client, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With().Str("component", "firestore").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open builds the store from an initialised Firebase app.
func Open(ctx context.Context, app *firebase.App, logger zerolog.Logger) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return New(client, logger), nil
}

// WithClock overrides the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collection(colSettings).Doc(creditConfigDoc).Get(ctx)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

func isNotFound(err error) bool { return status.Code(err) == codes.NotFound }

func isAlreadyExists(err error) bool { return status.Code(err) == codes.AlreadyExists }

// translate maps Firestore status codes onto domain errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return domain.ErrNotFound
	case isAlreadyExists(err):
		return domain.ErrDuplicateOperation
	}
	return err
}

// ---- users ----

func decodeUser(snap *firestore.DocumentSnapshot) (*domain.User, error) {
	var u domain.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	snap, err := s.client.Collection(colUsers).Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return decodeUser(snap)
}

func (s *Store) UpsertProfile(ctx context.Context, p domain.UserProfile) (*domain.User, bool, error) {
	if p.ID == "" {
		return nil, false, domain.ErrInvalidInput
	}
	ref := s.client.Collection(colUsers).Doc(p.ID)
	var (
		out     *domain.User
		created bool
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := s.now()
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err != nil {
			role := p.Role
			if role == "" {
				role = domain.UserRoleUser
			}
			u := &domain.User{
				ID:          p.ID,
				Email:       p.Email,
				DisplayName: p.DisplayName,
				PhotoURL:    p.PhotoURL,
				Role:        role,
				Plan:        domain.UserPlanFree,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			out, created = u, true
			return tx.Create(ref, u)
		}
		u, err := decodeUser(snap)
		if err != nil {
			return err
		}
		u.Email, u.DisplayName, u.PhotoURL, u.UpdatedAt = p.Email, p.DisplayName, p.PhotoURL, now
		updates := []firestore.Update{
			{Path: "email", Value: p.Email},
			{Path: "displayName", Value: p.DisplayName},
			{Path: "photoUrl", Value: p.PhotoURL},
			{Path: "updatedAt", Value: now},
		}
		if p.Role != "" {
			u.Role = p.Role
			updates = append(updates, firestore.Update{Path: "role", Value: string(p.Role)})
		}
		out, created = u, false
		return tx.Update(ref, updates)
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert profile: %w", err)
	}
	return out, created, nil
}

func (s *Store) ListUserIDs(ctx context.Context, after string, limit int) ([]string, error) {
	q := s.client.Collection(colUsers).OrderBy(firestore.DocumentID, firestore.Asc)
	if after != "" {
		q = q.StartAfter(after)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()
	var ids []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, snap.Ref.ID)
	}
}

func (s *Store) SetWordPress(ctx context.Context, userID string, wp *domain.WordPressIntegration) error {
	var value any
	if wp != nil {
		value = wp
	}
	_, err := s.client.Collection(colUsers).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "wordpress", Value: value},
		{Path: "updatedAt", Value: s.now()},
	})
	return translate(err)
}

func (s *Store) SetThreads(ctx context.Context, userID string, th *domain.ThreadsIntegration) error {
	var value any
	if th != nil {
		value = th
	}
	_, err := s.client.Collection(colUsers).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "threads", Value: value},
		{Path: "updatedAt", Value: s.now()},
	})
	return translate(err)
}

// ---- ledger ----

func (s *Store) Apply(ctx context.Context, userID, anchorID string, mutate domain.LedgerMutation) ([]domain.CreditTransaction, error) {
	userRef := s.client.Collection(colUsers).Doc(userID)
	txs := s.client.Collection(colTransactions)
	var (
		written  []domain.CreditTransaction
		existing *domain.CreditTransaction
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		written, existing = nil, nil
		if anchorID != "" {
			snap, err := tx.Get(txs.Doc(anchorID))
			switch {
			case err == nil:
				row, err := decodeTransaction(snap)
				if err != nil {
					return err
				}
				existing = row
				return nil
			case !isNotFound(err):
				return fmt.Errorf("load anchor: %w", err)
			}
		}
		snap, err := tx.Get(userRef)
		if err != nil {
			return translate(err)
		}
		u, err := decodeUser(snap)
		if err != nil {
			return err
		}
		st := domain.LedgerState{Balance: u.Credits, Seq: u.LedgerSeq}

		rows, err := mutate(st)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		next, err := domain.CheckRows(st, rows)
		if err != nil {
			return fmt.Errorf("ledger rows rejected: %w", err)
		}
		for _, row := range rows {
			if row.ID == "" || row.UserID != userID {
				return fmt.Errorf("%w: ledger row without id or owner", domain.ErrInvalidInput)
			}
		}
		for _, row := range rows {
			if err := tx.Create(txs.Doc(row.ID), row); err != nil {
				return err
			}
		}
		if err := tx.Update(userRef, []firestore.Update{
			{Path: "credits", Value: next.Balance},
			{Path: "ledgerSeq", Value: next.Seq},
			{Path: "updatedAt", Value: s.now()},
		}); err != nil {
			return err
		}
		written = rows
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	if existing != nil {
		return []domain.CreditTransaction{*existing}, domain.ErrDuplicateOperation
	}
	return written, nil
}

func decodeTransaction(snap *firestore.DocumentSnapshot) (*domain.CreditTransaction, error) {
	var tx domain.CreditTransaction
	if err := snap.DataTo(&tx); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", snap.Ref.ID, err)
	}
	tx.ID = snap.Ref.ID
	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error) {
	snap, err := s.client.Collection(colTransactions).Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return decodeTransaction(snap)
}

func (s *Store) collectTransactions(ctx context.Context, q firestore.Query) ([]domain.CreditTransaction, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()
	out := make([]domain.CreditTransaction, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		tx, err := decodeTransaction(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
}

// ListTransactions needs the composite index (userId asc, seq desc), and
// (userId asc, seq desc, createdAt asc) when filtering by time.
func (s *Store) ListTransactions(ctx context.Context, userID string, q domain.TransactionQuery) ([]domain.CreditTransaction, error) {
	query := s.client.Collection(colTransactions).Where("userId", "==", userID)
	if q.BeforeSeq > 0 {
		query = query.Where("seq", "<", q.BeforeSeq)
	}
	if !q.Before.IsZero() {
		query = query.Where("createdAt", "<", q.Before)
	}
	query = query.OrderBy("seq", firestore.Desc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return s.collectTransactions(ctx, query)
}

func (s *Store) AllTransactions(ctx context.Context, userID string) ([]domain.CreditTransaction, error) {
	query := s.client.Collection(colTransactions).Where("userId", "==", userID).OrderBy("seq", firestore.Asc)
	return s.collectTransactions(ctx, query)
}

// ---- settings ----

func (s *Store) GetCreditConfig(ctx context.Context) (*domain.CreditConfig, error) {
	snap, err := s.client.Collection(colSettings).Doc(creditConfigDoc).Get(ctx)
	if err != nil {
		return nil, translate(err)
	}
	var cfg domain.CreditConfig
	if err := snap.DataTo(&cfg); err != nil {
		return nil, fmt.Errorf("decode credit config: %w", err)
	}
	return &cfg, nil
}

func (s *Store) SaveCreditConfig(ctx context.Context, cfg domain.CreditConfig) error {
	_, err := s.client.Collection(colSettings).Doc(creditConfigDoc).Set(ctx, cfg)
	return err
}

// ---- posts ----

func decodePost(snap *firestore.DocumentSnapshot) (*domain.Post, error) {
	var p domain.Post
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode post %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (s *Store) collectPosts(ctx context.Context, q firestore.Query) ([]domain.Post, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()
	out := make([]domain.Post, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		p, err := decodePost(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
}

func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.client.Collection(colPosts).Doc(p.ID).Create(ctx, p)
	return translate(err)
}

func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	snap, err := s.client.Collection(colPosts).Doc(id).Get(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return decodePost(snap)
}

func (s *Store) UpdatePost(ctx context.Context, p *domain.Post) error {
	ref := s.client.Collection(colPosts).Doc(p.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, p)
	})
	return translate(err)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	_, err := s.client.Collection(colPosts).Doc(id).Delete(ctx, firestore.Exists)
	return translate(err)
}

func (s *Store) ListPosts(ctx context.Context, userID string, q domain.PostQuery) ([]domain.Post, error) {
	query := s.client.Collection(colPosts).Where("userId", "==", userID)
	if q.Status != "" {
		query = query.Where("status", "==", string(q.Status))
	}
	query = query.OrderBy("createdAt", firestore.Desc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return s.collectPosts(ctx, query)
}

func (s *Store) SlugExists(ctx context.Context, userID, slug, excludeID string) (bool, error) {
	iter := s.client.Collection(colPosts).
		Where("userId", "==", userID).
		Where("slug", "==", slug).
		Limit(2).
		Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if snap.Ref.ID != excludeID {
			return true, nil
		}
	}
}

func (s *Store) ListDueScheduled(ctx context.Context, before time.Time, limit int) ([]domain.Post, error) {
	query := s.client.Collection(colPosts).
		Where("status", "==", string(domain.PostStatusScheduled)).
		Where("publishAt", "<=", before).
		OrderBy("publishAt", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return s.collectPosts(ctx, query)
}

// ---- api keys ----

func decodeAPIKey(snap *firestore.DocumentSnapshot) (*domain.APIKey, error) {
	var k domain.APIKey
	if err := snap.DataTo(&k); err != nil {
		return nil, fmt.Errorf("decode api key %s: %w", snap.Ref.ID, err)
	}
	k.ID = snap.Ref.ID
	return &k, nil
}

func (s *Store) CreateAPIKey(ctx context.Context, k *domain.APIKey) error {
	if k == nil || k.ID == "" || k.Hash == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.client.Collection(colAPIKeys).Doc(k.ID).Create(ctx, k)
	return translate(err)
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	iter := s.client.Collection(colAPIKeys).Where("hash", "==", hash).Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAPIKey(snap)
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	iter := s.client.Collection(colAPIKeys).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()
	out := make([]domain.APIKey, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		k, err := decodeAPIKey(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
}

func (s *Store) RevokeAPIKey(ctx context.Context, userID, id string, at time.Time) error {
	ref := s.client.Collection(colAPIKeys).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		k, err := decodeAPIKey(snap)
		if err != nil {
			return err
		}
		if k.UserID != userID {
			return domain.ErrNotFound
		}
		if k.Revoked() {
			return nil
		}
		return tx.Update(ref, []firestore.Update{{Path: "revokedAt", Value: at}})
	})
	return translate(err)
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.client.Collection(colAPIKeys).Doc(id).Update(ctx, []firestore.Update{{Path: "lastUsedAt", Value: at}})
	return translate(err)
}
