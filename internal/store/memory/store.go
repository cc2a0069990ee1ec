// Package memory is an in-process domain.Store used for local development
// and tests. All state lives behind a single mutex so ledger mutations are
// serialised the same way a document transaction would serialise them.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"blogpilot/internal/domain"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]*domain.User
	txs      map[string]domain.CreditTransaction
	ledger   map[string][]string
	settings *domain.CreditConfig
	posts    map[string]*domain.Post
	keys     map[string]*domain.APIKey
	keyHash  map[string]string
}

var _ domain.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:     func() time.Time { return time.Now().UTC() },
		users:   make(map[string]*domain.User),
		txs:     make(map[string]domain.CreditTransaction),
		ledger:  make(map[string][]string),
		posts:   make(map[string]*domain.Post),
		keys:    make(map[string]*domain.APIKey),
		keyHash: make(map[string]string),
	}
}

// WithClock overrides the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// ---- users ----

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) UpsertProfile(_ context.Context, p domain.UserProfile) (*domain.User, bool, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, false, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u, ok := s.users[p.ID]
	if !ok {
		role := p.Role
		if role == "" {
			role = domain.UserRoleUser
		}
		u = &domain.User{
			ID:          p.ID,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			PhotoURL:    p.PhotoURL,
			Role:        role,
			Plan:        domain.UserPlanFree,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.users[p.ID] = u
		return cloneUser(u), true, nil
	}
	u.Email = p.Email
	u.DisplayName = p.DisplayName
	u.PhotoURL = p.PhotoURL
	if p.Role != "" {
		u.Role = p.Role
	}
	u.UpdatedAt = now
	return cloneUser(u), false, nil
}

func (s *Store) ListUserIDs(_ context.Context, after string, limit int) ([]string, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		if id > after {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) SetWordPress(_ context.Context, userID string, wp *domain.WordPressIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if wp != nil {
		c := *wp
		wp = &c
	}
	u.WordPress = wp
	u.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetThreads(_ context.Context, userID string, th *domain.ThreadsIntegration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if th != nil {
		c := *th
		th = &c
	}
	u.Threads = th
	u.UpdatedAt = s.now()
	return nil
}

// ---- ledger ----

func (s *Store) Apply(_ context.Context, userID, anchorID string, mutate domain.LedgerMutation) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if anchorID != "" {
		if existing, ok := s.txs[anchorID]; ok {
			return []domain.CreditTransaction{cloneTx(existing)}, domain.ErrDuplicateOperation
		}
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	state := domain.LedgerState{Balance: u.Credits, Seq: u.LedgerSeq}
	rows, err := mutate(state)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	next, err := domain.CheckRows(state, rows)
	if err != nil {
		return nil, fmt.Errorf("ledger rows rejected: %w", err)
	}
	for _, row := range rows {
		if row.ID == "" || row.UserID != userID {
			return nil, fmt.Errorf("%w: ledger row without id or owner", domain.ErrInvalidInput)
		}
		if _, dup := s.txs[row.ID]; dup {
			return nil, domain.ErrDuplicateOperation
		}
	}
	for _, row := range rows {
		s.txs[row.ID] = cloneTx(row)
		s.ledger[userID] = append(s.ledger[userID], row.ID)
	}
	u.Credits = next.Balance
	u.LedgerSeq = next.Seq
	u.UpdatedAt = s.now()

	out := make([]domain.CreditTransaction, len(rows))
	for i, row := range rows {
		out[i] = cloneTx(row)
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneTx(tx)
	return &c, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, q domain.TransactionQuery) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.ledger[userID]
	out := make([]domain.CreditTransaction, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		tx := s.txs[ids[i]]
		if q.BeforeSeq > 0 && tx.Seq >= q.BeforeSeq {
			continue
		}
		if !q.Before.IsZero() && !tx.CreatedAt.Before(q.Before) {
			continue
		}
		out = append(out, cloneTx(tx))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) AllTransactions(_ context.Context, userID string) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.ledger[userID]
	out := make([]domain.CreditTransaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneTx(s.txs[id]))
	}
	return out, nil
}

// Corrupt overwrites a stored ledger row in place. Tests use it to
// simulate tampering the audit must detect.
func (s *Store) Corrupt(id string, fn func(*domain.CreditTransaction)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return
	}
	fn(&tx)
	s.txs[id] = tx
}

// ---- settings ----

func (s *Store) GetCreditConfig(context.Context) (*domain.CreditConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return nil, domain.ErrNotFound
	}
	c := cloneConfig(*s.settings)
	return &c, nil
}

func (s *Store) SaveCreditConfig(_ context.Context, cfg domain.CreditConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneConfig(cfg)
	s.settings = &c
	return nil
}

// ---- posts ----

func (s *Store) CreatePost(_ context.Context, p *domain.Post) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; ok {
		return domain.ErrDuplicateOperation
	}
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *Store) GetPost(_ context.Context, id string) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePost(p), nil
}

func (s *Store) UpdatePost(_ context.Context, p *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *Store) ListPosts(_ context.Context, userID string, q domain.PostQuery) ([]domain.Post, error) {
	s.mu.Lock()
	out := make([]domain.Post, 0)
	for _, p := range s.posts {
		if p.UserID != userID {
			continue
		}
		if q.Status != "" && p.Status != q.Status {
			continue
		}
		out = append(out, *clonePost(p))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) SlugExists(_ context.Context, userID, slug, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.UserID == userID && p.Slug == slug && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListDueScheduled(_ context.Context, before time.Time, limit int) ([]domain.Post, error) {
	s.mu.Lock()
	out := make([]domain.Post, 0)
	for _, p := range s.posts {
		if p.Status == domain.PostStatusScheduled && p.PublishAt != nil && !p.PublishAt.After(before) {
			out = append(out, *clonePost(p))
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PublishAt.Before(*out[j].PublishAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- api keys ----

func (s *Store) CreateAPIKey(_ context.Context, k *domain.APIKey) error {
	if k == nil || k.ID == "" || k.Hash == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keyHash[k.Hash]; ok {
		return domain.ErrDuplicateOperation
	}
	c := cloneKey(k)
	s.keys[k.ID] = c
	s.keyHash[k.Hash] = k.ID
	return nil
}

func (s *Store) GetAPIKeyByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keyHash[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneKey(s.keys[id]), nil
}

func (s *Store) ListAPIKeys(_ context.Context, userID string) ([]domain.APIKey, error) {
	s.mu.Lock()
	out := make([]domain.APIKey, 0)
	for _, k := range s.keys {
		if k.UserID == userID {
			out = append(out, *cloneKey(k))
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, userID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.UserID != userID {
		return domain.ErrNotFound
	}
	if k.RevokedAt == nil {
		t := at
		k.RevokedAt = &t
	}
	return nil
}

func (s *Store) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok {
		return domain.ErrNotFound
	}
	t := at
	k.LastUsedAt = &t
	return nil
}

// ---- copies ----

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.WordPress != nil {
		wp := *u.WordPress
		c.WordPress = &wp
	}
	if u.Threads != nil {
		th := *u.Threads
		c.Threads = &th
	}
	return &c
}

func cloneTx(tx domain.CreditTransaction) domain.CreditTransaction {
	if tx.Metadata != nil {
		md := make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			md[k] = v
		}
		tx.Metadata = md
	}
	return tx
}

func cloneConfig(cfg domain.CreditConfig) domain.CreditConfig {
	costs := make(map[string]domain.FeatureCost, len(cfg.FeatureCosts))
	for k, v := range cfg.FeatureCosts {
		costs[k] = v
	}
	cfg.FeatureCosts = costs
	return cfg
}

func clonePost(p *domain.Post) *domain.Post {
	c := *p
	c.Tags = append([]string(nil), p.Tags...)
	if p.PublishAt != nil {
		t := *p.PublishAt
		c.PublishAt = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	if p.WordPress != nil {
		wp := *p.WordPress
		c.WordPress = &wp
	}
	if p.Threads != nil {
		th := *p.Threads
		c.Threads = &th
	}
	return &c
}

func cloneKey(k *domain.APIKey) *domain.APIKey {
	c := *k
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		c.LastUsedAt = &t
	}
	if k.RevokedAt != nil {
		t := *k.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
