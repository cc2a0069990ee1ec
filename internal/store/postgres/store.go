// Package postgres implements domain.Store on PostgreSQL. Every statement
// lives in internal/sqlinline and runs through infra.SQLRunner, so logs name
// queries by their marker.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
	"blogpilot/internal/infra"
	"blogpilot/internal/sqlinline"
)

const creditConfigID = "credit_config"

type Store struct {
	db     *infra.SQLRunner
	closer func()
	now    func() time.Time
}

var _ domain.Store = (*Store)(nil)

// New wraps an open pool. Close releases it when it has a Close method.
func New(db infra.Queryer, logger zerolog.Logger) *Store {
	s := &Store{
		db:  infra.NewSQLRunner(db, logger.With().Str("component", "postgres").Logger()),
		now: func() time.Time { return time.Now().UTC() },
	}
	if c, ok := db.(interface{ Close() }); ok {
		s.closer = c.Close
	}
	return s
}

// Open connects, migrates and returns a ready store.
func Open(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Store, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := New(pool, logger)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// WithClock overrides the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRow(ctx, sqlinline.QPing).Scan(&one)
}

func (s *Store) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ---- users ----

// wordpressRecord and threadsRecord keep the sealed secrets that the
// domain types hide from API responses.
type wordpressRecord struct {
	SiteURL        string    `json:"siteUrl"`
	Username       string    `json:"username"`
	PasswordSealed string    `json:"passwordSealed"`
	ConnectedAt    time.Time `json:"connectedAt"`
}

type threadsRecord struct {
	ThreadsUserID string    `json:"threadsUserId"`
	Username      string    `json:"username"`
	TokenSealed   string    `json:"tokenSealed"`
	ExpiresAt     time.Time `json:"expiresAt"`
	ConnectedAt   time.Time `json:"connectedAt"`
}

func scanUser(row rowScanner, extra ...any) (*domain.User, error) {
	var (
		u          domain.User
		role, plan string
		wp, th     []byte
	)
	dest := []any{
		&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &role, &plan,
		&u.Credits.S, &u.Credits.E, &u.LedgerSeq, &wp, &th, &u.CreatedAt, &u.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.Role = domain.UserRole(role)
	u.Plan = domain.UserPlan(plan)
	if len(wp) > 0 {
		var rec wordpressRecord
		if err := json.Unmarshal(wp, &rec); err != nil {
			return nil, fmt.Errorf("decode wordpress integration: %w", err)
		}
		u.WordPress = &domain.WordPressIntegration{
			SiteURL:        rec.SiteURL,
			Username:       rec.Username,
			PasswordSealed: rec.PasswordSealed,
			ConnectedAt:    rec.ConnectedAt,
		}
	}
	if len(th) > 0 {
		var rec threadsRecord
		if err := json.Unmarshal(th, &rec); err != nil {
			return nil, fmt.Errorf("decode threads integration: %w", err)
		}
		u.Threads = &domain.ThreadsIntegration{
			ThreadsUserID: rec.ThreadsUserID,
			Username:      rec.Username,
			TokenSealed:   rec.TokenSealed,
			ExpiresAt:     rec.ExpiresAt,
			ConnectedAt:   rec.ConnectedAt,
		}
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(s.db.QueryRow(ctx, sqlinline.QGetUser, id))
}

func (s *Store) UpsertProfile(ctx context.Context, p domain.UserProfile) (*domain.User, bool, error) {
	if p.ID == "" {
		return nil, false, domain.ErrInvalidInput
	}
	role := p.Role
	if role == "" {
		role = domain.UserRoleUser
	}
	var created bool
	u, err := scanUser(s.db.QueryRow(ctx, sqlinline.QUpsertProfile,
		p.ID, p.Email, p.DisplayName, p.PhotoURL, string(role), s.now(), p.Role != "",
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert profile: %w", err)
	}
	return u, created, nil
}

func (s *Store) ListUserIDs(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, sqlinline.QListUserIDs, after, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) SetWordPress(ctx context.Context, userID string, wp *domain.WordPressIntegration) error {
	var doc []byte
	if wp != nil {
		var err error
		doc, err = json.Marshal(wordpressRecord{
			SiteURL:        wp.SiteURL,
			Username:       wp.Username,
			PasswordSealed: wp.PasswordSealed,
			ConnectedAt:    wp.ConnectedAt,
		})
		if err != nil {
			return err
		}
	}
	return s.execOne(ctx, sqlinline.QSetWordPress, userID, doc, s.now())
}

func (s *Store) SetThreads(ctx context.Context, userID string, th *domain.ThreadsIntegration) error {
	var doc []byte
	if th != nil {
		var err error
		doc, err = json.Marshal(threadsRecord{
			ThreadsUserID: th.ThreadsUserID,
			Username:      th.Username,
			TokenSealed:   th.TokenSealed,
			ExpiresAt:     th.ExpiresAt,
			ConnectedAt:   th.ConnectedAt,
		})
		if err != nil {
			return err
		}
	}
	return s.execOne(ctx, sqlinline.QSetThreads, userID, doc, s.now())
}

// execOne runs an update that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- ledger ----

func (s *Store) Apply(ctx context.Context, userID, anchorID string, mutate domain.LedgerMutation) ([]domain.CreditTransaction, error) {
	var (
		written  []domain.CreditTransaction
		existing *domain.CreditTransaction
	)
	err := s.db.InTx(ctx, func(q infra.SQLExecutor) error {
		var st domain.LedgerState
		if err := q.QueryRow(ctx, sqlinline.QLockUserLedger, userID).Scan(&st.Balance.S, &st.Balance.E, &st.Seq); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("lock ledger: %w", err)
		}
		if anchorID != "" {
			tx, err := scanTransaction(q.QueryRow(ctx, sqlinline.QGetTransaction, anchorID))
			switch {
			case err == nil:
				existing = tx
				return domain.ErrDuplicateOperation
			case !errors.Is(err, domain.ErrNotFound):
				return fmt.Errorf("load anchor: %w", err)
			}
		}

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
			if err := insertTransaction(ctx, q, row); err != nil {
				return err
			}
		}
		if _, err := q.Exec(ctx, sqlinline.QUpdateUserLedger, userID, next.Balance.S, next.Balance.E, next.Seq, s.now()); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		written = rows
		return nil
	})
	if existing != nil {
		return []domain.CreditTransaction{*existing}, domain.ErrDuplicateOperation
	}
	if err != nil {
		return nil, err
	}
	return written, nil
}

func insertTransaction(ctx context.Context, q infra.SQLExecutor, row domain.CreditTransaction) error {
	var md []byte
	if len(row.Metadata) > 0 {
		var err error
		if md, err = json.Marshal(row.Metadata); err != nil {
			return err
		}
	}
	_, err := q.Exec(ctx, sqlinline.QInsertTransaction,
		row.ID, row.UserID, row.Seq, string(row.Kind), string(row.Currency), row.Amount, row.Delta,
		row.BalanceBefore.S, row.BalanceBefore.E, row.BalanceAfter.S, row.BalanceAfter.E,
		row.Reason, row.Feature, row.Actor, row.IdempotencyKey, row.RelatedID, md, row.CreatedAt,
	)
	if infra.IsUniqueViolation(err) {
		return domain.ErrDuplicateOperation
	}
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", row.ID, err)
	}
	return nil
}

func scanTransaction(row rowScanner) (*domain.CreditTransaction, error) {
	var (
		tx             domain.CreditTransaction
		kind, currency string
		md             []byte
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Seq, &kind, &currency, &tx.Amount, &tx.Delta,
		&tx.BalanceBefore.S, &tx.BalanceBefore.E, &tx.BalanceAfter.S, &tx.BalanceAfter.E,
		&tx.Reason, &tx.Feature, &tx.Actor, &tx.IdempotencyKey, &tx.RelatedID, &md, &tx.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	tx.Kind = domain.TransactionKind(kind)
	tx.Currency = domain.Currency(currency)
	if len(md) > 0 {
		if err := json.Unmarshal(md, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", tx.ID, err)
		}
	}
	return &tx, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.CreditTransaction, error) {
	defer rows.Close()
	out := make([]domain.CreditTransaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error) {
	return scanTransaction(s.db.QueryRow(ctx, sqlinline.QGetTransaction, id))
}

func (s *Store) ListTransactions(ctx context.Context, userID string, q domain.TransactionQuery) ([]domain.CreditTransaction, error) {
	var before *time.Time
	if !q.Before.IsZero() {
		before = &q.Before
	}
	rows, err := s.db.Query(ctx, sqlinline.QListTransactions, userID, before, q.BeforeSeq, limitArg(q.Limit))
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *Store) AllTransactions(ctx context.Context, userID string) ([]domain.CreditTransaction, error) {
	rows, err := s.db.Query(ctx, sqlinline.QAllTransactions, userID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ---- settings ----

func (s *Store) GetCreditConfig(ctx context.Context) (*domain.CreditConfig, error) {
	var raw []byte
	if err := s.db.QueryRow(ctx, sqlinline.QGetSetting, creditConfigID).Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var cfg domain.CreditConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode credit config: %w", err)
	}
	return &cfg, nil
}

func (s *Store) SaveCreditConfig(ctx context.Context, cfg domain.CreditConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, sqlinline.QSaveSetting, creditConfigID, raw, s.now())
	return err
}

// ---- posts ----

func postArgs(p *domain.Post) ([]byte, []byte, error) {
	var wp, th []byte
	var err error
	if p.WordPress != nil {
		if wp, err = json.Marshal(p.WordPress); err != nil {
			return nil, nil, err
		}
	}
	if p.Threads != nil {
		if th, err = json.Marshal(p.Threads); err != nil {
			return nil, nil, err
		}
	}
	return wp, th, nil
}

func tagsArg(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidInput
	}
	wp, th, err := postArgs(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, sqlinline.QInsertPost,
		p.ID, p.UserID, p.Title, p.Slug, p.Content, p.Excerpt, string(p.Status), tagsArg(p.Tags),
		p.CoverImageURL, p.PublishAt, p.PublishedAt, wp, th, p.CreatedAt, p.UpdatedAt,
	)
	if infra.IsUniqueViolation(err) {
		return domain.ErrDuplicateOperation
	}
	return err
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var (
		p      domain.Post
		status string
		wp, th []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &status, &p.Tags,
		&p.CoverImageURL, &p.PublishAt, &p.PublishedAt, &wp, &th, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.Status = domain.PostStatus(status)
	if len(wp) > 0 {
		p.WordPress = &domain.WordPressSync{}
		if err := json.Unmarshal(wp, p.WordPress); err != nil {
			return nil, fmt.Errorf("decode wordpress sync of %s: %w", p.ID, err)
		}
	}
	if len(th) > 0 {
		p.Threads = &domain.ThreadsShare{}
		if err := json.Unmarshal(th, p.Threads); err != nil {
			return nil, fmt.Errorf("decode threads share of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	defer rows.Close()
	out := make([]domain.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	return scanPost(s.db.QueryRow(ctx, sqlinline.QGetPost, id))
}

func (s *Store) UpdatePost(ctx context.Context, p *domain.Post) error {
	wp, th, err := postArgs(p)
	if err != nil {
		return err
	}
	err = s.execOne(ctx, sqlinline.QUpdatePost,
		p.ID, p.Title, p.Slug, p.Content, p.Excerpt, string(p.Status), tagsArg(p.Tags),
		p.CoverImageURL, p.PublishAt, p.PublishedAt, wp, th, p.UpdatedAt,
	)
	if infra.IsUniqueViolation(err) {
		return domain.ErrDuplicateOperation
	}
	return err
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.execOne(ctx, sqlinline.QDeletePost, id)
}

func (s *Store) ListPosts(ctx context.Context, userID string, q domain.PostQuery) ([]domain.Post, error) {
	rows, err := s.db.Query(ctx, sqlinline.QListPosts, userID, string(q.Status), limitArg(q.Limit))
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

func (s *Store) SlugExists(ctx context.Context, userID, slug, excludeID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, sqlinline.QSlugExists, userID, slug, excludeID).Scan(&exists)
	return exists, err
}

func (s *Store) ListDueScheduled(ctx context.Context, before time.Time, limit int) ([]domain.Post, error) {
	rows, err := s.db.Query(ctx, sqlinline.QListDueScheduled, before, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

// ---- api keys ----

func (s *Store) CreateAPIKey(ctx context.Context, k *domain.APIKey) error {
	if k == nil || k.ID == "" || k.Hash == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.db.Exec(ctx, sqlinline.QInsertAPIKey,
		k.ID, k.UserID, k.Name, k.Prefix, k.Hash, k.CreatedAt, k.LastUsedAt, k.RevokedAt,
	)
	if infra.IsUniqueViolation(err) {
		return domain.ErrDuplicateOperation
	}
	return err
}

func scanAPIKey(row rowScanner) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.Hash, &k.CreatedAt, &k.LastUsedAt, &k.RevokedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return scanAPIKey(s.db.QueryRow(ctx, sqlinline.QGetAPIKeyByHash, hash))
}

func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	rows, err := s.db.Query(ctx, sqlinline.QListAPIKeys, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *Store) RevokeAPIKey(ctx context.Context, userID, id string, at time.Time) error {
	return s.execOne(ctx, sqlinline.QRevokeAPIKey, id, userID, at)
}

func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, sqlinline.QTouchAPIKey, id, at)
}

// limitArg maps "no limit" to SQL null.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
