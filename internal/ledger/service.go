// Package ledger implements the dual-currency credit ledger. Every balance
// change is an append-only credit_transactions row whose before/after
// snapshots chain to the previous row; the store's transaction primitive
// makes the row write and the balance update atomic.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"blogpilot/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	monthlyPageSize = 200
)

// Service exposes the ledger operations.
type Service struct {
	ledger  domain.LedgerRepository
	users   domain.UserRepository
	config  *ConfigProvider
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// Deps wires a Service. Metrics may be nil.
type Deps struct {
	Ledger  domain.LedgerRepository
	Users   domain.UserRepository
	Config  *ConfigProvider
	Metrics *Metrics
	Logger  zerolog.Logger
	Now     func() time.Time
}

func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		ledger:  d.Ledger,
		users:   d.Users,
		config:  d.Config,
		metrics: d.Metrics,
		logger:  d.Logger,
		now:     now,
	}
}

// Config returns the provider backing feature costs and grant amounts.
func (s *Service) Config() *ConfigProvider { return s.config }

type GrantRequest struct {
	UserID         string
	Currency       domain.Currency
	Amount         int64
	Reason         string
	Actor          string
	IdempotencyKey string
	Metadata       map[string]string
}

type DeductRequest struct {
	UserID         string
	Currency       domain.Currency
	Amount         int64
	Feature        string
	Actor          string
	IdempotencyKey string
	Metadata       map[string]string
}

type FeatureRequest struct {
	UserID         string
	Feature        string
	Actor          string
	IdempotencyKey string
	Metadata       map[string]string
}

type RefundRequest struct {
	TransactionID string
	Actor         string
	Reason        string
}

// AdjustRequest sets balances to absolute values. Nil fields are left alone.
type AdjustRequest struct {
	UserID         string
	S              *int64
	E              *int64
	Actor          string
	Reason         string
	IdempotencyKey string
}

// Result is the outcome of a single-row mutation.
type Result struct {
	Transaction domain.CreditTransaction `json:"transaction"`
	Balance     domain.Balance           `json:"balance"`
	Replayed    bool                     `json:"replayed"`
}

// AdjustResult lists the rows written by an override, at most one per currency.
type AdjustResult struct {
	Transactions []domain.CreditTransaction `json:"transactions"`
	Balance      domain.Balance             `json:"balance"`
	Replayed     bool                       `json:"replayed"`
}

// TransactionID derives the ledger row id. Keyed requests map to a stable id
// so a replay lands on the same document.
func TransactionID(userID, idempotencyKey string) string {
	if idempotencyKey == "" {
		return uuid.NewString()
	}
	sum := sha256.Sum256([]byte(userID + "\x00" + idempotencyKey))
	return hex.EncodeToString(sum[:])[:40]
}

// rowSpec describes the single row a mutation wants to append.
type rowSpec struct {
	kind      domain.TransactionKind
	currency  domain.Currency
	amount    int64
	delta     int64
	reason    string
	feature   string
	actor     string
	relatedID string
	metadata  map[string]string
}

func (r rowSpec) matches(tx domain.CreditTransaction) bool {
	return tx.Kind == r.kind && tx.Currency == r.currency && tx.Amount == r.amount
}

func (s *Service) Grant(ctx context.Context, req GrantRequest) (*Result, error) {
	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}
	currency, err := domain.ParseCurrency(string(req.Currency))
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		s.metrics.reject("invalid_amount")
		return nil, fmt.Errorf("%w: grant amount must be positive", domain.ErrInvalidAmount)
	}
	switch req.Reason {
	case domain.ReasonSignup, domain.ReasonMonthly, domain.ReasonPurchase, domain.ReasonAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown grant reason %q", domain.ErrInvalidInput, req.Reason)
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	spec := rowSpec{
		kind:     domain.KindGrant,
		currency: currency,
		amount:   req.Amount,
		delta:    req.Amount,
		reason:   req.Reason,
		actor:    req.Actor,
		metadata: req.Metadata,
	}
	return s.single(ctx, req.UserID, req.IdempotencyKey, spec, func(st domain.LedgerState) error {
		if st.Balance.Get(currency) > math.MaxInt64-req.Amount {
			return fmt.Errorf("%w: %s balance %d + %d overflows", domain.ErrInvalidAmount, currency, st.Balance.Get(currency), req.Amount)
		}
		if cfg.MaxBalance > 0 && st.Balance.Get(currency)+req.Amount > cfg.MaxBalance {
			return fmt.Errorf("%w: %s balance %d + %d exceeds %d", domain.ErrBalanceCap, currency, st.Balance.Get(currency), req.Amount, cfg.MaxBalance)
		}
		return nil
	})
}

func (s *Service) Deduct(ctx context.Context, req DeductRequest) (*Result, error) {
	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}
	currency, err := domain.ParseCurrency(string(req.Currency))
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		s.metrics.reject("invalid_amount")
		return nil, fmt.Errorf("%w: deduct amount must be positive", domain.ErrInvalidAmount)
	}
	spec := rowSpec{
		kind:     domain.KindDeduct,
		currency: currency,
		amount:   req.Amount,
		delta:    -req.Amount,
		feature:  req.Feature,
		actor:    req.Actor,
		metadata: req.Metadata,
	}
	return s.single(ctx, req.UserID, req.IdempotencyKey, spec, func(st domain.LedgerState) error {
		if have := st.Balance.Get(currency); have < req.Amount {
			return fmt.Errorf("%w: need %d %s, have %d", domain.ErrInsufficientCredits, req.Amount, currency, have)
		}
		return nil
	})
}

// DeductForFeature charges the configured cost of feature.
func (s *Service) DeductForFeature(ctx context.Context, req FeatureRequest) (*Result, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	cost, ok := cfg.FeatureCosts[req.Feature]
	if !ok {
		s.metrics.reject("unknown_feature")
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFeature, req.Feature)
	}
	return s.Deduct(ctx, DeductRequest{
		UserID:         req.UserID,
		Currency:       cost.Currency,
		Amount:         cost.Amount,
		Feature:        req.Feature,
		Actor:          req.Actor,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
}

// Refund reverses a deduct row. A deduction can be refunded once.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}
	orig, err := s.ledger.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", req.TransactionID, err)
	}
	if orig.Kind != domain.KindDeduct {
		return nil, fmt.Errorf("%w: only deductions can be refunded", domain.ErrInvalidInput)
	}
	reason := req.Reason
	if reason == "" {
		reason = "refund"
	}
	spec := rowSpec{
		kind:      domain.KindRefund,
		currency:  orig.Currency,
		amount:    orig.Amount,
		delta:     orig.Amount,
		reason:    reason,
		feature:   orig.Feature,
		actor:     req.Actor,
		relatedID: orig.ID,
	}
	return s.single(ctx, orig.UserID, "refund:"+orig.ID, spec, nil)
}

// Adjust overrides balances. One adjust row is written per currency whose
// value actually changes; a keyed call that changes nothing writes a single
// zero-delta row so the key cannot be reused with other targets.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*AdjustResult, error) {
	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Actor) == "" || strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: adjust requires actor and reason", domain.ErrInvalidInput)
	}
	if req.S == nil && req.E == nil {
		return nil, fmt.Errorf("%w: nothing to adjust", domain.ErrInvalidInput)
	}
	targets := map[domain.Currency]*int64{domain.CurrencyS: req.S, domain.CurrencyE: req.E}
	for c, v := range targets {
		if v != nil && *v < 0 {
			s.metrics.reject("invalid_amount")
			return nil, fmt.Errorf("%w: %s target must not be negative", domain.ErrInvalidAmount, c)
		}
	}

	anchor := TransactionID(req.UserID, req.IdempotencyKey)
	now := s.now()
	meta := adjustTargets(req)
	rows, err := s.ledger.Apply(ctx, req.UserID, anchor, func(st domain.LedgerState) ([]domain.CreditTransaction, error) {
		var out []domain.CreditTransaction
		for _, c := range domain.Currencies {
			target := targets[c]
			if target == nil || *target == st.Balance.Get(c) {
				continue
			}
			delta := *target - st.Balance.Get(c)
			id := anchor
			if len(out) > 0 {
				id = anchor + ".2"
			}
			row := buildRow(id, req.UserID, req.IdempotencyKey, st, now, rowSpec{
				kind:     domain.KindAdjust,
				currency: c,
				amount:   abs(delta),
				delta:    delta,
				reason:   req.Reason,
				actor:    req.Actor,
				metadata: meta,
			})
			out = append(out, row)
			st = domain.LedgerState{Balance: row.BalanceAfter, Seq: row.Seq}
		}
		if len(out) == 0 && req.IdempotencyKey != "" {
			// A keyed override that changes nothing still claims its key.
			c := domain.CurrencyS
			if req.S == nil {
				c = domain.CurrencyE
			}
			out = append(out, buildRow(anchor, req.UserID, req.IdempotencyKey, st, now, rowSpec{
				kind:     domain.KindAdjust,
				currency: c,
				reason:   req.Reason,
				actor:    req.Actor,
				metadata: meta,
			}))
		}
		return out, nil
	})
	if errors.Is(err, domain.ErrDuplicateOperation) && len(rows) == 1 {
		return s.replayAdjust(ctx, req, rows[0])
	}
	if err != nil {
		s.rejected(err)
		return nil, err
	}
	for _, row := range rows {
		s.metrics.observe(row)
	}
	bal, err := s.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", req.UserID).
		Str("actor", req.Actor).
		Int("rows", len(rows)).
		Msg("credits adjusted")
	return &AdjustResult{Transactions: rows, Balance: bal}, nil
}

func (s *Service) replayAdjust(ctx context.Context, req AdjustRequest, first domain.CreditTransaction) (*AdjustResult, error) {
	want := adjustTargets(req)
	if first.Kind != domain.KindAdjust || first.UserID != req.UserID ||
		first.Metadata[metaTargetS] != want[metaTargetS] || first.Metadata[metaTargetE] != want[metaTargetE] {
		s.metrics.reject("idempotency_conflict")
		return nil, fmt.Errorf("%w: key %q", domain.ErrIdempotencyConflict, req.IdempotencyKey)
	}
	rows := []domain.CreditTransaction{first}
	if second, err := s.ledger.GetTransaction(ctx, first.ID+".2"); err == nil {
		rows = append(rows, *second)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	s.metrics.replay()
	bal, err := s.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &AdjustResult{Transactions: rows, Balance: bal, Replayed: true}, nil
}

// Adjust rows carry the full request so a replay can be compared against
// currencies the original call left untouched.
const (
	metaTargetS = "targetS"
	metaTargetE = "targetE"
	targetUnset = "unset"
)

func adjustTargets(req AdjustRequest) map[string]string {
	return map[string]string{
		metaTargetS: targetString(req.S),
		metaTargetE: targetString(req.E),
	}
}

func targetString(v *int64) string {
	if v == nil {
		return targetUnset
	}
	return strconv.FormatInt(*v, 10)
}

// Balance returns the user's current balances.
func (s *Service) Balance(ctx context.Context, userID string) (domain.Balance, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return domain.Balance{}, err
	}
	return u.Credits, nil
}

// HistoryQuery pages a ledger newest first. BeforeSeq is the paging cursor;
// Before only filters by creation time, since rows written by one mutation
// share a timestamp.
type HistoryQuery struct {
	Limit     int
	Before    time.Time
	BeforeSeq int64
}

// History lists ledger rows newest first.
func (s *Service) History(ctx context.Context, userID string, q HistoryQuery) ([]domain.CreditTransaction, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.ledger.ListTransactions(ctx, userID, domain.TransactionQuery{
		Limit:     ClampLimit(q.Limit),
		Before:    q.Before,
		BeforeSeq: q.BeforeSeq,
	})
}

// ClampLimit applies the history page bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

// EnsureSignupGrant grants the configured signup credits once per user.
// granted is false when every signup row already existed.
func (s *Service) EnsureSignupGrant(ctx context.Context, userID string) (bal domain.Balance, granted bool, err error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return domain.Balance{}, false, err
	}
	for _, c := range domain.Currencies {
		amount := cfg.SignupGrant.Get(c)
		if amount <= 0 {
			continue
		}
		res, err := s.Grant(ctx, GrantRequest{
			UserID:         userID,
			Currency:       c,
			Amount:         amount,
			Reason:         domain.ReasonSignup,
			Actor:          "system",
			IdempotencyKey: "signup:" + string(c),
		})
		if errors.Is(err, domain.ErrIdempotencyConflict) {
			// signup amounts changed since the first grant
			continue
		}
		if err != nil {
			return domain.Balance{}, granted, err
		}
		if !res.Replayed {
			granted = true
		}
	}
	bal, err = s.Balance(ctx, userID)
	return bal, granted, err
}

// MonthlyReport summarises a GrantMonthly run.
type MonthlyReport struct {
	Period   string `json:"period"`
	Users    int    `json:"users"`
	Granted  int    `json:"granted"`
	Replayed int    `json:"replayed"`
	Capped   int    `json:"capped"`
	Failed   int    `json:"failed"`
}

// GrantMonthly grants the monthly allowance for period (YYYY-MM) to every
// user. Rows are keyed by period so reruns are no-ops.
func (s *Service) GrantMonthly(ctx context.Context, period string) (*MonthlyReport, error) {
	if _, err := time.Parse("2006-01", period); err != nil {
		return nil, fmt.Errorf("%w: period must be YYYY-MM", domain.ErrInvalidInput)
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	report := &MonthlyReport{Period: period}
	after := ""
	for {
		ids, err := s.users.ListUserIDs(ctx, after, monthlyPageSize)
		if err != nil {
			return report, fmt.Errorf("list users: %w", err)
		}
		for _, id := range ids {
			report.Users++
			for _, c := range domain.Currencies {
				amount := cfg.MonthlyGrant.Get(c)
				if amount <= 0 {
					continue
				}
				res, err := s.Grant(ctx, GrantRequest{
					UserID:         id,
					Currency:       c,
					Amount:         amount,
					Reason:         domain.ReasonMonthly,
					Actor:          "system",
					IdempotencyKey: fmt.Sprintf("monthly:%s:%s", period, c),
				})
				switch {
				case err == nil && res.Replayed:
					report.Replayed++
				case err == nil:
					report.Granted++
				case errors.Is(err, domain.ErrBalanceCap):
					report.Capped++
				default:
					report.Failed++
					s.logger.Error().Err(err).Str("user_id", id).Str("period", period).Msg("monthly grant failed")
				}
			}
		}
		if len(ids) < monthlyPageSize {
			break
		}
		after = ids[len(ids)-1]
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}
	s.logger.Info().
		Str("period", period).
		Int("users", report.Users).
		Int("granted", report.Granted).
		Int("replayed", report.Replayed).
		Int("capped", report.Capped).
		Int("failed", report.Failed).
		Msg("monthly grant finished")
	return report, nil
}

// AuditReport is the result of an integrity check over a user's ledger.
type AuditReport struct {
	UserID    string         `json:"userId"`
	Balance   domain.Balance `json:"balance"`
	LedgerSum domain.Balance `json:"ledgerSum"`
	Rows      int            `json:"rows"`
	Issues    []string       `json:"issues"`
	OK        bool           `json:"ok"`
}

// Audit replays the full ledger and reports every chain break and any
// difference between the sum of deltas and the stored balance.
func (s *Service) Audit(ctx context.Context, userID string) (*AuditReport, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.ledger.AllTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	report := &AuditReport{UserID: userID, Balance: u.Credits, Rows: len(rows), Issues: []string{}}

	state := domain.LedgerState{}
	for _, row := range rows {
		if row.UserID != userID {
			report.Issues = append(report.Issues, fmt.Sprintf("row %s belongs to %s", row.ID, row.UserID))
		}
		if row.Amount != abs(row.Delta) {
			report.Issues = append(report.Issues, fmt.Sprintf("row %s: amount %d does not match delta %d", row.ID, row.Amount, row.Delta))
		}
		if _, err := state.Next(row); err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("row %s: %v", row.ID, err))
		}
		state = domain.LedgerState{Balance: row.BalanceAfter, Seq: row.Seq}
		report.LedgerSum = report.LedgerSum.Add(row.Currency, row.Delta)
	}
	if report.LedgerSum != u.Credits {
		report.Issues = append(report.Issues, fmt.Sprintf("ledger sum %+v does not match balance %+v", report.LedgerSum, u.Credits))
	}
	if len(rows) > 0 && state.Balance != u.Credits {
		report.Issues = append(report.Issues, fmt.Sprintf("last balanceAfter %+v does not match balance %+v", state.Balance, u.Credits))
	}
	if state.Seq != u.LedgerSeq {
		report.Issues = append(report.Issues, fmt.Sprintf("user ledger seq %d, last row seq %d", u.LedgerSeq, state.Seq))
	}
	report.OK = len(report.Issues) == 0
	if !report.OK {
		s.logger.Warn().Str("user_id", userID).Strs("issues", report.Issues).Msg("ledger audit failed")
	}
	return report, nil
}

// single appends one row built from spec after check accepts the current state.
func (s *Service) single(ctx context.Context, userID, key string, spec rowSpec, check func(domain.LedgerState) error) (*Result, error) {
	id := TransactionID(userID, key)
	now := s.now()
	rows, err := s.ledger.Apply(ctx, userID, id, func(st domain.LedgerState) ([]domain.CreditTransaction, error) {
		if check != nil {
			if err := check(st); err != nil {
				return nil, err
			}
		}
		return []domain.CreditTransaction{buildRow(id, userID, key, st, now, spec)}, nil
	})
	if errors.Is(err, domain.ErrDuplicateOperation) && len(rows) == 1 {
		existing := rows[0]
		if existing.UserID != userID || !spec.matches(existing) {
			s.metrics.reject("idempotency_conflict")
			return nil, fmt.Errorf("%w: key %q", domain.ErrIdempotencyConflict, key)
		}
		s.metrics.replay()
		bal, err := s.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &Result{Transaction: existing, Balance: bal, Replayed: true}, nil
	}
	if err != nil {
		s.rejected(err)
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("ledger apply returned %d rows", len(rows))
	}
	tx := rows[0]
	s.metrics.observe(tx)
	s.logger.Info().
		Str("user_id", userID).
		Str("tx_id", tx.ID).
		Str("kind", string(tx.Kind)).
		Str("currency", string(tx.Currency)).
		Int64("delta", tx.Delta).
		Msg("ledger row appended")
	return &Result{Transaction: tx, Balance: tx.BalanceAfter}, nil
}

func (s *Service) rejected(err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		s.metrics.reject("insufficient")
	case errors.Is(err, domain.ErrBalanceCap):
		s.metrics.reject("balance_cap")
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.reject("unknown_user")
	case errors.Is(err, domain.ErrInvalidAmount):
		s.metrics.reject("invalid_amount")
	default:
		s.metrics.reject("error")
	}
}

func buildRow(id, userID, key string, st domain.LedgerState, now time.Time, spec rowSpec) domain.CreditTransaction {
	return domain.CreditTransaction{
		ID:             id,
		UserID:         userID,
		Seq:            st.Seq + 1,
		Kind:           spec.kind,
		Currency:       spec.currency,
		Amount:         spec.amount,
		Delta:          spec.delta,
		BalanceBefore:  st.Balance,
		BalanceAfter:   st.Balance.Add(spec.currency, spec.delta),
		Reason:         spec.reason,
		Feature:        spec.feature,
		Actor:          spec.actor,
		IdempotencyKey: key,
		RelatedID:      spec.relatedID,
		Metadata:       spec.metadata,
		CreatedAt:      now,
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
