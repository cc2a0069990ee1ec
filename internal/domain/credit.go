package domain

import (
	"fmt"
	"strings"
	"time"
)

// Currency identifies one of the two parallel credit balances.
type Currency string

const (
	CurrencyS Currency = "S"
	CurrencyE Currency = "E"
)

// Currencies lists every supported currency in display order.
var Currencies = []Currency{CurrencyS, CurrencyE}

// ParseCurrency accepts "s", "S", "e" or "E".
func ParseCurrency(v string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(v))) {
	case CurrencyS:
		return CurrencyS, nil
	case CurrencyE:
		return CurrencyE, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, v)
}

// Balance holds both credit balances of a user.
type Balance struct {
	S int64 `json:"s" firestore:"s"`
	E int64 `json:"e" firestore:"e"`
}

// Get returns the amount held in c.
func (b Balance) Get(c Currency) int64 {
	if c == CurrencyE {
		return b.E
	}
	return b.S
}

// With returns a copy of b with c set to amount.
func (b Balance) With(c Currency, amount int64) Balance {
	if c == CurrencyE {
		b.E = amount
	} else {
		b.S = amount
	}
	return b
}

// Add returns a copy of b with delta applied to c.
func (b Balance) Add(c Currency, delta int64) Balance {
	return b.With(c, b.Get(c)+delta)
}

// IsZero reports whether both balances are zero.
func (b Balance) IsZero() bool { return b.S == 0 && b.E == 0 }

// TransactionKind classifies ledger rows.
type TransactionKind string

const (
	KindGrant  TransactionKind = "grant"
	KindDeduct TransactionKind = "deduct"
	KindRefund TransactionKind = "refund"
	KindAdjust TransactionKind = "adjust"
)

// Grant reasons.
const (
	ReasonSignup   = "signup"
	ReasonMonthly  = "monthly"
	ReasonPurchase = "purchase"
	ReasonAdmin    = "admin"
)

// CreditTransaction is one append-only ledger row.
type CreditTransaction struct {
	ID             string            `json:"id" firestore:"-"`
	UserID         string            `json:"userId" firestore:"userId"`
	Seq            int64             `json:"seq" firestore:"seq"`
	Kind           TransactionKind   `json:"kind" firestore:"kind"`
	Currency       Currency          `json:"currency" firestore:"currency"`
	Amount         int64             `json:"amount" firestore:"amount"`
	Delta          int64             `json:"delta" firestore:"delta"`
	BalanceBefore  Balance           `json:"balanceBefore" firestore:"balanceBefore"`
	BalanceAfter   Balance           `json:"balanceAfter" firestore:"balanceAfter"`
	Reason         string            `json:"reason,omitempty" firestore:"reason"`
	Feature        string            `json:"feature,omitempty" firestore:"feature"`
	Actor          string            `json:"actor,omitempty" firestore:"actor"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty" firestore:"idempotencyKey"`
	RelatedID      string            `json:"relatedId,omitempty" firestore:"relatedId"`
	Metadata       map[string]string `json:"metadata,omitempty" firestore:"metadata"`
	CreatedAt      time.Time         `json:"createdAt" firestore:"createdAt"`
}

// LedgerState is the balance snapshot a mutation is computed against.
type LedgerState struct {
	Balance Balance
	Seq     int64
}

// LedgerMutation computes the rows to append from the current state. The
// last returned row's BalanceAfter and Seq become the user's new state.
// Returning no rows writes nothing.
type LedgerMutation func(state LedgerState) ([]CreditTransaction, error)

// TransactionQuery pages through a user's ledger newest first. BeforeSeq
// keeps rows with a lower seq; Before keeps rows created earlier.
type TransactionQuery struct {
	Limit     int
	Before    time.Time
	BeforeSeq int64
}

// FeatureCost is the price of one AI-assisted action.
type FeatureCost struct {
	Currency Currency `json:"currency" firestore:"currency"`
	Amount   int64    `json:"amount" firestore:"amount"`
}

// CreditConfig mirrors app_settings/credit_config.
type CreditConfig struct {
	SignupGrant  Balance                `json:"signupGrant" firestore:"signupGrant"`
	MonthlyGrant Balance                `json:"monthlyGrant" firestore:"monthlyGrant"`
	FeatureCosts map[string]FeatureCost `json:"featureCosts" firestore:"featureCosts"`
	MaxBalance   int64                  `json:"maxBalance" firestore:"maxBalance"`
	UpdatedAt    time.Time              `json:"updatedAt" firestore:"updatedAt"`
	UpdatedBy    string                 `json:"updatedBy,omitempty" firestore:"updatedBy"`
}

// DefaultCreditConfig is used when no config document exists.
func DefaultCreditConfig() CreditConfig {
	return CreditConfig{
		SignupGrant:  Balance{S: 100, E: 20},
		MonthlyGrant: Balance{S: 50, E: 10},
		FeatureCosts: map[string]FeatureCost{
			"ai_title":      {Currency: CurrencyS, Amount: 1},
			"ai_outline":    {Currency: CurrencyS, Amount: 3},
			"ai_draft":      {Currency: CurrencyS, Amount: 10},
			"ai_rewrite":    {Currency: CurrencyS, Amount: 5},
			"ai_image":      {Currency: CurrencyE, Amount: 5},
			"threads_share": {Currency: CurrencyE, Amount: 1},
		},
	}
}

// Validate checks amounts and currencies of the config.
func (c CreditConfig) Validate() error {
	if c.SignupGrant.S < 0 || c.SignupGrant.E < 0 || c.MonthlyGrant.S < 0 || c.MonthlyGrant.E < 0 {
		return fmt.Errorf("%w: grants must not be negative", ErrInvalidAmount)
	}
	if c.MaxBalance < 0 {
		return fmt.Errorf("%w: maxBalance must not be negative", ErrInvalidAmount)
	}
	for name, cost := range c.FeatureCosts {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty feature name", ErrInvalidInput)
		}
		if _, err := ParseCurrency(string(cost.Currency)); err != nil {
			return fmt.Errorf("feature %s: %w", name, err)
		}
		if cost.Amount <= 0 {
			return fmt.Errorf("%w: feature %s must cost at least 1", ErrInvalidAmount, name)
		}
	}
	return nil
}

// Next validates that row continues s and returns the state after it. Rows
// must carry consecutive sequence numbers, chain their balances, change only
// their own currency by Delta and never leave a negative balance.
func (s LedgerState) Next(row CreditTransaction) (LedgerState, error) {
	if row.Seq != s.Seq+1 {
		return s, fmt.Errorf("seq %d follows %d", row.Seq, s.Seq)
	}
	if row.BalanceBefore != s.Balance {
		return s, fmt.Errorf("seq %d: balanceBefore %+v does not match previous balance %+v", row.Seq, row.BalanceBefore, s.Balance)
	}
	if _, err := ParseCurrency(string(row.Currency)); err != nil {
		return s, fmt.Errorf("seq %d: %w", row.Seq, err)
	}
	if want := row.BalanceBefore.Add(row.Currency, row.Delta); row.BalanceAfter != want {
		return s, fmt.Errorf("seq %d: balanceAfter %+v, want %+v", row.Seq, row.BalanceAfter, want)
	}
	if row.BalanceAfter.S < 0 || row.BalanceAfter.E < 0 {
		return s, fmt.Errorf("seq %d: %w", row.Seq, ErrInsufficientCredits)
	}
	return LedgerState{Balance: row.BalanceAfter, Seq: row.Seq}, nil
}

// CheckRows validates a batch of rows against the state they were computed from.
func CheckRows(state LedgerState, rows []CreditTransaction) (LedgerState, error) {
	var err error
	for _, row := range rows {
		if state, err = state.Next(row); err != nil {
			return state, err
		}
	}
	return state, nil
}
