package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"blogpilot/internal/domain"
	"blogpilot/internal/ledger"
)

type grantRequest struct {
	UserID         string            `json:"userId" validate:"required"`
	Currency       string            `json:"currency" validate:"required,oneof=S E s e"`
	Amount         int64             `json:"amount" validate:"required,gt=0"`
	Reason         string            `json:"reason"`
	IdempotencyKey string            `json:"idempotencyKey" validate:"omitempty,max=200"`
	Metadata       map[string]string `json:"metadata" validate:"omitempty,max=20"`
}

type adjustRequest struct {
	UserID         string `json:"userId" validate:"required"`
	S              *int64 `json:"s" validate:"omitempty,gte=0"`
	E              *int64 `json:"e" validate:"omitempty,gte=0"`
	Reason         string `json:"reason" validate:"required,max=500"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=200"`
}

type refundRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	Reason        string `json:"reason" validate:"omitempty,max=500"`
}

type creditConfigRequest struct {
	SignupGrant  domain.Balance                `json:"signupGrant"`
	MonthlyGrant domain.Balance                `json:"monthlyGrant"`
	FeatureCosts map[string]domain.FeatureCost `json:"featureCosts" validate:"required"`
	MaxBalance   int64                         `json:"maxBalance" validate:"gte=0"`
}

func (a *App) AdminGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.ReasonAdmin
	}
	res, err := a.Ledger.Grant(r.Context(), ledger.GrantRequest{
		UserID:         req.UserID,
		Currency:       domain.Currency(strings.ToUpper(req.Currency)),
		Amount:         req.Amount,
		Reason:         reason,
		Actor:          a.currentUserID(r),
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
		Metadata:       req.Metadata,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resultBody(res))
}

func (a *App) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Ledger.Adjust(r.Context(), ledger.AdjustRequest{
		UserID:         req.UserID,
		S:              req.S,
		E:              req.E,
		Actor:          a.currentUserID(r),
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"transactions": res.Transactions,
		"balance":      res.Balance,
		"replayed":     res.Replayed,
	})
}

func (a *App) AdminRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Ledger.Refund(r.Context(), ledger.RefundRequest{
		TransactionID: req.TransactionID,
		Actor:         a.currentUserID(r),
		Reason:        req.Reason,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, resultBody(res))
}

func (a *App) AdminAudit(w http.ResponseWriter, r *http.Request) {
	report, err := a.Ledger.Audit(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"report": report})
}

func (a *App) AdminUserTransactions(w http.ResponseWriter, r *http.Request) {
	a.history(w, r, chi.URLParam(r, "uid"))
}

func (a *App) AdminGetCreditConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.Ledger.Config().Get(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"config": cfg})
}

func (a *App) AdminPutCreditConfig(w http.ResponseWriter, r *http.Request) {
	var req creditConfigRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	cfg, err := a.Ledger.Config().Save(r.Context(), domain.CreditConfig{
		SignupGrant:  req.SignupGrant,
		MonthlyGrant: req.MonthlyGrant,
		FeatureCosts: req.FeatureCosts,
		MaxBalance:   req.MaxBalance,
	}, a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"config": cfg})
}
