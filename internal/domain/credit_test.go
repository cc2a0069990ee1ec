package domain

import (
	"errors"
	"testing"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    Currency
		wantErr bool
	}{
		{in: "S", want: CurrencyS},
		{in: " e ", want: CurrencyE},
		{in: "s", want: CurrencyS},
		{in: "X", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseCurrency(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidCurrency) {
				t.Fatalf("ParseCurrency(%q) error = %v, want ErrInvalidCurrency", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseCurrency(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestBalanceArithmetic(t *testing.T) {
	b := Balance{S: 10, E: 3}
	if got := b.Add(CurrencyE, -2); got != (Balance{S: 10, E: 1}) {
		t.Fatalf("Add() = %+v", got)
	}
	if got := b.With(CurrencyS, 0); got != (Balance{S: 0, E: 3}) {
		t.Fatalf("With() = %+v", got)
	}
	if b.Get(CurrencyS) != 10 || b.Get(CurrencyE) != 3 {
		t.Fatalf("Get() mismatch")
	}
}

func TestLedgerStateNext(t *testing.T) {
	start := LedgerState{Balance: Balance{S: 5, E: 1}, Seq: 3}
	good := CreditTransaction{Seq: 4, Currency: CurrencyS, Delta: -5, BalanceBefore: Balance{S: 5, E: 1}, BalanceAfter: Balance{S: 0, E: 1}}

	next, err := start.Next(good)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next.Seq != 4 || next.Balance != (Balance{S: 0, E: 1}) {
		t.Fatalf("Next() = %+v", next)
	}

	tests := []struct {
		name   string
		mutate func(*CreditTransaction)
	}{
		{name: "gap in seq", mutate: func(r *CreditTransaction) { r.Seq = 6 }},
		{name: "broken chain", mutate: func(r *CreditTransaction) { r.BalanceBefore = Balance{S: 9, E: 1} }},
		{name: "wrong after", mutate: func(r *CreditTransaction) { r.BalanceAfter = Balance{S: 1, E: 1} }},
		{name: "other currency changed", mutate: func(r *CreditTransaction) { r.BalanceAfter = Balance{S: 0, E: 2} }},
		{name: "bad currency", mutate: func(r *CreditTransaction) { r.Currency = "Z" }},
		{name: "negative", mutate: func(r *CreditTransaction) { r.Delta = -6; r.BalanceAfter = Balance{S: -1, E: 1} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := good
			tc.mutate(&row)
			if _, err := start.Next(row); err == nil {
				t.Fatalf("Next() expected error")
			}
		})
	}
}

func TestCreditConfigValidate(t *testing.T) {
	if err := DefaultCreditConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultCreditConfig()
	cfg.FeatureCosts["broken"] = FeatureCost{Currency: CurrencyS, Amount: 0}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Validate() error = %v, want ErrInvalidAmount", err)
	}
	cfg = DefaultCreditConfig()
	cfg.FeatureCosts["broken"] = FeatureCost{Currency: "Q", Amount: 1}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("Validate() error = %v, want ErrInvalidCurrency", err)
	}
	cfg = DefaultCreditConfig()
	cfg.MonthlyGrant.E = -1
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("Validate() error = %v, want ErrInvalidAmount", err)
	}
}
