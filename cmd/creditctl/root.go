package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"blogpilot/internal/auth"
	"blogpilot/internal/bootstrap"
	"blogpilot/internal/domain"
	"blogpilot/internal/ledger"
	"blogpilot/internal/worker"
)

const defaultActor = "cli"

type cli struct {
	build func(ctx context.Context) (*bootstrap.Runtime, error)
	rt    *bootstrap.Runtime
}

func newRootCmd(build func(ctx context.Context) (*bootstrap.Runtime, error)) *cobra.Command {
	c := &cli{build: build}
	root := &cobra.Command{
		Use:           "creditctl",
		Short:         "Operate the BlogPilot credit ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if c.rt == nil {
				return nil
			}
			return c.rt.Close()
		},
	}
	root.PersistentFlags().String("actor", defaultActor, "actor recorded on ledger rows")
	root.AddCommand(
		c.grantCmd(),
		c.deductCmd(),
		c.adjustCmd(),
		c.refundCmd(),
		c.balanceCmd(),
		c.historyCmd(),
		c.auditCmd(),
		c.monthlyCmd(),
		c.configCmd(),
		c.apiKeyCmd(),
		c.publishDueCmd(),
		tokenCmd(),
	)
	return root
}

func (c *cli) runtime(cmd *cobra.Command) (*bootstrap.Runtime, error) {
	if c.rt != nil {
		return c.rt, nil
	}
	rt, err := c.build(cmd.Context())
	if err != nil {
		return nil, err
	}
	c.rt = rt
	return rt, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func actor(cmd *cobra.Command) string {
	a, _ := cmd.Flags().GetString("actor")
	if strings.TrimSpace(a) == "" {
		return defaultActor
	}
	return a
}

func requiredString(cmd *cobra.Command, name string) (string, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return strings.TrimSpace(v), nil
}

func (c *cli) grantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Add credits to a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetString("currency")
			currency, err := domain.ParseCurrency(raw)
			if err != nil {
				return err
			}
			amount, _ := cmd.Flags().GetInt64("amount")
			reason, _ := cmd.Flags().GetString("reason")
			key, _ := cmd.Flags().GetString("key")
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			res, err := rt.Ledger.Grant(cmd.Context(), ledger.GrantRequest{
				UserID:         user,
				Currency:       currency,
				Amount:         amount,
				Reason:         reason,
				Actor:          actor(cmd),
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("currency", "S", "currency (S or E)")
	cmd.Flags().Int64("amount", 0, "amount to grant")
	cmd.Flags().String("reason", domain.ReasonPurchase, "grant reason")
	cmd.Flags().String("key", "", "idempotency key")
	return cmd
}

func (c *cli) deductCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deduct",
		Short: "Charge a feature or a raw amount",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			feature, _ := cmd.Flags().GetString("feature")
			key, _ := cmd.Flags().GetString("key")
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			var res *ledger.Result
			if feature != "" {
				res, err = rt.Ledger.DeductForFeature(cmd.Context(), ledger.FeatureRequest{
					UserID:         user,
					Feature:        feature,
					Actor:          actor(cmd),
					IdempotencyKey: key,
				})
			} else {
				raw, _ := cmd.Flags().GetString("currency")
				currency, perr := domain.ParseCurrency(raw)
				if perr != nil {
					return perr
				}
				amount, _ := cmd.Flags().GetInt64("amount")
				res, err = rt.Ledger.Deduct(cmd.Context(), ledger.DeductRequest{
					UserID:         user,
					Currency:       currency,
					Amount:         amount,
					Feature:        "manual",
					Actor:          actor(cmd),
					IdempotencyKey: key,
				})
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("feature", "", "feature to charge at its configured cost")
	cmd.Flags().String("currency", "S", "currency for a raw deduction")
	cmd.Flags().Int64("amount", 0, "amount for a raw deduction")
	cmd.Flags().String("key", "", "idempotency key")
	return cmd
}

func (c *cli) adjustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Set balances to absolute values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			reason, err := requiredString(cmd, "reason")
			if err != nil {
				return err
			}
			req := ledger.AdjustRequest{UserID: user, Reason: reason, Actor: actor(cmd)}
			req.IdempotencyKey, _ = cmd.Flags().GetString("key")
			if cmd.Flags().Changed("s") {
				v, _ := cmd.Flags().GetInt64("s")
				req.S = &v
			}
			if cmd.Flags().Changed("e") {
				v, _ := cmd.Flags().GetInt64("e")
				req.E = &v
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			res, err := rt.Ledger.Adjust(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().Int64("s", 0, "target S balance")
	cmd.Flags().Int64("e", 0, "target E balance")
	cmd.Flags().String("reason", "", "why the override is needed")
	cmd.Flags().String("key", "", "idempotency key")
	return cmd
}

func (c *cli) refundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Reverse a deduction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			txID, err := requiredString(cmd, "tx")
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			res, err := rt.Ledger.Refund(cmd.Context(), ledger.RefundRequest{TransactionID: txID, Actor: actor(cmd), Reason: reason})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().String("tx", "", "id of the deduct transaction")
	cmd.Flags().String("reason", "", "refund reason")
	return cmd
}

func (c *cli) balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a user's balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			bal, err := rt.Ledger.Balance(cmd.Context(), user)
			if err != nil {
				return err
			}
			return printJSON(cmd, bal)
		},
	}
	cmd.Flags().String("user", "", "user id")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List ledger rows newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			beforeSeq, _ := cmd.Flags().GetInt64("before-seq")
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			rows, err := rt.Ledger.History(cmd.Context(), user, ledger.HistoryQuery{Limit: limit, BeforeSeq: beforeSeq})
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().Int("limit", ledger.DefaultHistoryLimit, "rows to show")
	cmd.Flags().Int64("before-seq", 0, "only rows with a lower seq")
	return cmd
}

var errAuditFailed = errors.New("ledger audit found issues")

func (c *cli) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Replay a user's ledger and compare it to the stored balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			report, err := rt.Ledger.Audit(cmd.Context(), user)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.OK {
				return errAuditFailed
			}
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id")
	return cmd
}

func (c *cli) monthlyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Run the monthly grant for a period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, _ := cmd.Flags().GetString("period")
			if period == "" {
				period = worker.Period(time.Now())
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			report, err := rt.Ledger.GrantMonthly(cmd.Context(), period)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().String("period", "", "YYYY-MM, defaults to the current UTC month")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Read or replace the credit config"}
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the effective credit config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			cfg, err := rt.Ledger.Config().Get(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		},
	}
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the credit config from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := requiredString(cmd, "file")
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			var cfg domain.CreditConfig
			dec := json.NewDecoder(strings.NewReader(string(raw)))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&cfg); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			saved, err := rt.Ledger.Config().Save(cmd.Context(), cfg, actor(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, saved)
		},
	}
	set.Flags().String("file", "", "path to a credit config JSON document")
	cmd.AddCommand(get, set)
	return cmd
}

func (c *cli) apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage public API keys"}
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key; the plaintext is printed once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			name, err := requiredString(cmd, "name")
			if err != nil {
				return err
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			created, err := rt.APIKeys.Create(cmd.Context(), user, name)
			if err != nil {
				return err
			}
			return printJSON(cmd, created)
		},
	}
	create.Flags().String("user", "", "owner user id")
	create.Flags().String("name", "", "key label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			keys, err := rt.APIKeys.List(cmd.Context(), user)
			if err != nil {
				return err
			}
			return printJSON(cmd, keys)
		},
	}
	list.Flags().String("user", "", "owner user id")

	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			id, err := requiredString(cmd, "id")
			if err != nil {
				return err
			}
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			if err := rt.APIKeys.Revoke(cmd.Context(), user, id); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"revoked": true, "id": id})
		},
	}
	revoke.Flags().String("user", "", "owner user id")
	revoke.Flags().String("id", "", "key id")

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func (c *cli) publishDueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish-due",
		Short: "Publish scheduled posts whose time has come",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			rt, err := c.runtime(cmd)
			if err != nil {
				return err
			}
			published, err := rt.Posts.PublishDue(cmd.Context(), limit)
			if perr := printJSON(cmd, map[string]any{"published": len(published)}); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().Int("limit", 100, "maximum posts to publish")
	return cmd
}

// tokenCmd signs a session token for AUTH_MODE=jwt deployments. It needs
// only the secret, not a store.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := requiredString(cmd, "user")
			if err != nil {
				return err
			}
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			verifier, err := auth.NewJWTVerifier(secret)
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			admin, _ := cmd.Flags().GetBool("admin")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := verifier.Issue(auth.Identity{UserID: user, Email: email, Admin: admin}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().String("user", "", "subject user id")
	cmd.Flags().String("email", "", "email claim")
	cmd.Flags().Bool("admin", false, "grant the admin role")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().String("secret", "", "signing secret, defaults to JWT_SECRET")
	return cmd
}
