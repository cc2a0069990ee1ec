package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogpilot/internal/domain"
)

var txCols = []string{
	"id", "user_id", "seq", "kind", "currency", "amount", "delta",
	"before_s", "before_e", "after_s", "after_e",
	"reason", "feature", "actor", "idempotency_key", "related_id", "metadata", "created_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return New(mock, zerolog.Nop()), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func expectLock(mock pgxmock.PgxPoolIface, userID string, s, e, seq int64) {
	mock.ExpectQuery(q("select credits_s, credits_e, ledger_seq")).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"credits_s", "credits_e", "ledger_seq"}).AddRow(s, e, seq))
}

func deductRow(st domain.LedgerState, id string, amount int64, at time.Time) domain.CreditTransaction {
	return domain.CreditTransaction{
		ID:            id,
		UserID:        "u1",
		Seq:           st.Seq + 1,
		Kind:          domain.KindDeduct,
		Currency:      domain.CurrencyS,
		Amount:        amount,
		Delta:         -amount,
		BalanceBefore: st.Balance,
		BalanceAfter:  st.Balance.Add(domain.CurrencyS, -amount),
		Feature:       "ai_draft",
		Metadata:      map[string]string{"source": "api"},
		CreatedAt:     at,
	}
}

func TestApplyWritesRowsAndBalance(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return at })

	mock.ExpectBegin()
	expectLock(mock, "u1", 10, 2, 3)
	mock.ExpectQuery(q("from credit_transactions")).WithArgs("tx-1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(q("insert into credit_transactions")).WithArgs(anyArgs(18)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(q("update users")).
		WithArgs("u1", int64(7), int64(2), int64(4), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	rows, err := s.Apply(context.Background(), "u1", "tx-1", func(st domain.LedgerState) ([]domain.CreditTransaction, error) {
		return []domain.CreditTransaction{deductRow(st, "tx-1", 3, at)}, nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.Balance{S: 7, E: 2}, rows[0].BalanceAfter)
	assert.Equal(t, int64(4), rows[0].Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReturnsExistingAnchor(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	expectLock(mock, "u1", 7, 2, 4)
	mock.ExpectQuery(q("from credit_transactions")).WithArgs("tx-1").
		WillReturnRows(pgxmock.NewRows(txCols).AddRow(
			"tx-1", "u1", int64(4), "deduct", "S", int64(3), int64(-3),
			int64(10), int64(2), int64(7), int64(2),
			"", "ai_draft", "u1", "k-1", "", []byte(`{"source":"api"}`), at,
		))
	mock.ExpectRollback()

	called := false
	rows, err := s.Apply(context.Background(), "u1", "tx-1", func(domain.LedgerState) ([]domain.CreditTransaction, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, domain.ErrDuplicateOperation)
	assert.False(t, called)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.KindDeduct, rows[0].Kind)
	assert.Equal(t, domain.CurrencyS, rows[0].Currency)
	assert.Equal(t, "api", rows[0].Metadata["source"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackRejectedMutation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectLock(mock, "u1", 1, 0, 1)
	mock.ExpectQuery(q("from credit_transactions")).WithArgs("tx-2").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.Apply(context.Background(), "u1", "tx-2", func(domain.LedgerState) ([]domain.CreditTransaction, error) {
		return nil, domain.ErrInsufficientCredits
	})
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRejectsBrokenChain(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectBegin()
	expectLock(mock, "u1", 1, 0, 1)
	mock.ExpectRollback()

	_, err := s.Apply(context.Background(), "u1", "", func(st domain.LedgerState) ([]domain.CreditTransaction, error) {
		return []domain.CreditTransaction{deductRow(st, "tx-3", 5, at)}, nil
	})
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Contains(t, err.Error(), "ledger rows rejected")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("select credits_s, credits_e, ledger_seq")).WithArgs("ghost").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.Apply(context.Background(), "ghost", "", func(domain.LedgerState) ([]domain.CreditTransaction, error) {
		t.Fatal("mutate must not run")
		return nil, nil
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(q("from users")).WithArgs("nobody").WillReturnError(pgx.ErrNoRows)

	_, err := s.GetUser(context.Background(), "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeUnknownKeyIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("update api_keys")).WithArgs("k-x", "u1", pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.RevokeAPIKey(context.Background(), "u1", "k-x", time.Now())
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("create table if not exists schema_migrations")).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(q("select exists (select 1 from schema_migrations")).
		WithArgs("0001_init").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesPendingVersion(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(q("create table if not exists schema_migrations")).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(q("select exists (select 1 from schema_migrations")).
		WithArgs("0001_init").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(q("create table if not exists users")).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(q("insert into schema_migrations")).WithArgs("0001_init").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryErrorsPropagate(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(q("from blog_posts")).WithArgs(anyArgs(3)...).WillReturnError(boom)

	_, err := s.ListPosts(context.Background(), "u1", domain.PostQuery{})
	require.ErrorIs(t, err, boom)
}

func TestListTransactionsPassesSeqCursor(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("and ($3::bigint = 0 or seq < $3)")).
		WithArgs("u1", pgxmock.AnyArg(), int64(5), 2).
		WillReturnRows(pgxmock.NewRows(txCols).AddRow(
			"tx-4", "u1", int64(4), "adjust", "E", int64(0), int64(0),
			int64(1), int64(9), int64(1), int64(9),
			"reset", "", "admin-1", "k", "", []byte(`{"targetE":"9","targetS":"unset"}`), at,
		))

	rows, err := s.ListTransactions(context.Background(), "u1", domain.TransactionQuery{Limit: 2, BeforeSeq: 5})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 4, rows[0].Seq)
	assert.Equal(t, "unset", rows[0].Metadata["targetS"])
	require.NoError(t, mock.ExpectationsWereMet())
}
