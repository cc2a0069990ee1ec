package sqlinline

const txColumns = `id, user_id, seq, kind, currency, amount, delta, before_s, before_e, after_s, after_e, reason, feature, actor, idempotency_key, related_id, metadata, created_at`

// QLockUserLedger serialises ledger writers for one user.
const QLockUserLedger = `--sql 2e4e6b37-b406-4f43-a770-c8526ee467f6
select credits_s, credits_e, ledger_seq
from users
where id = $1
for update;
`

const QGetTransaction = `--sql 2f31e92d-636e-4ba7-9860-a8d38b237dfa
select ` + txColumns + `
from credit_transactions
where id = $1;
`

const QInsertTransaction = `--sql 5fe14365-ffc7-4e54-946a-107f3cc34448
insert into credit_transactions (` + txColumns + `)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18);
`

const QUpdateUserLedger = `--sql 1bbd1755-f1e5-4fde-8000-770c82aa22b8
update users
set credits_s = $2, credits_e = $3, ledger_seq = $4, updated_at = $5
where id = $1;
`

// QListTransactions treats a null $2 as "no time filter" and a zero $3 as
// "no seq cursor".
const QListTransactions = `--sql bc809832-f0d4-4ea9-ba80-1c40a8e0d944
select ` + txColumns + `
from credit_transactions
where user_id = $1
  and ($2::timestamptz is null or created_at < $2)
  and ($3::bigint = 0 or seq < $3)
order by seq desc
limit $4;
`

const QAllTransactions = `--sql b96ba73a-5d90-4466-9aab-69521232e385
select ` + txColumns + `
from credit_transactions
where user_id = $1
order by seq;
`
