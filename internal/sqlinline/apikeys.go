package sqlinline

const apiKeyColumns = `id, user_id, name, prefix, hash, created_at, last_used_at, revoked_at`

const QInsertAPIKey = `--sql 7ecc0095-a998-415a-9c8f-28fdeb4ebf85
insert into api_keys (` + apiKeyColumns + `)
values ($1, $2, $3, $4, $5, $6, $7, $8);
`

const QGetAPIKeyByHash = `--sql d9f2f3b4-b08b-4fbd-88ba-41e8ffabb2a5
select ` + apiKeyColumns + `
from api_keys
where hash = $1;
`

const QListAPIKeys = `--sql 24d8f709-5a52-49f4-8a52-05534e1d3433
select ` + apiKeyColumns + `
from api_keys
where user_id = $1
order by created_at desc;
`

const QRevokeAPIKey = `--sql f981317c-7934-4cc1-9efc-1aacc7b06002
update api_keys
set revoked_at = coalesce(revoked_at, $3)
where id = $1 and user_id = $2;
`

const QTouchAPIKey = `--sql ee4c1107-05aa-41fd-974b-980ce2c5690a
update api_keys
set last_used_at = $2
where id = $1;
`
