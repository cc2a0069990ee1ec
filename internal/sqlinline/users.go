// Package sqlinline holds every SQL statement the Postgres backend runs.
// Each statement starts with a --sql <uuid> marker so logs can name it.
package sqlinline

const userColumns = `id, email, display_name, photo_url, role, plan, credits_s, credits_e, ledger_seq, wordpress, threads, created_at, updated_at`

const QGetUser = `--sql e8c6ce38-e98a-4582-95d5-e6aeafaeaba5
select ` + userColumns + `
from users
where id = $1;
`

// QUpsertProfile reports created=true only when the row was inserted.
const QUpsertProfile = `--sql 8ecaacfc-72aa-4ff2-af54-4f3bb1511191
insert into users (id, email, display_name, photo_url, role, plan, created_at, updated_at)
values ($1, $2, $3, $4, $5, 'free', $6, $6)
on conflict (id) do update set
    email = excluded.email,
    display_name = excluded.display_name,
    photo_url = excluded.photo_url,
    role = case when $7 then excluded.role else users.role end,
    updated_at = excluded.updated_at
returning ` + userColumns + `, (xmax = 0) as created;
`

const QListUserIDs = `--sql c2952c9e-c4bb-4e62-90b5-7a0373e528c0
select id
from users
where id > $1
order by id
limit $2;
`

const QSetWordPress = `--sql d092f81a-9c5e-4bfc-b5c8-fe4614fc7b5b
update users
set wordpress = $2, updated_at = $3
where id = $1;
`

const QSetThreads = `--sql 45694b00-4948-403e-b1eb-136af08e9df9
update users
set threads = $2, updated_at = $3
where id = $1;
`

const QPing = `--sql 74558a9f-783e-443b-a6b7-aef44c2ef199
select 1;
`
