package sqlinline

const QCreateMigrationsTable = `--sql 21a7927d-1d31-4710-a8df-e8095e5a1938
create table if not exists schema_migrations (
    version text primary key,
    applied_at timestamptz not null default now()
);
`

const QMigrationApplied = `--sql 9d2d111a-5893-4369-a1c9-b290c922261c
select exists (select 1 from schema_migrations where version = $1);
`

const QRecordMigration = `--sql c0d94153-bf86-48aa-b16c-47d49496113c
insert into schema_migrations (version) values ($1);
`
