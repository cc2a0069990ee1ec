package sqlinline

const QGetSetting = `--sql c5abfbb3-d8ad-42c6-bce6-9f969214e205
select value
from app_settings
where id = $1;
`

const QSaveSetting = `--sql 41534fbb-68cf-49fb-b930-0cf9e67c7d68
insert into app_settings (id, value, updated_at)
values ($1, $2, $3)
on conflict (id) do update set
    value = excluded.value,
    updated_at = excluded.updated_at;
`
