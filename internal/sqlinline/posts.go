package sqlinline

const postColumns = `id, user_id, title, slug, content, excerpt, status, tags, cover_image_url, publish_at, published_at, wordpress, threads, created_at, updated_at`

const QInsertPost = `--sql 0403ffd3-fb2f-4057-b486-d269c0f3c8c8
insert into blog_posts (` + postColumns + `)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
`

const QGetPost = `--sql 6965b300-fca1-4457-b0a5-0c92c649d24b
select ` + postColumns + `
from blog_posts
where id = $1;
`

const QUpdatePost = `--sql 437c610b-d71c-4466-9e47-9a59815c1f03
update blog_posts
set title = $2, slug = $3, content = $4, excerpt = $5, status = $6, tags = $7,
    cover_image_url = $8, publish_at = $9, published_at = $10, wordpress = $11,
    threads = $12, updated_at = $13
where id = $1;
`

const QDeletePost = `--sql a9db6213-38ae-4cd5-a242-d89380ba9515
delete from blog_posts
where id = $1;
`

// QListPosts treats an empty $2 as "any status" and a null $3 as no limit.
const QListPosts = `--sql c58771d6-d81a-40af-9aeb-5cfde2635909
select ` + postColumns + `
from blog_posts
where user_id = $1
  and ($2 = '' or status = $2)
order by created_at desc
limit $3;
`

const QSlugExists = `--sql 0f540f82-1212-480c-8453-ef5aa33b6e7b
select exists (
    select 1 from blog_posts
    where user_id = $1 and slug = $2 and id <> $3
);
`

const QListDueScheduled = `--sql 78bca317-ae12-45eb-a4b3-6b276cdbe8be
select ` + postColumns + `
from blog_posts
where status = 'scheduled'
  and publish_at <= $1
order by publish_at
limit $2;
`
