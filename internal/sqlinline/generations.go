package sqlinline

const QCreateGenerationsTable = `--sql 872bdc91-85d5-4f5b-909b-67c739059b03
create table if not exists generations (
    id uuid primary key,
    user_id text,
    session_id text not null,
    prompt text not null default '',
    model text not null default '',
    output_url text,
    status text not null default 'pending',
    metadata jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now(),
    expires_at timestamptz
);
`

const QCreateGenerationAttemptsTable = `--sql d423f77b-f373-4ca7-b873-6b564bb434b8
create table if not exists generation_attempts (
    id uuid primary key,
    generation_id uuid not null references generations (id) on delete cascade,
    sequence int not null,
    model text not null,
    family text not null,
    status text not null,
    error_kind text,
    http_status int,
    provider_request_id text,
    elapsed_ms bigint not null default 0,
    created_at timestamptz not null default now()
);
`

const QCreateGenerationsExpiryIndex = `--sql f1e41885-5864-4b16-aad1-bb55bfa4f280
create index if not exists generations_expires_at_idx
on generations (expires_at)
where user_id is null;
`

const QInsertGeneration = `--sql 9372e771-34a0-4026-a149-dbf1f52c12ec
insert into generations (id, user_id, session_id, prompt, model, status, metadata, created_at, updated_at, expires_at)
values ($1::uuid, nullif($2::text, ''), $3::text, $4::text, $5::text, $6::text, coalesce($7::jsonb, '{}'::jsonb), $8::timestamptz, $8::timestamptz, $9::timestamptz);
`

const QFinalizeGeneration = `--sql c32f9bd9-179b-4e34-af66-14262883f914
update generations
set status = $2::text,
    model = case when $3::text = '' then model else $3::text end,
    output_url = nullif($4::text, ''),
    metadata = metadata || coalesce($5::jsonb, '{}'::jsonb),
    updated_at = now()
where id = $1::uuid
  and status = 'pending';
`

const QSelectGenerationStatus = `--sql 61e86c2d-3e25-4e7c-bf15-9168599cc415
select status
from generations
where id = $1::uuid;
`

const QSelectGeneration = `--sql 1d55af88-11d1-4941-ac7e-1742769933f1
select id::text, coalesce(user_id, ''), session_id, prompt, model, coalesce(output_url, ''), status, metadata, created_at, updated_at, expires_at
from generations
where id = $1::uuid;
`

const QInsertGenerationAttempt = `--sql 4ad65127-3f8b-4ee5-aa4d-f2e93621ec24
insert into generation_attempts (id, generation_id, sequence, model, family, status, error_kind, http_status, provider_request_id, elapsed_ms, created_at)
values ($1::uuid, $2::uuid, $3::int, $4::text, $5::text, $6::text, nullif($7::text, ''), nullif($8::int, 0), nullif($9::text, ''), $10::bigint, $11::timestamptz);
`

const QSelectGenerationAttempts = `--sql 386bc21a-3175-43bd-911d-6df6e79d90a0
select id::text, generation_id::text, sequence, model, family, status, coalesce(error_kind, ''), coalesce(http_status, 0), coalesce(provider_request_id, ''), elapsed_ms, created_at
from generation_attempts
where generation_id = $1::uuid
order by sequence asc;
`

const QPurgeExpiredGenerations = `--sql 7fbfe5f1-9327-4dc4-9471-90b74c82b620
delete from generations
where user_id is null
  and expires_at is not null
  and expires_at < $1::timestamptz;
`
