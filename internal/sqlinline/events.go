package sqlinline

const stripeEventColumns = `id, event_type, payload, status, attempts, processing_error, received_at, processed_at`

const QInsertStripeEvent = `--sql 6e93bb00-ca91-4d03-9d33-594ae4096ceb
insert into stripe_events(id, event_type, payload, status, attempts, last_attempt_at)
values ($1::text, $2::text, $3::jsonb, 'received', 1, now())
on conflict (id) do nothing;
`

const QSelectStripeEvent = `--sql a31a2397-bf10-41c1-9f76-fe2c7d418ee1
select ` + stripeEventColumns + `
from stripe_events
where id = $1::text;
`

const QRetryStripeEvent = `--sql 4c85e7f8-c27c-4646-a97c-fe96a5c39631
update stripe_events
set attempts = attempts + 1,
    status = 'received',
    last_attempt_at = now()
where id = $1::text;
`

const QFinishStripeEvent = `--sql 4cd247b1-2a93-452e-b805-5536975310a6
update stripe_events
set status = $2::text,
    processing_error = $3::text,
    processed_at = now()
where id = $1::text;
`

// QClaimRetryableStripeEvents claims failed or stalled events. Rows locked by
// another worker are skipped.
const QClaimRetryableStripeEvents = `--sql b4838a3f-979e-487e-8ea2-4759e08240d2
update stripe_events
set attempts = attempts + 1,
    status = 'received',
    last_attempt_at = now()
where id in (
    select id
    from stripe_events
    where status in ('failed', 'received')
      and attempts < $1::int
      and coalesce(last_attempt_at, received_at) < now() - ($2::double precision * interval '1 second')
    order by received_at
    limit $3::int
    for update skip locked
)
returning ` + stripeEventColumns + `;
`

const QListFailedStripeEvents = `--sql bc5191e2-24e8-4d74-9f1b-e973fb121aa1
select ` + stripeEventColumns + `
from stripe_events
where status = 'failed'
order by received_at desc
limit $1::int;
`
