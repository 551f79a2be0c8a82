package sqlinline

const subscriptionColumns = `stripe_subscription_id, stripe_customer_id, coalesce(user_id, ''), email, plan_id,
       billing_period, credits_per_month, credits_unlimited, storage_included_mb, status,
       current_period_start, current_period_end, trial_end, cancel_at_period_end, canceled_at,
       created_at, updated_at`

const QUpsertSubscription = `--sql 01439237-6f5a-44c6-adac-9a28cf5315af
insert into subscriptions(stripe_subscription_id, stripe_customer_id, user_id, email, plan_id, billing_period,
                          credits_per_month, credits_unlimited, storage_included_mb, status,
                          current_period_start, current_period_end, trial_end, cancel_at_period_end, canceled_at)
values ($1::text, $2::text, nullif($3::text, ''), $4::text, $5::text, $6::text,
        $7::bigint, $8::boolean, $9::bigint, $10::text,
        $11::timestamptz, $12::timestamptz, $13::timestamptz, $14::boolean, $15::timestamptz)
on conflict (stripe_subscription_id) do update
set stripe_customer_id = excluded.stripe_customer_id,
    user_id = coalesce(excluded.user_id, subscriptions.user_id),
    email = coalesce(nullif(excluded.email, ''), subscriptions.email),
    plan_id = excluded.plan_id,
    billing_period = excluded.billing_period,
    credits_per_month = excluded.credits_per_month,
    credits_unlimited = excluded.credits_unlimited,
    storage_included_mb = excluded.storage_included_mb,
    status = case when subscriptions.status = 'canceled' then subscriptions.status else excluded.status end,
    current_period_start = excluded.current_period_start,
    current_period_end = excluded.current_period_end,
    trial_end = excluded.trial_end,
    cancel_at_period_end = excluded.cancel_at_period_end,
    canceled_at = case when subscriptions.status = 'canceled' then subscriptions.canceled_at
                       else coalesce(excluded.canceled_at, subscriptions.canceled_at) end,
    updated_at = now();
`

const QCancelSubscription = `--sql fd221d95-f628-4277-b0b1-a7388825abff
update subscriptions
set status = 'canceled',
    canceled_at = $2::timestamptz,
    updated_at = now()
where stripe_subscription_id = $1::text;
`

const QLatestSubscriptionForUser = `--sql 8e1102e5-7980-47da-83fc-b33389c2b03e
select ` + subscriptionColumns + `
from subscriptions
where user_id = $1::text
order by updated_at desc
limit 1;
`
