package sqlinline

const ledgerColumns = `id::text, external_id, kind, source, status, coalesce(user_id, ''), email, plan_id,
       payment_intent, credits_requested, credits_granted, balance_after, amount_paid::text,
       currency, metadata, created_at`

// QInsertLedgerEntry claims the ledger key. No row is returned when the key exists.
const QInsertLedgerEntry = `--sql bfd6f4ec-8438-4d17-9767-cd9bf9c861b7
insert into credit_purchases(external_id, kind, source, status, user_id, email, plan_id, payment_intent,
                             credits_requested, amount_paid, currency, metadata)
values ($1::text, $2::text, $3::text, $4::text, nullif($5::text, ''), $6::text, $7::text, $8::text,
        $9::bigint, $10::numeric, $11::text, coalesce($12::jsonb, '{}'::jsonb))
on conflict (external_id) do nothing
returning id::text, created_at;
`

const QEnsureBalanceRow = `--sql b6ed7d7b-cdb5-4271-b75b-c7571ed15d7e
insert into user_credits(user_id, balance)
values ($1::text, 0)
on conflict (user_id) do nothing;
`

const QLockBalance = `--sql cc0585d1-ed30-431a-a3eb-a7253535df79
select balance
from user_credits
where user_id = $1::text
for update;
`

const QAddBalance = `--sql 2b7fb5a2-9131-46fd-8751-dfa6abb07db1
update user_credits
set balance = balance + $2::bigint,
    updated_at = now()
where user_id = $1::text
returning balance;
`

const QStampLedgerEntry = `--sql eceffae3-025c-46e1-8c8d-f299cb29119e
update credit_purchases
set credits_granted = $2::bigint,
    balance_after = $3::bigint
where id = $1::uuid;
`

const QSelectLedgerByExternalID = `--sql cbc11ecb-29fc-4e86-bb15-43e7054e338b
select ` + ledgerColumns + `
from credit_purchases
where external_id = $1::text;
`

const QListUnattributedLedger = `--sql f8d8822b-6961-419c-afac-846c05059f38
select ` + ledgerColumns + `
from credit_purchases
where user_id is null
  and not exists (select 1 from credit_purchases settled
                  where settled.external_id = 'settle_' || credit_purchases.external_id)
order by created_at desc
limit $1::int;
`

const QSelectBalance = `--sql 639cf725-8005-459a-bdfc-737422c9b596
select user_id, balance, created_at, updated_at
from user_credits
where user_id = $1::text;
`
