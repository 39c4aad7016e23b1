package sqlinline

// QSelectIntegrationToken returns the stored token for one provider.
const QSelectIntegrationToken = `--sql d4913ec2-9e96-4a4f-abe6-aa145b943609
select token
from integration_tokens
where provider = $1::text
limit 1;
`

// QUpsertIntegrationToken replaces the token and properties of a provider.
const QUpsertIntegrationToken = `--sql dbc94b3a-eb8e-42d7-a0f3-0a38e41f7eb1
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
