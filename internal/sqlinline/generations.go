package sqlinline

// Nullable text columns are coalesced to '' so rows scan into plain strings.

const QInsertGeneration = `--sql 0a10a0cf-0e20-408d-a13f-bf540d59a9b7
insert into superhero_generations (
    id, user_id, original_image_url, frame_type, generation_status,
    replicate_prediction_id, created_at, updated_at
)
values (gen_random_uuid(), $1::text, $2::text, $3::text, 'processing', $4::text, now(), now())
returning id::text, coalesce(user_id, ''), original_image_url,
    coalesce(generated_image_url, ''), coalesce(composite_image_url, ''),
    coalesce(composite_storage_path, ''), frame_type, generation_status,
    coalesce(replicate_prediction_id, ''), coalesce(error_message, ''),
    created_at, updated_at;
`

// QUpdateGeneration merges non-null arguments. Status only moves forward and a
// failed row only accepts a repeated failure. With $7 set the write is skipped
// once a composite exists.
const QUpdateGeneration = `--sql b4e402db-4666-4bac-a3ad-3064096fc23b
update superhero_generations
set generated_image_url = coalesce($2::text, generated_image_url),
    composite_image_url = coalesce($3::text, composite_image_url),
    composite_storage_path = coalesce($4::text, composite_storage_path),
    generation_status = coalesce($5::text, generation_status),
    error_message = coalesce($6::text, error_message),
    updated_at = now()
where id = $1::uuid
  and (
    generation_status = 'processing'
    or (generation_status = 'completed' and coalesce($5::text, 'completed') = 'completed')
    or (generation_status = 'failed' and $5::text = 'failed')
  )
  and ($7::boolean is false or composite_image_url is null)
returning id::text, coalesce(user_id, ''), original_image_url,
    coalesce(generated_image_url, ''), coalesce(composite_image_url, ''),
    coalesce(composite_storage_path, ''), frame_type, generation_status,
    coalesce(replicate_prediction_id, ''), coalesce(error_message, ''),
    created_at, updated_at;
`

const QSelectGenerationByID = `--sql fac2dc0f-e90f-4ba6-a305-bef7b91f4ab2
select id::text, coalesce(user_id, ''), original_image_url,
    coalesce(generated_image_url, ''), coalesce(composite_image_url, ''),
    coalesce(composite_storage_path, ''), frame_type, generation_status,
    coalesce(replicate_prediction_id, ''), coalesce(error_message, ''),
    created_at, updated_at
from superhero_generations
where id = $1::uuid;
`

const QSelectGenerationByJobID = `--sql bd738144-edce-4432-8f1b-ac8dccabcd09
select id::text, coalesce(user_id, ''), original_image_url,
    coalesce(generated_image_url, ''), coalesce(composite_image_url, ''),
    coalesce(composite_storage_path, ''), frame_type, generation_status,
    coalesce(replicate_prediction_id, ''), coalesce(error_message, ''),
    created_at, updated_at
from superhero_generations
where replicate_prediction_id = $1::text
order by created_at desc
limit 1;
`

// A null owner lists the anonymous scope.
const QListGenerationsByOwner = `--sql e5a1d6ae-444a-4c64-8757-9ac79258e047
select id::text, coalesce(user_id, ''), original_image_url,
    coalesce(generated_image_url, ''), coalesce(composite_image_url, ''),
    coalesce(composite_storage_path, ''), frame_type, generation_status,
    coalesce(replicate_prediction_id, ''), coalesce(error_message, ''),
    created_at, updated_at
from superhero_generations
where ($1::text is null and user_id is null) or user_id = $1::text
order by created_at desc
limit $2::int;
`

const QListProcessingGenerations = `--sql 23ceb2fb-dba4-4451-913e-48ee17cd0e39
select id::text, coalesce(user_id, ''), original_image_url,
    coalesce(generated_image_url, ''), coalesce(composite_image_url, ''),
    coalesce(composite_storage_path, ''), frame_type, generation_status,
    coalesce(replicate_prediction_id, ''), coalesce(error_message, ''),
    created_at, updated_at
from superhero_generations
where generation_status = 'processing'
  and created_at < $1::timestamptz
order by created_at asc
limit $2::int;
`

const QGenerationExists = `--sql 8b016e28-21b3-4369-a808-8d753eda2cab
select exists(select 1 from superhero_generations where id = $1::uuid);
`

const QDeleteGeneration = `--sql 7408d193-964b-43ba-8626-c3123c7df9e1
delete from superhero_generations
where id = $1::uuid;
`
