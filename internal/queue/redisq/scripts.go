package redisq

import goredis "github.com/redis/go-redis/v9"

// Every state transition is one script so a crash never leaves an id in two
// lists or a claimed job without its lock.

// KEYS: wait, active. ARGV: job prefix, lock prefix, token, lock ms, now ms.
// Returns false when wait is empty, {id, -1} for an orphaned id, else {id, attempt}.
var claimScript = goredis.NewScript(`
local id = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if not id then return false end
local jk = ARGV[1] .. id
if redis.call('EXISTS', jk) == 0 then
  redis.call('LREM', KEYS[2], 1, id)
  return {id, -1}
end
local attempt = redis.call('HINCRBY', jk, 'attempts', 1)
redis.call('HSET', jk, 'state', 'active', 'processed_at', ARGV[5])
redis.call('SET', ARGV[2] .. id, ARGV[3], 'PX', ARGV[4])
return {id, attempt}
`)

// KEYS: lock. ARGV: token, lock ms.
var extendScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// KEYS: active, completed, job, lock. ARGV: id, token, result, now ms, retain, ttl s.
var ackScript = goredis.NewScript(`
if redis.call('GET', KEYS[4]) ~= ARGV[2] then return -1 end
redis.call('DEL', KEYS[4])
redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('HSET', KEYS[3], 'state', 'completed', 'result', ARGV[3], 'finished_at', ARGV[4])
redis.call('LPUSH', KEYS[2], ARGV[1])
redis.call('LTRIM', KEYS[2], 0, tonumber(ARGV[5]) - 1)
if tonumber(ARGV[6]) > 0 then redis.call('EXPIRE', KEYS[3], ARGV[6]) end
return 1
`)

// KEYS: active, delayed, failed, job, lock. ARGV: id, token, error, now ms,
// retry-at ms, retain, ttl s. Returns 1 when scheduled for retry, 0 when
// dead-lettered, -1 when the lock was lost.
var nackScript = goredis.NewScript(`
if redis.call('GET', KEYS[5]) ~= ARGV[2] then return -1 end
redis.call('DEL', KEYS[5])
redis.call('LREM', KEYS[1], 1, ARGV[1])
local attempts = tonumber(redis.call('HGET', KEYS[4], 'attempts') or '0')
local maxr = tonumber(redis.call('HGET', KEYS[4], 'max_retries') or '1')
redis.call('HSET', KEYS[4], 'last_error', ARGV[3])
if attempts < maxr then
  redis.call('HSET', KEYS[4], 'state', 'delayed')
  redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
  return 1
end
redis.call('HSET', KEYS[4], 'state', 'failed', 'finished_at', ARGV[4])
redis.call('LPUSH', KEYS[3], ARGV[1])
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[6]) - 1)
if tonumber(ARGV[7]) > 0 then redis.call('EXPIRE', KEYS[4], ARGV[7]) end
return 0
`)

// KEYS: delayed, wait. ARGV: now ms, limit, job prefix.
var promoteScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
  redis.call('HSET', ARGV[3] .. id, 'state', 'waiting')
end
return #ids
`)

// KEYS: active, wait, failed, job, lock. ARGV: id, now ms, retain, ttl s.
// Returns 0 when the job is still locked or no longer active, 1 when
// requeued at the head of wait, 2 when dead-lettered.
var stalledScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[5]) == 1 then return 0 end
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then return 0 end
local attempts = tonumber(redis.call('HGET', KEYS[4], 'attempts') or '0')
local maxr = tonumber(redis.call('HGET', KEYS[4], 'max_retries') or '1')
redis.call('HSET', KEYS[4], 'last_error', 'job stalled: lock expired')
if attempts < maxr then
  redis.call('HSET', KEYS[4], 'state', 'waiting')
  redis.call('RPUSH', KEYS[2], ARGV[1])
  return 1
end
redis.call('HSET', KEYS[4], 'state', 'failed', 'finished_at', ARGV[2])
redis.call('LPUSH', KEYS[3], ARGV[1])
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[3]) - 1)
if tonumber(ARGV[4]) > 0 then redis.call('EXPIRE', KEYS[4], ARGV[4]) end
return 2
`)
