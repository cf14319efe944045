package redis

import "github.com/redis/go-redis/v9"

// The three compound shapes run server-side so each executes atomically
// with respect to every other Redis command. See pkg/cache docs.

// windowedAppendScript: KEYS[1] window list; ARGV[1] value, ARGV[2]
// capacity, ARGV[3] ttl millis. Returns the window length after truncation.
var windowedAppendScript = redis.NewScript(`
redis.call('LPUSH', KEYS[1], ARGV[1])
redis.call('LTRIM', KEYS[1], 0, tonumber(ARGV[2]) - 1)
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[3]))
return redis.call('LLEN', KEYS[1])
`)

// claimBatchScript: KEYS[1] pending list, KEYS[2] claimed set; ARGV[1]
// max, ARGV[2] min item length, ARGV[3] claim ttl millis. Walks the list
// oldest-first, skips items below the length filter, and SADDs the rest.
// Returns only the items this call newly claimed.
var claimBatchScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
local max = tonumber(ARGV[1])
local minlen = tonumber(ARGV[2])
local claimed = {}
for i = #items, 1, -1 do
  if #claimed >= max then
    break
  end
  local item = items[i]
  if string.len(item) >= minlen then
    if redis.call('SADD', KEYS[2], item) == 1 then
      claimed[#claimed + 1] = item
    end
  end
end
if #claimed > 0 and tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[2], tonumber(ARGV[3]))
end
return claimed
`)

// casScript: KEYS[1] workspace hash; ARGV[1] expected version (-1 is the
// wildcard), ARGV[2] data, ARGV[3] ttl millis. Returns the new version,
// or -1 on a version conflict with nothing mutated.
var casScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
local expected = tonumber(ARGV[1])
if expected >= 0 and expected ~= current then
  return -1
end
local next = current + 1
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'version', next)
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[3]))
end
return next
`)
