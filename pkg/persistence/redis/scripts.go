package redis

import redis "github.com/redis/go-redis/v9"

// insertScript stores a request and, for pending requests, takes the (requester, item) lock.
// KEYS: request, pending lock, index sets... ARGV: payload, id, "1" when pending.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 'EXISTS'
end
if ARGV[3] == '1' then
	if not redis.call('SET', KEYS[2], ARGV[2], 'NX') then
		return 'LOCKED'
	end
end
redis.call('SET', KEYS[1], ARGV[1])
for i = 3, #KEYS do
	redis.call('SADD', KEYS[i], ARGV[2])
end
return 'OK'
`)

// casScript swaps the payload when the stored status matches, moving the pending lock with it.
// KEYS: request, pending lock. ARGV: expected status, payload, new status, id.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 'NOT_FOUND'
end
if cjson.decode(current)['status'] ~= ARGV[1] then
	return 'MISMATCH'
end
if ARGV[3] == 'pending' and ARGV[1] ~= 'pending' then
	if not redis.call('SET', KEYS[2], ARGV[4], 'NX') then
		return 'LOCKED'
	end
elseif ARGV[1] == 'pending' and ARGV[3] ~= 'pending' then
	if redis.call('GET', KEYS[2]) == ARGV[4] then
		redis.call('DEL', KEYS[2])
	end
end
redis.call('SET', KEYS[1], ARGV[2])
return 'OK'
`)

// deleteScript removes a request whose status is allowed, releasing its lock and index entries.
// KEYS: request, pending lock, index sets... ARGV: id, allowed statuses...
var deleteScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 'NOT_FOUND'
end
local status = cjson.decode(current)['status']
local allowed = false
for i = 2, #ARGV do
	if ARGV[i] == status then
		allowed = true
	end
end
if not allowed then
	return 'MISMATCH'
end
redis.call('DEL', KEYS[1])
if redis.call('GET', KEYS[2]) == ARGV[1] then
	redis.call('DEL', KEYS[2])
end
for i = 3, #KEYS do
	redis.call('SREM', KEYS[i], ARGV[1])
end
return 'OK'
`)
