package redisleases

import (
	"github.com/redis/go-redis/v9"
)

// Script results.
const (
	scriptTableMissing = -1
	scriptConditionMet = 1
)

// createLease inserts a lease hash unless it exists.
//
// KEYS: table marker, lease hash, lease index
// ARGV: lease key, then field/value pairs
var createLease = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("HSET", KEYS[2], unpack(ARGV, 2))
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`)

// compareAndSet updates a lease hash if one field holds the expected value. An empty expected value means the
// field must be absent.
//
// KEYS: table marker, lease hash
// ARGV: field, expected, nSet, set pairs..., nDel, fields..., nIncr, incr pairs...
var compareAndSet = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if redis.call("EXISTS", KEYS[2]) == 0 then
	return 0
end
local actual = redis.call("HGET", KEYS[2], ARGV[1])
if ARGV[2] == "" then
	if actual then
		return 0
	end
elseif actual ~= ARGV[2] then
	return 0
end

local i = 3
local n = tonumber(ARGV[i])
i = i + 1
for _ = 1, n do
	redis.call("HSET", KEYS[2], ARGV[i], ARGV[i + 1])
	i = i + 2
end
n = tonumber(ARGV[i])
i = i + 1
for _ = 1, n do
	redis.call("HDEL", KEYS[2], ARGV[i])
	i = i + 1
end
n = tonumber(ARGV[i])
i = i + 1
for _ = 1, n do
	redis.call("HINCRBY", KEYS[2], ARGV[i], ARGV[i + 1])
	i = i + 2
end
return 1
`)

// mutation is one compareAndSet call.
type mutation struct {
	field    string
	expected string
	set      map[string]string
	del      []string
	incr     map[string]int64
}

func (m *mutation) args() []interface{} {
	args := []interface{}{m.field, m.expected, len(m.set)}
	for _, k := range sortedFields(m.set) {
		args = append(args, k, m.set[k])
	}
	args = append(args, len(m.del))
	for _, k := range m.del {
		args = append(args, k)
	}
	args = append(args, len(m.incr))
	for _, k := range sortedFields(m.incr) {
		args = append(args, k, m.incr[k])
	}
	return args
}
