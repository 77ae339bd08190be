// Copyright 2025 The Gitbrag Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package caching implements the Redis-backed artifact cache and the staleness
// policy that decides when a cached artifact needs background regeneration.
//
// Entries are stored as JSON envelopes carrying the opaque artifact payload and
// its creation timestamp. The store is shared by all server instances, so a
// report generated by one instance is immediately visible to the others.
package caching

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/gomodule/redigo/redis"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/server/redisconn"
)

// ErrUnavailable is returned when the backing store cannot be reached.
//
// Callers must treat it as a cache miss, never as an authoritative signal
// about staleness of the artifact.
var ErrUnavailable = errors.New("artifact store unavailable")

// Entry is a single cached artifact with its metadata.
type Entry struct {
	// Value is the serialized artifact payload.
	Value json.RawMessage
	// CreatedAt is when the artifact was generated.
	CreatedAt time.Time
}

// Age returns how old the entry is at the given time.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// envelope is the wire format of a cache entry. The timestamp is stored as
// fractional Unix seconds so Lua scripts can compare it numerically.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt float64         `json:"created_at"`
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixSeconds(s float64) time.Time {
	return time.UnixMicro(int64(math.Round(s * 1e6))).UTC()
}

// setScript commits an entry unless the stored one is newer. An artifact's
// created_at must never move backwards, even if a generation that started
// earlier commits later (see the stale lock orphan window).
//
// KEYS[1] is the entry key, ARGV[1] the serialized envelope, ARGV[2] the new
// created_at in Unix seconds, ARGV[3] the TTL in seconds (0 for no TTL).
var setScript = redis.NewScript(1, `
	local cur = redis.call("GET", KEYS[1])
	if cur then
		local ok, cached = pcall(cjson.decode, cur)
		if ok and cached["created_at"] and tonumber(cached["created_at"]) >= tonumber(ARGV[2]) then
			return 0
		end
	end
	redis.call("SET", KEYS[1], ARGV[1])
	local ttl = tonumber(ARGV[3])
	if ttl > 0 then
		redis.call("EXPIRE", KEYS[1], ttl)
	else
		redis.call("PERSIST", KEYS[1])
	end
	return 1
`)

// Store reads and writes artifact cache entries.
//
// A disabled Store implements the identical interface as a no-op: Get always
// misses and writes succeed trivially, so callers run unmodified with caching
// off. A Store with no Redis pool in the context behaves the same way.
type Store struct {
	opts Options
}

// NewStore returns a Store using the given options.
func NewStore(opts Options) *Store {
	return &Store{opts: opts}
}

// Options returns the options the store was built with.
func (s *Store) Options() Options {
	return s.opts
}

// Get fetches the entry stored under key.
//
// Returns (nil, nil) on a miss. Returns an error wrapping ErrUnavailable if
// Redis cannot be reached; callers should log it and treat it as a miss.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	if !s.opts.Enabled {
		return nil, nil
	}
	conn, err := redisconn.Get(ctx)
	switch {
	case err == redisconn.ErrNotConfigured:
		return nil, nil
	case err != nil:
		return nil, errors.Fmt("%w: %s", ErrUnavailable, err)
	}
	defer conn.Close()

	blob, err := redis.Bytes(conn.Do("GET", key))
	switch {
	case err == redis.ErrNil:
		return nil, nil
	case err != nil:
		return nil, errors.Fmt("%w: %s", ErrUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, errors.Fmt("corrupt cache entry %q: %w", key, err)
	}
	return &Entry{
		Value:     env.Value,
		CreatedAt: fromUnixSeconds(env.CreatedAt),
	}, nil
}

// Set stores value under key with the given creation timestamp.
//
// A ttl of zero stores the entry permanently, to be removed only by an
// explicit Delete. Writes are last-writer-wins per key, except that an
// existing entry with a newer created_at is never overwritten.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage, createdAt time.Time, ttl time.Duration) error {
	if !s.opts.Enabled {
		return nil
	}
	conn, err := redisconn.Get(ctx)
	switch {
	case err == redisconn.ErrNotConfigured:
		return nil
	case err != nil:
		return errors.Fmt("%w: %s", ErrUnavailable, err)
	}
	defer conn.Close()

	blob, err := json.Marshal(&envelope{
		Value:     value,
		CreatedAt: toUnixSeconds(createdAt),
	})
	if err != nil {
		return errors.Fmt("serializing cache entry %q: %w", key, err)
	}
	if _, err := setScript.Do(conn, key, blob, toUnixSeconds(createdAt), int(ttl.Seconds())); err != nil {
		return errors.Fmt("%w: %s", ErrUnavailable, err)
	}
	return nil
}

// Delete removes the entry stored under key. Deleting an absent key is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !s.opts.Enabled {
		return nil
	}
	conn, err := redisconn.Get(ctx)
	switch {
	case err == redisconn.ErrNotConfigured:
		return nil
	case err != nil:
		return errors.Fmt("%w: %s", ErrUnavailable, err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", key); err != nil {
		return errors.Fmt("%w: %s", ErrUnavailable, err)
	}
	return nil
}

// Clear removes all entries in the given namespace, e.g. Clear(ctx, "artifact")
// removes every "artifact:*" key.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	if !s.opts.Enabled {
		return nil
	}
	conn, err := redisconn.Get(ctx)
	switch {
	case err == redisconn.ErrNotConfigured:
		return nil
	case err != nil:
		return errors.Fmt("%w: %s", ErrUnavailable, err)
	}
	defer conn.Close()

	cursor := 0
	for {
		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", namespace+":*", "COUNT", 100))
		if err != nil {
			return errors.Fmt("%w: %s", ErrUnavailable, err)
		}
		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			return errors.Fmt("scanning %q keys: %w", namespace, err)
		}
		for _, key := range keys {
			if _, err := conn.Do("DEL", key); err != nil {
				return errors.Fmt("%w: %s", ErrUnavailable, err)
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}
