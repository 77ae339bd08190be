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

// Package tasks coordinates background regeneration of cached report
// artifacts across server instances.
//
// All coordination state (task locks and per-subject active sets) lives in the
// shared Redis store, never in process memory, so deduplication and rate
// limiting hold across horizontally scaled instances. Locks carry a TTL so an
// instance that dies mid-generation cannot wedge an artifact forever.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/redisconn"
)

func taskKey(taskID string) string {
	return "task:" + taskID
}

// lockRecord is the value stored under a task lock key. The owner token
// scopes the release to the acquisition that created the lock; a holder whose
// lock already expired cannot evict a successor's lock with it.
type lockRecord struct {
	StartedAt float64 `json:"started_at"`
	Owner     string  `json:"owner"`
}

// releaseScript drops the lock only if it is still held by the given owner.
//
// KEYS[1] is the lock key, ARGV[1] the owner token from AcquireLock.
var releaseScript = redis.NewScript(1, `
	local cur = redis.call("GET", KEYS[1])
	if not cur then
		return 0
	end
	local ok, rec = pcall(cjson.decode, cur)
	if not ok or rec["owner"] ~= ARGV[1] then
		return 0
	end
	return redis.call("DEL", KEYS[1])
`)

// AcquireLock attempts to take the regeneration lock for the given task ID.
// On success it returns an owner token that scopes the matching ReleaseLock.
//
// The acquisition is a single atomic SET NX EX round trip, so two callers
// racing for the same ID cannot both succeed. The lock expires on its own
// after ttl, which bounds how long a crashed generation can block the key.
//
// If Redis is unreachable the acquisition fails closed and returns false:
// skipping an opportunistic refresh is preferable to risking unlocked
// duplicate execution.
func AcquireLock(ctx context.Context, taskID string, ttl time.Duration) (owner string, ok bool) {
	conn, err := redisconn.Get(ctx)
	if err != nil {
		logging.Warningf(ctx, "task lock: store unavailable, not acquiring %q: %s", taskID, err)
		return "", false
	}
	defer conn.Close()

	owner = uuid.NewString()
	blob, err := json.Marshal(&lockRecord{
		StartedAt: float64(clock.Now(ctx).UnixMicro()) / 1e6,
		Owner:     owner,
	})
	if err != nil {
		logging.Errorf(ctx, "task lock: serializing record for %q: %s", taskID, err)
		return "", false
	}

	reply, err := redis.String(conn.Do("SET", taskKey(taskID), blob, "NX", "EX", int(ttl.Seconds())))
	switch {
	case err == redis.ErrNil:
		// Lost the race to a concurrent caller. Not an error.
		return "", false
	case err != nil:
		logging.Warningf(ctx, "task lock: failed to acquire %q, failing closed: %s", taskID, err)
		return "", false
	case reply != "OK":
		return "", false
	}
	return owner, true
}

// LockActive reports whether a regeneration lock currently exists for the
// given task ID. It is side effect free and used for fast-path deduplication.
func LockActive(ctx context.Context, taskID string) bool {
	conn, err := redisconn.Get(ctx)
	if err != nil {
		return false
	}
	defer conn.Close()

	active, err := redis.Bool(conn.Do("EXISTS", taskKey(taskID)))
	if err != nil {
		logging.Warningf(ctx, "task lock: failed to check %q: %s", taskID, err)
		return false
	}
	return active
}

// ReleaseLock drops the regeneration lock for the given task ID, if it is
// still the acquisition identified by owner. If the lock expired and a
// successor re-acquired it, the successor's lock is left intact.
//
// Idempotent: releasing an expired or absent lock is not an error.
func ReleaseLock(ctx context.Context, taskID, owner string) {
	conn, err := redisconn.Get(ctx)
	if err != nil {
		// The lock TTL will reclaim it.
		logging.Warningf(ctx, "task lock: store unavailable, leaving %q to expire: %s", taskID, err)
		return
	}
	defer conn.Close()

	if _, err := releaseScript.Do(conn, taskKey(taskID), owner); err != nil {
		logging.Warningf(ctx, "task lock: failed to release %q: %s", taskID, err)
	}
}
