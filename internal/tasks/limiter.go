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

package tasks

import (
	"context"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"

	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server/redisconn"
)

// The rate limit is keyed on the subject of the report (the account being
// reported on), not on the requesting caller. Generations for one subject
// share upstream sub-resources (profile, repository listings), so serializing
// them raises the hit rate on those and bounds upstream call volume per
// subject. Distinct subjects proceed fully independently.

func subjectKey(subject string) string {
	return "subject:" + strings.ToLower(subject) + ":active"
}

// registerScript adds a task to the subject's active set iff the set is below
// the concurrency cap. The check and the add must be one atomic unit or two
// coordinators racing for different artifacts of the same subject could both
// slip under the cap.
//
// KEYS[1] is the subject active set, ARGV[1] the member, ARGV[2] the cap,
// ARGV[3] the set TTL in seconds.
var registerScript = redis.NewScript(1, `
	if redis.call("SCARD", KEYS[1]) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call("SADD", KEYS[1], ARGV[1])
	redis.call("EXPIRE", KEYS[1], ARGV[3])
	return 1
`)

// CanStart reports whether the subject has spare capacity for another
// regeneration. Side effect free; the authoritative reservation happens in
// Register.
//
// Fails closed when the store is unreachable.
func CanStart(ctx context.Context, subject string, maxConcurrent int) bool {
	conn, err := redisconn.Get(ctx)
	if err != nil {
		logging.Warningf(ctx, "subject limiter: store unavailable for %q: %s", subject, err)
		return false
	}
	defer conn.Close()

	active, err := redis.Int(conn.Do("SCARD", subjectKey(subject)))
	if err != nil {
		logging.Warningf(ctx, "subject limiter: failed to check %q: %s", subject, err)
		return false
	}
	if active >= maxConcurrent {
		logging.Infof(ctx, "subject limiter: %q at capacity, %d/%d active tasks", subject, active, maxConcurrent)
		return false
	}
	return true
}

// Register atomically reserves a slot for member in the subject's active set.
// Returns false if the subject is already at the cap.
//
// The member must be unique per acquisition (the coordinator scopes it with
// the lock owner token), so a slot reclaimed by TTL and re-registered for the
// same artifact is not removable by the original holder's Unregister.
//
// The set carries a TTL so slots held by crashed generations are reclaimed
// even if Unregister is never called.
func Register(ctx context.Context, subject, member string, maxConcurrent int, ttl time.Duration) bool {
	conn, err := redisconn.Get(ctx)
	if err != nil {
		logging.Warningf(ctx, "subject limiter: store unavailable, not registering %q: %s", member, err)
		return false
	}
	defer conn.Close()

	ok, err := redis.Bool(registerScript.Do(conn, subjectKey(subject), member, maxConcurrent, int(ttl.Seconds())))
	if err != nil {
		logging.Warningf(ctx, "subject limiter: failed to register %q for %q: %s", member, subject, err)
		return false
	}
	return ok
}

// Unregister releases member's slot in the subject's active set.
//
// Idempotent: removing an absent member is not an error.
func Unregister(ctx context.Context, subject, member string) {
	conn, err := redisconn.Get(ctx)
	if err != nil {
		// The set TTL will reclaim the slot.
		logging.Warningf(ctx, "subject limiter: store unavailable, leaving %q to expire: %s", member, err)
		return
	}
	defer conn.Close()

	if _, err := conn.Do("SREM", subjectKey(subject), member); err != nil {
		logging.Warningf(ctx, "subject limiter: failed to unregister %q for %q: %s", member, subject, err)
	}
}

// ActiveTasks returns the members currently registered for the subject.
func ActiveTasks(ctx context.Context, subject string) []string {
	conn, err := redisconn.Get(ctx)
	if err != nil {
		return nil
	}
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("SMEMBERS", subjectKey(subject)))
	if err != nil {
		logging.Warningf(ctx, "subject limiter: failed to list tasks for %q: %s", subject, err)
		return nil
	}
	return ids
}
