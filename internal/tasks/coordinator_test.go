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
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/gitbrag/gitbrag/internal/caching"
	"github.com/gitbrag/gitbrag/internal/reports"
)

// fakeGenerator counts invocations and can be gated or made to fail.
type fakeGenerator struct {
	m     sync.Mutex
	calls int
	err   error
	gate  chan struct{} // if non-nil, Generate blocks until it is closed
}

func (g *fakeGenerator) Generate(ctx context.Context, subject string, scope reports.Scope) (*reports.Report, error) {
	g.m.Lock()
	g.calls++
	gate, err := g.gate, g.err
	g.m.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &reports.Report{Subject: subject, Period: scope.Period, TotalPRs: 5}, nil
}

func (g *fakeGenerator) count() int {
	g.m.Lock()
	defer g.m.Unlock()
	return g.calls
}

func TestCoordinator(t *testing.T) {
	t.Parallel()

	scopeA := reports.Scope{Period: reports.Period1Year}
	scopeB := reports.Scope{Period: reports.Period2Years}

	ftt.Run("Coordinator", t, func(t *ftt.Test) {
		ctx, s, tc := redisContext(t)
		store := caching.NewStore(caching.DefaultOptions())
		gen := &fakeGenerator{}
		coord := New(store, gen, DefaultOptions())

		seed := func(subject string, scope reports.Scope, age time.Duration, totalPRs int) string {
			key := artifactKey(reports.Key(subject, scope))
			blob, err := json.Marshal(&reports.Report{Subject: subject, Period: scope.Period, TotalPRs: totalPRs})
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, store.Set(ctx, key, blob, tc.Now().Add(-age), store.Options().ReportTTL), should.BeNil)
			return key
		}

		t.Run("missing artifact schedules generation", func(t *ftt.Test) {
			// Scenario A.
			report, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.Loosely(t, report, should.BeNil)
			assert.That(t, status, should.Equal(StatusPendingRefreshing))

			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(1))

			report, status = coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusFresh))
			assert.Loosely(t, report, should.NotBeNil)
			assert.Loosely(t, report.TotalPRs, should.Equal(5))
		})

		t.Run("fresh artifact is served without lock interaction", func(t *ftt.Test) {
			seed("alice", scopeA, time.Hour, 3)
			report, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusFresh))
			assert.Loosely(t, report.TotalPRs, should.Equal(3))
			assert.Loosely(t, gen.count(), should.BeZero)
		})

		t.Run("stale artifact is served while regenerating once", func(t *ftt.Test) {
			// Scenario B: 25h old entry with a 24h staleness threshold.
			seed("alice", scopeA, 25*time.Hour, 3)
			gen.gate = make(chan struct{})

			report, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			assert.Loosely(t, report.TotalPRs, should.Equal(3))

			// A second request within the lock window does not schedule
			// another generation.
			report, status = coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			assert.Loosely(t, report.TotalPRs, should.Equal(3))

			close(gen.gate)
			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(1))

			report, status = coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusFresh))
			assert.Loosely(t, report.TotalPRs, should.Equal(5))
		})

		t.Run("boundary age counts as stale", func(t *ftt.Test) {
			seed("alice", scopeA, store.Options().StaleAge, 3)
			_, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			coord.Drain()
		})

		t.Run("concurrent callers trigger exactly one generation", func(t *ftt.Test) {
			const callers = 16
			gen.gate = make(chan struct{})
			var wg sync.WaitGroup
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					coord.Resolve(ctx, "alice", scopeA, false)
				}()
			}
			wg.Wait()
			close(gen.gate)
			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(1))
		})

		t.Run("force refresh bypasses freshness but not dedup", func(t *ftt.Test) {
			seed("alice", scopeA, time.Minute, 3)
			gen.gate = make(chan struct{})

			report, status := coord.Resolve(ctx, "alice", scopeA, true)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			assert.Loosely(t, report.TotalPRs, should.Equal(3))

			// A simultaneous forced request joins the in-flight task.
			report, status = coord.Resolve(ctx, "alice", scopeA, true)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			assert.Loosely(t, report.TotalPRs, should.Equal(3))

			close(gen.gate)
			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(1))
		})

		t.Run("subject concurrency cap", func(t *ftt.Test) {
			// Scenario C: scope B is rate limited while scope A of the
			// same subject is generating.
			gen.gate = make(chan struct{})
			_, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusPendingRefreshing))

			report, status := coord.Resolve(ctx, "alice", scopeB, false)
			assert.Loosely(t, report, should.BeNil)
			assert.That(t, status, should.Equal(StatusRateLimited))
			assert.Loosely(t, gen.count(), should.Equal(1))

			close(gen.gate)
			coord.Drain()

			_, status = coord.Resolve(ctx, "alice", scopeB, false)
			assert.That(t, status, should.Equal(StatusPendingRefreshing))
			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(2))
		})

		t.Run("distinct subjects do not block each other", func(t *ftt.Test) {
			gen.gate = make(chan struct{})
			_, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusPendingRefreshing))

			_, status = coord.Resolve(ctx, "bob", scopeA, false)
			assert.That(t, status, should.Equal(StatusPendingRefreshing))
			assert.Loosely(t, gen.count(), should.Equal(2))

			close(gen.gate)
			coord.Drain()
		})

		t.Run("failed generation leaves the cache untouched and unlocks", func(t *ftt.Test) {
			key := seed("alice", scopeA, 25*time.Hour, 3)
			before, err := s.Get(key)
			assert.Loosely(t, err, should.BeNil)
			gen.err = errors.New("authorization rejected")

			report, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			assert.Loosely(t, report.TotalPRs, should.Equal(3))
			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(1))

			// The stale entry is byte-for-byte unchanged.
			after, err := s.Get(key)
			assert.Loosely(t, err, should.BeNil)
			assert.That(t, after, should.Equal(before))

			// Lock and subject slot were released immediately.
			assert.Loosely(t, LockActive(ctx, reports.Key("alice", scopeA)), should.BeFalse)
			assert.Loosely(t, ActiveTasks(ctx, "alice"), should.BeEmpty)

			// The next caller may try again.
			_, status = coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(2))
		})

		t.Run("an expired lock lets a new caller take over", func(t *ftt.Test) {
			seed("alice", scopeA, 25*time.Hour, 3)
			gen.gate = make(chan struct{})

			_, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))

			// The first generation overruns its lock TTL.
			s.FastForward(coord.opts.LockTTL)
			tc.Add(coord.opts.LockTTL)

			_, status = coord.Resolve(ctx, "alice", scopeA, false)
			assert.That(t, status, should.Equal(StatusStaleRefreshing))
			assert.Loosely(t, gen.count(), should.Equal(2))

			close(gen.gate)
			coord.Drain()
		})

		t.Run("unreachable store schedules nothing", func(t *ftt.Test) {
			s.Close()
			report, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.Loosely(t, report, should.BeNil)
			assert.That(t, status, should.Equal(StatusRateLimited))
			coord.Drain()
			assert.Loosely(t, gen.count(), should.BeZero)
		})

		t.Run("undecodable cached payload is regenerated", func(t *ftt.Test) {
			key := artifactKey(reports.Key("alice", scopeA))
			assert.Loosely(t, store.Set(ctx, key, json.RawMessage(`"not a report"`), tc.Now(), 0), should.BeNil)

			report, status := coord.Resolve(ctx, "alice", scopeA, false)
			assert.Loosely(t, report, should.BeNil)
			assert.That(t, status, should.Equal(StatusPendingRefreshing))
			coord.Drain()
			assert.Loosely(t, gen.count(), should.Equal(1))
		})
	})
}
