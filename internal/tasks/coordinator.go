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
	"flag"
	"sync"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/logging"

	"github.com/gitbrag/gitbrag/internal/caching"
	"github.com/gitbrag/gitbrag/internal/reports"
)

// Status tells the caller how the returned report relates to the cache.
type Status string

// Resolve statuses.
const (
	// StatusFresh: the cached report is recent enough to serve as-is.
	StatusFresh Status = "fresh"
	// StatusStaleRefreshing: a stale report is served while a background
	// regeneration is in flight or was just scheduled.
	StatusStaleRefreshing Status = "stale_refreshing"
	// StatusPendingRefreshing: nothing cached yet; a generation is in
	// flight or was just scheduled.
	StatusPendingRefreshing Status = "pending_refreshing"
	// StatusRateLimited: nothing was scheduled because the subject is at
	// its concurrency cap.
	StatusRateLimited Status = "rate_limited"
)

// Options configures the coordinator.
type Options struct {
	// LockTTL bounds how long a regeneration may hold its task lock. If a
	// generation outlives it, a second one may legitimately start; the
	// cache commit stays safe because writes never move created_at
	// backwards.
	LockTTL time.Duration

	// MaxTasksPerSubject caps simultaneous regenerations per subject,
	// regardless of scope.
	MaxTasksPerSubject int
}

// DefaultOptions returns Options with production defaults.
func DefaultOptions() Options {
	return Options{
		LockTTL:            5 * time.Minute,
		MaxTasksPerSubject: 1,
	}
}

// Register registers the options as CLI flags.
func (o *Options) Register(f *flag.FlagSet) {
	f.DurationVar(&o.LockTTL, "task-lock-ttl", o.LockTTL,
		"TTL of the per-artifact regeneration lock.")
	f.IntVar(&o.MaxTasksPerSubject, "max-tasks-per-subject", o.MaxTasksPerSubject,
		"Max simultaneous report generations per reported subject.")
}

func artifactKey(key string) string {
	return "artifact:" + key
}

// Coordinator decides whether to serve a cached report as-is or to serve the
// best available data while regenerating it in the background.
//
// Request handling never waits for generation: Resolve always returns
// immediately with whatever is cached (possibly nothing) plus a Status.
type Coordinator struct {
	store *caching.Store
	gen   reports.Generator
	opts  Options

	wg sync.WaitGroup
}

// New returns a Coordinator writing through the given store and generating
// reports with the given pipeline.
func New(store *caching.Store, gen reports.Generator, opts Options) *Coordinator {
	return &Coordinator{store: store, gen: gen, opts: opts}
}

// Resolve returns the best available report for the subject and scope.
//
// A fresh cache entry is returned as-is. Otherwise Resolve schedules a
// background regeneration (unless one is already in flight for this artifact,
// or the subject is at its concurrency cap) and returns the stale entry, or
// nil if there is none, with a status saying so.
//
// With force set, a fresh entry is treated as stale: it is still returned,
// but a regeneration is scheduled. Forced requests go through the same
// deduplication and rate limiting as everything else.
//
// Background generation failures are never surfaced here; they are logged and
// the previously cached entry stays authoritative.
func (c *Coordinator) Resolve(ctx context.Context, subject string, scope reports.Scope, force bool) (*reports.Report, Status) {
	key := reports.Key(subject, scope)

	entry, err := c.store.Get(ctx, artifactKey(key))
	if err != nil {
		// An unreachable store is a miss, not evidence of staleness.
		logging.Warningf(ctx, "report cache read for %q failed, treating as miss: %s", key, err)
		entry = nil
	}
	var report *reports.Report
	if entry != nil {
		report = &reports.Report{}
		if err := json.Unmarshal(entry.Value, report); err != nil {
			logging.Warningf(ctx, "undecodable report %q, treating as miss: %s", key, err)
			entry, report = nil, nil
		}
	}

	cls := caching.Classify(entry, clock.Now(ctx), c.store.Options().StaleAge, caching.ClassIntermediate)
	if force && cls == caching.Fresh {
		cls = caching.Stale
	}
	if cls == caching.Fresh {
		return report, StatusFresh
	}

	served := StatusPendingRefreshing
	if report != nil {
		served = StatusStaleRefreshing
	}

	if LockActive(ctx, key) {
		// Someone is already regenerating this artifact.
		return report, served
	}
	if !CanStart(ctx, subject, c.opts.MaxTasksPerSubject) {
		return report, StatusRateLimited
	}
	owner, ok := AcquireLock(ctx, key, c.opts.LockTTL)
	if !ok {
		// Lost the race to a concurrent caller.
		return report, served
	}
	if !Register(ctx, subject, key+"/"+owner, c.opts.MaxTasksPerSubject, c.opts.LockTTL) {
		// A task for another scope of this subject won the last slot
		// between the CanStart check and now.
		ReleaseLock(ctx, key, owner)
		return report, StatusRateLimited
	}

	c.schedule(ctx, subject, scope, key, owner)
	return report, served
}

// schedule runs the generation pipeline on its own goroutine. The caller's
// response does not wait for it.
func (c *Coordinator) schedule(ctx context.Context, subject string, scope reports.Scope, key, owner string) {
	// The generation must outlive the request that triggered it.
	ctx = context.WithoutCancel(ctx)
	logging.Infof(ctx, "scheduled background generation of %q", key)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// Cleanup must run on every exit path, panics included, or the
		// artifact stays locked until the TTL reclaims it. The owner
		// token scopes both releases to this acquisition: if the lock
		// TTL elapsed and a successor took over, its lock and slot
		// stay intact.
		defer func() {
			if p := recover(); p != nil {
				logging.Errorf(ctx, "generation of %q panicked: %s", key, p)
			}
			ReleaseLock(ctx, key, owner)
			Unregister(ctx, subject, key+"/"+owner)
		}()
		c.generate(ctx, subject, scope, key)
	}()
}

func (c *Coordinator) generate(ctx context.Context, subject string, scope reports.Scope, key string) {
	report, err := c.gen.Generate(ctx, subject, scope)
	if err != nil {
		// The stale entry, if any, stays authoritative.
		logging.Errorf(ctx, "background generation of %q failed: %s", key, err)
		return
	}
	blob, err := json.Marshal(report)
	if err != nil {
		logging.Errorf(ctx, "serializing report %q: %s", key, err)
		return
	}
	if err := c.store.Set(ctx, artifactKey(key), blob, clock.Now(ctx), c.store.Options().ReportTTL); err != nil {
		logging.Errorf(ctx, "committing report %q: %s", key, err)
		return
	}
	logging.Infof(ctx, "committed regenerated report %q", key)
}

// Drain blocks until all scheduled generations have finished. Call on
// shutdown (and from tests).
func (c *Coordinator) Drain() {
	c.wg.Wait()
}
