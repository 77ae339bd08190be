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

package reports

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/logging"

	"github.com/gitbrag/gitbrag/internal/caching"
)

// ProfileSource fetches subject profiles from the upstream API.
type ProfileSource interface {
	Profile(ctx context.Context, subject string) (json.RawMessage, error)
}

// ProfileCache serves subject profiles as permanent-class artifacts: entries
// never expire and never go stale by age. An authenticated request acts as the
// explicit refresh override once the cached profile is older than RefreshAge.
type ProfileCache struct {
	Store  *caching.Store
	Source ProfileSource

	// RefreshAge is how old a cached profile may get before an
	// authenticated request refreshes it. Defaults to one hour.
	RefreshAge time.Duration
}

func profileKey(subject string) string {
	return "profile:" + strings.ToLower(subject)
}

func (p *ProfileCache) refreshAge() time.Duration {
	if p.RefreshAge > 0 {
		return p.RefreshAge
	}
	return time.Hour
}

// Get returns the subject's profile, preferring the cache.
//
// Unauthenticated requests are served from cache only and return (nil, nil)
// on a miss. Authenticated requests fetch on a miss or when the cached copy
// is older than RefreshAge; if the fetch fails, the cached copy is served
// anyway.
func (p *ProfileCache) Get(ctx context.Context, subject string, authenticated bool) (json.RawMessage, error) {
	key := profileKey(subject)
	entry, err := p.Store.Get(ctx, key)
	if err != nil {
		logging.Warningf(ctx, "profile cache read for %q failed, treating as miss: %s", subject, err)
		entry = nil
	}

	now := clock.Now(ctx)
	if entry != nil && !(authenticated && entry.Age(now) >= p.refreshAge()) {
		return entry.Value, nil
	}
	if !authenticated {
		return nil, nil
	}

	profile, err := p.Source.Profile(ctx, subject)
	if err != nil {
		if entry != nil {
			logging.Warningf(ctx, "failed to refresh profile for %q, serving cached copy: %s", subject, err)
			return entry.Value, nil
		}
		return nil, err
	}
	if err := p.Store.Set(ctx, key, profile, now, 0); err != nil {
		logging.Warningf(ctx, "failed to cache profile for %q: %s", subject, err)
	}
	return profile, nil
}
