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
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"

	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"go.chromium.org/luci/server/redisconn"

	"github.com/gitbrag/gitbrag/internal/caching"
)

type fakeProfileSource struct {
	m       sync.Mutex
	fetches int
	err     error
	profile json.RawMessage
}

func (s *fakeProfileSource) Profile(ctx context.Context, subject string) (json.RawMessage, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func (s *fakeProfileSource) count() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.fetches
}

func TestProfileCache(t *testing.T) {
	t.Parallel()

	ftt.Run("ProfileCache", t, func(t *ftt.Test) {
		s, err := miniredis.Run()
		assert.Loosely(t, err, should.BeNil)
		defer s.Close()
		ctx := redisconn.UsePool(context.Background(), &redis.Pool{
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", s.Addr())
			},
		})
		ctx, tc := testclock.UseTime(ctx, testTime)

		src := &fakeProfileSource{profile: json.RawMessage(`{"login":"alice"}`)}
		cache := &ProfileCache{
			Store:  caching.NewStore(caching.DefaultOptions()),
			Source: src,
		}

		t.Run("unauthenticated miss returns nothing", func(t *ftt.Test) {
			profile, err := cache.Get(ctx, "alice", false)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, profile, should.BeNil)
			assert.Loosely(t, src.count(), should.BeZero)
		})

		t.Run("authenticated miss fetches and caches permanently", func(t *ftt.Test) {
			profile, err := cache.Get(ctx, "alice", true)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, string(profile), should.Equal(`{"login":"alice"}`))
			assert.Loosely(t, src.count(), should.Equal(1))

			// Now cached for unauthenticated callers too, indefinitely.
			s.FastForward(90 * 24 * time.Hour)
			profile, err = cache.Get(ctx, "alice", false)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, string(profile), should.Equal(`{"login":"alice"}`))
			assert.Loosely(t, src.count(), should.Equal(1))
		})

		t.Run("authenticated requests refresh old profiles", func(t *ftt.Test) {
			_, err := cache.Get(ctx, "alice", true)
			assert.Loosely(t, err, should.BeNil)

			// Within the refresh age: served from cache.
			tc.Add(30 * time.Minute)
			_, err = cache.Get(ctx, "alice", true)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, src.count(), should.Equal(1))

			// Beyond it: refetched.
			tc.Add(31 * time.Minute)
			_, err = cache.Get(ctx, "alice", true)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, src.count(), should.Equal(2))
		})

		t.Run("serves the cached copy when a refresh fails", func(t *ftt.Test) {
			_, err := cache.Get(ctx, "alice", true)
			assert.Loosely(t, err, should.BeNil)

			src.err = errors.New("boom")
			tc.Add(2 * time.Hour)
			profile, err := cache.Get(ctx, "alice", true)
			assert.Loosely(t, err, should.BeNil)
			assert.Loosely(t, string(profile), should.Equal(`{"login":"alice"}`))
		})

		t.Run("fetch failure with no cache is an error", func(t *ftt.Test) {
			src.err = errors.New("boom")
			_, err := cache.Get(ctx, "alice", true)
			assert.Loosely(t, err, should.ErrLike("boom"))
		})
	})
}
