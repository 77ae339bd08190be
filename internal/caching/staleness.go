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

package caching

import (
	"time"
)

// Class describes the lifecycle of an artifact kind.
type Class int

const (
	// ClassIntermediate artifacts expire via TTL and go stale by age.
	ClassIntermediate Class = iota
	// ClassPermanent artifacts never expire and never go stale by age. They
	// are refreshed only through an explicit force override.
	ClassPermanent
)

// Freshness classifies a cache entry relative to the staleness threshold.
type Freshness int

const (
	// Missing means no entry exists.
	Missing Freshness = iota
	// Fresh means the entry is recent enough to serve as-is.
	Fresh
	// Stale means the entry is servable but due for regeneration.
	Stale
)

// String returns a human readable name, for logs.
func (f Freshness) String() string {
	switch f {
	case Missing:
		return "missing"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Classify reports whether the entry is Fresh, Stale or Missing at the given
// time.
//
// The threshold boundary is inclusive: an entry aged exactly `threshold` is
// already Stale. Permanent-class entries are never Stale by age.
func Classify(e *Entry, now time.Time, threshold time.Duration, class Class) Freshness {
	if e == nil {
		return Missing
	}
	if class == ClassPermanent {
		return Fresh
	}
	if e.Age(now) >= threshold {
		return Stale
	}
	return Fresh
}
