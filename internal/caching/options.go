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
	"flag"
	"time"
)

// Options configures the report artifact cache.
type Options struct {
	// Enabled is a global switch. A disabled store keeps the same interface
	// but never hits Redis: Get always misses, writes succeed trivially.
	Enabled bool

	// ReportTTL is the expiration for committed report artifacts, the
	// intermediate class of entries. Permanent-class entries carry no TTL.
	ReportTTL time.Duration

	// StaleAge is the age at which a cached report is considered stale and
	// eligible for background regeneration. An entry exactly this old is
	// already stale.
	StaleAge time.Duration
}

// DefaultOptions returns Options with production defaults.
func DefaultOptions() Options {
	return Options{
		Enabled:   true,
		ReportTTL: 7 * 24 * time.Hour,
		StaleAge:  24 * time.Hour,
	}
}

// Register registers the options as CLI flags.
func (o *Options) Register(f *flag.FlagSet) {
	f.BoolVar(&o.Enabled, "report-cache-enabled", o.Enabled,
		"If set, cache computed report artifacts in Redis.")
	f.DurationVar(&o.ReportTTL, "report-cache-ttl", o.ReportTTL,
		"Expiration of committed report artifacts.")
	f.DurationVar(&o.StaleAge, "report-cache-stale-age", o.StaleAge,
		"Age at which a cached report is served stale and regenerated in the background.")
}
