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

// Package reports defines contribution report artifacts, their stable cache
// keys, and the pipeline that generates them from upstream pull request data.
package reports

import (
	"strings"
	"time"
)

// Period is the time window a report covers.
type Period string

// Recognized report periods.
const (
	Period1Year   Period = "1_year"
	Period2Years  Period = "2_years"
	Period5Years  Period = "5_years"
	PeriodAllTime Period = "all_time"
)

// githubEpoch is the earliest date worth querying: GitHub launched in 2008.
var githubEpoch = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

// NormalizePeriod maps arbitrary user input to a recognized Period, defaulting
// to one year.
func NormalizePeriod(s string) Period {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Period1Year, Period2Years, Period5Years, PeriodAllTime:
		return p
	default:
		return Period1Year
	}
}

// DateRange returns the [since, until) window the period covers, ending at
// the given time.
func (p Period) DateRange(until time.Time) (since, _ time.Time) {
	switch p {
	case Period2Years:
		since = until.AddDate(0, 0, -730)
	case Period5Years:
		since = until.AddDate(0, 0, -1825)
	case PeriodAllTime:
		since = githubEpoch
	default:
		since = until.AddDate(0, 0, -365)
	}
	return since, until
}
