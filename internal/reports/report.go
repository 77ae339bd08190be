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
	"time"
)

// PullRequest is a single pull request authored by the report's subject.
type PullRequest struct {
	Number            int       `json:"number"`
	Title             string    `json:"title"`
	Repository        string    `json:"repository"` // "owner/name"
	State             string    `json:"state"`      // "open" or "closed"
	Merged            bool      `json:"merged"`
	CreatedAt         time.Time `json:"created_at"`
	Additions         int       `json:"additions"`
	Deletions         int       `json:"deletions"`
	ChangedFiles      int       `json:"changed_files"`
	AuthorAssociation string    `json:"author_association,omitempty"`

	// Files are the paths of the files the pull request changed, used for
	// the report's language breakdown.
	Files []string `json:"files,omitempty"`

	// StarIncrease is the repository's star gain over the report window.
	// -1 means "more than 1000".
	StarIncrease int `json:"star_increase,omitempty"`

	// SizeCategory is filled in during report assembly.
	SizeCategory string `json:"size_category,omitempty"`
}

// DisplayState collapses the upstream state and merged flag into one of
// "merged", "open" or "closed".
func (pr *PullRequest) DisplayState() string {
	switch {
	case pr.Merged:
		return "merged"
	case pr.State == "open":
		return "open"
	default:
		return "closed"
	}
}

// RepoGroup is the subject's pull requests in one repository.
type RepoGroup struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Role is the subject's association with the repository, taken from
	// their most recent pull request in it.
	Role string `json:"role,omitempty"`

	// StarIncrease is the repository's star gain over the report window,
	// -1 meaning "more than 1000".
	StarIncrease int `json:"star_increase,omitempty"`

	PullRequests []PullRequest `json:"pull_requests"`
}

// SizeCount is one bucket of the report's size distribution.
type SizeCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Report is the computed artifact: a subject's contribution summary over a
// period. It is stored in the artifact cache as opaque JSON.
type Report struct {
	Subject string    `json:"subject"`
	Period  Period    `json:"period"`
	Since   time.Time `json:"since"`
	Until   time.Time `json:"until"`

	TotalPRs    int `json:"total_prs"`
	MergedCount int `json:"merged_count"`
	OpenCount   int `json:"open_count"`
	ClosedCount int `json:"closed_count"`
	RepoCount   int `json:"repo_count"`

	TotalAdditions    int `json:"total_additions"`
	TotalDeletions    int `json:"total_deletions"`
	TotalChangedFiles int `json:"total_changed_files"`

	// TotalStarIncrease is -1 if any repository gained more than 1000
	// stars. Only populated when the scope requested star data.
	TotalStarIncrease int `json:"total_star_increase,omitempty"`

	// SizeDistribution lists only the buckets that are populated, ordered
	// from One Liner to Massive.
	SizeDistribution []SizeCount `json:"size_distribution,omitempty"`

	// LanguageBreakdown lists the top languages across all changed files,
	// by file count, largest share first.
	LanguageBreakdown []LanguageShare `json:"language_breakdown,omitempty"`

	// Repositories are ordered per the scope's sort rules: by pull request
	// count for all_time reports, by star increase when star data was
	// requested, alphabetically otherwise.
	Repositories []RepoGroup `json:"repositories"`
}
