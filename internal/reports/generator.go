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
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
)

// Generator is the generation pipeline: it produces the report artifact for a
// subject and scope. Implementations may take minutes on large subjects; they
// are invoked asynchronously by the task coordinator.
type Generator interface {
	Generate(ctx context.Context, subject string, scope Scope) (*Report, error)
}

// PullRequestSource abstracts the upstream GitHub client. Rate limiting,
// pagination and authentication live behind this interface.
//
// Implementations must tag retryable failures (timeouts, upstream throttling)
// with transient.Tag. Untagged errors, such as authorization rejections, abort
// generation immediately with no retry.
type PullRequestSource interface {
	// CollectPullRequests returns the subject's pull requests created
	// within [since, until).
	CollectPullRequests(ctx context.Context, subject string, since, until time.Time, includeStarIncrease bool) ([]PullRequest, error)

	// RepositoryDescription returns the description of an "owner/name"
	// repository.
	RepositoryDescription(ctx context.Context, repo string) (string, error)
}

// descriptionFanout caps concurrent repository description fetches.
const descriptionFanout = 10

// Builder assembles reports from an upstream pull request source.
type Builder struct {
	Source PullRequestSource
}

// Generate implements Generator.
func (b *Builder) Generate(ctx context.Context, subject string, scope Scope) (*Report, error) {
	since, until := scope.Period.DateRange(clock.Now(ctx).UTC())
	logging.Infof(ctx, "generating report for %q from %s to %s",
		subject, since.Format("2006-01-02"), until.Format("2006-01-02"))

	var prs []PullRequest
	err := retry.Retry(ctx, transient.Only(retry.Default), func() (err error) {
		prs, err = b.Source.CollectPullRequests(ctx, subject, since, until, scope.ShowStarIncrease)
		return
	}, retry.LogCallback(ctx, "collect_pull_requests"))
	if err != nil {
		return nil, errors.Fmt("collecting pull requests for %q: %w", subject, err)
	}
	logging.Infof(ctx, "collected %d PRs for %q", len(prs), subject)

	if scope.ExcludeClosedUnmerged {
		kept := prs[:0]
		for _, pr := range prs {
			if pr.DisplayState() != "closed" {
				kept = append(kept, pr)
			}
		}
		prs = kept
	}

	r := &Report{
		Subject: subject,
		Period:  scope.Period,
		Since:   since,
		Until:   until,
	}
	byRepo := map[string][]PullRequest{}
	sizes := map[string]int{}
	for i := range prs {
		pr := &prs[i]
		pr.SizeCategory = SizeCategory(pr.Additions, pr.Deletions)

		r.TotalPRs++
		switch pr.DisplayState() {
		case "merged":
			r.MergedCount++
		case "open":
			r.OpenCount++
		default:
			r.ClosedCount++
		}
		r.TotalAdditions += pr.Additions
		r.TotalDeletions += pr.Deletions
		r.TotalChangedFiles += pr.ChangedFiles
		sizes[pr.SizeCategory]++
		byRepo[pr.Repository] = append(byRepo[pr.Repository], *pr)
	}
	for _, category := range sizeOrder {
		if n := sizes[category]; n > 0 {
			r.SizeDistribution = append(r.SizeDistribution, SizeCount{Category: category, Count: n})
		}
	}
	r.LanguageBreakdown = languageBreakdown(prs, languageTopN)
	if scope.ShowStarIncrease {
		r.TotalStarIncrease = totalStarIncrease(prs)
	}

	r.Repositories = groupRepositories(byRepo, scope)
	r.RepoCount = len(r.Repositories)
	b.fillDescriptions(ctx, r.Repositories)
	return r, nil
}

// totalStarIncrease sums star gains across all PRs' repositories. If any
// repository gained more than 1000 stars (reported as -1), the total is -1.
func totalStarIncrease(prs []PullRequest) int {
	total := 0
	for _, pr := range prs {
		if pr.StarIncrease == -1 {
			return -1
		}
		total += pr.StarIncrease
	}
	return total
}

// groupRepositories turns the per-repo PR lists into ordered groups.
//
// all_time reports sort by PR count, star-aware reports by star increase
// (with -1, "more than 1000", above everything), and everything else
// alphabetically.
func groupRepositories(byRepo map[string][]PullRequest, scope Scope) []RepoGroup {
	groups := make([]RepoGroup, 0, len(byRepo))
	for name, repoPRs := range byRepo {
		mostRecent := repoPRs[0]
		for _, pr := range repoPRs[1:] {
			if pr.CreatedAt.After(mostRecent.CreatedAt) {
				mostRecent = pr
			}
		}
		groups = append(groups, RepoGroup{
			Name:         name,
			Role:         mostRecent.AuthorAssociation,
			StarIncrease: repoPRs[0].StarIncrease,
			PullRequests: repoPRs,
		})
	}

	switch {
	case scope.Period == PeriodAllTime:
		sort.Slice(groups, func(i, j int) bool {
			if len(groups[i].PullRequests) != len(groups[j].PullRequests) {
				return len(groups[i].PullRequests) > len(groups[j].PullRequests)
			}
			return groups[i].Name < groups[j].Name
		})
	case scope.ShowStarIncrease:
		sortValue := func(g RepoGroup) int {
			if g.StarIncrease == -1 {
				return 1001
			}
			return g.StarIncrease
		}
		sort.Slice(groups, func(i, j int) bool {
			if sortValue(groups[i]) != sortValue(groups[j]) {
				return sortValue(groups[i]) > sortValue(groups[j])
			}
			return groups[i].Name < groups[j].Name
		})
	default:
		sort.Slice(groups, func(i, j int) bool {
			return groups[i].Name < groups[j].Name
		})
	}
	return groups
}

// fillDescriptions fetches repository descriptions with bounded parallelism.
// Descriptions are decorative, so individual failures are logged and skipped.
func (b *Builder) fillDescriptions(ctx context.Context, groups []RepoGroup) {
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(descriptionFanout)
	for i := range groups {
		eg.Go(func() error {
			desc, err := b.Source.RepositoryDescription(ectx, groups[i].Name)
			if err != nil {
				logging.Warningf(ctx, "failed to fetch description for %s: %s", groups[i].Name, err)
				return nil
			}
			groups[i].Description = desc
			return nil
		})
	}
	_ = eg.Wait()
}
