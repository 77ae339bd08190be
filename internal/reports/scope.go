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
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// Scope identifies which slice of a subject's activity a report covers.
// Distinct scopes produce distinct artifacts.
type Scope struct {
	Period                Period `json:"period"`
	ShowStarIncrease      bool   `json:"show_star_increase"`
	ExcludeClosedUnmerged bool   `json:"exclude_closed_unmerged"`
}

// paramsHash is a short stable hash of the scope's option parameters.
func (s Scope) paramsHash() string {
	// Maps marshal with sorted keys, which keeps the hash stable if
	// parameters are added later.
	blob, err := json.Marshal(map[string]bool{
		"show_star_increase":      s.ShowStarIncrease,
		"exclude_closed_unmerged": s.ExcludeClosedUnmerged,
	})
	if err != nil {
		panic(err) // a map of bools always marshals
	}
	return fmt.Sprintf("%x", sha256.Sum256(blob))[:8]
}

// Key returns the stable artifact key for a subject and scope.
//
// The subject is lowercased so differently-cased requests share one artifact,
// matching the upstream API's case-insensitive account names.
func Key(subject string, s Scope) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToLower(subject), s.Period, s.paramsHash())
}
