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

// sizeOrder lists the size categories from smallest to largest.
var sizeOrder = []string{"One Liner", "Small", "Medium", "Large", "Huge", "Massive"}

// SizeCategory buckets a pull request by total lines changed.
func SizeCategory(additions, deletions int) string {
	switch total := additions + deletions; {
	case total <= 1:
		return "One Liner"
	case total <= 100:
		return "Small"
	case total <= 500:
		return "Medium"
	case total <= 1500:
		return "Large"
	case total <= 5000:
		return "Huge"
	default:
		return "Massive"
	}
}
