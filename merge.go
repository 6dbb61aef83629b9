// Copyright 2023-25 the original author or authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package revert

import (
	"cmp"
	"slices"

	"github.com/coolultra1/osm-revert/model"
)

// MergeDiffs combines per-changeset diffs into one newest-edit-first
// sequence per element type. Entries are never deduplicated: an element
// edited by two targeted changesets keeps both entries, in time order. The
// inversion engine depends on this ordering to walk each element's
// targeted history from newest to oldest.
func MergeDiffs(diffs []model.ChangesetDiff) model.ChangesetDiff {
	merged := model.ChangesetDiff{}

	for _, diff := range diffs {
		for t, entries := range diff {
			merged[t] = append(merged[t], entries...)
		}
	}

	for t := range merged {
		slices.SortStableFunc(merged[t], func(a, b model.DiffEntry) int {
			if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
				return c
			}

			if c := cmp.Compare(b.Changeset, a.Changeset); c != 0 {
				return c
			}

			return cmp.Compare(b.Version(), a.Version())
		})
	}

	return merged
}
