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
	"math"

	"github.com/coolultra1/osm-revert/internal/osmapi"
)

// Limits configures the safety thresholds of a revert.
type Limits struct {
	// Tiers maps a minimum account edit count to the number of changesets
	// that account may revert at once; the highest tier at or below the
	// account's edit count wins.
	Tiers map[int]int

	// ModeratorTiers is the tier table applied to moderator accounts.
	ModeratorTiers map[int]int

	// ModeratorRevertMinEdits is the edit count below which a
	// non-moderator may not revert a changeset authored by a moderator.
	ModeratorRevertMinEdits int
}

// DefaultLimits mirror the limits of the hosted revert service.
func DefaultLimits() Limits {
	return Limits{
		Tiers:                   map[int]int{0: 0, 50: 1, 500: 3},
		ModeratorTiers:          map[int]int{0: 10},
		ModeratorRevertMinEdits: 500,
	}
}

func (l Limits) tiers(user *osmapi.User) map[int]int {
	if user.IsModerator() {
		return l.ModeratorTiers
	}

	return l.Tiers
}

// ChangesetLimit is the number of changesets the account may revert at
// once.
func (l Limits) ChangesetLimit(user *osmapi.User) int {
	var limit int

	best := -1

	for edits, n := range l.tiers(user) {
		if edits <= user.Changesets && edits > best {
			best = edits
			limit = n
		}
	}

	return limit
}

// MinEdits is the smallest edit count with a non-zero changeset limit,
// used to tell locked-out accounts what they are missing.
func (l Limits) MinEdits(user *osmapi.User) int {
	minEdits := math.MaxInt

	for edits, n := range l.tiers(user) {
		if n > 0 && edits < minEdits {
			minEdits = edits
		}
	}

	if minEdits == math.MaxInt {
		return 0
	}

	return minEdits
}

// NextTier is the smallest edit count above the account's current count,
// if a higher tier exists.
func (l Limits) NextTier(user *osmapi.User) (int, bool) {
	next := math.MaxInt

	for edits := range l.tiers(user) {
		if edits > user.Changesets && edits < next {
			next = edits
		}
	}

	return next, next != math.MaxInt
}
