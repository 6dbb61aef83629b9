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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolultra1/osm-revert/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func entryAt(id model.ID, ts time.Time, changeset, version int64) model.DiffEntry {
	ref := model.ElementRef{Type: model.NODE, ID: id}

	return model.DiffEntry{
		Ref:       ref,
		Old:       &model.ElementVersion{Ref: ref, Version: version - 1, Visible: true},
		New:       &model.ElementVersion{Ref: ref, Version: version, Visible: true, Changeset: changeset},
		Timestamp: ts,
		Changeset: changeset,
	}
}

func TestMergeDiffsNewestFirst(t *testing.T) {
	a := model.ChangesetDiff{
		model.NODE: {
			entryAt(1, t0, 100, 2),
			entryAt(2, t0.Add(2*time.Minute), 100, 5),
		},
	}
	b := model.ChangesetDiff{
		model.NODE: {
			entryAt(1, t0.Add(time.Minute), 101, 3),
		},
	}

	merged := MergeDiffs([]model.ChangesetDiff{a, b})
	entries := merged[model.NODE]
	require.Len(t, entries, 3)

	for i := 0; i+1 < len(entries); i++ {
		assert.False(t, entries[i].Timestamp.Before(entries[i+1].Timestamp),
			"entries must be non-increasing in timestamp")
	}

	assert.Equal(t, model.ID(2), entries[0].Ref.ID)
	assert.Equal(t, int64(101), entries[1].Changeset)
	assert.Equal(t, int64(100), entries[2].Changeset)
}

func TestMergeDiffsTieBreaks(t *testing.T) {
	// identical timestamps: descending changeset id, then version
	diff := model.ChangesetDiff{
		model.WAY: {
			{Ref: model.ElementRef{Type: model.WAY, ID: 1}, Timestamp: t0, Changeset: 100,
				New: &model.ElementVersion{Version: 1, Visible: true}},
			{Ref: model.ElementRef{Type: model.WAY, ID: 1}, Timestamp: t0, Changeset: 102,
				New: &model.ElementVersion{Version: 3, Visible: true}},
			{Ref: model.ElementRef{Type: model.WAY, ID: 1}, Timestamp: t0, Changeset: 102,
				New: &model.ElementVersion{Version: 2, Visible: true}},
		},
	}

	merged := MergeDiffs([]model.ChangesetDiff{diff})
	entries := merged[model.WAY]
	require.Len(t, entries, 3)

	assert.Equal(t, int64(102), entries[0].Changeset)
	assert.Equal(t, int64(3), entries[0].Version())
	assert.Equal(t, int64(2), entries[1].Version())
	assert.Equal(t, int64(100), entries[2].Changeset)
}

func TestMergeDiffsKeepsDuplicates(t *testing.T) {
	// the same element edited by two targeted changesets keeps both entries
	a := model.ChangesetDiff{model.NODE: {entryAt(1, t0, 100, 2)}}
	b := model.ChangesetDiff{model.NODE: {entryAt(1, t0.Add(time.Hour), 101, 3)}}

	merged := MergeDiffs([]model.ChangesetDiff{a, b})
	assert.Len(t, merged[model.NODE], 2)
}
