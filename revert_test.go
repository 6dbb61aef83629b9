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
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolultra1/osm-revert/internal/filter"
	"github.com/coolultra1/osm-revert/internal/osmapi"
	"github.com/coolultra1/osm-revert/model"
)

type fakeAPI struct {
	user       *osmapi.User
	users      map[int64]*osmapi.User
	changesets map[int64]*model.Changeset
	maxSize    int

	uploadErr       error
	uploadedInv     model.Inversion
	uploadedComment string
	uploadedTags    map[string]string
	comments        map[int64][]string
}

func (f *fakeAPI) Changeset(_ context.Context, id int64) (*model.Changeset, error) {
	cs, ok := f.changesets[id]
	if !ok {
		return nil, fmt.Errorf("changeset %d: %w", id, osmapi.ErrNotFound)
	}

	return cs, nil
}

func (f *fakeAPI) User(_ context.Context, uid int64) (*osmapi.User, error) {
	return f.users[uid], nil
}

func (f *fakeAPI) AuthorizedUser(context.Context) (*osmapi.User, error) {
	if f.user == nil {
		return nil, errors.New("unauthorized")
	}

	return f.user, nil
}

func (f *fakeAPI) ChangesetMaxSize(context.Context) (int, error) {
	if f.maxSize == 0 {
		return 10000, nil
	}

	return f.maxSize, nil
}

func (f *fakeAPI) UploadDiff(_ context.Context, inv model.Inversion, comment string, tags map[string]string) (int64, error) {
	if f.uploadErr != nil {
		return 0, f.uploadErr
	}

	f.uploadedInv = inv
	f.uploadedComment = comment
	f.uploadedTags = tags

	return 999, nil
}

func (f *fakeAPI) PostDiscussionComment(_ context.Context, changesetID int64, text string) (string, error) {
	if f.comments == nil {
		f.comments = map[int64][]string{}
	}

	f.comments[changesetID] = append(f.comments[changesetID], text)

	return "OK", nil
}

type fakeHistory struct {
	diffs    map[int64]model.ChangesetDiff
	warnings []model.Warning
	parents  []*model.ElementVersion

	historyErr  error
	parentsErr  error
	parentCalls [][]model.ElementRef
}

func (f *fakeHistory) ChangesetElementsHistory(_ context.Context, cs *model.Changeset,
	_ *filter.IDSet, _ *model.BoundingBox, _ string,
) (model.ChangesetDiff, []model.Warning, error) {
	if f.historyErr != nil {
		return nil, nil, f.historyErr
	}

	return f.diffs[cs.ID], f.warnings, nil
}

func (f *fakeHistory) Parents(_ context.Context, refs []model.ElementRef) ([]*model.ElementVersion, error) {
	if f.parentsErr != nil {
		return nil, f.parentsErr
	}

	f.parentCalls = append(f.parentCalls, refs)

	return f.parents, nil
}

func closedChangeset(id, uid int64, elements map[model.ElementType]model.ElementIDs) *model.Changeset {
	return &model.Changeset{
		ID:        id,
		UID:       uid,
		User:      "somebody",
		CreatedAt: t0,
		ClosedAt:  t0.Add(time.Minute),
		Elements:  elements,
	}
}

// singleNodeFixture wires one closed changeset that modified node 1.
func singleNodeFixture() (*fakeAPI, *fakeHistory) {
	api := &fakeAPI{
		user: &osmapi.User{ID: 5000, DisplayName: "reverter", Changesets: 600},
		changesets: map[int64]*model.Changeset{
			100: closedChangeset(100, 42, map[model.ElementType]model.ElementIDs{
				model.NODE: {Modified: []model.ID{1}},
			}),
		},
	}

	history := &fakeHistory{
		diffs: map[int64]model.ChangesetDiff{
			100: {
				model.NODE: {{
					Ref:       model.ElementRef{Type: model.NODE, ID: 1},
					Old:       nodeVersion(1, 1, map[string]string{"name": "alpha"}, 1, 1),
					New:       nodeVersion(1, 2, map[string]string{"name": "beta"}, 1, 1),
					Timestamp: t0,
					Changeset: 100,
				}},
			},
		},
	}

	return api, history
}

func TestRunUploads(t *testing.T) {
	api, history := singleNodeFixture()
	r := New(api, history)

	result, err := r.Run(context.Background(), Request{
		Changesets: []int64{100},
		Comment:    "undo vandalism",
	})
	require.NoError(t, err)

	assert.Equal(t, UPLOADED, result.Outcome)
	assert.Equal(t, int64(999), result.ChangesetID)
	assert.Equal(t, model.Statistics{Modifies: 1}, result.Statistics)
	assert.Empty(t, result.Warnings)

	require.Len(t, api.uploadedInv[model.NODE], 1)
	assert.Equal(t, "alpha", api.uploadedInv[model.NODE][0].Tags["name"])
	assert.Equal(t, "undo vandalism", api.uploadedComment)

	assert.Equal(t, "https://www.openstreetmap.org/changeset/100", api.uploadedTags["id"])
	assert.Equal(t, "601", api.uploadedTags["changesets_count"])
	assert.Equal(t, "1", api.uploadedTags["revert:modify"])
}

func TestRunOfflineBuildsDocument(t *testing.T) {
	api, history := singleNodeFixture()
	r := New(api, history)

	result, err := r.Run(context.Background(), Request{
		Changesets: []int64{100},
		Comment:    "undo vandalism",
		Offline:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, DOCUMENT, result.Outcome)
	require.NotNil(t, result.Change)
	assert.Equal(t, 1, result.Change.Size())
	assert.Nil(t, api.uploadedInv, "offline runs never upload")
}

func TestRunNothingToRevert(t *testing.T) {
	api, history := singleNodeFixture()

	// the edit was already undone by hand
	entry := history.diffs[100][model.NODE][0]
	entry.New = nodeVersion(1, 2, map[string]string{"name": "alpha"}, 1, 1)
	history.diffs[100][model.NODE][0] = entry

	r := New(api, history)

	result, err := r.Run(context.Background(), Request{
		Changesets: []int64{100},
		Comment:    "undo vandalism",
	})
	require.NoError(t, err)

	assert.Equal(t, NOTHING, result.Outcome)
	assert.Nil(t, api.uploadedInv)
}

func TestRunValidation(t *testing.T) {
	api, history := singleNodeFixture()
	r := New(api, history)

	for name, req := range map[string]Request{
		"no changesets":      {Comment: "x"},
		"negative id":        {Changesets: []int64{-1}, Comment: "x"},
		"missing comment":    {Changesets: []int64{100}},
		"short discussion":   {Changesets: []int64{100}, Comment: "x", Discussion: "ok"},
		"bad target":         {Changesets: []int64{100}, Comment: "x", DiscussionTarget: "loudest"},
		"bad element filter": {Changesets: []int64{100}, Comment: "x", ElementFilter: "x999"},
		"bad query filter":   {Changesets: []int64{100}, Comment: "x", QueryFilter: "[amenity=bench];"},
	} {
		_, err := r.Run(context.Background(), req)

		var inputErr *InputValidationError

		assert.ErrorAs(t, err, &inputErr, "case %q", name)
	}
}

func TestRunOpenChangesetRejected(t *testing.T) {
	api, history := singleNodeFixture()
	api.changesets[100].Open = true

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})

	var inputErr *InputValidationError

	require.ErrorAs(t, err, &inputErr)
	assert.Contains(t, inputErr.Reason, "still open")
}

func TestRunBatchPolicy(t *testing.T) {
	api, history := singleNodeFixture()

	// 60 edits puts the account in the one-changeset tier
	api.user.Changesets = 60

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{Changesets: []int64{100, 101}, Comment: "x"})

	var policyErr *PolicyError

	require.ErrorAs(t, err, &policyErr)
	assert.Contains(t, policyErr.Reason, "up to 1 changesets")
	assert.Contains(t, policyErr.Reason, "at least 500 edits")
}

func TestRunNewAccountLockedOut(t *testing.T) {
	api, history := singleNodeFixture()
	api.user.Changesets = 10

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})

	var policyErr *PolicyError

	require.ErrorAs(t, err, &policyErr)
	assert.Contains(t, policyErr.Reason, "at least 50 edits")
}

func TestRunModeratorAuthorProtected(t *testing.T) {
	api, history := singleNodeFixture()
	api.user.Changesets = 100
	api.users = map[int64]*osmapi.User{
		42: {ID: 42, DisplayName: "dwg", Roles: []string{"moderator"}, Changesets: 12000},
	}

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})

	var policyErr *PolicyError

	require.ErrorAs(t, err, &policyErr)
	assert.Contains(t, policyErr.Reason, "moderator changesets")
}

func TestRunModeratorAuthorAllowedForExperiencedUser(t *testing.T) {
	// with enough edits of our own the author check is skipped entirely
	api, history := singleNodeFixture()
	api.user.Changesets = 600
	api.users = map[int64]*osmapi.User{
		42: {ID: 42, Roles: []string{"moderator"}},
	}

	r := New(api, history)

	result, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})
	require.NoError(t, err)
	assert.Equal(t, UPLOADED, result.Outcome)
}

func TestRunDataConsistency(t *testing.T) {
	api, history := singleNodeFixture()

	// the changeset claims fewer elements than the history diff returned
	history.diffs[100][model.NODE] = append(history.diffs[100][model.NODE], model.DiffEntry{
		Ref:       model.ElementRef{Type: model.NODE, ID: 2},
		Old:       nodeVersion(2, 1, nil, 1, 1),
		New:       nodeVersion(2, 2, nil, 2, 2),
		Timestamp: t0,
		Changeset: 100,
	})

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})

	var consistencyErr *DataConsistencyError

	require.ErrorAs(t, err, &consistencyErr)
	assert.Equal(t, int64(100), consistencyErr.Changeset)
	assert.Equal(t, 2, consistencyErr.DiffSize)
	assert.Equal(t, 1, consistencyErr.DeclaredSize)
}

func TestRunTooBig(t *testing.T) {
	api, history := singleNodeFixture()
	api.maxSize = 1

	history.diffs[100][model.NODE] = append(history.diffs[100][model.NODE], model.DiffEntry{
		Ref:       model.ElementRef{Type: model.NODE, ID: 2},
		Old:       nodeVersion(2, 1, map[string]string{"name": "a"}, 1, 1),
		New:       nodeVersion(2, 2, map[string]string{"name": "b"}, 1, 1),
		Timestamp: t0,
		Changeset: 100,
	})
	api.changesets[100].Elements[model.NODE] = model.ElementIDs{Modified: []model.ID{1, 2}}

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})

	var policyErr *PolicyError

	require.ErrorAs(t, err, &policyErr)
	assert.Contains(t, policyErr.Reason, "too big")
}

func TestRunDiscussion(t *testing.T) {
	api, history := singleNodeFixture()
	r := New(api, history)

	_, err := r.Run(context.Background(), Request{
		Changesets: []int64{100},
		Comment:    "undo vandalism",
		Discussion: "this edit removed a surveyed bench",
	})
	require.NoError(t, err)

	require.Len(t, api.comments[100], 1)
	assert.Contains(t, api.comments[100][0], "surveyed bench")
	assert.Contains(t, api.comments[100][0], "https://www.openstreetmap.org/changeset/999")
}

func TestRunDiscussionTargets(t *testing.T) {
	api, history := singleNodeFixture()
	api.changesets[101] = closedChangeset(101, 42, map[model.ElementType]model.ElementIDs{
		model.NODE: {Modified: []model.ID{1}},
	})
	history.diffs[101] = model.ChangesetDiff{
		model.NODE: {{
			Ref:       model.ElementRef{Type: model.NODE, ID: 1},
			Old:       nodeVersion(1, 2, map[string]string{"name": "beta"}, 1, 1),
			New:       nodeVersion(1, 3, map[string]string{"name": "gamma"}, 1, 1),
			Timestamp: t0.Add(time.Hour),
			Changeset: 101,
		}},
	}

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{
		Changesets:       []int64{101, 100},
		Comment:          "undo",
		Discussion:       "reverted, see linked changeset",
		DiscussionTarget: "oldest",
	})
	require.NoError(t, err)

	assert.Len(t, api.comments[100], 1)
	assert.Empty(t, api.comments[101])
}

func TestRunSurfacesRetrievalWarnings(t *testing.T) {
	api, history := singleNodeFixture()
	history.warnings = []model.Warning{{
		Ref:    model.ElementRef{Type: model.NODE, ID: 8},
		Reason: "overlapping edit by a non-targeted changeset",
	}}

	r := New(api, history)

	result, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})
	require.NoError(t, err)

	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, model.ID(8), result.Warnings[0].Ref.ID)
	assert.Contains(t, result.Warnings[0].Reason, "non-targeted changeset")
}

func TestRunUpstreamFailure(t *testing.T) {
	api, history := singleNodeFixture()
	history.historyErr = errors.New("gateway timeout")

	r := New(api, history)

	_, err := r.Run(context.Background(), Request{Changesets: []int64{100}, Comment: "x"})

	var fetchErr *UpstreamFetchError

	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorContains(t, err, "gateway timeout")
}

func TestChangesetLimitTiers(t *testing.T) {
	limits := DefaultLimits()

	for _, tc := range []struct {
		edits     int
		moderator bool
		limit     int
	}{
		{edits: 0, limit: 0},
		{edits: 49, limit: 0},
		{edits: 50, limit: 1},
		{edits: 499, limit: 1},
		{edits: 500, limit: 3},
		{edits: 100000, limit: 3},
		{edits: 0, moderator: true, limit: 10},
	} {
		user := &osmapi.User{Changesets: tc.edits}
		if tc.moderator {
			user.Roles = []string{"moderator"}
		}

		assert.Equal(t, tc.limit, limits.ChangesetLimit(user), "edits=%d moderator=%v", tc.edits, tc.moderator)
	}
}

func TestNextTier(t *testing.T) {
	limits := DefaultLimits()

	next, ok := limits.NextTier(&osmapi.User{Changesets: 60})
	require.True(t, ok)
	assert.Equal(t, 500, next)

	_, ok = limits.NextTier(&osmapi.User{Changesets: 600})
	assert.False(t, ok)
}
