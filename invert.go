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
	"slices"

	"github.com/coolultra1/osm-revert/model"
)

// Invert computes, for every element in diff, the action that undoes the
// targeted edits. Entries must be ordered newest-first per type, as
// MergeDiffs produces them. With a non-empty tag allow-list only the
// listed keys are restored on modified elements; every other key and the
// geometry keep their post-edit value. Any overlap with an edit outside
// the targeted changesets yields a Warning instead of a silent overwrite.
//
// The output covers exactly the element refs present in diff: nothing is
// invented, and nothing is dropped without a Warning unless its inversion
// is a no-op.
func Invert(diff model.ChangesetDiff, tagAllowList []string) (model.Inversion, model.Statistics, []model.Warning) {
	inv := model.Inversion{}

	var (
		stats    model.Statistics
		warnings []model.Warning
	)

	allow := map[string]struct{}{}
	for _, k := range tagAllowList {
		allow[k] = struct{}{}
	}

	for _, t := range model.ElementTypes {
		for _, group := range groupByRef(diff[t]) {
			el, warning := invertElement(group, allow)

			if warning != nil {
				warnings = append(warnings, *warning)

				continue
			}

			if el == nil {
				continue
			}

			inv[t] = append(inv[t], el)
			stats.Count(el.Action)
		}
	}

	return inv, stats, warnings
}

// refGroup is one element's targeted history, newest entry first.
type refGroup struct {
	ref     model.ElementRef
	entries []model.DiffEntry
}

// groupByRef splits a newest-first entry list into per-element histories,
// preserving both the entry order within each element and the order of
// first appearance across elements.
func groupByRef(entries []model.DiffEntry) []refGroup {
	index := map[model.ElementRef]int{}

	var groups []refGroup

	for _, entry := range entries {
		i, ok := index[entry.Ref]
		if !ok {
			i = len(groups)
			index[entry.Ref] = i
			groups = append(groups, refGroup{ref: entry.Ref})
		}

		groups[i].entries = append(groups[i].entries, entry)
	}

	return groups
}

func invertElement(group refGroup, allow map[string]struct{}) (*model.InvertedElement, *model.Warning) {
	entries := group.entries

	// A version gap between consecutive targeted entries means someone
	// else edited the element in between; restoring across that edit
	// would overwrite their work.
	for i := 0; i+1 < len(entries); i++ {
		newer, older := entries[i], entries[i+1]

		if newer.Old == nil || older.New == nil || newer.Old.Version != older.New.Version {
			return nil, &model.Warning{
				Ref:    group.ref,
				Reason: "element was edited outside the targeted changesets",
			}
		}
	}

	newest := entries[0]
	restore := entries[len(entries)-1].Old

	createdByTargeted := restore == nil || !restore.Visible

	if createdByTargeted {
		if newest.Deleted() {
			// created and deleted within the targeted changesets
			return nil, nil
		}

		return &model.InvertedElement{
			Ref:     group.ref,
			Action:  model.DELETE,
			Version: newest.New.Version,
		}, nil
	}

	if newest.Deleted() {
		return &model.InvertedElement{
			Ref:     group.ref,
			Action:  model.CREATE,
			Tags:    restore.CloneTags(),
			Lat:     restore.Lat,
			Lon:     restore.Lon,
			NodeIDs: slices.Clone(restore.NodeIDs),
			Members: slices.Clone(restore.Members),
		}, nil
	}

	return invertModify(group.ref, newest.New, restore, allow)
}

// invertModify rolls an element back to its restore state, or, with a
// non-empty allow-list, restores only the listed tag keys on top of the
// current state.
func invertModify(ref model.ElementRef, current, restore *model.ElementVersion, allow map[string]struct{}) (*model.InvertedElement, *model.Warning) {
	el := &model.InvertedElement{
		Ref:     ref,
		Action:  model.MODIFY,
		Version: current.Version,
	}

	if len(allow) == 0 {
		el.Tags = restore.CloneTags()
		el.Lat = restore.Lat
		el.Lon = restore.Lon
		el.NodeIDs = slices.Clone(restore.NodeIDs)
		el.Members = slices.Clone(restore.Members)
	} else {
		tags := current.CloneTags()

		for k := range allow {
			if v, ok := restore.Tags[k]; ok {
				tags[k] = v
			} else {
				delete(tags, k)
			}
		}

		el.Tags = tags
		el.Lat = current.Lat
		el.Lon = current.Lon
		el.NodeIDs = slices.Clone(current.NodeIDs)
		el.Members = slices.Clone(current.Members)
	}

	result := &model.ElementVersion{
		Ref:     ref,
		Visible: true,
		Tags:    el.Tags,
		Lat:     el.Lat,
		Lon:     el.Lon,
		NodeIDs: el.NodeIDs,
		Members: el.Members,
	}

	if result.Equal(current) {
		// reverting would change nothing
		return nil, nil
	}

	return el, nil
}
