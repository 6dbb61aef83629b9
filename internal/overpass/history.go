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

package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/destel/rill"

	"github.com/coolultra1/osm-revert/internal/filter"
	"github.com/coolultra1/osm-revert/model"
)

type rawMember struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// rawElement is one Overpass response element. Augmented-diff entries
// carry an action with old/new sub-elements; plain queries inline the
// element content.
type rawElement struct {
	Type      string            `json:"type"`
	ID        int64             `json:"id"`
	Action    string            `json:"action"`
	Version   int64             `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Changeset int64             `json:"changeset"`
	Visible   *bool             `json:"visible"`
	Tags      map[string]string `json:"tags"`
	Lat       float64           `json:"lat"`
	Lon       float64           `json:"lon"`
	Nodes     []int64           `json:"nodes"`
	Members   []rawMember       `json:"members"`
	Old       *rawElement       `json:"old"`
	New       *rawElement       `json:"new"`
}

type response struct {
	Elements []rawElement `json:"elements"`
}

func (e *rawElement) version() (*model.ElementVersion, error) {
	t, err := model.ParseElementType(e.Type)
	if err != nil {
		return nil, err
	}

	v := &model.ElementVersion{
		Ref:       model.ElementRef{Type: t, ID: model.ID(e.ID)},
		Version:   e.Version,
		Timestamp: e.Timestamp,
		Changeset: e.Changeset,
		Visible:   e.Visible == nil || *e.Visible,
		Tags:      e.Tags,
		Lat:       model.Degrees(e.Lat),
		Lon:       model.Degrees(e.Lon),
	}

	for _, id := range e.Nodes {
		v.NodeIDs = append(v.NodeIDs, model.ID(id))
	}

	for _, m := range e.Members {
		mt, err := model.ParseElementType(m.Type)
		if err != nil {
			return nil, err
		}

		v.Members = append(v.Members, model.Member{ID: model.ID(m.Ref), Type: mt, Role: m.Role})
	}

	return v, nil
}

// partitionResult is one partition's normalized entries plus the elements
// whose window activity nets to a non-targeted changeset.
type partitionResult struct {
	entries []model.DiffEntry
	foreign []model.ElementRef
}

// ChangesetElementsHistory fetches, for every element the changeset
// touched, the version immediately before the edit and the version the
// edit produced. The id set is partitioned to respect service limits and
// partitions run with bounded parallelism; ordering of the combined result
// is established later by the merge stage. An idset or bbox restriction
// may legitimately yield an empty diff. Elements whose window activity
// nets to another changeset's edit are excluded from the diff and
// reported as Warnings; reverting them would overwrite the other edit.
func (c *Client) ChangesetElementsHistory(ctx context.Context, cs *model.Changeset,
	idset *filter.IDSet, bbox *model.BoundingBox, queryFilter string,
) (model.ChangesetDiff, []model.Warning, error) {
	refs := cs.Refs()

	if idset != nil && !idset.Empty() {
		allowed := refs[:0]

		for _, ref := range refs {
			if idset.Allows(ref) {
				allowed = append(allowed, ref)
			}
		}

		refs = allowed
	}

	diff := model.ChangesetDiff{}

	parts := partitionRefs(refs, c.maxIDs, c.maxQueryLen)
	if len(parts) == 0 {
		return diff, nil, nil
	}

	queries := rill.FromSlice(parts, nil)

	results := rill.OrderedMap(queries, c.workers, func(p partition) (partitionResult, error) {
		return c.queryPartition(ctx, cs, p, queryFilter)
	})

	var (
		done     int
		warnings []model.Warning
	)

	warned := map[model.ElementRef]struct{}{}

	err := rill.ForEach(results, 1, func(res partitionResult) error {
		done++

		if c.progress != nil {
			c.progress(done, len(parts))
		}

		for _, ref := range res.foreign {
			if _, ok := warned[ref]; ok {
				continue
			}

			warned[ref] = struct{}{}
			warnings = append(warnings, model.Warning{
				Ref:    ref,
				Reason: "overlapping edit by a non-targeted changeset",
			})
		}

		for _, entry := range res.entries {
			if bbox != nil && !entryInBBox(entry, bbox) {
				continue
			}

			diff[entry.Ref.Type] = append(diff[entry.Ref.Type], entry)
		}

		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fetching history of changeset %d: %w", cs.ID, err)
	}

	return diff, warnings, nil
}

func (c *Client) queryPartition(ctx context.Context, cs *model.Changeset, p partition, queryFilter string) (partitionResult, error) {
	var res partitionResult

	query := fmt.Sprintf("[out:json][timeout:180][adiff:%q,%q];(%s);out meta;",
		cs.CreatedAt.UTC().Add(-time.Second).Format(time.RFC3339),
		cs.ClosedAt.UTC().Format(time.RFC3339),
		p.selection(queryFilter))

	body, err := c.run(ctx, query)
	if err != nil {
		return res, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return res, fmt.Errorf("parsing overpass response: %w", err)
	}

	for i := range resp.Elements {
		entry, ok, err := normalize(&resp.Elements[i])
		if err != nil {
			return res, err
		}

		if !ok {
			continue
		}

		// the window nets each element to one action; a foreign changeset
		// id means someone else edited on top of the targeted edit
		if entry.Changeset != cs.ID {
			res.foreign = append(res.foreign, entry.Ref)

			continue
		}

		res.entries = append(res.entries, entry)
	}

	return res, nil
}

// normalize converts one adiff action into a DiffEntry.
func normalize(raw *rawElement) (model.DiffEntry, bool, error) {
	var entry model.DiffEntry

	switch raw.Action {
	case "create":
		el := raw
		if raw.New != nil {
			el = raw.New
		}

		v, err := el.version()
		if err != nil {
			return entry, false, err
		}

		entry = model.DiffEntry{Ref: v.Ref, New: v}

	case "modify", "delete":
		if raw.Old == nil || raw.New == nil {
			return entry, false, fmt.Errorf("overpass: %s action without old/new versions", raw.Action)
		}

		old, err := raw.Old.version()
		if err != nil {
			return entry, false, err
		}

		curr, err := raw.New.version()
		if err != nil {
			return entry, false, err
		}

		if raw.Action == "delete" {
			curr.Visible = false
		}

		entry = model.DiffEntry{Ref: old.Ref, Old: old, New: curr}

	default:
		return entry, false, fmt.Errorf("overpass: unknown action %q", raw.Action)
	}

	if entry.New != nil {
		entry.Timestamp = entry.New.Timestamp
		entry.Changeset = entry.New.Changeset
	}

	return entry, true, nil
}

// entryInBBox keeps non-node entries and node entries whose position,
// before or after the edit, falls inside the box.
func entryInBBox(entry model.DiffEntry, bbox *model.BoundingBox) bool {
	if entry.Ref.Type != model.NODE {
		return true
	}

	for _, v := range []*model.ElementVersion{entry.Old, entry.New} {
		if v != nil && v.Visible && bbox.Contains(v.Lat, v.Lon) {
			return true
		}
	}

	return false
}
