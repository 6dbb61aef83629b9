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
	"slices"

	"github.com/coolultra1/osm-revert/model"
)

// reconcileParents re-syncs dependent ways and relations whose recorded
// version would otherwise be stale at upload time. A planned deletion
// whose element a current parent outside the inversion still references
// is dropped with a Warning first: that parent is later work depending on
// the element. Every remaining parent of a changed element that is not
// itself part of the inversion is then appended as a no-op touch update
// at its current version. Parents deleted upstream no longer reference
// anything, drop out of the parent query result, and need no touch; the
// visibility guard covers payloads that report a parent as deleted
// explicitly. This runs last, immediately before the change document is
// built, to minimize the window for version conflicts.
func (r *Reverter) reconcileParents(ctx context.Context, inv model.Inversion, stats *model.Statistics) (int, []model.Warning, error) {
	if inv.Size() == 0 {
		return 0, nil, nil
	}

	var refs []model.ElementRef
	for _, elements := range inv {
		for _, el := range elements {
			refs = append(refs, el.Ref)
		}
	}

	parents, err := r.history.Parents(ctx, refs)
	if err != nil {
		return 0, nil, &UpstreamFetchError{Op: "fetching parents", Err: err}
	}

	blocked := map[model.ElementRef]struct{}{}

	for _, p := range parents {
		if !p.Visible || inv.Contains(p.Ref) {
			continue
		}

		for _, elements := range inv {
			for _, el := range elements {
				if el.Action == model.DELETE && references(p, el.Ref) {
					blocked[el.Ref] = struct{}{}
				}
			}
		}
	}

	var warnings []model.Warning

	for _, t := range model.ElementTypes {
		kept := inv[t][:0]

		for _, el := range inv[t] {
			if _, ok := blocked[el.Ref]; ok {
				warnings = append(warnings, model.Warning{
					Ref:    el.Ref,
					Reason: "element is still referenced and was not deleted",
				})

				stats.Deletes--

				continue
			}

			kept = append(kept, el)
		}

		if len(kept) == 0 {
			delete(inv, t)
		} else {
			inv[t] = kept
		}
	}

	var fixed int

	for _, p := range parents {
		if inv.Contains(p.Ref) {
			continue
		}

		if !p.Visible {
			warnings = append(warnings, model.Warning{
				Ref:    p.Ref,
				Reason: "parent could not be refreshed",
			})

			continue
		}

		// a parent whose only changed child was a dropped delete keeps its
		// version untouched
		if !referencesAny(p, inv) {
			continue
		}

		inv[p.Ref.Type] = append(inv[p.Ref.Type], &model.InvertedElement{
			Ref:     p.Ref,
			Action:  model.MODIFY,
			Version: p.Version,
			Tags:    p.CloneTags(),
			Lat:     p.Lat,
			Lon:     p.Lon,
			NodeIDs: slices.Clone(p.NodeIDs),
			Members: slices.Clone(p.Members),
		})

		fixed++
	}

	return fixed, warnings, nil
}

// references reports whether parent p directly references the element.
func references(p *model.ElementVersion, ref model.ElementRef) bool {
	if ref.Type == model.NODE && p.Ref.Type == model.WAY && slices.Contains(p.NodeIDs, ref.ID) {
		return true
	}

	for _, m := range p.Members {
		if m.Type == ref.Type && m.ID == ref.ID {
			return true
		}
	}

	return false
}

// referencesAny reports whether parent p references any element still in
// the inversion.
func referencesAny(p *model.ElementVersion, inv model.Inversion) bool {
	for _, elements := range inv {
		for _, el := range elements {
			if references(p, el.Ref) {
				return true
			}
		}
	}

	return false
}
