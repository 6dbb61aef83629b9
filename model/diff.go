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

package model

import (
	"time"
)

// DiffEntry records what one changeset did to a single element: the version
// immediately before the edit and the version the edit produced. Old is nil
// when the changeset created the element; a nil or invisible New means the
// changeset deleted it.
type DiffEntry struct {
	Ref       ElementRef
	Old       *ElementVersion
	New       *ElementVersion
	Timestamp time.Time
	Changeset int64
}

// Created reports whether the entry describes an element creation.
func (e DiffEntry) Created() bool { return e.Old == nil }

// Deleted reports whether the entry describes an element deletion.
func (e DiffEntry) Deleted() bool { return e.New == nil || !e.New.Visible }

// Version is the element revision the entry's edit produced, used for
// ordering ties and contiguity checks.
func (e DiffEntry) Version() int64 {
	if e.New != nil {
		return e.New.Version
	}

	if e.Old != nil {
		return e.Old.Version + 1
	}

	return 0
}

// ChangesetDiff groups the diff entries of one or more changesets by
// element type.
type ChangesetDiff map[ElementType][]DiffEntry

// Size is the total number of diff entries across all element types.
func (d ChangesetDiff) Size() int {
	var n int
	for _, entries := range d {
		n += len(entries)
	}

	return n
}

// ElementIDs lists the ids a changeset touched, grouped by action.
type ElementIDs struct {
	Created  []ID
	Modified []ID
	Deleted  []ID
}

// All returns the ids of every action in created, modified, deleted order.
func (e ElementIDs) All() []ID {
	ids := make([]ID, 0, e.Len())
	ids = append(ids, e.Created...)
	ids = append(ids, e.Modified...)
	ids = append(ids, e.Deleted...)

	return ids
}

// Len is the number of ids across all actions.
func (e ElementIDs) Len() int {
	return len(e.Created) + len(e.Modified) + len(e.Deleted)
}

// Changeset is the metadata and content summary of a single changeset as
// reported by the OSM API.
type Changeset struct {
	ID        int64
	UID       int64
	User      string
	CreatedAt time.Time
	ClosedAt  time.Time
	Open      bool
	Tags      map[string]string
	Elements  map[ElementType]ElementIDs
}

// Size is the declared element count of the changeset.
func (c *Changeset) Size() int {
	var n int
	for _, ids := range c.Elements {
		n += ids.Len()
	}

	return n
}

// Refs returns every element the changeset touched, in canonical type
// order.
func (c *Changeset) Refs() []ElementRef {
	refs := make([]ElementRef, 0, c.Size())

	for _, t := range ElementTypes {
		for _, id := range c.Elements[t].All() {
			refs = append(refs, ElementRef{Type: t, ID: id})
		}
	}

	return refs
}
