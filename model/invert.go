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
	"fmt"
	"strconv"
)

// Action is an enumeration of revert operation kinds.
type Action int32

const (
	// CREATE restores an element the targeted changesets deleted.
	CREATE Action = iota

	// MODIFY rolls an element back to its pre-targeted-edit content.
	MODIFY

	// DELETE removes an element the targeted changesets created.
	DELETE
)

func (a Action) String() string {
	switch a {
	case CREATE:
		return "create"
	case MODIFY:
		return "modify"
	case DELETE:
		return "delete"
	default:
		return fmt.Sprintf("Action(%d)", int32(a))
	}
}

// InvertedElement is a single planned revert operation. Version is the base
// version presented to the API at upload time; the optimistic concurrency
// check rejects the upload when it is stale.
type InvertedElement struct {
	Ref     ElementRef
	Action  Action
	Version int64
	Tags    map[string]string

	Lat     Degrees
	Lon     Degrees
	NodeIDs []ID
	Members []Member
}

// Inversion maps element type to the planned revert operations for that
// type.
type Inversion map[ElementType][]*InvertedElement

// Size is the total number of planned operations.
func (inv Inversion) Size() int {
	var n int
	for _, elements := range inv {
		n += len(elements)
	}

	return n
}

// Contains reports whether the inversion already plans an operation for
// ref.
func (inv Inversion) Contains(ref ElementRef) bool {
	for _, el := range inv[ref.Type] {
		if el.Ref == ref {
			return true
		}
	}

	return false
}

// Statistics tallies planned revert operations by kind.
type Statistics struct {
	Creates  int
	Modifies int
	Deletes  int
}

// Count records one operation of the given kind.
func (s *Statistics) Count(a Action) {
	switch a {
	case CREATE:
		s.Creates++
	case MODIFY:
		s.Modifies++
	case DELETE:
		s.Deletes++
	}
}

// Tags renders the statistics as changeset tags attached to the uploaded
// revert.
func (s Statistics) Tags() map[string]string {
	return map[string]string{
		"revert:create": strconv.Itoa(s.Creates),
		"revert:modify": strconv.Itoa(s.Modifies),
		"revert:delete": strconv.Itoa(s.Deletes),
	}
}

// Warning flags an element whose inversion needs manual review. Warnings
// are data, not errors; they accumulate and surface once at the end of a
// revert.
type Warning struct {
	Ref    ElementRef
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Ref, w.Reason)
}
