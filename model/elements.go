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

// Package model contains the shared element model for OpenStreetMap
// changeset reverts.
package model

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// ID is the primary key of an element.
type ID int64

// ElementType is an enumeration of OSM element types.
type ElementType int32

const (
	// NODE denotes a node element.
	NODE ElementType = iota

	// WAY denotes a way element.
	WAY

	// RELATION denotes a relation element.
	RELATION
)

// ElementTypes lists all element types in canonical node, way, relation
// order.
var ElementTypes = []ElementType{NODE, WAY, RELATION}

func (t ElementType) String() string {
	switch t {
	case NODE:
		return "node"
	case WAY:
		return "way"
	case RELATION:
		return "relation"
	default:
		return fmt.Sprintf("ElementType(%d)", int32(t))
	}
}

// ParseElementType converts the canonical element type name into an
// ElementType.
func ParseElementType(s string) (ElementType, error) {
	switch s {
	case "node":
		return NODE, nil
	case "way":
		return WAY, nil
	case "relation":
		return RELATION, nil
	default:
		return 0, fmt.Errorf("unknown element type %q", s)
	}
}

// ElementRef uniquely identifies an element within the OSM graph.
type ElementRef struct {
	Type ElementType
	ID   ID
}

func (r ElementRef) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

// Member represents an element that participates in a relation, and the
// role it plays there.
type Member struct {
	ID   ID
	Type ElementType
	Role string
}

// ElementVersion is an immutable snapshot of a single element revision.
// Geometry is populated according to Ref.Type: Lat/Lon for nodes, NodeIDs
// for ways, Members for relations.
type ElementVersion struct {
	Ref       ElementRef
	Version   int64
	Timestamp time.Time
	Changeset int64
	Visible   bool
	Tags      map[string]string

	Lat     Degrees
	Lon     Degrees
	NodeIDs []ID
	Members []Member
}

// CloneTags returns a private copy of the version's tag mapping, never nil.
func (v *ElementVersion) CloneTags() map[string]string {
	if v.Tags == nil {
		return map[string]string{}
	}

	return maps.Clone(v.Tags)
}

// SameTags reports whether both versions carry an identical tag mapping.
func (v *ElementVersion) SameTags(o *ElementVersion) bool {
	return maps.Equal(v.Tags, o.Tags)
}

// SameGeometry reports whether both versions describe the same geometry
// for their element type.
func (v *ElementVersion) SameGeometry(o *ElementVersion) bool {
	switch v.Ref.Type {
	case NODE:
		return v.Lat == o.Lat && v.Lon == o.Lon
	case WAY:
		return slices.Equal(v.NodeIDs, o.NodeIDs)
	case RELATION:
		return slices.Equal(v.Members, o.Members)
	default:
		return false
	}
}

// Equal reports whether both versions describe the same element content,
// ignoring revision metadata.
func (v *ElementVersion) Equal(o *ElementVersion) bool {
	return v.Visible == o.Visible && v.SameTags(o) && v.SameGeometry(o)
}
