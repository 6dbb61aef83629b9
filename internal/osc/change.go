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

// Package osc assembles OsmChange documents from planned revert
// operations, for upload to the OSM API or for offline .osc output.
package osc

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"

	"github.com/coolultra1/osm-revert/model"
)

// Tag is a single k/v element tag.
type Tag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

// NodeRef is an ordered way member.
type NodeRef struct {
	Ref int64 `xml:"ref,attr"`
}

// MemberRef is a relation member with its role.
type MemberRef struct {
	Type string `xml:"type,attr"`
	Ref  int64  `xml:"ref,attr"`
	Role string `xml:"role,attr"`
}

// Element is one node, way, or relation entry of an OsmChange document.
// XMLName carries the element type.
type Element struct {
	XMLName   xml.Name
	ID        int64       `xml:"id,attr"`
	Version   int64       `xml:"version,attr"`
	Changeset int64       `xml:"changeset,attr,omitempty"`
	Lat       *float64    `xml:"lat,attr,omitempty"`
	Lon       *float64    `xml:"lon,attr,omitempty"`
	Nds       []NodeRef   `xml:"nd,omitempty"`
	Members   []MemberRef `xml:"member,omitempty"`
	Tags      []Tag       `xml:"tag,omitempty"`
}

// Block is one action section of an OsmChange document. IfUnused is set on
// the delete block so the server skips deletions that would orphan later,
// unrelated work instead of failing the whole diff.
type Block struct {
	IfUnused string    `xml:"if-unused,attr,omitempty"`
	Elements []Element `xml:",any"`
}

// Change is a complete OsmChange document. The API applies creates before
// modifies before deletes, in document order within each block.
type Change struct {
	XMLName   xml.Name `xml:"osmChange"`
	Version   string   `xml:"version,attr"`
	Generator string   `xml:"generator,attr"`
	Create    *Block   `xml:"create,omitempty"`
	Modify    *Block   `xml:"modify,omitempty"`
	Delete    *Block   `xml:"delete,omitempty"`
}

// Size is the total number of elements across all blocks.
func (c *Change) Size() int {
	var n int
	for _, b := range []*Block{c.Create, c.Modify, c.Delete} {
		if b != nil {
			n += len(b.Elements)
		}
	}

	return n
}

// Encode writes the document as indented XML, with the standard header.
func (c *Change) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding osc document: %w", err)
	}

	return enc.Close()
}

// Build assembles the reverted element sets into an OsmChange document.
// Created elements receive client-side placeholder ids (negative,
// descending) and references between them are remapped accordingly;
// changesetID is stamped on every element when non-zero. Creates are
// ordered nodes first so parents follow the children they reference,
// deletes the other way around.
func Build(inv model.Inversion, changesetID int64, generator string) *Change {
	change := &Change{Version: "0.6", Generator: generator}

	placeholders := assignPlaceholders(inv)

	for _, t := range model.ElementTypes {
		for _, el := range sortedByAction(inv[t], model.CREATE) {
			change.Create = appendElement(change.Create, convert(el, changesetID, placeholders))
		}
	}

	for _, t := range model.ElementTypes {
		for _, el := range sortedByAction(inv[t], model.MODIFY) {
			change.Modify = appendElement(change.Modify, convert(el, changesetID, placeholders))
		}
	}

	for i := len(model.ElementTypes) - 1; i >= 0; i-- {
		for _, el := range sortedByAction(inv[model.ElementTypes[i]], model.DELETE) {
			change.Delete = appendElement(change.Delete, convert(el, changesetID, nil))
		}
	}

	if change.Delete != nil {
		change.Delete.IfUnused = "true"
	}

	return change
}

func appendElement(b *Block, el Element) *Block {
	if b == nil {
		b = &Block{}
	}

	b.Elements = append(b.Elements, el)

	return b
}

func sortedByAction(elements []*model.InvertedElement, a model.Action) []*model.InvertedElement {
	var out []*model.InvertedElement

	for _, el := range elements {
		if el.Action == a {
			out = append(out, el)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })

	return out
}

// assignPlaceholders maps every element to be created onto a fresh
// negative client-side id.
func assignPlaceholders(inv model.Inversion) map[model.ElementRef]int64 {
	placeholders := map[model.ElementRef]int64{}
	next := int64(-1)

	for _, t := range model.ElementTypes {
		for _, el := range sortedByAction(inv[t], model.CREATE) {
			placeholders[el.Ref] = next
			next--
		}
	}

	return placeholders
}

func convert(el *model.InvertedElement, changesetID int64, placeholders map[model.ElementRef]int64) Element {
	out := Element{
		XMLName:   xml.Name{Local: el.Ref.Type.String()},
		ID:        int64(el.Ref.ID),
		Version:   el.Version,
		Changeset: changesetID,
	}

	if id, ok := placeholders[el.Ref]; ok {
		out.ID = id
		out.Version = 0
	}

	switch el.Ref.Type {
	case model.NODE:
		if el.Action != model.DELETE {
			lat, lon := float64(el.Lat), float64(el.Lon)
			out.Lat, out.Lon = &lat, &lon
		}
	case model.WAY:
		for _, id := range el.NodeIDs {
			out.Nds = append(out.Nds, NodeRef{Ref: remap(placeholders, model.NODE, id)})
		}
	case model.RELATION:
		for _, m := range el.Members {
			out.Members = append(out.Members, MemberRef{
				Type: m.Type.String(),
				Ref:  remap(placeholders, m.Type, m.ID),
				Role: m.Role,
			})
		}
	}

	if el.Action != model.DELETE {
		keys := make([]string, 0, len(el.Tags))
		for k := range el.Tags {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			out.Tags = append(out.Tags, Tag{K: k, V: el.Tags[k]})
		}
	}

	return out
}

// remap rewrites references to elements being re-created onto their
// placeholder ids.
func remap(placeholders map[model.ElementRef]int64, t model.ElementType, id model.ID) int64 {
	if ph, ok := placeholders[model.ElementRef{Type: t, ID: id}]; ok {
		return ph
	}

	return int64(id)
}
