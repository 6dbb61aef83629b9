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

package osc

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coolultra1/osm-revert/model"
)

func TestBuildCreateOrderAndPlaceholders(t *testing.T) {
	// a deleted way and its deleted node come back together; the re-created
	// way must reference the node's placeholder id
	inv := model.Inversion{
		model.NODE: {{
			Ref:    model.ElementRef{Type: model.NODE, ID: 11},
			Action: model.CREATE,
			Lat:    53.1, Lon: 8.8,
			Tags: map[string]string{"name": "corner"},
		}},
		model.WAY: {{
			Ref:     model.ElementRef{Type: model.WAY, ID: 20},
			Action:  model.CREATE,
			NodeIDs: []model.ID{11, 12},
		}},
	}

	change := Build(inv, 777, "osm-revert")
	require.NotNil(t, change.Create)
	require.Len(t, change.Create.Elements, 2)

	node := change.Create.Elements[0]
	assert.Equal(t, "node", node.XMLName.Local)
	assert.Equal(t, int64(-1), node.ID)
	assert.Equal(t, int64(0), node.Version)
	assert.Equal(t, int64(777), node.Changeset)
	require.NotNil(t, node.Lat)
	assert.InDelta(t, 53.1, *node.Lat, 1e-9)

	way := change.Create.Elements[1]
	assert.Equal(t, "way", way.XMLName.Local)
	assert.Equal(t, int64(-2), way.ID)
	require.Len(t, way.Nds, 2)
	assert.Equal(t, int64(-1), way.Nds[0].Ref, "reference to a re-created node is remapped")
	assert.Equal(t, int64(12), way.Nds[1].Ref, "surviving node keeps its real id")
}

func TestBuildDeleteOrder(t *testing.T) {
	// deletes run parents before children: relations, ways, then nodes
	inv := model.Inversion{
		model.NODE: {{
			Ref: model.ElementRef{Type: model.NODE, ID: 1}, Action: model.DELETE, Version: 1,
			Tags: map[string]string{"name": "dropped"},
		}},
		model.WAY: {{
			Ref: model.ElementRef{Type: model.WAY, ID: 2}, Action: model.DELETE, Version: 3,
			NodeIDs: []model.ID{1},
		}},
		model.RELATION: {{
			Ref: model.ElementRef{Type: model.RELATION, ID: 3}, Action: model.DELETE, Version: 2,
		}},
	}

	change := Build(inv, 0, "osm-revert")
	require.NotNil(t, change.Delete)
	require.Len(t, change.Delete.Elements, 3)

	assert.Equal(t, "true", change.Delete.IfUnused)
	assert.Equal(t, "relation", change.Delete.Elements[0].XMLName.Local)
	assert.Equal(t, "way", change.Delete.Elements[1].XMLName.Local)
	assert.Equal(t, "node", change.Delete.Elements[2].XMLName.Local)

	for _, el := range change.Delete.Elements {
		assert.Empty(t, el.Tags, "deletes carry no tags")
		assert.Nil(t, el.Lat)
		assert.Zero(t, el.Changeset)
	}
}

func TestBuildModify(t *testing.T) {
	inv := model.Inversion{
		model.RELATION: {{
			Ref:     model.ElementRef{Type: model.RELATION, ID: 5},
			Action:  model.MODIFY,
			Version: 9,
			Tags:    map[string]string{"type": "multipolygon", "name": "park"},
			Members: []model.Member{{ID: 2, Type: model.WAY, Role: "outer"}},
		}},
	}

	change := Build(inv, 777, "osm-revert")
	assert.Nil(t, change.Create)
	assert.Nil(t, change.Delete)
	require.NotNil(t, change.Modify)

	want := Element{
		XMLName:   xml.Name{Local: "relation"},
		ID:        5,
		Version:   9,
		Changeset: 777,
		Members:   []MemberRef{{Type: "way", Ref: 2, Role: "outer"}},
		Tags: []Tag{
			{K: "name", V: "park"},
			{K: "type", V: "multipolygon"},
		},
	}

	if diff := cmp.Diff(want, change.Modify.Elements[0]); diff != "" {
		t.Errorf("modify element mismatch (-want +got):\n%s", diff)
	}
}

func TestChangeSize(t *testing.T) {
	change := &Change{
		Create: &Block{Elements: make([]Element, 2)},
		Delete: &Block{Elements: make([]Element, 1)},
	}

	assert.Equal(t, 3, change.Size())
	assert.Zero(t, (&Change{}).Size())
}

func TestEncode(t *testing.T) {
	inv := model.Inversion{
		model.NODE: {{
			Ref:     model.ElementRef{Type: model.NODE, ID: 1},
			Action:  model.MODIFY,
			Version: 2,
			Lat:     50.0, Lon: 14.0,
			Tags: map[string]string{"amenity": "bench"},
		}},
	}

	var sb strings.Builder

	change := Build(inv, 0, "osm-revert")
	require.NoError(t, change.Encode(&sb))

	out := sb.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `<osmChange version="0.6" generator="osm-revert">`)
	assert.Contains(t, out, `<node id="1" version="2" lat="50" lon="14">`)
	assert.Contains(t, out, `<tag k="amenity" v="bench">`)
	assert.NotContains(t, out, "changeset=", "offline documents carry no changeset id")
}
