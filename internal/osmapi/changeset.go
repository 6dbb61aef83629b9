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

package osmapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/coolultra1/osm-revert/model"
)

type changesetPayload struct {
	Changeset struct {
		ID        int64             `json:"id"`
		UID       int64             `json:"uid"`
		User      string            `json:"user"`
		CreatedAt time.Time         `json:"created_at"`
		ClosedAt  time.Time         `json:"closed_at"`
		Open      bool              `json:"open"`
		Tags      map[string]string `json:"tags"`
	} `json:"changeset"`
}

// downloadElement is one element entry of an osmChange download; only the
// reference matters here, the content comes from the history query later.
type downloadElement struct {
	XMLName xml.Name
	ID      int64 `xml:"id,attr"`
}

type downloadBlock struct {
	Elements []downloadElement `xml:",any"`
}

type downloadPayload struct {
	XMLName xml.Name        `xml:"osmChange"`
	Create  []downloadBlock `xml:"create"`
	Modify  []downloadBlock `xml:"modify"`
	Delete  []downloadBlock `xml:"delete"`
}

// Changeset fetches a changeset's metadata together with the per-type
// created/modified/deleted element id lists from its osmChange download.
func (c *Client) Changeset(ctx context.Context, id int64) (*model.Changeset, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/changeset/%d.json", id), "", nil)
	if err != nil {
		return nil, err
	}

	var payload changesetPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing changeset %d: %w", id, err)
	}

	cs := &model.Changeset{
		ID:        payload.Changeset.ID,
		UID:       payload.Changeset.UID,
		User:      payload.Changeset.User,
		CreatedAt: payload.Changeset.CreatedAt,
		ClosedAt:  payload.Changeset.ClosedAt,
		Open:      payload.Changeset.Open,
		Tags:      payload.Changeset.Tags,
		Elements:  map[model.ElementType]model.ElementIDs{},
	}

	body, err = c.do(ctx, http.MethodGet, fmt.Sprintf("/changeset/%d/download", id), "", nil)
	if err != nil {
		return nil, err
	}

	var download downloadPayload
	if err := xml.Unmarshal(body, &download); err != nil {
		return nil, fmt.Errorf("parsing changeset %d download: %w", id, err)
	}

	for _, t := range model.ElementTypes {
		ids := model.ElementIDs{
			Created:  collectIDs(download.Create, t),
			Modified: collectIDs(download.Modify, t),
			Deleted:  collectIDs(download.Delete, t),
		}

		if ids.Len() > 0 {
			cs.Elements[t] = ids
		}
	}

	return cs, nil
}

// collectIDs flattens the ids of one element type across blocks,
// deduplicated and sorted for deterministic partitioning.
func collectIDs(blocks []downloadBlock, t model.ElementType) []model.ID {
	var ids []model.ID

	for _, block := range blocks {
		for _, el := range block.Elements {
			if el.XMLName.Local == t.String() {
				ids = append(ids, model.ID(el.ID))
			}
		}
	}

	slices.Sort(ids)

	return slices.Compact(ids)
}
