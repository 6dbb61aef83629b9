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
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/coolultra1/osm-revert/internal/osc"
	"github.com/coolultra1/osm-revert/model"
)

type changesetCreate struct {
	XMLName   xml.Name `xml:"osm"`
	Changeset struct {
		Tags []osc.Tag `xml:"tag"`
	} `xml:"changeset"`
}

// UploadDiff opens a changeset tagged with the revert metadata, uploads the
// inverted elements as a single diff, and closes the changeset. It returns
// the new changeset's id. The server's optimistic version check is the
// concurrency control here; a stale base version fails the upload.
func (c *Client) UploadDiff(ctx context.Context, inv model.Inversion, comment string, tags map[string]string) (int64, error) {
	create := changesetCreate{}
	create.Changeset.Tags = append(create.Changeset.Tags, osc.Tag{K: "comment", V: comment})

	keys := make([]string, 0, len(tags))

	for k := range tags {
		if k != "comment" {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	for _, k := range keys {
		create.Changeset.Tags = append(create.Changeset.Tags, osc.Tag{K: k, V: tags[k]})
	}

	body, err := xml.Marshal(create)
	if err != nil {
		return 0, err
	}

	resp, err := c.do(ctx, http.MethodPut, "/changeset/create", "text/xml", body)
	if err != nil {
		return 0, fmt.Errorf("opening changeset: %w", err)
	}

	changesetID, err := strconv.ParseInt(strings.TrimSpace(string(resp)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing created changeset id %q: %w", resp, err)
	}

	change := osc.Build(inv, changesetID, c.userAgent)

	if err := c.uploadChange(ctx, changesetID, change); err != nil {
		return 0, err
	}

	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/changeset/%d/close", changesetID), "", nil); err != nil {
		c.log.Warn("unable to close changeset", "changeset", changesetID, "error", err)
	}

	return changesetID, nil
}

// uploadChange posts the diff with a gzip request body. The post is issued
// exactly once; a diff upload is not safely retryable.
func (c *Client) uploadChange(ctx context.Context, changesetID int64, change *osc.Change) error {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)

	if err := change.Encode(zw); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return err
	}

	path := fmt.Sprintf("/changeset/%d/upload", changesetID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, &buf)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Content-Encoding", "gzip")
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("uploading diff: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)

		return &apiError{status: resp.StatusCode, body: truncate(payload)}
	}

	return nil
}

// PostDiscussionComment posts text to a changeset's discussion and returns
// a short status.
func (c *Client) PostDiscussionComment(ctx context.Context, changesetID int64, text string) (string, error) {
	form := url.Values{"text": {text}}

	_, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/changeset/%d/comment", changesetID),
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return "", err
	}

	return "OK", nil
}
