package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/coolultra1/osm-revert/model"
)

// Parents fetches the current version of every way and relation that
// references one of refs. Elements deleted upstream simply no longer
// reference anything and are absent from the result.
func (c *Client) Parents(ctx context.Context, refs []model.ElementRef) ([]*model.ElementVersion, error) {
	ids := map[model.ElementType][]string{}

	for _, ref := range refs {
		ids[ref.Type] = append(ids[ref.Type], strconv.FormatInt(int64(ref.ID), 10))
	}

	var sb strings.Builder

	if len(ids[model.NODE]) > 0 {
		fmt.Fprintf(&sb, "node(id:%s)->.n;way(bn.n);relation(bn.n);", strings.Join(ids[model.NODE], ","))
	}

	if len(ids[model.WAY]) > 0 {
		fmt.Fprintf(&sb, "way(id:%s)->.w;relation(bw.w);", strings.Join(ids[model.WAY], ","))
	}

	if len(ids[model.RELATION]) > 0 {
		fmt.Fprintf(&sb, "relation(id:%s)->.r;relation(br.r);", strings.Join(ids[model.RELATION], ","))
	}

	if sb.Len() == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("[out:json][timeout:180];(%s);out meta;", sb.String())

	body, err := c.run(ctx, query)
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing overpass parents response: %w", err)
	}

	seen := map[model.ElementRef]bool{}

	var parents []*model.ElementVersion

	for i := range resp.Elements {
		v, err := resp.Elements[i].version()
		if err != nil {
			return nil, err
		}

		if v.Ref.Type == model.NODE || seen[v.Ref] {
			continue
		}

		seen[v.Ref] = true
		parents = append(parents, v)
	}

	return parents, nil
}
