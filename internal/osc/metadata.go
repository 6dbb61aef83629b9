package osc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coolultra1/osm-revert/model"
)

// Metadata describes the upload changeset that carries a revert.
type Metadata struct {
	Comment         string
	CreatedBy       string
	Website         string
	Sources         []int64
	Filter          string
	ChangesetsCount int
	Statistics      model.Statistics
}

// Tags renders the metadata as changeset tags. A single reverted changeset
// is referenced by its full URL, several by their joined ids.
func (m Metadata) Tags() map[string]string {
	tags := map[string]string{
		"comment":    m.Comment,
		"created_by": m.CreatedBy,
	}

	if m.Website != "" {
		tags["website"] = m.Website
	}

	if m.ChangesetsCount > 0 {
		tags["changesets_count"] = strconv.Itoa(m.ChangesetsCount)
	}

	if m.Filter != "" {
		tags["filter"] = m.Filter
	}

	switch len(m.Sources) {
	case 0:
	case 1:
		tags["id"] = fmt.Sprintf("https://www.openstreetmap.org/changeset/%d", m.Sources[0])
	default:
		ids := make([]string, len(m.Sources))
		for i, id := range m.Sources {
			ids[i] = strconv.FormatInt(id, 10)
		}

		tags["id"] = strings.Join(ids, ";")
	}

	for k, v := range m.Statistics.Tags() {
		tags[k] = v
	}

	return tags
}
