package overpass

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coolultra1/osm-revert/model"
)

// queryOverhead approximates the rendered size of a query's fixed parts:
// settings, selection scaffolding, and output statement.
const queryOverhead = 256

// partition is a bounded sub-batch of element refs queried together to
// respect service limits.
type partition []model.ElementRef

// partitionRefs splits refs into partitions bounded by maxIDs ids and
// maxLen rendered query bytes. The split is deterministic: refs keep their
// input order and partitions are contiguous.
func partitionRefs(refs []model.ElementRef, maxIDs, maxLen int) []partition {
	var (
		parts   []partition
		current partition
		length  = queryOverhead
	)

	flush := func() {
		if len(current) > 0 {
			parts = append(parts, current)
			current = nil
			length = queryOverhead
		}
	}

	for _, ref := range refs {
		cost := len(strconv.FormatInt(int64(ref.ID), 10)) + 1

		if len(current) >= maxIDs || (len(current) > 0 && length+cost > maxLen) {
			flush()
		}

		current = append(current, ref)
		length += cost
	}

	flush()

	return parts
}

// selection renders the id-list statements of one partition, one per
// element type present, each carrying the user's filter snippet.
func (p partition) selection(queryFilter string) string {
	ids := map[model.ElementType][]string{}

	for _, ref := range p {
		ids[ref.Type] = append(ids[ref.Type], strconv.FormatInt(int64(ref.ID), 10))
	}

	var sb strings.Builder

	for _, t := range model.ElementTypes {
		if len(ids[t]) == 0 {
			continue
		}

		fmt.Fprintf(&sb, "%s(id:%s)%s;", t, strings.Join(ids[t], ","), queryFilter)
	}

	return sb.String()
}
