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

// Package filter validates revert inputs before any network traffic
// happens.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coolultra1/osm-revert/model"
)

// typePrefixes maps accepted element filter spellings to their type,
// longest spelling first so "nodes" wins over "n".
var typePrefixes = []struct {
	prefix string
	typ    model.ElementType
}{
	{"relations", model.RELATION},
	{"relation", model.RELATION},
	{"nodes", model.NODE},
	{"node", model.NODE},
	{"ways", model.WAY},
	{"way", model.WAY},
	{"rel", model.RELATION},
	{"n", model.NODE},
	{"w", model.WAY},
	{"r", model.RELATION},
}

// IDSet is a validated include/exclude element-id filter.
type IDSet struct {
	Include map[model.ElementType]map[model.ID]struct{}
	Exclude map[model.ElementType]map[model.ID]struct{}
}

// NewIDSet returns an empty filter that allows every element.
func NewIDSet() *IDSet {
	return &IDSet{
		Include: map[model.ElementType]map[model.ID]struct{}{},
		Exclude: map[model.ElementType]map[model.ID]struct{}{},
	}
}

// Empty reports whether the filter constrains nothing.
func (s *IDSet) Empty() bool {
	return len(s.Include) == 0 && len(s.Exclude) == 0
}

// Allows reports whether ref passes the filter. A non-empty include set
// admits listed elements only; exclusions always win.
func (s *IDSet) Allows(ref model.ElementRef) bool {
	if _, ok := s.Exclude[ref.Type][ref.ID]; ok {
		return false
	}

	if len(s.Include) == 0 {
		return true
	}

	_, ok := s.Include[ref.Type][ref.ID]

	return ok
}

func (s *IDSet) add(dst map[model.ElementType]map[model.ID]struct{}, typ model.ElementType, id model.ID) {
	if dst[typ] == nil {
		dst[typ] = map[model.ID]struct{}{}
	}

	dst[typ][id] = struct{}{}
}

// ParseElementIDs parses an element filter expression into an IDSet. The
// expression is a whitespace or comma separated list of tokens such as
// "n123", "way:45", "relation 6"; a leading "-" excludes the element
// instead of including it. Errors are raised eagerly, before any network
// call.
func ParseElementIDs(expr string) (*IDSet, error) {
	set := NewIDSet()

	tokens := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}

		dst := set.Include

		switch token[0] {
		case '-':
			dst = set.Exclude
			token = strings.TrimSpace(token[1:])
		case '+':
			token = strings.TrimSpace(token[1:])
		}

		typ, rest, err := splitTypePrefix(token)
		if err != nil {
			return nil, err
		}

		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%s element id must be a positive number: %q", typ, rest)
		}

		set.add(dst, typ, model.ID(id))
	}

	return set, nil
}

func splitTypePrefix(token string) (model.ElementType, string, error) {
	for _, p := range typePrefixes {
		if !strings.HasPrefix(token, p.prefix) {
			continue
		}

		rest := strings.TrimLeft(token[len(p.prefix):], ":;., ")

		return p.typ, rest, nil
	}

	return 0, "", fmt.Errorf("unknown element filter format: %q", token)
}
