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

package cli

import (
	"github.com/spf13/pflag"

	"github.com/coolultra1/osm-revert/model"
)

// -- *model.BoundingBox Value
type bboxValue struct {
	value **model.BoundingBox
}

// NewBoundingBoxValue creates a cobra Value object for a *model.BoundingBox.
func NewBoundingBoxValue(def *model.BoundingBox, p **model.BoundingBox) pflag.Value {
	bbv := &bboxValue{value: p}
	*bbv.value = def

	return bbv
}

func (b *bboxValue) Set(val string) error {
	bbox, err := model.ParseBoundingBox(val)
	if err != nil {
		return err
	}

	*b.value = bbox

	return nil
}

func (b *bboxValue) Type() string {
	return "bbox"
}

func (b *bboxValue) String() string {
	if *b.value == nil {
		return ""
	}

	return (*b.value).String()
}
