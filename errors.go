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

package revert

import (
	"fmt"
)

// PolicyError reports a revert blocked by a safety limit: batch size,
// account standing, or a protected target. It is never retried.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "policy: " + e.Reason
}

// UpstreamFetchError reports a history or metadata fetch that failed after
// exhausting its retries. The enclosing batch aborts with no partial
// write.
type UpstreamFetchError struct {
	Op  string
	Err error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// DataConsistencyError reports a computed diff larger than the declared
// changeset size, which indicates a logic or service inconsistency. It is
// fatal and aborts immediately.
type DataConsistencyError struct {
	Changeset    int64
	DiffSize     int
	DeclaredSize int
}

func (e *DataConsistencyError) Error() string {
	return fmt.Sprintf("changeset %d: diff has %d elements but changeset declares %d",
		e.Changeset, e.DiffSize, e.DeclaredSize)
}

// InputValidationError reports malformed input, rejected before any
// network call.
type InputValidationError struct {
	Reason string
}

func (e *InputValidationError) Error() string {
	return "invalid input: " + e.Reason
}
