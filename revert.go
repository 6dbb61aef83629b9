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

// Package revert reconstructs and undoes prior OpenStreetMap changesets.
// Given changeset ids it determines exactly what they changed, computes
// the inverse edit, reconciles it against the current state of the map,
// and either uploads the revert or hands back an OsmChange document.
package revert

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/coolultra1/osm-revert/internal/filter"
	"github.com/coolultra1/osm-revert/internal/osc"
	"github.com/coolultra1/osm-revert/internal/osmapi"
	"github.com/coolultra1/osm-revert/model"
)

// APIClient is the map-data service boundary the pipeline talks to.
type APIClient interface {
	Changeset(ctx context.Context, id int64) (*model.Changeset, error)
	User(ctx context.Context, uid int64) (*osmapi.User, error)
	AuthorizedUser(ctx context.Context) (*osmapi.User, error)
	ChangesetMaxSize(ctx context.Context) (int, error)
	UploadDiff(ctx context.Context, inv model.Inversion, comment string, tags map[string]string) (int64, error)
	PostDiscussionComment(ctx context.Context, changesetID int64, text string) (string, error)
}

// HistoryClient executes batch element-history queries.
type HistoryClient interface {
	ChangesetElementsHistory(ctx context.Context, cs *model.Changeset, idset *filter.IDSet,
		bbox *model.BoundingBox, queryFilter string) (model.ChangesetDiff, []model.Warning, error)
	Parents(ctx context.Context, refs []model.ElementRef) ([]*model.ElementVersion, error)
}

// Option configures how we set up the reverter.
type Option func(*Reverter)

// WithLogger lets you supply a logger for progress diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reverter) {
		r.log = log
	}
}

// WithLimits lets you override the safety thresholds.
func WithLimits(l Limits) Option {
	return func(r *Reverter) {
		r.limits = l
	}
}

// WithCreatedBy lets you set the client identity recorded on uploads.
func WithCreatedBy(createdBy string) Option {
	return func(r *Reverter) {
		r.createdBy = createdBy
	}
}

// WithWebsite lets you set the website tag recorded on uploads.
func WithWebsite(website string) Option {
	return func(r *Reverter) {
		r.website = website
	}
}

// Reverter runs the revert pipeline against the two service boundaries.
type Reverter struct {
	api     APIClient
	history HistoryClient

	limits    Limits
	createdBy string
	website   string
	log       *slog.Logger
}

// New returns a reverter, configured with options.
func New(api APIClient, history HistoryClient, opts ...Option) *Reverter {
	r := &Reverter{
		api:       api,
		history:   history,
		limits:    DefaultLimits(),
		createdBy: "osm-revert",
		website:   "https://github.com/coolultra1/osm-revert",
		log:       slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Request describes one revert invocation.
type Request struct {
	// Changesets are the changeset ids to revert. Duplicates are dropped.
	Changesets []int64

	// Comment is the changeset comment of the uploaded revert.
	Comment string

	// OnlyTags restricts modification reverts to the listed tag keys.
	OnlyTags []string

	// ElementFilter optionally restricts the revert to listed elements,
	// e.g. "n123 way:45 -r6".
	ElementFilter string

	// QueryFilter is a raw Overpass filter snippet applied to every
	// history query, e.g. `[amenity=bench]`.
	QueryFilter string

	// BBox optionally restricts the revert to nodes inside an area.
	BBox *model.BoundingBox

	// Discussion, when at least 4 characters long, is posted to the
	// reverted changesets' discussions after a successful upload.
	Discussion string

	// DiscussionTarget picks which changesets to discuss: "all" (default),
	// "newest", or "oldest".
	DiscussionTarget string

	// Offline produces an OsmChange document instead of uploading.
	Offline bool
}

// Outcome is the terminal state of a completed pipeline run.
type Outcome int32

const (
	// UPLOADED means the revert was uploaded as a new changeset.
	UPLOADED Outcome = iota

	// DOCUMENT means an offline change document was produced.
	DOCUMENT

	// NOTHING means zero elements needed reverting.
	NOTHING
)

func (o Outcome) String() string {
	switch o {
	case UPLOADED:
		return "uploaded"
	case DOCUMENT:
		return "document"
	case NOTHING:
		return "nothing to revert"
	default:
		return fmt.Sprintf("Outcome(%d)", int32(o))
	}
}

// Result reports what a pipeline run did. Process-exit mapping is the CLI
// layer's business.
type Result struct {
	Outcome      Outcome
	ChangesetID  int64
	Change       *osc.Change
	Statistics   model.Statistics
	Warnings     []model.Warning
	ParentsFixed int
}

// Run executes the full revert pipeline: validate, fetch, merge, invert,
// reconcile, then upload or build. It either fully succeeds or aborts
// before any write; nothing is ever partially applied.
func (r *Reverter) Run(ctx context.Context, req Request) (*Result, error) {
	ids, idset, err := validate(&req)
	if err != nil {
		return nil, err
	}

	user, err := r.api.AuthorizedUser(ctx)
	if err != nil {
		return nil, &UpstreamFetchError{Op: "fetching authorized user", Err: err}
	}

	r.log.Info("logged in", "user", user.DisplayName, "edits", user.Changesets,
		"moderator", user.IsModerator())

	if err := r.checkBatchPolicy(user, len(ids)); err != nil {
		return nil, err
	}

	diffs, fetchWarnings, err := r.fetchDiffs(ctx, ids, idset, user, &req)
	if err != nil {
		return nil, err
	}

	merged := MergeDiffs(diffs)

	inv, stats, warnings := Invert(merged, req.OnlyTags)

	warnings = append(fetchWarnings, warnings...)

	fixed, parentWarnings, err := r.reconcileParents(ctx, inv, &stats)
	if err != nil {
		return nil, err
	}

	warnings = append(warnings, parentWarnings...)

	if fixed > 0 {
		r.log.Info("fixing parents", "count", fixed)
	}

	result := &Result{
		Statistics:   stats,
		Warnings:     warnings,
		ParentsFixed: fixed,
	}

	if inv.Size() == 0 {
		result.Outcome = NOTHING

		return result, nil
	}

	if req.Offline {
		result.Outcome = DOCUMENT
		result.Change = osc.Build(inv, 0, r.createdBy)

		return result, nil
	}

	maxSize, err := r.api.ChangesetMaxSize(ctx)
	if err != nil {
		return nil, &UpstreamFetchError{Op: "fetching changeset size cap", Err: err}
	}

	if inv.Size() > maxSize {
		return nil, &PolicyError{
			Reason: fmt.Sprintf("revert is too big: %d > %d elements", inv.Size(), maxSize),
		}
	}

	meta := osc.Metadata{
		Comment:         req.Comment,
		CreatedBy:       r.createdBy,
		Website:         r.website,
		Sources:         ids,
		Filter:          describeFilter(&req),
		ChangesetsCount: user.Changesets + 1,
		Statistics:      stats,
	}

	r.log.Info("uploading revert", "elements", inv.Size())

	changesetID, err := r.api.UploadDiff(ctx, inv, req.Comment, meta.Tags())
	if err != nil {
		return nil, fmt.Errorf("uploading revert: %w", err)
	}

	result.Outcome = UPLOADED
	result.ChangesetID = changesetID

	r.discuss(ctx, &req, ids, changesetID)

	return result, nil
}

// validate rejects malformed input before any network call.
func validate(req *Request) ([]int64, *filter.IDSet, error) {
	if len(req.Changesets) == 0 {
		return nil, nil, &InputValidationError{Reason: "missing changeset id"}
	}

	ids := slices.Clone(req.Changesets)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	for _, id := range ids {
		if id <= 0 {
			return nil, nil, &InputValidationError{Reason: fmt.Sprintf("changeset id must be positive: %d", id)}
		}
	}

	if strings.TrimSpace(req.Comment) == "" {
		return nil, nil, &InputValidationError{Reason: "missing changeset comment"}
	}

	if d := strings.TrimSpace(req.Discussion); d != "" && len(d) < 4 {
		return nil, nil, &InputValidationError{Reason: "discussion must be at least 4 characters long"}
	}

	switch req.DiscussionTarget {
	case "", "all", "newest", "oldest":
	default:
		return nil, nil, &InputValidationError{Reason: fmt.Sprintf("unknown discussion target %q", req.DiscussionTarget)}
	}

	idset, err := filter.ParseElementIDs(req.ElementFilter)
	if err != nil {
		return nil, nil, &InputValidationError{Reason: err.Error()}
	}

	if err := filter.ValidateQuery(req.QueryFilter); err != nil {
		return nil, nil, &InputValidationError{Reason: err.Error()}
	}

	return ids, idset, nil
}

func (r *Reverter) checkBatchPolicy(user *osmapi.User, batch int) error {
	limit := r.limits.ChangesetLimit(user)

	if limit == 0 {
		return &PolicyError{
			Reason: fmt.Sprintf("at least %d edits are required to use this tool", r.limits.MinEdits(user)),
		}
	}

	if batch > limit {
		reason := fmt.Sprintf("for safety, you can only revert up to %d changesets at a time", limit)

		if next, ok := r.limits.NextTier(user); ok {
			reason += fmt.Sprintf("; to increase this limit, make at least %d edits", next)
		}

		return &PolicyError{Reason: reason}
	}

	return nil
}

// fetchDiffs downloads and diffs the targeted changesets sequentially;
// partition-level parallelism lives inside the history client. Warnings
// raised during retrieval accumulate across the batch.
func (r *Reverter) fetchDiffs(ctx context.Context, ids []int64, idset *filter.IDSet,
	user *osmapi.User, req *Request,
) ([]model.ChangesetDiff, []model.Warning, error) {
	var (
		diffs    []model.ChangesetDiff
		warnings []model.Warning
	)

	for _, id := range ids {
		r.log.Info("downloading changeset", "changeset", id)

		cs, err := r.api.Changeset(ctx, id)
		if err != nil {
			return nil, nil, &UpstreamFetchError{Op: fmt.Sprintf("fetching changeset %d", id), Err: err}
		}

		if cs.Open {
			return nil, nil, &InputValidationError{Reason: fmt.Sprintf("changeset %d is still open", id)}
		}

		if err := r.checkAuthorPolicy(ctx, user, cs); err != nil {
			return nil, nil, err
		}

		if cs.Size() == 0 {
			continue
		}

		diff, fetchWarnings, err := r.history.ChangesetElementsHistory(ctx, cs, idset, req.BBox, req.QueryFilter)
		if err != nil {
			return nil, nil, &UpstreamFetchError{Op: fmt.Sprintf("fetching history of changeset %d", id), Err: err}
		}

		if diff.Size() > cs.Size() {
			return nil, nil, &DataConsistencyError{Changeset: id, DiffSize: diff.Size(), DeclaredSize: cs.Size()}
		}

		r.log.Info("downloaded history", "changeset", id, "elements", diff.Size())

		diffs = append(diffs, diff)
		warnings = append(warnings, fetchWarnings...)
	}

	return diffs, warnings, nil
}

// checkAuthorPolicy protects changesets authored by elevated-privilege
// accounts from casual reverts.
func (r *Reverter) checkAuthorPolicy(ctx context.Context, user *osmapi.User, cs *model.Changeset) error {
	if user.IsModerator() || user.Changesets >= r.limits.ModeratorRevertMinEdits {
		return nil
	}

	author, err := r.api.User(ctx, cs.UID)
	if err != nil {
		return &UpstreamFetchError{Op: fmt.Sprintf("fetching author of changeset %d", cs.ID), Err: err}
	}

	// deleted accounts yield a nil author
	if author != nil && author.IsModerator() {
		return &PolicyError{Reason: "moderator changesets cannot be reverted"}
	}

	return nil
}

// discuss posts the discussion text to the targeted changesets after a
// successful upload. Failures are logged, never fatal.
func (r *Reverter) discuss(ctx context.Context, req *Request, ids []int64, changesetID int64) {
	text := strings.TrimSpace(req.Discussion)
	if text == "" {
		return
	}

	text += fmt.Sprintf("\n\nhttps://www.openstreetmap.org/changeset/%d", changesetID)

	var targets []int64

	switch req.DiscussionTarget {
	case "", "all":
		targets = ids
	case "newest":
		targets = ids[len(ids)-1:]
	case "oldest":
		targets = ids[:1]
	}

	for _, id := range targets {
		status, err := r.api.PostDiscussionComment(ctx, id, text)
		if err != nil {
			r.log.Warn("unable to post discussion comment", "changeset", id, "error", err)

			continue
		}

		r.log.Info("posted discussion comment", "changeset", id, "status", status)
	}
}

// describeFilter renders the applied restrictions for the changeset
// metadata.
func describeFilter(req *Request) string {
	var parts []string

	for _, s := range []string{req.ElementFilter, req.QueryFilter} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	if req.BBox != nil {
		parts = append(parts, req.BBox.String())
	}

	return strings.Join(parts, " ")
}
