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

// Command osm-revert reverts OpenStreetMap changesets from the command
// line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	pb "gopkg.in/cheggaaa/pb.v1"

	revert "github.com/coolultra1/osm-revert"
	"github.com/coolultra1/osm-revert/cmd/osm-revert/cli"
	"github.com/coolultra1/osm-revert/internal/osmapi"
	"github.com/coolultra1/osm-revert/internal/overpass"
	"github.com/coolultra1/osm-revert/model"
)

const createdBy = "osm-revert"

var bbox *model.BoundingBox

var rootCmd = &cobra.Command{
	Use:           "osm-revert <changeset id>...",
	Short:         "Revert OpenStreetMap changesets",
	Long:          "Revert OpenStreetMap changesets, uploading the inverse edit or writing an .osc file",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringP("comment", "m", "", "changeset comment for the revert (required)")
	flags.String("discussion", "", "text posted to the reverted changesets' discussions")
	flags.String("discussion-target", "all", "changesets to discuss: all, newest or oldest")
	flags.String("osc-file", "", "write the revert to this .osc file instead of uploading")
	flags.Bool("print-osc", false, "print the revert as .osc instead of uploading")
	flags.String("query-filter", "", "Overpass filter snippet applied to history queries")
	flags.String("element-filter", "", "restrict the revert to listed elements, e.g. \"n123 -way:45\"")
	flags.Var(cli.NewBoundingBoxValue(nil, &bbox), "bbox",
		"restrict the revert to nodes inside \"left,bottom,right,top\"")
	flags.StringSlice("only-tags", nil, "restore only the listed tag keys on modified elements")
	flags.String("api-endpoint", osmapi.DefaultEndpoint, "OSM API base URL")
	flags.StringSlice("overpass-endpoint", overpass.DefaultEndpoints, "Overpass instances to rotate across")
	flags.IntP("workers", "c", overpass.DefaultWorkers, "number of history partition queries in flight")

	_ = rootCmd.MarkFlagRequired("comment")
}

func run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	req := revert.Request{}

	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return &revert.InputValidationError{Reason: fmt.Sprintf("changeset id must be numeric: %q", arg)}
		}

		req.Changesets = append(req.Changesets, id)
	}

	req.Comment, _ = flags.GetString("comment")
	req.Discussion, _ = flags.GetString("discussion")
	req.DiscussionTarget, _ = flags.GetString("discussion-target")
	req.QueryFilter, _ = flags.GetString("query-filter")
	req.ElementFilter, _ = flags.GetString("element-filter")
	req.OnlyTags, _ = flags.GetStringSlice("only-tags")

	oscFile, _ := flags.GetString("osc-file")
	printOsc, _ := flags.GetBool("print-osc")
	req.Offline = oscFile != "" || printOsc

	req.BBox = bbox

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	creds := osmapi.Credentials{
		Username: os.Getenv("OSM_USERNAME"),
		Password: os.Getenv("OSM_PASSWORD"),
		Token:    os.Getenv("OSM_OAUTH_TOKEN"),
	}

	if creds.Token == "" && creds.Username == "" && !req.Offline {
		return &revert.InputValidationError{
			Reason: "missing credentials: set OSM_OAUTH_TOKEN or OSM_USERNAME and OSM_PASSWORD",
		}
	}

	apiEndpoint, _ := flags.GetString("api-endpoint")
	overpassEndpoints, _ := flags.GetStringSlice("overpass-endpoint")
	workers, _ := flags.GetInt("workers")

	api := osmapi.NewClient(creds,
		osmapi.WithEndpoint(apiEndpoint),
		osmapi.WithUserAgent(createdBy),
		osmapi.WithLogger(log))

	var bar *pb.ProgressBar

	history := overpass.NewClient(
		overpass.WithEndpoints(overpassEndpoints...),
		overpass.WithWorkers(workers),
		overpass.WithLogger(log),
		overpass.WithProgress(func(done, total int) {
			if bar == nil {
				bar = pb.StartNew(total)
				bar.Output = os.Stderr
			}

			bar.Set(done)

			if done == total {
				bar.Finish()
				bar = nil
			}
		}))

	reverter := revert.New(api, history, revert.WithLogger(log), revert.WithCreatedBy(createdBy))

	result, err := reverter.Run(context.Background(), req)
	if err != nil {
		return err
	}

	return report(result, oscFile, printOsc)
}

func report(result *revert.Result, oscFile string, printOsc bool) error {
	for _, w := range result.Warnings {
		fmt.Printf("please verify: https://www.openstreetmap.org/%s/%d (%s)\n",
			w.Ref.Type, w.Ref.ID, w.Reason)
	}

	switch result.Outcome {
	case revert.NOTHING:
		fmt.Println("nothing to revert")

	case revert.DOCUMENT:
		if oscFile != "" {
			f, err := os.Create(oscFile)
			if err != nil {
				return err
			}

			if err := result.Change.Encode(f); err != nil {
				f.Close()

				return err
			}

			if err := f.Close(); err != nil {
				return err
			}

			fmt.Printf("saved %s changes to %s\n", humanize.Comma(int64(result.Change.Size())), oscFile)
		}

		if printOsc {
			if err := result.Change.Encode(os.Stdout); err != nil {
				return err
			}
		}

	case revert.UPLOADED:
		fmt.Printf("uploaded %s changes\n",
			humanize.Comma(int64(result.Statistics.Creates+result.Statistics.Modifies+result.Statistics.Deletes)))
		fmt.Printf("https://www.openstreetmap.org/changeset/%d\n", result.ChangesetID)
	}

	return nil
}

// exitCode maps the pipeline's typed failures onto process exit codes;
// the pipeline itself never calls os.Exit.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var (
		inputErr  *revert.InputValidationError
		policyErr *revert.PolicyError
	)

	switch {
	case errors.As(err, &inputErr):
		return 2
	case errors.As(err, &policyErr):
		return 3
	default:
		return 1
	}
}

func main() {
	start := time.Now()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}

	fmt.Fprintf(os.Stderr, "total time: %.1f sec\n", time.Since(start).Seconds())

	os.Exit(exitCode(err))
}
