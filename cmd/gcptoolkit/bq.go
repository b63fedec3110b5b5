// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/maruel/subcommands"
	"google.golang.org/api/iterator"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/flag/stringmapflag"

	"gcptoolkit/libs/bq"
)

// bqRun adds the BigQuery location to commonRun.
type bqRun struct {
	commonRun
	location string
}

func (r *bqRun) addBigQueryFlags() {
	r.Flags.StringVar(&r.location, "location", "", text.Doc(`
		Location jobs run in. Defaults to the config file, then "EU".
	`))
}

func (r *bqRun) client(ctx context.Context) (*bq.Client, error) {
	project, opts, err := r.setup(ctx)
	if err != nil {
		return nil, err
	}
	return bq.NewClient(ctx, project, firstNonEmpty(r.location, r.cfg.Location), opts...)
}

// jobFlags are the settings shared by the job submitting commands.
type jobFlags struct {
	jobPrefix         string
	writeDisposition  string
	createDisposition string
	labels            stringmapflag.Value
	async             bool
}

func (r *bqRun) addJobFlags(f *jobFlags, withAsync bool) {
	f.labels = stringmapflag.Value{}
	r.Flags.StringVar(&f.jobPrefix, "job-prefix", "", "Prefix of the job id.")
	r.Flags.StringVar(&f.writeDisposition, "write-disposition", "", text.Doc(`
		One of WRITE_APPEND (default), WRITE_TRUNCATE or WRITE_EMPTY.
	`))
	r.Flags.StringVar(&f.createDisposition, "create-disposition", "", text.Doc(`
		One of CREATE_IF_NEEDED (default) or CREATE_NEVER.
	`))
	r.Flags.Var(&f.labels, "label", "Job label as key=value. Can be repeated.")
	if withAsync {
		r.Flags.BoolVar(&f.async, "async", false, "Print the job id instead of waiting for the job.")
	}
}

// printRows writes rows to stdout, one JSON object per line.
func printRows(rows bq.RowIterator) error {
	enc := json.NewEncoder(os.Stdout)
	for {
		row, err := rows.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
}

func printJob(job bq.Job) {
	line := fmt.Sprintf("%s\t%s", job.JobID(), job.JobState())
	switch j := job.(type) {
	case *bq.QueryJob:
		if j.Error != nil {
			line += "\t" + j.Error.Error()
		}
	case *bq.LoadJob:
		if j.Error != nil {
			line += "\t" + j.Error.Error()
		}
	case *bq.ExtractJob:
		if j.Error != nil {
			line += "\t" + j.Error.Error()
		}
	}
	fmt.Println(line)
}

func cmdQuery(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "query [flags] <sql>",
		ShortDesc: "runs a query and prints the result rows",
		LongDesc: text.Doc(`
			Runs an interactive query, waits for it and prints every result row
			as a JSON object on its own line.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &queryRun{}
			r.addSharedFlags(authOpts)
			r.addBigQueryFlags()
			return r
		},
	}
}

type queryRun struct {
	bqRun
}

func (r *queryRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx, args))
}

func (r *queryRun) run(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return errors.Reason("a query is required").Err()
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	rows, err := client.RunSyncQuery(ctx, query)
	if err != nil {
		return err
	}
	return printRows(rows)
}

func cmdQueryAsync(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "query-async [flags] <sql>",
		ShortDesc: "submits a query job and prints its id",
		LongDesc: text.Doc(`
			Submits a query job without waiting for it and prints the job id.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &queryAsyncRun{}
			r.addSharedFlags(authOpts)
			r.addBigQueryFlags()
			r.addJobFlags(&r.job, false)
			r.Flags.StringVar(&r.priority, "priority", "", "INTERACTIVE (default) or BATCH.")
			r.Flags.StringVar(&r.destination, "destination", "", "Destination table as <project>.<dataset>.<table>.")
			r.Flags.BoolVar(&r.legacySQL, "legacy-sql", false, "Use legacy SQL.")
			return r
		},
	}
}

type queryAsyncRun struct {
	bqRun
	job         jobFlags
	priority    string
	destination string
	legacySQL   bool
}

func (r *queryAsyncRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx, args))
}

func (r *queryAsyncRun) config() (*bq.QueryJobConfig, error) {
	cfg := &bq.QueryJobConfig{
		Priority:          bq.Priority(strings.ToUpper(r.priority)),
		CreateDisposition: bq.CreateDisposition(strings.ToUpper(r.job.createDisposition)),
		WriteDisposition:  bq.WriteDisposition(strings.ToUpper(r.job.writeDisposition)),
		UseLegacySQL:      r.legacySQL,
		Labels:            r.job.labels,
	}
	if r.destination != "" {
		dst, err := bq.ParseTableRef(r.destination)
		if err != nil {
			return nil, err
		}
		cfg.Destination = &dst
	}
	return cfg, cfg.Validate()
}

func (r *queryAsyncRun) run(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return errors.Reason("a query is required").Err()
	}
	cfg, err := r.config()
	if err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := client.RunAsyncQuery(ctx, query, cfg, r.job.jobPrefix)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func cmdLoad(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "load -destination project.dataset.table -source gs://bucket/file.csv",
		ShortDesc: "loads files from Cloud Storage into a table",
		LongDesc: text.Doc(`
			Loads files from Cloud Storage into a BigQuery table and waits for
			the load job, unless -async is given.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &loadRun{}
			r.addSharedFlags(authOpts)
			r.addBigQueryFlags()
			r.addJobFlags(&r.job, true)
			r.Flags.StringVar(&r.destination, "destination", "", "Destination table as <project>.<dataset>.<table>. Required.")
			r.Flags.StringVar(&r.source, "source", "", "Comma separated gs:// URIs of the files to load. Required.")
			r.Flags.StringVar(&r.format, "format", "", "CSV (default), NEWLINE_DELIMITED_JSON, AVRO or PARQUET.")
			r.Flags.StringVar(&r.schemaPath, "schema", "", "Path to a JSON schema file.")
			r.Flags.Int64Var(&r.skipLeadingRows, "skip-leading-rows", 0, "Number of header rows to skip.")
			return r
		},
	}
}

type loadRun struct {
	bqRun
	job             jobFlags
	destination     string
	source          string
	format          string
	schemaPath      string
	skipLeadingRows int64
}

func (r *loadRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *loadRun) config() (*bq.LoadJobConfig, error) {
	if err := requireFlags(requiredFlag{"destination", r.destination}, requiredFlag{"source", r.source}); err != nil {
		return nil, err
	}
	dst, err := bq.ParseTableRef(r.destination)
	if err != nil {
		return nil, err
	}
	cfg := &bq.LoadJobConfig{
		Destination:       dst,
		SourceURIs:        strings.Split(r.source, ","),
		SourceFormat:      bigquery.DataFormat(strings.ToUpper(r.format)),
		SkipLeadingRows:   r.skipLeadingRows,
		CreateDisposition: bq.CreateDisposition(strings.ToUpper(r.job.createDisposition)),
		WriteDisposition:  bq.WriteDisposition(strings.ToUpper(r.job.writeDisposition)),
		Labels:            r.job.labels,
	}
	if r.schemaPath != "" {
		data, err := os.ReadFile(r.schemaPath)
		if err != nil {
			return nil, errors.Annotate(err, "read schema").Err()
		}
		if cfg.Schema, err = bq.ParseSchema(data); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func (r *loadRun) run(ctx context.Context) error {
	cfg, err := r.config()
	if err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if r.job.async {
		id, err := client.RunAsyncLoadJob(ctx, cfg, r.job.jobPrefix)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	}
	job, err := client.RunLoadJob(ctx, cfg)
	if job != nil {
		printJob(job)
	}
	return err
}

func cmdExtract(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "extract -source project.dataset.table -destination gs://bucket/out-*.csv",
		ShortDesc: "extracts a table to Cloud Storage",
		LongDesc: text.Doc(`
			Extracts a BigQuery table to files in Cloud Storage and waits for
			the extract job, unless -async is given.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &extractRun{}
			r.addSharedFlags(authOpts)
			r.addBigQueryFlags()
			r.addJobFlags(&r.job, true)
			r.Flags.StringVar(&r.source, "source", "", "Source table as <project>.<dataset>.<table>. Required.")
			r.Flags.StringVar(&r.destination, "destination", "", "Comma separated gs:// URIs to extract to. Required.")
			r.Flags.StringVar(&r.format, "format", "", "CSV (default), NEWLINE_DELIMITED_JSON or AVRO.")
			r.Flags.StringVar(&r.compression, "compression", "", "NONE (default) or GZIP.")
			r.Flags.StringVar(&r.delimiter, "field-delimiter", "", "CSV field delimiter. Defaults to a comma.")
			r.Flags.BoolVar(&r.noHeader, "no-header", false, "Do not print a CSV header row.")
			return r
		},
	}
}

type extractRun struct {
	bqRun
	job         jobFlags
	source      string
	destination string
	format      string
	compression string
	delimiter   string
	noHeader    bool
}

func (r *extractRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *extractRun) config() (*bq.ExtractJobConfig, error) {
	if err := requireFlags(requiredFlag{"source", r.source}, requiredFlag{"destination", r.destination}); err != nil {
		return nil, err
	}
	src, err := bq.ParseTableRef(r.source)
	if err != nil {
		return nil, err
	}
	cfg := &bq.ExtractJobConfig{
		Source:            src,
		DestinationURIs:   strings.Split(r.destination, ","),
		DestinationFormat: bigquery.DataFormat(strings.ToUpper(r.format)),
		Compression:       bigquery.Compression(strings.ToUpper(r.compression)),
		FieldDelimiter:    r.delimiter,
		PrintHeader:       !r.noHeader,
		Labels:            r.job.labels,
	}
	return cfg, cfg.Validate()
}

func (r *extractRun) run(ctx context.Context) error {
	cfg, err := r.config()
	if err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if r.job.async {
		id, err := client.RunAsyncExtractJob(ctx, cfg, r.job.jobPrefix)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	}
	job, err := client.RunExtractJob(ctx, cfg)
	if job != nil {
		printJob(job)
	}
	return err
}

func cmdWaitJob(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "wait-job [flags] <job id>",
		ShortDesc: "waits for a job to finish",
		LongDesc:  "Waits for a job to finish and prints its id, state and error.",
		CommandRun: func() subcommands.CommandRun {
			r := &waitJobRun{}
			r.addSharedFlags(authOpts)
			r.addBigQueryFlags()
			r.Flags.DurationVar(&r.timeout, "timeout", 10*time.Minute, "How long to wait. 0 waits forever.")
			return r
		},
	}
}

type waitJobRun struct {
	bqRun
	timeout time.Duration
}

func (r *waitJobRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx, args))
}

func (r *waitJobRun) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.Reason("exactly one job id is required").Err()
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	job, err := client.WaitForJobDone(ctx, args[0], r.timeout)
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

// failedJobsFlags select the failed jobs of a batch.
type failedJobsFlags struct {
	prefix string
	since  time.Duration
}

func (r *bqRun) addFailedJobsFlags(f *failedJobsFlags) {
	r.Flags.StringVar(&f.prefix, "prefix", "", "Job id prefix of the batch. Required.")
	r.Flags.DurationVar(&f.since, "since", 24*time.Hour, "Only consider jobs created this long ago or later.")
}

func cmdFailedJobs(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "failed-jobs -prefix <job id prefix>",
		ShortDesc: "lists the failed jobs of a batch",
		LongDesc: text.Doc(`
			Lists the failed query, load and extract jobs of all users whose
			id starts with -prefix.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &failedJobsRun{}
			r.addSharedFlags(authOpts)
			r.addBigQueryFlags()
			r.addFailedJobsFlags(&r.filter)
			return r
		},
	}
}

type failedJobsRun struct {
	bqRun
	filter failedJobsFlags
}

func (r *failedJobsRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *failedJobsRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"prefix", r.filter.prefix}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	jobs, err := client.FailedJobs(ctx, r.filter.prefix, clock.Now(ctx).Add(-r.filter.since))
	if err != nil {
		return err
	}
	for _, job := range jobs {
		printJob(job)
	}
	return nil
}

func cmdRelaunchFailed(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "relaunch-failed -prefix <job id prefix>",
		ShortDesc: "relaunches the failed jobs of a batch",
		LongDesc: text.Doc(`
			Submits the failed jobs whose id starts with -prefix again, with
			"<prefix>-retry-<N>-" job ids. Nothing is submitted if a job has
			already been relaunched -max-attempts times.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &relaunchFailedRun{}
			r.addSharedFlags(authOpts)
			r.addBigQueryFlags()
			r.addFailedJobsFlags(&r.filter)
			r.Flags.IntVar(&r.maxAttempts, "max-attempts", 3, "How many times a job may be relaunched.")
			return r
		},
	}
}

type relaunchFailedRun struct {
	bqRun
	filter      failedJobsFlags
	maxAttempts int
}

func (r *relaunchFailedRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *relaunchFailedRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"prefix", r.filter.prefix}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	ids, err := client.RelaunchFailedJobs(ctx, r.filter.prefix, clock.Now(ctx).Add(-r.filter.since), r.maxAttempts)
	for _, id := range ids {
		fmt.Println(id)
	}
	return err
}
