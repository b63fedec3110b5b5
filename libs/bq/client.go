// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"gcptoolkit/libs/gcperr"
)

// DefaultLocation is the location jobs run in unless told otherwise.
const DefaultLocation = "EU"

// Client runs BigQuery jobs for a single project.
type Client struct {
	api       API
	projectID string
	location  string
}

// NewClient creates a Client backed by a real BigQuery client. An empty
// location means DefaultLocation.
func NewClient(ctx context.Context, projectID, location string, opts ...option.ClientOption) (*Client, error) {
	if location == "" {
		location = DefaultLocation
	}
	c, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "initializing BigQuery client").Err()
	}
	c.Location = location
	return NewClientWithAPI(NewCloudAPI(c), projectID, location), nil
}

// NewClientWithAPI creates a Client on top of an arbitrary API
// implementation.
func NewClientWithAPI(api API, projectID, location string) *Client {
	if location == "" {
		location = DefaultLocation
	}
	return &Client{api: api, projectID: projectID, location: location}
}

// ProjectID is the project jobs are billed to.
func (c *Client) ProjectID() string { return c.projectID }

// Location is the location jobs run in.
func (c *Client) Location() string { return c.location }

// Close releases the underlying client, if it needs releasing.
func (c *Client) Close() error {
	if closer, ok := c.api.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// RunAsyncQuery submits a query and returns the job id without waiting for
// it. cfg may be nil.
func (c *Client) RunAsyncQuery(ctx context.Context, query string, cfg *QueryJobConfig, jobIDPrefix string) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	jobID, err := c.api.StartQuery(ctx, query, cfg, jobIDPrefix)
	if err != nil {
		return "", errors.Annotate(err, "start query").Err()
	}
	logging.Debugf(ctx, "Started query job %s", jobID)
	return jobID, nil
}

// RunSyncQuery runs an interactive query and blocks until its result is
// available.
//
// Failures, both when submitting and while reading rows, are reported as
// *QueryError.
func (c *Client) RunSyncQuery(ctx context.Context, query string) (RowIterator, error) {
	rows, err := c.api.ReadQuery(ctx, query, &QueryJobConfig{Priority: Interactive})
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return &queryRows{query: query, rows: rows}, nil
}

// queryRows wraps iteration errors in QueryError.
type queryRows struct {
	query string
	rows  RowIterator
}

func (r *queryRows) Next() (map[string]bigquery.Value, error) {
	row, err := r.rows.Next()
	switch {
	case err == iterator.Done:
		return nil, err
	case err != nil:
		return nil, &QueryError{Query: r.query, Err: err}
	}
	return row, nil
}

// RunAsyncLoadJob submits a load job and returns the job id.
func (c *Client) RunAsyncLoadJob(ctx context.Context, cfg *LoadJobConfig, jobIDPrefix string) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	jobID, err := c.api.StartLoad(ctx, cfg, jobIDPrefix)
	if err != nil {
		return "", errors.Annotate(err, "start load into %s", cfg.Destination).Err()
	}
	logging.Debugf(ctx, "Started load job %s", jobID)
	return jobID, nil
}

// RunLoadJob runs a load job to completion. If the job fails the returned
// error is its *JobError.
func (c *Client) RunLoadJob(ctx context.Context, cfg *LoadJobConfig) (*LoadJob, error) {
	jobID, err := c.RunAsyncLoadJob(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	job, err := c.waitFor(ctx, jobID)
	if err != nil {
		return nil, err
	}
	load, ok := job.(*LoadJob)
	if !ok {
		return nil, errors.Reason("job %q is not a load job", jobID).Err()
	}
	if load.IsFailed() {
		return load, load.Error
	}
	return load, nil
}

// RunAsyncExtractJob submits an extract job and returns the job id.
func (c *Client) RunAsyncExtractJob(ctx context.Context, cfg *ExtractJobConfig, jobIDPrefix string) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	jobID, err := c.api.StartExtract(ctx, cfg, jobIDPrefix)
	if err != nil {
		return "", errors.Annotate(err, "start extract from %s", cfg.Source).Err()
	}
	logging.Debugf(ctx, "Started extract job %s", jobID)
	return jobID, nil
}

// RunExtractJob runs an extract job to completion. If the job fails the
// returned error is its *JobError.
func (c *Client) RunExtractJob(ctx context.Context, cfg *ExtractJobConfig) (*ExtractJob, error) {
	jobID, err := c.RunAsyncExtractJob(ctx, cfg, "")
	if err != nil {
		return nil, err
	}
	job, err := c.waitFor(ctx, jobID)
	if err != nil {
		return nil, err
	}
	extract, ok := job.(*ExtractJob)
	if !ok {
		return nil, errors.Reason("job %q is not an extract job", jobID).Err()
	}
	if extract.IsFailed() {
		return extract, extract.Error
	}
	return extract, nil
}

// WaitForJobDone blocks until the job is done or timeout elapses. A zero
// timeout waits as long as ctx allows.
func (c *Client) WaitForJobDone(ctx context.Context, jobID string, timeout time.Duration) (Job, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.waitFor(ctx, jobID)
}

func (c *Client) waitFor(ctx context.Context, jobID string) (Job, error) {
	info, err := c.api.WaitJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job, ok := classify(info)
	if !ok {
		return nil, errors.Reason("job %q has an unsupported type", jobID).Err()
	}
	return job, nil
}

// ListJobs returns the query, load and extract jobs matching filter. Other
// job types are skipped.
func (c *Client) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	infos, err := c.api.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(infos))
	for _, info := range infos {
		job, ok := classify(info)
		if !ok {
			logging.Debugf(ctx, "Skipping job %s of unsupported type", info.ID)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// JobsWithPrefix returns the jobs of all users created since
// minCreationTime whose id starts with prefix.
func (c *Client) JobsWithPrefix(ctx context.Context, prefix string, minCreationTime time.Time) ([]Job, error) {
	jobs, err := c.ListJobs(ctx, JobFilter{MinCreationTime: minCreationTime, AllUsers: true})
	if err != nil {
		return nil, err
	}
	var out []Job
	for _, job := range jobs {
		if strings.HasPrefix(job.JobID(), prefix) {
			out = append(out, job)
		}
	}
	return out, nil
}

// FailedJobs returns the failed jobs created since minCreationTime whose id
// starts with prefix.
func (c *Client) FailedJobs(ctx context.Context, prefix string, minCreationTime time.Time) ([]Job, error) {
	jobs, err := c.JobsWithPrefix(ctx, prefix, minCreationTime)
	if err != nil {
		return nil, err
	}
	var out []Job
	for _, job := range jobs {
		if job.IsFailed() {
			out = append(out, job)
		}
	}
	return out, nil
}

// RelaunchJobs submits every job again under a "<prefix>-retry-<N>-" id
// prefix and returns the new job ids.
//
// Every job is checked before the first submission. If any job has already
// used up maxAttempts relaunches a *RetryLimitExceededError is returned, and
// if any job cannot be resubmitted as it is its validation error is
// returned. Nothing is submitted in either case.
func (c *Client) RelaunchJobs(ctx context.Context, jobs []Job, prefix string, maxAttempts int) ([]string, error) {
	prefixes := make([]string, len(jobs))
	for i, job := range jobs {
		p, err := RetryJobIDPrefix(job.JobID(), prefix, maxAttempts)
		if err != nil {
			return nil, err
		}
		if err := validateRelaunch(job); err != nil {
			return nil, errors.Annotate(err, "relaunch %q", job.JobID()).Err()
		}
		prefixes[i] = p
	}

	ids := make([]string, 0, len(jobs))
	for i, job := range jobs {
		var (
			id  string
			err error
		)
		switch j := job.(type) {
		case *QueryJob:
			id, err = c.RunAsyncQuery(ctx, j.Query, &j.Config, prefixes[i])
		case *LoadJob:
			id, err = c.RunAsyncLoadJob(ctx, &j.Config, prefixes[i])
		case *ExtractJob:
			id, err = c.RunAsyncExtractJob(ctx, &j.Config, prefixes[i])
		}
		if err != nil {
			return ids, errors.Annotate(err, "relaunch %q", job.JobID()).Err()
		}
		logging.Infof(ctx, "Relaunched %s as %s", job.JobID(), id)
		ids = append(ids, id)
	}
	return ids, nil
}

// validateRelaunch checks that job can be submitted again as recorded.
func validateRelaunch(job Job) error {
	switch j := job.(type) {
	case *QueryJob:
		if strings.TrimSpace(j.Query) == "" {
			return errors.Reason("query must not be empty").Err()
		}
		return j.Config.Validate()
	case *LoadJob:
		return j.Config.Validate()
	case *ExtractJob:
		return j.Config.Validate()
	}
	return errors.Reason("unsupported job type %T", job).Err()
}

// RelaunchFailedJobs relaunches the failed jobs created since
// minCreationTime whose id starts with prefix.
func (c *Client) RelaunchFailedJobs(ctx context.Context, prefix string, minCreationTime time.Time, maxAttempts int) ([]string, error) {
	failed, err := c.FailedJobs(ctx, prefix, minCreationTime)
	if err != nil {
		return nil, err
	}
	return c.RelaunchJobs(ctx, failed, prefix, maxAttempts)
}

// DatasetExists reports whether a dataset exists.
func (c *Client) DatasetExists(ctx context.Context, datasetID string) (bool, error) {
	_, err := c.api.DatasetMetadata(ctx, c.projectID, datasetID)
	switch {
	case gcperr.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, errors.Annotate(err, "get dataset %q", datasetID).Err()
	}
	return true, nil
}

// CreateDatasetIfNotExists creates a dataset in the client's location
// unless it is already there.
func (c *Client) CreateDatasetIfNotExists(ctx context.Context, datasetID string) error {
	err := c.api.CreateDataset(ctx, c.projectID, datasetID, &bigquery.DatasetMetadata{Location: c.location})
	switch {
	case gcperr.IsAlreadyExists(err):
		logging.Debugf(ctx, "Dataset %s already exists", datasetID)
		return nil
	case err != nil:
		return errors.Annotate(err, "create dataset %q", datasetID).Err()
	}
	logging.Infof(ctx, "Created dataset %s", datasetID)
	return nil
}

// DeleteDatasetIfExists deletes a dataset and, if deleteContents is set,
// its tables. A missing dataset is not an error.
func (c *Client) DeleteDatasetIfExists(ctx context.Context, datasetID string, deleteContents bool) error {
	err := c.api.DeleteDataset(ctx, c.projectID, datasetID, deleteContents)
	if err != nil && !gcperr.IsNotFound(err) {
		return errors.Annotate(err, "delete dataset %q", datasetID).Err()
	}
	return nil
}

// TableExists reports whether a table exists.
func (c *Client) TableExists(ctx context.Context, ref TableRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	_, err := c.api.TableMetadata(ctx, ref)
	switch {
	case gcperr.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, errors.Annotate(err, "get table %s", ref).Err()
	}
	return true, nil
}

// CreateTableIfNotExists creates a table unless it is already there.
func (c *Client) CreateTableIfNotExists(ctx context.Context, ref TableRef, md *bigquery.TableMetadata) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	err := c.api.CreateTable(ctx, ref, md)
	switch {
	case gcperr.IsAlreadyExists(err):
		logging.Debugf(ctx, "Table %s already exists", ref)
		return nil
	case err != nil:
		return errors.Annotate(err, "create table %s", ref).Err()
	}
	logging.Infof(ctx, "Created table %s", ref)
	return nil
}

// DeleteTableIfExists deletes a table. A missing table is not an error.
func (c *Client) DeleteTableIfExists(ctx context.Context, ref TableRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	err := c.api.DeleteTable(ctx, ref)
	if err != nil && !gcperr.IsNotFound(err) {
		return errors.Annotate(err, "delete table %s", ref).Err()
	}
	return nil
}

// InsertRows streams rows into a table.
func (c *Client) InsertRows(ctx context.Context, ref TableRef, rows []bigquery.ValueSaver) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.api.Put(ctx, ref, rows); err != nil {
		return errors.Annotate(err, "insert %d rows into %s", len(rows), ref).Err()
	}
	logging.Infof(ctx, "Inserted %d rows into %s", len(rows), ref)
	return nil
}
