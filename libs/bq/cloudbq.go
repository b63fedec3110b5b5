// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"context"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// CloudAPI wraps the prod client.
type CloudAPI struct {
	client *bigquery.Client
}

// Assert that CloudAPI satisfies the right interface.
var _ API = &CloudAPI{}

// NewCloudAPI makes a new one. Jobs run in the client's Location.
func NewCloudAPI(client *bigquery.Client) *CloudAPI {
	return &CloudAPI{
		client: client,
	}
}

// Close closes the underlying client.
func (c *CloudAPI) Close() error {
	return c.client.Close()
}

func (c *CloudAPI) query(query string, cfg *QueryJobConfig, jobIDPrefix string) (*bigquery.Query, error) {
	q := c.client.Query(query)
	if err := cfg.apply(c.client, &q.QueryConfig); err != nil {
		return nil, err
	}
	setJobIDPrefix(&q.JobIDConfig, jobIDPrefix)
	return q, nil
}

// StartQuery submits a query job.
func (c *CloudAPI) StartQuery(ctx context.Context, query string, cfg *QueryJobConfig, jobIDPrefix string) (string, error) {
	q, err := c.query(query, cfg, jobIDPrefix)
	if err != nil {
		return "", err
	}
	job, err := q.Run(ctx)
	if err != nil {
		return "", err
	}
	return job.ID(), nil
}

// ReadQuery runs a query and returns its rows.
func (c *CloudAPI) ReadQuery(ctx context.Context, query string, cfg *QueryJobConfig) (RowIterator, error) {
	q, err := c.query(query, cfg, "")
	if err != nil {
		return nil, err
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	return &cloudRows{it: it}, nil
}

// StartLoad submits a load job.
func (c *CloudAPI) StartLoad(ctx context.Context, cfg *LoadJobConfig, jobIDPrefix string) (string, error) {
	loader := cfg.Destination.table(c.client).LoaderFrom(cfg.gcsReference())
	if err := cfg.apply(&loader.LoadConfig); err != nil {
		return "", err
	}
	setJobIDPrefix(&loader.JobIDConfig, jobIDPrefix)
	job, err := loader.Run(ctx)
	if err != nil {
		return "", err
	}
	return job.ID(), nil
}

// StartExtract submits an extract job.
func (c *CloudAPI) StartExtract(ctx context.Context, cfg *ExtractJobConfig, jobIDPrefix string) (string, error) {
	extractor := cfg.Source.table(c.client).ExtractorTo(cfg.gcsReference())
	extractor.DisableHeader = !cfg.PrintHeader
	extractor.UseAvroLogicalTypes = cfg.UseAvroLogicalTypes
	extractor.Labels = cfg.Labels
	setJobIDPrefix(&extractor.JobIDConfig, jobIDPrefix)
	job, err := extractor.Run(ctx)
	if err != nil {
		return "", err
	}
	return job.ID(), nil
}

// ListJobs lists the jobs of the client's project.
func (c *CloudAPI) ListJobs(ctx context.Context, filter JobFilter) ([]JobInfo, error) {
	it := c.client.Jobs(ctx)
	it.AllUsers = filter.AllUsers
	it.MinCreationTime = filter.MinCreationTime

	return collectJobs(ctx, func() (listedJob, error) {
		job, err := it.Next()
		if err != nil {
			return nil, err
		}
		return job, nil
	}, filter.MaxResults)
}

// listedJob is the part of *bigquery.Job read when listing.
type listedJob interface {
	ID() string
	Config() (bigquery.JobConfig, error)
	LastStatus() *bigquery.JobStatus
}

// collectJobs drains next until iterator.Done or max jobs are collected.
// Jobs whose configuration cannot be read are skipped.
func collectJobs(ctx context.Context, next func() (listedJob, error), max int) ([]JobInfo, error) {
	var out []JobInfo
	for max <= 0 || len(out) < max {
		job, err := next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "list jobs").Err()
		}
		info, err := jobInfo(job)
		if err != nil {
			logging.Debugf(ctx, "Skipping job %s: %s", job.ID(), err)
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// WaitJob blocks until the job is done.
func (c *CloudAPI) WaitJob(ctx context.Context, jobID string) (JobInfo, error) {
	job, err := c.client.JobFromID(ctx, jobID)
	if err != nil {
		return JobInfo{}, errors.Annotate(err, "get job %q", jobID).Err()
	}
	return waitJob(ctx, job)
}

// waitableJob is the part of *bigquery.Job used by waitJob.
type waitableJob interface {
	listedJob
	Wait(ctx context.Context) (*bigquery.JobStatus, error)
	Status(ctx context.Context) (*bigquery.JobStatus, error)
}

// waitJob waits for job. For query jobs Wait also fails when the job
// itself failed. Once the job is done its status is authoritative, and a
// failure is reported through it.
func waitJob(ctx context.Context, job waitableJob) (JobInfo, error) {
	if _, waitErr := job.Wait(ctx); waitErr != nil {
		if ctx.Err() != nil {
			return JobInfo{}, errors.Annotate(waitErr, "wait for job %q", job.ID()).Err()
		}
		status, err := job.Status(ctx)
		if err != nil || !status.Done() {
			return JobInfo{}, errors.Annotate(waitErr, "wait for job %q", job.ID()).Err()
		}
		logging.Debugf(ctx, "Job %s is done despite: %s", job.ID(), waitErr)
	}
	return jobInfo(job)
}

// DatasetMetadata fetches the metadata of a dataset.
func (c *CloudAPI) DatasetMetadata(ctx context.Context, projectID, datasetID string) (*bigquery.DatasetMetadata, error) {
	return c.client.DatasetInProject(projectID, datasetID).Metadata(ctx)
}

// CreateDataset creates a dataset.
func (c *CloudAPI) CreateDataset(ctx context.Context, projectID, datasetID string, md *bigquery.DatasetMetadata) error {
	return c.client.DatasetInProject(projectID, datasetID).Create(ctx, md)
}

// DeleteDataset deletes a dataset, optionally with the tables in it.
func (c *CloudAPI) DeleteDataset(ctx context.Context, projectID, datasetID string, deleteContents bool) error {
	ds := c.client.DatasetInProject(projectID, datasetID)
	if deleteContents {
		return ds.DeleteWithContents(ctx)
	}
	return ds.Delete(ctx)
}

// TableMetadata fetches the metadata of a table.
func (c *CloudAPI) TableMetadata(ctx context.Context, ref TableRef) (*bigquery.TableMetadata, error) {
	return ref.table(c.client).Metadata(ctx)
}

// CreateTable creates a table.
func (c *CloudAPI) CreateTable(ctx context.Context, ref TableRef, md *bigquery.TableMetadata) error {
	return ref.table(c.client).Create(ctx, md)
}

// DeleteTable deletes a table.
func (c *CloudAPI) DeleteTable(ctx context.Context, ref TableRef) error {
	return ref.table(c.client).Delete(ctx)
}

// Put writes records to BigQuery.
func (c *CloudAPI) Put(ctx context.Context, ref TableRef, rows []bigquery.ValueSaver) error {
	return ref.table(c.client).Inserter().Put(ctx, rows)
}

func setJobIDPrefix(cfg *bigquery.JobIDConfig, prefix string) {
	if prefix == "" {
		return
	}
	cfg.JobID = prefix
	cfg.AddJobIDSuffix = true
}

func jobInfo(job listedJob) (JobInfo, error) {
	cfg, err := job.Config()
	if err != nil {
		return JobInfo{}, errors.Annotate(err, "config of job %q", job.ID()).Err()
	}
	info := JobInfo{ID: job.ID(), Config: cfg}
	if status := job.LastStatus(); status != nil {
		info.State = status.State
		info.Err = status.Err()
	}
	return info, nil
}

// cloudRows adapts *bigquery.RowIterator to RowIterator.
type cloudRows struct {
	it *bigquery.RowIterator
}

func (r *cloudRows) Next() (map[string]bigquery.Value, error) {
	var row map[string]bigquery.Value
	if err := r.it.Next(&row); err != nil {
		return nil, err
	}
	return row, nil
}
