// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package bq is a thin convenience layer over the BigQuery API.
//
// Job execution, polling and result paging are left to the BigQuery client
// library. This package translates a small set of job settings into the
// library's request objects, maps listed jobs onto QueryJob, LoadJob and
// ExtractJob records and keeps track of how many times a failed job has
// been relaunched.
//
// The API interface has two implementations:
//
//  1. CloudAPI -- the production one, backed by *bigquery.Client.
//  2. MockAPI  -- generated by mockgen, for tests.
package bq

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
)

//go:generate mockgen -source bq.go -destination mock_api.go -package bq

// API is the subset of the BigQuery service used by Client.
type API interface {
	// StartQuery submits a query job and returns its id without waiting.
	StartQuery(ctx context.Context, query string, cfg *QueryJobConfig, jobIDPrefix string) (string, error)
	// ReadQuery runs a query, waits for it and returns the result rows.
	ReadQuery(ctx context.Context, query string, cfg *QueryJobConfig) (RowIterator, error)
	// StartLoad submits a load job and returns its id without waiting.
	StartLoad(ctx context.Context, cfg *LoadJobConfig, jobIDPrefix string) (string, error)
	// StartExtract submits an extract job and returns its id without waiting.
	StartExtract(ctx context.Context, cfg *ExtractJobConfig, jobIDPrefix string) (string, error)
	// ListJobs lists the jobs of the project matching filter.
	ListJobs(ctx context.Context, filter JobFilter) ([]JobInfo, error)
	// WaitJob blocks until the job is done or ctx expires.
	WaitJob(ctx context.Context, jobID string) (JobInfo, error)

	DatasetMetadata(ctx context.Context, projectID, datasetID string) (*bigquery.DatasetMetadata, error)
	CreateDataset(ctx context.Context, projectID, datasetID string, md *bigquery.DatasetMetadata) error
	DeleteDataset(ctx context.Context, projectID, datasetID string, deleteContents bool) error

	TableMetadata(ctx context.Context, ref TableRef) (*bigquery.TableMetadata, error)
	CreateTable(ctx context.Context, ref TableRef, md *bigquery.TableMetadata) error
	DeleteTable(ctx context.Context, ref TableRef) error

	// Put streams rows into a table.
	Put(ctx context.Context, ref TableRef, rows []bigquery.ValueSaver) error
}

// RowIterator iterates over the rows of a query result.
//
// Next returns iterator.Done when there are no more rows.
type RowIterator interface {
	Next() (map[string]bigquery.Value, error)
}

// JobFilter selects jobs for ListJobs.
type JobFilter struct {
	// MinCreationTime, when set, skips jobs created before it.
	MinCreationTime time.Time
	// MaxResults caps the number of jobs returned. Zero means no cap.
	MaxResults int
	// AllUsers includes jobs submitted by other principals.
	AllUsers bool
}
