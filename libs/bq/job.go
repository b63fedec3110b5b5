// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	Pending JobState = "PENDING"
	Running JobState = "RUNNING"
	Done    JobState = "DONE"
)

func jobStateFromBigQuery(s bigquery.State) JobState {
	switch s {
	case bigquery.Pending:
		return Pending
	case bigquery.Running:
		return Running
	case bigquery.Done:
		return Done
	}
	return ""
}

// JobError is the error payload of a failed job.
type JobError struct {
	Reason   string
	Location string
	Message  string
}

func (e *JobError) Error() string {
	if e.Reason == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func jobErrorFromBigQuery(err error) *JobError {
	if err == nil {
		return nil
	}
	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) {
		return &JobError{Reason: bqErr.Reason, Location: bqErr.Location, Message: bqErr.Message}
	}
	return &JobError{Message: err.Error()}
}

// Job is a query, load or extract job record.
type Job interface {
	JobID() string
	JobState() JobState
	// IsFailed reports whether the job carries an error payload. It does not
	// look at the state.
	IsFailed() bool
}

// QueryJob is a query job record.
type QueryJob struct {
	ID     string
	Query  string
	Config QueryJobConfig
	State  JobState
	Error  *JobError
}

func (j *QueryJob) JobID() string      { return j.ID }
func (j *QueryJob) JobState() JobState { return j.State }
func (j *QueryJob) IsFailed() bool     { return j.Error != nil }

// LoadJob is a load job record.
type LoadJob struct {
	ID     string
	Config LoadJobConfig
	State  JobState
	Error  *JobError
}

func (j *LoadJob) JobID() string      { return j.ID }
func (j *LoadJob) JobState() JobState { return j.State }
func (j *LoadJob) IsFailed() bool     { return j.Error != nil }

// ExtractJob is an extract job record.
type ExtractJob struct {
	ID     string
	Config ExtractJobConfig
	State  JobState
	Error  *JobError
}

func (j *ExtractJob) JobID() string      { return j.ID }
func (j *ExtractJob) JobState() JobState { return j.State }
func (j *ExtractJob) IsFailed() bool     { return j.Error != nil }

// JobInfo is the raw view of a job as reported by BigQuery.
type JobInfo struct {
	ID     string
	Config bigquery.JobConfig
	State  bigquery.State
	// Err is the job's error result, nil unless the job failed.
	Err error
}

// classify maps a raw job onto the matching record type.
//
// Copy jobs and jobs whose configuration could not be read are not
// supported; ok is false for them.
func classify(info JobInfo) (job Job, ok bool) {
	state := jobStateFromBigQuery(info.State)
	jobErr := jobErrorFromBigQuery(info.Err)

	switch cfg := info.Config.(type) {
	case *bigquery.QueryConfig:
		return &QueryJob{
			ID:    info.ID,
			Query: cfg.Q,
			Config: QueryJobConfig{
				Priority:          Priority(cfg.Priority),
				Destination:       tableRefFromBigQuery(cfg.Dst),
				CreateDisposition: CreateDisposition(cfg.CreateDisposition),
				WriteDisposition:  WriteDisposition(cfg.WriteDisposition),
				UseLegacySQL:      cfg.UseLegacySQL,
				Labels:            cfg.Labels,
			},
			State: state,
			Error: jobErr,
		}, true
	case *bigquery.LoadConfig:
		lc := LoadJobConfig{
			CreateDisposition: CreateDisposition(cfg.CreateDisposition),
			WriteDisposition:  WriteDisposition(cfg.WriteDisposition),
			Labels:            cfg.Labels,
		}
		if dst := tableRefFromBigQuery(cfg.Dst); dst != nil {
			lc.Destination = *dst
		}
		if src, isGCS := cfg.Src.(*bigquery.GCSReference); isGCS {
			lc.SourceURIs = append([]string(nil), src.URIs...)
			fc := src.FileConfig
			lc.FileConfig = &fc
			lc.SourceFormat = src.SourceFormat
			lc.Schema = src.Schema
			lc.SkipLeadingRows = src.SkipLeadingRows
		}
		return &LoadJob{ID: info.ID, Config: lc, State: state, Error: jobErr}, true
	case *bigquery.ExtractConfig:
		ec := ExtractJobConfig{
			UseAvroLogicalTypes: cfg.UseAvroLogicalTypes,
			PrintHeader:         !cfg.DisableHeader,
			Labels:              cfg.Labels,
		}
		if src := tableRefFromBigQuery(cfg.Src); src != nil {
			ec.Source = *src
		}
		if cfg.Dst != nil {
			ec.DestinationURIs = append([]string(nil), cfg.Dst.URIs...)
			ec.DestinationFormat = cfg.Dst.DestinationFormat
			ec.Compression = cfg.Dst.Compression
			ec.FieldDelimiter = cfg.Dst.FieldDelimiter
		}
		return &ExtractJob{ID: info.ID, Config: ec, State: state, Error: jobErr}, true
	}
	return nil, false
}
