// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"encoding/json"
	"strings"

	"cloud.google.com/go/bigquery"

	"go.chromium.org/luci/common/errors"
)

// Priority is the scheduling priority of a query job.
type Priority string

const (
	// Interactive queries start as soon as possible.
	Interactive Priority = "INTERACTIVE"
	// Batch queries wait for idle resources.
	Batch Priority = "BATCH"
)

// WriteDisposition governs what happens to existing rows of a destination
// table.
type WriteDisposition string

const (
	WriteAppend   WriteDisposition = "WRITE_APPEND"
	WriteTruncate WriteDisposition = "WRITE_TRUNCATE"
	WriteEmpty    WriteDisposition = "WRITE_EMPTY"
)

// CreateDisposition governs whether a missing destination table is created.
type CreateDisposition string

const (
	CreateIfNeeded CreateDisposition = "CREATE_IF_NEEDED"
	CreateNever    CreateDisposition = "CREATE_NEVER"
)

func (p Priority) toBigQuery() (bigquery.QueryPriority, error) {
	switch p {
	case "", Interactive:
		return bigquery.InteractivePriority, nil
	case Batch:
		return bigquery.BatchPriority, nil
	}
	return "", errors.Reason("unknown priority %q", string(p)).Err()
}

func (d WriteDisposition) toBigQuery() (bigquery.TableWriteDisposition, error) {
	switch d {
	case "", WriteAppend:
		return bigquery.WriteAppend, nil
	case WriteTruncate:
		return bigquery.WriteTruncate, nil
	case WriteEmpty:
		return bigquery.WriteEmpty, nil
	}
	return "", errors.Reason("unknown write disposition %q", string(d)).Err()
}

func (d CreateDisposition) toBigQuery() (bigquery.TableCreateDisposition, error) {
	switch d {
	case "", CreateIfNeeded:
		return bigquery.CreateIfNeeded, nil
	case CreateNever:
		return bigquery.CreateNever, nil
	}
	return "", errors.Reason("unknown create disposition %q", string(d)).Err()
}

// TableRef identifies a table.
type TableRef struct {
	ProjectID string
	DatasetID string
	TableID   string
}

// NewTableRef returns a validated TableRef. Every part must be non-blank.
func NewTableRef(projectID, datasetID, tableID string) (TableRef, error) {
	ref := TableRef{ProjectID: projectID, DatasetID: datasetID, TableID: tableID}
	if err := ref.Validate(); err != nil {
		return TableRef{}, err
	}
	return ref, nil
}

// ParseTableRef parses a "<project>.<dataset>.<table>" reference.
func ParseTableRef(ref string) (TableRef, error) {
	chunks := strings.Split(ref, ".")
	if len(chunks) != 3 {
		return TableRef{}, errors.Reason("table reference should have form <project>.<dataset>.<table>, got %q", ref).Err()
	}
	return NewTableRef(chunks[0], chunks[1], chunks[2])
}

// Validate checks that no part of the reference is blank.
func (r TableRef) Validate() error {
	switch {
	case strings.TrimSpace(r.ProjectID) == "":
		return errors.Reason("project id must not be empty").Err()
	case strings.TrimSpace(r.DatasetID) == "":
		return errors.Reason("dataset must not be empty").Err()
	case strings.TrimSpace(r.TableID) == "":
		return errors.Reason("table must not be empty").Err()
	}
	return nil
}

// String returns the reference in <project>.<dataset>.<table> form.
func (r TableRef) String() string {
	return r.ProjectID + "." + r.DatasetID + "." + r.TableID
}

func (r TableRef) table(c *bigquery.Client) *bigquery.Table {
	return c.DatasetInProject(r.ProjectID, r.DatasetID).Table(r.TableID)
}

func tableRefFromBigQuery(t *bigquery.Table) *TableRef {
	if t == nil {
		return nil
	}
	return &TableRef{ProjectID: t.ProjectID, DatasetID: t.DatasetID, TableID: t.TableID}
}

// QueryJobConfig configures a query job.
//
// The zero value runs an interactive query whose results land in an
// anonymous table.
type QueryJobConfig struct {
	Priority Priority
	// Destination is optional. When set every part must be non-blank.
	Destination       *TableRef
	CreateDisposition CreateDisposition
	WriteDisposition  WriteDisposition
	UseLegacySQL      bool
	Labels            map[string]string
}

// Validate checks the configuration before submission.
func (c *QueryJobConfig) Validate() error {
	if c == nil {
		return nil
	}
	if c.Destination != nil {
		if err := c.Destination.Validate(); err != nil {
			return errors.Annotate(err, "query destination").Err()
		}
	}
	if _, err := c.Priority.toBigQuery(); err != nil {
		return err
	}
	if _, err := c.CreateDisposition.toBigQuery(); err != nil {
		return err
	}
	_, err := c.WriteDisposition.toBigQuery()
	return err
}

func (c *QueryJobConfig) apply(client *bigquery.Client, q *bigquery.QueryConfig) error {
	if c == nil {
		c = &QueryJobConfig{}
	}
	var err error
	if q.Priority, err = c.Priority.toBigQuery(); err != nil {
		return err
	}
	if c.Destination != nil {
		q.Dst = c.Destination.table(client)
		if q.CreateDisposition, err = c.CreateDisposition.toBigQuery(); err != nil {
			return err
		}
		if q.WriteDisposition, err = c.WriteDisposition.toBigQuery(); err != nil {
			return err
		}
	}
	q.UseLegacySQL = c.UseLegacySQL
	q.Labels = c.Labels
	return nil
}

// LoadJobConfig configures a load job from Cloud Storage.
type LoadJobConfig struct {
	Destination TableRef
	// SourceURIs are gs:// URIs, wildcards allowed. At least one is required.
	SourceURIs []string
	// FileConfig, when set, is the base file configuration: CSV delimiter,
	// quoting, encoding and the like. SourceFormat, Schema and
	// SkipLeadingRows override it when non-zero.
	FileConfig *bigquery.FileConfig
	// SourceFormat defaults to CSV.
	SourceFormat      bigquery.DataFormat
	Schema            bigquery.Schema
	SkipLeadingRows   int64
	CreateDisposition CreateDisposition
	WriteDisposition  WriteDisposition
	Labels            map[string]string
}

// Validate checks the configuration before submission.
func (c *LoadJobConfig) Validate() error {
	if c == nil {
		return errors.Reason("load job config is required").Err()
	}
	if err := c.Destination.Validate(); err != nil {
		return errors.Annotate(err, "load destination").Err()
	}
	if err := validateURIs(c.SourceURIs); err != nil {
		return errors.Annotate(err, "load source").Err()
	}
	if _, err := c.CreateDisposition.toBigQuery(); err != nil {
		return err
	}
	_, err := c.WriteDisposition.toBigQuery()
	return err
}

func validateURIs(uris []string) error {
	if len(uris) == 0 {
		return errors.Reason("uri must not be empty").Err()
	}
	for _, uri := range uris {
		if strings.TrimSpace(uri) == "" {
			return errors.Reason("uri must not be empty").Err()
		}
	}
	return nil
}

func (c *LoadJobConfig) gcsReference() *bigquery.GCSReference {
	ref := bigquery.NewGCSReference(c.SourceURIs...)
	if c.FileConfig != nil {
		ref.FileConfig = *c.FileConfig
	}
	if c.SourceFormat != "" {
		ref.SourceFormat = c.SourceFormat
	}
	if c.Schema != nil {
		ref.Schema = c.Schema
	}
	if c.SkipLeadingRows != 0 {
		ref.SkipLeadingRows = c.SkipLeadingRows
	}
	return ref
}

func (c *LoadJobConfig) apply(l *bigquery.LoadConfig) error {
	var err error
	if l.CreateDisposition, err = c.CreateDisposition.toBigQuery(); err != nil {
		return err
	}
	if l.WriteDisposition, err = c.WriteDisposition.toBigQuery(); err != nil {
		return err
	}
	l.Labels = c.Labels
	return nil
}

// ExtractJobConfig configures an extract job to Cloud Storage.
type ExtractJobConfig struct {
	Source TableRef
	// DestinationURIs are gs:// URIs, each with at most one wildcard.
	DestinationURIs []string
	// DestinationFormat defaults to CSV.
	DestinationFormat bigquery.DataFormat
	Compression       bigquery.Compression
	// FieldDelimiter defaults to a comma.
	FieldDelimiter      string
	UseAvroLogicalTypes bool
	PrintHeader         bool
	Labels              map[string]string
}

// Validate checks the configuration before submission.
func (c *ExtractJobConfig) Validate() error {
	if c == nil {
		return errors.Reason("extract job config is required").Err()
	}
	if err := c.Source.Validate(); err != nil {
		return errors.Annotate(err, "extract source").Err()
	}
	if err := validateURIs(c.DestinationURIs); err != nil {
		return errors.Annotate(err, "extract destination").Err()
	}
	return nil
}

func (c *ExtractJobConfig) gcsReference() *bigquery.GCSReference {
	ref := bigquery.NewGCSReference(c.DestinationURIs...)
	if c.DestinationFormat != "" {
		ref.DestinationFormat = c.DestinationFormat
	}
	ref.Compression = c.Compression
	ref.FieldDelimiter = c.FieldDelimiter
	return ref
}

// ParseSchema reads a table schema from JSON. Both a bare field array and
// the {"fields": [...]} object used by the REST API are accepted.
func ParseSchema(data []byte) (bigquery.Schema, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Fields json.RawMessage `json:"fields"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, errors.Annotate(err, "parse schema").Err()
		}
		if len(wrapped.Fields) == 0 {
			return nil, errors.Reason("parse schema: no fields").Err()
		}
		data = wrapped.Fields
	}
	schema, err := bigquery.SchemaFromJSON(data)
	if err != nil {
		return nil, errors.Annotate(err, "parse schema").Err()
	}
	return schema, nil
}
