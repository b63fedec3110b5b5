// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cloudsql loads data into Cloud SQL for PostgreSQL instances.
//
// Client goes through the Cloud SQL Admin API: CSV and SQL files are
// imported from Cloud Storage by long running operations that are polled
// until done. DB is a direct database connection through the Cloud SQL
// connector for statements that need results.
package cloudsql

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/option"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"gcptoolkit/libs/gcs"
)

const (
	// ImportCSVTimeout bounds the CSV import of ReloadTableFromBlob.
	ImportCSVTimeout = 200 * time.Second
	// CreateTmpTableTimeout bounds the creation of the temporary table.
	CreateTmpTableTimeout = 30 * time.Second
	// ReloadTableTimeout bounds moving rows from the temporary table.
	ReloadTableTimeout = 200 * time.Second

	// DefaultImportUser runs imported SQL files.
	DefaultImportUser = "postgres"
	// DefaultPollInterval is the wait between two operation status checks.
	DefaultPollInterval = time.Second
)

// BlobStore stages SQL files for import. *gcs.Client implements it.
type BlobStore interface {
	CreateBucketIfNotExists(ctx context.Context, bucket string, opts *gcs.BucketOptions) error
	UploadFromString(ctx context.Context, bucket, name, content, contentType string) error
	DeleteBlob(ctx context.Context, bucket, name string) error
}

var _ BlobStore = &gcs.Client{}

// Config identifies the instance and the staging bucket.
type Config struct {
	ProjectID  string
	InstanceID string
	// BucketName is the staging bucket for SQL files. Defaults to
	// "<ProjectID>-tmp-bucket".
	BucketName string
	// BucketLocation is used when the staging bucket has to be created.
	// Defaults to gcs.DefaultBucketLocation.
	BucketLocation string
	// ImportUser defaults to DefaultImportUser.
	ImportUser string
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
}

func (c *Config) setDefaults() error {
	if c.ProjectID == "" {
		return errors.Reason("cloudsql: project id is required").Err()
	}
	if c.InstanceID == "" {
		return errors.Reason("cloudsql: instance id is required").Err()
	}
	if c.BucketName == "" {
		c.BucketName = c.ProjectID + "-tmp-bucket"
	}
	if c.BucketLocation == "" {
		c.BucketLocation = gcs.DefaultBucketLocation
	}
	if c.ImportUser == "" {
		c.ImportUser = DefaultImportUser
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return nil
}

// Client imports data into one Cloud SQL instance.
type Client struct {
	cfg   Config
	svc   *sqladmin.Service
	blobs BlobStore
}

// NewClient creates a Client. opts configure the Admin API client.
func NewClient(ctx context.Context, cfg Config, blobs BlobStore, opts ...option.ClientOption) (*Client, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	svc, err := sqladmin.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "initializing Cloud SQL Admin client").Err()
	}
	return &Client{cfg: cfg, svc: svc, blobs: blobs}, nil
}

// ProjectID is the project of the instance.
func (c *Client) ProjectID() string { return c.cfg.ProjectID }

// InstanceID is the instance data is imported into.
func (c *Client) InstanceID() string { return c.cfg.InstanceID }

// ReloadTableFromBlob replaces the rows of table with the CSV at sourceURI.
//
// The CSV is imported into an empty copy of the table first, so the table
// keeps its rows if the import fails.
func (c *Client) ReloadTableFromBlob(ctx context.Context, database, table, sourceURI string) error {
	if err := validateTableName(table); err != nil {
		return err
	}
	tmp := tmpTableName(table)
	createTmp := fmt.Sprintf("DROP TABLE IF EXISTS %[1]s;\nCREATE TABLE %[1]s AS SELECT * FROM %[2]s WHERE false;", tmp, table)
	if err := c.RunSQL(ctx, database, createTmp, CreateTmpTableTimeout); err != nil {
		return errors.Annotate(err, "create %s", tmp).Err()
	}
	if err := c.ImportCSV(ctx, database, tmp, sourceURI, ImportCSVTimeout); err != nil {
		return err
	}
	reload := fmt.Sprintf("TRUNCATE TABLE %[1]s;\nINSERT INTO %[1]s SELECT * FROM %[2]s;\nDROP TABLE %[2]s;", table, tmp)
	if err := c.RunSQL(ctx, database, reload, ReloadTableTimeout); err != nil {
		return errors.Annotate(err, "reload %s from %s", table, tmp).Err()
	}
	logging.Infof(ctx, "Reloaded %s.%s from %s", database, table, sourceURI)
	return nil
}

// RunSQL runs SQL statements on database through an import operation.
//
// The statements are staged as a uniquely named blob in the staging
// bucket, which is created if missing. The blob is deleted afterwards.
func (c *Client) RunSQL(ctx context.Context, database, sql string, timeout time.Duration) error {
	if err := c.blobs.CreateBucketIfNotExists(ctx, c.cfg.BucketName, &gcs.BucketOptions{Location: c.cfg.BucketLocation}); err != nil {
		return err
	}
	name := "sql_query_" + uuid.New().String()
	if err := c.blobs.UploadFromString(ctx, c.cfg.BucketName, name, sql, "application/sql"); err != nil {
		return err
	}
	defer func() {
		if err := c.blobs.DeleteBlob(ctx, c.cfg.BucketName, name); err != nil {
			logging.Warningf(ctx, "Failed to delete staged SQL: %s", err)
		}
	}()

	return c.importFile(ctx, timeout, &sqladmin.ImportContext{
		Kind:       "sql#importContext",
		FileType:   "SQL",
		Uri:        gcs.URI(c.cfg.BucketName, name),
		Database:   database,
		ImportUser: c.cfg.ImportUser,
	})
}

// ImportCSV appends the rows of the CSV at sourceURI to table.
func (c *Client) ImportCSV(ctx context.Context, database, table, sourceURI string, timeout time.Duration) error {
	err := c.importFile(ctx, timeout, &sqladmin.ImportContext{
		Kind:     "sql#importContext",
		FileType: "CSV",
		Uri:      sourceURI,
		Database: database,
		CsvImportOptions: &sqladmin.ImportContextCsvImportOptions{
			Table: table,
		},
	})
	if err != nil {
		return errors.Annotate(err, "import %s into %s", sourceURI, table).Err()
	}
	return nil
}

// ExportCSV writes the result of selectQuery on database as CSV to
// destinationURI.
func (c *Client) ExportCSV(ctx context.Context, database, selectQuery, destinationURI string, timeout time.Duration) error {
	op, err := c.svc.Instances.Export(c.cfg.ProjectID, c.cfg.InstanceID, &sqladmin.InstancesExportRequest{
		ExportContext: &sqladmin.ExportContext{
			Kind:      "sql#exportContext",
			FileType:  "CSV",
			Uri:       destinationURI,
			Databases: []string{database},
			CsvExportOptions: &sqladmin.ExportContextCsvExportOptions{
				SelectQuery: selectQuery,
			},
		},
	}).Context(ctx).Do()
	if err != nil {
		return errors.Annotate(err, "start export to %s", destinationURI).Err()
	}
	if err := c.waitForOperation(ctx, op.Name, timeout); err != nil {
		return errors.Annotate(err, "export to %s", destinationURI).Err()
	}
	return nil
}

func (c *Client) importFile(ctx context.Context, timeout time.Duration, ic *sqladmin.ImportContext) error {
	op, err := c.svc.Instances.Import(c.cfg.ProjectID, c.cfg.InstanceID, &sqladmin.InstancesImportRequest{
		ImportContext: ic,
	}).Context(ctx).Do()
	if err != nil {
		return errors.Annotate(err, "start %s import of %s", ic.FileType, ic.Uri).Err()
	}
	logging.Debugf(ctx, "Started operation %s importing %s", op.Name, ic.Uri)
	return c.waitForOperation(ctx, op.Name, timeout)
}

// tmpTableName prefixes the table name, keeping its schema.
func tmpTableName(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i+1] + "tmp_" + table[i+1:]
	}
	return "tmp_" + table
}

// tableName matches a plain, optionally schema qualified, table name.
var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

// validateTableName rejects names that would need quoting. Names go into
// the generated SQL and the CSV import as written, so Postgres folds them to
// lower case the same way in both places.
func validateTableName(table string) error {
	if !tableName.MatchString(table) {
		return errors.Reason("invalid table name %q", table).Err()
	}
	return nil
}
