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

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"

	"gcptoolkit/libs/cloudsql"
	"gcptoolkit/libs/gcs"
)

// cloudSQLRun adds the instance flags to commonRun.
type cloudSQLRun struct {
	commonRun
	instance string
	database string
}

func (r *cloudSQLRun) addCloudSQLFlags() {
	r.Flags.StringVar(&r.instance, "instance", "", "Cloud SQL instance id. Defaults to the config file.")
	r.Flags.StringVar(&r.database, "database", "", "Database name. Required.")
}

// client returns the Admin API client and the storage client it stages
// files with. The caller closes the storage client.
func (r *cloudSQLRun) client(ctx context.Context) (*cloudsql.Client, *gcs.Client, error) {
	project, opts, err := r.setup(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := requireFlags(requiredFlag{"database", r.database}); err != nil {
		return nil, nil, err
	}
	cfg := cloudsql.Config{
		ProjectID:      project,
		InstanceID:     firstNonEmpty(r.instance, r.cfg.CloudSQL.Instance),
		BucketName:     r.cfg.CloudSQL.Bucket,
		BucketLocation: r.cfg.CloudSQL.BucketLocation,
		ImportUser:     r.cfg.CloudSQL.ImportUser,
	}
	blobs, err := gcs.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, nil, err
	}
	client, err := cloudsql.NewClient(ctx, cfg, blobs, opts...)
	if err != nil {
		blobs.Close()
		return nil, nil, err
	}
	return client, blobs, nil
}

func cmdCloudSQLReload(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "cloudsql-reload -database db -table name -source gs://bucket/file.csv",
		ShortDesc: "replaces the rows of a table with a CSV file",
		LongDesc: text.Doc(`
			Replaces the rows of a Cloud SQL table with the rows of a CSV file
			in Cloud Storage. The CSV is imported into a temporary copy of the
			table first, so the table is left untouched if the import fails.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &cloudSQLReloadRun{}
			r.addSharedFlags(authOpts)
			r.addCloudSQLFlags()
			r.Flags.StringVar(&r.table, "table", "", "Table to reload. Required.")
			r.Flags.StringVar(&r.source, "source", "", "gs:// URI of the CSV file. Required.")
			return r
		},
	}
}

type cloudSQLReloadRun struct {
	cloudSQLRun
	table  string
	source string
}

func (r *cloudSQLReloadRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *cloudSQLReloadRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"table", r.table}, requiredFlag{"source", r.source}); err != nil {
		return err
	}
	client, blobs, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer blobs.Close()
	return client.ReloadTableFromBlob(ctx, r.database, r.table, r.source)
}

func cmdCloudSQLRunSQL(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "cloudsql-run-sql -database db [-file statements.sql | <sql>]",
		ShortDesc: "runs SQL statements through an import operation",
		LongDesc: text.Doc(`
			Stages SQL statements in the staging bucket and runs them on the
			database as a SQL import. Results are not returned; use sql-query
			for that.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &cloudSQLRunSQLRun{}
			r.addSharedFlags(authOpts)
			r.addCloudSQLFlags()
			r.Flags.StringVar(&r.file, "file", "", "File holding the statements.")
			r.Flags.DurationVar(&r.timeout, "timeout", 200*time.Second, "How long to wait for the import.")
			return r
		},
	}
}

type cloudSQLRunSQLRun struct {
	cloudSQLRun
	file    string
	timeout time.Duration
}

func (r *cloudSQLRunSQLRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx, args))
}

// statements returns the SQL from -file or the positional arguments.
func (r *cloudSQLRunSQLRun) statements(args []string) (string, error) {
	switch {
	case r.file != "" && len(args) > 0:
		return "", errors.Reason("-file and positional SQL are mutually exclusive").Err()
	case r.file != "":
		data, err := os.ReadFile(r.file)
		if err != nil {
			return "", errors.Annotate(err, "read SQL").Err()
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	}
	return "", errors.Reason("no SQL given").Err()
}

func (r *cloudSQLRunSQLRun) run(ctx context.Context, args []string) error {
	sql, err := r.statements(args)
	if err != nil {
		return err
	}
	client, blobs, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer blobs.Close()
	return client.RunSQL(ctx, r.database, sql, r.timeout)
}

func cmdCloudSQLExport(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "cloudsql-export -database db -destination gs://bucket/out.csv <select query>",
		ShortDesc: "exports the result of a query as CSV",
		LongDesc:  "Exports the result of a SELECT query to a CSV file in Cloud Storage.",
		CommandRun: func() subcommands.CommandRun {
			r := &cloudSQLExportRun{}
			r.addSharedFlags(authOpts)
			r.addCloudSQLFlags()
			r.Flags.StringVar(&r.destination, "destination", "", "gs:// URI to export to. Required.")
			r.Flags.DurationVar(&r.timeout, "timeout", 200*time.Second, "How long to wait for the export.")
			return r
		},
	}
}

type cloudSQLExportRun struct {
	cloudSQLRun
	destination string
	timeout     time.Duration
}

func (r *cloudSQLExportRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx, args))
}

func (r *cloudSQLExportRun) run(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	if query == "" {
		return errors.Reason("a query is required").Err()
	}
	if err := requireFlags(requiredFlag{"destination", r.destination}); err != nil {
		return err
	}
	client, blobs, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer blobs.Close()
	return client.ExportCSV(ctx, r.database, query, r.destination, r.timeout)
}

func cmdSQLQuery(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "sql-query -connection-name project:region:instance -database db <sql>",
		ShortDesc: "runs a query over a direct connection",
		LongDesc: text.Doc(`
			Connects to the database through the Cloud SQL connector and prints
			the result rows as JSON objects, one per line.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &sqlQueryRun{}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.connectionName, "connection-name", "", "Instance connection name. Defaults to the config file.")
			r.Flags.StringVar(&r.database, "database", "", "Database name. Required.")
			r.Flags.StringVar(&r.user, "user", "", "Database user. Defaults to the config file.")
			r.Flags.StringVar(&r.passwordSecret, "password-secret", "", text.Doc(`
				Secret Manager version holding the password. Defaults to the
				config file.
			`))
			return r
		},
	}
}

type sqlQueryRun struct {
	commonRun
	connectionName string
	database       string
	user           string
	passwordSecret string
}

func (r *sqlQueryRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx, args))
}

func (r *sqlQueryRun) run(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	if query == "" {
		return errors.Reason("a query is required").Err()
	}
	_, opts, err := r.setup(ctx)
	if err != nil {
		return err
	}
	sqlCfg := r.cfg.CloudSQL
	dbCfg := cloudsql.DBConfig{
		ConnectionName: firstNonEmpty(r.connectionName, sqlCfg.ConnectionName),
		Database:       r.database,
		User:           firstNonEmpty(r.user, sqlCfg.User),
		PasswordSecret: firstNonEmpty(r.passwordSecret, sqlCfg.PasswordSecret),
		PrivateIP:      sqlCfg.PrivateIP,
	}
	err = requireFlags(
		requiredFlag{"connection-name", dbCfg.ConnectionName},
		requiredFlag{"database", dbCfg.Database},
		requiredFlag{"user", dbCfg.User},
		requiredFlag{"password-secret", dbCfg.PasswordSecret},
	)
	if err != nil {
		return err
	}

	secrets, err := cloudsql.NewSecretManager(ctx, opts...)
	if err != nil {
		return err
	}
	defer secrets.Close()
	db, err := cloudsql.OpenDB(ctx, dbCfg, secrets)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(ctx, query)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "%d rows\n", len(rows))
	return nil
}
