// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command gcptoolkit runs BigQuery jobs, loads Cloud SQL tables and manages
// Pub/Sub and Cloud Storage resources from the command line.
package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging/gologger"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// getApplication returns the gcptoolkit command line application.
func getApplication(authOpts auth.Options) *cli.Application {
	return &cli.Application{
		Name:  "gcptoolkit",
		Title: "Helpers for BigQuery, Cloud SQL, Pub/Sub and Cloud Storage",
		Context: func(ctx context.Context) context.Context {
			return gologger.StdConfig.Use(ctx)
		},
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,

			subcommands.Section("BigQuery"),
			cmdQuery(authOpts),
			cmdQueryAsync(authOpts),
			cmdLoad(authOpts),
			cmdExtract(authOpts),
			cmdWaitJob(authOpts),
			cmdFailedJobs(authOpts),
			cmdRelaunchFailed(authOpts),

			subcommands.Section("Cloud SQL"),
			cmdCloudSQLReload(authOpts),
			cmdCloudSQLRunSQL(authOpts),
			cmdCloudSQLExport(authOpts),
			cmdSQLQuery(authOpts),

			subcommands.Section("Pub/Sub"),
			cmdTopicCreate(authOpts),
			cmdSubscriptionCreate(authOpts),
			cmdPublish(authOpts),
			cmdPull(authOpts),

			subcommands.Section("Cloud Storage"),
			cmdBucketCreate(authOpts),
			cmdNotificationCreate(authOpts),
			cmdDownloadLines(authOpts),

			subcommands.Section("Authentication"),
			authcli.SubcommandInfo(authOpts, "auth-info", false),
			authcli.SubcommandLogin(authOpts, "auth-login", false),
			authcli.SubcommandLogout(authOpts, "auth-logout", false),
		},
	}
}

func main() {
	authOpts := auth.Options{
		Scopes: []string{auth.OAuthScopeEmail, cloudPlatformScope},
	}
	os.Exit(subcommands.Run(getApplication(authOpts), nil))
}
