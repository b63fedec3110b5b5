// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maruel/subcommands"
	"google.golang.org/api/option"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

func errToCode(a subcommands.Application, err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", a.GetName(), err)
		return 1
	}
	return 0
}

// commonRun implements the flags shared by all commands: auth, logging,
// the config file and the project. It implements cli.ContextModificator to
// set the log level.
type commonRun struct {
	subcommands.CommandRunBase
	authFlags  authcli.Flags
	logLevel   logging.Level
	configPath string
	project    string

	cfg *Config
}

// addSharedFlags adds the shared flags.
func (r *commonRun) addSharedFlags(authOpts auth.Options) {
	r.authFlags = authcli.Flags{}
	r.authFlags.Register(r.GetFlags(), authOpts)

	r.logLevel = logging.Info
	r.Flags.Var(&r.logLevel, "loglevel", text.Doc(`
		Log level, valid options are "debug", "info", "warning", "error". Default is "info".
	`))
	r.Flags.StringVar(&r.configPath, "config", "", text.Doc(`
		Path to a YAML config file. Flags override its values.
	`))
	r.Flags.StringVar(&r.project, "project", "", text.Doc(`
		GCP project. Defaults to the config file, then $GOOGLE_CLOUD_PROJECT.
	`))
}

// ModifyContext returns a new Context with the log level set in the flags.
func (r *commonRun) ModifyContext(ctx context.Context) context.Context {
	return logging.SetLevel(ctx, r.logLevel)
}

// setup loads the config and resolves the project. It returns the client
// options carrying the credentials.
func (r *commonRun) setup(ctx context.Context) (project string, opts []option.ClientOption, err error) {
	if r.cfg, err = loadConfig(r.configPath); err != nil {
		return "", nil, err
	}
	if project, err = resolveProject(r.project, r.cfg, os.Getenv); err != nil {
		return "", nil, err
	}

	authOpts, err := r.authFlags.Options()
	if err != nil {
		return "", nil, err
	}
	ts, err := auth.NewAuthenticator(ctx, auth.SilentLogin, authOpts).TokenSource()
	if err != nil {
		if err == auth.ErrLoginRequired {
			return "", nil, errors.Reason("login required: run `gcptoolkit auth-login`").Err()
		}
		return "", nil, err
	}
	logging.Debugf(ctx, "Using project %s", project)
	return project, []option.ClientOption{option.WithTokenSource(ts)}, nil
}

// requiredFlag is a flag that must not be empty.
type requiredFlag struct {
	name  string
	value string
}

// requireFlags returns an error naming the first empty flag.
func requireFlags(flags ...requiredFlag) error {
	for _, f := range flags {
		if f.value == "" {
			return errors.Reason("-%s is required", f.name).Err()
		}
	}
	return nil
}
