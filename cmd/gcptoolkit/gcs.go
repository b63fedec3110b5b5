// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"

	"gcptoolkit/libs/gcs"
)

// gcsRun opens a storage client for the commands.
type gcsRun struct {
	commonRun
	bucket string
}

func (r *gcsRun) client(ctx context.Context) (*gcs.Client, error) {
	project, opts, err := r.setup(ctx)
	if err != nil {
		return nil, err
	}
	return gcs.NewClient(ctx, project, opts...)
}

func cmdBucketCreate(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "bucket-create -bucket name [-location l] [-storage-class c]",
		ShortDesc: "creates a bucket unless it exists",
		CommandRun: func() subcommands.CommandRun {
			r := &bucketCreateRun{}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.bucket, "bucket", "", "Bucket name. Required.")
			r.Flags.StringVar(&r.opts.Location, "location", gcs.DefaultBucketLocation, "Bucket location.")
			r.Flags.StringVar(&r.opts.StorageClass, "storage-class", gcs.DefaultStorageClass, "Bucket storage class.")
			return r
		},
	}
}

type bucketCreateRun struct {
	gcsRun
	opts gcs.BucketOptions
}

func (r *bucketCreateRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *bucketCreateRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"bucket", r.bucket}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.CreateBucketIfNotExists(ctx, r.bucket, &r.opts)
}

func cmdNotificationCreate(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "notification-create -bucket name -topic name",
		ShortDesc: "makes a bucket notify a topic of changes",
		LongDesc: text.Doc(`
			Makes the bucket publish JSON change notifications to a topic of
			the same project. Does nothing if the bucket already notifies the
			topic.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &notificationCreateRun{}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.bucket, "bucket", "", "Bucket name. Required.")
			r.Flags.StringVar(&r.topic, "topic", "", "Topic id. Required.")
			return r
		},
	}
}

type notificationCreateRun struct {
	gcsRun
	topic string
}

func (r *notificationCreateRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *notificationCreateRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"bucket", r.bucket}, requiredFlag{"topic", r.topic}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.CreateNotificationIfNotExists(ctx, r.topic, r.bucket)
}

func cmdDownloadLines(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "download-lines -bucket name -blob name [-n lines]",
		ShortDesc: "prints the first lines of a blob",
		LongDesc: text.Doc(`
			Prints the first -n lines of a blob, reading no more than
			-chunk-size bytes of it. Fails if the chunk holds fewer lines.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &downloadLinesRun{}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.bucket, "bucket", "", "Bucket name. Required.")
			r.Flags.StringVar(&r.blob, "blob", "", "Blob name. Required.")
			r.Flags.IntVar(&r.lines, "n", 1, "Number of lines.")
			r.Flags.Int64Var(&r.chunkSize, "chunk-size", gcs.DefaultChunkSize, "Number of bytes to read.")
			return r
		},
	}
}

type downloadLinesRun struct {
	gcsRun
	blob      string
	lines     int
	chunkSize int64
}

func (r *downloadLinesRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *downloadLinesRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"bucket", r.bucket}, requiredFlag{"blob", r.blob}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	lines, err := client.DownloadLines(ctx, r.bucket, r.blob, r.lines, r.chunkSize)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
