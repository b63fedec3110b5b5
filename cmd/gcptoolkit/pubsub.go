// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/flag/stringmapflag"

	"gcptoolkit/libs/pubsub"
)

// pubsubRun opens a Pub/Sub client for the commands.
type pubsubRun struct {
	commonRun
	topic string
}

func (r *pubsubRun) client(ctx context.Context) (*pubsub.Client, error) {
	project, opts, err := r.setup(ctx)
	if err != nil {
		return nil, err
	}
	return pubsub.NewClient(ctx, project, opts...)
}

func cmdTopicCreate(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "topic-create -topic name",
		ShortDesc: "creates a topic unless it exists",
		CommandRun: func() subcommands.CommandRun {
			r := &topicCreateRun{}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.topic, "topic", "", "Topic id. Required.")
			return r
		},
	}
}

type topicCreateRun struct {
	pubsubRun
}

func (r *topicCreateRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *topicCreateRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"topic", r.topic}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.TopicCreateIfNotExists(ctx, r.topic)
}

func cmdSubscriptionCreate(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "subscription-create -topic name -subscription name",
		ShortDesc: "creates a pull subscription unless it exists",
		CommandRun: func() subcommands.CommandRun {
			r := &subscriptionCreateRun{}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.topic, "topic", "", "Topic id. Required.")
			r.Flags.StringVar(&r.subscription, "subscription", "", "Subscription id. Required.")
			r.Flags.DurationVar(&r.ackDeadline, "ack-deadline", pubsub.DefaultAckDeadline, "Ack deadline of the subscription.")
			return r
		},
	}
}

type subscriptionCreateRun struct {
	pubsubRun
	subscription string
	ackDeadline  time.Duration
}

func (r *subscriptionCreateRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *subscriptionCreateRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"topic", r.topic}, requiredFlag{"subscription", r.subscription}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.SubscriptionCreateIfNotExists(ctx, r.subscription, r.topic, r.ackDeadline)
}

func cmdPublish(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "publish -topic name [-attr key=value]... <message>...",
		ShortDesc: "publishes messages to a topic",
		LongDesc: text.Doc(`
			Publishes every positional argument as a message and prints the
			message ids in order. All messages carry the -attr attributes.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &publishRun{attrs: stringmapflag.Value{}}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.topic, "topic", "", "Topic id. Required.")
			r.Flags.Var(&r.attrs, "attr", "Message attribute as key=value. Can be repeated.")
			return r
		},
	}
}

type publishRun struct {
	pubsubRun
	attrs stringmapflag.Value
}

func (r *publishRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx, args))
}

func (r *publishRun) run(ctx context.Context, args []string) error {
	if err := requireFlags(requiredFlag{"topic", r.topic}); err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.Reason("no messages given").Err()
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	msgs := make([]*pubsub.Message, len(args))
	for i, arg := range args {
		msgs[i] = &pubsub.Message{Data: []byte(arg), Attributes: r.attrs}
	}
	ids, err := client.PublishAll(ctx, r.topic, msgs)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func cmdPull(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "pull -subscription name [-max n] [-timeout d]",
		ShortDesc: "pulls and acks messages from a subscription",
		LongDesc: text.Doc(`
			Pulls up to -max messages, acks them and prints their data, one
			message per line. Gives up after -timeout.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &pullRun{}
			r.addSharedFlags(authOpts)
			r.Flags.StringVar(&r.subscription, "subscription", "", "Subscription id. Required.")
			r.Flags.IntVar(&r.max, "max", 1, "Maximum number of messages.")
			r.Flags.DurationVar(&r.timeout, "timeout", 30*time.Second, "How long to wait for messages.")
			return r
		},
	}
}

type pullRun struct {
	pubsubRun
	subscription string
	max          int
	timeout      time.Duration
}

func (r *pullRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	return errToCode(a, r.run(ctx))
}

func (r *pullRun) run(ctx context.Context) error {
	if err := requireFlags(requiredFlag{"subscription", r.subscription}); err != nil {
		return err
	}
	client, err := r.client(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	msgs, err := client.Pull(ctx, r.subscription, r.max)
	for _, m := range msgs {
		fmt.Printf("%s\t%s\n", m.ID, m.Data)
	}
	return err
}
