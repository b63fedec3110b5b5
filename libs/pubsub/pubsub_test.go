// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pubsub

import (
	"context"
	"sort"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	. "github.com/smartystreets/goconvey/convey"
)

const (
	testProject = "test-project"
	testTopic   = "test-topic"
	testSub     = "test-sub"
)

// newTestClient starts a fake Pub/Sub server and returns a client talking
// to it.
func newTestClient(ctx context.Context, t *testing.T) (*Client, *pstest.Server) {
	srv := pstest.NewServer()
	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	if err != nil {
		t.Fatalf("dial fake server: %s", err)
	}
	client, err := NewClient(ctx, testProject, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("new client: %s", err)
	}
	t.Cleanup(func() {
		client.Close()
		conn.Close()
		srv.Close()
	})
	return client, srv
}

func TestTopicsAndSubscriptions(t *testing.T) {
	t.Parallel()

	Convey("idempotent creation", t, func() {
		ctx := context.Background()
		client, _ := newTestClient(ctx, t)

		So(client.ProjectID(), ShouldEqual, testProject)

		Convey("topic twice", func() {
			So(client.TopicCreateIfNotExists(ctx, testTopic), ShouldBeNil)
			So(client.TopicCreateIfNotExists(ctx, testTopic), ShouldBeNil)
		})

		Convey("subscription twice", func() {
			So(client.TopicCreateIfNotExists(ctx, testTopic), ShouldBeNil)
			So(client.SubscriptionCreateIfNotExists(ctx, testSub, testTopic, 0), ShouldBeNil)
			So(client.SubscriptionCreateIfNotExists(ctx, testSub, testTopic, 0), ShouldBeNil)
		})

		Convey("subscription to a missing topic fails", func() {
			So(client.SubscriptionCreateIfNotExists(ctx, testSub, "no-such-topic", 0), ShouldNotBeNil)
		})

		Convey("deleting a subscription twice", func() {
			So(client.TopicCreateIfNotExists(ctx, testTopic), ShouldBeNil)
			So(client.SubscriptionCreateIfNotExists(ctx, testSub, testTopic, 0), ShouldBeNil)
			So(client.DeleteSubscriptionIfExists(ctx, testSub), ShouldBeNil)
			So(client.DeleteSubscriptionIfExists(ctx, testSub), ShouldBeNil)
		})
	})
}

func TestPublishAndPull(t *testing.T) {
	t.Parallel()

	Convey("publish and pull", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client, srv := newTestClient(ctx, t)
		So(client.TopicCreateIfNotExists(ctx, testTopic), ShouldBeNil)
		So(client.SubscriptionCreateIfNotExists(ctx, testSub, testTopic, 0), ShouldBeNil)

		Convey("Publish returns the server id", func() {
			id, err := client.Publish(ctx, testTopic, []byte("hello"), map[string]string{"origin": "test"})
			So(err, ShouldBeNil)
			msgs := srv.Messages()
			So(msgs, ShouldHaveLength, 1)
			So(msgs[0].ID, ShouldEqual, id)
			So(string(msgs[0].Data), ShouldEqual, "hello")
			So(msgs[0].Attributes, ShouldResemble, map[string]string{"origin": "test"})
		})

		Convey("PublishAll keeps the order of ids", func() {
			ids, err := client.PublishAll(ctx, testTopic, []*Message{
				{Data: []byte("a")},
				{Data: []byte("b")},
				{Data: []byte("c")},
			})
			So(err, ShouldBeNil)
			So(ids, ShouldHaveLength, 3)
			byID := map[string]string{}
			for _, m := range srv.Messages() {
				byID[m.ID] = string(m.Data)
			}
			So(byID[ids[0]], ShouldEqual, "a")
			So(byID[ids[2]], ShouldEqual, "c")
		})

		Convey("Pull stops after max messages", func() {
			_, err := client.PublishAll(ctx, testTopic, []*Message{
				{Data: []byte("1")},
				{Data: []byte("2")},
				{Data: []byte("3")},
			})
			So(err, ShouldBeNil)

			got, err := client.Pull(ctx, testSub, 2)
			So(err, ShouldBeNil)
			So(got, ShouldHaveLength, 2)
			So(got[0].ID, ShouldNotBeEmpty)
		})

		Convey("Pull returns what it has when ctx ends", func() {
			_, err := client.Publish(ctx, testTopic, []byte("only"), nil)
			So(err, ShouldBeNil)

			pctx, pcancel := context.WithTimeout(ctx, 2*time.Second)
			defer pcancel()
			got, err := client.Pull(pctx, testSub, 5)
			So(err, ShouldBeNil)
			data := make([]string, 0, len(got))
			for _, m := range got {
				data = append(data, string(m.Data))
			}
			sort.Strings(data)
			So(data, ShouldResemble, []string{"only"})
		})

		Convey("Pull rejects a non-positive max", func() {
			_, err := client.Pull(ctx, testSub, 0)
			So(err, ShouldNotBeNil)
		})
	})
}
