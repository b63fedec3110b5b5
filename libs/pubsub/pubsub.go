// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pubsub wraps the Pub/Sub interactions: idempotent topic and
// subscription creation, publishing and pulling.
package pubsub

import (
	"context"
	"sync"
	"time"

	cloudpubsub "cloud.google.com/go/pubsub"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"gcptoolkit/libs/gcperr"
)

// DefaultAckDeadline is the ack deadline of subscriptions created without
// one.
const DefaultAckDeadline = 10 * time.Second

// Message is a message to publish or a pulled message.
type Message struct {
	// ID is set by the server.
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

// Client manages the topics and subscriptions of a project.
type Client struct {
	client *cloudpubsub.Client
}

// NewClient creates a Client for projectID.
func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	c, err := cloudpubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "initializing Pub/Sub client").Err()
	}
	return &Client{client: c}, nil
}

// Close closes the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ProjectID is the project topics and subscriptions live in.
func (c *Client) ProjectID() string {
	return c.client.Project()
}

// TopicCreateIfNotExists creates a topic unless it is already there.
func (c *Client) TopicCreateIfNotExists(ctx context.Context, topicID string) error {
	_, err := c.client.CreateTopic(ctx, topicID)
	switch {
	case gcperr.IsAlreadyExists(err):
		logging.Debugf(ctx, "Topic %s already exists", topicID)
		return nil
	case err != nil:
		return errors.Annotate(err, "create topic %q", topicID).Err()
	}
	logging.Infof(ctx, "Created topic %s", topicID)
	return nil
}

// SubscriptionCreateIfNotExists creates a pull subscription to a topic
// unless it is already there. A zero ackDeadline means DefaultAckDeadline.
func (c *Client) SubscriptionCreateIfNotExists(ctx context.Context, subscriptionID, topicID string, ackDeadline time.Duration) error {
	if ackDeadline == 0 {
		ackDeadline = DefaultAckDeadline
	}
	_, err := c.client.CreateSubscription(ctx, subscriptionID, cloudpubsub.SubscriptionConfig{
		Topic:       c.client.Topic(topicID),
		AckDeadline: ackDeadline,
	})
	switch {
	case gcperr.IsAlreadyExists(err):
		logging.Debugf(ctx, "Subscription %s already exists", subscriptionID)
		return nil
	case err != nil:
		return errors.Annotate(err, "create subscription %q", subscriptionID).Err()
	}
	logging.Infof(ctx, "Created subscription %s on topic %s", subscriptionID, topicID)
	return nil
}

// DeleteSubscriptionIfExists deletes a subscription. A missing subscription
// is not an error.
func (c *Client) DeleteSubscriptionIfExists(ctx context.Context, subscriptionID string) error {
	err := c.client.Subscription(subscriptionID).Delete(ctx)
	if err != nil && !gcperr.IsNotFound(err) {
		return errors.Annotate(err, "delete subscription %q", subscriptionID).Err()
	}
	return nil
}

// Publish sends a message and blocks until the server has accepted it.
// It returns the server assigned message id.
func (c *Client) Publish(ctx context.Context, topicID string, data []byte, attrs map[string]string) (string, error) {
	ids, err := c.PublishAll(ctx, topicID, []*Message{{Data: data, Attributes: attrs}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// PublishAll sends messages as one batch and waits for all of them. The
// returned ids are in the order of msgs.
func (c *Client) PublishAll(ctx context.Context, topicID string, msgs []*Message) ([]string, error) {
	topic := c.client.Topic(topicID)
	defer topic.Stop()

	results := make([]*cloudpubsub.PublishResult, len(msgs))
	for i, m := range msgs {
		results[i] = topic.Publish(ctx, &cloudpubsub.Message{Data: m.Data, Attributes: m.Attributes})
	}

	ids := make([]string, len(msgs))
	eg, ectx := errgroup.WithContext(ctx)
	for i, r := range results {
		i, r := i, r
		eg.Go(func() error {
			id, err := r.Get(ectx)
			if err != nil {
				return errors.Annotate(err, "publish message %d to %q", i, topicID).Err()
			}
			ids[i] = id
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	logging.Debugf(ctx, "Published %d messages to %s", len(msgs), topicID)
	return ids, nil
}

// Pull receives up to max messages from a subscription and acks them.
//
// It returns as soon as max messages arrived or ctx is done, whichever
// comes first, with the messages received so far.
func (c *Client) Pull(ctx context.Context, subscriptionID string, max int) ([]*Message, error) {
	if max <= 0 {
		return nil, errors.Reason("max must be positive, got %d", max).Err()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu  sync.Mutex
		out []*Message
	)
	sub := c.client.Subscription(subscriptionID)
	err := sub.Receive(ctx, func(_ context.Context, m *cloudpubsub.Message) {
		mu.Lock()
		defer mu.Unlock()
		if len(out) >= max {
			m.Nack()
			return
		}
		m.Ack()
		out = append(out, &Message{
			ID:          m.ID,
			Data:        m.Data,
			Attributes:  m.Attributes,
			PublishTime: m.PublishTime,
		})
		if len(out) == max {
			cancel()
		}
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		return out, errors.Annotate(err, "pull from %q", subscriptionID).Err()
	}
	return out, nil
}
