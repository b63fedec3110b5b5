// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gcs contains idempotent helpers around Cloud Storage buckets,
// blobs and bucket notifications.
package gcs

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// API is the part of Cloud Storage used by Client. It holds no logic so
// that it can be replaced in tests.
type API interface {
	// BucketAttrs returns the attributes of a bucket.
	BucketAttrs(ctx context.Context, bucket string) (*storage.BucketAttrs, error)
	// CreateBucket creates a bucket owned by projectID.
	CreateBucket(ctx context.Context, projectID, bucket string, attrs *storage.BucketAttrs) error
	// Notifications returns the notifications of a bucket keyed by id.
	Notifications(ctx context.Context, bucket string) (map[string]*storage.Notification, error)
	// AddNotification adds a notification to a bucket.
	AddNotification(ctx context.Context, bucket string, n *storage.Notification) (*storage.Notification, error)

	ObjectAttrs(ctx context.Context, bucket, name string) (*storage.ObjectAttrs, error)
	// WriteObject returns a writer that creates the object on Close.
	WriteObject(ctx context.Context, bucket, name, contentType string) io.WriteCloser
	// ReadObjectRange reads length bytes starting at offset. A negative
	// length reads to the end.
	ReadObjectRange(ctx context.Context, bucket, name string, offset, length int64) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, name string) error
	QueryObjects(ctx context.Context, bucket string, q *storage.Query) ObjectIterator
}

// ObjectIterator iterates over object listings. Next returns iterator.Done
// at the end.
type ObjectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// CloudAPI is the API backed by *storage.Client.
type CloudAPI struct {
	client *storage.Client
}

var _ API = &CloudAPI{}

// NewCloudAPI wraps a storage client.
func NewCloudAPI(client *storage.Client) *CloudAPI {
	return &CloudAPI{client: client}
}

// Close closes the storage client.
func (c *CloudAPI) Close() error {
	return c.client.Close()
}

func (c *CloudAPI) BucketAttrs(ctx context.Context, bucket string) (*storage.BucketAttrs, error) {
	return c.client.Bucket(bucket).Attrs(ctx)
}

func (c *CloudAPI) CreateBucket(ctx context.Context, projectID, bucket string, attrs *storage.BucketAttrs) error {
	return c.client.Bucket(bucket).Create(ctx, projectID, attrs)
}

func (c *CloudAPI) Notifications(ctx context.Context, bucket string) (map[string]*storage.Notification, error) {
	return c.client.Bucket(bucket).Notifications(ctx)
}

func (c *CloudAPI) AddNotification(ctx context.Context, bucket string, n *storage.Notification) (*storage.Notification, error) {
	return c.client.Bucket(bucket).AddNotification(ctx, n)
}

func (c *CloudAPI) ObjectAttrs(ctx context.Context, bucket, name string) (*storage.ObjectAttrs, error) {
	return c.client.Bucket(bucket).Object(name).Attrs(ctx)
}

func (c *CloudAPI) WriteObject(ctx context.Context, bucket, name, contentType string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (c *CloudAPI) ReadObjectRange(ctx context.Context, bucket, name string, offset, length int64) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(name).NewRangeReader(ctx, offset, length)
}

func (c *CloudAPI) DeleteObject(ctx context.Context, bucket, name string) error {
	return c.client.Bucket(bucket).Object(name).Delete(ctx)
}

func (c *CloudAPI) QueryObjects(ctx context.Context, bucket string, q *storage.Query) ObjectIterator {
	return c.client.Bucket(bucket).Objects(ctx, q)
}
