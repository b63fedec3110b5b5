// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gcs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"gcptoolkit/libs/gcperr"
)

const (
	// DefaultBucketLocation is where new buckets go unless told otherwise.
	DefaultBucketLocation = "europe-west1"
	// DefaultStorageClass is the storage class of new buckets.
	DefaultStorageClass = "REGIONAL"
	// DefaultChunkSize is the number of bytes DownloadLines reads.
	DefaultChunkSize = 16 * 1024
)

// ErrNotEnoughLines is returned by DownloadLines when the downloaded chunk
// holds fewer lines than requested.
var ErrNotEnoughLines = errors.New("not enough lines in the downloaded chunk")

// BucketOptions configures new buckets. Empty fields take the defaults.
type BucketOptions struct {
	Location     string
	StorageClass string
}

// Client manages the buckets of a project.
type Client struct {
	api       API
	projectID string
}

// NewClient creates a Client backed by a real storage client.
func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "initializing storage client").Err()
	}
	return NewClientWithAPI(NewCloudAPI(c), projectID), nil
}

// NewClientWithAPI creates a Client on top of any API implementation.
func NewClientWithAPI(api API, projectID string) *Client {
	return &Client{api: api, projectID: projectID}
}

// Close releases the underlying client, if it needs releasing.
func (c *Client) Close() error {
	if closer, ok := c.api.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// URI returns the gs:// URI of a blob.
func URI(bucket, name string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, name)
}

// BucketExists reports whether the bucket exists.
func (c *Client) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.api.BucketAttrs(ctx, bucket)
	switch {
	case gcperr.IsNotFound(err):
		return false, nil
	case err != nil:
		return false, errors.Annotate(err, "get bucket %q", bucket).Err()
	}
	return true, nil
}

// CreateBucketIfNotExists creates the bucket in the client's project unless
// it is already there. opts may be nil.
func (c *Client) CreateBucketIfNotExists(ctx context.Context, bucket string, opts *BucketOptions) error {
	attrs := &storage.BucketAttrs{Location: DefaultBucketLocation, StorageClass: DefaultStorageClass}
	if opts != nil {
		if opts.Location != "" {
			attrs.Location = opts.Location
		}
		if opts.StorageClass != "" {
			attrs.StorageClass = opts.StorageClass
		}
	}
	err := c.api.CreateBucket(ctx, c.projectID, bucket, attrs)
	switch {
	case gcperr.IsAlreadyExists(err):
		logging.Debugf(ctx, "Bucket %s already exists", bucket)
		return nil
	case err != nil:
		return errors.Annotate(err, "create bucket %q", bucket).Err()
	}
	logging.Infof(ctx, "Created bucket %s in %s", bucket, attrs.Location)
	return nil
}

// CreateNotificationIfNotExists makes the bucket publish JSON change
// notifications to a topic of the client's project. Nothing happens if the
// bucket already notifies that topic.
func (c *Client) CreateNotificationIfNotExists(ctx context.Context, topicID, bucket string) error {
	existing, err := c.api.Notifications(ctx, bucket)
	if err != nil {
		return errors.Annotate(err, "list notifications of %q", bucket).Err()
	}
	for _, n := range existing {
		if n.TopicID == topicID && n.TopicProjectID == c.projectID {
			logging.Debugf(ctx, "Bucket %s already notifies topic %s", bucket, topicID)
			return nil
		}
	}
	n, err := c.api.AddNotification(ctx, bucket, &storage.Notification{
		TopicProjectID: c.projectID,
		TopicID:        topicID,
		PayloadFormat:  storage.JSONPayload,
	})
	if err != nil {
		return errors.Annotate(err, "add notification to %q", bucket).Err()
	}
	logging.Infof(ctx, "Created notification %s from bucket %s to topic %s", n.ID, bucket, topicID)
	return nil
}

// UploadFromString writes content to a blob, replacing it if present.
func (c *Client) UploadFromString(ctx context.Context, bucket, name, content, contentType string) error {
	w := c.api.WriteObject(ctx, bucket, name, contentType)
	if _, err := io.WriteString(w, content); err != nil {
		w.Close()
		return errors.Annotate(err, "write %s", URI(bucket, name)).Err()
	}
	if err := w.Close(); err != nil {
		return errors.Annotate(err, "write %s", URI(bucket, name)).Err()
	}
	logging.Debugf(ctx, "Uploaded %d bytes to %s", len(content), URI(bucket, name))
	return nil
}

// DownloadLines returns the first numLines lines of a blob without
// downloading all of it.
//
// Only the first chunkSize bytes are read; a chunkSize of 0 or less means
// DefaultChunkSize. A multi-byte character cut at the end of the chunk is
// dropped. If the chunk holds fewer than numLines lines the error wraps
// ErrNotEnoughLines.
func (c *Client) DownloadLines(ctx context.Context, bucket, name string, numLines int, chunkSize int64) ([]string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	r, err := c.api.ReadObjectRange(ctx, bucket, name, 0, chunkSize)
	if err != nil {
		return nil, errors.Annotate(err, "read %s", URI(bucket, name)).Err()
	}
	defer r.Close()
	chunk, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Annotate(err, "read %s", URI(bucket, name)).Err()
	}

	text := strings.ToValidUTF8(string(chunk), "")
	lines := make([]string, 0, numLines)
	s := bufio.NewScanner(strings.NewReader(text))
	s.Buffer(make([]byte, 0, len(text)+1), len(text)+1)
	for len(lines) < numLines && s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, errors.Annotate(err, "split %s", URI(bucket, name)).Err()
	}
	if len(lines) < numLines {
		return nil, errors.Annotate(ErrNotEnoughLines, "%s: wanted %d lines within %d bytes, got %d", URI(bucket, name), numLines, chunkSize, len(lines)).Err()
	}
	return lines, nil
}

// IsBlobEmpty reports whether a blob has zero size.
func (c *Client) IsBlobEmpty(ctx context.Context, bucket, name string) (bool, error) {
	attrs, err := c.api.ObjectAttrs(ctx, bucket, name)
	if err != nil {
		return false, errors.Annotate(err, "get %s", URI(bucket, name)).Err()
	}
	return attrs.Size == 0, nil
}

// DeleteBlob deletes a blob.
func (c *Client) DeleteBlob(ctx context.Context, bucket, name string) error {
	if err := c.api.DeleteObject(ctx, bucket, name); err != nil {
		return errors.Annotate(err, "delete %s", URI(bucket, name)).Err()
	}
	logging.Debugf(ctx, "Deleted %s", URI(bucket, name))
	return nil
}

// ListBlobs returns the names of the blobs whose name starts with prefix.
func (c *Client) ListBlobs(ctx context.Context, bucket, prefix string) ([]string, error) {
	q := &storage.Query{Prefix: prefix}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, err
	}
	it := c.api.QueryObjects(ctx, bucket, q)
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "list gs://%s/%s", bucket, prefix).Err()
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
