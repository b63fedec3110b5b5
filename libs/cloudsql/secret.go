// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cloudsql

import (
	"context"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
)

// SecretStore resolves secret versions to their payload.
type SecretStore interface {
	Secret(ctx context.Context, version string) (string, error)
}

// secretAccessor is the part of the Secret Manager client used here.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// SecretManager reads secrets from GCP Secret Manager.
type SecretManager struct {
	client secretAccessor
	closer func() error
}

var _ SecretStore = &SecretManager{}

// NewSecretManager creates a Secret Manager backed SecretStore.
func NewSecretManager(ctx context.Context, opts ...option.ClientOption) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "initializing Secret Manager client").Err()
	}
	return &SecretManager{client: client, closer: client.Close}, nil
}

// Close closes the underlying client.
func (s *SecretManager) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// Secret returns the payload of a secret version, named like
// "projects/<p>/secrets/<name>/versions/<v>".
func (s *SecretManager) Secret(ctx context.Context, version string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: version})
	if err != nil {
		return "", errors.Annotate(err, "access secret %q", version).Err()
	}
	return string(resp.GetPayload().GetData()), nil
}
