// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gcperr classifies errors returned by the Google Cloud client
// libraries.
//
// The REST based clients (BigQuery, Cloud Storage, Cloud SQL Admin) report
// failures as *googleapi.Error, the gRPC based ones (Pub/Sub, Secret Manager)
// as gRPC statuses, and newer releases of both wrap them in
// *apierror.APIError. Callers that only care whether a resource was missing
// or already present should not have to know which.
package gcperr

import (
	"errors"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// IsNotFound returns true if err reports a missing resource.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrBucketNotExist) || errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	return hasCode(err, http.StatusNotFound, codes.NotFound)
}

// IsAlreadyExists returns true if err reports that the resource being
// created is already there.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return hasCode(err, http.StatusConflict, codes.AlreadyExists)
}

// hasCode checks err against both the HTTP and the gRPC representation of
// the same condition.
func hasCode(err error, httpCode int, grpcCode codes.Code) bool {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPCode() == httpCode {
			return true
		}
		if s := apiErr.GRPCStatus(); s != nil && s.Code() == grpcCode {
			return true
		}
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == httpCode {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == grpcCode {
		return true
	}
	return false
}
