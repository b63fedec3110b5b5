// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"fmt"
)

// QueryError wraps a failure while running a synchronous query.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("error caused while running query %q: %s", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
