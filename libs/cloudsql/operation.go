// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cloudsql

import (
	"context"
	"fmt"
	"strings"
	"time"

	sqladmin "google.golang.org/api/sqladmin/v1beta4"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
)

const operationDone = "DONE"

// ErrOperationTimeout is returned when an operation is not done in time.
var ErrOperationTimeout = errors.New("cloudsql: operation timed out")

// OperationError is returned for operations that finished with errors.
type OperationError struct {
	Operation string
	Errors    []*sqladmin.OperationError
}

func (e *OperationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, oe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", oe.Code, oe.Message))
	}
	return fmt.Sprintf("operation %s failed: %s", e.Operation, strings.Join(msgs, "; "))
}

// waitForOperation polls an operation every PollInterval until it is done
// or timeout elapses.
func (c *Client) waitForOperation(ctx context.Context, name string, timeout time.Duration) error {
	var op *sqladmin.Operation
	poll := func() retry.Iterator {
		return &retry.Limited{
			Delay:    c.cfg.PollInterval,
			Retries:  -1,
			MaxTotal: timeout,
		}
	}
	err := retry.Retry(ctx, transient.Only(poll), func() error {
		var err error
		op, err = c.svc.Operations.Get(c.cfg.ProjectID, name).Context(ctx).Do()
		if err != nil {
			return errors.Annotate(err, "get operation %s", name).Err()
		}
		if op.Status != operationDone {
			return errors.Reason("operation %s is %s", name, op.Status).Tag(transient.Tag).Err()
		}
		return nil
	}, nil)
	switch {
	case transient.Tag.In(err):
		return fmt.Errorf("%w: %s after %s", ErrOperationTimeout, name, timeout)
	case err != nil:
		return err
	}

	if op.Error != nil && len(op.Error.Errors) > 0 {
		return &OperationError{Operation: name, Errors: op.Error.Errors}
	}
	logging.Debugf(ctx, "Operation %s is done", name)
	return nil
}
