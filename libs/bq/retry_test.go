// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRetryAttempt(t *testing.T) {
	t.Parallel()

	Convey("RetryAttempt", t, func() {
		Convey("no marker", func() {
			So(RetryAttempt("daily_import_abc123"), ShouldEqual, 0)
			So(RetryAttempt(""), ShouldEqual, 0)
		})
		Convey("single marker", func() {
			So(RetryAttempt("daily_import-retry-3-abc123"), ShouldEqual, 3)
		})
		Convey("last marker wins", func() {
			So(RetryAttempt("a-retry-1-b-retry-4-c"), ShouldEqual, 4)
		})
		Convey("marker needs both dashes", func() {
			So(RetryAttempt("a-retry-7"), ShouldEqual, 0)
		})
	})
}

func TestRetryJobIDPrefix(t *testing.T) {
	t.Parallel()

	Convey("RetryJobIDPrefix", t, func() {
		Convey("first relaunch", func() {
			p, err := RetryJobIDPrefix("daily_import_abc123", "daily_import", 3)
			So(err, ShouldBeNil)
			So(p, ShouldEqual, "daily_import-retry-1-")
		})
		Convey("counter increments", func() {
			p, err := RetryJobIDPrefix("daily_import-retry-2-xyz", "daily_import", 3)
			So(err, ShouldBeNil)
			So(p, ShouldEqual, "daily_import-retry-3-")
			So(RetryAttempt(p+"suffix"), ShouldEqual, 3)
		})
		Convey("limit reached", func() {
			_, err := RetryJobIDPrefix("daily_import-retry-3-xyz", "daily_import", 3)
			var limitErr *RetryLimitExceededError
			So(errors.As(err, &limitErr), ShouldBeTrue)
			So(limitErr.JobID, ShouldEqual, "daily_import-retry-3-xyz")
			So(limitErr.Attempt, ShouldEqual, 4)
			So(limitErr.Limit, ShouldEqual, 3)
		})
		Convey("zero limit forbids any relaunch", func() {
			_, err := RetryJobIDPrefix("job", "p", 0)
			So(err, ShouldNotBeNil)
		})
	})
}
