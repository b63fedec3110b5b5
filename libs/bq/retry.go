// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"fmt"
	"regexp"
	"strconv"
)

// retryMarker matches the attempt counter embedded in relaunched job ids.
var retryMarker = regexp.MustCompile(`-retry-(\d+)-`)

// RetryLimitExceededError is returned when a job has already been relaunched
// as many times as allowed.
type RetryLimitExceededError struct {
	JobID   string
	Attempt int
	Limit   int
}

func (e *RetryLimitExceededError) Error() string {
	return fmt.Sprintf("job %q: attempt %d exceeds the retry limit of %d", e.JobID, e.Attempt, e.Limit)
}

// RetryAttempt returns the attempt counter embedded in jobID, 0 if there is
// none. With several markers the last one wins.
func RetryAttempt(jobID string) int {
	matches := retryMarker.FindAllStringSubmatch(jobID, -1)
	if len(matches) == 0 {
		return 0
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		// Only reachable when the counter overflows int.
		return 0
	}
	return n
}

// RetryJobIDPrefix returns the job id prefix for the next attempt of jobID,
// in the form "<prefix>-retry-<N>-".
//
// BigQuery appends a random suffix to the prefix, so the marker stays
// parseable on the relaunched job.
func RetryJobIDPrefix(jobID, prefix string, limit int) (string, error) {
	next := RetryAttempt(jobID) + 1
	if next > limit {
		return "", &RetryLimitExceededError{JobID: jobID, Attempt: next, Limit: limit}
	}
	return fmt.Sprintf("%s-retry-%d-", prefix, next), nil
}
