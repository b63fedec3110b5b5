// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package bq

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/golang/mock/gomock"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"
)

var (
	errNotFound = &googleapi.Error{Code: http.StatusNotFound, Message: "Not found"}
	errConflict = &googleapi.Error{Code: http.StatusConflict, Message: "Already Exists"}
)

func TestRunSyncQuery(t *testing.T) {
	t.Parallel()

	Convey("RunSyncQuery", t, func() {
		ctx := context.Background()
		ctrl := gomock.NewController(t)
		api := NewMockAPI(ctrl)
		client := NewClientWithAPI(api, "proj", "")

		Convey("rows are passed through", func() {
			rows := NewMockRowIterator(ctrl)
			gomock.InOrder(
				rows.EXPECT().Next().Return(map[string]bigquery.Value{"n": int64(1)}, nil),
				rows.EXPECT().Next().Return(nil, iterator.Done),
			)
			api.EXPECT().ReadQuery(ctx, "SELECT 1", &QueryJobConfig{Priority: Interactive}).Return(rows, nil)

			it, err := client.RunSyncQuery(ctx, "SELECT 1")
			So(err, ShouldBeNil)
			row, err := it.Next()
			So(err, ShouldBeNil)
			So(row["n"], ShouldEqual, int64(1))
			_, err = it.Next()
			So(err, ShouldEqual, iterator.Done)
		})

		Convey("submission failure is a QueryError", func() {
			api.EXPECT().ReadQuery(ctx, "SELEC", gomock.Any()).Return(nil, errors.New("syntax error"))

			_, err := client.RunSyncQuery(ctx, "SELEC")
			var qErr *QueryError
			So(errors.As(err, &qErr), ShouldBeTrue)
			So(qErr.Query, ShouldEqual, "SELEC")
			So(err, ShouldErrLike, `error caused while running query "SELEC": syntax error`)
		})

		Convey("paging failure is a QueryError", func() {
			rows := NewMockRowIterator(ctrl)
			rows.EXPECT().Next().Return(nil, errors.New("page lost"))
			api.EXPECT().ReadQuery(ctx, "SELECT 2", gomock.Any()).Return(rows, nil)

			it, err := client.RunSyncQuery(ctx, "SELECT 2")
			So(err, ShouldBeNil)
			_, err = it.Next()
			var qErr *QueryError
			So(errors.As(err, &qErr), ShouldBeTrue)
			So(qErr.Err, ShouldErrLike, "page lost")
		})
	})
}

func TestRunAsync(t *testing.T) {
	t.Parallel()

	Convey("async jobs", t, func() {
		ctx := context.Background()
		ctrl := gomock.NewController(t)
		api := NewMockAPI(ctrl)
		client := NewClientWithAPI(api, "proj", "US")
		So(client.Location(), ShouldEqual, "US")

		Convey("query returns the job id", func() {
			cfg := &QueryJobConfig{Priority: Batch}
			api.EXPECT().StartQuery(ctx, "SELECT 1", cfg, "nightly").Return("nightly_abc", nil)
			id, err := client.RunAsyncQuery(ctx, "SELECT 1", cfg, "nightly")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "nightly_abc")
		})

		Convey("invalid query config is rejected before submission", func() {
			cfg := &QueryJobConfig{Destination: &TableRef{ProjectID: "p", DatasetID: "d"}}
			_, err := client.RunAsyncQuery(ctx, "SELECT 1", cfg, "")
			So(err, ShouldErrLike, "table must not be empty")
		})

		Convey("load failure surfaces the job error", func() {
			cfg := &LoadJobConfig{
				Destination: TableRef{ProjectID: "p", DatasetID: "d", TableID: "t"},
				SourceURIs:  []string{"gs://b/f.csv"},
			}
			api.EXPECT().StartLoad(ctx, cfg, "").Return("load_1", nil)
			api.EXPECT().WaitJob(ctx, "load_1").Return(JobInfo{
				ID:     "load_1",
				Config: &bigquery.LoadConfig{Src: bigquery.NewGCSReference("gs://b/f.csv")},
				State:  bigquery.Done,
				Err:    &bigquery.Error{Reason: "invalid", Message: "bad row"},
			}, nil)

			job, err := client.RunLoadJob(ctx, cfg)
			So(err, ShouldErrLike, "invalid: bad row")
			So(job.ID, ShouldEqual, "load_1")
			So(job.JobState(), ShouldEqual, Done)
		})

		Convey("extract waits for completion", func() {
			cfg := &ExtractJobConfig{
				Source:          TableRef{ProjectID: "p", DatasetID: "d", TableID: "t"},
				DestinationURIs: []string{"gs://b/out-*.csv"},
				PrintHeader:     true,
			}
			api.EXPECT().StartExtract(ctx, cfg, "").Return("extract_1", nil)
			api.EXPECT().WaitJob(ctx, "extract_1").Return(JobInfo{
				ID:     "extract_1",
				Config: &bigquery.ExtractConfig{Dst: bigquery.NewGCSReference("gs://b/out-*.csv")},
				State:  bigquery.Done,
			}, nil)

			job, err := client.RunExtractJob(ctx, cfg)
			So(err, ShouldBeNil)
			So(job.Config.DestinationURIs, ShouldResemble, []string{"gs://b/out-*.csv"})
		})

		Convey("wait times out", func() {
			api.EXPECT().WaitJob(gomock.Any(), "slow").DoAndReturn(func(ctx context.Context, _ string) (JobInfo, error) {
				<-ctx.Done()
				return JobInfo{}, ctx.Err()
			})
			_, err := client.WaitForJobDone(ctx, "slow", time.Millisecond)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestFailedJobs(t *testing.T) {
	t.Parallel()

	Convey("failed job listing and relaunch", t, func() {
		ctx := context.Background()
		ctrl := gomock.NewController(t)
		api := NewMockAPI(ctrl)
		client := NewClientWithAPI(api, "proj", "")
		since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		failure := &bigquery.Error{Reason: "backendError", Message: "try again"}

		infos := []JobInfo{
			{ID: "etl-retry-1-aaa", Config: &bigquery.QueryConfig{Q: "SELECT a"}, State: bigquery.Done, Err: failure},
			{ID: "etl_bbb", Config: &bigquery.QueryConfig{Q: "SELECT b"}, State: bigquery.Done},
			{ID: "other_ccc", Config: &bigquery.QueryConfig{Q: "SELECT c"}, State: bigquery.Done, Err: failure},
			{ID: "etl_copy", Config: &bigquery.CopyConfig{}, State: bigquery.Done, Err: failure},
			{
				ID:     "etl_ddd",
				Config: &bigquery.LoadConfig{Src: bigquery.NewGCSReference("gs://b/d.csv"), Dst: &bigquery.Table{ProjectID: "p", DatasetID: "d", TableID: "t"}},
				State:  bigquery.Done,
				Err:    failure,
			},
		}
		api.EXPECT().ListJobs(ctx, JobFilter{MinCreationTime: since, AllUsers: true}).Return(infos, nil).AnyTimes()

		Convey("FailedJobs filters by prefix and failure", func() {
			jobs, err := client.FailedJobs(ctx, "etl", since)
			So(err, ShouldBeNil)
			So(jobs, ShouldHaveLength, 2)
			So(jobs[0].JobID(), ShouldEqual, "etl-retry-1-aaa")
			So(jobs[1].JobID(), ShouldEqual, "etl_ddd")
		})

		Convey("JobsWithPrefix keeps successful jobs", func() {
			jobs, err := client.JobsWithPrefix(ctx, "etl", since)
			So(err, ShouldBeNil)
			So(jobs, ShouldHaveLength, 3)
		})

		Convey("RelaunchFailedJobs bumps the attempt counter", func() {
			api.EXPECT().StartQuery(ctx, "SELECT a", gomock.Any(), "etl-retry-2-").Return("etl-retry-2-xyz", nil)
			api.EXPECT().StartLoad(ctx, gomock.Any(), "etl-retry-1-").Return("etl-retry-1-uvw", nil)

			ids, err := client.RelaunchFailedJobs(ctx, "etl", since, 3)
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"etl-retry-2-xyz", "etl-retry-1-uvw"})
		})

		Convey("nothing is submitted when a job cannot be resubmitted", func() {
			jobs := []Job{
				&QueryJob{ID: "etl_q", Query: "SELECT 1", State: Done, Error: &JobError{Message: "boom"}},
				&LoadJob{
					ID:     "etl_reader",
					Config: LoadJobConfig{Destination: TableRef{ProjectID: "p", DatasetID: "d", TableID: "t"}},
					State:  Done,
					Error:  &JobError{Message: "boom"},
				},
			}
			ids, err := client.RelaunchJobs(ctx, jobs, "etl", 3)
			So(err, ShouldErrLike, `relaunch "etl_reader"`)
			So(ids, ShouldBeEmpty)
		})

		Convey("unsupported job types are rejected up front", func() {
			jobs := []Job{
				&QueryJob{ID: "etl_q", Query: "SELECT 1"},
				&fakeJob{id: "etl_odd"},
			}
			ids, err := client.RelaunchJobs(ctx, jobs, "etl", 3)
			So(err, ShouldErrLike, "unsupported job type")
			So(ids, ShouldBeEmpty)
		})

		Convey("nothing is submitted once a job is out of attempts", func() {
			_, err := client.RelaunchFailedJobs(ctx, "etl", since, 1)
			var limitErr *RetryLimitExceededError
			So(errors.As(err, &limitErr), ShouldBeTrue)
			So(limitErr.JobID, ShouldEqual, "etl-retry-1-aaa")
		})
	})
}

func TestRelaunchLoadKeepsSourceOptions(t *testing.T) {
	t.Parallel()

	Convey("a relaunched load keeps every source and the file options", t, func() {
		ctx := context.Background()
		ctrl := gomock.NewController(t)
		api := NewMockAPI(ctrl)
		client := NewClientWithAPI(api, "proj", "")
		since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

		src := bigquery.NewGCSReference("gs://b/part-1.csv", "gs://b/part-2.csv")
		src.FieldDelimiter = ";"
		src.AllowJaggedRows = true
		api.EXPECT().ListJobs(ctx, JobFilter{MinCreationTime: since, AllUsers: true}).Return([]JobInfo{{
			ID:     "load_abc",
			Config: &bigquery.LoadConfig{Src: src, Dst: &bigquery.Table{ProjectID: "p", DatasetID: "d", TableID: "t"}},
			State:  bigquery.Done,
			Err:    &bigquery.Error{Reason: "backendError"},
		}}, nil)

		var submitted *LoadJobConfig
		api.EXPECT().StartLoad(ctx, gomock.Any(), "load-retry-1-").DoAndReturn(
			func(_ context.Context, cfg *LoadJobConfig, _ string) (string, error) {
				submitted = cfg
				return "load-retry-1-xyz", nil
			})

		ids, err := client.RelaunchFailedJobs(ctx, "load", since, 3)
		So(err, ShouldBeNil)
		So(ids, ShouldResemble, []string{"load-retry-1-xyz"})

		ref := submitted.gcsReference()
		So(ref.URIs, ShouldResemble, []string{"gs://b/part-1.csv", "gs://b/part-2.csv"})
		So(ref.FieldDelimiter, ShouldEqual, ";")
		So(ref.AllowJaggedRows, ShouldBeTrue)
	})
}

// fakeJob is a Job of a type the client does not know.
type fakeJob struct {
	id string
}

func (j *fakeJob) JobID() string      { return j.id }
func (j *fakeJob) JobState() JobState { return Done }
func (j *fakeJob) IsFailed() bool     { return true }

func TestDatasetsAndTables(t *testing.T) {
	t.Parallel()

	Convey("dataset and table helpers", t, func() {
		ctx := context.Background()
		ctrl := gomock.NewController(t)
		api := NewMockAPI(ctrl)
		client := NewClientWithAPI(api, "proj", "")
		ref := TableRef{ProjectID: "proj", DatasetID: "ds", TableID: "tbl"}

		Convey("DatasetExists", func() {
			api.EXPECT().DatasetMetadata(ctx, "proj", "ds").Return(&bigquery.DatasetMetadata{}, nil)
			api.EXPECT().DatasetMetadata(ctx, "proj", "gone").Return(nil, errNotFound)
			api.EXPECT().DatasetMetadata(ctx, "proj", "denied").Return(nil, &googleapi.Error{Code: http.StatusForbidden})

			ok, err := client.DatasetExists(ctx, "ds")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			ok, err = client.DatasetExists(ctx, "gone")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			_, err = client.DatasetExists(ctx, "denied")
			So(err, ShouldNotBeNil)
		})

		Convey("CreateDatasetIfNotExists uses the client location", func() {
			api.EXPECT().CreateDataset(ctx, "proj", "ds", &bigquery.DatasetMetadata{Location: DefaultLocation}).Return(errConflict)
			So(client.CreateDatasetIfNotExists(ctx, "ds"), ShouldBeNil)
		})

		Convey("DeleteDatasetIfExists tolerates a missing dataset", func() {
			api.EXPECT().DeleteDataset(ctx, "proj", "ds", true).Return(errNotFound)
			So(client.DeleteDatasetIfExists(ctx, "ds", true), ShouldBeNil)
		})

		Convey("TableExists", func() {
			api.EXPECT().TableMetadata(ctx, ref).Return(nil, errNotFound)
			ok, err := client.TableExists(ctx, ref)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("CreateTableIfNotExists", func() {
			md := &bigquery.TableMetadata{Schema: bigquery.Schema{{Name: "a", Type: bigquery.StringFieldType}}}
			api.EXPECT().CreateTable(ctx, ref, md).Return(errConflict)
			So(client.CreateTableIfNotExists(ctx, ref, md), ShouldBeNil)

			api.EXPECT().CreateTable(ctx, ref, md).Return(errors.New("quota"))
			So(client.CreateTableIfNotExists(ctx, ref, md), ShouldErrLike, "quota")
		})

		Convey("DeleteTableIfExists", func() {
			api.EXPECT().DeleteTable(ctx, ref).Return(nil)
			So(client.DeleteTableIfExists(ctx, ref), ShouldBeNil)
		})

		Convey("blank table references are rejected", func() {
			_, err := client.TableExists(ctx, TableRef{ProjectID: "proj"})
			So(err, ShouldErrLike, "dataset must not be empty")
		})

		Convey("InsertRows", func() {
			rows := []bigquery.ValueSaver{&bigquery.ValuesSaver{
				Schema: bigquery.Schema{{Name: "a", Type: bigquery.StringFieldType}},
				Row:    []bigquery.Value{"x"},
			}}
			api.EXPECT().Put(ctx, ref, rows).Return(nil)
			So(client.InsertRows(ctx, ref, rows), ShouldBeNil)
			So(client.InsertRows(ctx, ref, nil), ShouldBeNil)
		})
	})
}
