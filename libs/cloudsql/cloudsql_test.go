// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cloudsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
	sqladmin "google.golang.org/api/sqladmin/v1beta4"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"

	. "github.com/smartystreets/goconvey/convey"
	. "go.chromium.org/luci/common/testing/assertions"

	"gcptoolkit/libs/gcs"
)

// fakeAdmin serves the import, export and operation endpoints of the Cloud
// SQL Admin API.
type fakeAdmin struct {
	mu      sync.Mutex
	imports []*sqladmin.ImportContext
	exports []*sqladmin.ExportContext
	// statuses are returned by successive operation polls; the last one
	// repeats.
	statuses []string
	polls    int
	opErrs   *sqladmin.OperationErrors
}

func (f *fakeAdmin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var op *sqladmin.Operation
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/projects/proj/instances/inst/import"):
		req := &sqladmin.InstancesImportRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.imports = append(f.imports, req.ImportContext)
		op = &sqladmin.Operation{Name: fmt.Sprintf("import-%d", len(f.imports)), Status: "PENDING"}
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/projects/proj/instances/inst/export"):
		req := &sqladmin.InstancesExportRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.exports = append(f.exports, req.ExportContext)
		op = &sqladmin.Operation{Name: fmt.Sprintf("export-%d", len(f.exports)), Status: "PENDING"}
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/projects/proj/operations/"):
		status := f.statuses[len(f.statuses)-1]
		if f.polls < len(f.statuses) {
			status = f.statuses[f.polls]
		}
		f.polls++
		op = &sqladmin.Operation{Name: path.Base(r.URL.Path), Status: status}
		if status == operationDone {
			op.Error = f.opErrs
		}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(op)
}

type upload struct {
	bucket, name, content string
}

// fakeBlobs records what would have been staged in Cloud Storage.
type fakeBlobs struct {
	mu      sync.Mutex
	buckets []string
	uploads []upload
	deleted []string
}

func (f *fakeBlobs) CreateBucketIfNotExists(ctx context.Context, bucket string, opts *gcs.BucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, bucket+"@"+opts.Location)
	return nil
}

func (f *fakeBlobs) UploadFromString(ctx context.Context, bucket, name, content, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, upload{bucket, name, content})
	return nil
}

func (f *fakeBlobs) DeleteBlob(ctx context.Context, bucket, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

// withAutoAdvance makes timers of the test clock fire immediately.
func withAutoAdvance(ctx context.Context) context.Context {
	ctx, clk := testclock.UseTime(ctx, testclock.TestRecentTimeUTC)
	clk.SetTimerCallback(func(amt time.Duration, timer clock.Timer) {
		for _, tag := range testclock.GetTags(timer) {
			if tag == clock.ContextDeadlineTag {
				return
			}
		}
		clk.Add(amt)
	})
	return ctx
}

func newTestClient(ctx context.Context, t *testing.T, admin *fakeAdmin, blobs BlobStore) *Client {
	srv := httptest.NewServer(admin)
	t.Cleanup(srv.Close)
	client, err := NewClient(ctx, Config{ProjectID: "proj", InstanceID: "inst"}, blobs,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %s", err)
	}
	return client
}

func TestConfig(t *testing.T) {
	t.Parallel()

	Convey("Config defaults", t, func() {
		cfg := Config{ProjectID: "proj", InstanceID: "inst"}
		So(cfg.setDefaults(), ShouldBeNil)
		So(cfg.BucketName, ShouldEqual, "proj-tmp-bucket")
		So(cfg.BucketLocation, ShouldEqual, gcs.DefaultBucketLocation)
		So(cfg.ImportUser, ShouldEqual, "postgres")
		So(cfg.PollInterval, ShouldEqual, time.Second)

		missing := Config{ProjectID: "proj"}
		So(missing.setDefaults(), ShouldErrLike, "instance id is required")
	})
}

func TestRunSQL(t *testing.T) {
	t.Parallel()

	Convey("RunSQL", t, func() {
		ctx := withAutoAdvance(context.Background())
		admin := &fakeAdmin{statuses: []string{"PENDING", "RUNNING", operationDone}}
		blobs := &fakeBlobs{}
		client := newTestClient(ctx, t, admin, blobs)

		Convey("stages the statements and imports them", func() {
			So(client.RunSQL(ctx, "db", "SELECT 1;", time.Minute), ShouldBeNil)

			So(blobs.buckets, ShouldResemble, []string{"proj-tmp-bucket@europe-west1"})
			So(blobs.uploads, ShouldHaveLength, 1)
			staged := blobs.uploads[0]
			So(staged.name, ShouldStartWith, "sql_query_")
			So(staged.content, ShouldEqual, "SELECT 1;")

			So(admin.imports, ShouldHaveLength, 1)
			ic := admin.imports[0]
			So(ic.FileType, ShouldEqual, "SQL")
			So(ic.Uri, ShouldEqual, "gs://proj-tmp-bucket/"+staged.name)
			So(ic.Database, ShouldEqual, "db")
			So(ic.ImportUser, ShouldEqual, "postgres")

			So(admin.polls, ShouldEqual, 3)
			So(blobs.deleted, ShouldResemble, []string{staged.name})
		})

		Convey("failed operation", func() {
			admin.statuses = []string{operationDone}
			admin.opErrs = &sqladmin.OperationErrors{Errors: []*sqladmin.OperationError{
				{Code: "ERROR_RDBMS", Message: "syntax error at or near \"SELEC\""},
			}}

			err := client.RunSQL(ctx, "db", "SELEC 1;", time.Minute)
			var opErr *OperationError
			So(errors.As(err, &opErr), ShouldBeTrue)
			So(opErr.Operation, ShouldEqual, "import-1")
			So(err, ShouldErrLike, "ERROR_RDBMS")
			So(blobs.deleted, ShouldHaveLength, 1)
		})

		Convey("timeout", func() {
			admin.statuses = []string{"RUNNING"}

			err := client.RunSQL(ctx, "db", "SELECT pg_sleep(600);", 5*time.Second)
			So(errors.Is(err, ErrOperationTimeout), ShouldBeTrue)
			So(admin.polls, ShouldBeGreaterThanOrEqualTo, 5)
			So(blobs.deleted, ShouldHaveLength, 1)
		})
	})
}

func TestReloadTableFromBlob(t *testing.T) {
	t.Parallel()

	Convey("ReloadTableFromBlob", t, func() {
		ctx := withAutoAdvance(context.Background())
		admin := &fakeAdmin{statuses: []string{operationDone}}
		blobs := &fakeBlobs{}
		client := newTestClient(ctx, t, admin, blobs)

		Convey("plain names", func() {
			So(client.ReloadTableFromBlob(ctx, "db", "users", "gs://in/users.csv"), ShouldBeNil)

			So(admin.imports, ShouldHaveLength, 3)
			So(admin.imports[0].FileType, ShouldEqual, "SQL")
			So(admin.imports[1].FileType, ShouldEqual, "CSV")
			So(admin.imports[1].Uri, ShouldEqual, "gs://in/users.csv")
			So(admin.imports[1].CsvImportOptions.Table, ShouldEqual, "tmp_users")
			So(admin.imports[2].FileType, ShouldEqual, "SQL")

			So(blobs.uploads, ShouldHaveLength, 2)
			So(blobs.uploads[0].content, ShouldContainSubstring, "DROP TABLE IF EXISTS tmp_users;")
			So(blobs.uploads[0].content, ShouldContainSubstring, "CREATE TABLE tmp_users AS SELECT * FROM users WHERE false")
			So(blobs.uploads[1].content, ShouldContainSubstring, "TRUNCATE TABLE users;")
			So(blobs.uploads[1].content, ShouldContainSubstring, "INSERT INTO users SELECT * FROM tmp_users;")
			So(blobs.uploads[1].content, ShouldContainSubstring, "DROP TABLE tmp_users;")
			So(blobs.uploads[0].name, ShouldNotEqual, blobs.uploads[1].name)
		})

		Convey("mixed case names are spelled the same in SQL and import", func() {
			So(client.ReloadTableFromBlob(ctx, "db", "analytics.UserEvents", "gs://in/events.csv"), ShouldBeNil)

			So(admin.imports[1].CsvImportOptions.Table, ShouldEqual, "analytics.tmp_UserEvents")
			So(blobs.uploads[0].content, ShouldContainSubstring, "CREATE TABLE analytics.tmp_UserEvents AS SELECT * FROM analytics.UserEvents WHERE false")
			So(blobs.uploads[1].content, ShouldContainSubstring, "INSERT INTO analytics.UserEvents SELECT * FROM analytics.tmp_UserEvents;")
			So(blobs.uploads[0].content, ShouldNotContainSubstring, `"`)
		})

		Convey("names that need quoting are rejected", func() {
			err := client.ReloadTableFromBlob(ctx, "db", `users"; DROP TABLE x; --`, "gs://in/users.csv")
			So(err, ShouldErrLike, "invalid table name")
			So(admin.imports, ShouldBeEmpty)
			So(blobs.uploads, ShouldBeEmpty)
		})
	})
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	Convey("ExportCSV", t, func() {
		ctx := withAutoAdvance(context.Background())
		admin := &fakeAdmin{statuses: []string{"RUNNING", operationDone}}
		client := newTestClient(ctx, t, admin, &fakeBlobs{})

		So(client.ExportCSV(ctx, "db", "SELECT * FROM users", "gs://out/users.csv", time.Minute), ShouldBeNil)
		So(admin.exports, ShouldHaveLength, 1)
		So(admin.exports[0].Databases, ShouldResemble, []string{"db"})
		So(admin.exports[0].CsvExportOptions.SelectQuery, ShouldEqual, "SELECT * FROM users")
		So(admin.polls, ShouldEqual, 2)
	})
}

func TestTableNames(t *testing.T) {
	t.Parallel()

	Convey("table names", t, func() {
		So(tmpTableName("users"), ShouldEqual, "tmp_users")
		So(tmpTableName("public.users"), ShouldEqual, "public.tmp_users")
		So(validateTableName("public.Users_2024"), ShouldBeNil)
		So(validateTableName("_staging$1"), ShouldBeNil)
		So(validateTableName("a.b.c"), ShouldErrLike, "invalid table name")
		So(validateTableName("1users"), ShouldErrLike, "invalid table name")
		So(validateTableName("user events"), ShouldErrLike, "invalid table name")
		So(validateTableName(""), ShouldErrLike, "invalid table name")
	})
}
