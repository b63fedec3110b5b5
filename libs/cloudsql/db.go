// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cloudsql

import (
	"context"
	"database/sql"
	"net"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

const (
	connMaxLifetime time.Duration = 0
	maxIdleConns    int           = 5
	maxOpenConns    int           = 5
)

// DBConfig describes a direct connection to a Cloud SQL database.
type DBConfig struct {
	// ConnectionName is the "<project>:<region>:<instance>" instance
	// connection name.
	ConnectionName string
	Database       string
	User           string
	Password       string
	// PasswordSecret, if set, is the Secret Manager secret version holding
	// the password, e.g. "projects/p/secrets/db-pass/versions/latest". It
	// takes precedence over Password.
	PasswordSecret string
	PrivateIP      bool
}

// DB is a database/sql connection pool to a Cloud SQL database.
type DB struct {
	conn   *sql.DB
	dialer *cloudsqlconn.Dialer
}

// OpenDB connects to a database through the Cloud SQL connector, which
// needs neither the proxy nor authorized networks. secrets may be nil when
// cfg.PasswordSecret is empty.
func OpenDB(ctx context.Context, cfg DBConfig, secrets SecretStore, opts ...cloudsqlconn.Option) (*DB, error) {
	password := cfg.Password
	if cfg.PasswordSecret != "" {
		if secrets == nil {
			return nil, errors.Reason("password secret %q given without a secret store", cfg.PasswordSecret).Err()
		}
		var err error
		if password, err = secrets.Secret(ctx, cfg.PasswordSecret); err != nil {
			return nil, err
		}
	}

	if cfg.PrivateIP {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	dialer, err := cloudsqlconn.NewDialer(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "initializing Cloud SQL dialer").Err()
	}

	logging.Debugf(ctx, "Connecting as user=%s to instance=%s database=%s", cfg.User, cfg.ConnectionName, cfg.Database)
	connConfig, err := pgxConfig(cfg.User, password, cfg.Database)
	if err != nil {
		dialer.Close()
		return nil, err
	}
	connConfig.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return dialer.Dial(ctx, cfg.ConnectionName)
	}

	conn := stdlib.OpenDB(*connConfig)
	conn.SetConnMaxLifetime(connMaxLifetime)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetMaxOpenConns(maxOpenConns)
	return &DB{conn: conn, dialer: dialer}, nil
}

// pgxConfig builds the connection settings. The fields are set directly so
// that no value is parsed as part of a connection string.
func pgxConfig(user, password, database string) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig("")
	if err != nil {
		return nil, errors.Annotate(err, "parse connection config").Err()
	}
	connConfig.User = user
	connConfig.Password = password
	connConfig.Database = database
	return connConfig, nil
}

// NewDB wraps an existing connection pool.
func NewDB(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the pool and the dialer.
func (db *DB) Close() error {
	err := db.conn.Close()
	if db.dialer != nil {
		if derr := db.dialer.Close(); err == nil {
			err = derr
		}
	}
	return err
}

// Exec runs a statement and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Annotate(err, "exec").Err()
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Annotate(err, "rows affected").Err()
	}
	return n, nil
}

// Query runs a query and returns its rows as column name to value maps.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotate(err, "query").Err()
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Annotate(err, "columns").Err()
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Annotate(err, "scan").Err()
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Annotate(err, "read rows").Err()
	}
	return out, nil
}
