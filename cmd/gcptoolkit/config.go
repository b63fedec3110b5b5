// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"go.chromium.org/luci/common/errors"
)

// projectEnvVar is consulted when neither the flag nor the config file name
// a project.
const projectEnvVar = "GOOGLE_CLOUD_PROJECT"

// Config is the optional YAML configuration file.
type Config struct {
	Project  string         `yaml:"project"`
	Location string         `yaml:"location"`
	CloudSQL CloudSQLConfig `yaml:"cloudsql"`
}

// CloudSQLConfig holds the Cloud SQL settings.
type CloudSQLConfig struct {
	Instance       string `yaml:"instance"`
	Bucket         string `yaml:"bucket"`
	BucketLocation string `yaml:"bucket_location"`
	ImportUser     string `yaml:"import_user"`

	// Direct connections.
	ConnectionName string `yaml:"connection_name"`
	User           string `yaml:"user"`
	PasswordSecret string `yaml:"password_secret"`
	PrivateIP      bool   `yaml:"private_ip"`
}

// loadConfig reads the config file. An empty path yields an empty config.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotate(err, "read config").Err()
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Annotate(err, "parse config %s", path).Err()
	}
	return cfg, nil
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveProject picks the project from the flag, then the config file,
// then the environment.
func resolveProject(flagValue string, cfg *Config, getenv func(string) string) (string, error) {
	project := firstNonEmpty(flagValue, cfg.Project, getenv(projectEnvVar))
	if project == "" {
		return "", errors.Reason("no project: pass -project, set it in the config file or set %s", projectEnvVar).Err()
	}
	return project, nil
}
