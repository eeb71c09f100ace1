/*
Copyright 2024-2025 the Unikorn Authors.
Copyright 2026 Nscale.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultUsername       = "admin"
	defaultPassword       = "admin"
	defaultBugTrackerURL  = "https://pulp.plan.io"
	defaultRequestTimeout = 30 * time.Second
	defaultTaskTimeout    = 5 * time.Minute
	defaultPollInterval   = 2 * time.Second
)

type TestConfig struct {
	BaseURL          string
	Username         string
	Password         string
	AuthToken        string
	ServerVersion    string
	VerifyTLS        bool
	RequestTimeout   time.Duration
	TaskTimeout      time.Duration
	TaskPollInterval time.Duration
	BugTrackerURL    string
	SkipIntegration  bool
	LogRequests      bool
	LogResponses     bool
}

// LoadTestConfig loads configuration from environment variables and .env files.
// Returns an error if required configuration values are missing.
func LoadTestConfig() (*TestConfig, error) {
	loadEnvFile()

	config := &TestConfig{
		BaseURL:          os.Getenv("PULP_BASE_URL"),
		Username:         getStringWithDefault("PULP_USERNAME", defaultUsername),
		Password:         getStringWithDefault("PULP_PASSWORD", defaultPassword),
		AuthToken:        os.Getenv("PULP_AUTH_TOKEN"),
		ServerVersion:    os.Getenv("PULP_VERSION"),
		VerifyTLS:        getBoolWithDefault("PULP_VERIFY_TLS", true),
		RequestTimeout:   getDurationWithDefault("REQUEST_TIMEOUT", defaultRequestTimeout),
		TaskTimeout:      getDurationWithDefault("TASK_TIMEOUT", defaultTaskTimeout),
		TaskPollInterval: getDurationWithDefault("TASK_POLL_INTERVAL", defaultPollInterval),
		BugTrackerURL:    defaultBugTrackerURL,
		SkipIntegration:  getBoolWithDefault("SKIP_INTEGRATION", false),
		LogRequests:      getBoolWithDefault("LOG_REQUESTS", false),
		LogResponses:     getBoolWithDefault("LOG_RESPONSES", false),
	}

	// An explicitly empty value turns issue lookups off.
	if value, ok := os.LookupEnv("BUG_TRACKER_URL"); ok {
		config.BugTrackerURL = strings.TrimSuffix(value, "/")
	}

	// Validate required fields
	if err := validateRequiredFields(config); err != nil {
		return nil, err
	}

	return config, nil
}

// getStringWithDefault gets a string from environment variable or returns default.
func getStringWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// getDurationWithDefault gets a duration from environment variable or returns default.
func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil || duration <= 0 {
		return defaultValue
	}

	return duration
}

// getBoolWithDefault gets a boolean from environment variable or returns default.
func getBoolWithDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolValue
}

func loadEnvFile() {
	envPaths := []string{
		"../.env",    // From test/api directory
		"../../.env", // From test/api/suites directory
		"test/.env",  // From the repository root
	}

	var envPath string

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				envPath = absPath
				break
			}
		}
	}

	if envPath == "" {
		// .env file not found - this is OK in CI/CD where env vars are set directly
		return
	}

	// Existing environment variables win over the file.
	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file from %s: %v\n", envPath, err)
	}
}

// validateRequiredFields checks that all required configuration values are set.
func validateRequiredFields(config *TestConfig) error {
	var missing []string

	required := map[string]string{
		"PULP_BASE_URL": config.BaseURL,
	}

	if config.AuthToken == "" {
		required["PULP_USERNAME"] = config.Username
		required["PULP_PASSWORD"] = config.Password
	}

	for envVar, value := range required {
		if value == "" {
			missing = append(missing, envVar)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)

		return fmt.Errorf("missing required configuration: %s. Please set these environment variables or add them to a .env file", strings.Join(missing, ", "))
	}

	return nil
}
