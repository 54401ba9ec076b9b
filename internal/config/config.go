// Package config reads harness settings from the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/melih/cage-verify/internal/core/domain"
)

// Config holds every setting of a verification run.
type Config struct {
	// CI skips local certificate generation and the mock helper build; the
	// build secrets must then come from the environment.
	CI bool

	BuildContext  string
	Dockerfile    string
	ImageTag      string
	ContainerName string
	Host          string

	TestCommand      string
	TestDir          string
	ScenarioFile     string
	CertsDir         string
	MockBuildCommand string
	StartTimeout     time.Duration
	ExecTimeout      time.Duration
	StartSettle      time.Duration
	ExecSettle       time.Duration
	DiagnosticLines  int
	TLSServerName    string
	StatusAddr       string
	LogLevel         zerolog.Level
	Secrets          map[string]string
}

// Load builds a Config from getenv, applying defaults.
func Load(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		BuildContext:     env("CAGE_BUILD_CONTEXT", "."),
		Dockerfile:       env("CAGE_DOCKERFILE", "Dockerfile"),
		ImageTag:         env("CAGE_IMAGE_TAG", "cage-verify:latest"),
		ContainerName:    env("CAGE_CONTAINER_NAME", "cage-verify"),
		Host:             env("CAGE_HOST", "localhost"),
		TestCommand:      env("CAGE_TEST_COMMAND", "npm run test --"),
		TestDir:          env("CAGE_TEST_DIR", "e2e-tests"),
		ScenarioFile:     env("CAGE_SCENARIO_FILE", ""),
		CertsDir:         env("CAGE_CERTS_DIR", "e2e-tests/certs"),
		MockBuildCommand: env("CAGE_MOCK_BUILD_COMMAND", ""),
		TLSServerName:    env("CAGE_TLS_SERVER_NAME", ""),
		StatusAddr:       env("CAGE_STATUS_ADDR", ""),
		Secrets:          map[string]string{},
	}

	var err error
	if cfg.CI, err = parseBool("CI", env("CI", "false")); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
		// timeouts must be positive, settles may be zero
		positive bool
	}{
		{"CAGE_START_TIMEOUT", "60s", &cfg.StartTimeout, true},
		{"CAGE_EXEC_TIMEOUT", "15s", &cfg.ExecTimeout, true},
		{"CAGE_START_SETTLE", "0s", &cfg.StartSettle, false},
		{"CAGE_EXEC_SETTLE", "0s", &cfg.ExecSettle, false},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(env(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if d.positive && v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", d.key)
		}
		*d.dst = v
	}

	if cfg.DiagnosticLines, err = strconv.Atoi(env("CAGE_DIAGNOSTIC_LINES", "100")); err != nil {
		return nil, fmt.Errorf("invalid CAGE_DIAGNOSTIC_LINES: %w", err)
	}
	if cfg.DiagnosticLines <= 0 {
		return nil, fmt.Errorf("invalid CAGE_DIAGNOSTIC_LINES: must be positive")
	}

	if cfg.LogLevel, err = zerolog.ParseLevel(env("CAGE_LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("invalid CAGE_LOG_LEVEL: %w", err)
	}

	for _, name := range domain.SecretNames {
		if v := getenv(name); v != "" {
			cfg.Secrets[name] = v
		}
	}
	return cfg, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
