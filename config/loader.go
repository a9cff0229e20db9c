package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the config file when --config is not given.
const EnvConfigFile = "PSCAN_CONFIG"

// LoadFile overlays the YAML document at path onto cfg.  Keys that are
// absent keep their current value; unknown keys are an error so that a
// typo does not silently fall back to a default.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Dump renders cfg as YAML, in the same shape LoadFile reads.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the PSCAN_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("500ms") or whole seconds ("5").

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	// Probing
	if v := envInt("PSCAN_WORKERS"); v > 0 {
		cfg.Workers = v
	}
	if v := envDuration("PSCAN_TIMEOUT"); v > 0 {
		cfg.Timeout = v
	}
	if envBool("PSCAN_PARALLEL") {
		cfg.Parallel = true
	}
	if v := os.Getenv("PSCAN_PAYLOAD"); v != "" {
		cfg.Payload = v
	}
	if envBool("PSCAN_SERVICE_PAYLOADS") {
		cfg.ServicePayloads = true
	}
	if envBool("PSCAN_NO_DNS") {
		cfg.NoDNS = true
	}
	if v := os.Getenv("PSCAN_SOURCE"); v != "" {
		cfg.SourceAddr = v
	}

	// SSH gateway
	if v := os.Getenv("PSCAN_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("PSCAN_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("PSCAN_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("PSCAN_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("PSCAN_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("PSCAN_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envDuration("PSCAN_GATEWAY_TIMEOUT"); v > 0 {
		cfg.GatewayTimeout = v
	}

	// Output
	if v := os.Getenv("PSCAN_OUTPUT"); v != "" {
		cfg.Output = strings.ToLower(v)
	}
	if envBool("PSCAN_STATUS") {
		cfg.ShowStatus = true
	}
	if envBool("PSCAN_PROGRESS") {
		cfg.Progress = true
	}
	if v := os.Getenv("PSCAN_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}
	if v := envInt("PSCAN_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
