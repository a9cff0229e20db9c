// Package config defines the runtime configuration for pscan and the
// helpers that fill and check it.
//
// Precedence, lowest first: Default(), a YAML file (LoadFile), PSCAN_*
// environment variables (LoadFromEnv), then command-line flags.
package config

import (
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	ncerr "pscan/internal/errors"
)

// Config holds every tuneable for a single scan.
type Config struct {
	// ── Target (positional, never read from a file) ─────────────────
	Host  string `yaml:"-" flag:"host" validate:"required"`
	Start int    `yaml:"-" flag:"start" validate:"gte=0,lte=65535"`
	End   int    `yaml:"-" flag:"end" validate:"gte=0,lte=65536"` // exclusive

	// ── Probing ─────────────────────────────────────────────────────
	Workers         int           `yaml:"workers" flag:"workers" validate:"gte=1,lte=10000"`
	Timeout         time.Duration `yaml:"timeout" flag:"timeout" validate:"gt=0"`
	Parallel        bool          `yaml:"parallel" flag:"parallel"`
	Payload         string        `yaml:"payload" flag:"payload" validate:"required,max=1024"`
	ServicePayloads bool          `yaml:"service_payloads" flag:"service-payloads"`
	NoDNS           bool          `yaml:"no_dns" flag:"no-dns"`
	SourceAddr      string        `yaml:"source" flag:"source" validate:"omitempty,ip"`

	// ── SSH gateway ─────────────────────────────────────────────────
	TunnelSpec     string        `yaml:"tunnel" flag:"tunnel"` // raw [user@]host[:port] from -T
	TunnelEnabled  bool          `yaml:"-"`
	TunnelUser     string        `yaml:"-"`
	TunnelHost     string        `yaml:"-"`
	TunnelPort     int           `yaml:"-"`
	SSHKeyPath     string        `yaml:"ssh_key" flag:"ssh-key"`
	SSHPassword    bool          `yaml:"ssh_password" flag:"ssh-password"` // true → prompt interactively
	UseSSHAgent    bool          `yaml:"ssh_agent" flag:"ssh-agent"`
	StrictHostKey  bool          `yaml:"strict_hostkey" flag:"strict-hostkey"`
	KnownHostsPath string        `yaml:"known_hosts" flag:"known-hosts"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout" flag:"gateway-timeout" validate:"gte=0"`

	// ── Output ──────────────────────────────────────────────────────
	Output      string `yaml:"output" flag:"output" validate:"oneof=plain table json"`
	ShowStatus  bool   `yaml:"status" flag:"status"`
	Progress    bool   `yaml:"progress" flag:"progress"`
	MetricsFile string `yaml:"metrics_file" flag:"metrics-file"`
	Verbose     int    `yaml:"verbose" flag:"verbose" validate:"gte=0"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Workers:        DefaultWorkers,
		Timeout:        DefaultProbeTimeout,
		Payload:        DefaultPayload,
		Output:         DefaultOutput,
		GatewayTimeout: DefaultGatewayTimeout,
	}
}

// PortCount returns the size of [Start, End); an inverted range is empty.
func (c *Config) PortCount() int {
	if c.End <= c.Start {
		return 0
	}
	return c.End - c.Start
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > MaxPort {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ResolveTunnel parses TunnelSpec into the Tunnel* fields.  An empty
// spec disables the gateway.
func (c *Config) ResolveTunnel() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: err.Error(),
			Hint:    "use -T user@bastion.example.com[:port]",
		}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator reports field errors under their flag names, so a
// failure reads "--workers" rather than "Workers".
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("flag"), ",", 2)[0]
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// hints carries a suggestion per flag for ConfigError.
var hints = map[string]string{
	"host":            "usage: pscan [flags] <host> <start> <end>",
	"start":           "ports are 0-65535; the end of the range is exclusive",
	"end":             "ports are 0-65535; use 65536 as the end to include port 65535",
	"workers":         "each worker holds one socket; 5-200 is a sensible range",
	"timeout":         "use a Go duration such as 500ms or 3s",
	"payload":         "the marker must be non-empty; the default is \"query\"",
	"source":          "pass a local IP address, e.g. -s 192.0.2.10",
	"gateway-timeout": "use a Go duration such as 30s",
	"output":          "choose plain, table or json",
}

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError with a hint where one helps.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ncerr.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return fmt.Errorf("config: %w", err)
	}

	if c.NoDNS && net.ParseIP(c.Host) == nil {
		return &ncerr.ConfigError{
			Field:   "host",
			Value:   c.Host,
			Message: "not a numeric IP address (DNS disabled with -n)",
			Hint:    "drop -n or pass the target as an IP address",
		}
	}

	if !c.TunnelEnabled {
		for _, f := range []struct {
			flag string
			set  bool
		}{
			{"ssh-key", c.SSHKeyPath != ""},
			{"ssh-password", c.SSHPassword},
			{"ssh-agent", c.UseSSHAgent},
			{"strict-hostkey", c.StrictHostKey},
			{"known-hosts", c.KnownHostsPath != ""},
		} {
			if f.set {
				return &ncerr.ConfigError{
					Field:   f.flag,
					Message: "only applies to an SSH gateway",
					Hint:    "add -T user@gateway or drop --" + f.flag,
				}
			}
		}
	} else if c.TunnelHost == "" {
		return &ncerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "tunnel host is required",
			Hint:    "use -T user@bastion.example.com[:port]",
		}
	}

	return nil
}

func fieldError(fe validator.FieldError) error {
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "gte":
		msg = "must be at least " + fe.Param()
	case "gt":
		msg = "must be greater than " + fe.Param()
	case "lte":
		msg = "must be at most " + fe.Param()
	case "max":
		msg = "must be at most " + fe.Param() + " bytes"
	case "oneof":
		msg = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "ip":
		msg = "must be an IP address"
	default:
		msg = "failed " + fe.Tag() + " check"
	}

	var value interface{}
	if fe.Tag() != "required" {
		value = fe.Value()
	}
	return &ncerr.ConfigError{
		Field:   fe.Field(),
		Value:   value,
		Message: msg,
		Hint:    hints[fe.Field()],
	}
}
