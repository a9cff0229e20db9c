// Package cmd wires up the CLI flags and dispatches to the scan core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"pscan/config"
	"pscan/internal/core"
	"pscan/internal/report"
	"pscan/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X pscan/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives results, --version and --dry-run output.  Tests swap
// it.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// stderr receives usage text.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs one scan.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()

	// ── config file, then environment ────────────────────────────
	// Flags are registered with the file/env values as defaults, so
	// the file must be found before the real parse.
	path := configPath(args)
	if path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("pscan", flag.ContinueOnError)
	fs.SortFlags = false
	fs.SetOutput(stderr)

	// ── probing ──────────────────────────────────────────────────
	fs.IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Concurrent probes per protocol")
	fs.DurationVarP(&cfg.Timeout, "timeout", "w", cfg.Timeout, "Per-probe timeout")
	fs.BoolVar(&cfg.Parallel, "parallel", cfg.Parallel, "Scan TCP and UDP at the same time")
	fs.StringVar(&cfg.Payload, "payload", cfg.Payload, "UDP probe payload")
	fs.BoolVar(&cfg.ServicePayloads, "service-payloads", cfg.ServicePayloads, "Send a DNS query to 53/udp and an SNMP get to 161/udp")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")
	fs.StringVarP(&cfg.SourceAddr, "source", "s", cfg.SourceAddr, "Local source IP for probes")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Probe TCP through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.GatewayTimeout, "gateway-timeout", cfg.GatewayTimeout, "SSH gateway connect timeout")

	// ── output ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: "+strings.Join(report.Formats(), ", "))
	fs.BoolVar(&cfg.ShowStatus, "status", cfg.ShowStatus, "Add a status column (open, closed, filtered, timeout, unreachable)")
	fs.BoolVar(&cfg.Progress, "progress", cfg.Progress, "Show a progress bar on stderr")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file after the scan")
	baseVerbose := cfg.Verbose // CountVarP resets to zero
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var configFile string
	var showVersion, showHelp, dryRun bool
	fs.StringVarP(&configFile, "config", "c", path, "YAML config file (env "+config.EnvConfigFile+")")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate and print the effective config, then exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	// ContinueOnError leaves usage to the caller.
	if err := fs.Parse(args); err != nil {
		printUsage(fs)
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "pscan %s\n", version)
		return nil
	}
	cfg.Verbose += baseVerbose

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		printUsage(fs)
		return err
	}

	// ── tunnel spec, then validate ───────────────────────────────
	if err := cfg.ResolveTunnel(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dryRun {
		data, err := config.Dump(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "# pscan %s %d %d (%d port(s) per protocol)\n%s",
			cfg.Host, cfg.Start, cfg.End, cfg.PortCount(), data)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if path != "" {
		logger.Verbose("loaded config from %s", path)
	}

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	mode.Output = stdout
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config/-c in args without parsing the rest, falling
// back to $PSCAN_CONFIG.
func configPath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-c") && !strings.HasPrefix(arg, "--") && len(arg) > 2:
			return strings.TrimPrefix(strings.TrimPrefix(arg, "-c"), "=")
		}
	}
	return os.Getenv(config.EnvConfigFile)
}

// parsePositional reads exactly <host> <start> <end>.
func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) != 3 {
		return fmt.Errorf("expected <host> <start> <end>, got %d argument(s)", len(remaining))
	}
	cfg.Host = remaining[0]

	start, err := strconv.Atoi(remaining[1])
	if err != nil {
		return fmt.Errorf("start port %q is not an integer", remaining[1])
	}
	end, err := strconv.Atoi(remaining[2])
	if err != nil {
		return fmt.Errorf("end port %q is not an integer", remaining[2])
	}
	cfg.Start = start
	cfg.End = end
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `pscan – TCP/UDP port range prober v%s

Probes every port in [start, end) on host, once over TCP and once over
UDP, and prints one line per port sorted by port number.

Usage:
  pscan [options] <host> <start> <end>
  pscan [options] -- <host> <start> <end>

Arguments that start with "-" are read as flags; put them after "--".

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprint(stderr, `
Examples:
  pscan 192.0.2.10 20 26                      TCP and UDP, ports 20-25
  pscan -j 50 -w 500ms scanme.example 1 1025  Faster sweep of the low ports
  pscan -o table --status 10.0.0.1 50 60      Table with closed/filtered/timeout
  pscan --service-payloads 10.0.0.1 53 54     DNS query instead of the marker
  pscan -T ops@bastion 10.1.2.3 5432 5433     TCP through an SSH gateway
`)
}
