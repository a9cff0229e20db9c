// Package core is the orchestration layer.  It turns a validated Config
// into a ready-to-run ScanMode: dialers, payloads, prober, scanner,
// metrics and report options.
//
// Architecture layers (bottom → top):
//
//	transport / payload  →  probe  →  scan  →  core  →  cmd (CLI)
package core

import (
	"os"

	"pscan/config"
	"pscan/internal/metrics"
	"pscan/internal/payload"
	"pscan/internal/probe"
	"pscan/internal/report"
	"pscan/internal/scan"
	"pscan/internal/transport"
	"pscan/tunnel"
	"pscan/util"
)

// Build constructs a ScanMode from the given configuration.  cfg is
// expected to have passed Validate.
func Build(cfg *config.Config, logger *util.Logger) (*ScanMode, error) {
	if cfg.NoDNS {
		if err := util.CheckNumericHost(cfg.Host); err != nil {
			return nil, err
		}
	}

	format, err := report.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	col := metrics.New()

	var gateway *transport.GatewayDialer
	var stream transport.Dialer = &transport.TCPDialer{
		Timeout:    cfg.Timeout,
		SourceAddr: cfg.SourceAddr,
	}
	if cfg.TunnelEnabled {
		gateway = buildGateway(cfg, logger)
		stream = gateway
		logger.Warn("SSH forwards TCP only; UDP probes leave from this host")
		if cfg.SourceAddr != "" {
			logger.Warn("--source does not apply to probes sent through %s", cfg.TunnelHost)
		}
	}

	prober := &probe.Prober{
		Stream: stream,
		Datagram: &transport.UDPDialer{
			Timeout:    cfg.Timeout,
			SourceAddr: cfg.SourceAddr,
		},
		Timeout: cfg.Timeout,
		Payload: buildPayload(cfg),
		Logger:  logger.With("probe"),
	}

	m := &ScanMode{
		Scanner: &scan.Scanner{
			Prober:   prober,
			Workers:  cfg.Workers,
			Parallel: cfg.Parallel,
			Logger:   logger,
			Metrics:  col,
		},
		Gateway: gateway,
		Request: scan.Request{
			Host:      cfg.Host,
			StartPort: cfg.Start,
			EndPort:   cfg.End,
		},
		Report: report.Options{
			Format:     format,
			ShowStatus: cfg.ShowStatus,
			Host:       cfg.Host,
			Start:      cfg.Start,
			End:        cfg.End,
		},
		Output:      os.Stdout,
		Metrics:     col,
		MetricsFile: cfg.MetricsFile,
		Logger:      logger,
	}
	if cfg.Progress {
		m.Progress = os.Stderr
	}
	return m, nil
}

// ── shared helpers ───────────────────────────────────────────────────

func buildGateway(cfg *config.Config, logger *util.Logger) *transport.GatewayDialer {
	gw := tunnel.NewSSHGateway(&tunnel.SSHConfig{
		User:          cfg.TunnelUser,
		Host:          cfg.TunnelHost,
		Port:          cfg.TunnelPort,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.GatewayTimeout,
	}, logger.With("ssh"))
	return transport.NewGatewayDialer(gw, logger)
}

func buildPayload(cfg *config.Config) payload.Func {
	fn := payload.Marker(cfg.Payload)
	if cfg.ServicePayloads {
		fn = payload.WithServices(fn)
	}
	return fn
}
