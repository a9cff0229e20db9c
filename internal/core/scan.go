package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	ncerr "pscan/internal/errors"
	"pscan/internal/metrics"
	"pscan/internal/probe"
	"pscan/internal/report"
	"pscan/internal/scan"
	"pscan/internal/transport"
	"pscan/util"
)

// ScanMode runs one scan of a port range over every transport mode and
// renders the result.
type ScanMode struct {
	Scanner *scan.Scanner
	Gateway *transport.GatewayDialer // nil when probing directly
	Request scan.Request
	Report  report.Options

	Output   io.Writer // results; default os.Stdout
	Progress io.Writer // progress bar; nil disables it

	Metrics     *metrics.Collector
	MetricsFile string
	Logger      *util.Logger
}

// Run connects the gateway if there is one, scans, and writes the
// report.  A scan cut short by ctx still prints what it collected, and
// then returns the cancellation as an error.
func (m *ScanMode) Run(ctx context.Context) error {
	if m.Gateway != nil {
		defer m.Gateway.Close()
		if err := m.Gateway.Connect(ctx); err != nil {
			if ncerr.Is(err, ncerr.ErrAuthFailed) {
				m.Logger.Error("gateway rejected the login; check --ssh-key, --ssh-agent or --ssh-password")
			}
			return err
		}
	}

	req := m.Request
	m.Logger.Verbose("scanning %s [%d, %d): %d port(s) per protocol", req.Host, req.StartPort, req.EndPort, req.Len())

	var bar *progressbar.ProgressBar
	if m.Progress != nil && req.Len() > 0 {
		bar = newProgressBar(m.Progress, len(probe.Modes())*req.Len())
		m.Scanner.OnResult = func(probe.Result) { bar.Add(1) } //nolint:errcheck
	}

	began := time.Now()
	groups := m.Scanner.Run(ctx, req.Host, req.StartPort, req.EndPort)
	if bar != nil {
		bar.Finish() //nolint:errcheck
	}
	m.Logger.Info("%s in %s", report.Summary(groups), time.Since(began).Truncate(time.Millisecond))

	out := m.Output
	if out == nil {
		out = os.Stdout
	}
	if err := report.Write(out, groups, m.Report); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	if m.MetricsFile != "" {
		if err := m.Metrics.WriteTextfile(m.MetricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
		m.Logger.Verbose("metrics written to %s", m.MetricsFile)
	}
	if m.Logger.Enabled(util.LogDebug) {
		m.Logger.Debug("metrics: %s", m.Metrics.JSON())
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scan interrupted: %w", err)
	}
	return nil
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("probing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
