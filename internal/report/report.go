// Package report renders scan results.
//
// Every format walks the groups in scan order (TCP, then UDP) and sorts
// each group by port; the scanner itself makes no ordering promise.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"pscan/internal/probe"
)

// Format selects the output layout.
type Format string

const (
	FormatPlain Format = "plain"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Formats lists the accepted --output values.
func Formats() []string {
	return []string{string(FormatPlain), string(FormatTable), string(FormatJSON)}
}

// ParseFormat validates s as a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatPlain, FormatTable, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want one of %s)", s, strings.Join(Formats(), ", "))
}

// Separator follows every group in plain output.
const Separator = "---------------------------"

// Options controls rendering.
type Options struct {
	Format     Format
	ShowStatus bool // plain only; table and JSON always carry status

	// JSON envelope.  A missing ScanID is generated.
	ScanID string
	Host   string
	Start  int
	End    int
}

// Sorted returns a copy of group ordered by port.
func Sorted(group []probe.Result) []probe.Result {
	out := slices.Clone(group)
	slices.SortStableFunc(out, func(a, b probe.Result) int {
		return a.Port - b.Port
	})
	return out
}

// Write renders groups to w.  groups[i] holds the results for
// probe.Modes()[i].
func Write(w io.Writer, groups [][]probe.Result, opts Options) error {
	switch opts.Format {
	case FormatPlain, "":
		return writePlain(w, groups, opts.ShowStatus)
	case FormatTable:
		return writeTable(w, groups)
	case FormatJSON:
		return writeJSON(w, groups, opts)
	default:
		return fmt.Errorf("unknown output format %q", opts.Format)
	}
}

func writePlain(w io.Writer, groups [][]probe.Result, showStatus bool) error {
	var b strings.Builder
	for _, group := range groups {
		for _, r := range Sorted(group) {
			b.WriteString(r.Mode.String())
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(r.Port))
			b.WriteByte(' ')
			b.WriteString(strconv.FormatBool(r.Reachable))
			if showStatus {
				b.WriteByte(' ')
				b.WriteString(r.Status.String())
			}
			b.WriteByte('\n')
		}
		b.WriteString(Separator)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTable(w io.Writer, groups [][]probe.Result) error {
	for _, group := range groups {
		table := tablewriter.NewWriter(w)
		table.Header("Protocol", "Port", "Reachable", "Status")
		for _, r := range Sorted(group) {
			if err := table.Append([]string{
				r.Mode.String(),
				strconv.Itoa(r.Port),
				strconv.FormatBool(r.Reachable),
				r.Status.String(),
			}); err != nil {
				return fmt.Errorf("table row: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering table: %w", err)
		}
	}
	return nil
}

type jsonGroup struct {
	Protocol string         `json:"protocol"`
	Results  []probe.Result `json:"results"`
}

type jsonReport struct {
	ScanID string      `json:"scan_id"`
	Host   string      `json:"host"`
	Start  int         `json:"start"`
	End    int         `json:"end"`
	Groups []jsonGroup `json:"groups"`
}

func writeJSON(w io.Writer, groups [][]probe.Result, opts Options) error {
	rep := jsonReport{
		ScanID: opts.ScanID,
		Host:   opts.Host,
		Start:  opts.Start,
		End:    opts.End,
		Groups: make([]jsonGroup, 0, len(groups)),
	}
	if rep.ScanID == "" {
		rep.ScanID = uuid.NewString()
	}

	modes := probe.Modes()
	for i, group := range groups {
		label := "UNKNOWN"
		if i < len(modes) {
			label = modes[i].String()
		}
		rep.Groups = append(rep.Groups, jsonGroup{Protocol: label, Results: Sorted(group)})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// Summary is a one-line count of reachable ports per group, e.g.
// "TCP 2/100 reachable, UDP 0/100 reachable".
func Summary(groups [][]probe.Result) string {
	modes := probe.Modes()
	parts := make([]string, 0, len(groups))
	for i, group := range groups {
		label := "UNKNOWN"
		if i < len(modes) {
			label = modes[i].String()
		}
		open := 0
		for _, r := range group {
			if r.Reachable {
				open++
			}
		}
		parts = append(parts, fmt.Sprintf("%s %d/%d reachable", label, open, len(group)))
	}
	return strings.Join(parts, ", ")
}
