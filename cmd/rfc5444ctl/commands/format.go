package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func formatProtocols(protocols []protocolView, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(protocols, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal protocols to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatProtocolsTable(protocols), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatProtocol(p protocolView, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal protocol to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatProtocolsTable([]protocolView{p}), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatProtocolsTable(protocols []protocolView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAGGREGATION\tMTU\tINTERFACES")

	for _, p := range protocols {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			p.Name, p.AggregationInterval, p.MTU, strings.Join(p.Interfaces, ","))
	}

	_ = w.Flush()
	return buf.String()
}

func formatTargets(targets []targetView, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(targets, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal targets to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		return formatTargetsTable(targets), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatTargetsTable(targets []targetView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tACTIVE")

	for _, t := range targets {
		fmt.Fprintf(w, "%s\t%t\n", t.Address, t.Active)
	}

	_ = w.Flush()
	return buf.String()
}
