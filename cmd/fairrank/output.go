package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ricesearch/fairrank/internal/report"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
)

func outputFormatFlag(cmd *cobra.Command) (outputFormat, error) {
	format, _ := cmd.Flags().GetString("format")
	switch outputFormat(format) {
	case formatText, formatJSON:
		return outputFormat(format), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (must be text or json)", format)
	}
}

func writeReport(w io.Writer, format outputFormat, r *report.Report) error {
	if format == formatJSON {
		return report.WriteJSON(w, r)
	}
	return report.WriteText(w, r)
}

func writeReports(w io.Writer, format outputFormat, reports []*report.Report) error {
	for i, r := range reports {
		if i > 0 && format == formatText {
			fmt.Fprintln(w)
		}
		if err := writeReport(w, format, r); err != nil {
			return err
		}
	}
	return nil
}
