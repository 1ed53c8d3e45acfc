package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes the report as one aligned table per sensitive feature:
// groups as rows, metrics as columns, followed by the disparity summary.
func WriteText(w io.Writer, r *Report) error {
	if _, err := fmt.Fprintf(w, "Dataset %s (%d items)\nReport  %s\nCreated %s\n",
		r.Dataset, r.Items, r.ID, r.CreatedAt.Format("2006-01-02 15:04:05 MST")); err != nil {
		return err
	}

	for _, f := range r.Features {
		if _, err := fmt.Fprintf(w, "\nSensitive feature: %s\n", f.Name); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		header := make([]string, 0, len(f.Metrics)+1)
		header = append(header, "group")
		for _, m := range f.Metrics {
			header = append(header, m.Name)
		}
		writeRow(tw, header)

		for _, g := range f.Groups {
			row := []string{g}
			for _, m := range f.Metrics {
				row = append(row, lookup(m.ByGroup, g))
			}
			writeRow(tw, row)
		}

		summaries := []struct {
			label string
			value func(MetricReport) string
		}{
			{"min", func(m MetricReport) string { return groupCell(m.Min) }},
			{"max", func(m MetricReport) string { return groupCell(m.Max) }},
			{"difference", func(m MetricReport) string { return cell(m.Difference) }},
			{"ratio", func(m MetricReport) string { return cell(m.Ratio) }},
		}
		for _, s := range summaries {
			row := []string{s.label}
			for _, m := range f.Metrics {
				row = append(row, s.value(m))
			}
			writeRow(tw, row)
		}

		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(w io.Writer, cells []string) {
	fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
}

func lookup(values []GroupValue, group string) string {
	for _, v := range values {
		if v.Group == group {
			return formatValue(v.Value)
		}
	}
	return "-"
}

func cell(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return formatValue(*v)
}

func groupCell(v *GroupValue) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%s (%s)", formatValue(v.Value), v.Group)
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
