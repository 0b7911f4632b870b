package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/klubi/rstore/pkg/client"
)

// outputFormat is set by the root command's -o flag.
// Supported values: "table" (default), "json", "yaml".
var outputFormat string

// maxColumns caps the number of resource fields shown in table output.
const maxColumns = 6

// printTable writes tabular data to w using aligned columns.
func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

// printJSON writes the value as pretty-printed JSON to w.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML writes the value as YAML to w.
func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

// printResources renders resources in the selected output format. Table
// output shows the uuid first, then the remaining fields in name order.
func printResources(w io.Writer, resources []client.Resource) error {
	switch outputFormat {
	case "json":
		return printJSON(w, resources)
	case "yaml":
		return printYAML(w, resources)
	}

	headers := resourceColumns(resources)
	rows := make([][]string, 0, len(resources))
	for _, r := range resources {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = formatValue(r[h])
		}
		rows = append(rows, row)
	}
	printTable(w, headers, rows)
	return nil
}

// printResource renders a single resource. Table output lists one field per
// line.
func printResource(w io.Writer, r client.Resource) error {
	switch outputFormat {
	case "json":
		return printJSON(w, r)
	case "yaml":
		return printYAML(w, r)
	}

	fields := make([]string, 0, len(r))
	for k := range r {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f, formatValue(r[f])})
	}
	printTable(w, []string{"FIELD", "VALUE"}, rows)
	return nil
}

func resourceColumns(resources []client.Resource) []string {
	seen := map[string]bool{"uuid": true}
	var fields []string
	for _, r := range resources {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)
	if len(fields) > maxColumns-1 {
		fields = fields[:maxColumns-1]
	}
	return append([]string{"uuid"}, fields...)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "<none>"
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
