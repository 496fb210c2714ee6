// Package output renders pductl command results as tables, JSON, or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Row is implemented by the result types pductl's commands produce
// (endpoint status rows, manifest validation rows, ...). It lets the table
// formatter lay out columns the way each command's data actually reads,
// instead of guessing a layout from struct reflection.
type Row interface {
	Columns() []string
	Values() []string
}

// Formatter renders data in one of the supported output formats.
type Formatter interface {
	Format(data any) string
}

// New returns a Formatter for the given format string: "table" (default),
// "json", or "yaml".
func New(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &jsonFormatter{}
	case "yaml":
		return &yamlFormatter{}
	default:
		return &tableFormatter{}
	}
}

type tableFormatter struct{}

func (f *tableFormatter) Format(data any) string {
	rows, ok := data.([]Row)
	if !ok {
		return fmt.Sprintf("%v\n", data)
	}
	if len(rows) == 0 {
		return "No results.\n"
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(rows[0].Columns(), "\t"))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r.Values(), "\t"))
	}
	w.Flush()
	return buf.String()
}

type jsonFormatter struct{}

func (f *jsonFormatter) Format(data any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting JSON: %v\n", err)
	}
	return string(b) + "\n"
}

type yamlFormatter struct{}

func (f *yamlFormatter) Format(data any) string {
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	return string(b)
}
