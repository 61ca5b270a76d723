package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"runwatch/internal/monitor"
)

type outputFormat int

const (
	formatTable outputFormat = iota
	formatJSON
	formatYAML
)

// formatFlags binds the shared --json/--yaml switches.
type formatFlags struct {
	json bool
	yaml bool
}

func (f *formatFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&f.yaml, "yaml", false, "Output as YAML")
}

func (f *formatFlags) format() (outputFormat, error) {
	switch {
	case f.json && f.yaml:
		return formatTable, errors.New("--json and --yaml are mutually exclusive")
	case f.json:
		return formatJSON, nil
	case f.yaml:
		return formatYAML, nil
	default:
		return formatTable, nil
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeStructured(cmd *cobra.Command, format outputFormat, v any) error {
	if format == formatYAML {
		return writeYAML(cmd, v)
	}
	return writeJSON(cmd, v)
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

var titleCaser = cases.Title(language.English)

// statusLabel renders a check status for tables, coloured on terminals.
func statusLabel(status monitor.Status, colorize bool) string {
	label := titleCaser.String(string(status))
	if !colorize {
		return label
	}
	switch status {
	case monitor.StatusHealthy:
		return ansiGreen + label + ansiReset
	case monitor.StatusWarning:
		return ansiYellow + label + ansiReset
	case monitor.StatusDegraded:
		return ansiRed + label + ansiReset
	default:
		return label
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// checkValues flattens a check's values for one table cell.
func checkValues(check monitor.Check) string {
	if len(check.Values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(check.Values))
	for k := range check.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, check.Values[k]))
	}
	return strings.Join(parts, " ")
}

func renderSnapshot(out io.Writer, snap monitor.Snapshot, colorize bool) {
	rows := make([][]string, 0, len(snap.Checks))
	for _, name := range snap.Names() {
		check := snap.Checks[name]
		rows = append(rows, []string{name, statusLabel(check.Status, colorize), checkValues(check), check.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Values", "Detail"}, rows, nil))
	fmt.Fprintf(out, "Worst: %s\n", statusLabel(snap.Worst(), colorize))
}
