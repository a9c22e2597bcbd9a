package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatISO renders an ISO-8601 timestamp compactly, or "-" when absent.
func formatISO(iso string) string {
	if iso == "" {
		return "-"
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}

	return formatTime(t)
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
