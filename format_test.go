package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5242880, "5.0 MB"},
		{"gigabytes", 1610612736, "1.5 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestFormatISO(t *testing.T) {
	assert.Equal(t, "-", formatISO(""))
	assert.Equal(t, "yesterday", formatISO("yesterday"), "unparseable values pass through")
	assert.Contains(t, formatISO("2019-07-04T12:00:00Z"), "2019")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"ID", "NAME", "TAKEN"}
	rows := [][]string{
		{"101", "beach.jpg", "Jan 15 10:30"},
		{"20", "Summer", ""},
	}

	printTable(&buf, headers, rows)
	output := buf.String()

	assert.Contains(t, output, "ID   NAME       TAKEN")
	assert.Contains(t, output, "beach.jpg")
	assert.Contains(t, output, "20   Summer\n", "trailing padding is trimmed")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]any{"success": true}))
	assert.Equal(t, "{\n  \"success\": true\n}\n", buf.String())
}
