package main

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/synophoto/internal/gallery"
	"github.com/tonimelisma/synophoto/internal/records"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		disposition string
		want        string
	}{
		{"explicit destination", []string{"101", "out.jpg"}, `attachment; filename="beach.jpg"`, "out.jpg"},
		{"disposition filename", []string{"101"}, `attachment; filename="beach.jpg"`, "beach.jpg"},
		{"disposition path stripped", []string{"101"}, `attachment; filename="../../etc/passwd"`, "passwd"},
		{"extended filename", []string{"101"}, `attachment; filename*=UTF-8''%C3%A9t%C3%A9.jpg`, "été.jpg"},
		{"no disposition", []string{"101"}, "", "101"},
		{"stdout", []string{"101", "-"}, "", "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, localPath(tt.args, tt.disposition))
		})
	}
}

func TestListQuery(t *testing.T) {
	cmd := newLsCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--offset", "20", "--limit", "10", "--sort", "takentime", "--desc", "--type", "photo"}))

	q := listQuery(cmd)
	assert.Len(t, q.Visitor, 16)
	q.Visitor = ""
	assert.Equal(t, gallery.Query{Offset: 20, Limit: 10, SortBy: "takentime", SortDirection: "desc", Type: "photo"}, q)
}

func TestItemQuery(t *testing.T) {
	cmd := newStatCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--folder", "20", "--passphrase", "abc"}))

	q := itemQuery(cmd, "101")
	assert.Equal(t, "101", q.ItemID)
	assert.Equal(t, "20", q.FolderID)
	assert.Equal(t, "abc", q.Passphrase)

	other := newStatCmd()
	require.NoError(t, other.ParseFlags([]string{"--client", "10.0.0.9"}))
	assert.NotEqual(t, q.Visitor, itemQuery(other, "101").Visitor, "visitors are keyed by client")
}

func TestSaveMedia_RenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beach.jpg")

	m := &gallery.Media{
		Response: &http.Response{Body: io.NopCloser(strings.NewReader("jpegdata"))},
		Header:   http.Header{"Content-Range": []string{"bytes 0-7/100"}},
	}

	cc := &CLIContext{Flags: CLIFlags{Quiet: true}}
	require.NoError(t, saveMedia(cc, m, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))

	leftovers, err := filepath.Glob(filepath.Join(dir, ".synophoto-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n > 0 {
		r.n--
		return copy(p, "x"), nil
	}

	return 0, io.ErrUnexpectedEOF
}

func TestSaveMedia_FailedTransferLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beach.jpg")

	m := &gallery.Media{
		Response: &http.Response{Body: io.NopCloser(&failingReader{n: 3})},
		Header:   http.Header{},
	}

	err := saveMedia(&CLIContext{Flags: CLIFlags{Quiet: true}}, m, path)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrintContents(t *testing.T) {
	var buf bytes.Buffer

	printContents(&buf, gallery.Contents{
		Folders: []records.Collection{{ID: "20", Title: "Summer"}},
		Items:   []records.MediaItem{{ID: "101", Filename: "beach.jpg", SizeBytes: 2048}},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "20   Summer/    -       -", lines[1])
	assert.Equal(t, "101  beach.jpg  2.0 KB  -", lines[2])
}
