package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/synophoto/internal/gallery"
	"github.com/tonimelisma/synophoto/internal/ratelimit"
	"github.com/tonimelisma/synophoto/internal/records"
	"github.com/tonimelisma/synophoto/internal/visibility"
)

// lsConcurrency bounds parallel folder listings.
const lsConcurrency = 4

// filePermissions for downloaded media.
const filePermissions = 0o644

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [folder-id...]",
		Short: "List collections, or the contents of folders",
		Long: `Without arguments, list the collections under the configured root.
With folder ids, list each folder's subfolders and items. Several folders
are listed in parallel and printed in argument order.`,
		RunE: runLs,
	}

	addListFlags(cmd)
	addClientFlags(cmd)

	return cmd
}

func newStatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat <item-id>",
		Short: "Display item metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}

	addItemFlags(cmd)
	cmd.Flags().String("additional", "", `extra fields, JSON array or comma list (e.g. "exif,resolution")`)

	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <item-id> [local-path]",
		Short: "Download an original file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}

	addItemFlags(cmd)
	cmd.Flags().String("range", "", `byte range to request (e.g. "bytes=0-1023")`)

	return cmd
}

func newThumbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumb <item-id> [local-path]",
		Short: "Download a thumbnail",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runThumb,
	}

	addItemFlags(cmd)
	cmd.Flags().String("size", "", `thumbnail size: "sm", "m" or "xl" (default "m")`)
	cmd.Flags().String("cache-key", "", "thumbnail cache key (default from item info)")

	return cmd
}

func addListFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("offset", 0, "first entry to return")
	f.Int("limit", gallery.DefaultLimit, "entries per page")
	f.String("sort", "", `upstream sort key; empty, "name" or "filename" sort by name locally`)
	f.Bool("desc", false, "sort descending")
	f.String("type", "", "restrict items to an upstream type")
	f.String("passphrase", "", "shared-space passphrase")
}

func addItemFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("folder", "", "containing folder id (enables the folder scan cache)")
	f.String("passphrase", "", "shared-space passphrase")
	addClientFlags(cmd)
}

func listQuery(cmd *cobra.Command) gallery.Query {
	f := cmd.Flags()
	q := gallery.Query{}
	q.Offset, _ = f.GetInt("offset")
	q.Limit, _ = f.GetInt("limit")
	q.SortBy, _ = f.GetString("sort")
	q.Type, _ = f.GetString("type")
	q.Passphrase, _ = f.GetString("passphrase")
	q.Visitor = ratelimit.VisitorID(clientHeader(cmd))

	if desc, _ := f.GetBool("desc"); desc {
		q.SortDirection = "desc"
	}

	return q
}

func itemQuery(cmd *cobra.Command, itemID string) gallery.ItemQuery {
	q := gallery.ItemQuery{ItemID: itemID}
	q.FolderID, _ = cmd.Flags().GetString("folder")
	q.Passphrase, _ = cmd.Flags().GetString("passphrase")
	q.Visitor = ratelimit.VisitorID(clientHeader(cmd))

	return q
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	q := listQuery(cmd)

	if len(args) == 0 {
		list, err := a.gallery.Collections(ctx, "", q)
		if err != nil {
			return err
		}

		if a.cc.Flags.JSON {
			return printJSON(os.Stdout, list)
		}

		printCollections(os.Stdout, list.Data)
		a.cc.Statusf("%d of %d collections\n", len(list.Data), list.Page.Total)

		return nil
	}

	results, err := listFolders(ctx, a.gallery, args, q)
	if err != nil {
		return err
	}

	if a.cc.Flags.JSON {
		if len(results) == 1 {
			return printJSON(os.Stdout, results[0])
		}

		return printJSON(os.Stdout, results)
	}

	for i, c := range results {
		if len(results) > 1 {
			if i > 0 {
				fmt.Println()
			}

			fmt.Printf("%s:\n", args[i])
		}

		printContents(os.Stdout, c)
	}

	return nil
}

// listFolders lists each folder concurrently; results keep argument order.
// The first failure cancels the rest.
func listFolders(ctx context.Context, svc *gallery.Service, folderIDs []string, q gallery.Query) ([]gallery.Contents, error) {
	results := make([]gallery.Contents, len(folderIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lsConcurrency)

	for i, id := range folderIDs {
		g.Go(func() error {
			c, err := svc.Contents(gctx, id, q)
			if err != nil {
				return fmt.Errorf("listing %s: %w", id, err)
			}

			results[i] = c

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func printCollections(w io.Writer, cs []records.Collection) {
	rows := make([][]string, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, []string{c.ID, c.Title, strconv.Itoa(c.ItemCount), formatISO(c.UpdatedAt)})
	}

	printTable(w, []string{"ID", "TITLE", "ITEMS", "UPDATED"}, rows)
}

func printContents(w io.Writer, c gallery.Contents) {
	rows := make([][]string, 0, len(c.Folders)+len(c.Items))

	for _, f := range c.Folders {
		rows = append(rows, []string{f.ID, f.Title + "/", "-", formatISO(f.UpdatedAt)})
	}

	for _, it := range c.Items {
		rows = append(rows, []string{it.ID, it.Filename, formatSize(it.SizeBytes), formatISO(it.TakenAt)})
	}

	printTable(w, []string{"ID", "NAME", "SIZE", "TAKEN"}, rows)
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	q := itemQuery(cmd, args[0])
	raw, _ := cmd.Flags().GetString("additional")
	q.Additional = visibility.ParseAdditional(raw)

	it, err := a.gallery.Item(ctx, q)
	if err != nil {
		return err
	}

	if a.cc.Flags.JSON {
		return printJSON(os.Stdout, it)
	}

	fmt.Printf("ID:        %s\n", it.ID)
	fmt.Printf("Filename:  %s\n", it.Filename)
	fmt.Printf("Type:      %s\n", it.Type)

	if it.MimeType != "" {
		fmt.Printf("MIME:      %s\n", it.MimeType)
	}

	fmt.Printf("Size:      %s (%d bytes)\n", formatSize(it.SizeBytes), it.SizeBytes)

	if it.Width > 0 && it.Height > 0 {
		fmt.Printf("Pixels:    %dx%d\n", it.Width, it.Height)
	}

	fmt.Printf("Taken:     %s\n", formatISO(it.TakenAt))
	fmt.Printf("Thumbnail: %s\n", it.ThumbnailURL)
	fmt.Printf("Download:  %s\n", it.DownloadURL)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	rangeHeader, _ := cmd.Flags().GetString("range")

	m, err := a.gallery.Download(ctx, itemQuery(cmd, args[0]), rangeHeader)
	if err != nil {
		return err
	}

	return saveMedia(a.cc, m, localPath(args, m.ContentDisposition))
}

func runThumb(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	size, _ := cmd.Flags().GetString("size")
	cacheKey, _ := cmd.Flags().GetString("cache-key")

	m, err := a.gallery.Thumbnail(ctx, itemQuery(cmd, args[0]), size, cacheKey)
	if err != nil {
		return err
	}

	return saveMedia(a.cc, m, localPath(args, m.ContentDisposition))
}

// localPath is the explicit destination, else the filename the upstream
// disposition names, reduced to its base name.
func localPath(args []string, disposition string) string {
	if len(args) > 1 {
		return args[1]
	}

	if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
		return filepath.Base(params["filename"])
	}

	return filepath.Base(args[0])
}

// saveMedia writes the streamed body to path via a temp file, so an
// interrupted transfer never leaves a partial file under the final name.
// "-" writes to stdout.
func saveMedia(cc *CLIContext, m *gallery.Media, path string) error {
	body := m.Response.Body
	defer body.Close()

	if path == "-" {
		_, err := io.Copy(os.Stdout, body)
		return err
	}

	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, ".synophoto-*.partial")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmp := f.Name()

	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := os.Chmod(tmp, filePermissions); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming to %s: %w", path, err)
	}

	suffix := ""
	if cr := m.Header.Get("Content-Range"); cr != "" {
		suffix = " (" + strings.TrimSpace(cr) + ")"
	}

	cc.Statusf("Saved %s, %s%s\n", path, formatSize(n), suffix)

	return nil
}
