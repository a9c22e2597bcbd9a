package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/synophoto/internal/ratelimit"
	"github.com/tonimelisma/synophoto/internal/reports"
)

// Rate-limit scopes.
const (
	scopeReports  = "reports"
	scopeFeedback = "feedback"
)

// cliUserAgent identifies submissions made from this tool.
const cliUserAgent = "synophoto-cli"

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <item-id>",
		Short: "Report an item, hiding it from listings",
		Long: `Record a report against an item. Reports by the same client for the same
item within the duplicate window are skipped. Submissions are rate limited
per client.`,
		Args: cobra.ExactArgs(1),
		RunE: runReport,
	}

	cmd.Flags().String("filename", "", "filename shown to moderators")
	addClientFlags(cmd)

	return cmd
}

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Moderate stored reports",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live reports, newest first",
		Args:  cobra.NoArgs,
		RunE:  runReportsList,
	}
	addPageFlags(list)

	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <report-id>",
		Short: "Delete a report, restoring the item if no other report remains",
		Args:  cobra.ExactArgs(1),
		RunE:  runReportsDelete,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired reports, feedback and analytics events",
		Args:  cobra.NoArgs,
		RunE:  runReportsPrune,
	})

	return cmd
}

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <message...>",
		Short: "Send feedback",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFeedback,
	}

	addClientFlags(cmd)

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored feedback, newest first",
		Args:  cobra.NoArgs,
		RunE:  runFeedbackList,
	}
	addPageFlags(list)

	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <feedback-id>",
		Short: "Delete one feedback entry",
		Args:  cobra.ExactArgs(1),
		RunE:  runFeedbackDelete,
	})

	return cmd
}

func newRateLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimit <scope> <client-id>",
		Short: "Record one attempt against a rate limit and show the result",
		Long: `Run one sliding-window check for a client, exactly as a submission would.
Scope is "reports" or "feedback". An admitted check counts as an attempt.`,
		Args: cobra.ExactArgs(2),
		RunE: runRateLimit,
	}
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show visitor, view and download analytics",
		Long: `Summarize analytics recorded by ls, stat and get: unique visitors per day,
folder and item views, downloads, and the ten most popular folders and items.`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}

	cmd.Flags().String("period", string(reports.Period30d), `window: "7d", "30d", "90d" or "all"`)

	return cmd
}

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("client", "cli", "client address for rate limiting, deduplication and analytics")
	cmd.Flags().String("user-agent", cliUserAgent, "user agent reported for the request")
}

// clientHeader renders the client flags as the headers a proxied request
// would carry.
func clientHeader(cmd *cobra.Command) http.Header {
	client, _ := cmd.Flags().GetString("client")
	ua, _ := cmd.Flags().GetString("user-agent")

	h := http.Header{}
	h.Set("X-Forwarded-For", client)
	h.Set("User-Agent", ua)

	return h
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("limit", 20, "entries per page (max 100)")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	h := clientHeader(cmd)
	client, ua := ratelimit.ClientID(h), h.Get("User-Agent")
	filename, _ := cmd.Flags().GetString("filename")

	if _, err := a.limiter.Enforce(ctx, scopeReports, client, rateRule(a.cc.Config().RateLimit.Reports)); err != nil {
		return err
	}

	rep, dup, err := a.reports.Submit(ctx, reports.Submission{
		ItemID:    args[0],
		Filename:  filename,
		ClientID:  client,
		UserAgent: ua,
	})
	if err != nil {
		return err
	}

	if a.cc.Flags.JSON {
		return printJSON(os.Stdout, map[string]any{"success": true, "duplicate": dup, "report_id": rep.ID})
	}

	if dup {
		a.cc.Statusf("Item %s was already reported recently.\n", args[0])
		return nil
	}

	fmt.Println(rep.ID)

	return nil
}

func pageFlags(cmd *cobra.Command) (int, int) {
	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")

	return page, limit
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	page, limit := pageFlags(cmd)

	out, err := a.reports.ListReports(ctx, page, limit)
	if err != nil {
		return err
	}

	if a.cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	rows := make([][]string, 0, len(out.Entries))
	for _, r := range out.Entries {
		rows = append(rows, []string{r.ID, r.ItemID, r.Filename, r.ClientID, formatTime(r.CreatedAt)})
	}

	printTable(os.Stdout, []string{"ID", "ITEM", "FILENAME", "CLIENT", "REPORTED"}, rows)
	a.cc.Statusf("page %d, %d reports total\n", page, out.Total)

	return nil
}

func runReportsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.reports.DeleteReport(ctx, args[0]); err != nil {
		return err
	}

	a.cc.Statusf("Deleted report %s.\n", args[0])

	return nil
}

func runReportsPrune(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.reports.Prune(ctx)
	if err != nil {
		return err
	}

	a.cc.Statusf("Pruned %d expired entries.\n", n)

	return nil
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	h := clientHeader(cmd)
	client, ua := ratelimit.ClientID(h), h.Get("User-Agent")

	if _, err := a.limiter.Enforce(ctx, scopeFeedback, client, rateRule(a.cc.Config().RateLimit.Feedback)); err != nil {
		return err
	}

	fb, err := a.reports.AddFeedback(ctx, strings.Join(args, " "), ua)
	if err != nil {
		return err
	}

	if a.cc.Flags.JSON {
		return printJSON(os.Stdout, map[string]any{"success": true, "id": fb.ID})
	}

	a.cc.Statusf("Thanks for the feedback.\n")

	return nil
}

func runFeedbackList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	page, limit := pageFlags(cmd)

	out, err := a.reports.ListFeedback(ctx, page, limit)
	if err != nil {
		return err
	}

	if a.cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	rows := make([][]string, 0, len(out.Entries))
	for _, f := range out.Entries {
		rows = append(rows, []string{strconv.FormatInt(f.ID, 10), formatTime(f.CreatedAt), f.Message})
	}

	printTable(os.Stdout, []string{"ID", "RECEIVED", "MESSAGE"}, rows)
	a.cc.Statusf("page %d, %d entries total\n", page, out.Total)

	return nil
}

func runFeedbackDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid feedback id %q", args[0])
	}

	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.reports.DeleteFeedback(ctx, id); err != nil {
		return err
	}

	a.cc.Statusf("Deleted feedback %d.\n", id)

	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("period")

	period, err := reports.ParsePeriod(raw)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.reports.Stats(ctx, period)
	if err != nil {
		return err
	}

	if a.cc.Flags.JSON {
		return printJSON(os.Stdout, st)
	}

	printStats(os.Stdout, st)

	return nil
}

func printStats(w io.Writer, st reports.Stats) {
	fmt.Fprintf(w, "Period:       %s\n", st.Period)
	fmt.Fprintf(w, "Visitors:     %d\n", st.TotalVisitors)
	fmt.Fprintf(w, "Folder views: %d\n", st.FolderViews)
	fmt.Fprintf(w, "Item views:   %d\n", st.ItemViews)
	fmt.Fprintf(w, "Downloads:    %d\n", st.Downloads)

	if len(st.PopularFolders) > 0 {
		fmt.Fprintln(w)

		rows := make([][]string, 0, len(st.PopularFolders))
		for _, f := range st.PopularFolders {
			rows = append(rows, []string{f.FolderID, f.FolderName, strconv.Itoa(f.Count)})
		}

		printTable(w, []string{"FOLDER", "NAME", "VIEWS"}, rows)
	}

	for _, top := range []struct {
		label string
		items []reports.ItemCount
	}{
		{"VIEWS", st.PopularItemsByViews},
		{"DOWNLOADS", st.PopularItemsByDownloads},
	} {
		if len(top.items) == 0 {
			continue
		}

		fmt.Fprintln(w)

		rows := make([][]string, 0, len(top.items))
		for _, it := range top.items {
			rows = append(rows, []string{it.ItemID, it.ItemFilename, strconv.Itoa(it.Count)})
		}

		printTable(w, []string{"ITEM", "FILENAME", top.label}, rows)
	}
}

// rateLimitOutput is the JSON schema for `ratelimit --json`.
type rateLimitOutput struct {
	Scope      string    `json:"scope"`
	Client     string    `json:"client"`
	Allowed    bool      `json:"allowed"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after_seconds,omitempty"`
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	var rule ratelimit.Rule

	switch args[0] {
	case scopeReports:
		rule = rateRule(cc.Config().RateLimit.Reports)
	case scopeFeedback:
		rule = rateRule(cc.Config().RateLimit.Feedback)
	default:
		return fmt.Errorf("unknown scope %q: want %q or %q", args[0], scopeReports, scopeFeedback)
	}

	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.limiter.Check(ctx, args[0], args[1], rule)
	if err != nil {
		return err
	}

	out := rateLimitOutput{
		Scope:     args[0],
		Client:    args[1],
		Allowed:   res.Allowed,
		Remaining: res.Remaining,
		ResetAt:   res.ResetAt,
	}

	if !res.Allowed {
		out.RetryAfter = int(res.RetryAfter(time.Now()).Seconds())
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	verdict := "allowed"
	if !out.Allowed {
		verdict = fmt.Sprintf("rejected, retry after %ds", out.RetryAfter)
	}

	fmt.Printf("%s/%s: %s, %d remaining of %d per %s\n",
		out.Scope, out.Client, verdict, out.Remaining, rule.Limit, rule.Window)

	return nil
}
