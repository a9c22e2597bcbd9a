// Package reports persists visitor reports about items and free-form
// feedback in a local SQLite database. Reports are deduplicated per client,
// capped per item, and expire after a retention period; feedback is capped
// globally and expires likewise.
package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/synophoto/internal/apperr"
)

// Defaults for Options.
const (
	DefaultDuplicateWindow    = time.Hour
	DefaultMaxPerItem         = 200
	DefaultRetention          = 30 * 24 * time.Hour
	DefaultFeedbackMax        = 1000
	DefaultFeedbackRetention  = 90 * 24 * time.Hour
	DefaultAnalyticsRetention = 365 * 24 * time.Hour

	unknownUserAgent = "unknown"
	maxPageLimit     = 100
)

// ErrFeedbackEmpty is returned for blank feedback messages.
var ErrFeedbackEmpty = apperr.BadRequest("message is required")

const (
	sqlInsertReport = `INSERT INTO reports (id, item_id, client_id, user_agent, filename, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	sqlRecentDuplicate = `SELECT 1 FROM reports
		WHERE item_id = ? AND client_id = ? AND created_at >= ? LIMIT 1`
	sqlCapReports = `DELETE FROM reports WHERE item_id = ? AND id NOT IN (
		SELECT id FROM reports WHERE item_id = ? ORDER BY created_at DESC LIMIT ?)`
	sqlPruneReports    = `DELETE FROM reports WHERE created_at < ?`
	sqlReportedItemIDs = `SELECT DISTINCT item_id FROM reports WHERE created_at >= ?`
	sqlItemReported    = `SELECT 1 FROM reports WHERE item_id = ? AND created_at >= ? LIMIT 1`
	sqlListReports     = `SELECT id, item_id, client_id, user_agent, filename, created_at FROM reports
		WHERE created_at >= ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	sqlCountReports = `SELECT COUNT(*) FROM reports WHERE created_at >= ?`
	sqlDeleteReport = `DELETE FROM reports WHERE id = ?`

	sqlInsertFeedback = `INSERT INTO feedback (message, user_agent, created_at) VALUES (?, ?, ?)`
	sqlCapFeedback    = `DELETE FROM feedback WHERE id NOT IN (
		SELECT id FROM feedback ORDER BY created_at DESC, id DESC LIMIT ?)`
	sqlPruneFeedback = `DELETE FROM feedback WHERE created_at < ?`
	sqlListFeedback  = `SELECT id, message, user_agent, created_at FROM feedback
		WHERE created_at >= ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	sqlCountFeedback  = `SELECT COUNT(*) FROM feedback WHERE created_at >= ?`
	sqlDeleteFeedback = `DELETE FROM feedback WHERE id = ?`
)

// Report is one stored report.
type Report struct {
	ID        string
	ItemID    string
	ClientID  string
	UserAgent string
	Filename  string
	CreatedAt time.Time
}

// Submission is an unvalidated report as received from a visitor.
type Submission struct {
	ItemID    string
	Filename  string
	ClientID  string
	UserAgent string
}

// Feedback is one stored feedback message.
type Feedback struct {
	ID        int64
	Message   string
	UserAgent string
	CreatedAt time.Time
}

// Page is one page of a listing plus the total number of live rows.
type Page[T any] struct {
	Entries []T
	Total   int
}

// Options tune a Store. Zero values select the defaults.
type Options struct {
	DuplicateWindow    time.Duration
	MaxPerItem         int
	Retention          time.Duration
	FeedbackMax        int
	FeedbackRetention  time.Duration
	AnalyticsRetention time.Duration
	Logger             *slog.Logger
	Now                func() time.Time
}

// Store is the report, feedback and analytics database.
type Store struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, apperr.MissingConfig("reports.database_path")
	}

	opts = withDefaults(opts)

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("reports: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, opts.Logger); err != nil {
		db.Close()
		return nil, err
	}

	opts.Logger.Debug("reports database ready", slog.String("db_path", path))

	return &Store{db: db, opts: opts, logger: opts.Logger}, nil
}

func withDefaults(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}

	if opts.MaxPerItem <= 0 {
		opts.MaxPerItem = DefaultMaxPerItem
	}

	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}

	if opts.FeedbackMax <= 0 {
		opts.FeedbackMax = DefaultFeedbackMax
	}

	if opts.FeedbackRetention <= 0 {
		opts.FeedbackRetention = DefaultFeedbackRetention
	}

	if opts.AnalyticsRetention <= 0 {
		opts.AnalyticsRetention = DefaultAnalyticsRetention
	}

	return opts
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Submit validates sub and stores it unless the same client reported the
// same item within the duplicate window. duplicate reports whether it was
// skipped.
func (s *Store) Submit(ctx context.Context, sub Submission) (rep Report, duplicate bool, err error) {
	itemID, err := ValidateItemID(sub.ItemID)
	if err != nil {
		return Report{}, false, err
	}

	dup, err := s.HasRecentDuplicate(ctx, itemID, sub.ClientID, s.opts.DuplicateWindow)
	if err != nil {
		return Report{}, false, err
	}

	if dup {
		s.logger.Debug("duplicate report skipped", slog.String("item_id", itemID))
		return Report{}, true, nil
	}

	filename, err := SanitizeFilename(sub.Filename)
	if err != nil {
		return Report{}, false, err
	}

	ua := strings.TrimSpace(sub.UserAgent)
	if ua == "" {
		ua = unknownUserAgent
	}

	rep = Report{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		ClientID:  sub.ClientID,
		UserAgent: ua,
		Filename:  filename,
		CreatedAt: s.opts.Now(),
	}

	if err := s.AddReport(ctx, rep); err != nil {
		return Report{}, false, err
	}

	return rep, false, nil
}

// HasRecentDuplicate reports whether clientID reported itemID within window.
func (s *Store) HasRecentDuplicate(ctx context.Context, itemID, clientID string, window time.Duration) (bool, error) {
	cutoff := s.opts.Now().Add(-window).UnixNano()

	return s.exists(ctx, sqlRecentDuplicate, itemID, clientID, cutoff)
}

// AddReport inserts rep, then trims the item's reports to the newest
// MaxPerItem and drops expired reports, in one transaction.
func (s *Store) AddReport(ctx context.Context, rep Report) error {
	return s.inTx(ctx, "adding report", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlInsertReport,
			rep.ID, rep.ItemID, rep.ClientID, rep.UserAgent, nullString(rep.Filename), rep.CreatedAt.UnixNano(),
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, sqlCapReports, rep.ItemID, rep.ItemID, s.opts.MaxPerItem); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, sqlPruneReports, s.reportCutoff())

		return err
	})
}

// ReportedItemIDs returns the ids of every item with a live report.
func (s *Store) ReportedItemIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, sqlReportedItemIDs, s.reportCutoff())
	if err != nil {
		return nil, fmt.Errorf("reports: listing reported items: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("reports: scanning reported item: %w", err)
		}

		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reports: iterating reported items: %w", err)
	}

	return ids, nil
}

// IsItemReported reports whether itemID has a live report.
func (s *Store) IsItemReported(ctx context.Context, itemID string) (bool, error) {
	return s.exists(ctx, sqlItemReported, itemID, s.reportCutoff())
}

// ListReports returns one page of live reports, newest first. page is
// 1-based; limit is clamped to 1..100.
func (s *Store) ListReports(ctx context.Context, page, limit int) (Page[Report], error) {
	page, limit = clampPage(page, limit)
	cutoff := s.reportCutoff()

	var out Page[Report]
	if err := s.db.QueryRowContext(ctx, sqlCountReports, cutoff).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("reports: counting reports: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlListReports, cutoff, limit, (page-1)*limit)
	if err != nil {
		return out, fmt.Errorf("reports: listing reports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rep      Report
			filename sql.NullString
			created  int64
		)

		if err := rows.Scan(&rep.ID, &rep.ItemID, &rep.ClientID, &rep.UserAgent, &filename, &created); err != nil {
			return out, fmt.Errorf("reports: scanning report: %w", err)
		}

		rep.Filename = filename.String
		rep.CreatedAt = time.Unix(0, created)
		out.Entries = append(out.Entries, rep)
	}

	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("reports: iterating reports: %w", err)
	}

	return out, nil
}

// DeleteReport removes one report by id. A missing report is not-found.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	if err := ValidateReportID(id); err != nil {
		return err
	}

	return s.deleteOne(ctx, sqlDeleteReport, id, "Report not found")
}

// AddFeedback stores a trimmed, non-empty message and enforces the global
// cap and retention.
func (s *Store) AddFeedback(ctx context.Context, message, userAgent string) (Feedback, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Feedback{}, ErrFeedbackEmpty
	}

	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		ua = unknownUserAgent
	}

	fb := Feedback{Message: message, UserAgent: ua, CreatedAt: s.opts.Now()}

	err := s.inTx(ctx, "adding feedback", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertFeedback, fb.Message, fb.UserAgent, fb.CreatedAt.UnixNano())
		if err != nil {
			return err
		}

		if fb.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, sqlCapFeedback, s.opts.FeedbackMax); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, sqlPruneFeedback, s.feedbackCutoff())

		return err
	})
	if err != nil {
		return Feedback{}, err
	}

	return fb, nil
}

// ListFeedback returns one page of live feedback, newest first.
func (s *Store) ListFeedback(ctx context.Context, page, limit int) (Page[Feedback], error) {
	page, limit = clampPage(page, limit)
	cutoff := s.feedbackCutoff()

	var out Page[Feedback]
	if err := s.db.QueryRowContext(ctx, sqlCountFeedback, cutoff).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("reports: counting feedback: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlListFeedback, cutoff, limit, (page-1)*limit)
	if err != nil {
		return out, fmt.Errorf("reports: listing feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fb      Feedback
			created int64
		)

		if err := rows.Scan(&fb.ID, &fb.Message, &fb.UserAgent, &created); err != nil {
			return out, fmt.Errorf("reports: scanning feedback: %w", err)
		}

		fb.CreatedAt = time.Unix(0, created)
		out.Entries = append(out.Entries, fb)
	}

	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("reports: iterating feedback: %w", err)
	}

	return out, nil
}

// DeleteFeedback removes one feedback entry by id.
func (s *Store) DeleteFeedback(ctx context.Context, id int64) error {
	return s.deleteOne(ctx, sqlDeleteFeedback, id, "Feedback not found")
}

// Prune deletes expired reports, feedback and analytics events and returns how many rows went.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	var total int64

	err := s.inTx(ctx, "pruning", func(tx *sql.Tx) error {
		for _, q := range []struct {
			sql    string
			cutoff int64
		}{
			{sqlPruneReports, s.reportCutoff()},
			{sqlPruneFeedback, s.feedbackCutoff()},
			{sqlPruneEvents, s.analyticsCutoff()},
		} {
			res, err := tx.ExecContext(ctx, q.sql, q.cutoff)
			if err != nil {
				return err
			}

			n, err := res.RowsAffected()
			if err != nil {
				return err
			}

			total += n
		}

		return nil
	})

	return total, err
}

// ExcludeReported drops entries whose id has a live report.
func ExcludeReported[T any](entries []T, id func(T) string, reported map[string]struct{}) []T {
	if len(reported) == 0 {
		return entries
	}

	out := make([]T, 0, len(entries))

	for _, e := range entries {
		if _, ok := reported[id(e)]; !ok {
			out = append(out, e)
		}
	}

	return out
}

func (s *Store) reportCutoff() int64 {
	return s.opts.Now().Add(-s.opts.Retention).UnixNano()
}

func (s *Store) feedbackCutoff() int64 {
	return s.opts.Now().Add(-s.opts.FeedbackRetention).UnixNano()
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int

	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("reports: query: %w", err)
	default:
		return true, nil
	}
}

func (s *Store) deleteOne(ctx context.Context, query string, id any, notFound string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reports: deleting %v: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reports: deleting %v: %w", id, err)
	}

	if n == 0 {
		return apperr.NotFound(notFound)
	}

	return nil
}

func (s *Store) inTx(ctx context.Context, what string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reports: %s: begin: %w", what, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("reports: %s: %w", what, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reports: %s: commit: %w", what, err)
	}

	return nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}

	if limit < 1 || limit > maxPageLimit {
		limit = 20
	}

	return page, limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
