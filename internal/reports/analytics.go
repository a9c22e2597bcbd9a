package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/synophoto/internal/apperr"
)

// EventType names an analytics event.
type EventType string

// Event types.
const (
	EventVisitor      EventType = "visitor"
	EventFolderView   EventType = "folder_view"
	EventItemView     EventType = "item_view"
	EventItemDownload EventType = "item_download"
)

// Period is a stats window.
type Period string

// Stats periods.
const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"
	PeriodAll Period = "all"
)

const (
	maxEventField = 500
	popularLimit  = 10
	unknownName   = "Unknown"
	unknownID     = "unknown"
	dayLayout     = "2006-01-02"
)

// ErrInvalidPeriod is returned by ParsePeriod for unknown periods.
var ErrInvalidPeriod = apperr.BadRequest("Invalid period. Valid values: 7d, 30d, 90d, all")

const (
	sqlInsertEvent = `INSERT INTO analytics_events
		(type, visitor_id, folder_id, folder_name, item_id, item_filename, day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlInsertVisitor = `INSERT OR IGNORE INTO analytics_events (type, visitor_id, day, created_at)
		VALUES ('visitor', ?, ?, ?)`
	sqlCountEvents   = `SELECT COUNT(*) FROM analytics_events WHERE type = ? AND created_at >= ?`
	sqlPopularFolder = `SELECT folder_id, MIN(COALESCE(folder_name, '')), COUNT(*) AS n FROM analytics_events
		WHERE type = 'folder_view' AND created_at >= ? GROUP BY folder_id ORDER BY n DESC, folder_id LIMIT ?`
	sqlPopularItem = `SELECT item_id, MIN(COALESCE(item_filename, '')), COUNT(*) AS n FROM analytics_events
		WHERE type = ? AND created_at >= ? GROUP BY item_id ORDER BY n DESC, item_id LIMIT ?`
	sqlPruneEvents = `DELETE FROM analytics_events WHERE created_at < ?`
)

// Event is one analytics event. Folder fields apply to folder views, item
// fields to item views and downloads.
type Event struct {
	Type         EventType
	VisitorID    string
	FolderID     string
	FolderName   string
	ItemID       string
	ItemFilename string
}

// FolderCount is a folder and how often it was viewed.
type FolderCount struct {
	FolderID   string `json:"folderId"`
	FolderName string `json:"folderName"`
	Count      int    `json:"views"`
}

// ItemCount is an item and how often it was viewed or downloaded.
type ItemCount struct {
	ItemID       string `json:"itemId"`
	ItemFilename string `json:"itemFilename"`
	Count        int    `json:"count"`
}

// Stats summarizes analytics over a period.
type Stats struct {
	Period                  Period        `json:"period"`
	TotalVisitors           int           `json:"totalVisitors"`
	FolderViews             int           `json:"folderViews"`
	ItemViews               int           `json:"itemViews"`
	Downloads               int           `json:"downloads"`
	PopularFolders          []FolderCount `json:"popularFolders"`
	PopularItemsByViews     []ItemCount   `json:"popularItemsByViews"`
	PopularItemsByDownloads []ItemCount   `json:"popularItemsByDownloads"`
}

// ParsePeriod validates a stats period. Empty selects 30d.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return Period30d, nil
	case Period7d, Period30d, Period90d, PeriodAll:
		return p, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// days returns the period length, zero for all time.
func (p Period) days() int {
	switch p {
	case Period7d:
		return 7
	case Period30d:
		return 30
	case Period90d:
		return 90
	default:
		return 0
	}
}

// Track records ev. Visitor events are recorded at most once per visitor
// per UTC day.
func (s *Store) Track(ctx context.Context, ev Event) error {
	if ev.VisitorID == "" {
		return apperr.BadRequest("visitor id is required")
	}

	now := s.opts.Now().UTC()
	day := now.Format(dayLayout)

	var err error

	switch ev.Type {
	case EventVisitor:
		_, err = s.db.ExecContext(ctx, sqlInsertVisitor, ev.VisitorID, day, now.UnixNano())
	case EventFolderView:
		if ev.FolderID == "" {
			return apperr.BadRequest("folderId is required for folder_view")
		}

		_, err = s.db.ExecContext(ctx, sqlInsertEvent, string(ev.Type), ev.VisitorID,
			clip(ev.FolderID, unknownID), clip(ev.FolderName, unknownName), nil, nil, day, now.UnixNano())
	case EventItemView, EventItemDownload:
		if ev.ItemID == "" {
			return apperr.BadRequest(fmt.Sprintf("itemId is required for %s", ev.Type))
		}

		_, err = s.db.ExecContext(ctx, sqlInsertEvent, string(ev.Type), ev.VisitorID,
			nullString(clip(ev.FolderID, "")), nil, clip(ev.ItemID, unknownID), clip(ev.ItemFilename, unknownName),
			day, now.UnixNano())
	default:
		return apperr.BadRequest("Invalid event type")
	}

	if err != nil {
		return fmt.Errorf("reports: tracking %s: %w", ev.Type, err)
	}

	s.logger.Debug("tracked event", slog.String("type", string(ev.Type)))

	return nil
}

// TrackDownload records a completed attachment download.
func (s *Store) TrackDownload(ctx context.Context, itemID, filename, visitorID string) error {
	return s.Track(ctx, Event{Type: EventItemDownload, VisitorID: visitorID, ItemID: itemID, ItemFilename: filename})
}

// Stats summarizes events recorded within period.
func (s *Store) Stats(ctx context.Context, period Period) (Stats, error) {
	var since int64
	if d := period.days(); d > 0 {
		since = s.opts.Now().AddDate(0, 0, -d).UnixNano()
	}

	out := Stats{Period: period}

	g, gctx := errgroup.WithContext(ctx)

	for typ, dst := range map[EventType]*int{
		EventVisitor:      &out.TotalVisitors,
		EventFolderView:   &out.FolderViews,
		EventItemView:     &out.ItemViews,
		EventItemDownload: &out.Downloads,
	} {
		g.Go(func() error {
			return s.db.QueryRowContext(gctx, sqlCountEvents, string(typ), since).Scan(dst)
		})
	}

	g.Go(func() error {
		var err error
		out.PopularFolders, err = s.popularFolders(gctx, since)

		return err
	})

	g.Go(func() error {
		var err error
		out.PopularItemsByViews, err = s.popularItems(gctx, EventItemView, since)

		return err
	})

	g.Go(func() error {
		var err error
		out.PopularItemsByDownloads, err = s.popularItems(gctx, EventItemDownload, since)

		return err
	})

	if err := g.Wait(); err != nil {
		return Stats{}, fmt.Errorf("reports: computing stats: %w", err)
	}

	return out, nil
}

func (s *Store) popularFolders(ctx context.Context, since int64) ([]FolderCount, error) {
	rows, err := s.db.QueryContext(ctx, sqlPopularFolder, since, popularLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []FolderCount{}

	for rows.Next() {
		var fc FolderCount
		if err := rows.Scan(&fc.FolderID, &fc.FolderName, &fc.Count); err != nil {
			return nil, err
		}

		fc.FolderName = orUnknown(fc.FolderName)
		out = append(out, fc)
	}

	return out, rows.Err()
}

func (s *Store) popularItems(ctx context.Context, typ EventType, since int64) ([]ItemCount, error) {
	rows, err := s.db.QueryContext(ctx, sqlPopularItem, string(typ), since, popularLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ItemCount{}

	for rows.Next() {
		var ic ItemCount
		if err := rows.Scan(&ic.ItemID, &ic.ItemFilename, &ic.Count); err != nil {
			return nil, err
		}

		ic.ItemFilename = orUnknown(ic.ItemFilename)
		out = append(out, ic)
	}

	return out, rows.Err()
}

func (s *Store) analyticsCutoff() int64 {
	return s.opts.Now().Add(-s.opts.AnalyticsRetention).UnixNano()
}

// clip trims v to the stored field length, substituting fallback when empty.
func clip(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}

	if r := []rune(v); len(r) > maxEventField {
		return string(r[:maxEventField])
	}

	return v
}

func orUnknown(v string) string {
	if v == "" {
		return unknownName
	}

	return v
}
