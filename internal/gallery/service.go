// Package gallery composes the upstream client, folder boundary, visibility
// policy, item resolver, and report exclusion into the read operations
// clients see: browsing collections, looking up items, and streaming media.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/boundary"
	"github.com/tonimelisma/synophoto/internal/itemcache"
	"github.com/tonimelisma/synophoto/internal/records"
	"github.com/tonimelisma/synophoto/internal/reports"
	"github.com/tonimelisma/synophoto/internal/synology"
	"github.com/tonimelisma/synophoto/internal/visibility"
)

// Listing defaults.
const (
	DefaultLimit = 100
	MaxLimit     = 500

	thumbnailField = "thumbnail"
)

// Upstream is the subset of synology.Client the gallery calls directly.
type Upstream interface {
	ListFolders(ctx context.Context, q synology.FolderQuery) (synology.Page, error)
	ListItems(ctx context.Context, q synology.ItemQuery) (synology.Page, error)
	FolderInfo(ctx context.Context, folderID, passphrase string) (records.Record, error)
	Thumbnail(ctx context.Context, r synology.ThumbnailRequest) (*http.Response, error)
	Download(ctx context.Context, r synology.DownloadRequest) (*http.Response, error)
}

// ReportIndex lists items hidden because visitors reported them.
// reports.Store implements it.
type ReportIndex interface {
	ReportedItemIDs(ctx context.Context) (map[string]struct{}, error)
}

// Tracker records visitor analytics. reports.Store implements it.
type Tracker interface {
	Track(ctx context.Context, ev reports.Event) error
}

// Query pages and orders a listing. Visitor, when set, attributes the
// listing to a visitor for analytics.
type Query struct {
	Offset        int
	Limit         int
	SortBy        string
	SortDirection string
	Type          string
	Passphrase    string
	Additional    []string
	Visitor       string
}

// PageInfo describes the page returned.
type PageInfo struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// CollectionList is one page of collections.
type CollectionList struct {
	Data []records.Collection `json:"data"`
	Page PageInfo             `json:"page"`
}

// Contents is one page of a folder's subfolders and items.
type Contents struct {
	Folders     []records.Collection `json:"folders"`
	Items       []records.MediaItem  `json:"items"`
	FoldersPage PageInfo             `json:"foldersPage"`
	Page        PageInfo             `json:"page"`
}

// Options configure a Service.
type Options struct {
	// Origin prefixes generated thumbnail and download URLs.
	Origin string
	Logger *slog.Logger

	// Tracker, when set, receives folder view, item view and download
	// events for queries that name a visitor.
	Tracker Tracker
}

// Service answers gallery reads.
type Service struct {
	up       Upstream
	bounds   *boundary.Engine
	policy   *visibility.Policy
	resolver *itemcache.Resolver
	reports  ReportIndex
	tracker  Tracker
	origin   string
	logger   *slog.Logger
}

// New returns a Service. index may be nil, in which case no item is
// excluded for being reported.
func New(
	up Upstream,
	bounds *boundary.Engine,
	policy *visibility.Policy,
	resolver *itemcache.Resolver,
	index ReportIndex,
	opts Options,
) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Service{
		up:       up,
		bounds:   bounds,
		policy:   policy,
		resolver: resolver,
		reports:  index,
		tracker:  opts.Tracker,
		origin:   opts.Origin,
		logger:   opts.Logger,
	}
}

// Collections lists the visible subfolders of parentID, or of the configured
// root when parentID is empty.
func (s *Service) Collections(ctx context.Context, parentID string, q Query) (CollectionList, error) {
	q = normalizeQuery(q)

	if parentID != "" {
		if err := s.bounds.AssertWithin(ctx, parentID, q.Passphrase); err != nil {
			return CollectionList{}, err
		}
	}

	parent := s.bounds.ListRoot(parentID)

	page, err := s.up.ListFolders(ctx, synology.FolderQuery{
		ParentID:      parent,
		Offset:        q.Offset,
		Limit:         q.Limit,
		SortBy:        q.SortBy,
		SortDirection: q.SortDirection,
		Passphrase:    q.Passphrase,
	})
	if err != nil {
		return CollectionList{}, err
	}

	folders := s.mapFolders(page.Records)

	return CollectionList{
		Data: folders,
		Page: PageInfo{Offset: q.Offset, Limit: q.Limit, Total: resolveTotal(page.Total, q.Offset, len(folders))},
	}, nil
}

// Collection returns one folder. Folders outside the boundary, hidden, or
// absent are all reported as not found.
func (s *Service) Collection(ctx context.Context, folderID, passphrase string) (records.Collection, error) {
	if err := s.bounds.AssertWithin(ctx, folderID, passphrase); err != nil {
		return records.Collection{}, err
	}

	rec, err := s.up.FolderInfo(ctx, folderID, passphrase)
	if err != nil {
		return records.Collection{}, err
	}

	if rec == nil {
		return records.Collection{}, apperr.NotFound(boundary.NotFoundMessage)
	}

	if err := s.policy.AssertFolder(rec); err != nil {
		return records.Collection{}, err
	}

	c, ok := records.MapCollection(rec, s.origin)
	if !ok {
		return records.Collection{}, apperr.NotFound(boundary.NotFoundMessage)
	}

	return c, nil
}

// Contents lists one page of the subfolders and items of folderID. The
// folder's own info, its subfolders, and its items are fetched in parallel.
func (s *Service) Contents(ctx context.Context, folderID string, q Query) (Contents, error) {
	q = normalizeQuery(q)

	if err := s.bounds.AssertWithin(ctx, folderID, q.Passphrase); err != nil {
		return Contents{}, err
	}

	var (
		info      records.Record
		folders   synology.Page
		items     synology.Page
		reported  map[string]struct{}
		additions = visibility.EnsureAdditional(q.Additional, visibility.TagField)
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		info, err = s.up.FolderInfo(gctx, folderID, q.Passphrase)

		return err
	})

	g.Go(func() error {
		var err error
		folders, err = s.up.ListFolders(gctx, synology.FolderQuery{
			ParentID:      folderID,
			Offset:        q.Offset,
			Limit:         q.Limit,
			SortBy:        q.SortBy,
			SortDirection: q.SortDirection,
			Passphrase:    q.Passphrase,
		})

		return err
	})

	g.Go(func() error {
		var err error
		items, err = s.up.ListItems(gctx, synology.ItemQuery{
			FolderID:      folderID,
			Offset:        q.Offset,
			Limit:         q.Limit,
			SortBy:        q.SortBy,
			SortDirection: q.SortDirection,
			Type:          q.Type,
			Passphrase:    q.Passphrase,
			Additional:    additions,
		})

		return err
	})

	g.Go(func() error {
		var err error
		reported, err = s.reportedIDs(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return Contents{}, err
	}

	if info != nil {
		if err := s.policy.AssertFolder(info); err != nil {
			return Contents{}, err
		}
	}

	subfolders := s.mapFolders(folders.Records)

	mapped := make([]records.MediaItem, 0, len(items.Records))

	for _, rec := range s.policy.FilterItems(items.Records) {
		if it, ok := records.MapItem(rec, s.origin, folderID); ok {
			mapped = append(mapped, it)
		}
	}

	// Reported items are dropped after upstream paging, so a page may be short.
	mapped = reports.ExcludeReported(mapped, func(it records.MediaItem) string { return it.ID }, reported)

	if sortByName(q.SortBy) {
		desc := q.SortDirection == "desc"
		subfolders = records.SortCollections(subfolders, desc)
		mapped = records.SortItems(mapped, desc)
	}

	ev := reports.Event{Type: reports.EventFolderView, VisitorID: q.Visitor, FolderID: folderID}
	if c, ok := records.MapCollection(info, s.origin); ok {
		ev.FolderName = c.Title
	}

	s.track(ctx, ev)

	return Contents{
		Folders:     subfolders,
		Items:       mapped,
		FoldersPage: PageInfo{Offset: q.Offset, Limit: q.Limit, Total: resolveTotal(folders.Total, q.Offset, len(subfolders))},
		Page:        PageInfo{Offset: q.Offset, Limit: q.Limit, Total: resolveTotal(items.Total, q.Offset, len(mapped))},
	}, nil
}

// ItemQuery identifies one item for lookup or streaming.
type ItemQuery struct {
	ItemID     string
	FolderID   string
	Passphrase string
	Additional []string
	Visitor    string
}

// Item returns one visible, unreported item.
func (s *Service) Item(ctx context.Context, q ItemQuery) (records.MediaItem, error) {
	rec, err := s.visibleItem(ctx, q, visibility.ItemNotFound)
	if err != nil {
		return records.MediaItem{}, err
	}

	it, ok := records.MapItem(rec, s.origin, q.FolderID)
	if !ok {
		return records.MediaItem{}, apperr.NotFound(visibility.ItemNotFound)
	}

	s.track(ctx, reports.Event{
		Type:         reports.EventItemView,
		VisitorID:    q.Visitor,
		FolderID:     q.FolderID,
		ItemID:       it.ID,
		ItemFilename: it.Filename,
	})

	return it, nil
}

// Media is a streamed upstream body plus the headers to forward. The caller
// closes Response.Body.
type Media struct {
	Response           *http.Response
	Header             http.Header
	ContentDisposition string
}

// Thumbnail streams the thumbnail of a visible item. An empty cacheKey is
// filled from the item record.
func (s *Service) Thumbnail(ctx context.Context, q ItemQuery, size, cacheKey string) (*Media, error) {
	q.Additional = visibility.EnsureAdditional(q.Additional, thumbnailField)

	rec, err := s.visibleItem(ctx, q, "Thumbnail not found")
	if err != nil {
		return nil, err
	}

	if cacheKey == "" {
		cacheKey = recordCacheKey(rec)
	}

	resp, err := s.up.Thumbnail(ctx, synology.ThumbnailRequest{
		ItemID:     q.ItemID,
		CacheKey:   cacheKey,
		Size:       size,
		Passphrase: q.Passphrase,
	})
	if err != nil {
		return nil, err
	}

	return &Media{
		Response:           resp,
		Header:             synology.ProxyHeaders(resp),
		ContentDisposition: contentDisposition("inline", fmt.Sprintf("thumbnail-%s.jpg", q.ItemID)),
	}, nil
}

// Download streams the original file of a visible item. rangeHeader is
// forwarded verbatim.
func (s *Service) Download(ctx context.Context, q ItemQuery, rangeHeader string) (*Media, error) {
	q.Additional = visibility.EnsureAdditional(q.Additional, thumbnailField)

	rec, err := s.visibleItem(ctx, q, visibility.ItemNotFound)
	if err != nil {
		return nil, err
	}

	resp, err := s.up.Download(ctx, synology.DownloadRequest{
		ItemID:     q.ItemID,
		CacheKey:   recordCacheKey(rec),
		Passphrase: q.Passphrase,
		Range:      rangeHeader,
	})
	if err != nil {
		return nil, err
	}

	filename := q.ItemID
	if it, ok := records.MapItem(rec, s.origin, q.FolderID); ok {
		filename = it.Filename
	}

	s.track(ctx, reports.Event{
		Type:         reports.EventItemDownload,
		VisitorID:    q.Visitor,
		FolderID:     q.FolderID,
		ItemID:       q.ItemID,
		ItemFilename: filename,
	})

	return &Media{
		Response:           resp,
		Header:             synology.ProxyHeaders(resp),
		ContentDisposition: contentDisposition("attachment", filename),
	}, nil
}

// visibleItem resolves an item within the boundary, applies the visibility
// policy, and hides reported items. Every refusal carries notFound.
func (s *Service) visibleItem(ctx context.Context, q ItemQuery, notFound string) (records.Record, error) {
	if q.FolderID != "" {
		if err := s.bounds.AssertWithin(ctx, q.FolderID, q.Passphrase); err != nil {
			return nil, notFoundAs(err, notFound)
		}
	}

	rec, err := s.resolver.ResolveVisible(ctx, itemcache.Lookup{
		ItemID:     q.ItemID,
		FolderID:   q.FolderID,
		Passphrase: q.Passphrase,
		Fields:     q.Additional,
	})
	if err != nil {
		return nil, notFoundAs(err, notFound)
	}

	reported, err := s.reportedIDs(ctx)
	if err != nil {
		return nil, err
	}

	if id, ok := rec.ID(records.Item); ok {
		if _, hit := reported[id]; hit {
			s.logger.Debug("hiding reported item", slog.String("item_id", id))
			return nil, apperr.NotFound(notFound)
		}
	}

	return rec, nil
}

// notFoundAs rewrites not-found errors to carry message.
func notFoundAs(err error, message string) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound(message)
	}

	return err
}

func (s *Service) mapFolders(list []records.Record) []records.Collection {
	out := make([]records.Collection, 0, len(list))

	for _, rec := range s.policy.FilterFolders(list) {
		if c, ok := records.MapCollection(rec, s.origin); ok {
			out = append(out, c)
		}
	}

	return out
}

// track records the visitor and then ev, when a tracker is configured and
// the query named a visitor. The tracker counts a visitor once per day.
// Failures are logged and never reach the caller.
func (s *Service) track(ctx context.Context, ev reports.Event) {
	if s.tracker == nil || ev.VisitorID == "" {
		return
	}

	for _, e := range []reports.Event{{Type: reports.EventVisitor, VisitorID: ev.VisitorID}, ev} {
		if err := s.tracker.Track(ctx, e); err != nil {
			s.logger.Warn("analytics tracking failed",
				slog.String("type", string(e.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Service) reportedIDs(ctx context.Context) (map[string]struct{}, error) {
	if s.reports == nil {
		return nil, nil
	}

	ids, err := s.reports.ReportedItemIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("gallery: loading reported items: %w", err)
	}

	return ids, nil
}

func normalizeQuery(q Query) Query {
	if q.Offset < 0 {
		q.Offset = 0
	}

	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}

	q.SortBy = strings.TrimSpace(q.SortBy)

	if q.SortDirection != "desc" {
		q.SortDirection = "asc"
	}

	return q
}

// sortByName reports whether the listing is ordered locally by natural
// name order rather than left in upstream order.
func sortByName(sortBy string) bool {
	return sortBy == "" || sortBy == "name" || sortBy == "filename"
}

// resolveTotal prefers the upstream total and otherwise counts what is known.
func resolveTotal(upstream, offset, got int) int {
	if upstream > 0 {
		return upstream
	}

	return offset + got
}

func recordCacheKey(rec records.Record) string {
	v, ok := rec.Sub("additional").Sub(thumbnailField).First("cache_key")
	if !ok {
		return ""
	}

	s, _ := records.Scalar(v)

	return s
}

func contentDisposition(disposition, filename string) string {
	return fmt.Sprintf("%s; filename=%q", disposition, strings.ReplaceAll(filename, `"`, ""))
}
