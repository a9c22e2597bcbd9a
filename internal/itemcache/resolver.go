// Package itemcache resolves single items by id. When the caller names the
// containing folder, the folder is scanned once and the scan is shared by
// every concurrent and subsequent lookup until it expires; otherwise, or when
// the folder does not hold the item, the upstream getinfo call is tried under
// each item id alias.
package itemcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/kvstore"
	"github.com/tonimelisma/synophoto/internal/records"
	"github.com/tonimelisma/synophoto/internal/synology"
	"github.com/tonimelisma/synophoto/internal/visibility"
)

// Defaults for scan caching.
const (
	DefaultTTL      = 60 * time.Second
	DefaultPageSize = 200

	keyPrefix = "itemscan:"
)

// Upstream is the subset of synology.Client used for resolution.
type Upstream interface {
	ListItems(ctx context.Context, q synology.ItemQuery) (synology.Page, error)
	ItemInfo(ctx context.Context, idKey, itemID, passphrase string, additional []string) (records.Record, error)
}

// Lookup identifies one item. FolderID is optional; Fields lists the
// additional fields to request.
type Lookup struct {
	ItemID     string
	FolderID   string
	Passphrase string
	Fields     []string
}

// Options tune a Resolver. Zero values select the defaults.
type Options struct {
	TTL      time.Duration
	PageSize int
	Logger   *slog.Logger
}

// Resolver finds items, caching whole-folder scans in the shared store.
type Resolver struct {
	up     Upstream
	kv     kvstore.Store
	policy *visibility.Policy
	group  singleflight.Group
	opts   Options
	logger *slog.Logger
}

// New returns a Resolver. policy is used by ResolveVisible only; nil selects
// the default visibility rules.
func New(up Upstream, kv kvstore.Store, policy *visibility.Policy, opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	if policy == nil {
		policy = visibility.New(visibility.DefaultSettings())
	}

	return &Resolver{up: up, kv: kv, policy: policy, opts: opts, logger: opts.Logger}
}

// CacheKey identifies one folder scan: folder, passphrase, and the trimmed,
// lowercased, sorted field set.
func CacheKey(folderID, passphrase string, fields []string) string {
	norm := make([]string, 0, len(fields))

	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			norm = append(norm, f)
		}
	}

	sort.Strings(norm)

	return records.NormalizeID(folderID) + "::" + passphrase + "::" + strings.Join(norm, "|")
}

// storeKey hashes the cache key so passphrases never appear in store keys.
func storeKey(cacheKey string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Resolve returns the raw record of l.ItemID or a not-found error.
func (r *Resolver) Resolve(ctx context.Context, l Lookup) (records.Record, error) {
	itemID := records.NormalizeID(l.ItemID)
	if itemID == "" {
		return nil, apperr.NotFound(visibility.ItemNotFound)
	}

	if l.FolderID != "" {
		rec, err := r.fromFolder(ctx, itemID, l)

		switch {
		case err == nil && rec != nil:
			return rec, nil
		case err == nil:
			r.logger.Debug("item not in folder scan, trying direct lookup",
				slog.String("item_id", itemID),
				slog.String("folder_id", l.FolderID),
			)
		case apperr.IsUpstream(err):
			r.logger.Debug("folder scan failed, trying direct lookup",
				slog.String("folder_id", l.FolderID),
				slog.String("error", err.Error()),
			)
		default:
			return nil, err
		}
	}

	rec, err := r.direct(ctx, itemID, l)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, apperr.NotFound(visibility.ItemNotFound)
	}

	return rec, nil
}

// ResolveVisible resolves the item with its tags and applies the visibility
// policy, so hidden items are reported as not found.
func (r *Resolver) ResolveVisible(ctx context.Context, l Lookup) (records.Record, error) {
	l.Fields = visibility.EnsureAdditional(l.Fields, visibility.TagField)

	rec, err := r.Resolve(ctx, l)
	if err != nil {
		return nil, err
	}

	if err := r.policy.AssertItem(rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// Invalidate drops the cached scan for one folder and field set.
func (r *Resolver) Invalidate(ctx context.Context, folderID, passphrase string, fields []string) error {
	return r.kv.Delete(ctx, storeKey(CacheKey(folderID, passphrase, fields)))
}

// fromFolder answers from a live cache entry, or scans the folder once on
// behalf of every concurrent caller with the same key.
func (r *Resolver) fromFolder(ctx context.Context, itemID string, l Lookup) (records.Record, error) {
	key := CacheKey(l.FolderID, l.Passphrase, l.Fields)

	if items, ok := r.cached(ctx, key); ok {
		return items[itemID], nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		// The scan outlives any one caller; others may be waiting on it.
		return r.scanAndStore(context.WithoutCancel(ctx), key, l)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		items, _ := res.Val.(map[string]records.Record)

		return items[itemID], nil
	}
}

func (r *Resolver) cached(ctx context.Context, key string) (map[string]records.Record, bool) {
	raw, ok, err := r.kv.Get(ctx, storeKey(key))
	if err != nil {
		r.logger.Warn("reading folder scan cache", slog.String("error", err.Error()))
		return nil, false
	}

	if !ok {
		return nil, false
	}

	rec, err := records.Decode(json.RawMessage(raw))
	if err != nil {
		r.logger.Warn("dropping corrupt folder scan entry", slog.String("error", err.Error()))

		if delErr := r.kv.Delete(ctx, storeKey(key)); delErr != nil {
			r.logger.Warn("failed to remove corrupt folder scan entry", slog.String("error", delErr.Error()))
		}

		return nil, false
	}

	items := make(map[string]records.Record, len(rec))

	for id, v := range rec {
		if item, ok := records.AsRecord(v); ok {
			items[id] = item
		}
	}

	return items, true
}

func (r *Resolver) scanAndStore(ctx context.Context, key string, l Lookup) (map[string]records.Record, error) {
	// Another process may have finished the same scan meanwhile.
	if items, ok := r.cached(ctx, key); ok {
		return items, nil
	}

	items, err := r.scan(ctx, l)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("itemcache: encoding scan of folder %s: %w", l.FolderID, err)
	}

	if err := r.kv.Set(ctx, storeKey(key), string(data), r.opts.TTL); err != nil {
		r.logger.Warn("storing folder scan", slog.String("error", err.Error()))
	}

	return items, nil
}

// scan pages through the whole folder. A partial scan is never returned.
func (r *Resolver) scan(ctx context.Context, l Lookup) (map[string]records.Record, error) {
	items := make(map[string]records.Record)
	offset := 0
	pages := 0

	for {
		page, err := r.up.ListItems(ctx, synology.ItemQuery{
			FolderID:   l.FolderID,
			Offset:     offset,
			Limit:      r.opts.PageSize,
			Passphrase: l.Passphrase,
			Additional: nonNil(l.Fields),
		})
		if err != nil {
			return nil, err
		}

		pages++

		for _, rec := range page.Records {
			if id, ok := rec.ID(records.Item); ok {
				items[id] = rec
			}
		}

		if page.Fetched == 0 {
			break
		}

		offset += page.Fetched
		if offset >= page.Total {
			break
		}
	}

	r.logger.Debug("scanned folder",
		slog.String("folder_id", l.FolderID),
		slog.Int("items", len(items)),
		slog.Int("pages", pages),
	)

	return items, nil
}

// direct tries getinfo under each item id alias, first with the requested
// fields and, if the upstream rejects that, without them.
func (r *Resolver) direct(ctx context.Context, itemID string, l Lookup) (records.Record, error) {
	for _, key := range records.IDAliases(records.Item) {
		rec, err := r.up.ItemInfo(ctx, key, itemID, l.Passphrase, nonNil(l.Fields))

		switch {
		case err == nil && rec != nil:
			return rec, nil
		case err == nil:
			continue
		case !apperr.IsUpstream(err):
			return nil, err
		}

		r.logger.Debug("getinfo rejected, retrying without fields",
			slog.String("id_key", key),
			slog.String("error", err.Error()),
		)

		rec, err = r.up.ItemInfo(ctx, key, itemID, l.Passphrase, nil)

		switch {
		case err == nil && rec != nil:
			return rec, nil
		case err != nil && !apperr.IsUpstream(err):
			return nil, err
		}
	}

	return nil, nil
}

// nonNil makes an absent field list explicit, so the upstream receives an
// empty additional list rather than none.
func nonNil(fields []string) []string {
	if fields == nil {
		return []string{}
	}

	return fields
}
