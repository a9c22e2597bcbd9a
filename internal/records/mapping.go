package records

import (
	"math"
	"net/url"
	"strings"
	"time"
)

// ItemType is the coarse media kind of an item.
type ItemType string

// Item types.
const (
	ItemPhoto ItemType = "photo"
	ItemVideo ItemType = "video"
	ItemOther ItemType = "other"
)

// isoLayout matches the millisecond UTC form clients already parse.
const isoLayout = "2006-01-02T15:04:05.000Z"

// millisThreshold separates epoch milliseconds from epoch seconds.
const millisThreshold = 1_000_000_000_000

// Collection is a folder as presented to clients.
type Collection struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Title             string `json:"title"`
	Description       string `json:"description,omitempty"`
	ItemCount         int    `json:"itemCount"`
	CoverItemID       string `json:"coverItemId,omitempty"`
	CoverThumbnailURL string `json:"coverThumbnailUrl,omitempty"`
	CreatedAt         string `json:"createdAt,omitempty"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

// MediaItem is a photo or video as presented to clients.
type MediaItem struct {
	ID           string         `json:"id"`
	Type         ItemType       `json:"type"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mimeType,omitempty"`
	SizeBytes    int64          `json:"sizeBytes,omitempty"`
	TakenAt      string         `json:"takenAt,omitempty"`
	CreatedAt    string         `json:"createdAt,omitempty"`
	Width        int            `json:"width,omitempty"`
	Height       int            `json:"height,omitempty"`
	Exif         map[string]any `json:"exif,omitempty"`
	ThumbnailURL string         `json:"thumbnailUrl"`
	DownloadURL  string         `json:"downloadUrl"`
}

// MapCollection converts a raw folder record. Records without an identifier
// report false.
func MapCollection(rec Record, origin string) (Collection, bool) {
	idValue, ok := rec.First(idAliases[Folder]...)
	if !ok {
		return Collection{}, false
	}

	id, ok := Scalar(idValue)
	if !ok || id == "" {
		return Collection{}, false
	}

	c := Collection{
		ID:    id,
		Type:  "folder",
		Title: id,
	}

	if v, ok := rec.First("name", "title"); ok {
		if s, ok := Scalar(v); ok {
			c.Title = s
		}
	}

	if v, ok := rec.First("description"); ok {
		c.Description, _ = Scalar(v)
	}

	if v, ok := rec.First("item_count", "count"); ok {
		if n, ok := Number(v); ok {
			c.ItemCount = int(n)
		}
	}

	if v, ok := rec.First("cover_unit_id"); ok {
		if cover, ok := Scalar(v); ok && cover != "" && cover != "0" {
			c.CoverItemID = cover
			c.CoverThumbnailURL = itemURL(origin, cover, "thumbnail", url.Values{"folder_id": {id}})
		}
	}

	c.CreatedAt = firstISO(rec, "create_time", "created_time")
	c.UpdatedAt = firstISO(rec, "update_time", "updated_time")

	return c, true
}

// MapItem converts a raw item record. folderID, when set, is carried into
// the thumbnail and download URLs so those requests can use the folder scan
// cache.
func MapItem(rec Record, origin, folderID string) (MediaItem, bool) {
	idValue, ok := rec.First(idAliases[Item]...)
	if !ok {
		return MediaItem{}, false
	}

	id, ok := Scalar(idValue)
	if !ok || id == "" {
		return MediaItem{}, false
	}

	it := MediaItem{ID: id, Filename: id}

	if v, ok := rec.First("filename", "name"); ok {
		if s, ok := Scalar(v); ok && s != "" {
			it.Filename = s
		}
	}

	typeValue, _ := rec.First("type", "item_type", "media_type")
	it.Type = ParseItemType(typeValue)

	if v, ok := rec.First("mime_type", "mime"); ok {
		it.MimeType, _ = Scalar(v)
	}

	if v, ok := rec.First("filesize", "size"); ok {
		if n, ok := Number(v); ok {
			it.SizeBytes = int64(n)
		}
	}

	it.TakenAt = firstISO(rec, "time", "taken_time")
	it.CreatedAt = firstISO(rec, "create_time", "created_time")

	additional := rec.Sub("additional")
	resolution := additional.Sub("resolution")

	if v, ok := firstOf(resolution, rec, "width", "resolutionx"); ok {
		it.Width = int(v)
	}

	if v, ok := firstOf(resolution, rec, "height", "resolutiony"); ok {
		it.Height = int(v)
	}

	if exif := additional.Sub("exif"); exif != nil {
		it.Exif = exif
	}

	thumbnail := additional.Sub("thumbnail")
	cacheKey := ""

	if v, ok := thumbnail.First("cache_key"); ok {
		cacheKey, _ = Scalar(v)
	}

	thumbQuery := url.Values{}
	downloadQuery := url.Values{}

	if cacheKey != "" {
		thumbQuery.Set("cache_key", cacheKey)
		downloadQuery.Set("cache_key", cacheKey)
	}

	if size := PickThumbnailSize(thumbnail); size != "" {
		thumbQuery.Set("size", size)
	}

	downloadQuery.Set("filename", it.Filename)

	if folderID != "" {
		thumbQuery.Set("folder_id", folderID)
		downloadQuery.Set("folder_id", folderID)
	}

	it.ThumbnailURL = itemURL(origin, id, "thumbnail", thumbQuery)
	it.DownloadURL = itemURL(origin, id, "download", downloadQuery)

	return it, true
}

// ParseItemType maps the upstream type field to an ItemType.
func ParseItemType(v any) ItemType {
	if s, ok := v.(string); ok {
		lower := strings.ToLower(s)

		switch {
		case lower == "live", strings.Contains(lower, "photo"), strings.Contains(lower, "image"):
			return ItemPhoto
		case strings.Contains(lower, "video"):
			return ItemVideo
		}

		if _, numeric := Number(s); !numeric {
			return ItemOther
		}
	}

	n, ok := Number(v)
	if !ok {
		return ItemOther
	}

	switch n {
	case 1, 3:
		return ItemPhoto
	case 2:
		return ItemVideo
	default:
		return ItemOther
	}
}

// PickThumbnailSize returns the smallest ready thumbnail size, preferring
// sm, then m, then xl. Empty when none is ready.
func PickThumbnailSize(thumbnail Record) string {
	for _, size := range []string{"sm", "m", "xl"} {
		if s, ok := thumbnail[size].(string); ok && s == "ready" {
			return size
		}
	}

	return ""
}

// ToISO renders an epoch timestamp as an ISO-8601 UTC string. Values above
// 1e12 are taken as milliseconds, the rest as seconds.
func ToISO(v any) (string, bool) {
	n, ok := Number(v)
	if !ok {
		return "", false
	}

	ms := n
	if n <= millisThreshold {
		ms = n * 1000
	}

	return time.UnixMilli(int64(math.Round(ms))).UTC().Format(isoLayout), true
}

func firstISO(rec Record, keys ...string) string {
	v, ok := rec.First(keys...)
	if !ok {
		return ""
	}

	s, _ := ToISO(v)

	return s
}

// firstOf reads key from primary, then key and alt from fallback.
func firstOf(primary, fallback Record, key, alt string) (float64, bool) {
	if v, ok := primary.First(key); ok {
		if n, ok := Number(v); ok {
			return n, true
		}
	}

	v, ok := fallback.First(key, alt)
	if !ok {
		return 0, false
	}

	return Number(v)
}

func itemURL(origin, id, action string, query url.Values) string {
	u := strings.TrimRight(origin, "/") + "/api/items/" + url.PathEscape(id) + "/" + action
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return u
}
