package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://photos.example.com"

func TestMapCollection(t *testing.T) {
	rec := mustDecode(t, `{
		"folder_id": 12,
		"name": "Summer",
		"item_count": "7",
		"cover_unit_id": 301,
		"create_time": 1700000000,
		"update_time": 1700000000123
	}`)

	c, ok := MapCollection(rec, origin+"/")
	require.True(t, ok)

	assert.Equal(t, "12", c.ID)
	assert.Equal(t, "folder", c.Type)
	assert.Equal(t, "Summer", c.Title)
	assert.Equal(t, 7, c.ItemCount)
	assert.Equal(t, "301", c.CoverItemID)
	assert.Equal(t, origin+"/api/items/301/thumbnail?folder_id=12", c.CoverThumbnailURL)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", c.CreatedAt)
	assert.Equal(t, "2023-11-14T22:13:20.123Z", c.UpdatedAt)
}

func TestMapCollection_TitleFallsBackToID(t *testing.T) {
	c, ok := MapCollection(mustDecode(t, `{"id": 4}`), origin)
	require.True(t, ok)
	assert.Equal(t, "4", c.Title)
	assert.Zero(t, c.ItemCount)
	assert.Empty(t, c.CoverThumbnailURL)

	_, ok = MapCollection(mustDecode(t, `{"name": "orphan"}`), origin)
	assert.False(t, ok)
}

func TestMapItem(t *testing.T) {
	rec := mustDecode(t, `{
		"id": 55,
		"filename": "IMG 1.jpg",
		"type": "photo",
		"filesize": 2048,
		"time": 1700000000,
		"additional": {
			"resolution": {"width": 4000, "height": 3000},
			"thumbnail": {"cache_key": "55_1700", "sm": "ready", "m": "ready", "xl": "ready"},
			"exif": {"camera": "X100"}
		}
	}`)

	it, ok := MapItem(rec, origin, "12")
	require.True(t, ok)

	assert.Equal(t, "55", it.ID)
	assert.Equal(t, ItemPhoto, it.Type)
	assert.Equal(t, "IMG 1.jpg", it.Filename)
	assert.Equal(t, int64(2048), it.SizeBytes)
	assert.Equal(t, 4000, it.Width)
	assert.Equal(t, 3000, it.Height)
	assert.Equal(t, "X100", it.Exif["camera"])
	assert.Equal(t, "2023-11-14T22:13:20.000Z", it.TakenAt)
	assert.Equal(t, origin+"/api/items/55/thumbnail?cache_key=55_1700&folder_id=12&size=sm", it.ThumbnailURL)
	assert.Equal(t, origin+"/api/items/55/download?cache_key=55_1700&filename=IMG+1.jpg&folder_id=12", it.DownloadURL)
}

func TestMapItem_FallbackDimensions(t *testing.T) {
	it, ok := MapItem(mustDecode(t, `{"unit_id": 3, "resolutionx": 640, "resolutiony": 480, "type": 2}`), origin, "")
	require.True(t, ok)

	assert.Equal(t, "3", it.Filename)
	assert.Equal(t, ItemVideo, it.Type)
	assert.Equal(t, 640, it.Width)
	assert.Equal(t, 480, it.Height)
	assert.Equal(t, origin+"/api/items/3/thumbnail", it.ThumbnailURL)
}

func TestParseItemType(t *testing.T) {
	tests := []struct {
		in   any
		want ItemType
	}{
		{mustDecode(t, `{"t":1}`)["t"], ItemPhoto},
		{mustDecode(t, `{"t":2}`)["t"], ItemVideo},
		{mustDecode(t, `{"t":3}`)["t"], ItemPhoto},
		{mustDecode(t, `{"t":9}`)["t"], ItemOther},
		{"live", ItemPhoto},
		{"LIVE", ItemPhoto},
		{"image/jpeg", ItemPhoto},
		{"video", ItemVideo},
		{"document", ItemOther},
		{nil, ItemOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseItemType(tt.in), "input %v", tt.in)
	}
}

func TestPickThumbnailSize(t *testing.T) {
	assert.Equal(t, "sm", PickThumbnailSize(Record{"sm": "ready", "xl": "ready"}))
	assert.Equal(t, "m", PickThumbnailSize(Record{"sm": "broken", "m": "ready"}))
	assert.Equal(t, "xl", PickThumbnailSize(Record{"xl": "ready"}))
	assert.Empty(t, PickThumbnailSize(Record{"sm": "pending"}))
	assert.Empty(t, PickThumbnailSize(nil))
}

func TestToISO(t *testing.T) {
	s, ok := ToISO("1700000000")
	require.True(t, ok)
	assert.Equal(t, "2023-11-14T22:13:20.000Z", s)

	_, ok = ToISO("soon")
	assert.False(t, ok)
}

func TestSortNatural(t *testing.T) {
	items := []MediaItem{
		{Filename: "img10.jpg"},
		{Filename: "IMG2.jpg"},
		{Filename: "img1.jpg"},
	}

	sorted := SortItems(items, false)
	assert.Equal(t, []string{"img1.jpg", "IMG2.jpg", "img10.jpg"}, filenames(sorted))
	assert.Equal(t, "img10.jpg", items[0].Filename, "input is not mutated")

	desc := SortItems(items, true)
	assert.Equal(t, []string{"img10.jpg", "IMG2.jpg", "img1.jpg"}, filenames(desc))

	cols := SortCollections([]Collection{{Title: "Zebra"}, {Title: "apple"}, {Title: "Éclair"}}, false)
	assert.Equal(t, "apple", cols[0].Title)
	assert.Equal(t, "Éclair", cols[1].Title)
	assert.Equal(t, "Zebra", cols[2].Title)
}

func filenames(items []MediaItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Filename
	}

	return out
}
