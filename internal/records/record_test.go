package records

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) Record {
	t.Helper()

	rec, err := Decode(json.RawMessage(s))
	require.NoError(t, err)

	return rec
}

func TestRecordID_AliasTables(t *testing.T) {
	tests := []struct {
		name   string
		entity Entity
		json   string
		want   string
		ok     bool
	}{
		{"folder id", Folder, `{"id": 12}`, "12", true},
		{"folder folder_id", Folder, `{"folder_id": "0034"}`, "34", true},
		{"folder album_id", Folder, `{"album_id": 7}`, "7", true},
		{"folder share_id", Folder, `{"share_id": "abcXYZ"}`, "abcXYZ", true},
		{"folder ignores unit_id", Folder, `{"unit_id": 5}`, "", false},
		{"item id wins over unit_id", Item, `{"id": 1, "unit_id": 2}`, "1", true},
		{"item unit_id", Item, `{"unit_id": 99}`, "99", true},
		{"item item_id", Item, `{"item_id": "42.0"}`, "42", true},
		{"item photo_id", Item, `{"photo_id": 8}`, "8", true},
		{"null id falls through", Item, `{"id": null, "unit_id": 3}`, "3", true},
		{"empty string", Item, `{"id": ""}`, "", false},
		{"object id rejected", Item, `{"id": {"x": 1}}`, "", false},
		{"large id preserved", Item, `{"id": 9007199254740993}`, "9007199254740993", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mustDecode(t, tt.json).ID(tt.entity)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "42", NormalizeID(" 42 "))
	assert.Equal(t, "42", NormalizeID("0042"))
	assert.Equal(t, "42", NormalizeID("42.0"))
	assert.Equal(t, "-3", NormalizeID("-3"))
	assert.Equal(t, "4.5", NormalizeID("4.5"))
	assert.Equal(t, "abc", NormalizeID("abc"))
}

func TestIDParam(t *testing.T) {
	assert.Equal(t, int64(17), IDParam("17"))
	assert.Equal(t, int64(17), IDParam("017"))
	assert.Equal(t, "share-abc", IDParam("share-abc"))
}

func TestExtractList(t *testing.T) {
	list, total, err := ExtractList(json.RawMessage(`{"list":[{"id":1},{"id":2},"junk"],"total":10}`))
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 10, total)

	list, total, err = ExtractList(json.RawMessage(`{"list":[{"id":1}],"total_count":"3"}`))
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 3, total)

	list, total, err = ExtractList(json.RawMessage(`{"list":[{"id":1},{"id":2}]}`))
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, total)

	list, total, err = ExtractList(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, total)

	_, _, err = ExtractList(json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestExtractSingle(t *testing.T) {
	rec, err := ExtractSingle(json.RawMessage(`{"list":[{"id":5},{"id":6}]}`))
	require.NoError(t, err)
	id, _ := rec.ID(Item)
	assert.Equal(t, "5", id)

	rec, err = ExtractSingle(json.RawMessage(`{"info":{"id":9}}`))
	require.NoError(t, err)
	id, _ = rec.ID(Folder)
	assert.Equal(t, "9", id)

	rec, err = ExtractSingle(json.RawMessage(`{"list":[]}`))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestNormalizeList(t *testing.T) {
	list := []Record{
		mustDecode(t, `{"id": 1, "v": "a"}`),
		mustDecode(t, `{"name": "no id"}`),
		mustDecode(t, `{"unit_id": 2}`),
		mustDecode(t, `{"id": "1", "v": "b"}`),
	}

	got := NormalizeList(list, Item, nil)
	require.Len(t, got, 2)

	id, _ := got[0].ID(Item)
	assert.Equal(t, "2", id)
	assert.Equal(t, "b", got[1]["v"])
}
