package synology

import (
	"context"

	"github.com/tonimelisma/synophoto/internal/records"
)

// ItemQuery selects items inside FolderID.
type ItemQuery struct {
	FolderID      string
	Offset        int
	Limit         int
	SortBy        string
	SortDirection string
	Type          string
	Passphrase    string
	Additional    []string
}

// ListItems lists one page of items in q.FolderID.
func (c *Client) ListItems(ctx context.Context, q ItemQuery) (Page, error) {
	params := map[string]any{
		"folder_id": records.IDParam(q.FolderID),
		"offset":    q.Offset,
		"limit":     q.Limit,
	}

	addSort(params, q.SortBy, q.SortDirection)

	if q.Type != "" {
		params["type"] = q.Type
	}

	if q.Passphrase != "" {
		params["passphrase"] = q.Passphrase
	}

	if q.Additional != nil {
		params["additional"] = q.Additional
	}

	return c.listPage(ctx, APIRequest{API: ItemAPI, Version: 1, Method: "list", Params: params}, records.Item)
}

// ItemInfo calls getinfo with the identifier under idKey, one of the item id
// aliases. A nil additional omits the field entirely. A nil record with no
// error means the upstream answered without an entry.
func (c *Client) ItemInfo(ctx context.Context, idKey, itemID, passphrase string, additional []string) (records.Record, error) {
	params := map[string]any{idKey: records.IDParam(itemID)}

	if additional != nil {
		params["additional"] = additional
	}

	if passphrase != "" {
		params["passphrase"] = passphrase
	}

	data, err := c.CallJSON(ctx, APIRequest{API: ItemAPI, Version: 1, Method: "getinfo", Params: params})
	if err != nil {
		return nil, err
	}

	return records.ExtractSingle(data)
}
