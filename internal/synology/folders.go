package synology

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/records"
)

// Upstream API names.
const (
	FolderAPI    = "SYNO.FotoTeam.Browse.Folder"
	ItemAPI      = "SYNO.FotoTeam.Browse.Item"
	ThumbnailAPI = "SYNO.FotoTeam.Thumbnail"
	DownloadAPI  = "SYNO.FotoTeam.Download"
)

// Page is one page of normalized records plus the upstream total. Fetched
// counts the entries the upstream returned before normalization, for
// advancing offsets.
type Page struct {
	Records []records.Record
	Total   int
	Fetched int
}

// FolderQuery selects subfolders of ParentID.
type FolderQuery struct {
	ParentID      string
	Offset        int
	Limit         int
	SortBy        string
	SortDirection string
	Passphrase    string
}

// ListFolders lists the direct subfolders of q.ParentID.
func (c *Client) ListFolders(ctx context.Context, q FolderQuery) (Page, error) {
	params := map[string]any{
		"id":     records.IDParam(q.ParentID),
		"offset": q.Offset,
		"limit":  q.Limit,
	}

	addSort(params, q.SortBy, q.SortDirection)

	if q.Passphrase != "" {
		params["passphrase"] = q.Passphrase
	}

	return c.listPage(ctx, APIRequest{API: FolderAPI, Version: 1, Method: "list", Params: params}, records.Folder)
}

// ListParents returns the ancestor chain of folderID as raw records.
func (c *Client) ListParents(ctx context.Context, folderID, passphrase string) ([]records.Record, error) {
	params := map[string]any{"id": records.IDParam(folderID)}
	if passphrase != "" {
		params["passphrase"] = passphrase
	}

	data, err := c.CallJSON(ctx, APIRequest{API: FolderAPI, Version: 1, Method: "list_parents", Params: params})
	if err != nil {
		return nil, err
	}

	list, _, err := records.ExtractList(data)
	if err != nil {
		return nil, err
	}

	return list, nil
}

// FolderInfo fetches one folder record. It tries getinfo first and falls
// back to the matching entry of list_parents, or its last entry when none
// matches. Upstream rejections on either path are absorbed; nil, nil means
// the folder could not be found.
func (c *Client) FolderInfo(ctx context.Context, folderID, passphrase string) (records.Record, error) {
	params := map[string]any{"id": records.IDParam(folderID)}
	if passphrase != "" {
		params["passphrase"] = passphrase
	}

	data, err := c.CallJSON(ctx, APIRequest{API: FolderAPI, Version: 1, Method: "getinfo", Params: params})

	switch {
	case err == nil:
		rec, decErr := records.ExtractSingle(data)
		if decErr != nil {
			return nil, decErr
		}

		if rec != nil {
			return rec, nil
		}
	case apperr.IsUpstream(err):
		c.logger.Debug("folder getinfo failed, trying list_parents", slog.String("error", err.Error()))
	default:
		return nil, err
	}

	parents, err := c.ListParents(ctx, folderID, passphrase)
	if err != nil {
		if apperr.IsUpstream(err) {
			return nil, nil
		}

		return nil, err
	}

	if len(parents) == 0 {
		return nil, nil
	}

	want := records.NormalizeID(folderID)

	for _, p := range parents {
		if id, ok := p.ID(records.Folder); ok && id == want {
			return p, nil
		}
	}

	return parents[len(parents)-1], nil
}

func (c *Client) listPage(ctx context.Context, req APIRequest, e records.Entity) (Page, error) {
	data, err := c.CallJSON(ctx, req)
	if err != nil {
		return Page{}, err
	}

	list, total, err := records.ExtractList(data)
	if err != nil {
		return Page{}, err
	}

	return Page{Records: records.NormalizeList(list, e, c.logger), Total: total, Fetched: len(list)}, nil
}

func addSort(params map[string]any, sortBy, direction string) {
	if sortBy == "" {
		return
	}

	params["sort_by"] = sortBy

	if direction == "asc" || direction == "desc" {
		params["sort_direction"] = direction
	}
}
